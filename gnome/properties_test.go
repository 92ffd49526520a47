package gnome

import (
	"net"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestPropertyNeighborSetsStayDisjoint is the neighbor-set disjointness
// invariant from spec.md §8: across any sequence of AddNeighbor/DropNeighbor
// calls and fast/slow/refreshed reshuffles, a GnomeId never appears in more
// than one of the four sets at once.
func TestPropertyNeighborSetsStayDisjoint(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g, _, _ := newTestGnome(1)
		known := map[GnomeId]bool{}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			action := rapid.IntRange(0, 3).Draw(t, "action")
			switch action {
			case 0:
				id := GnomeId(rapid.IntRange(1, 12).Draw(t, "newID"))
				if !known[id] {
					known[id] = true
					g.AddNeighbor(NewNeighbor(id, make(chan Message, 1), make(chan Message, 1), g.swarmTime))
				}
			case 1:
				if len(known) > 0 {
					ids := idsOf(known)
					id := ids[rapid.IntRange(0, len(ids)-1).Draw(t, "dropIdx")]
					g.DropNeighbor(id)
					delete(known, id)
				}
			case 2:
				g.swapNeighbors()
			case 3:
				g.concatNeighbors()
			}
			assertDisjoint(t, g)
		}
	})
}

func idsOf(m map[GnomeId]bool) []GnomeId {
	ids := make([]GnomeId, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

func assertDisjoint(t *rapid.T, g *Gnome) {
	t.Helper()
	seen := map[GnomeId]int{}
	for _, set := range [][]*Neighbor{g.fastNeighbors, g.slowNeighbors, g.refreshedNeighbors, g.newNeighbors} {
		for _, n := range set {
			seen[n.Id]++
		}
	}
	for id, count := range seen {
		if count > 1 {
			t.Fatalf("neighbor %s present in %d sets simultaneously", id, count)
		}
	}
}

// TestPropertyNetworkSettingsMergeLaw is spec.md §8's merge law: for
// m = a.Update(b), m.port_range == (min(a.min,b.min), max(a.max,b.max)).
func TestPropertyNetworkSettingsMergeLaw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := NetworkSettings{
			PublicIP: net.IPv4(1, 2, 3, 4),
			PortMin:  uint16(rapid.IntRange(0, 65535).Draw(t, "aMin")),
			PortMax:  uint16(rapid.IntRange(0, 65535).Draw(t, "aMax")),
		}
		b := NetworkSettings{
			PublicIP: net.IPv4(5, 6, 7, 8),
			PortMin:  uint16(rapid.IntRange(0, 65535).Draw(t, "bMin")),
			PortMax:  uint16(rapid.IntRange(0, 65535).Draw(t, "bMax")),
		}

		wantMin := minU16(a.PortMin, b.PortMin)
		wantMax := maxU16(a.PortMax, b.PortMax)

		a.Update(b)

		if a.PortMin != wantMin {
			t.Fatalf("expected merged PortMin %d, got %d", wantMin, a.PortMin)
		}
		if a.PortMax != wantMax {
			t.Fatalf("expected merged PortMax %d, got %d", wantMax, a.PortMax)
		}
	})
}

// TestPropertyBandwidthAverageLaw is spec.md §8's bandwidth law: after 16
// completed periods all reporting the same value v, average() == v.
func TestPropertyBandwidthAverageLaw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := uint64(rapid.IntRange(0, 1<<40).Draw(t, "v"))
		now := time.Unix(0, 0)
		clock := func() time.Time { return now }
		m := newBandwidthMonitorWithClock(time.Second, clock)

		for i := 0; i < bandwidthHistoryDepth; i++ {
			now = now.Add(time.Second)
			m.Update(v)
		}

		if avg := m.Average(); avg != v {
			t.Fatalf("expected average %d after 16 uniform periods, got %d", v, avg)
		}
	})
}

// TestPropertyRoundTimeoutLaw is spec.md §8's round-timeout law: regardless
// of neighbor behavior, a round started at round_start ends once swarm_time
// - round_start >= 2*diameter.
func TestPropertyRoundTimeoutLaw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		diameter := Neighborhood(rapid.IntRange(1, 20).Draw(t, "diameter"))
		elapsed := SwarmTime(rapid.IntRange(0, 200).Draw(t, "elapsed"))

		g, _, _ := newTestGnome(1)
		g.cfg.SwarmDiameter = diameter
		g.roundStart = SwarmTime(0)
		g.swarmTime = elapsed
		g.neighborhood = 0

		ended := g.checkIfNewRound()
		mustHaveEnded := elapsed.Sub(g.roundStart) >= SwarmTime(diameter)*2

		if ended != mustHaveEnded {
			t.Fatalf("diameter=%d elapsed=%s: expected ended=%v, got %v", diameter, elapsed, mustHaveEnded, ended)
		}
	})
}
