package gnome

import "fmt"

// AwarenessKind distinguishes the three states a gnome (or its view of a
// neighbor) can be in during a round.
type AwarenessKind uint8

const (
	// Unaware means no round traffic has been exchanged yet. It is a local
	// sentinel only: it is never the derived state of a message that has
	// actually been accepted (see SPEC_FULL.md §2).
	Unaware AwarenessKind = iota
	// Aware means the round is progressing normally; Value holds the
	// observed neighborhood (hop count).
	Aware
	// Confused means conflicting proposals were observed; Value holds the
	// remaining countdown before proposals may be re-introduced.
	Confused
)

func (k AwarenessKind) String() string {
	switch k {
	case Unaware:
		return "UNA"
	case Aware:
		return "AWR"
	case Confused:
		return "CFD"
	default:
		return "???"
	}
}

// Awareness is the sum type {Unaware, Aware(neighborhood), Confused(countdown)}
// from spec.md §3. It is never serialized as-is on the wire (see
// SPEC_FULL.md §2); it is derived locally from a Message's Header and
// Neighborhood fields.
type Awareness struct {
	Kind  AwarenessKind
	Value uint8 // neighborhood when Aware, countdown when Confused; unused when Unaware
}

// UnawareState is the zero-value Awareness.
var UnawareState = Awareness{Kind: Unaware}

// AwareState builds an Aware awareness at the given neighborhood.
func AwareState(neighborhood Neighborhood) Awareness {
	return Awareness{Kind: Aware, Value: uint8(neighborhood)}
}

// ConfusedState builds a Confused awareness with the given countdown.
func ConfusedState(countdown uint8) Awareness {
	return Awareness{Kind: Confused, Value: countdown}
}

// Neighborhood returns the observed neighborhood and true iff a is Aware.
func (a Awareness) Neighborhood() (Neighborhood, bool) {
	if a.Kind != Aware {
		return 0, false
	}
	return Neighborhood(a.Value), true
}

// IsAware, IsUnaware and IsConfused are the three predicate helpers the
// sanity-check table (spec.md §4.1) is written against.
func (a Awareness) IsAware() bool    { return a.Kind == Aware }
func (a Awareness) IsUnaware() bool  { return a.Kind == Unaware }
func (a Awareness) IsConfused() bool { return a.Kind == Confused }

func (a Awareness) String() string {
	switch a.Kind {
	case Aware:
		return fmt.Sprintf("A-%d", a.Value)
	case Confused:
		return fmt.Sprintf("C-%d", a.Value)
	default:
		return "UNA"
	}
}
