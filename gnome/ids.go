package gnome

import "fmt"

// GnomeId is an opaque 64-bit peer identity. GnomeId(0) is a reserved
// sentinel and is never handed out by an identity dispenser.
type GnomeId uint64

func (g GnomeId) String() string {
	return fmt.Sprintf("GID-%x", uint64(g))
}

// IsZero reports whether g is the reserved sentinel identity.
func (g GnomeId) IsZero() bool {
	return g == 0
}

// IdDispenser mints monotonically increasing GnomeIds. It replaces the
// source's process-wide mutable counter with an explicit value the
// supervisor owns and passes around, per DESIGN.md's identity-dispenser
// decision.
type IdDispenser struct {
	next uint64
}

// NewIdDispenser returns a dispenser whose first minted id is 1 (0 stays
// reserved).
func NewIdDispenser() *IdDispenser {
	return &IdDispenser{next: 1}
}

// Next mints the next GnomeId.
func (d *IdDispenser) Next() GnomeId {
	id := GnomeId(d.next)
	d.next++
	return id
}

// BlockID is a 64-bit fingerprint of a proposed block's data. BlockID(0) is
// the sentinel meaning "no proposal".
type BlockID uint64

func (b BlockID) String() string {
	return fmt.Sprintf("BID-%x", uint64(b))
}

// IsNone reports whether b is the "no proposal" sentinel.
func (b BlockID) IsNone() bool {
	return b == 0
}

// CastID identifies one of the 256 unicast/multicast/broadcast channel
// slots a swarm can have active at once.
type CastID uint8

// SwarmID identifies one of the (at most 256) swarms a supervisor hosts.
type SwarmID uint8

// Neighborhood is the 8-bit, monotonically-increasing-within-a-round
// propagation counter: in a non-confused round it is the number of
// fully-agreeing hops this peer has observed.
type Neighborhood uint8

func (n Neighborhood) String() string {
	return fmt.Sprintf("N-%d", uint8(n))
}
