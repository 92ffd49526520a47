package gnome

import "fmt"

// SwarmTime is a 32-bit logical clock shared by every gnome in a swarm. It
// is monotone non-decreasing across messages from a given neighbor, and
// wraps on overflow rather than panicking — see Inc and Sub.
type SwarmTime uint32

// Inc returns t advanced by one tick, wrapping from MaxUint32 back to 0.
func (t SwarmTime) Inc() SwarmTime {
	return t + 1
}

// Add returns t+d, wrapping on overflow.
func (t SwarmTime) Add(d SwarmTime) SwarmTime {
	return t + d
}

// Sub returns the wrapping difference t-other, matching the source's
// wrapping_sub semantics explicitly (§9 design note (e) flags the source's
// unguarded subtraction on wrapping SwarmTime — this type never leaves the
// direction ambiguous: callers that need "is t at least other ticks ahead"
// should use After, not compare Sub's result against zero).
func (t SwarmTime) Sub(other SwarmTime) SwarmTime {
	return t - other
}

// After reports whether t is strictly later than other, accounting for
// wraparound by treating the smaller of the two possible distances as
// authoritative. This is the guarded replacement for the source's bare
// subtraction.
func (t SwarmTime) After(other SwarmTime) bool {
	return t != other && SwarmTime(t-other) < SwarmTime(other-t)
}

// AtLeast reports whether t is other or later.
func (t SwarmTime) AtLeast(other SwarmTime) bool {
	return t == other || t.After(other)
}

func (t SwarmTime) String() string {
	return fmt.Sprintf("ST%010d", uint32(t))
}
