package gnome

// NeighborDiscovery paces how often this gnome asks a neighbor to forward
// a connect request on its behalf, grounded on
// original_source/src/gnome.rs's NeighborDiscovery/tick_and_check. It
// ticks once per round; once the counter reaches its threshold (or a
// previous attempt needs retrying) TickAndCheck returns true and the
// caller should send one ForwardConnectRequest.
type NeighborDiscovery struct {
	counter   uint16
	threshold uint16
	attempts  uint8
	tryNext   bool
	queried   []GnomeId
}

// NewNeighborDiscovery matches the source's Default impl: primed to fire
// on the very first tick, with 3 retry attempts in reserve.
func NewNeighborDiscovery(threshold uint16) *NeighborDiscovery {
	return &NeighborDiscovery{
		counter:   threshold,
		threshold: threshold,
		attempts:  3,
		tryNext:   true,
	}
}

// TickAndCheck advances the pacing counter by one round and reports
// whether this round should issue a discovery query: either the regular
// threshold was reached, or a previous attempt was flagged for retry and
// attempts remain.
func (d *NeighborDiscovery) TickAndCheck() bool {
	d.counter++
	if d.counter >= d.threshold {
		d.counter = 0
		d.attempts = 3
		d.tryNext = false
		return true
	}
	if d.tryNext && d.attempts > 0 {
		d.attempts--
		d.tryNext = false
		return true
	}
	return false
}

// RetryNext arms the next tick to retry immediately (used after a
// ForwardConnectFailed response) rather than waiting for the full
// threshold to elapse again.
func (d *NeighborDiscovery) RetryNext() {
	d.tryNext = true
}

// AlreadyQueried reports whether id has already been asked during the
// current discovery sweep.
func (d *NeighborDiscovery) AlreadyQueried(id GnomeId) bool {
	for _, q := range d.queried {
		if q == id {
			return true
		}
	}
	return false
}

// MarkQueried records id as asked during the current sweep.
func (d *NeighborDiscovery) MarkQueried(id GnomeId) {
	d.queried = append(d.queried, id)
}

// ResetQueried clears the sweep, letting every neighbor be asked again —
// used once every known neighbor has already been queried this sweep.
func (d *NeighborDiscovery) ResetQueried() {
	d.queried = d.queried[:0]
}
