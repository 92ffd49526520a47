package gnome

import "math"

// NextState aggregates what every neighbor reported during one tick into
// the parameters this gnome will adopt for its next message: the slowest
// swarm time seen, the narrowest observed neighborhood, whether a
// conflicting proposal triggers confusion, and which neighbors currently
// sit in each of the Unaware/Aware/Confused buckets.
//
// original_source carries this logic across two mutually inconsistent
// files (next_state.rs's HashSet-bucketed aggregator and gnome.rs's
// direct field access via a different NextState API); NextState here
// reconciles them into one consistent aggregator, documented as a
// resolved Open Question in DESIGN.md.
type NextState struct {
	LastAcceptedBlock BlockID

	swarmDiameter Neighborhood

	becomeConfused    bool
	awarenessDiameter Neighborhood
	confusionDiameter uint8
	swarmTime         SwarmTime
	swarmTimeMin      SwarmTime
	proposalID        BlockID
	proposalData      Data

	confusedNeighbors map[GnomeId]struct{}
	awareNeighbors    map[GnomeId]struct{}
	unawareNeighbors  map[GnomeId]struct{}
}

const swarmTimeUnset = SwarmTime(math.MaxUint32)

// NewNextState starts a fresh aggregation pass. swarmTimeMin is the floor
// used if no neighbor reports anything this tick (typically the gnome's
// own current swarm time).
func NewNextState(swarmTimeMin SwarmTime, swarmDiameter Neighborhood) *NextState {
	return &NextState{
		swarmDiameter:     swarmDiameter,
		awarenessDiameter: math.MaxUint8,
		swarmTime:         swarmTimeUnset,
		swarmTimeMin:      swarmTimeMin,
		confusedNeighbors: make(map[GnomeId]struct{}),
		awareNeighbors:    make(map[GnomeId]struct{}),
		unawareNeighbors:  make(map[GnomeId]struct{}),
	}
}

// Update folds one neighbor's current awareness into the aggregate,
// moving it into the matching bucket and detecting a conflicting
// proposal id, which arms becomeConfused for this tick.
func (s *NextState) Update(n *Neighbor) {
	switch n.awareness.Kind {
	case Unaware:
		s.unawareNeighbors[n.Id] = struct{}{}
		delete(s.awareNeighbors, n.Id)
		delete(s.confusedNeighbors, n.Id)
		if n.swarmTime < s.swarmTime {
			s.swarmTime = n.swarmTime
		}
	case Aware:
		if n.swarmTime < s.swarmTime {
			s.swarmTime = n.swarmTime
		}
		s.awareNeighbors[n.Id] = struct{}{}
		delete(s.unawareNeighbors, n.Id)
		delete(s.confusedNeighbors, n.Id)

		if !s.proposalID.IsNone() {
			if s.proposalID != n.proposalID {
				s.becomeConfused = true
				s.confusionDiameter = uint8(s.swarmDiameter) * 2
			}
		} else if !n.proposalID.IsNone() {
			s.proposalID = n.proposalID
			s.proposalData = n.proposalData
		}
		neighborhood, _ := n.awareness.Neighborhood()
		if neighborhood < s.awarenessDiameter {
			s.awarenessDiameter = neighborhood
		}
	case Confused:
		if n.swarmTime < s.swarmTime {
			s.swarmTime = n.swarmTime
		}
		if n.awareness.Value > s.confusionDiameter {
			s.confusionDiameter = n.awareness.Value
		}
		s.confusedNeighbors[n.Id] = struct{}{}
		delete(s.awareNeighbors, n.Id)
		delete(s.unawareNeighbors, n.Id)
	}
}

// NextParams returns the swarm time, neighborhood, block id and data this
// gnome should adopt for its next outbound message, given everything
// folded in via Update since the last reset.
func (s *NextState) NextParams() (SwarmTime, Neighborhood, BlockID, Data) {
	nextTime := s.swarmTimeMin.Inc()
	if s.swarmTime != swarmTimeUnset {
		nextTime = s.swarmTime.Inc()
	}
	neighborhood := Neighborhood(0)
	if !s.proposalID.IsNone() && s.awarenessDiameter != math.MaxUint8 {
		neighborhood = s.awarenessDiameter + 1
	}
	return nextTime, neighborhood, s.proposalID, s.proposalData
}

// DerivedAwareness reports the Awareness this gnome should adopt for its
// next outbound message: Confused wins outright, otherwise Aware(0) if a
// proposal is carried, otherwise Unaware.
func (s *NextState) DerivedAwareness() Awareness {
	if s.BecomeConfused() {
		return ConfusedState(s.ConfusionCountdown())
	}
	if !s.proposalID.IsNone() {
		return AwareState(0)
	}
	return UnawareState
}

// BecomeConfused reports whether this tick's aggregate should drive the
// gnome itself into Confused: either a conflicting proposal was observed
// directly (becomeConfused) or a neighbor is already reporting Confused
// (AnyConfused). Gating on becomeConfused alone misses the canonical
// two-Aware-neighbors-disagree case, which only sets becomeConfused and
// never touches confusedNeighbors.
func (s *NextState) BecomeConfused() bool {
	return s.becomeConfused || s.AnyConfused()
}

// ConfusionCountdown returns the countdown a newly-Confused gnome should
// start from: the largest countdown observed among confused neighbors, or
// 2*swarmDiameter if confusion was derived locally from conflicting
// proposals rather than inherited from a neighbor.
func (s *NextState) ConfusionCountdown() uint8 {
	diameter := s.confusionDiameter
	if diameter == 0 {
		diameter = uint8(s.swarmDiameter) * 2
	}
	return diameter
}

// ResetForNextTurn clears the per-tick buckets ahead of the next
// aggregation pass. When roundEnded is true the carried proposal is
// whatever the round engine decided to propose next; otherwise the
// current in-flight proposal carries over unchanged.
func (s *NextState) ResetForNextTurn(roundEnded bool, blockID BlockID, data Data) {
	s.confusedNeighbors = make(map[GnomeId]struct{})
	s.awareNeighbors = make(map[GnomeId]struct{})
	s.unawareNeighbors = make(map[GnomeId]struct{})
	s.swarmTime = swarmTimeUnset
	s.becomeConfused = false
	s.awarenessDiameter = math.MaxUint8
	if roundEnded {
		s.proposalID = blockID
		s.proposalData = data
	}
}

func (s *NextState) AllConfused() bool {
	return len(s.unawareNeighbors) == 0 && len(s.awareNeighbors) == 0 && len(s.confusedNeighbors) > 0
}

func (s *NextState) AllAware() bool {
	return len(s.awareNeighbors) > 0 && len(s.unawareNeighbors) == 0 && len(s.confusedNeighbors) == 0
}

func (s *NextState) AllUnaware() bool {
	return len(s.unawareNeighbors) > 0 && len(s.awareNeighbors) == 0 && len(s.confusedNeighbors) == 0
}

func (s *NextState) AnyConfused() bool {
	return len(s.confusedNeighbors) > 0
}

func (s *NextState) AnyAware() bool {
	return len(s.awareNeighbors) > 0
}
