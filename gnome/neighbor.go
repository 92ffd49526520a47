package gnome

import "fmt"

// Neighbor is this gnome's view of one connected peer: the channels that
// carry Messages to and from it, and the round-local state derived from
// what it has sent so far. A Neighbor belongs to exactly one of a Gnome's
// four neighbor sets (fast, slow, refreshed, new) at any instant.
type Neighbor struct {
	Id GnomeId

	inbox  <-chan Message
	outbox chan<- Message

	swarmTime     SwarmTime
	awareness     Awareness
	prevAwareness *Awareness

	proposalID   BlockID
	proposalData Data

	ourRequests       []NeighborRequest
	requests          []NeighborRequest
	requestPairs      []requestResponsePair
	receivedResponses []requestResponsePair
}

type requestResponsePair struct {
	request  NeighborRequest
	response NeighborResponse
}

// NewNeighbor wires a Neighbor to its inbound and outbound channels. The
// neighbor starts Unaware, matching the source's from_id_channel_time.
func NewNeighbor(id GnomeId, inbox <-chan Message, outbox chan<- Message, swarmTime SwarmTime) *Neighbor {
	return &Neighbor{
		Id:        id,
		inbox:     inbox,
		outbox:    outbox,
		swarmTime: swarmTime,
		awareness: UnawareState,
	}
}

// StartNewRound resets this neighbor to Unaware at the given swarm time,
// matching the source's set_swarm_time: a round boundary always clears
// whatever awareness carried over from the previous round.
func (n *Neighbor) StartNewRound(swarmTime SwarmTime) {
	n.awareness = UnawareState
	n.prevAwareness = nil
	n.swarmTime = swarmTime
}

// SendOut delivers msg to this neighbor's outbound channel. The call
// blocks if the channel is unbuffered and the receiving goroutine is
// behind; callers on a gnome's hot path should size outbox buffers to
// avoid stalling the whole scheduler on one slow peer.
func (n *Neighbor) SendOut(msg Message) {
	n.outbox <- msg
}

// RequestData queues req to be attached to this neighbor's next outbound
// message, front-loaded so the newest request is served first (matching
// the source's our_requests.push_front).
func (n *Neighbor) RequestData(req NeighborRequest) {
	n.ourRequests = append([]NeighborRequest{req}, n.ourRequests...)
}

// NextOurRequest pops the next outbound request queued for this neighbor,
// if any.
func (n *Neighbor) NextOurRequest() (NeighborRequest, bool) {
	if len(n.ourRequests) == 0 {
		return NeighborRequest{}, false
	}
	req := n.ourRequests[0]
	n.ourRequests = n.ourRequests[1:]
	return req, true
}

// NextReceivedResponse pops the oldest answer this neighbor sent back to
// one of our own earlier outbound requests (ourRequests), distinct from
// GetSpecializedData which serves answers we owe the neighbor to one of
// its requests.
func (n *Neighbor) NextReceivedResponse() (NeighborRequest, NeighborResponse, bool) {
	if len(n.receivedResponses) == 0 {
		return NeighborRequest{}, NeighborResponse{}, false
	}
	pair := n.receivedResponses[0]
	n.receivedResponses = n.receivedResponses[1:]
	return pair.request, pair.response, true
}

// NextIncomingRequest pops the next request this neighbor has asked of us
// and that a Gnome's request server still needs to answer.
func (n *Neighbor) NextIncomingRequest() (NeighborRequest, bool) {
	if len(n.requests) == 0 {
		return NeighborRequest{}, false
	}
	req := n.requests[0]
	n.requests = n.requests[1:]
	return req, true
}

// AddRequestedData queues resp as this gnome's answer to req, a request
// this neighbor asked of us, to be attached to a later outbound message
// through GetSpecializedData.
func (n *Neighbor) AddRequestedData(req NeighborRequest, resp NeighborResponse) {
	n.requestPairs = append([]requestResponsePair{{req, resp}}, n.requestPairs...)
}

// GetSpecializedData pops the oldest pending (request, response) pair
// this gnome owes this neighbor, matching the source's pop_back on a
// push_front queue (oldest-in, oldest-out).
func (n *Neighbor) GetSpecializedData() (NeighborRequest, NeighborResponse, bool) {
	if len(n.requestPairs) == 0 {
		return NeighborRequest{}, NeighborResponse{}, false
	}
	last := len(n.requestPairs) - 1
	pair := n.requestPairs[last]
	n.requestPairs = n.requestPairs[:last]
	return pair.request, pair.response, true
}

// TryRecv drains every Message currently queued on this neighbor's inbox
// without blocking. It reports:
//   - served: at least one message passed its sanity check
//   - sanityOK: no message failed its sanity check (a single failure
//     poisons the whole batch, matching the source's sanity_passed latch)
//   - newProposal: a brand-new proposal (not a repeat of the one already
//     known) was observed while gnomeAwareness was Unaware
//   - mustDrop: the inbox channel was closed and this neighbor is gone
func (n *Neighbor) TryRecv(gnomeAwareness Awareness, knownProposal BlockID) (served, sanityOK, newProposal, mustDrop bool) {
	sanityOK = true
	for {
		var msg Message
		var ok bool
		select {
		case msg, ok = <-n.inbox:
		default:
			return served, sanityOK, newProposal, mustDrop
		}
		if !ok {
			mustDrop = true
			return served, sanityOK, newProposal, mustDrop
		}

		awareness := msg.DerivedAwareness()
		if !n.sanityCheck(awareness, msg.SwarmTime, gnomeAwareness) {
			sanityOK = false
			continue
		}
		served = true

		n.swarmTime = msg.SwarmTime
		if awareness.IsUnaware() {
			n.prevAwareness = nil
		} else {
			prev := n.awareness
			n.prevAwareness = &prev
		}
		n.awareness = awareness

		switch msg.Payload.Kind {
		case KeepAlive:
			// nothing further to record.
		case BlockData:
			if !gnomeAwareness.IsUnaware() {
				if knownProposal != 0 && knownProposal != msg.Payload.BlockID {
					sanityOK = false
					continue
				}
			} else {
				newProposal = true
			}
			n.prevAwareness = nil
			n.proposalID = msg.Payload.BlockID
			n.proposalData = msg.Payload.BlockBody
		case RequestPayload:
			n.requests = append(n.requests, msg.Payload.Request)
		case ResponsePayload:
			n.receivedResponses = append(n.receivedResponses, requestResponsePair{msg.Payload.Request, msg.Payload.Response})
		}
	}
}

// sanityCheck is the receive-time gate from spec.md §4.1: it rejects
// stale swarm times, neighbors that fail to adopt confusion, neighbors
// that regress from aware to unaware, and neighborhood progressions that
// either backtrack or race too far ahead of this gnome's own view.
func (n *Neighbor) sanityCheck(awareness Awareness, swarmTime SwarmTime, gnomeAwareness Awareness) bool {
	if n.swarmTime.After(swarmTime) {
		return false
	}
	if gnomeAwareness.IsConfused() && awareness.IsAware() {
		return false
	}
	if gnomeAwareness.IsAware() && awareness.IsUnaware() {
		return false
	}

	if n.awareness.IsAware() && awareness.IsAware() {
		gnomeNeighborhood, isAware := gnomeAwareness.Neighborhood()
		if !isAware {
			return true
		}
		newNeighborhood, _ := awareness.Neighborhood()
		currentNeighborhood, _ := n.awareness.Neighborhood()

		newerThanTwoTurnsBefore := true
		if n.prevAwareness != nil {
			prevNeighborhood, ok := n.prevAwareness.Neighborhood()
			if ok {
				newerThanTwoTurnsBefore = newNeighborhood > prevNeighborhood
			}
		}

		backtrackSanity := newNeighborhood >= currentNeighborhood
		neighborhoodIncreaseSanity := newNeighborhood > currentNeighborhood || newerThanTwoTurnsBefore
		notTooAware := newNeighborhood <= gnomeNeighborhood+1

		return backtrackSanity && neighborhoodIncreaseSanity && notTooAware
	}
	return n.awareness.IsUnaware()
}

func (n *Neighbor) String() string {
	return fmt.Sprintf("Neighbor{%s,%s,%s}", n.Id, n.swarmTime, n.awareness)
}
