package gnome

import "testing"

func newConnectedNeighbor(id GnomeId) (*Neighbor, chan Message) {
	inbox := make(chan Message, 8)
	outbox := make(chan Message, 8)
	return NewNeighbor(id, inbox, outbox, SwarmTime(0)), inbox
}

func TestNeighborTryRecvServesKeepAlive(t *testing.T) {
	n, inbox := newConnectedNeighbor(1)
	inbox <- NewHeartbeat(SwarmTime(1), Neighborhood(0), SyncHeader())

	served, sanityOK, newProposal, mustDrop := n.TryRecv(UnawareState, BlockID(0))
	if !served || !sanityOK || newProposal || mustDrop {
		t.Fatalf("unexpected result: served=%v sanityOK=%v newProposal=%v mustDrop=%v", served, sanityOK, newProposal, mustDrop)
	}
	if n.swarmTime != SwarmTime(1) {
		t.Fatalf("expected swarm time advanced to 1, got %s", n.swarmTime)
	}
}

func TestNeighborTryRecvRejectsStaleSwarmTime(t *testing.T) {
	n, inbox := newConnectedNeighbor(1)
	n.swarmTime = SwarmTime(10)
	inbox <- NewHeartbeat(SwarmTime(5), Neighborhood(0), SyncHeader())

	_, sanityOK, _, _ := n.TryRecv(UnawareState, BlockID(0))
	if sanityOK {
		t.Fatal("expected stale swarm time to fail sanity check")
	}
}

func TestNeighborTryRecvNewProposalWhenGnomeUnaware(t *testing.T) {
	n, inbox := newConnectedNeighbor(1)
	data, _ := NewData([]byte("x"))
	inbox <- Message{SwarmTime: 1, Neighborhood: 0, Header: BlockHeader(BlockID(5)), Payload: BlockDataPayload(BlockID(5), data)}

	_, sanityOK, newProposal, _ := n.TryRecv(UnawareState, BlockID(0))
	if !sanityOK || !newProposal {
		t.Fatalf("expected new proposal detected, sanityOK=%v newProposal=%v", sanityOK, newProposal)
	}
	if n.proposalID != BlockID(5) {
		t.Fatalf("expected proposal id recorded, got %s", n.proposalID)
	}
}

func TestNeighborTryRecvRejectsConflictingProposalWhileAware(t *testing.T) {
	n, inbox := newConnectedNeighbor(1)
	data, _ := NewData([]byte("y"))
	inbox <- Message{SwarmTime: 1, Neighborhood: 0, Header: BlockHeader(BlockID(9)), Payload: BlockDataPayload(BlockID(9), data)}

	_, sanityOK, _, _ := n.TryRecv(AwareState(0), BlockID(1))
	if sanityOK {
		t.Fatal("expected conflicting proposal while already aware to fail sanity check")
	}
}

func TestNeighborTryRecvMustDropOnClosedChannel(t *testing.T) {
	inbox := make(chan Message)
	outbox := make(chan Message, 1)
	n := NewNeighbor(1, inbox, outbox, SwarmTime(0))
	close(inbox)

	_, _, _, mustDrop := n.TryRecv(UnawareState, BlockID(0))
	if !mustDrop {
		t.Fatal("expected closed inbox to signal mustDrop")
	}
}

func TestNeighborRequestDataQueuesFront(t *testing.T) {
	n, _ := newConnectedNeighbor(1)
	n.RequestData(NeighborRequest{Kind: ListingRequest})
	n.RequestData(NeighborRequest{Kind: ProposalRequest})

	req, ok := n.NextOurRequest()
	if !ok || req.Kind != ProposalRequest {
		t.Fatalf("expected most recently queued request first, got %+v ok=%v", req, ok)
	}
}

func TestNeighborSpecializedDataFIFO(t *testing.T) {
	n, _ := newConnectedNeighbor(1)
	n.AddRequestedData(NeighborRequest{Kind: ListingRequest}, NeighborResponse{Kind: Listing, ListingCount: 1})
	n.AddRequestedData(NeighborRequest{Kind: ProposalRequest}, NeighborResponse{Kind: ProposalResponse})

	req, _, ok := n.GetSpecializedData()
	if !ok || req.Kind != ListingRequest {
		t.Fatalf("expected oldest pair served first, got %+v ok=%v", req, ok)
	}
}

func TestNeighborTryRecvRoutesResponseToReceivedQueueNotSpecialized(t *testing.T) {
	n, inbox := newConnectedNeighbor(1)
	inbox <- Message{
		SwarmTime: 1,
		Header:    SyncHeader(),
		Payload:   ResponseMessagePayload(NeighborRequest{Kind: ConnectRequest}, NeighborResponse{Kind: ConnectResponse, ConnectSlot: 7}),
	}

	_, sanityOK, _, _ := n.TryRecv(UnawareState, BlockID(0))
	if !sanityOK {
		t.Fatal("expected response message to pass sanity")
	}

	if _, _, ok := n.GetSpecializedData(); ok {
		t.Fatal("a response to our own request must not be queued as specialized data owed back to the sender")
	}
	req, resp, ok := n.NextReceivedResponse()
	if !ok || resp.Kind != ConnectResponse || resp.ConnectSlot != 7 || req.Kind != ConnectRequest {
		t.Fatalf("expected ConnectResponse slot 7 in received-response queue, got %+v %+v ok=%v", req, resp, ok)
	}
}

func TestNeighborStartNewRoundResetsAwareness(t *testing.T) {
	n, _ := newConnectedNeighbor(1)
	n.awareness = AwareState(3)
	n.StartNewRound(SwarmTime(100))

	if !n.awareness.IsUnaware() {
		t.Fatalf("expected awareness reset to Unaware, got %s", n.awareness)
	}
	if n.swarmTime != SwarmTime(100) {
		t.Fatalf("expected swarm time set to 100, got %s", n.swarmTime)
	}
}
