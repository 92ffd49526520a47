package gnome

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestGnome(id GnomeId) (*Gnome, chan Request, chan Response) {
	requests := make(chan Request, 8)
	responses := make(chan Response, 8)
	g := NewGnome(id, SwarmID(1), requests, responses, DefaultNetworkSettings(), DefaultConfig(), nil, nil)
	return g, requests, responses
}

// connectGnomes wires two Gnomes together with channel-backed Neighbors
// in both directions, the in-process stand-in for the out-of-scope
// networking substrate.
func connectGnomes(a, b *Gnome) {
	aToB := make(chan Message, 32)
	bToA := make(chan Message, 32)
	a.AddNeighbor(NewNeighbor(b.Id, bToA, aToB, a.swarmTime))
	b.AddNeighbor(NewNeighbor(a.Id, aToB, bToA, b.swarmTime))
}

func TestGnomeSingleSilentNeighborEmitsBlock(t *testing.T) {
	g, requests, responses := newTestGnome(1)
	// A quiet neighbor that never talks back; with a swarm diameter of 0
	// the round counts as fully propagated at neighborhood 0 >= 0, so the
	// gnome commits its own proposal on the first round check without any
	// traffic from a real peer.
	g.cfg.SwarmDiameter = 0
	inbox := make(chan Message, 1)
	outbox := make(chan Message, 1)
	g.AddNeighbor(NewNeighbor(GnomeId(2), inbox, outbox, g.swarmTime))

	data, err := NewData([]byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error building data: %v", err)
	}
	requests <- Request{Kind: AddDataRequest, Proposal: data}
	if g.serveUserRequests() {
		t.Fatal("AddData must not request shutdown")
	}
	g.popNextProposal()
	if g.blockId != data.BlockID() {
		t.Fatalf("expected pending proposal adopted, got %s", g.blockId)
	}

	if !g.checkIfNewRound() {
		t.Fatal("expected round to close immediately at diameter 0")
	}

	select {
	case resp := <-responses:
		if resp.Kind != BlockResponse || resp.BlockID != data.BlockID() {
			t.Fatalf("expected Block response with matching id, got %+v", resp)
		}
	default:
		t.Fatal("expected a Block response to be emitted")
	}
}

func TestGnomeRoundTimeoutWithNoProposalResetsNeighborhood(t *testing.T) {
	g, _, _ := newTestGnome(1)
	g.cfg.SwarmDiameter = 5
	g.neighborhood = 2
	g.swarmTime = SwarmTime(20)
	g.roundStart = SwarmTime(0) // 20 - 0 >= 2*5

	ended := g.checkIfNewRound()
	if !ended {
		t.Fatal("expected round to end on timeout")
	}
	if g.neighborhood != 0 {
		t.Fatalf("expected neighborhood reset to 0 on empty-proposal round end, got %s", g.neighborhood)
	}
	if g.roundStart != g.swarmTime {
		t.Fatalf("expected round_start advanced to current swarm time, got %s", g.roundStart)
	}
}

func TestGnomeUnacceptedProposalRequeuedForFairness(t *testing.T) {
	g, _, responses := newTestGnome(1)
	g.cfg.SwarmDiameter = 3
	g.neighborhood = 3 // == diameter: all aware
	mine, _ := NewData([]byte("mine"))
	g.blockId = mine.BlockID()
	g.data = mine
	g.myProposedBlock = &mine

	// Someone else's proposal got aggregated into next_state instead of
	// ours surviving to be accepted: simulate by pre-seeding a different
	// accepted id before the round closes out.
	other, _ := NewData([]byte("other"))
	g.blockId = other.BlockID()

	g.checkIfNewRound()

	select {
	case resp := <-responses:
		if resp.BlockID != other.BlockID() {
			t.Fatalf("expected the accepted block to be other's, got %s", resp.BlockID)
		}
	default:
		t.Fatal("expected a Block response")
	}
	// Our unaccepted proposal gets requeued, then immediately popped back
	// off as the very next round's own proposal — fairness means it is
	// never dropped, not that it waits behind nothing.
	if g.blockId != mine.BlockID() {
		t.Fatalf("expected requeued proposal adopted for the next round, got %s", g.blockId)
	}
}

func TestGnomeConfusionFromConflictingProposals(t *testing.T) {
	s := NewNextState(SwarmTime(0), DefaultSwarmDiameter)
	a := newTestNeighbor(10)
	a.swarmTime = SwarmTime(1)
	a.awareness = AwareState(0)
	a.proposalID = BlockID(111)
	s.Update(a)

	b := newTestNeighbor(11)
	b.swarmTime = SwarmTime(1)
	b.awareness = AwareState(0)
	b.proposalID = BlockID(222)
	s.Update(b)

	if !s.DerivedAwareness().IsConfused() {
		t.Fatal("expected two neighbors proposing different blocks to derive Confused")
	}
}

func TestGnomeConflictingProposalsSuppressCommitUntilCountdownElapses(t *testing.T) {
	g, _, responses := newTestGnome(1)
	g.cfg.SwarmDiameter = 3
	g.neighborhood = 3 // would otherwise be fully propagated

	a := newTestNeighbor(2)
	a.swarmTime = SwarmTime(1)
	a.awareness = AwareState(1)
	a.proposalID = BlockID(111)
	g.nextState.Update(a)

	b := newTestNeighbor(3)
	b.swarmTime = SwarmTime(1)
	b.awareness = AwareState(1)
	b.proposalID = BlockID(222)
	g.nextState.Update(b)

	g.updateState()
	if g.confused == 0 {
		t.Fatal("expected conflicting proposals to arm the confusion countdown")
	}
	wantCountdown := g.confused

	msg := g.prepareMessage()
	if msg.Header.Kind != Confused {
		t.Fatalf("expected a Confused header while confused, got %s", msg.Header)
	}
	if !g.currentAwareness().IsConfused() {
		t.Fatal("expected currentAwareness to report Confused")
	}

	for i := uint8(0); i < wantCountdown-1; i++ {
		if ended := g.checkIfNewRound(); ended {
			t.Fatalf("expected no round boundary while confused, tick %d", i)
		}
		select {
		case resp := <-responses:
			t.Fatalf("expected no commit while confused, got %+v", resp)
		default:
		}
	}
	if g.confused != 1 {
		t.Fatalf("expected countdown at 1 after %d decrements, got %d", wantCountdown-1, g.confused)
	}

	if ended := g.checkIfNewRound(); ended {
		t.Fatal("the final decrementing tick itself does not open a new round")
	}
	if g.confused != 0 {
		t.Fatalf("expected countdown to reach 0, got %d", g.confused)
	}
	if !g.blockId.IsNone() {
		t.Fatalf("expected conflicting proposal dropped once countdown elapsed, got %s", g.blockId)
	}
}

func TestGnomeForwardConnectFailsWithFewerThanTwoNeighbors(t *testing.T) {
	g, _, _ := newTestGnome(1)
	inbox := make(chan Message, 1)
	outbox := make(chan Message, 1)
	origin := NewNeighbor(GnomeId(2), inbox, outbox, g.swarmTime)
	g.AddNeighbor(origin)

	g.startOngoingRequest(origin.Id, DefaultNetworkSettings())

	req, resp, ok := origin.GetSpecializedData()
	if !ok {
		t.Fatal("expected ForwardConnectFailed queued for origin")
	}
	if resp.Kind != ForwardConnectFailed {
		t.Fatalf("expected ForwardConnectFailed, got %s (req %s)", resp.Kind, req.Kind)
	}
}

func TestGnomeAnswerConnectRequestReportsOwnSettingsWhenUnconnected(t *testing.T) {
	g, _, _ := newTestGnome(1)
	mediator := NewNeighbor(GnomeId(2), make(chan Message, 1), make(chan Message, 1), g.swarmTime)
	g.AddNeighbor(mediator)

	req := NeighborRequest{Kind: ConnectRequest, ConnectSlot: 5, ConnectOrigin: GnomeId(99), ConnectSettings: DefaultNetworkSettings()}
	g.answerConnectRequest(mediator, req)

	_, resp, ok := mediator.GetSpecializedData()
	if !ok || resp.Kind != ConnectResponse || resp.ConnectSlot != 5 {
		t.Fatalf("expected ConnectResponse for slot 5, got %+v ok=%v", resp, ok)
	}
}

func TestGnomeAnswerConnectRequestDeclinesWhenAlreadyNeighbors(t *testing.T) {
	g, _, _ := newTestGnome(1)
	mediator := NewNeighbor(GnomeId(2), make(chan Message, 1), make(chan Message, 1), g.swarmTime)
	g.AddNeighbor(mediator)
	origin := NewNeighbor(GnomeId(99), make(chan Message, 1), make(chan Message, 1), g.swarmTime)
	g.fastNeighbors = append(g.fastNeighbors, origin)

	req := NeighborRequest{Kind: ConnectRequest, ConnectSlot: 5, ConnectOrigin: GnomeId(99)}
	g.answerConnectRequest(mediator, req)

	_, resp, ok := mediator.GetSpecializedData()
	if !ok || resp.Kind != AlreadyConnected {
		t.Fatalf("expected AlreadyConnected, got %+v ok=%v", resp, ok)
	}
}

func TestGnomeHandleReceivedResponseFeedsOngoingTable(t *testing.T) {
	g, _, _ := newTestGnome(1)
	candidate := NewNeighbor(GnomeId(3), make(chan Message, 1), make(chan Message, 1), g.swarmTime)

	id, err := g.ongoing.Add(GnomeId(2), DefaultNetworkSettings(), candidate.Id, g.swarmTime)
	if err != nil {
		t.Fatalf("unexpected error registering ongoing request: %v", err)
	}

	settings := DefaultNetworkSettings()
	settings.PublicPort = 4242
	g.handleReceivedResponse(candidate, NeighborRequest{Kind: ConnectRequest}, NeighborResponse{Kind: ConnectResponse, ConnectSlot: id, ConnectSettings: settings})

	req, ok := g.ongoing.Get(id)
	if !ok || req.Response == nil || req.Response.PublicPort != 4242 {
		t.Fatalf("expected ongoing request's response populated, got %+v ok=%v", req, ok)
	}
}

func TestGnomeHandleReceivedResponseForwardsSettingsOnSuccess(t *testing.T) {
	g, _, _ := newTestGnome(1)
	settingsOut := make(chan NetworkSettingsEvent, 1)
	g.SetSettingsOut(settingsOut)
	origin := NewNeighbor(GnomeId(2), make(chan Message, 1), make(chan Message, 1), g.swarmTime)

	peerSettings := DefaultNetworkSettings()
	peerSettings.PublicPort = 7777
	g.handleReceivedResponse(origin, NeighborRequest{Kind: ForwardConnectRequest}, NeighborResponse{Kind: ForwardConnectResponse, ForwardConnectSettings: peerSettings})

	select {
	case ev := <-settingsOut:
		if ev.Peer == nil || ev.Peer.PublicPort != 7777 {
			t.Fatalf("expected peer settings with port 7777, got %+v", ev)
		}
	default:
		t.Fatal("expected a network settings event emitted")
	}
}

func TestGnomeHandleReceivedResponseEscalatesForwardConnectFailed(t *testing.T) {
	g, _, responses := newTestGnome(1)
	mediator := NewNeighbor(GnomeId(2), make(chan Message, 1), make(chan Message, 1), g.swarmTime)

	g.handleReceivedResponse(mediator, NeighborRequest{Kind: ForwardConnectRequest}, NeighborResponse{Kind: ForwardConnectFailed})

	select {
	case resp := <-responses:
		if resp.Kind != ConnectFailedResponse || resp.FailedOrigin != mediator.Id {
			t.Fatalf("expected ConnectFailed response naming mediator, got %+v", resp)
		}
	default:
		t.Fatal("expected a ConnectFailed response surfaced")
	}
}

func TestGnomeStartUnicastOffersFreeCastIDs(t *testing.T) {
	g, _, _ := newTestGnome(1)
	dst := NewNeighbor(GnomeId(2), make(chan Message, 1), make(chan Message, 1), g.swarmTime)
	g.AddNeighbor(dst)
	g.activeUnicasts[CastID(3)] = struct{}{}

	g.startUnicast(dst.Id)

	req, ok := dst.NextOurRequest()
	if !ok || req.Kind != UnicastRequest {
		t.Fatalf("expected UnicastRequest queued, got %+v ok=%v", req, ok)
	}
	if len(req.UnicastCastIDs) != 255 {
		t.Fatalf("expected 255 free cast ids offered, got %d", len(req.UnicastCastIDs))
	}
	for _, id := range req.UnicastCastIDs {
		if id == CastID(3) {
			t.Fatal("expected already-active cast id 3 excluded from offer")
		}
	}
}

func TestGnomeForwardConnectExhaustionReleasesSlot(t *testing.T) {
	g, _, _ := newTestGnome(1)
	origin := NewNeighbor(GnomeId(2), make(chan Message, 1), make(chan Message, 1), g.swarmTime)
	candidate := NewNeighbor(GnomeId(3), make(chan Message, 1), make(chan Message, 1), g.swarmTime)
	g.AddNeighbor(origin)
	g.fastNeighbors = append(g.fastNeighbors, candidate)

	g.startOngoingRequest(origin.Id, DefaultNetworkSettings())
	if len(g.ongoing.IDs()) != 1 {
		t.Fatalf("expected one ongoing request registered, got %d", len(g.ongoing.IDs()))
	}

	id := g.ongoing.IDs()[0]
	req, ok := g.ongoing.Get(id)
	if !ok {
		t.Fatal("expected ongoing request present")
	}
	g.failOngoingRequest(id, req)

	if len(g.ongoing.IDs()) != 0 {
		t.Fatal("expected slot released after exhaustion")
	}
	_, _, ok = origin.GetSpecializedData()
	if !ok {
		t.Fatal("expected ForwardConnectFailed delivered to origin")
	}
}
