package gnome

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultSwarmDiameter is the number of hops a round's message must
// travel, in the worst case, to reach every gnome in the swarm.
const DefaultSwarmDiameter = Neighborhood(7)

// DefaultHeartbeatPeriod is how often a gnome re-evaluates its round
// state absent any neighbor traffic, matching original_source's 500ms
// timeout_duration.
const DefaultHeartbeatPeriod = 500 * time.Millisecond

// DefaultDiscoveryThreshold paces NeighborDiscovery.
const DefaultDiscoveryThreshold = uint16(1000)

// DefaultBandwidthPeriod is the window each BandwidthMonitor slot covers.
const DefaultBandwidthPeriod = time.Second

// Metrics receives lifecycle events a Gnome observes. A nil Metrics is
// valid everywhere; callers that care wire a concrete implementation (see
// the metrics package) without gnome importing it back.
type Metrics interface {
	RoundCommitted(id BlockID)
	NeighborDropped(reason string)
	Confused()
	OngoingRequestFailed()
	BandwidthAverage(tokensPerPeriod uint64)
}

type noopMetrics struct{}

func (noopMetrics) RoundCommitted(BlockID)  {}
func (noopMetrics) NeighborDropped(string)  {}
func (noopMetrics) Confused()               {}
func (noopMetrics) OngoingRequestFailed()   {}
func (noopMetrics) BandwidthAverage(uint64) {}

// Config tunes the knobs spec.md leaves as swarm-wide constants.
type Config struct {
	SwarmDiameter      Neighborhood
	HeartbeatPeriod    time.Duration
	DiscoveryThreshold uint16
	BandwidthPeriod    time.Duration
}

// DefaultConfig returns the tunables original_source ships with.
func DefaultConfig() Config {
	return Config{
		SwarmDiameter:      DefaultSwarmDiameter,
		HeartbeatPeriod:    DefaultHeartbeatPeriod,
		DiscoveryThreshold: DefaultDiscoveryThreshold,
		BandwidthPeriod:    DefaultBandwidthPeriod,
	}
}

// Gnome is one peer's agreement and neighbor-management engine. It owns
// every piece of mutable state involved in reaching consensus on a
// round's block and is driven exclusively through its Requests channel
// and the Neighbors it is handed; nothing else may touch it concurrently.
type Gnome struct {
	Id       GnomeId
	SwarmId  SwarmID
	cfg      Config
	log      *slog.Logger
	metrics  Metrics

	neighborhood Neighborhood
	swarmTime    SwarmTime
	roundStart   SwarmTime
	confused     uint8 // remaining confusion countdown; 0 means not confused

	requests  <-chan Request
	responses chan<- Response

	fastNeighbors      []*Neighbor
	slowNeighbors      []*Neighbor
	newNeighbors       []*Neighbor
	refreshedNeighbors []*Neighbor

	blockId         BlockID
	data            Data
	myProposedBlock *Data
	proposals       []Data

	nextState *NextState

	activeUnicasts map[CastID]struct{}
	sendImmediate  bool

	networkSettings NetworkSettings
	ongoing         *OngoingRequestTable
	discovery       *NeighborDiscovery
	bandwidth       *BandwidthMonitor

	settingsOut chan<- NetworkSettingsEvent
	bandwidthIn <-chan uint64

	roundID string
}

// NewGnome constructs a Gnome with no neighbors yet. Callers add them with
// AddNeighbor before calling Run.
func NewGnome(id GnomeId, swarmId SwarmID, requests <-chan Request, responses chan<- Response, settings NetworkSettings, cfg Config, log *slog.Logger, metrics Metrics) *Gnome {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Gnome{
		Id:              id,
		SwarmId:         swarmId,
		cfg:             cfg,
		log:             log.With("gnome", id.String()),
		metrics:         metrics,
		requests:        requests,
		responses:       responses,
		nextState:       NewNextState(0, cfg.SwarmDiameter),
		activeUnicasts:  make(map[CastID]struct{}),
		networkSettings: settings,
		ongoing:         NewOngoingRequestTable(),
		discovery:       NewNeighborDiscovery(cfg.DiscoveryThreshold),
		bandwidth:       NewBandwidthMonitor(cfg.BandwidthPeriod),
	}
}

// SetSettingsOut wires the outbound network-settings channel (spec.md §6)
// a transport listens on for connect decisions. Optional: a Gnome with no
// wired channel simply drops these events, matching every other
// best-effort outbound channel in this package.
func (g *Gnome) SetSettingsOut(ch chan<- NetworkSettingsEvent) {
	g.settingsOut = ch
}

// SetBandwidthIn wires the inbound bandwidth channel (spec.md §6): the
// caller pushes observed token counts (bytes sent, messages relayed,
// whatever unit it tracks) and the Gnome folds them into its
// BandwidthMonitor every tick, non-blockingly.
func (g *Gnome) SetBandwidthIn(ch <-chan uint64) {
	g.bandwidthIn = ch
}

func (g *Gnome) emitSettings(peer *NetworkSettings) {
	if g.settingsOut == nil {
		return
	}
	event := NetworkSettingsEvent{Own: g.networkSettings, Peer: peer}
	select {
	case g.settingsOut <- event:
	default:
		g.log.Warn("dropping network settings event, channel full", "event", event.String())
	}
}

func (g *Gnome) drainBandwidth() {
	if g.bandwidthIn == nil {
		return
	}
	for {
		select {
		case tokens, ok := <-g.bandwidthIn:
			if !ok {
				g.bandwidthIn = nil
				return
			}
			g.bandwidth.Update(tokens)
		default:
			return
		}
	}
}

// AddNeighbor enrolls n. A neighbor added while the fast and slow sets are
// both empty joins the fast set directly; any other addition waits in new
// until a round boundary with no proposal flushes it in, matching the
// source's add_neighbor.
func (g *Gnome) AddNeighbor(n *Neighbor) {
	if len(g.fastNeighbors) == 0 && len(g.slowNeighbors) == 0 {
		g.fastNeighbors = append(g.fastNeighbors, n)
	} else {
		g.newNeighbors = append(g.newNeighbors, n)
	}
}

// DropNeighbor removes id from whichever set currently holds it.
func (g *Gnome) DropNeighbor(id GnomeId) {
	g.fastNeighbors = removeNeighbor(g.fastNeighbors, id)
	g.slowNeighbors = removeNeighbor(g.slowNeighbors, id)
	g.refreshedNeighbors = removeNeighbor(g.refreshedNeighbors, id)
	g.newNeighbors = removeNeighbor(g.newNeighbors, id)
}

func removeNeighbor(set []*Neighbor, id GnomeId) []*Neighbor {
	for i, n := range set {
		if n.Id == id {
			return append(set[:i], set[i+1:]...)
		}
	}
	return set
}

func findNeighbor(set []*Neighbor, id GnomeId) (*Neighbor, bool) {
	for _, n := range set {
		if n.Id == id {
			return n, true
		}
	}
	return nil, false
}

// Run drives the round engine until ctx is cancelled or a Disconnect
// request arrives. It replaces the source's thread::spawn-based
// heartbeat timer with a context-scoped goroutine supervised by an
// errgroup, matching the ambient lifecycle pattern this module's ambient
// stack borrows from the teacher's supervisor loops.
func (g *Gnome) Run(ctx context.Context) error {
	for len(g.fastNeighbors) == 0 && len(g.slowNeighbors) == 0 {
		if g.serveUserRequests() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	g.log.Info("gnome has neighbors, starting round engine")

	grp, ctx := errgroup.WithContext(ctx)
	ctx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	timeout := make(chan struct{}, 1)
	grp.Go(func() error { return g.heartbeatLoop(ctx, timeout) })

	g.sendAll()

	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return grp.Wait()
		case <-tick.C:
			if g.serveUserRequests() {
				stopHeartbeat()
				grp.Wait()
				return nil
			}
			g.drainBandwidth()
			g.metrics.BandwidthAverage(g.bandwidth.Average())
			g.serveNeighborsRequests()
			fastAdvance, fastNewProposal := g.tryRecv(true)
			slowAdvance, slowNewProposal := g.tryRecv(false)

			var timedOut bool
			select {
			case <-timeout:
				timedOut = true
			default:
			}

			advance := fastAdvance || slowAdvance
			newProposal := fastNewProposal || slowNewProposal

			idle := len(g.fastNeighbors) == 0 && len(g.slowNeighbors) == 0 && len(g.refreshedNeighbors) == 0
			if advance || g.sendImmediate || (timedOut && !idle) {
				g.updateState()
				if !newProposal && !g.sendImmediate {
					g.swapNeighbors()
					g.sendSpecialized(true)
					g.sendSpecialized(false)
				} else {
					g.concatNeighbors()
					g.sendAll()
				}
				g.sendImmediate = false
				if g.checkIfNewRound() && g.discovery.TickAndCheck() && g.bandwidth.Allow() {
					g.queryForNewNeighbors()
				}
			}
		}
	}
}

func (g *Gnome) heartbeatLoop(ctx context.Context, fire chan<- struct{}) error {
	ticker := time.NewTicker(g.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			select {
			case fire <- struct{}{}:
			default:
			}
		}
	}
}

// serveUserRequests drains at most one pending supervisor request per
// tick, mirroring try_recv's non-blocking single-pop in the source, and
// reports whether the gnome should shut down.
func (g *Gnome) serveUserRequests() bool {
	select {
	case req, ok := <-g.requests:
		if !ok {
			return true
		}
		return g.applyRequest(req)
	default:
		return false
	}
}

func (g *Gnome) applyRequest(req Request) (exit bool) {
	switch req.Kind {
	case DisconnectRequest:
		return true
	case StatusRequest:
		g.emitStatus()
	case AddDataRequest:
		g.proposals = append([]Data{req.Proposal}, g.proposals...)
	case AddNeighborRequest:
		g.AddNeighbor(NewNeighbor(req.NewNeighborId, req.NewNeighborInbox, req.NewNeighborOutbox, g.swarmTime))
	case AskDataRequest:
		if n, ok := findNeighbor(g.fastNeighbors, req.AskTarget); ok {
			n.RequestData(req.AskRequest)
		} else if n, ok := findNeighbor(g.slowNeighbors, req.AskTarget); ok {
			n.RequestData(req.AskRequest)
		}
	case SendDataRequest:
		if n, ok := findNeighbor(g.fastNeighbors, req.SendTarget); ok {
			n.AddRequestedData(req.SendRequest, req.SendResponse)
		} else if n, ok := findNeighbor(g.slowNeighbors, req.SendTarget); ok {
			n.AddRequestedData(req.SendRequest, req.SendResponse)
		}
	case SetAddressRequest:
		g.networkSettings.PublicIP = req.Address
	case SetPortRequest:
		g.networkSettings.SetPort(req.Port)
	case SetNatRequest:
		g.networkSettings.NatKind = req.Nat
	case StartUnicastRequest:
		g.startUnicast(req.UnicastTarget)
	}
	return false
}

// startUnicast implements spec.md §4.8's StartUnicast: offer dst every
// CastID this gnome doesn't already believe is in use for a unicast
// channel, letting dst pick one back in a Unicast response.
func (g *Gnome) startUnicast(dst GnomeId) {
	n, ok := findNeighbor(g.fastNeighbors, dst)
	if !ok {
		n, ok = findNeighbor(g.slowNeighbors, dst)
	}
	if !ok {
		return
	}
	candidates := make([]CastID, 0, 256-len(g.activeUnicasts))
	for id := 0; id <= 255; id++ {
		cid := CastID(id)
		if _, taken := g.activeUnicasts[cid]; !taken {
			candidates = append(candidates, cid)
		}
	}
	n.RequestData(NeighborRequest{Kind: UnicastRequest, UnicastSwarmID: g.SwarmId, UnicastCastIDs: candidates})
}

func (g *Gnome) emitStatus() {
	status := fmt.Sprintf("%s %s %s %d", g.swarmTime, g.blockId, g.neighborhood, len(g.fastNeighbors))
	g.respond(NewStatusResponse(status))
}

func (g *Gnome) respond(r Response) {
	select {
	case g.responses <- r:
	default:
		g.log.Warn("dropping response, supervisor channel full", "response", r.String())
	}
}

// serveNeighborsRequests answers ongoing forwarded-connect requests, then
// drains every fast and slow neighbor's queued traffic through
// drainNeighborTraffic: forwarded-connect and connect requests are handled
// locally, and every other neighbor-originated NeighborRequest is surfaced
// to the supervisor as a DataInquiry, since only the supervisor knows how
// to produce the data backing it.
func (g *Gnome) serveNeighborsRequests() {
	g.serveOngoingRequests()
	for _, n := range g.fastNeighbors {
		g.drainNeighborTraffic(n)
	}
	for _, n := range g.slowNeighbors {
		g.drainNeighborTraffic(n)
	}
}

// drainNeighborTraffic handles everything n sent us this tick that isn't
// already folded into round state: requests it's asking of us and
// answers it sent back to requests we asked of it. ForwardConnectRequest
// and ConnectRequest are handled locally per spec.md §4.5 since only the
// core holds the neighbor-set state needed to answer them; everything
// else the core cannot answer on its own is surfaced to the supervisor.
func (g *Gnome) drainNeighborTraffic(n *Neighbor) {
	for {
		req, ok := n.NextIncomingRequest()
		if !ok {
			break
		}
		switch req.Kind {
		case ForwardConnectRequest:
			g.startOngoingRequest(n.Id, req.ForwardConnectSettings)
		case ConnectRequest:
			g.answerConnectRequest(n, req)
		default:
			g.respond(NewDataInquiryResponse(n.Id, req))
		}
	}
	for {
		req, resp, ok := n.NextReceivedResponse()
		if !ok {
			break
		}
		g.handleReceivedResponse(n, req, resp)
	}
}

// answerConnectRequest is the target-side half of a forwarded-connect
// mediation: n has asked this gnome (on origin's behalf) to connect to
// req.ConnectOrigin. If origin is already a neighbor, decline; otherwise
// report our own settings back and let the mediator relay them.
func (g *Gnome) answerConnectRequest(n *Neighbor, req NeighborRequest) {
	if _, already := findNeighbor(g.fastNeighbors, req.ConnectOrigin); already {
		n.AddRequestedData(req, NeighborResponse{Kind: AlreadyConnected, ConnectSlot: req.ConnectSlot})
		return
	}
	if _, already := findNeighbor(g.slowNeighbors, req.ConnectOrigin); already {
		n.AddRequestedData(req, NeighborResponse{Kind: AlreadyConnected, ConnectSlot: req.ConnectSlot})
		return
	}
	n.AddRequestedData(req, NeighborResponse{Kind: ConnectResponse, ConnectSlot: req.ConnectSlot, ConnectSettings: g.networkSettings})
	g.emitSettings(&req.ConnectSettings)
}

// handleReceivedResponse routes an answer n sent back to one of our
// earlier outbound requests, per spec.md §4.1: ConnectResponse feeds the
// ongoing-request table, AlreadyConnected advances it to the next
// candidate immediately, ForwardConnectResponse/Failed are this gnome's
// own outcome as a forwarded-connect origin, and everything else is
// surfaced to the supervisor since only it can interpret Listing or
// ProposalResponse payloads.
func (g *Gnome) handleReceivedResponse(n *Neighbor, req NeighborRequest, resp NeighborResponse) {
	switch resp.Kind {
	case ConnectResponse:
		g.ongoing.SetResponse(resp.ConnectSlot, resp.ConnectSettings)
	case AlreadyConnected:
		if ongoing, ok := g.ongoing.Get(resp.ConnectSlot); ok {
			g.advanceOngoingRequest(resp.ConnectSlot, ongoing)
		}
	case ForwardConnectResponse:
		g.emitSettings(&resp.ForwardConnectSettings)
	case ForwardConnectFailed:
		g.respond(NewConnectFailedResponse(n.Id))
		g.discovery.RetryNext()
	case Unicast:
		g.activeUnicasts[resp.UnicastCastID] = struct{}{}
		g.respond(NewNeighborAnswerResponse(n.Id, resp))
	default:
		g.respond(NewNeighborAnswerResponse(n.Id, resp))
	}
}

func (g *Gnome) serveOngoingRequests() {
	for _, id := range g.ongoing.IDs() {
		req, ok := g.ongoing.Get(id)
		if !ok {
			continue
		}
		if req.Response != nil {
			if n, ok := findNeighbor(g.fastNeighbors, req.Origin); ok {
				n.AddRequestedData(NeighborRequest{Kind: ForwardConnectRequest}, NeighborResponse{Kind: ForwardConnectResponse, ForwardConnectSettings: *req.Response})
			} else if n, ok := findNeighbor(g.slowNeighbors, req.Origin); ok {
				n.AddRequestedData(NeighborRequest{Kind: ForwardConnectRequest}, NeighborResponse{Kind: ForwardConnectResponse, ForwardConnectSettings: *req.Response})
			}
			g.emitSettings(req.Response)
			g.ongoing.Remove(id)
			continue
		}
		if g.ongoing.TimedOut(id, g.swarmTime) {
			g.advanceOngoingRequest(id, req)
		}
	}
}

func (g *Gnome) advanceOngoingRequest(id uint8, req *OngoingRequest) {
	candidate, found := nextUnqueriedNeighbor(g.fastNeighbors, req)
	if !found {
		candidate, found = nextUnqueriedNeighbor(g.slowNeighbors, req)
	}
	if !found {
		g.failOngoingRequest(id, req)
		return
	}
	candidate.RequestData(NeighborRequest{Kind: ConnectRequest, ConnectSlot: id, ConnectOrigin: req.Origin, ConnectSettings: req.Settings})
	g.ongoing.Requeue(id, candidate.Id, g.swarmTime)
}

func nextUnqueriedNeighbor(set []*Neighbor, req *OngoingRequest) (*Neighbor, bool) {
	for _, n := range set {
		if !req.HasQueried(n.Id) {
			return n, true
		}
	}
	return nil, false
}

func (g *Gnome) failOngoingRequest(id uint8, req *OngoingRequest) {
	if n, ok := findNeighbor(g.fastNeighbors, req.Origin); ok {
		n.AddRequestedData(NeighborRequest{Kind: ForwardConnectRequest}, NeighborResponse{Kind: ForwardConnectFailed})
	} else if n, ok := findNeighbor(g.slowNeighbors, req.Origin); ok {
		n.AddRequestedData(NeighborRequest{Kind: ForwardConnectRequest}, NeighborResponse{Kind: ForwardConnectFailed})
	}
	g.ongoing.Remove(id)
	g.metrics.OngoingRequestFailed()
}

// startOngoingRequest is called when a neighbor asks this gnome to
// mediate a connection to a third party on its behalf.
func (g *Gnome) startOngoingRequest(origin GnomeId, settings NetworkSettings) {
	neighborCount := len(g.fastNeighbors) + len(g.slowNeighbors)
	if neighborCount < 2 {
		if n, ok := findNeighbor(g.fastNeighbors, origin); ok {
			n.AddRequestedData(NeighborRequest{Kind: ForwardConnectRequest}, NeighborResponse{Kind: ForwardConnectFailed})
		} else if n, ok := findNeighbor(g.slowNeighbors, origin); ok {
			n.AddRequestedData(NeighborRequest{Kind: ForwardConnectRequest}, NeighborResponse{Kind: ForwardConnectFailed})
		}
		return
	}
	candidate, found := firstOtherThan(g.fastNeighbors, origin)
	if !found {
		candidate, found = firstOtherThan(g.slowNeighbors, origin)
	}
	if !found {
		return
	}
	id, err := g.ongoing.Add(origin, settings, candidate.Id, g.swarmTime)
	if err != nil {
		g.log.Warn("cannot start forwarded connect request", "error", err)
		return
	}
	candidate.RequestData(NeighborRequest{Kind: ConnectRequest, ConnectSlot: id, ConnectOrigin: origin, ConnectSettings: settings})
}

func firstOtherThan(set []*Neighbor, id GnomeId) (*Neighbor, bool) {
	for _, n := range set {
		if n.Id != id {
			return n, true
		}
	}
	return nil, false
}

// tryRecv drains every neighbor in the given set (fast or slow),
// returning whether a round advance is warranted and whether a new
// proposal was observed, and moving each neighbor on to refreshed,
// back to its own set, or dropping it entirely.
func (g *Gnome) tryRecv(fast bool) (advance, newProposal bool) {
	set := g.fastNeighbors
	if !fast {
		set = g.slowNeighbors
	}
	if fast {
		g.fastNeighbors = nil
	} else {
		g.slowNeighbors = nil
	}

	looped := len(set) > 0
	gnomeAwareness := g.currentAwareness()
	for _, n := range set {
		served, sanityOK, np, mustDrop := n.TryRecv(gnomeAwareness, g.blockId)
		if np {
			newProposal = true
		}
		if mustDrop {
			g.metrics.NeighborDropped("channel closed")
			continue
		}
		if served {
			if sanityOK {
				if g.roundStart == 0 {
					// First contact: original_source's corresponding branch
					// (gnome.rs's "wacky" case) seeds next_state.swarm_time
					// from the neighbor's own swarm time rather than
					// touching the accepted-block bookkeeping, so a
					// freshly-joined gnome adopts a peer's clock instead of
					// racing ahead from its own zero.
					g.nextState.swarmTime = n.swarmTime
				}
				g.nextState.Update(n)
			} else {
				g.metrics.NeighborDropped("sanity check failed")
				continue
			}
			g.refreshedNeighbors = append(g.refreshedNeighbors, n)
		} else if fast {
			g.fastNeighbors = append(g.fastNeighbors, n)
		} else {
			g.slowNeighbors = append(g.slowNeighbors, n)
		}
	}

	allEmpty := len(g.fastNeighbors) == 0 && len(g.slowNeighbors) == 0 && looped
	return allEmpty || newProposal, newProposal
}

func (g *Gnome) currentAwareness() Awareness {
	if g.confused > 0 {
		return ConfusedState(g.confused)
	}
	if g.blockId.IsNone() {
		return UnawareState
	}
	return AwareState(g.neighborhood)
}

// checkIfNewRound implements the round-boundary law from spec.md §4:
// full propagation (neighborhood >= diameter) or timeout
// (swarm_time - round_start >= 2*diameter) both end the round. While
// confused, neither condition is evaluated: spec.md §4.3 suppresses
// commit entirely until the countdown decays to 0, one tick at a time,
// at which point the conflicting proposal is dropped so it can be
// reintroduced.
func (g *Gnome) checkIfNewRound() bool {
	if g.confused > 0 {
		g.confused--
		if g.confused == 0 {
			g.log.Debug("confusion countdown elapsed, dropping proposal for reintroduction")
			g.blockId = BlockID(0)
			g.data = EmptyData()
			g.myProposedBlock = nil
			g.roundStart = g.swarmTime
			g.nextState.ResetForNextTurn(true, BlockID(0), EmptyData())
		}
		return false
	}

	allAware := g.neighborhood >= g.cfg.SwarmDiameter
	finishRound := g.swarmTime.Sub(g.roundStart) >= SwarmTime(g.cfg.SwarmDiameter)*2
	if !allAware && !finishRound {
		g.nextState.ResetForNextTurn(false, g.blockId, g.data)
		return false
	}

	g.roundID = uuid.NewString()

	if !g.blockId.IsNone() {
		g.sendImmediate = true
		if allAware {
			g.respond(NewBlockResponse(g.blockId, g.data))
			g.metrics.RoundCommitted(g.blockId)
			g.log.Info("round committed", "round", g.roundID, "block", g.blockId)
			if g.myProposedBlock != nil && g.myProposedBlock.BlockID() != g.blockId {
				g.proposals = append(g.proposals, *g.myProposedBlock)
			}
			g.myProposedBlock = nil
			g.roundStart = g.swarmTime
			g.nextState.LastAcceptedBlock = g.blockId
		} else {
			g.log.Warn("swarm diameter too small or block was backdated", "round", g.roundID, "block", g.blockId)
		}
		g.popNextProposal()
	} else {
		g.log.Debug("round timed out with no proposal", "round", g.roundID)
		g.roundStart = g.swarmTime
		g.neighborhood = 0
		g.popNextProposal()
		g.flushNewNeighbors()
	}

	g.nextState.ResetForNextTurn(true, g.blockId, g.data)
	for _, n := range g.fastNeighbors {
		n.StartNewRound(g.swarmTime)
	}
	for _, n := range g.slowNeighbors {
		n.StartNewRound(g.swarmTime)
	}
	return true
}

func (g *Gnome) popNextProposal() {
	if len(g.proposals) == 0 {
		g.blockId = BlockID(0)
		g.data = EmptyData()
		return
	}
	last := len(g.proposals) - 1
	next := g.proposals[last]
	g.proposals = g.proposals[:last]
	g.blockId = next.BlockID()
	g.data = next
	g.myProposedBlock = &next
	g.sendImmediate = true
}

// flushNewNeighbors admits everyone waiting in new at a round boundary:
// each gets one drained try_recv against the last accepted block before
// joining fast, so it never observes mid-round traffic out of order.
func (g *Gnome) flushNewNeighbors() {
	if len(g.newNeighbors) == 0 {
		return
	}
	pending := g.newNeighbors
	g.newNeighbors = nil
	msg := g.prepareMessage()
	for _, n := range pending {
		n.TryRecv(g.currentAwareness(), g.nextState.LastAcceptedBlock)
		n.SendOut(msg)
		g.fastNeighbors = append(g.fastNeighbors, n)
	}
}

func (g *Gnome) swapNeighbors() {
	for range g.slowNeighbors {
		g.metrics.NeighborDropped("timeout")
	}
	g.slowNeighbors = g.fastNeighbors
	g.fastNeighbors = g.refreshedNeighbors
	g.refreshedNeighbors = nil
}

func (g *Gnome) concatNeighbors() {
	g.fastNeighbors = append(g.fastNeighbors, g.refreshedNeighbors...)
	g.refreshedNeighbors = nil
}

// updateState folds the tick's aggregated NextState into this gnome's own
// swarm time, neighborhood and proposal. When the next swarm time is
// 2*diameter or more ahead of the current one, the swarm time still
// advances but the neighborhood is left unchanged (original_source's
// "catching up" guard).
func (g *Gnome) updateState() {
	nextTime, nextNeighborhood, nextBlockId, nextData := g.nextState.NextParams()
	delta := nextTime.Sub(g.swarmTime)
	if delta < SwarmTime(g.cfg.SwarmDiameter)*2 {
		g.neighborhood = nextNeighborhood
	} else {
		g.log.Debug("not updating neighborhood while catching up with swarm")
	}
	g.swarmTime = nextTime
	if g.nextState.BecomeConfused() {
		g.confused = g.nextState.ConfusionCountdown()
		g.metrics.Confused()
		g.log.Warn("entering confused state", "countdown", g.confused)
		return
	}
	g.blockId = nextBlockId
	g.data = nextData
}

func (g *Gnome) prepareMessage() Message {
	if g.confused > 0 {
		return Message{SwarmTime: g.swarmTime, Neighborhood: g.neighborhood, Header: ConfusedHeader(g.confused), Payload: KeepAlivePayload()}
	}
	if g.blockId.IsNone() {
		return Message{SwarmTime: g.swarmTime, Neighborhood: g.neighborhood, Header: SyncHeader(), Payload: KeepAlivePayload()}
	}
	return Message{
		SwarmTime:    g.swarmTime,
		Neighborhood: g.neighborhood,
		Header:       BlockHeader(g.blockId),
		Payload:      BlockDataPayload(g.blockId, g.data),
	}
}

func (g *Gnome) sendAll() {
	msg := g.prepareMessage()
	for _, n := range g.fastNeighbors {
		n.SendOut(msg)
	}
	for _, n := range g.slowNeighbors {
		n.SendOut(msg)
	}
}

// sendSpecialized gives every neighbor in the chosen set first claim on
// any response or request queued specifically for it before falling back
// to the generic round message, matching send_specialized.
func (g *Gnome) sendSpecialized(fast bool) {
	msg := g.prepareMessage()
	set := g.fastNeighbors
	if !fast {
		set = g.slowNeighbors
	}
	if fast {
		g.fastNeighbors = make([]*Neighbor, 0, len(set))
	} else {
		g.slowNeighbors = make([]*Neighbor, 0, len(set))
	}

	for _, n := range set {
		if req, resp, ok := n.GetSpecializedData(); ok {
			n.SendOut(msg.IncludeResponse(req, resp))
		} else if req, ok := n.NextOurRequest(); ok {
			n.SendOut(msg.IncludeRequest(req))
		} else {
			n.SendOut(msg)
		}
		if fast {
			g.fastNeighbors = append(g.fastNeighbors, n)
		} else {
			g.slowNeighbors = append(g.slowNeighbors, n)
		}
	}
}

// queryForNewNeighbors asks one not-yet-queried neighbor to forward a
// connect request on this gnome's behalf, matching
// query_for_new_neighbors: fast neighbors are preferred over slow, and
// once every known neighbor has been asked this discovery sweep, the
// queried list resets and a fresh ask goes to whichever neighbor is
// first in line.
func (g *Gnome) queryForNewNeighbors() {
	request := NeighborRequest{Kind: ForwardConnectRequest, ForwardConnectSettings: g.networkSettings}
	if g.tryQuery(g.fastNeighbors, request) {
		return
	}
	if g.tryQuery(g.slowNeighbors, request) {
		return
	}
	g.discovery.ResetQueried()
	if len(g.fastNeighbors) > 0 {
		n := g.fastNeighbors[0]
		n.RequestData(request)
		g.discovery.MarkQueried(n.Id)
		return
	}
	if len(g.slowNeighbors) > 0 {
		n := g.slowNeighbors[0]
		n.RequestData(request)
		g.discovery.MarkQueried(n.Id)
	}
}

func (g *Gnome) tryQuery(set []*Neighbor, request NeighborRequest) bool {
	for _, n := range set {
		if !g.discovery.AlreadyQueried(n.Id) {
			n.RequestData(request)
			g.discovery.MarkQueried(n.Id)
			return true
		}
	}
	return false
}
