package gnome

import "fmt"

// NeighborRequest is the "ask" half of the neighbor request/response set
// spec.md §6 requires to be faithfully preserved.
type NeighborRequest struct {
	Kind NeighborRequestKind

	ListingFrom SwarmTime // ListingRequest

	Proposal BlockID // ProposalRequest

	UnicastSwarmID SwarmID  // UnicastRequest
	UnicastCastIDs []CastID // UnicastRequest: candidate free ids offered to the peer

	ForwardConnectSettings NetworkSettings // ForwardConnectRequest

	ConnectSlot     uint8           // ConnectRequest
	ConnectOrigin   GnomeId         // ConnectRequest
	ConnectSettings NetworkSettings // ConnectRequest
}

// NeighborRequestKind enumerates the request variants.
type NeighborRequestKind uint8

const (
	ListingRequest NeighborRequestKind = iota
	ProposalRequest
	UnicastRequest
	ForwardConnectRequest
	ConnectRequest
)

func (k NeighborRequestKind) String() string {
	switch k {
	case ListingRequest:
		return "ListingRequest"
	case ProposalRequest:
		return "ProposalRequest"
	case UnicastRequest:
		return "UnicastRequest"
	case ForwardConnectRequest:
		return "ForwardConnectRequest"
	case ConnectRequest:
		return "ConnectRequest"
	default:
		return "UnknownRequest"
	}
}

// NeighborResponse is the "answer" half of the neighbor request/response set.
type NeighborResponse struct {
	Kind NeighborResponseKind

	ListingCount uint8
	Listing      [128]BlockID // Listing

	ProposalID   BlockID // ProposalResponse
	ProposalData Data    // ProposalResponse

	UnicastSwarmID SwarmID // Unicast
	UnicastCastID  CastID  // Unicast

	ForwardConnectSettings NetworkSettings // ForwardConnectResponse

	ConnectSlot     uint8           // ConnectResponse / AlreadyConnected
	ConnectSettings NetworkSettings // ConnectResponse
}

// NeighborResponseKind enumerates the response variants.
type NeighborResponseKind uint8

const (
	Listing NeighborResponseKind = iota
	ProposalResponse
	Unicast
	ForwardConnectResponse
	ForwardConnectFailed
	ConnectResponse
	AlreadyConnected
)

func (k NeighborResponseKind) String() string {
	switch k {
	case Listing:
		return "Listing"
	case ProposalResponse:
		return "ProposalResponse"
	case Unicast:
		return "Unicast"
	case ForwardConnectResponse:
		return "ForwardConnectResponse"
	case ForwardConnectFailed:
		return "ForwardConnectFailed"
	case ConnectResponse:
		return "ConnectResponse"
	case AlreadyConnected:
		return "AlreadyConnected"
	default:
		return "UnknownResponse"
	}
}

func (r NeighborRequest) String() string {
	return fmt.Sprintf("Request(%s)", r.Kind)
}

func (r NeighborResponse) String() string {
	return fmt.Sprintf("Response(%s)", r.Kind)
}
