package gnome

import "fmt"

// ResponseKind enumerates what a Gnome hands back to its supervisor on
// its response channel, grounded on original_source's top-level Response
// enum.
type ResponseKind uint8

const (
	BlockResponse ResponseKind = iota
	DataInquiryResponse
	ListingResponse
	StatusResponse
	NeighborAnswerResponse
	ConnectFailedResponse
)

func (k ResponseKind) String() string {
	switch k {
	case BlockResponse:
		return "Block"
	case DataInquiryResponse:
		return "DataInquiry"
	case ListingResponse:
		return "Listing"
	case StatusResponse:
		return "Status"
	case NeighborAnswerResponse:
		return "NeighborAnswer"
	case ConnectFailedResponse:
		return "ConnectFailed"
	default:
		return "UnknownResponse"
	}
}

// Response is the supervisor-facing event type a Gnome's response channel
// carries.
type Response struct {
	Kind ResponseKind

	BlockID   BlockID // BlockResponse
	BlockBody Data    // BlockResponse

	InquiryFrom    GnomeId         // DataInquiryResponse
	InquiryRequest NeighborRequest // DataInquiryResponse

	ListingCount uint8        // ListingResponse
	Listing      [128]BlockID // ListingResponse

	Status string // StatusResponse: a one-line human-readable snapshot

	AnswerFrom GnomeId          // NeighborAnswerResponse
	Answer     NeighborResponse // NeighborAnswerResponse

	FailedOrigin GnomeId // ConnectFailedResponse: the mediator that could not find a candidate
}

// NewBlockResponse reports a newly accepted block to the supervisor.
func NewBlockResponse(id BlockID, data Data) Response {
	return Response{Kind: BlockResponse, BlockID: id, BlockBody: data}
}

// NewDataInquiryResponse asks the supervisor to produce the data backing
// a neighbor's request, since the Gnome's own state doesn't retain it.
func NewDataInquiryResponse(from GnomeId, req NeighborRequest) Response {
	return Response{Kind: DataInquiryResponse, InquiryFrom: from, InquiryRequest: req}
}

// NewListingResponse reports a listing of recent block ids back to the
// supervisor.
func NewListingResponse(count uint8, listing [128]BlockID) Response {
	return Response{Kind: ListingResponse, ListingCount: count, Listing: listing}
}

// NewNeighborAnswerResponse surfaces an answer this gnome cannot consume
// locally (Listing, ProposalResponse, Unicast) to the supervisor.
func NewNeighborAnswerResponse(from GnomeId, answer NeighborResponse) Response {
	return Response{Kind: NeighborAnswerResponse, AnswerFrom: from, Answer: answer}
}

// NewConnectFailedResponse escalates a ForwardConnectFailed this gnome
// received as the origin of a forwarded-connect attempt: the mediator
// could not find a candidate willing to connect, so the supervisor must
// decide whether to retry discovery elsewhere.
func NewConnectFailedResponse(mediator GnomeId) Response {
	return Response{Kind: ConnectFailedResponse, FailedOrigin: mediator}
}

// NewStatusResponse reports a one-line status snapshot: swarm time, block
// id, neighborhood and fast-neighbor count, the fields original_source's
// Status request handler prints (SPEC_FULL.md §5).
func NewStatusResponse(status string) Response {
	return Response{Kind: StatusResponse, Status: status}
}

func (r Response) String() string {
	switch r.Kind {
	case BlockResponse:
		return fmt.Sprintf("Response::Block(%s,%s)", r.BlockID, r.BlockBody)
	case DataInquiryResponse:
		return fmt.Sprintf("Response::DataInquiry(%s,%s)", r.InquiryFrom, r.InquiryRequest)
	case ListingResponse:
		return fmt.Sprintf("Response::Listing(%d entries)", r.ListingCount)
	case NeighborAnswerResponse:
		return fmt.Sprintf("Response::NeighborAnswer(%s,%s)", r.AnswerFrom, r.Answer)
	case ConnectFailedResponse:
		return fmt.Sprintf("Response::ConnectFailed(%s)", r.FailedOrigin)
	default:
		return fmt.Sprintf("Response::Status(%q)", r.Status)
	}
}
