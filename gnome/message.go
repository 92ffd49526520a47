package gnome

import "fmt"

// HeaderKind enumerates the three wire-level round markers a Message can
// carry. Sync and Block(id) come straight from spec.md §3; Confused is an
// explicit addition documented in SPEC_FULL.md §2, needed because the
// source's own message shape and its live Gnome usage disagree on how a
// confused round is signalled on the wire — Awareness itself is kept as a
// local-only derived value and is never serialized.
type HeaderKind uint8

const (
	Sync HeaderKind = iota
	Block
	Confused
)

func (k HeaderKind) String() string {
	switch k {
	case Sync:
		return "Sync"
	case Block:
		return "Block"
	case Confused:
		return "Confused"
	default:
		return "UnknownHeader"
	}
}

// Header is the sum type {Sync, Block(BlockID), Confused(countdown)}.
// BlockValue is meaningful only when Kind == Block; CountdownValue only
// when Kind == Confused.
type Header struct {
	Kind           HeaderKind
	BlockValue     BlockID
	CountdownValue uint8
}

// SyncHeader builds a Header announcing no new proposal this message.
func SyncHeader() Header { return Header{Kind: Sync} }

// BlockHeader builds a Header announcing a proposed or accepted block id.
func BlockHeader(id BlockID) Header { return Header{Kind: Block, BlockValue: id} }

// ConfusedHeader builds a Header announcing the sender is confused, with
// its remaining countdown.
func ConfusedHeader(countdown uint8) Header {
	return Header{Kind: Confused, CountdownValue: countdown}
}

func (h Header) String() string {
	switch h.Kind {
	case Block:
		return fmt.Sprintf("Block(%s)", h.BlockValue)
	case Confused:
		return fmt.Sprintf("Confused(%d)", h.CountdownValue)
	default:
		return "Sync"
	}
}

// PayloadKind enumerates what a Message's body carries beyond the round
// header.
type PayloadKind uint8

const (
	KeepAlive PayloadKind = iota
	BlockData
	RequestPayload
	ResponsePayload
)

func (k PayloadKind) String() string {
	switch k {
	case KeepAlive:
		return "KeepAlive"
	case BlockData:
		return "BlockData"
	case RequestPayload:
		return "Request"
	case ResponsePayload:
		return "Response"
	default:
		return "UnknownPayload"
	}
}

// MessagePayload is the sum type {KeepAlive, Block(id, data), Request(req),
// Response(req, resp)} from spec.md §6. Response carries the originating
// NeighborRequest alongside the NeighborResponse so a receiver can match
// it to the request it queued without keeping separate correlation state.
type MessagePayload struct {
	Kind PayloadKind

	BlockID   BlockID // BlockData
	BlockBody Data    // BlockData

	Request NeighborRequest // RequestPayload, and the echoed request on ResponsePayload

	Response NeighborResponse // ResponsePayload
}

func KeepAlivePayload() MessagePayload { return MessagePayload{Kind: KeepAlive} }

func BlockDataPayload(id BlockID, data Data) MessagePayload {
	return MessagePayload{Kind: BlockData, BlockID: id, BlockBody: data}
}

func RequestMessagePayload(req NeighborRequest) MessagePayload {
	return MessagePayload{Kind: RequestPayload, Request: req}
}

func ResponseMessagePayload(req NeighborRequest, resp NeighborResponse) MessagePayload {
	return MessagePayload{Kind: ResponsePayload, Request: req, Response: resp}
}

func (p MessagePayload) String() string {
	switch p.Kind {
	case BlockData:
		return fmt.Sprintf("BlockData(%s,%s)", p.BlockID, p.BlockBody)
	case RequestPayload:
		return p.Request.String()
	case ResponsePayload:
		return p.Response.String()
	default:
		return "KeepAlive"
	}
}

// Message is the unit exchanged between neighbors every heartbeat: the
// sender's swarm time and observed neighborhood (together driving the
// receiver's awareness derivation), a round Header, and a payload.
type Message struct {
	SwarmTime    SwarmTime
	Neighborhood Neighborhood
	Header       Header
	Payload      MessagePayload
}

// NewHeartbeat builds the minimal keep-alive message a neighbor sends when
// it has nothing new to report.
func NewHeartbeat(t SwarmTime, n Neighborhood, h Header) Message {
	return Message{SwarmTime: t, Neighborhood: n, Header: h, Payload: KeepAlivePayload()}
}

// IncludeRequest returns a copy of m carrying req as an outbound request,
// mirroring the source's Message::include_request: a heartbeat already
// due to go out is piggy-backed with a pending request rather than
// scheduling a second message.
func (m Message) IncludeRequest(req NeighborRequest) Message {
	m.Payload = RequestMessagePayload(req)
	return m
}

// IncludeResponse returns a copy of m carrying the response to req,
// mirroring the source's Message::include_response.
func (m Message) IncludeResponse(req NeighborRequest, resp NeighborResponse) Message {
	m.Payload = ResponseMessagePayload(req, resp)
	return m
}

// WithBlock returns a copy of m carrying an accepted or proposed block's
// data alongside its id.
func (m Message) WithBlock(id BlockID, data Data) Message {
	m.Payload = BlockDataPayload(id, data)
	return m
}

// DerivedAwareness computes the local-only Awareness this message implies,
// per SPEC_FULL.md §2: Confused headers map straight to ConfusedState,
// everything else maps to an Aware state at the message's neighborhood
// (a round's first message from a neighbor is still Aware(0), never
// Unaware — Unaware is reserved for "no message observed yet").
func (m Message) DerivedAwareness() Awareness {
	if m.Header.Kind == Confused {
		return ConfusedState(m.Header.CountdownValue)
	}
	return AwareState(m.Neighborhood)
}

func (m Message) String() string {
	return fmt.Sprintf("Msg{%s,%s,%s,%s}", m.SwarmTime, m.Neighborhood, m.Header, m.Payload)
}
