// Package wire implements the framing primitives the reliability core
// reads and writes: typed control chunks terminated by an end-of-control
// marker, and the enums tagging delivery discipline and chunk kind.
package wire

import "fmt"

// ManageID tags one control chunk in a Packet's control section.
type ManageID uint8

const (
	// EOP terminates the control section of a packet. Payload, if any,
	// follows the last control chunk.
	EOP ManageID = iota
	// Type declares the packet's delivery discipline.
	Type
	// SequenceChunk carries a sequence number; the sender reserves this
	// position with a placeholder for the core to overwrite on send.
	SequenceChunk
	// AckChunk carries a (ReliableType, sequence) pair acknowledging a
	// prior outbound packet.
	AckChunk
	// Connect, Connected and BadVersion are handshake signals. They
	// carry no payload.
	Connect
	Connected
	BadVersion
)

func (m ManageID) String() string {
	switch m {
	case EOP:
		return "eop"
	case Type:
		return "type"
	case SequenceChunk:
		return "sequence"
	case AckChunk:
		return "ack"
	case Connect:
		return "connect"
	case Connected:
		return "connected"
	case BadVersion:
		return "bad_version"
	default:
		return fmt.Sprintf("manage_id(%d)", uint8(m))
	}
}

// ReliableType is the delivery discipline of an outbound or inbound
// packet.
type ReliableType uint8

const (
	// None is unreliable, unordered, and carries no sequence.
	None ReliableType = iota
	// Newest is fire-and-forget; the receiver keeps only the newest
	// sequence it has seen.
	Newest
	// Ack is reliable and unordered; each delivery is acknowledged
	// exactly once.
	Ack
	// AckNewest is reliable, but only the newest outstanding send is
	// retained — an earlier unacknowledged send is superseded.
	AckNewest
	// Ordered is reliable and deduplicated by sequence; the core
	// delivers it in arrival order, not sequence order (see the
	// ordered-delivery open question in DESIGN.md).
	Ordered
)

func (r ReliableType) String() string {
	switch r {
	case None:
		return "none"
	case Newest:
		return "newest"
	case Ack:
		return "ack"
	case AckNewest:
		return "ack_newest"
	case Ordered:
		return "ordered"
	default:
		return fmt.Sprintf("reliable_t(%d)", uint8(r))
	}
}

// Sequence is a dense, monotonically increasing identifier scoped to one
// discipline on one side of a connection. No wrap handling is specified;
// sequences are treated as monotonic within a connection's lifetime.
type Sequence uint32
