package rudp

import (
	"net"

	"github.com/SonicFreak94/rudp/wire"
)

// SocketState is the outcome of a socket or connection operation.
type SocketState int

const (
	// StateDone means the operation completed.
	StateDone SocketState = iota
	// StateInProgress means the operation is still pending (e.g. a
	// handshake reply, or a duplicate that was suppressed).
	StateInProgress
	// StateError means the underlying transport failed.
	StateError
)

func (s SocketState) String() string {
	switch s {
	case StateDone:
		return "done"
	case StateInProgress:
		return "in_progress"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Socket is the narrow datagram-send capability the core depends on.
// The actual socket (binding, reading, lifetime) is a host concern;
// this is the only shape the reliability core needs of it (spec.md
// §1, "Out of scope").
type Socket interface {
	SendTo(packet *wire.Packet, remote net.Addr) SocketState
}

// ReceivePump drives one pass of the inbound pump: read a datagram (if
// one is ready, or block up to timeoutMs waiting for one) and dispatch
// it to the owning Connection's StoreInbound. A Connection only ever
// calls this on itself, from inside a blocking Send — it is a weak,
// per-call capability standing in for a stored *Listener back-pointer
// (spec.md §9).
type ReceivePump interface {
	Receive(block bool, timeoutMs int) SocketState
}
