package transport

import (
	"net"
	"sync"
	"time"

	"github.com/SonicFreak94/rudp"
	"github.com/SonicFreak94/rudp/wire"
)

// MemAddr is a synthetic net.Addr for MemSocket endpoints, so tests can
// exercise the reliability core (and a full Listener) without binding a
// real UDP port.
type MemAddr string

func (a MemAddr) Network() string { return "mem" }
func (a MemAddr) String() string  { return string(a) }

// MemNetwork is a shared registry of MemSocket endpoints. Datagrams
// sent to an address registered on the same MemNetwork are delivered
// in-process; anything else is dropped and SendTo reports StateError
// (as it does when the destination's inbox is full).
type MemNetwork struct {
	mu      sync.Mutex
	sockets map[MemAddr]*MemSocket
}

// NewMemNetwork creates an empty in-memory network.
func NewMemNetwork() *MemNetwork {
	return &MemNetwork{sockets: make(map[MemAddr]*MemSocket)}
}

// NewSocket registers and returns a new endpoint on this network.
func (n *MemNetwork) NewSocket(addr MemAddr) *MemSocket {
	s := &MemSocket{
		addr:    addr,
		network: n,
		frames:  make(chan receivedFrame, 64),
	}

	n.mu.Lock()
	n.sockets[addr] = s
	n.mu.Unlock()

	return s
}

func (n *MemNetwork) lookup(addr MemAddr) (*MemSocket, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sockets[addr]
	return s, ok
}

// MemSocket implements rudp.Socket over a MemNetwork, for deterministic,
// goroutine-scheduler-free tests of Connection and Listener (SPEC_FULL.md
// §11.4).
type MemSocket struct {
	addr    MemAddr
	network *MemNetwork
	frames  chan receivedFrame
}

// LocalAddr returns this endpoint's synthetic address.
func (s *MemSocket) LocalAddr() net.Addr { return s.addr }

// SendTo implements rudp.Socket by delivering directly into the
// destination endpoint's inbox, if one is registered.
func (s *MemSocket) SendTo(packet *wire.Packet, remote net.Addr) rudp.SocketState {
	dest, ok := s.network.lookup(MemAddr(remote.String()))
	if !ok {
		return rudp.StateError
	}

	frame := receivedFrame{remote: s.addr, data: packet.Clone().Bytes()}
	select {
	case dest.frames <- frame:
		return rudp.StateDone
	default:
		return rudp.StateError
	}
}

// Poll waits for (or, if block is false, checks for) one staged
// datagram and returns it framed as a *wire.Packet, for tests that
// drive delivery without a full Listener.
func (s *MemSocket) Poll(block bool, timeout time.Duration) (*wire.Packet, rudp.SocketState) {
	frame, state := s.waitFrame(block, timeout)
	if state != rudp.StateDone {
		return nil, state
	}
	return wire.PacketFromBytes(frame.data), state
}

func (s *MemSocket) waitFrame(block bool, timeout time.Duration) (receivedFrame, rudp.SocketState) {
	if !block {
		select {
		case f := <-s.frames:
			return f, rudp.StateDone
		default:
			return receivedFrame{}, rudp.StateInProgress
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-s.frames:
		return f, rudp.StateDone
	case <-timer.C:
		return receivedFrame{}, rudp.StateInProgress
	}
}
