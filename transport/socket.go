// Package transport provides the concrete Socket and Listener the
// reliability core (package rudp) depends on as external capabilities
// (spec.md §1, §2). Nothing here is part of the reliability state
// machine itself — it is the host-side I/O the core is deliberately
// decoupled from.
package transport

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"

	"github.com/SonicFreak94/rudp"
	"github.com/SonicFreak94/rudp/wire"
)

const (
	maxDatagramSize = 1500
	// stagingBufferSize bounds how many bytes of not-yet-framed inbound
	// datagrams a UDPSocket will hold; a datagram whose Write into the
	// ring fails is logged and dropped. It absorbs bursts of arrivals without requiring
	// the dispatch loop to keep pace with the kernel instantaneously
	// (SPEC_FULL.md §3; grounded on Timfon-IP-TCP's per-socket
	// send/receive ring buffers).
	stagingBufferSize = 64 * 1024
)

// receivedFrame is one datagram pulled back out of the staging ring
// buffer, with its source address restored.
type receivedFrame struct {
	remote net.Addr
	data   []byte
}

// UDPSocket implements rudp.Socket over a real net.PacketConn.
type UDPSocket struct {
	conn net.PacketConn
	ring *ringbuffer.RingBuffer
	log  *logrus.Entry

	frames  chan receivedFrame
	errs    chan error
	closeCh chan struct{}
}

// NewUDPSocket binds a UDP socket at address and starts its staging
// pipeline (a kernel-read goroutine feeding a ring buffer, and a
// framing goroutine draining it into a channel of whole datagrams).
func NewUDPSocket(address string, log *logrus.Entry) (*UDPSocket, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, errors.Wrap(err, "transport: bind udp socket")
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &UDPSocket{
		conn:    conn,
		ring:    ringbuffer.New(stagingBufferSize),
		log:     log.WithField("local", conn.LocalAddr().String()),
		frames:  make(chan receivedFrame, 64),
		errs:    make(chan error, 1),
		closeCh: make(chan struct{}),
	}

	go s.readLoop()
	go s.drainLoop()

	return s, nil
}

// LocalAddr returns the address this socket is bound to.
func (s *UDPSocket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close shuts the socket down; in-flight goroutines observe closeCh or
// a read error on the underlying conn and exit.
func (s *UDPSocket) Close() error {
	close(s.closeCh)
	return s.conn.Close()
}

// SendTo implements rudp.Socket.
func (s *UDPSocket) SendTo(packet *wire.Packet, remote net.Addr) rudp.SocketState {
	if _, err := s.conn.WriteTo(packet.Bytes(), remote); err != nil {
		s.log.WithError(err).Debug("send failed")
		return rudp.StateError
	}
	return rudp.StateDone
}

// readLoop reads whole datagrams off the kernel socket and stages them,
// length-framed, into the ring buffer.
func (s *UDPSocket) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case s.errs <- err:
			case <-s.closeCh:
			}
			return
		}

		frame := encodeFrame(addr.String(), buf[:n])
		if _, werr := s.ring.Write(frame); werr != nil {
			s.log.WithError(werr).Warn("staging buffer write failed, dropping datagram")
		}
	}
}

// drainLoop de-frames the ring buffer back into whole datagrams with
// their source address resolved.
func (s *UDPSocket) drainLoop() {
	defer close(s.frames)

	for {
		addrLenBuf, err := readExact(s.ring, 2)
		if err != nil {
			return
		}
		addrLen := binary.BigEndian.Uint16(addrLenBuf)

		addrBuf, err := readExact(s.ring, int(addrLen))
		if err != nil {
			return
		}

		payloadLenBuf, err := readExact(s.ring, 4)
		if err != nil {
			return
		}
		payloadLen := binary.BigEndian.Uint32(payloadLenBuf)

		payload, err := readExact(s.ring, int(payloadLen))
		if err != nil {
			return
		}

		remote, err := net.ResolveUDPAddr("udp", string(addrBuf))
		if err != nil {
			s.log.WithError(err).Warn("failed to resolve staged source address")
			continue
		}

		frame := receivedFrame{remote: remote, data: payload}
		select {
		case s.frames <- frame:
		case <-s.closeCh:
			return
		}
	}
}

// waitFrame waits up to timeout for one staged datagram, or returns
// immediately if block is false and none is ready.
func (s *UDPSocket) waitFrame(block bool, timeout time.Duration) (receivedFrame, rudp.SocketState) {
	if !block {
		select {
		case f, ok := <-s.frames:
			if !ok {
				return receivedFrame{}, rudp.StateError
			}
			return f, rudp.StateDone
		case err := <-s.errs:
			s.log.WithError(err).Debug("socket read error")
			return receivedFrame{}, rudp.StateError
		default:
			return receivedFrame{}, rudp.StateInProgress
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f, ok := <-s.frames:
		if !ok {
			return receivedFrame{}, rudp.StateError
		}
		return f, rudp.StateDone
	case err := <-s.errs:
		s.log.WithError(err).Debug("socket read error")
		return receivedFrame{}, rudp.StateError
	case <-timer.C:
		return receivedFrame{}, rudp.StateInProgress
	}
}

func encodeFrame(addr string, payload []byte) []byte {
	buf := make([]byte, 2+len(addr)+4+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(addr)))
	copy(buf[2:], addr)
	off := 2 + len(addr)
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(payload)))
	copy(buf[off+4:], payload)
	return buf
}

// readExact drains exactly n bytes from rb, looping over short reads.
func readExact(rb *ringbuffer.RingBuffer, n int) ([]byte, error) {
	out := make([]byte, n)
	got := 0
	for got < n {
		m, err := rb.Read(out[got:])
		if m > 0 {
			got += m
		}
		if err != nil {
			return nil, err
		}
		if m == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	return out, nil
}
