// Package rudp implements the reliability core of a datagram transport:
// for a single remote peer, it multiplexes four delivery disciplines
// onto one socket, retransmits unacknowledged sends using an adaptive
// timeout derived from observed round-trip time, deduplicates inbound
// deliveries, and exposes a submit/poll interface to the application
// above. See SPEC_FULL.md for the full design and DESIGN.md for the
// grounding of every piece in the retrieved example pack.
package rudp

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SonicFreak94/rudp/wire"
)

// Connection is the per-peer reliability state machine. It is created
// and exclusively owned by a Listener (see the transport package);
// nothing here stores a *Listener — only the narrow Socket and
// ReceivePump capabilities it actually needs, per the
// shared-ownership-as-graph note SPEC_FULL.md §9 carries over.
type Connection struct {
	socket Socket
	pump   ReceivePump
	remote net.Addr
	log    *logrus.Entry

	tunables Tunables

	fafOut    wire.Sequence
	uidOut    wire.Sequence
	acknewOut wire.Sequence
	seqOut    wire.Sequence

	orderedOut *orderedStores
	uidsOut    map[wire.Sequence]*Store
	acknewData *Store

	dedup *inboundDedup
	rtt   *rttEstimator

	inbound []*wire.Packet

	connected bool
}

// NewConnection constructs a Connection for one remote peer. All
// tracking structures start empty and the RTT buffer is pre-filled
// per tunables.InitialRTT (spec.md §3, Lifecycle).
func NewConnection(socket Socket, pump ReceivePump, remote net.Addr, tunables Tunables, log *logrus.Entry) *Connection {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Connection{
		socket:     socket,
		pump:       pump,
		remote:     remote,
		log:        log.WithField("remote", remote.String()),
		tunables:   tunables,
		orderedOut: newOrderedStores(),
		uidsOut:    make(map[wire.Sequence]*Store),
		dedup:      newInboundDedup(),
		rtt:        newRTTEstimator(tunables.RTTBufferSize, tunables.InitialRTT),
	}
}

// RemoteAddr returns the peer address this Connection is bound to.
func (c *Connection) RemoteAddr() net.Addr { return c.remote }

// SetTunables swaps the tunables Send and Update consult from this
// point on (AgeThreshold and RetransmitPaceMs). RTTBufferSize and
// InitialRTT are only read when the connection is constructed, so the
// existing RTT buffer keeps its capacity and contents and a changed
// buffer size or initial value has no effect on it. Like the rest of Connection,
// this assumes the caller drives this connection from a single
// goroutine at a time — Listener.SetTunables is the intended caller,
// serialized by its own mutex.
func (c *Connection) SetTunables(tunables Tunables) {
	c.tunables = tunables
}

// Tunables returns the tunables currently in effect for this
// Connection, primarily so a host (or test) can confirm a reload
// reached a specific live connection.
func (c *Connection) Tunables() Tunables {
	return c.tunables
}

// Connected reports whether the connect/connected handshake has
// completed for this peer.
func (c *Connection) Connected() bool { return c.connected }

// Send classifies, sequences and transmits one outbound packet
// (spec.md §4.1).
//
// The caller reserves a sequence placeholder with a `sequence` control
// chunk for any non-none discipline; Send overwrites it in place and,
// for the three reliable disciplines, retains a Store for
// retransmission until the peer acknowledges it.
//
// If block is true and the send was accepted by the socket, Send does
// not return until the assigned sequence is no longer outstanding —
// driving the connection's own ReceivePump and Update in a tight loop
// meanwhile. For ack_newest this has a known, deliberately preserved
// ambiguity: acknewData can be cleared either by this send's own ack or
// by a later ack_newest send superseding it, and Send cannot tell
// those apart (DESIGN.md, open question 1).
func (c *Connection) Send(packet *wire.Packet, block bool) (SocketState, error) {
	readPos := packet.Tell(wire.ReadCursor)
	writePos := packet.Tell(wire.WriteCursor)
	packet.Seek(wire.BothCursors, 0)

	discipline := wire.None
	seqOffset := -1

scan:
	for {
		id, err := packet.ReadManageID()
		if err != nil {
			return StateError, protocolErrorf("send: truncated control section: %v", err)
		}

		switch id {
		case wire.EOP:
			break scan

		case wire.Type:
			discipline, err = packet.ReadReliableType()
			if err != nil {
				return StateError, protocolErrorf("send: truncated type chunk: %v", err)
			}

		case wire.SequenceChunk:
			seqOffset = packet.Tell(wire.ReadCursor)
			if _, err := packet.ReadSequence(); err != nil {
				return StateError, protocolErrorf("send: truncated sequence chunk: %v", err)
			}
			break scan

		default:
			return StateError, protocolErrorf("send: unexpected manage_id %s in control section", id)
		}
	}

	if discipline == wire.None {
		if seqOffset != -1 {
			return StateError, protocolErrorf("sequence specified in non-sequenced packet")
		}
	} else if seqOffset == -1 {
		return StateError, protocolErrorf("sequence offset was not reserved")
	}

	var outboundSeq wire.Sequence

	if discipline != wire.None {
		packet.Seek(wire.WriteCursor, seqOffset)
		now := time.Now()

		switch discipline {
		case wire.Newest:
			c.fafOut++
			outboundSeq = c.fafOut
			packet.WriteSequence(outboundSeq)

		case wire.Ack:
			c.uidOut++
			outboundSeq = c.uidOut
			packet.WriteSequence(outboundSeq)
			c.uidsOut[outboundSeq] = newStore(outboundSeq, packet.Clone(), now)

		case wire.AckNewest:
			c.acknewOut++
			outboundSeq = c.acknewOut
			packet.WriteSequence(outboundSeq)
			c.acknewData = newStore(outboundSeq, packet.Clone(), now)

		case wire.Ordered:
			c.seqOut++
			outboundSeq = c.seqOut
			packet.WriteSequence(outboundSeq)
			c.orderedOut.insert(newStore(outboundSeq, packet.Clone(), now))

		default:
			return StateError, protocolErrorf("send: unknown reliable_t %s", discipline)
		}
	}

	result := c.socket.SendTo(packet, c.remote)

	packet.Seek(wire.ReadCursor, readPos)
	packet.Seek(wire.WriteCursor, writePos)

	if !block || result != StateDone {
		return result, nil
	}

	switch discipline {
	case wire.None, wire.Newest:
		return result, nil

	case wire.Ack:
		for {
			if _, pending := c.uidsOut[outboundSeq]; !pending {
				break
			}
			if result = c.pump.Receive(true, c.tunables.RetransmitPaceMs); result == StateError {
				return result, nil
			}
			c.Update()
			time.Sleep(time.Duration(c.tunables.RetransmitPaceMs) * time.Millisecond)
		}

	case wire.AckNewest:
		for c.acknewData != nil {
			if result = c.pump.Receive(true, c.tunables.RetransmitPaceMs); result == StateError {
				return result, nil
			}
			c.Update()
			time.Sleep(time.Duration(c.tunables.RetransmitPaceMs) * time.Millisecond)
		}

	case wire.Ordered:
		for c.orderedOut.has(outboundSeq) {
			if result = c.pump.Receive(true, c.tunables.RetransmitPaceMs); result == StateError {
				return result, nil
			}
			c.Update()
			time.Sleep(time.Duration(c.tunables.RetransmitPaceMs) * time.Millisecond)
		}
	}

	return StateDone, nil
}

// StoreInbound classifies one inbound datagram, handles control
// chunks (acks, handshake signals), deduplicates reliable deliveries,
// and — unless suppressed — enqueues the packet for Pop (spec.md
// §4.2).
func (c *Connection) StoreInbound(packet *wire.Packet) (SocketState, error) {
	result := StateDone

	discipline := wire.None
	var packetSeq wire.Sequence

scan:
	for {
		id, err := packet.ReadManageID()
		if err != nil {
			return StateError, protocolErrorf("store_inbound: truncated control section: %v", err)
		}

		switch id {
		case wire.Type:
			if discipline != wire.None {
				return StateError, protocolErrorf("store_inbound: duplicate type chunk")
			}
			discipline, err = packet.ReadReliableType()
			if err != nil {
				return StateError, protocolErrorf("store_inbound: truncated type chunk: %v", err)
			}

		case wire.EOP:
			break scan

		case wire.Connect:
			reply := wire.NewPacket()
			reply.WriteManageID(wire.Connected)
			reply.WriteManageID(wire.EOP)
			c.socket.SendTo(reply, c.remote)
			c.connected = true
			c.log.Debug("replied to connect handshake")
			return StateInProgress, nil

		case wire.Connected:
			c.connected = true
			c.log.Debug("handshake confirmed by peer")
			return StateInProgress, nil

		case wire.BadVersion:
			c.log.Warn("peer reported version mismatch")
			return StateInProgress, nil

		case wire.SequenceChunk:
			if discipline == wire.None {
				return StateError, protocolErrorf("store_inbound: sequence chunk without a preceding type")
			}
			packetSeq, err = packet.ReadSequence()
			if err != nil {
				return StateError, protocolErrorf("store_inbound: truncated sequence chunk: %v", err)
			}

		case wire.AckChunk:
			ackType, err := packet.ReadReliableType()
			if err != nil {
				return StateError, protocolErrorf("store_inbound: truncated ack type: %v", err)
			}
			ackSeq, err := packet.ReadSequence()
			if err != nil {
				return StateError, protocolErrorf("store_inbound: truncated ack sequence: %v", err)
			}
			if err := c.removeOutbound(ackType, ackSeq); err != nil {
				return StateError, err
			}

		default:
			return StateError, protocolErrorf("store_inbound: unexpected manage_id %s", id)
		}
	}

	if discipline != wire.None {
		if discipline != wire.Newest {
			ack := wire.NewPacket()
			ack.WriteManageID(wire.AckChunk)
			ack.WriteReliableType(discipline)
			ack.WriteSequence(packetSeq)
			ack.WriteManageID(wire.EOP)
			c.socket.SendTo(ack, c.remote)
		}

		if c.dedup.handled(discipline, packetSeq, time.Now()) {
			return StateInProgress, nil
		}
	}

	c.inbound = append(c.inbound, packet)
	return result, nil
}

// removeOutbound erases the matching Store, folding its age into the
// RTT estimator for every successful removal (spec.md §4.4).
func (c *Connection) removeOutbound(t wire.ReliableType, seq wire.Sequence) error {
	now := time.Now()

	switch t {
	case wire.None:
		return protocolErrorf("remove_outbound: ack on none discipline")

	case wire.Newest:
		return nil

	case wire.Ack:
		if store, ok := c.uidsOut[seq]; ok {
			c.rtt.addPoint(now.Sub(store.CreationTime))
			delete(c.uidsOut, seq)
		}
		return nil

	case wire.AckNewest:
		if c.acknewOut == seq && c.acknewData != nil {
			c.rtt.addPoint(now.Sub(c.acknewData.CreationTime))
			c.acknewData = nil
		}
		return nil

	case wire.Ordered:
		if store := c.orderedOut.remove(seq); store != nil {
			c.rtt.addPoint(now.Sub(store.CreationTime))
		}
		return nil

	default:
		return protocolErrorf("remove_outbound: unknown reliable_t %v", t)
	}
}

// Update prunes expired dedup entries, recomputes the RTT estimate if
// needed, and retransmits at most one ordered_out head, every entry of
// uids_out, and acknew_data if any of them are overdue (spec.md §4.5).
//
// RTT folding on retransmit deliberately uses now - creation_time, the
// same pessimistic draw used when an ack arrives — this lengthens the
// estimate as retransmits accumulate rather than shortening it, which
// widens the retransmit interval under loss (DESIGN.md, open
// question 2; preserved exactly from the original).
func (c *Connection) Update() {
	now := time.Now()
	c.dedup.prune(now, c.tunables.AgeThreshold)

	rtt := c.rtt.value()

	if head := c.orderedOut.head(); head != nil && head.shouldSend(now, rtt) {
		c.rtt.addPoint(now.Sub(head.CreationTime))
		c.socket.SendTo(head.Packet, c.remote)
		head.resetActivity(now)
	}

	for _, store := range c.uidsOut {
		if store.shouldSend(now, rtt) {
			c.rtt.addPoint(now.Sub(store.CreationTime))
			c.socket.SendTo(store.Packet, c.remote)
			store.resetActivity(now)
		}
	}

	if c.acknewData != nil && c.acknewData.shouldSend(now, rtt) {
		c.rtt.addPoint(now.Sub(c.acknewData.CreationTime))
		c.socket.SendTo(c.acknewData.Packet, c.remote)
		c.acknewData.resetActivity(now)
	}
}

// Pop dequeues one packet from the inbound queue in FIFO order. It
// reports false when the queue is empty (spec.md §4.6).
func (c *Connection) Pop() (*wire.Packet, bool) {
	if len(c.inbound) == 0 {
		return nil, false
	}
	p := c.inbound[0]
	c.inbound = c.inbound[1:]
	return p, true
}

// RoundTripTime returns the current RTT estimate, for diagnostics.
func (c *Connection) RoundTripTime() time.Duration {
	return c.rtt.value()
}

// PendingCounts reports the number of outstanding stores per reliable
// discipline plus the inbound queue depth, for diagnostics.
func (c *Connection) PendingCounts() (uids, ordered int, acknew bool, inboundDepth int) {
	uids = len(c.uidsOut)
	ordered = c.orderedOut.tree.Len()
	acknew = c.acknewData != nil
	inboundDepth = len(c.inbound)
	return
}
