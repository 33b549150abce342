package rudp_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SonicFreak94/rudp"
	"github.com/SonicFreak94/rudp/transport"
	"github.com/SonicFreak94/rudp/wire"
)

func buildPacket(t wire.ReliableType, seq wire.Sequence, payload []byte) *wire.Packet {
	p := wire.NewPacket()
	p.WriteManageID(wire.Type)
	p.WriteReliableType(t)
	if t != wire.None {
		p.WriteManageID(wire.SequenceChunk)
		p.WriteSequence(seq)
	}
	p.WriteManageID(wire.EOP)
	if payload != nil {
		p.WritePayload(payload)
	}
	return p
}

// selfPump implements rudp.ReceivePump by polling one MemSocket and
// dispatching whatever arrives into one Connection — the minimal
// single-peer stand-in for what a real Listener does for every tracked
// peer (spec.md §2's receive-pump contract).
type selfPump struct {
	sock *transport.MemSocket
	conn *rudp.Connection
}

func (p *selfPump) Receive(block bool, timeoutMs int) rudp.SocketState {
	packet, state := p.sock.Poll(block, time.Duration(timeoutMs)*time.Millisecond)
	if state != rudp.StateDone {
		return state
	}
	result, err := p.conn.StoreInbound(packet)
	if err != nil {
		return rudp.StateError
	}
	return result
}

// linkedPair is two Connections wired over a MemNetwork, each able to
// drive its own inbound pump via Send's blocking loop, plus direct
// access to each side's socket for manually pumping non-blocking sends
// in tests.
type linkedPair struct {
	a, b         *rudp.Connection
	sockA, sockB *transport.MemSocket
}

func newLinkedPair(tunables rudp.Tunables) *linkedPair {
	net := transport.NewMemNetwork()
	sockA := net.NewSocket(transport.MemAddr("A"))
	sockB := net.NewSocket(transport.MemAddr("B"))

	pumpA := &selfPump{sock: sockA}
	pumpB := &selfPump{sock: sockB}

	a := rudp.NewConnection(sockA, pumpA, transport.MemAddr("B"), tunables, nil)
	b := rudp.NewConnection(sockB, pumpB, transport.MemAddr("A"), tunables, nil)

	pumpA.conn = a
	pumpB.conn = b

	return &linkedPair{a: a, b: b, sockA: sockA, sockB: sockB}
}

// deliverPending drains every datagram currently staged at sock into
// conn's StoreInbound, for tests that send without block=true.
func deliverPending(sock *transport.MemSocket, conn *rudp.Connection) {
	for {
		packet, state := sock.Poll(false, 0)
		if state != rudp.StateDone {
			return
		}
		conn.StoreInbound(packet)
	}
}

func TestUnreliableDelivery(t *testing.T) {
	assert := assert.New(t)

	p := newLinkedPair(rudp.DefaultTunables())

	state, err := p.a.Send(buildPacket(wire.None, 0, []byte("x")), false)
	assert.Nil(err)
	assert.Equal(rudp.StateDone, state)

	deliverPending(p.sockB, p.b)

	packet, ok := p.b.Pop()
	assert.True(ok)
	assert.Equal([]byte("x"), packet.ReadPayload())

	_, ok = p.b.Pop()
	assert.False(ok)
}

func TestReliableAckRoundTrip(t *testing.T) {
	assert := assert.New(t)

	tunables := rudp.DefaultTunables()
	tunables.InitialRTT = 5 * time.Millisecond
	tunables.RetransmitPaceMs = 1

	p := newLinkedPair(tunables)

	// A real Listener drives B's StoreInbound independently of A's
	// blocking Send; stand in for that with a background pump so A's
	// blocking ack-wait loop has something replying on the other end.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if packet, state := p.sockB.Poll(true, 2*time.Millisecond); state == rudp.StateDone {
				p.b.StoreInbound(packet)
			}
		}
	}()

	state, err := p.a.Send(buildPacket(wire.Ack, 0, []byte("payload")), true)
	assert.Nil(err)
	assert.Equal(rudp.StateDone, state)

	uids, ordered, acknew, _ := p.a.PendingCounts()
	assert.Equal(0, uids)
	assert.Equal(0, ordered)
	assert.False(acknew)

	packet, ok := p.b.Pop()
	assert.True(ok)
	assert.Equal([]byte("payload"), packet.ReadPayload())
}

func TestAckNewestSupersession(t *testing.T) {
	assert := assert.New(t)

	p := newLinkedPair(rudp.DefaultTunables())

	for i := 0; i < 3; i++ {
		_, err := p.a.Send(buildPacket(wire.AckNewest, 0, []byte("x")), false)
		assert.Nil(err)
	}

	_, _, acknew, _ := p.a.PendingCounts()
	assert.True(acknew)
}

func TestDuplicateOrderedEnqueuesOnceAndAcksTwice(t *testing.T) {
	assert := assert.New(t)

	p := newLinkedPair(rudp.DefaultTunables())

	first := buildPacket(wire.Ordered, 1, []byte("x"))
	state, err := p.b.StoreInbound(first)
	assert.Nil(err)
	assert.Equal(rudp.StateDone, state)

	second := buildPacket(wire.Ordered, 1, []byte("x"))
	state, err = p.b.StoreInbound(second)
	assert.Nil(err)
	assert.Equal(rudp.StateInProgress, state)

	_, ok := p.b.Pop()
	assert.True(ok)
	_, ok = p.b.Pop()
	assert.False(ok)

	// both deliveries were acknowledged back to A
	_, state = p.sockA.Poll(false, 0)
	assert.Equal(rudp.StateDone, state)
	_, state = p.sockA.Poll(false, 0)
	assert.Equal(rudp.StateDone, state)
	_, state = p.sockA.Poll(false, 0)
	assert.Equal(rudp.StateInProgress, state)
}

func TestHandshakeConnectDoesNotEnqueue(t *testing.T) {
	assert := assert.New(t)

	p := newLinkedPair(rudp.DefaultTunables())

	connect := wire.NewPacket()
	connect.WriteManageID(wire.Connect)
	connect.WriteManageID(wire.EOP)

	state, err := p.b.StoreInbound(connect)
	assert.Nil(err)
	assert.Equal(rudp.StateInProgress, state)
	assert.True(p.b.Connected())

	_, ok := p.b.Pop()
	assert.False(ok)
}

func TestRemoveOutboundOnNoneIsProtocolError(t *testing.T) {
	assert := assert.New(t)

	p := newLinkedPair(rudp.DefaultTunables())

	ack := wire.NewPacket()
	ack.WriteManageID(wire.AckChunk)
	ack.WriteReliableType(wire.None)
	ack.WriteSequence(1)
	ack.WriteManageID(wire.EOP)

	_, err := p.b.StoreInbound(ack)
	assert.True(rudp.IsProtocolViolation(err))
}

func TestSequenceMonotonicPerDiscipline(t *testing.T) {
	assert := assert.New(t)

	p := newLinkedPair(rudp.DefaultTunables())

	for i := 0; i < 5; i++ {
		_, err := p.a.Send(buildPacket(wire.Ordered, 0, []byte("x")), false)
		assert.Nil(err)
	}

	uids, ordered, _, _ := p.a.PendingCounts()
	assert.Equal(0, uids)
	assert.Equal(5, ordered)

	// the sequences written on the wire are 1, 2, ... in send order
	for want := wire.Sequence(1); want <= 5; want++ {
		packet, state := p.sockB.Poll(false, 0)
		if !assert.Equal(rudp.StateDone, state) {
			return
		}
		packet.ReadManageID()
		packet.ReadReliableType()
		packet.ReadManageID()
		seq, err := packet.ReadSequence()
		assert.Nil(err)
		assert.Equal(want, seq)
	}
}
