package transport

import (
	"net"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/google/btree"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/SonicFreak94/rudp"
	"github.com/SonicFreak94/rudp/wire"
)

// activeItem indexes one peer's address by its last-activity time, so
// the reaper can ascend the stale end of the tree instead of scanning
// every tracked peer. Ties (same instant) are broken by address, which
// google/btree's total-order Item contract requires.
type activeItem struct {
	lastActive time.Time
	addr       string
}

func (a activeItem) Less(than btree.Item) bool {
	o := than.(activeItem)
	if a.lastActive.Equal(o.lastActive) {
		return a.addr < o.addr
	}
	return a.lastActive.Before(o.lastActive)
}

// frameSource is what a Listener needs from its transport: the send
// capability spec.md requires (rudp.Socket) plus a way to wait for the
// next staged inbound datagram. Both UDPSocket and MemSocket satisfy
// it, so a Listener never cares which one it was built on.
type frameSource interface {
	rudp.Socket
	waitFrame(block bool, timeout time.Duration) (receivedFrame, rudp.SocketState)
}

// peer is one remote address's reliability core plus the bookkeeping
// the idle reaper needs, independent of anything inside Connection.
type peer struct {
	conn       *rudp.Connection
	lastActive time.Time
}

// Listener owns one underlying socket and fans its inbound datagrams
// out to one *rudp.Connection per remote address, creating connections
// on first contact (SPEC_FULL.md §10.4; grounded on opd-ai-go-utp's
// sync.Map-of-connections acceptLoop, generalized from accepting
// net.Conns to dispatching into StoreInbound).
type Listener struct {
	id       uuid.UUID
	source   frameSource
	tunables rudp.Tunables
	log      *logrus.Entry

	mu     sync.Mutex
	peers  map[string]*peer
	active *btree.BTree

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewListener wraps source (a *UDPSocket or *MemSocket) with connection
// dispatch and an idle reaper.
func NewListener(source frameSource, tunables rudp.Tunables, log *logrus.Entry) *Listener {
	id, err := uuid.NewV4()
	if err != nil {
		// uuid.NewV4 only fails if the system RNG is broken; a
		// listener id is cosmetic (log correlation only), so fall
		// back to the nil UUID rather than failing construction.
		id = uuid.Nil
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Listener{
		id:       id,
		source:   source,
		tunables: tunables,
		log:      log.WithField("listener", id.String()),
		peers:    make(map[string]*peer),
		active:   btree.New(32),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Serve runs the dispatch loop until Close is called. It is meant to
// run in its own goroutine.
func (l *Listener) Serve() {
	defer close(l.doneCh)

	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		state := l.Receive(true, 200)
		if state == rudp.StateError {
			select {
			case <-l.stopCh:
				return
			default:
			}
		}
	}
}

// Receive implements rudp.ReceivePump: wait for (or, if block is
// false, poll for) one datagram, dispatch it to the Connection for its
// source address, creating one if this is the first datagram seen from
// that address.
func (l *Listener) Receive(block bool, timeoutMs int) rudp.SocketState {
	frame, state := l.source.waitFrame(block, time.Duration(timeoutMs)*time.Millisecond)
	if state != rudp.StateDone {
		return state
	}

	packet := wire.PacketFromBytes(frame.data)
	conn := l.connectionFor(frame.remote)

	now := time.Now()
	key := frame.remote.String()
	l.mu.Lock()
	if p, ok := l.peers[key]; ok {
		l.active.Delete(activeItem{lastActive: p.lastActive, addr: key})
		p.lastActive = now
		l.active.ReplaceOrInsert(activeItem{lastActive: now, addr: key})
	}
	l.mu.Unlock()

	result, err := conn.StoreInbound(packet)
	if err != nil {
		l.log.WithError(err).WithField("remote", frame.remote.String()).Warn("store_inbound failed")
		return rudp.StateError
	}
	return result
}

// connectionFor returns the Connection for remote, creating it (and
// its reliability state) on first contact.
func (l *Listener) connectionFor(remote net.Addr) *rudp.Connection {
	key := remote.String()

	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.peers[key]; ok {
		return p.conn
	}

	connLog := l.log.WithField("remote", key)
	conn := rudp.NewConnection(l.source, l, remote, l.tunables, connLog)
	now := time.Now()
	l.peers[key] = &peer{conn: conn, lastActive: now}
	l.active.ReplaceOrInsert(activeItem{lastActive: now, addr: key})
	return conn
}

// Connection returns the Connection tracked for remote, if any.
func (l *Listener) Connection(remote net.Addr) (*rudp.Connection, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.peers[remote.String()]
	if !ok {
		return nil, false
	}
	return p.conn, true
}

// SetTunables updates the tunables used for connections created from
// now on and pushes the change to every connection already tracked, so
// a config.WatchFile reload (SPEC_FULL.md §11.2) takes effect without
// restarting the listener.
func (l *Listener) SetTunables(t rudp.Tunables) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tunables = t
	for _, p := range l.peers {
		p.conn.SetTunables(t)
	}
}

// Connect registers (or returns) the Connection for remote without
// waiting for an inbound datagram, so a client can start Send()ing
// before the server has spoken first.
func (l *Listener) Connect(remote net.Addr) *rudp.Connection {
	return l.connectionFor(remote)
}

// Peers returns the remote addresses this listener currently tracks.
func (l *Listener) Peers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.peers))
	for addr := range l.peers {
		out = append(out, addr)
	}
	return out
}

// Reap drops any tracked connection that has not received a datagram
// within idle, or, if none has arrived yet, was registered longer than
// idle ago; outbound sends do not count as activity (SPEC_FULL.md
// §10.4: an explicit host-driven
// policy, never invoked by the reliability core itself). Stale peers
// are found by ascending the active-by-last-active-time tree up to
// cutoff, rather than scanning every tracked peer (SPEC_FULL.md §10.1).
func (l *Listener) Reap(idle time.Duration) []string {
	cutoff := time.Now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	var stale []btree.Item
	l.active.AscendLessThan(activeItem{lastActive: cutoff}, func(item btree.Item) bool {
		stale = append(stale, item)
		return true
	})

	var reaped []string
	for _, item := range stale {
		it := item.(activeItem)
		delete(l.peers, it.addr)
		l.active.Delete(it)
		reaped = append(reaped, it.addr)
	}

	if len(reaped) > 0 {
		l.log.WithField("count", len(reaped)).Debug("reaped idle connections")
	}
	return reaped
}

// Close stops the dispatch loop and closes the underlying transport,
// if it is closeable, aggregating any teardown errors (SPEC_FULL.md
// §10.6; grounded on dtn7-dtn7-gold's stcp server stop-channel
// teardown).
func (l *Listener) Close() error {
	close(l.stopCh)
	<-l.doneCh

	var result *multierror.Error

	if closer, ok := l.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close transport"))
		}
	}

	return result.ErrorOrNil()
}
