package rudp

import (
	"time"

	"github.com/google/btree"

	"github.com/SonicFreak94/rudp/wire"
)

// Store is one retained outbound packet awaiting acknowledgement.
type Store struct {
	Sequence     wire.Sequence
	Packet       *wire.Packet
	CreationTime time.Time
	LastActive   time.Time
}

func newStore(seq wire.Sequence, packet *wire.Packet, now time.Time) *Store {
	return &Store{
		Sequence:     seq,
		Packet:       packet,
		CreationTime: now,
		LastActive:   now,
	}
}

// shouldSend reports whether this store is due for retransmission given
// the current RTT estimate.
func (s *Store) shouldSend(now time.Time, rtt time.Duration) bool {
	return now.Sub(s.LastActive) > rtt
}

func (s *Store) resetActivity(now time.Time) {
	s.LastActive = now
}

// storeItem adapts *Store to btree.Item, ordering by sequence. This is
// what gives ordered_out its "sorted strictly ascending by sequence"
// invariant structurally, instead of via a hand-maintained insertion
// sort (spec.md §3).
type storeItem struct {
	store *Store
}

func (a storeItem) Less(than btree.Item) bool {
	b := than.(storeItem)
	return a.store.Sequence < b.store.Sequence
}

// orderedStores is the ordered_out tracking container: an insertion-
// order == sequence-order sequence of Store, backed by a B-tree keyed
// on sequence number.
type orderedStores struct {
	tree *btree.BTree
}

func newOrderedStores() *orderedStores {
	return &orderedStores{tree: btree.New(32)}
}

func (o *orderedStores) insert(s *Store) {
	o.tree.ReplaceOrInsert(storeItem{store: s})
}

// head returns the lowest-sequence Store, i.e. the "head of ordered_out"
// that update() retransmits at most one of per tick (spec.md §4.5).
func (o *orderedStores) head() *Store {
	item := o.tree.Min()
	if item == nil {
		return nil
	}
	return item.(storeItem).store
}

func (o *orderedStores) remove(seq wire.Sequence) *Store {
	probe := &Store{Sequence: seq}
	item := o.tree.Delete(storeItem{store: probe})
	if item == nil {
		return nil
	}
	return item.(storeItem).store
}

func (o *orderedStores) has(seq wire.Sequence) bool {
	probe := &Store{Sequence: seq}
	return o.tree.Get(storeItem{store: probe}) != nil
}

func (o *orderedStores) empty() bool {
	return o.tree.Len() == 0
}
