// Package reorder is an optional upgrade applications can wrap around
// Connection.Pop for the ordered discipline when they need strict
// FIFO-to-application delivery rather than the core's arrival-order
// delivery (spec.md §9: "a buffered reorder step gated on contiguous
// sequence is the natural extension"). Connection never uses this
// itself — arrival-order is the delivery contract spec.md actually
// specifies.
package reorder

import (
	"github.com/google/btree"

	"github.com/SonicFreak94/rudp/wire"
)

// item adapts a buffered packet to btree.Item, ordered by sequence
// number exactly as rudp's own ordered_out store does.
type item struct {
	seq    wire.Sequence
	packet *wire.Packet
}

func (a item) Less(than btree.Item) bool {
	return a.seq < than.(item).seq
}

// Buffer holds packets carrying a sequence number out of arrival order
// until they can be released contiguously. It is safe for single-
// goroutine use, matching how a host would typically drain
// Connection.Pop from one reader loop.
//
// The expected next sequence starts at 1, matching the core's own
// seq_out numbering (a discipline's counter starts at 0 and is
// incremented before its first use, so the first sequence a peer ever
// assigns is 1).
type Buffer struct {
	tree *btree.BTree
	next wire.Sequence
}

// NewBuffer creates an empty reorder buffer expecting sequence 1 next.
func NewBuffer() *Buffer {
	return &Buffer{tree: btree.New(32), next: 1}
}

// Push admits packet at seq into the buffer. If seq is below what has
// already been released, it is silently dropped (the core's own dedup
// already guarantees this shouldn't happen for a well-behaved ordered
// stream, but Push stays defensive since nothing enforces that a caller
// only feeds it ordered-discipline packets).
func (b *Buffer) Push(seq wire.Sequence, packet *wire.Packet) {
	if seq < b.next {
		return
	}

	b.tree.ReplaceOrInsert(item{seq: seq, packet: packet})
}

// Drain releases every packet that is now contiguous starting from the
// expected next sequence, in ascending order, advancing the expected
// next sequence past what it returns. If that sequence has not arrived
// yet, nothing is released.
func (b *Buffer) Drain() []*wire.Packet {
	var out []*wire.Packet

	for {
		min := b.tree.Min()
		if min == nil {
			break
		}

		it := min.(item)
		if it.seq != b.next {
			break
		}

		b.tree.Delete(it)
		out = append(out, it.packet)
		b.next++
	}

	return out
}

// Pending reports how many packets are buffered awaiting a gap to
// close.
func (b *Buffer) Pending() int {
	return b.tree.Len()
}
