package rudp

import (
	"time"

	"github.com/SonicFreak94/rudp/wire"
)

// inboundDedup holds the four per-discipline structures used to
// recognize duplicate deliveries on the receiving side of a connection
// (spec.md §4.3).
type inboundDedup struct {
	fafIn    wire.Sequence
	acknewIn wire.Sequence
	uidsIn   map[wire.Sequence]time.Time
	seqsIn   map[wire.Sequence]time.Time
}

func newInboundDedup() *inboundDedup {
	return &inboundDedup{
		uidsIn: make(map[wire.Sequence]time.Time),
		seqsIn: make(map[wire.Sequence]time.Time),
	}
}

// handled reports whether (type, sequence) has already been delivered,
// updating the discipline's tracking state as a side effect exactly as
// spec.md §4.3 describes. It is never called for wire.None.
func (d *inboundDedup) handled(t wire.ReliableType, seq wire.Sequence, now time.Time) bool {
	switch t {
	case wire.None:
		return false

	case wire.Newest:
		if seq <= d.fafIn {
			return true
		}
		d.fafIn = seq
		return false

	case wire.AckNewest:
		if seq <= d.acknewIn {
			return true
		}
		d.acknewIn = seq
		return false

	case wire.Ack:
		if _, ok := d.uidsIn[seq]; ok {
			d.uidsIn[seq] = now
			return true
		}
		d.uidsIn[seq] = now
		return false

	case wire.Ordered:
		if _, ok := d.seqsIn[seq]; ok {
			d.seqsIn[seq] = now
			return true
		}
		d.seqsIn[seq] = now
		return false

	default:
		return false
	}
}

// prune erases dedup entries older than threshold, keeping the tables
// from growing without bound over a long-lived connection (spec.md
// §4.5 step 1).
func (d *inboundDedup) prune(now time.Time, threshold time.Duration) {
	for seq, ts := range d.uidsIn {
		if now.Sub(ts) >= threshold {
			delete(d.uidsIn, seq)
		}
	}
	for seq, ts := range d.seqsIn {
		if now.Sub(ts) >= threshold {
			delete(d.seqsIn, seq)
		}
	}
}
