package rudp

import "time"

// rttEstimator is a fixed-size circular buffer of observed round-trip
// samples. It is rendered as an array plus a modulo index, not a queue,
// per DESIGN.md's note on the circular retransmit buffer (spec.md §9).
type rttEstimator struct {
	points  []time.Duration
	index   int
	invalid bool
	mean    time.Duration
}

// newRTTEstimator pre-fills all slots with initial, a conservative
// default so early retransmit timing doesn't fire before any real
// sample has been observed.
func newRTTEstimator(size int, initial time.Duration) *rttEstimator {
	points := make([]time.Duration, size)
	for i := range points {
		points[i] = initial
	}
	return &rttEstimator{points: points, invalid: true}
}

// addPoint overwrites the next slot with a fresh sample and invalidates
// the cached mean.
func (r *rttEstimator) addPoint(sample time.Duration) {
	r.points[r.index] = sample
	r.index = (r.index + 1) % len(r.points)
	r.invalid = true
}

// value returns the cached arithmetic mean of the buffer, recomputing
// lazily if a new point was folded in since the last call.
func (r *rttEstimator) value() time.Duration {
	if r.invalid {
		var total time.Duration
		for _, p := range r.points {
			total += p
		}
		r.mean = total / time.Duration(len(r.points))
		r.invalid = false
	}
	return r.mean
}
