package rudp

import "time"

// Tunables holds the constants spec.md §6 fixes as defaults but leaves
// host-overridable: the dedup-table retention window, the RTT
// estimator's buffer size and initial per-slot value, and the pacing
// sleep used by blocking send loops.
type Tunables struct {
	AgeThreshold      time.Duration
	RTTBufferSize     int
	InitialRTT        time.Duration
	RetransmitPaceMs  int
}

// DefaultTunables matches spec.md §6 exactly: a 1s dedup retention
// window, an 8-slot RTT buffer pre-filled at 1s, and a 1ms pacing
// sleep in blocking send loops.
func DefaultTunables() Tunables {
	return Tunables{
		AgeThreshold:     time.Second,
		RTTBufferSize:    8,
		InitialRTT:       time.Second,
		RetransmitPaceMs: 1,
	}
}
