package types

import "time"

// SLAPolicy holds how long an entity may sit in a non-terminal status before
// the orchestrator stops waiting and resolves it. A zero threshold means the
// entity is eligible for recovery immediately.
type SLAPolicy struct {
	OrderCreated time.Duration
	OrderBooked  time.Duration

	RecordCreated    time.Duration
	RecordReady      time.Duration
	RecordProcessing time.Duration
}

// DefaultSLAPolicy returns the production thresholds
func DefaultSLAPolicy() SLAPolicy {
	return SLAPolicy{
		OrderCreated:     0,
		OrderBooked:      24 * time.Hour,
		RecordCreated:    0,
		RecordReady:      3 * time.Hour,
		RecordProcessing: 17 * time.Hour,
	}
}

func overSLA(since, now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		return true
	}
	return now.Sub(since) > threshold
}
