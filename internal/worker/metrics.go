package worker

import "sync/atomic"

// Metrics are cheap run counters surfaced on the ops HTTP endpoint.
type Metrics struct {
	Processed    atomic.Int64
	Fulfilled    atomic.Int64
	Rejected     atomic.Int64
	Skipped      atomic.Int64
	Denied       atomic.Int64
	Parked       atomic.Int64
	RetryableErr atomic.Int64
}

// Snapshot is a point-in-time copy for JSON rendering.
type Snapshot struct {
	Processed    int64 `json:"processed"`
	Fulfilled    int64 `json:"fulfilled"`
	Rejected     int64 `json:"rejected"`
	Skipped      int64 `json:"skipped"`
	Denied       int64 `json:"denied"`
	Parked       int64 `json:"parked_for_review"`
	RetryableErr int64 `json:"retryable_errors"`
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Processed:    m.Processed.Load(),
		Fulfilled:    m.Fulfilled.Load(),
		Rejected:     m.Rejected.Load(),
		Skipped:      m.Skipped.Load(),
		Denied:       m.Denied.Load(),
		Parked:       m.Parked.Load(),
		RetryableErr: m.RetryableErr.Load(),
	}
}
