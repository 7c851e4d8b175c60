package sample

import (
	"time"
)

// Reason classifies how a request ended.
type Reason string

const (
	ReasonOK      Reason = "ok"
	ReasonStatus  Reason = "status"  // non-2xx or unexpected status
	ReasonCheck   Reason = "check"   // response check failed
	ReasonError   Reason = "error"   // transport error
	ReasonTimeout Reason = "timeout" // per-request timeout or forced cancel after grace
)

// Sample is the outcome of one dispatched request. It is created once by the
// worker that ran the request and never modified afterwards.
type Sample struct {
	Seq uint64 `json:"seq"`
	ID  string `json:"id"`

	IssuedAt time.Time     `json:"issued_at"`
	Offset   time.Duration `json:"offset"` // run clock at issue

	Duration  time.Duration `json:"duration"`
	QueueWait time.Duration `json:"queue_wait"` // dispatch to worker start

	Success    bool   `json:"success"`
	Reason     Reason `json:"reason"`
	StatusCode int    `json:"status_code,omitempty"`
	SizeBytes  int64  `json:"size_bytes"` // -1 when unknown
	Err        string `json:"error,omitempty"`
}

// End returns the run clock offset at which the request completed.
func (s Sample) End() time.Duration {
	return s.Offset + s.Duration
}
