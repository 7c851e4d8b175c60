package sample

import (
	"errors"
	"sync"
)

var ErrFrozen = errors.New("sample stream is frozen")

// Stream is an append-only log of samples. Order follows completion, not
// issue; readers must not assume it correlates with wall-clock issue order.
type Stream struct {
	mu      sync.RWMutex
	samples []Sample
	frozen  bool
}

func NewStream(capacity int) *Stream {
	if capacity < 0 {
		capacity = 0
	}
	return &Stream{samples: make([]Sample, 0, capacity)}
}

// Append adds s to the log. It fails once the stream has been frozen.
func (st *Stream) Append(s Sample) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.frozen {
		return ErrFrozen
	}
	st.samples = append(st.samples, s)
	return nil
}

// Freeze marks the end of the run. Later appends are rejected.
func (st *Stream) Freeze() {
	st.mu.Lock()
	st.frozen = true
	st.mu.Unlock()
}

func (st *Stream) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.samples)
}

// All returns a copy of the samples recorded so far.
func (st *Stream) All() []Sample {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Sample, len(st.samples))
	copy(out, st.samples)
	return out
}
