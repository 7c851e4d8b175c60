package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// 1us to 1h, 3 significant figures (<= 0.1% relative error)
	lowestTrackable  = 1
	highestTrackable = int64(time.Hour / time.Microsecond)
	sigFigs          = 3

	defaultStripes = 8
)

func newHDR() *hdrhistogram.Histogram {
	return hdrhistogram.New(lowestTrackable, highestTrackable, sigFigs)
}

type stripe struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// StripedHistogram is a thread-safe latency histogram split across several
// independently locked hdrhistograms. Writers pick stripes round-robin so they
// rarely contend, and a reader only ever holds one stripe lock at a time.
type StripedHistogram struct {
	stripes []*stripe
	next    atomic.Uint32
	clamped atomic.Uint64
}

func NewStripedHistogram(n int) *StripedHistogram {
	if n <= 0 {
		n = defaultStripes
	}
	h := &StripedHistogram{stripes: make([]*stripe, n)}
	for i := range h.stripes {
		h.stripes[i] = &stripe{hist: newHDR()}
	}
	return h
}

// Record adds d, clamped into the trackable range. Values outside the range
// lose precision instead of being dropped.
func (h *StripedHistogram) Record(d time.Duration) {
	us := d.Microseconds()
	if us < 0 {
		us = 0
	}
	if us > highestTrackable {
		us = highestTrackable
		h.clamped.Add(1)
	}

	s := h.stripes[int(h.next.Add(1))%len(h.stripes)]
	s.mu.Lock()
	if err := s.hist.RecordValue(us); err != nil {
		h.clamped.Add(1)
	}
	s.mu.Unlock()
}

// Merged returns a new histogram holding the union of all stripes.
func (h *StripedHistogram) Merged() *hdrhistogram.Histogram {
	out := newHDR()
	for _, s := range h.stripes {
		s.mu.Lock()
		out.Merge(s.hist)
		s.mu.Unlock()
	}
	return out
}

// Clamped counts values recorded at reduced precision.
func (h *StripedHistogram) Clamped() uint64 {
	return h.clamped.Load()
}
