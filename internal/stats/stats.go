package stats

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"stageq/internal/sample"
)

// DefaultPercentiles are reported when the caller does not ask for others.
var DefaultPercentiles = []float64{50, 90, 95, 99}

// maxErrorMessages bounds the distinct error strings kept for the failure
// summary; anything beyond is folded into "other".
const maxErrorMessages = 32

// Aggregator consumes samples concurrently and keeps running counters plus a
// latency histogram. Observe never blocks on Snapshot for longer than one
// stripe lock.
type Aggregator struct {
	count   atomic.Uint64
	success atomic.Uint64
	failed  atomic.Uint64
	bytes   atomic.Uint64

	sumNs  atomic.Int64
	minNs  atomic.Int64
	maxNs  atomic.Int64
	maxEnd atomic.Int64 // latest completion, run clock ns

	latency     *StripedHistogram
	okLatency   *StripedHistogram // successful requests only
	percentiles []float64

	mu       sync.Mutex
	reasons  map[sample.Reason]uint64
	messages map[string]uint64
}

func NewAggregator(percentiles []float64) *Aggregator {
	if len(percentiles) == 0 {
		percentiles = DefaultPercentiles
	}
	a := &Aggregator{
		latency:     NewStripedHistogram(defaultStripes),
		okLatency:   NewStripedHistogram(defaultStripes),
		percentiles: append([]float64(nil), percentiles...),
		reasons:     make(map[sample.Reason]uint64),
		messages:    make(map[string]uint64),
	}
	a.minNs.Store(math.MaxInt64)
	return a
}

// Observe records one sample. Safe for concurrent use.
func (a *Aggregator) Observe(s sample.Sample) {
	// count first: a snapshot reads outcomes before count, so it never
	// shows more successes than requests
	a.count.Add(1)

	d := s.Duration
	if d < 0 {
		d = 0
	}

	a.latency.Record(d)
	a.sumNs.Add(int64(d))
	storeMin(&a.minNs, int64(d))
	storeMax(&a.maxNs, int64(d))
	storeMax(&a.maxEnd, int64(s.Offset+d))
	if s.SizeBytes > 0 {
		a.bytes.Add(uint64(s.SizeBytes))
	}

	if s.Success {
		a.okLatency.Record(d)
		a.success.Add(1)
	} else {
		a.failed.Add(1)
		a.mu.Lock()
		a.reasons[s.Reason]++
		if s.Err != "" {
			key := s.Err
			if _, ok := a.messages[key]; !ok && len(a.messages) >= maxErrorMessages {
				key = "other"
			}
			a.messages[key]++
		}
		a.mu.Unlock()
	}
}

// Snapshot returns an immutable summary of everything observed so far.
// Observations that happened before the call are included; concurrent ones
// may or may not be.
func (a *Aggregator) Snapshot() Summary {
	success := a.success.Load()
	failed := a.failed.Load()
	count := a.count.Load()

	s := Summary{
		Count:       count,
		Success:     success,
		Failed:      failed,
		Bytes:       a.bytes.Load(),
		Elapsed:     time.Duration(a.maxEnd.Load()),
		Percentiles: make(map[string]time.Duration, len(a.percentiles)),

		SuccessPercentiles: make(map[string]time.Duration, len(a.percentiles)),
	}

	hist := a.latency.Merged()
	s.hist = hist.Export()
	okHist := a.okLatency.Merged()
	s.okHist = okHist.Export()
	s.Clamped = a.latency.Clamped()

	if count > 0 {
		s.SuccessRate = float64(success) / float64(count)
		s.Mean = time.Duration(a.sumNs.Load() / int64(count))
		// an Observe in progress may have counted but not yet stored min
		if minNs := a.minNs.Load(); minNs != math.MaxInt64 {
			s.Min = time.Duration(minNs)
		}
		s.Max = time.Duration(a.maxNs.Load())
		s.StdDev = time.Duration(hist.StdDev() * float64(time.Microsecond))
		if s.Elapsed > 0 {
			s.Rate = float64(count) / s.Elapsed.Seconds()
		}
	}
	for _, p := range a.percentiles {
		s.Percentiles[PercentileLabel(p)] = quantile(hist, p)
		s.SuccessPercentiles[PercentileLabel(p)] = quantile(okHist, p)
	}

	a.mu.Lock()
	if len(a.reasons) > 0 {
		s.Errors = make(map[string]uint64, len(a.reasons))
		for r, n := range a.reasons {
			s.Errors[string(r)] = n
		}
	}
	if len(a.messages) > 0 {
		s.ErrorMessages = make(map[string]uint64, len(a.messages))
		for m, n := range a.messages {
			s.ErrorMessages[m] = n
		}
	}
	a.mu.Unlock()

	return s
}

func storeMin(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n >= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}

func storeMax(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n <= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}
