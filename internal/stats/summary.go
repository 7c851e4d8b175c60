package stats

import (
	"strconv"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Summary is a point-in-time view of an Aggregator. It is never modified after
// Snapshot returns it.
type Summary struct {
	Count   uint64 `json:"count"`
	Success uint64 `json:"success"`
	Failed  uint64 `json:"failed"`
	Bytes   uint64 `json:"bytes"`

	// Elapsed is the span of run time covered by the observed samples.
	Elapsed     time.Duration `json:"elapsed"`
	Rate        float64       `json:"rate"`
	SuccessRate float64       `json:"success_rate"`

	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stddev"`

	// Percentiles is keyed by PercentileLabel, e.g. "p95".
	Percentiles map[string]time.Duration `json:"percentiles"`
	// SuccessPercentiles covers successful requests only.
	SuccessPercentiles map[string]time.Duration `json:"success_percentiles,omitempty"`

	Errors        map[string]uint64 `json:"errors,omitempty"`
	ErrorMessages map[string]uint64 `json:"error_messages,omitempty"`
	Clamped       uint64            `json:"clamped,omitempty"`

	// frozen latency distributions for percentiles not precomputed
	hist   *hdrhistogram.Snapshot
	okHist *hdrhistogram.Snapshot
}

// ErrorRate is the failed fraction, 0 when nothing was observed.
func (s Summary) ErrorRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Count)
}

// Quantile returns the latency at percentile p (0-100). Precomputed
// percentiles are used when present, otherwise the frozen histogram answers.
func (s Summary) Quantile(p float64) time.Duration {
	if v, ok := s.Percentiles[PercentileLabel(p)]; ok {
		return v
	}
	if s.hist == nil {
		return 0
	}
	return quantile(hdrhistogram.Import(s.hist), p)
}

// SuccessQuantile is Quantile over successful requests only.
func (s Summary) SuccessQuantile(p float64) time.Duration {
	if v, ok := s.SuccessPercentiles[PercentileLabel(p)]; ok {
		return v
	}
	if s.okHist == nil {
		return 0
	}
	return quantile(hdrhistogram.Import(s.okHist), p)
}

// PercentileLabel formats p as used for Percentiles keys: 95 -> "p95",
// 99.9 -> "p99.9".
func PercentileLabel(p float64) string {
	return "p" + strconv.FormatFloat(p, 'f', -1, 64)
}

func quantile(h *hdrhistogram.Histogram, p float64) time.Duration {
	if h.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.ValueAtQuantile(p)) * time.Microsecond
}
