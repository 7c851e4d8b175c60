// Package threshold parses pass/fail expressions such as "p95 < 3000ms" and
// evaluates them against a stats.Summary.
package threshold

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"stageq/internal/stats"
)

var (
	ErrSyntax        = errors.New("threshold must look like '<metric> <op> <value>'")
	ErrUnknownMetric = errors.New("unknown threshold metric")
	ErrBadValue      = errors.New("invalid threshold value")
)

type Op string

const (
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
)

func (o Op) compare(observed, limit float64) bool {
	switch o {
	case OpLess:
		return observed < limit
	case OpLessEqual:
		return observed <= limit
	case OpGreater:
		return observed > limit
	case OpGreaterEqual:
		return observed >= limit
	}
	return false
}

type kind int

const (
	kindLatency kind = iota // observed in milliseconds
	kindRatio               // 0..1
	kindNumber
)

var (
	exprRe       = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_.()]*(?:\{[^}]*\})?)\s*(<=|>=|<|>)\s*(\S+)\s*$`)
	percentileRe = regexp.MustCompile(`^p\(?([0-9]+(?:\.[0-9]+)?)\)?$`)
)

// Threshold is a compiled expression. Build it with Parse.
type Threshold struct {
	Name       string
	Expression string
	Metric     string // canonical metric name

	op          Op
	limit       float64
	kind        kind
	quantile    float64
	successOnly bool
}

// Result is the outcome of one threshold against one summary.
type Result struct {
	Name       string  `json:"name"`
	Expression string  `json:"expression"`
	Metric     string  `json:"metric"`
	Passed     bool    `json:"passed"`
	Observed   float64 `json:"observed"`
	Limit      float64 `json:"limit"`
}

// Parse compiles expr. Name defaults to the expression itself.
func Parse(name, expr string) (Threshold, error) {
	m := exprRe.FindStringSubmatch(expr)
	if m == nil {
		return Threshold{}, fmt.Errorf("%q: %w", expr, ErrSyntax)
	}
	if name == "" {
		name = strings.TrimSpace(expr)
	}

	t := Threshold{
		Name:       name,
		Expression: strings.TrimSpace(expr),
		op:         Op(m[2]),
	}
	if err := t.setMetric(m[1]); err != nil {
		return Threshold{}, fmt.Errorf("%q: %w", expr, err)
	}

	limit, err := parseValue(m[3], t.kind)
	if err != nil {
		return Threshold{}, fmt.Errorf("%q: %w", expr, err)
	}
	t.limit = limit
	return t, nil
}

// expectedResponse restricts a percentile to successful requests, as in
// "p(90){expected_response:true}".
const expectedResponse = "{expected_response:true}"

func (t *Threshold) setMetric(raw string) error {
	key := strings.ToLower(raw)
	if base, tag, ok := strings.Cut(key, "{"); ok {
		if strings.Join(strings.Fields("{"+tag), "") != expectedResponse {
			return fmt.Errorf("%w: %s", ErrUnknownMetric, raw)
		}
		if err := t.setMetric(base); err != nil {
			return err
		}
		if t.kind != kindLatency || t.quantile == 0 {
			return fmt.Errorf("%w: %s only applies to percentiles", ErrUnknownMetric, raw)
		}
		t.Metric += expectedResponse
		t.successOnly = true
		return nil
	}
	switch key {
	case "mean", "avg":
		t.Metric, t.kind = "mean", kindLatency
	case "min":
		t.Metric, t.kind = "min", kindLatency
	case "max":
		t.Metric, t.kind = "max", kindLatency
	case "med":
		t.Metric, t.kind, t.quantile = "p50", kindLatency, 50
	case "successrate":
		t.Metric, t.kind = "successRate", kindRatio
	case "errorrate":
		t.Metric, t.kind = "errorRate", kindRatio
	case "rate":
		t.Metric, t.kind = "rate", kindNumber
	case "count":
		t.Metric, t.kind = "count", kindNumber
	default:
		pm := percentileRe.FindStringSubmatch(key)
		if pm == nil {
			return fmt.Errorf("%w: %s", ErrUnknownMetric, raw)
		}
		q, err := strconv.ParseFloat(pm[1], 64)
		if err != nil || q <= 0 || q > 100 {
			return fmt.Errorf("%w: %s", ErrUnknownMetric, raw)
		}
		t.Metric, t.kind, t.quantile = stats.PercentileLabel(q), kindLatency, q
	}
	return nil
}

// parseValue accepts Go durations or bare milliseconds for latency metrics,
// and plain numbers or percentages for the rest. The limit must be finite.
func parseValue(raw string, k kind) (float64, error) {
	v, err := parseNumber(raw, k)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrBadValue, raw)
	}
	return v, nil
}

func parseNumber(raw string, k kind) (float64, error) {
	if k == kindLatency {
		if d, err := time.ParseDuration(raw); err == nil {
			return msOf(d), nil
		}
	}
	if k == kindRatio && strings.HasSuffix(raw, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrBadValue, raw)
		}
		return v / 100, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrBadValue, raw)
	}
	return v, nil
}

func msOf(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Observe extracts the threshold's metric from s.
func (t Threshold) Observe(s stats.Summary) float64 {
	if t.successOnly {
		return msOf(s.SuccessQuantile(t.quantile))
	}
	switch t.Metric {
	case "mean":
		return msOf(s.Mean)
	case "min":
		return msOf(s.Min)
	case "max":
		return msOf(s.Max)
	case "successRate":
		return s.SuccessRate
	case "errorRate":
		return s.ErrorRate()
	case "rate":
		return s.Rate
	case "count":
		return float64(s.Count)
	}
	return msOf(s.Quantile(t.quantile))
}

func (t Threshold) Evaluate(s stats.Summary) Result {
	observed := t.Observe(s)
	return Result{
		Name:       t.Name,
		Expression: t.Expression,
		Metric:     t.Metric,
		Passed:     t.op.compare(observed, t.limit),
		Observed:   observed,
		Limit:      t.limit,
	}
}

// EvaluateAll evaluates every threshold; a failure never skips the rest.
func EvaluateAll(ts []Threshold, s stats.Summary) []Result {
	out := make([]Result, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Evaluate(s))
	}
	return out
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
