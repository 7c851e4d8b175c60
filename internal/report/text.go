package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"stageq/internal/runner"
	"stageq/internal/schedule"
)

const rule = "======================================================================"

// WriteHeader prints the banner shown before a run starts.
func WriteHeader(w io.Writer, target, method string, mode string, stages []schedule.Stage, concurrency int) {
	total := time.Duration(0)
	parts := make([]string, 0, len(stages))
	for _, st := range stages {
		total += st.Duration
		parts = append(parts, st.String())
	}

	fmt.Fprintf(w, "\n🚀 STARTING STAGEQ LOAD TEST\n")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Target URL  : %s\n", target)
	fmt.Fprintf(w, "Method      : %s\n", method)
	fmt.Fprintf(w, "Mode        : %s (ceiling %d)\n", mode, concurrency)
	fmt.Fprintf(w, "Stages      : %s\n", strings.Join(parts, " → "))
	fmt.Fprintf(w, "Duration    : %s\n", total)
	fmt.Fprintf(w, "%s\n\n", rule)
}

// WriteText prints the end-of-run summary with threshold verdicts.
func WriteText(w io.Writer, rep *runner.Report) {
	s := rep.Summary

	fmt.Fprintf(w, "\n\n📊 LOAD TEST RESULTS\n")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Run ID         : %s\n", rep.ID)
	fmt.Fprintf(w, "Total Duration : %s\n", rep.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests Sent  : %d\n", s.Count)
	fmt.Fprintf(w, "Success        : %d\n", s.Success)
	fmt.Fprintf(w, "Failures       : %d\n", s.Failed)
	fmt.Fprintf(w, "Success Rate   : %.2f%%\n", s.SuccessRate*100)
	fmt.Fprintf(w, "Actual RPS     : %.2f\n", s.Rate)
	fmt.Fprintf(w, "Received       : %s\n", formatBytes(s.Bytes))
	if rep.Unsent > 0 {
		fmt.Fprintf(w, "Unsent         : %d (concurrency ceiling)\n", rep.Unsent)
	}
	if rep.Interrupted {
		fmt.Fprintf(w, "Interrupted    : yes\n")
	}

	if s.Count > 0 {
		fmt.Fprintf(w, "\n⏱️  RESPONSE TIMES (ms)\n")
		fmt.Fprintf(w, "   %-6s: %.2f\n", "min", msOf(s.Min))
		fmt.Fprintf(w, "   %-6s: %.2f\n", "avg", msOf(s.Mean))
		for _, label := range sortedPercentiles(s.Percentiles) {
			fmt.Fprintf(w, "   %-6s: %.2f\n", label, msOf(s.Percentiles[label]))
		}
		fmt.Fprintf(w, "   %-6s: %.2f\n", "max", msOf(s.Max))
		if s.Clamped > 0 {
			fmt.Fprintf(w, "   (%d samples outside the histogram range were clamped)\n", s.Clamped)
		}
	}

	if len(s.Errors) > 0 {
		fmt.Fprintf(w, "\n❌ FAILURE SUMMARY\n")
		for _, kv := range byCount(s.Errors) {
			fmt.Fprintf(w, "   %d x %s\n", kv.n, kv.key)
		}
		for _, kv := range byCount(s.ErrorMessages) {
			fmt.Fprintf(w, "     %d x %s\n", kv.n, kv.key)
		}
	}

	if len(rep.Thresholds) > 0 {
		fmt.Fprintf(w, "\n🎯 THRESHOLDS\n")
		for _, r := range rep.Thresholds {
			mark := "✓"
			if !r.Passed {
				mark = "✗"
			}
			label := r.Expression
			if r.Name != r.Expression {
				label = r.Name + ": " + r.Expression
			}
			fmt.Fprintf(w, "   %s %s (observed %s)\n", mark, label, strconv.FormatFloat(r.Observed, 'f', -1, 64))
		}
	}
	fmt.Fprintln(w, rule)
}

type keyCount struct {
	key string
	n   uint64
}

func byCount(m map[string]uint64) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, n := range m {
		out = append(out, keyCount{k, n})
	}
	slices.SortFunc(out, func(a, b keyCount) int {
		if c := cmp.Compare(b.n, a.n); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})
	return out
}

func sortedPercentiles[V any](m map[string]V) []string {
	labels := make([]string, 0, len(m))
	for k := range m {
		labels = append(labels, k)
	}
	slices.SortFunc(labels, func(a, b string) int {
		return cmp.Compare(labelValue(a), labelValue(b))
	})
	return labels
}

func labelValue(label string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimPrefix(label, "p"), 64)
	return v
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
