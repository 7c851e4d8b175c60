// Package cli renders a run on a plain terminal: a one-line progress bar
// that rewrites itself, followed by the text summary.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"stageq/internal/config"
	"stageq/internal/runner"
)

type Display struct {
	w    io.Writer
	mode config.Mode
}

func NewDisplay(w io.Writer, mode config.Mode) *Display {
	return &Display{w: w, mode: mode}
}

func (d *Display) Update(p runner.Progress) {
	fmt.Fprint(d.w, "\r"+ProgressLine(p, d.mode))
}

// Finish ends the progress line.
func (d *Display) Finish() {
	fmt.Fprintln(d.w)
}

// ProgressLine formats one status line.
func ProgressLine(p runner.Progress, mode config.Mode) string {
	pct := 0.0
	if p.Total > 0 {
		pct = min(float64(p.Elapsed)/float64(p.Total), 1)
	}
	s := p.Summary

	if p.Stage < 0 && p.Inflight > 0 {
		return fmt.Sprintf("%s %3.0f%% | %s/%s | Draining: %d requests...          ",
			progressBar(1, 20), 100.0, p.Elapsed.Round(time.Second), p.Total, p.Inflight)
	}

	target := fmt.Sprintf("Target: %.1f/s", p.TargetRate)
	if mode == config.ModeUsers {
		target = fmt.Sprintf("VUs: %d", p.Active)
	}
	return fmt.Sprintf("%s %3.0f%% | %s/%s | %s | Inf: %3d | RPS: %.1f | OK: %d | Err: %d",
		progressBar(pct, 20), pct*100,
		p.Elapsed.Round(time.Second), p.Total,
		target,
		p.Inflight,
		s.Rate,
		s.Success,
		s.Failed,
	)
}

func progressBar(pct float64, width int) string {
	filled := min(max(int(pct*float64(width)), 0), width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

// Watch hands every update to each sink until ctx is done or updates is
// closed.
func Watch(ctx context.Context, updates runner.ProgressChan, sinks ...func(runner.Progress)) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-updates:
			if !ok {
				return
			}
			for _, sink := range sinks {
				sink(p)
			}
		}
	}
}
