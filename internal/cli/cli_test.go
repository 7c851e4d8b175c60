package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stageq/internal/config"
	"stageq/internal/runner"
	"stageq/internal/stats"
)

func TestProgressLine(t *testing.T) {
	p := runner.Progress{
		Elapsed:    10 * time.Second,
		Total:      40 * time.Second,
		Stage:      1,
		TargetRate: 4,
		Inflight:   2,
		Summary:    stats.Summary{Success: 30, Failed: 1, Rate: 3.1},
	}
	line := ProgressLine(p, config.ModeRate)
	assert.True(t, strings.HasPrefix(line, "[█████---------------]  25%"), line)
	assert.Contains(t, line, "10s/40s")
	assert.Contains(t, line, "Target: 4.0/s")
	assert.Contains(t, line, "OK: 30 | Err: 1")

	p.Active = 3
	assert.Contains(t, ProgressLine(p, config.ModeUsers), "VUs: 3")

	p.Stage = -1
	assert.Contains(t, ProgressLine(p, config.ModeRate), "Draining: 2 requests")
}

func TestProgressBar_Clamps(t *testing.T) {
	assert.Equal(t, "[----]", progressBar(-1, 4))
	assert.Equal(t, "[████]", progressBar(2, 4))
}

func TestDisplay(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, config.ModeRate)
	d.Update(runner.Progress{Total: time.Second})
	d.Finish()
	assert.True(t, strings.HasPrefix(buf.String(), "\r["))
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestWatch_FansOut(t *testing.T) {
	updates := make(runner.ProgressChan, 2)
	updates <- runner.Progress{Issued: 1}
	updates <- runner.Progress{Issued: 2}
	close(updates)

	var a, b []uint64
	Watch(context.Background(), updates,
		func(p runner.Progress) { a = append(a, p.Issued) },
		func(p runner.Progress) { b = append(b, p.Issued) },
	)
	assert.Equal(t, []uint64{1, 2}, a)
	assert.Equal(t, a, b)
}
