package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageq/internal/config"
	"stageq/internal/runner"
	"stageq/internal/sample"
	"stageq/internal/schedule"
	"stageq/internal/stats"
	"stageq/internal/threshold"
)

func fixture(t *testing.T) (*runner.Report, []sample.Sample) {
	t.Helper()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	samples := []sample.Sample{
		{Seq: 1, IssuedAt: start, Offset: 100 * time.Millisecond, Duration: 20 * time.Millisecond, Success: true, Reason: sample.ReasonOK, StatusCode: 200, SizeBytes: 512},
		{Seq: 2, IssuedAt: start.Add(time.Second), Offset: 1100 * time.Millisecond, Duration: 40 * time.Millisecond, Success: true, Reason: sample.ReasonOK, StatusCode: 200, SizeBytes: 512},
		{Seq: 3, IssuedAt: start.Add(1500 * time.Millisecond), Offset: 1500 * time.Millisecond, Duration: 3 * time.Second, Reason: sample.ReasonTimeout, SizeBytes: -1, Err: "request timed out after 3s"},
		{Seq: 4, IssuedAt: start.Add(3 * time.Second), Offset: 3 * time.Second, Duration: 10 * time.Millisecond, Reason: sample.ReasonStatus, StatusCode: 503, Err: "HTTP 503"},
	}

	agg := stats.NewAggregator(nil)
	for _, s := range samples {
		agg.Observe(s)
	}
	summary := agg.Snapshot()
	latency, err := threshold.Parse("", "p95 < 3000ms")
	require.NoError(t, err)
	enough, err := threshold.Parse("enough", "count > 2")
	require.NoError(t, err)
	results := threshold.EvaluateAll([]threshold.Threshold{latency, enough}, summary)

	return &runner.Report{
		ID:         "0192aaaa-bbbb-7ccc-8ddd-eeeeeeeeeeee",
		StartedAt:  start,
		Duration:   4 * time.Second,
		Mode:       config.ModeRate,
		Target:     "http://localhost:8080/fast",
		Stages:     []schedule.Stage{{Duration: 4 * time.Second, Target: 2}},
		Issued:     4,
		Unsent:     1,
		Summary:    summary,
		Thresholds: results,
		Passed:     threshold.Passed(results),
	}, samples
}

func TestWriteText(t *testing.T) {
	rep, _ := fixture(t)
	var buf bytes.Buffer
	WriteText(&buf, rep)
	out := buf.String()

	assert.Contains(t, out, "Requests Sent  : 4")
	assert.Contains(t, out, "Success Rate   : 50.00%")
	assert.Contains(t, out, "Unsent         : 1")
	assert.Contains(t, out, "1 x timeout")
	assert.Contains(t, out, "1 x HTTP 503")
	assert.Contains(t, out, "✗ p95 < 3000ms")
	assert.Contains(t, out, "✓ enough: count > 2 (observed 4)")
	assert.NotContains(t, out, "Interrupted")

	// percentiles print in numeric order
	p50 := strings.Index(out, "p50")
	p99 := strings.Index(out, "p99")
	require.Positive(t, p50)
	assert.Less(t, p50, p99)
}

func TestWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	WriteHeader(&buf, "http://x", "GET", "rate", []schedule.Stage{
		{Duration: 10 * time.Second, Target: 1},
		{Duration: 20 * time.Second, Target: 2},
	}, 100)
	assert.Contains(t, buf.String(), "10s:1 → 20s:2")
	assert.Contains(t, buf.String(), "Duration    : 30s")
}

func TestWriteCSV(t *testing.T) {
	rep, samples := fixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, samples, "stageq", rep.Target))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(samples)+1)
	assert.Equal(t, csvHeader, rows[0])

	timeout := rows[3]
	assert.Equal(t, "", timeout[3])
	assert.Equal(t, "timeout", timeout[4])
	assert.Equal(t, "false", timeout[7])
	assert.Equal(t, "0", timeout[9])
	assert.Equal(t, "3000", timeout[1])

	unavailable := rows[4]
	assert.Equal(t, "503", unavailable[3])
	assert.Equal(t, "Service Unavailable", unavailable[4])
	assert.Equal(t, rep.Target, unavailable[13])
}

func TestTimeline(t *testing.T) {
	_, samples := fixture(t)
	tl := Timeline(samples)

	require.Len(t, tl, 3)
	assert.Equal(t, int64(0), tl[0].Second)
	assert.Equal(t, 1, tl[0].Requests)
	assert.Equal(t, int64(1), tl[1].Second)
	assert.Equal(t, 2, tl[1].Requests)
	assert.Equal(t, 1, tl[1].Errors)
	assert.InDelta(t, 1520.0, tl[1].MeanMs, 0.001)
	assert.InDelta(t, 3000.0, tl[1].MaxMs, 0.001)
	assert.Equal(t, int64(3), tl[2].Second)

	assert.Empty(t, Timeline(nil))
}

func TestWriteFiles(t *testing.T) {
	rep, samples := fixture(t)
	prefix := t.TempDir() + "/run"

	files, err := WriteFiles(prefix, rep, samples)
	require.NoError(t, err)

	for _, path := range []string{files.CSV, files.JSON, files.Timeline} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}

	data, err := os.ReadFile(files.JSON)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rep.ID, decoded["id"])
	assert.Equal(t, false, decoded["passed"])
}

func TestWriteFiles_ReportsErrors(t *testing.T) {
	rep, samples := fixture(t)
	_, err := WriteFiles(t.TempDir()+"/missing/dir/run", rep, samples)
	assert.Error(t, err)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "2.0 MiB", formatBytes(2<<20))
}
