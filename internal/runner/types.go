package runner

import (
	"time"

	"stageq/internal/config"
	"stageq/internal/schedule"
	"stageq/internal/stats"
	"stageq/internal/threshold"
)

// RunInfo is passed to OnRunStart subscribers.
type RunInfo struct {
	ID        string
	StartedAt time.Time
	Mode      config.Mode
	Stages    []schedule.Stage
	Total     time.Duration
}

// Progress is a live view of a running test, pushed on the updates channel.
type Progress struct {
	Elapsed    time.Duration
	Total      time.Duration
	Stage      int // -1 once the profile is complete
	TargetRate float64
	Issued     uint64
	Inflight   int64
	Active     int64 // busy worker slots, or running VUs in users mode
	Summary    stats.Summary
}

// ProgressChan receives Progress snapshots; sends never block the run.
type ProgressChan chan Progress

// Report is the final, serializable result of a run.
type Report struct {
	ID          string             `json:"id"`
	StartedAt   time.Time          `json:"started_at"`
	Duration    time.Duration      `json:"duration"`
	Mode        config.Mode        `json:"mode"`
	Target      string             `json:"target,omitempty"`
	Stages      []schedule.Stage   `json:"stages"`
	Interrupted bool               `json:"interrupted"`
	Issued      uint64             `json:"issued"`
	Unsent      uint64             `json:"unsent"`
	Summary     stats.Summary      `json:"summary"`
	Thresholds  []threshold.Result `json:"thresholds"`
	Passed      bool               `json:"passed"`
}
