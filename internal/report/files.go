// Package report renders finished runs: a console summary plus CSV, JSON and
// per-second timeline files.
package report

import (
	"errors"

	"stageq/internal/runner"
	"stageq/internal/sample"
)

// Files lists the paths written by WriteFiles.
type Files struct {
	CSV      string
	JSON     string
	Timeline string
}

// WriteFiles writes <prefix>.csv, <prefix>_summary.json and
// <prefix>_timeline.json. Every file is attempted even if one fails.
func WriteFiles(prefix string, rep *runner.Report, samples []sample.Sample) (Files, error) {
	f := Files{
		CSV:      prefix + ".csv",
		JSON:     prefix + "_summary.json",
		Timeline: prefix + "_timeline.json",
	}
	return f, errors.Join(
		ExportCSV(samples, "stageq", rep.Target, f.CSV),
		ExportJSON(rep, f.JSON),
		ExportTimeline(samples, f.Timeline),
	)
}
