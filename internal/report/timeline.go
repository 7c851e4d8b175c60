package report

import (
	"encoding/json"
	"os"
	"slices"
	"time"

	"stageq/internal/sample"
)

// Bucket aggregates the samples that started within one second of run time.
type Bucket struct {
	Second    int64   `json:"second"`
	Requests  int     `json:"requests"`
	Errors    int     `json:"errors"`
	MeanMs    float64 `json:"mean_ms"`
	MaxMs     float64 `json:"max_ms"`
	totalTime time.Duration
}

// Timeline groups samples per second of run time, in order. Seconds with no
// samples are omitted.
func Timeline(samples []sample.Sample) []Bucket {
	buckets := make(map[int64]*Bucket)

	for _, s := range samples {
		sec := int64(s.Offset / time.Second)
		b, ok := buckets[sec]
		if !ok {
			b = &Bucket{Second: sec}
			buckets[sec] = b
		}
		b.Requests++
		if !s.Success {
			b.Errors++
		}
		b.totalTime += s.Duration
		if ms := msOf(s.Duration); ms > b.MaxMs {
			b.MaxMs = ms
		}
	}

	timeline := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		b.MeanMs = msOf(b.totalTime) / float64(b.Requests)
		timeline = append(timeline, *b)
	}
	slices.SortFunc(timeline, func(a, b Bucket) int {
		return int(a.Second - b.Second)
	})
	return timeline
}

func ExportTimeline(samples []sample.Sample, filename string) error {
	data, err := json.MarshalIndent(Timeline(samples), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

func msOf(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
