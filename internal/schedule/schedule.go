// Package schedule turns a list of load stages into a continuous target-rate
// function of elapsed run time and its integral.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	ErrNoStages         = errors.New("at least one stage is required")
	ErrNegativeDuration = errors.New("stage duration cannot be negative")
	ErrNegativeTarget   = errors.New("stage target cannot be negative")
	ErrNonFiniteTarget  = errors.New("stage target must be a finite number")
)

// Stage ramps linearly from the previous stage's target to Target over
// Duration. Target is requests/second in rate mode and virtual users in users
// mode.
type Stage struct {
	Duration time.Duration `mapstructure:"duration" json:"duration"`
	Target   float64       `mapstructure:"target" json:"target"`
}

func (s Stage) String() string {
	return fmt.Sprintf("%s:%g", s.Duration, s.Target)
}

// Schedule is immutable after New.
type Schedule struct {
	stages []Stage
	starts []float64 // stage start, seconds
	ends   []float64 // stage end, seconds
	prev   []float64 // rate entering each stage
	cum    []float64 // integral of rate up to each stage start; len(stages)+1
	total  float64
}

// Validate reports the first problem with stages, if any.
func Validate(stages []Stage) error {
	if len(stages) == 0 {
		return ErrNoStages
	}
	for i, st := range stages {
		if st.Duration < 0 {
			return fmt.Errorf("stage %d: %w", i, ErrNegativeDuration)
		}
		if math.IsNaN(st.Target) || math.IsInf(st.Target, 0) {
			return fmt.Errorf("stage %d: %w", i, ErrNonFiniteTarget)
		}
		if st.Target < 0 {
			return fmt.Errorf("stage %d: %w", i, ErrNegativeTarget)
		}
	}
	return nil
}

func New(stages []Stage) (*Schedule, error) {
	if err := Validate(stages); err != nil {
		return nil, err
	}

	n := len(stages)
	s := &Schedule{
		stages: append([]Stage(nil), stages...),
		starts: make([]float64, n),
		ends:   make([]float64, n),
		prev:   make([]float64, n),
		cum:    make([]float64, n+1),
	}

	var at, rPrev float64
	for i, st := range s.stages {
		d := st.Duration.Seconds()
		s.starts[i] = at
		s.ends[i] = at + d
		s.prev[i] = rPrev
		// trapezoid; a zero-length stage contributes nothing and just moves rPrev
		s.cum[i+1] = s.cum[i] + d*(rPrev+st.Target)/2
		at += d
		rPrev = st.Target
	}
	s.total = at
	return s, nil
}

// Stages returns a copy of the stage list.
func (s *Schedule) Stages() []Stage {
	return append([]Stage(nil), s.stages...)
}

// Total is the sum of all stage durations.
func (s *Schedule) Total() time.Duration {
	return time.Duration(s.total * float64(time.Second))
}

// Done reports whether the run is complete at elapsed time t.
func (s *Schedule) Done(t time.Duration) bool {
	return t.Seconds() >= s.total
}

// StageAt returns the index of the stage active at t, or -1 once the run is
// complete.
func (s *Schedule) StageAt(t time.Duration) int {
	sec := t.Seconds()
	if sec >= s.total {
		return -1
	}
	if sec < 0 {
		sec = 0
	}
	// first stage whose end lies beyond t; zero-length stages are skipped
	return sort.Search(len(s.ends), func(i int) bool { return s.ends[i] > sec })
}

// Rate returns the instantaneous target rate r(t).
func (s *Schedule) Rate(t time.Duration) float64 {
	i := s.StageAt(t)
	if i < 0 || t < 0 {
		return 0
	}
	return s.rateIn(i, t.Seconds())
}

func (s *Schedule) rateIn(i int, sec float64) float64 {
	st := s.stages[i]
	d := s.ends[i] - s.starts[i]
	return s.prev[i] + (st.Target-s.prev[i])*(sec-s.starts[i])/d
}

// Expected returns the integral of r over [0, t]: the number of requests that
// should have been issued by t. It is continuous and non-decreasing.
func (s *Schedule) Expected(t time.Duration) float64 {
	if t <= 0 {
		return 0
	}
	i := s.StageAt(t)
	if i < 0 {
		return s.cum[len(s.stages)]
	}
	sec := t.Seconds()
	x := sec - s.starts[i]
	return s.cum[i] + x*(s.prev[i]+s.rateIn(i, sec))/2
}
