package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"stageq/internal/schedule"
	"stageq/internal/stats"
	"stageq/internal/threshold"
)

type Mode string

const (
	// ModeRate is open loop: stage targets are requests per second.
	ModeRate Mode = "rate"
	// ModeUsers is closed loop: stage targets are concurrent virtual users.
	ModeUsers Mode = "users"
)

// Target describes the HTTP request issued on every iteration. URL, header
// values and Body are templates (see transport.TemplateEngine).
type Target struct {
	URL      string            `mapstructure:"url" json:"url"`
	Method   string            `mapstructure:"method" json:"method"`
	Headers  map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	Body     string            `mapstructure:"body" json:"body,omitempty"`
	Insecure bool              `mapstructure:"insecure" json:"insecure,omitempty"`
}

// ThinkTime is a post-completion pause. Min == Max (or Max == 0) is a fixed
// delay, otherwise it is drawn uniformly from [Min, Max].
type ThinkTime struct {
	Min time.Duration `mapstructure:"min" json:"min"`
	Max time.Duration `mapstructure:"max" json:"max"`
}

func (t ThinkTime) Enabled() bool {
	return t.Min > 0 || t.Max > 0
}

// Expect holds response checks on top of the 2xx rule.
type Expect struct {
	Status       []int         `mapstructure:"status" json:"status,omitempty"`
	MaxDuration  time.Duration `mapstructure:"max_duration" json:"max_duration,omitempty"`
	BodyRequired bool          `mapstructure:"body_required" json:"body_required,omitempty"`
	ContentType  string        `mapstructure:"content_type" json:"content_type,omitempty"`
}

type ThresholdSpec struct {
	Name string `mapstructure:"name" json:"name"`
	Expr string `mapstructure:"expr" json:"expr"`
}

type Output struct {
	Prefix      string `mapstructure:"prefix" json:"prefix,omitempty"`
	History     bool   `mapstructure:"history" json:"history"`
	HistoryPath string `mapstructure:"history_path" json:"history_path,omitempty"`
}

// Config is built once at startup, validated, and then shared read-only by
// every component of a run.
type Config struct {
	Target Target           `mapstructure:"target" json:"target"`
	Mode   Mode             `mapstructure:"mode" json:"mode"`
	Stages []schedule.Stage `mapstructure:"stages" json:"stages"`

	// Concurrency caps in-flight requests (rate mode) or VUs (users mode).
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`
	// Workers is the number of pre-started pool workers.
	Workers int `mapstructure:"workers" json:"workers"`

	Tick           time.Duration `mapstructure:"tick" json:"tick"`
	RequestTimeout time.Duration `mapstructure:"timeout" json:"timeout"`
	GracePeriod    time.Duration `mapstructure:"grace" json:"grace"`
	MaxDuration    time.Duration `mapstructure:"max_duration" json:"max_duration,omitempty"`
	UpdateInterval time.Duration `mapstructure:"update_interval" json:"update_interval"`

	ThinkTime   ThinkTime       `mapstructure:"think_time" json:"think_time"`
	Expect      Expect          `mapstructure:"expect" json:"expect"`
	Thresholds  []ThresholdSpec `mapstructure:"thresholds" json:"thresholds,omitempty"`
	Percentiles []float64       `mapstructure:"percentiles" json:"percentiles"`

	Output      Output `mapstructure:"output" json:"output"`
	MetricsAddr string `mapstructure:"metrics_addr" json:"metrics_addr,omitempty"`
}

const (
	DefaultConcurrency    = 100
	DefaultWorkers        = 10
	DefaultTick           = 100 * time.Millisecond
	DefaultRequestTimeout = 30 * time.Second
	DefaultGracePeriod    = 30 * time.Second
	DefaultUpdateInterval = 200 * time.Millisecond
)

func Defaults() *Config {
	return &Config{
		Target:         Target{Method: "GET"},
		Mode:           ModeRate,
		Concurrency:    DefaultConcurrency,
		Tick:           DefaultTick,
		RequestTimeout: DefaultRequestTimeout,
		GracePeriod:    DefaultGracePeriod,
		UpdateInterval: DefaultUpdateInterval,
		Percentiles:    append([]float64(nil), stats.DefaultPercentiles...),
		Output:         Output{History: true},
	}
}

// Total is the length of the stage profile.
func (c *Config) Total() time.Duration {
	var d time.Duration
	for _, s := range c.Stages {
		d += s.Duration
	}
	return d
}

// PoolSize resolves the pre-started worker count.
func (c *Config) PoolSize() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return min(DefaultWorkers, c.Concurrency)
}

// CompileThresholds parses every threshold expression.
func (c *Config) CompileThresholds() ([]threshold.Threshold, error) {
	out := make([]threshold.Threshold, 0, len(c.Thresholds))
	for i, spec := range c.Thresholds {
		t, err := threshold.Parse(spec.Name, spec.Expr)
		if err != nil {
			return nil, fmt.Errorf("thresholds[%d]: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Validate checks everything the engine needs. It returns a
// *ValidationError listing every problem found.
func (c *Config) Validate() error {
	v := &ValidationError{}

	switch c.Mode {
	case ModeRate, ModeUsers:
	default:
		v.add("mode", "must be %q or %q, got %q", ModeRate, ModeUsers, c.Mode)
	}

	if len(c.Stages) == 0 {
		v.add("stages", "%s", schedule.ErrNoStages)
	}
	for i, s := range c.Stages {
		field := fmt.Sprintf("stages[%d]", i)
		if s.Duration < 0 {
			v.add(field+".duration", "%s", schedule.ErrNegativeDuration)
		}
		switch {
		case math.IsNaN(s.Target) || math.IsInf(s.Target, 0):
			v.add(field+".target", "%s", schedule.ErrNonFiniteTarget)
		case s.Target < 0:
			v.add(field+".target", "%s", schedule.ErrNegativeTarget)
		}
	}

	if c.Concurrency <= 0 {
		v.add("concurrency", "must be greater than 0")
	}
	if c.Workers < 0 {
		v.add("workers", "cannot be negative")
	}
	if c.Concurrency > 0 && c.Workers > c.Concurrency {
		v.add("workers", "cannot exceed concurrency (%d)", c.Concurrency)
	}
	if c.Tick <= 0 {
		v.add("tick", "must be greater than 0")
	}
	if c.RequestTimeout <= 0 {
		v.add("timeout", "must be greater than 0")
	}
	if c.GracePeriod < 0 {
		v.add("grace", "cannot be negative")
	}
	if c.MaxDuration < 0 {
		v.add("max_duration", "cannot be negative")
	}
	if c.UpdateInterval < 0 {
		v.add("update_interval", "cannot be negative")
	}
	if c.ThinkTime.Min < 0 {
		v.add("think_time.min", "cannot be negative")
	}
	if c.ThinkTime.Max != 0 && c.ThinkTime.Max < c.ThinkTime.Min {
		v.add("think_time.max", "cannot be less than think_time.min")
	}

	for i, code := range c.Expect.Status {
		if code < 100 || code > 599 {
			v.add(fmt.Sprintf("expect.status[%d]", i), "%d is not an HTTP status code", code)
		}
	}
	if c.Expect.MaxDuration < 0 {
		v.add("expect.max_duration", "cannot be negative")
	}

	for i, spec := range c.Thresholds {
		if _, err := threshold.Parse(spec.Name, spec.Expr); err != nil {
			v.add(fmt.Sprintf("thresholds[%d]", i), "%s", err)
		}
	}
	for i, p := range c.Percentiles {
		if !(p > 0 && p <= 100) {
			v.add(fmt.Sprintf("percentiles[%d]", i), "%g is outside (0, 100]", p)
		}
	}

	return v.orNil()
}

// ValidateTarget checks the HTTP target. Runs driven by a custom transport
// skip it.
func (c *Config) ValidateTarget() error {
	v := &ValidationError{}
	if c.Target.URL == "" {
		v.add("target.url", "is required")
	} else if !strings.Contains(c.Target.URL, "{{") {
		u, err := url.Parse(c.Target.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			v.add("target.url", "%q is not an absolute URL", c.Target.URL)
		}
	}
	if c.Target.Method == "" {
		v.add("target.method", "is required")
	}
	return v.orNil()
}
