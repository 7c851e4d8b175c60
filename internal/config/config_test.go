package config

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageq/internal/schedule"
	"stageq/internal/threshold"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Target.URL = "http://localhost:8080/fast"
	cfg.Stages = Profile(4, 30*time.Second, 5*time.Minute, 30*time.Second)
	return cfg
}

func issueFields(t *testing.T, err error) []string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "want *ValidationError, got %T: %v", err, err)
	fields := make([]string, len(verr.Issues))
	for i, is := range verr.Issues {
		fields[i] = is.Field
	}
	return fields
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateTarget())
	assert.Equal(t, 6*time.Minute, cfg.Total())
	assert.Equal(t, DefaultWorkers, cfg.PoolSize())
}

func TestValidate_CollectsAllIssues(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "burst"
	cfg.Stages = []schedule.Stage{{Duration: -time.Second, Target: -1}}
	cfg.Concurrency = 0
	cfg.RequestTimeout = 0
	cfg.ThinkTime = ThinkTime{Min: 2 * time.Second, Max: time.Second}
	cfg.Thresholds = []ThresholdSpec{{Expr: "latency < 3s"}, {Expr: "p95 < 3s"}}
	cfg.Percentiles = []float64{0, 95}
	cfg.Expect.Status = []int{200, 42}

	err := cfg.Validate()
	fields := issueFields(t, err)
	assert.ElementsMatch(t, []string{
		"mode",
		"stages[0].duration",
		"stages[0].target",
		"concurrency",
		"timeout",
		"think_time.max",
		"thresholds[0]",
		"percentiles[0]",
		"expect.status[1]",
	}, fields)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), threshold.ErrUnknownMetric.Error())
}

func TestValidate_RejectsNonFiniteValues(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"NaN target", func(c *Config) { c.Stages[1].Target = math.NaN() }, "stages[1].target"},
		{"+Inf target", func(c *Config) { c.Stages[1].Target = math.Inf(1) }, "stages[1].target"},
		{"-Inf target", func(c *Config) { c.Stages[0].Target = math.Inf(-1) }, "stages[0].target"},
		{"NaN threshold", func(c *Config) { c.Thresholds = []ThresholdSpec{{Expr: "p95 < NaN"}} }, "thresholds[0]"},
		{"Inf threshold", func(c *Config) { c.Thresholds = []ThresholdSpec{{Expr: "errorRate < Inf"}} }, "thresholds[0]"},
		{"NaN percentile", func(c *Config) { c.Percentiles = []float64{math.NaN()} }, "percentiles[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.edit(cfg)
			assert.Equal(t, []string{tc.field}, issueFields(t, cfg.Validate()))
		})
	}
}

func TestValidate_NoStages(t *testing.T) {
	cfg := validConfig()
	cfg.Stages = nil
	assert.Equal(t, []string{"stages"}, issueFields(t, cfg.Validate()))
}

func TestValidate_WorkersAboveCeiling(t *testing.T) {
	cfg := validConfig()
	cfg.Concurrency = 5
	cfg.Workers = 6
	assert.Equal(t, []string{"workers"}, issueFields(t, cfg.Validate()))

	cfg.Workers = 0
	assert.Equal(t, 5, cfg.PoolSize())
}

func TestValidateTarget(t *testing.T) {
	cfg := validConfig()
	cfg.Target.URL = ""
	assert.Equal(t, []string{"target.url"}, issueFields(t, cfg.ValidateTarget()))

	cfg.Target.URL = "localhost:8080"
	assert.Equal(t, []string{"target.url"}, issueFields(t, cfg.ValidateTarget()))

	cfg.Target.URL = "{{.BaseURL}}/fast"
	assert.NoError(t, cfg.ValidateTarget())
}

func TestCompileThresholds(t *testing.T) {
	cfg := validConfig()
	cfg.Thresholds = []ThresholdSpec{{Name: "latency", Expr: "p95 < 3000"}, {Expr: "errorRate < 0.01"}}
	ts, err := cfg.CompileThresholds()
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "latency", ts[0].Name)
	assert.Equal(t, "errorRate < 0.01", ts[1].Name)
}

const sampleYAML = `
target:
  url: http://localhost:8080/api/v1/evaluate
  method: post
  headers:
    Content-Type: application/json
  body: '{"id":"{{.RequestID}}"}'
stages:
  - duration: 30s
    target: 4
  - duration: 5m
    target: 4
  - duration: 30s
    target: 0
concurrency: 50
timeout: 30s
grace: 5s
think_time:
  min: 1s
thresholds:
  - name: latency
    expr: p(95) < 3000
  - expr: errorRate < 0.01
expect:
  status: [200]
  body_required: true
`

func loadYAML(t *testing.T, doc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))
	return v
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(loadYAML(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "POST", cfg.Target.Method)
	assert.Equal(t, "application/json", cfg.Target.Headers["content-type"])
	assert.Len(t, cfg.Stages, 3)
	assert.Equal(t, 5*time.Minute, cfg.Stages[1].Duration)
	assert.Equal(t, 4.0, cfg.Stages[1].Target)
	assert.Equal(t, 50, cfg.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.GracePeriod)
	assert.Equal(t, time.Second, cfg.ThinkTime.Min)
	assert.Equal(t, []int{200}, cfg.Expect.Status)
	assert.True(t, cfg.Expect.BodyRequired)
	require.Len(t, cfg.Thresholds, 2)
	assert.Equal(t, "latency", cfg.Thresholds[0].Name)
	assert.Equal(t, DefaultTick, cfg.Tick)
	assert.Equal(t, ModeRate, cfg.Mode)
}

func TestLoad_StageFlagsAndShorthand(t *testing.T) {
	v := viper.New()
	v.Set("target.url", "http://localhost:8080/fast")
	v.Set(KeyStage, []string{"10s:2", "20s:2", "10s:0"})
	v.Set(KeyThreshold, []string{"p95<3000"})
	v.Set(KeyHeader, []string{"X-Run: smoke"})

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, []schedule.Stage{
		{Duration: 10 * time.Second, Target: 2},
		{Duration: 20 * time.Second, Target: 2},
		{Duration: 10 * time.Second, Target: 0},
	}, cfg.Stages)
	assert.Equal(t, []ThresholdSpec{{Expr: "p95<3000"}}, cfg.Thresholds)
	assert.Equal(t, "smoke", cfg.Target.Headers["X-Run"])

	v = viper.New()
	v.Set("target.url", "http://localhost:8080/fast")
	v.Set(KeyRate, 4)
	v.Set(KeyRampUp, "30s")
	v.Set(KeySustain, "5m")
	v.Set(KeyRampDown, "30s")
	cfg, err = Load(v)
	require.NoError(t, err)
	assert.Equal(t, Profile(4, 30*time.Second, 5*time.Minute, 30*time.Second), cfg.Stages)
}

func TestLoad_ReportsBadInput(t *testing.T) {
	v := viper.New()
	v.Set(KeyStage, []string{"ten:2"})
	v.Set(KeyHeader, []string{"novalue"})

	_, err := Load(v)
	fields := issueFields(t, err)
	assert.Contains(t, fields, "stage[0]")
	assert.Contains(t, fields, "header[0]")
	assert.Contains(t, fields, "stages")
	assert.Contains(t, fields, "target.url")
}

func TestProfile_ZeroRampUpJumps(t *testing.T) {
	stages := Profile(10, 0, time.Minute, 0)
	require.Len(t, stages, 2)
	s, err := schedule.New(stages)
	require.NoError(t, err)
	assert.Equal(t, 10.0, s.Rate(0))
}

func TestParseStage(t *testing.T) {
	st, err := ParseStage(" 1m30s : 2.5 ")
	require.NoError(t, err)
	assert.Equal(t, schedule.Stage{Duration: 90 * time.Second, Target: 2.5}, st)

	_, err = ParseStage("30s")
	assert.Error(t, err)
	_, err = ParseStage("30s:x")
	assert.Error(t, err)

	for _, raw := range []string{"300ms:NaN", "1s:Inf", "1s:-Inf", "1s:+infinity"} {
		_, err = ParseStage(raw)
		assert.ErrorIs(t, err, schedule.ErrNonFiniteTarget, raw)
	}
}
