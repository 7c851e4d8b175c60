package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"stageq/internal/schedule"
)

// Viper keys that do not map onto Config fields directly.
const (
	KeyStage     = "stage"     // repeated "30s:4"
	KeyRate      = "rate"      // shorthand profile target
	KeyRampUp    = "ramp_up"   // shorthand ramp-up length
	KeySustain   = "duration"  // shorthand steady length
	KeyRampDown  = "ramp_down" // shorthand ramp-down length
	KeyThreshold = "threshold" // repeated "p95<3000"
	KeyHeader    = "header"    // repeated "Key: Value"
)

// Load decodes v into a Config on top of Defaults and validates it. Stages
// come from the `stages` list, else from repeated --stage values, else from
// the ramp-up/duration/ramp-down shorthand.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	verr := &ValidationError{}

	if len(cfg.Stages) == 0 {
		for i, raw := range v.GetStringSlice(KeyStage) {
			st, err := ParseStage(raw)
			if err != nil {
				verr.add(fmt.Sprintf("stage[%d]", i), "%s", err)
				continue
			}
			cfg.Stages = append(cfg.Stages, st)
		}
	}
	if len(cfg.Stages) == 0 && (v.IsSet(KeyRate) || v.IsSet(KeySustain)) {
		cfg.Stages = Profile(v.GetFloat64(KeyRate), v.GetDuration(KeyRampUp), v.GetDuration(KeySustain), v.GetDuration(KeyRampDown))
	}

	for _, expr := range v.GetStringSlice(KeyThreshold) {
		cfg.Thresholds = append(cfg.Thresholds, ThresholdSpec{Expr: expr})
	}

	for i, raw := range v.GetStringSlice(KeyHeader) {
		k, val, ok := ParseHeader(raw)
		if !ok {
			verr.add(fmt.Sprintf("header[%d]", i), "%q is not in 'Key: Value' form", raw)
			continue
		}
		if cfg.Target.Headers == nil {
			cfg.Target.Headers = make(map[string]string)
		}
		cfg.Target.Headers[k] = val
	}
	cfg.Target.Method = strings.ToUpper(cfg.Target.Method)

	if err := Join(verr.orNil(), cfg.Validate(), cfg.ValidateTarget()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Profile builds the classic three-stage shape: ramp from 0 to rate, hold,
// ramp back to 0. A zero ramp-up is a jump straight to rate.
func Profile(rate float64, rampUp, sustain, rampDown time.Duration) []schedule.Stage {
	stages := []schedule.Stage{
		{Duration: rampUp, Target: rate},
		{Duration: sustain, Target: rate},
	}
	if rampDown > 0 {
		stages = append(stages, schedule.Stage{Duration: rampDown, Target: 0})
	}
	return stages
}

// ParseStage parses "duration:target", e.g. "30s:4".
func ParseStage(raw string) (schedule.Stage, error) {
	d, t, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return schedule.Stage{}, fmt.Errorf("stage %q must be 'duration:target'", raw)
	}
	dur, err := time.ParseDuration(strings.TrimSpace(d))
	if err != nil {
		return schedule.Stage{}, fmt.Errorf("stage %q: %w", raw, err)
	}
	target, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
	if err != nil {
		return schedule.Stage{}, fmt.Errorf("stage %q: %w", raw, err)
	}
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return schedule.Stage{}, fmt.Errorf("stage %q: %w", raw, schedule.ErrNonFiniteTarget)
	}
	return schedule.Stage{Duration: dur, Target: target}, nil
}

// ParseHeader splits "Key: Value".
func ParseHeader(raw string) (string, string, bool) {
	k, v, ok := strings.Cut(raw, ":")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", false
	}
	return k, strings.TrimSpace(v), true
}
