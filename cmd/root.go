package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"stageq/internal/banner"
	"stageq/internal/config"
)

const (
	keyConfig   = "config"
	keyLogLevel = "log_level"
	keyTUI      = "tui"
)

// ExitThresholds is the exit status when the run completes but a threshold
// fails.
const ExitThresholds = 99

var ErrThresholds = errors.New("thresholds failed")

// flagKeys maps flag names onto viper keys.
var flagKeys = map[string]string{
	"config":              keyConfig,
	"url":                 "target.url",
	"method":              "target.method",
	"body":                "target.body",
	"insecure":            "target.insecure",
	"header":              config.KeyHeader,
	"mode":                "mode",
	"stage":               config.KeyStage,
	"rate":                config.KeyRate,
	"ramp-up":             config.KeyRampUp,
	"duration":            config.KeySustain,
	"ramp-down":           config.KeyRampDown,
	"concurrency":         "concurrency",
	"workers":             "workers",
	"tick":                "tick",
	"timeout":             "timeout",
	"grace":               "grace",
	"max-duration":        "max_duration",
	"update-interval":     "update_interval",
	"think-min":           "think_time.min",
	"think-max":           "think_time.max",
	"expect-status":       "expect.status",
	"expect-max-duration": "expect.max_duration",
	"expect-body":         "expect.body_required",
	"expect-content-type": "expect.content_type",
	"threshold":           config.KeyThreshold,
	"out":                 "output.prefix",
	"history":             "output.history",
	"history-path":        "output.history_path",
	"metrics-addr":        "metrics_addr",
	"log-level":           keyLogLevel,
	"tui":                 keyTUI,
}

// NewRootCmd builds the command tree on its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "stageq",
		Short: "stageq - staged HTTP load generator",
		Long: `
stageq drives an HTTP endpoint through a staged load profile, measures
every request and checks the result against pass/fail thresholds.

Stages are "duration:target" pairs; targets are requests per second in
rate mode (open loop) or virtual users in users mode (closed loop).

  stageq -u http://localhost:8080/fast --stage 30s:4 --stage 5m:4 --stage 30s:0 \
         -t "p(95)<3000" -t "errorRate<0.01"

Exits with status 99 when a threshold fails.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, v)
		},
	}
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), banner.GetString())
		cmd.Usage()
	})

	d := config.Defaults()
	pf := root.PersistentFlags()
	pf.String(keyConfig, "", "config file (default is $HOME/.stageq.yaml)")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.String("history-path", "", "run history database (default is $HOME/.stageq/history.db)")

	f := root.Flags()
	f.StringP("url", "u", "", "target URL (templates allowed)")
	f.StringP("method", "X", d.Target.Method, "HTTP method")
	f.StringP("body", "b", "", "request body (templates allowed)")
	f.Bool("insecure", false, "skip TLS certificate verification")
	f.StringSliceP("header", "H", nil, `HTTP header, e.g. "Content-Type: application/json"`)

	f.String("mode", string(d.Mode), "rate (open loop, req/s) or users (closed loop, VUs)")
	f.StringSliceP("stage", "s", nil, `stage as duration:target, repeatable, e.g. "30s:4"`)
	f.Float64P("rate", "r", 10, "target of the ramp-up/duration/ramp-down shorthand")
	f.Duration("ramp-up", 0, "shorthand: ramp from 0 to --rate")
	f.DurationP("duration", "d", 0, "shorthand: hold --rate")
	f.Duration("ramp-down", 0, "shorthand: ramp from --rate to 0")

	f.IntP("concurrency", "c", d.Concurrency, "max in-flight requests (rate) or VUs (users)")
	f.Int("workers", d.Workers, "pre-started workers (0 = min(10, concurrency))")
	f.Duration("tick", d.Tick, "scheduler tick")
	f.Duration("timeout", d.RequestTimeout, "per-request timeout")
	f.Duration("grace", d.GracePeriod, "time in-flight requests get to finish after a stop")
	f.Duration("max-duration", 0, "hard stop for the whole run (0 = none)")
	f.Duration("update-interval", d.UpdateInterval, "progress refresh interval")
	f.Duration("think-min", 0, "think time after each request (minimum)")
	f.Duration("think-max", 0, "think time after each request (maximum, random in [min,max])")

	f.IntSlice("expect-status", nil, "accepted status codes (default any 2xx)")
	f.Duration("expect-max-duration", 0, "fail responses slower than this")
	f.Bool("expect-body", false, "fail responses with an empty body")
	f.String("expect-content-type", "", "fail responses whose Content-Type lacks this")
	f.StringSliceP("threshold", "t", nil, `pass/fail threshold, repeatable, e.g. "p(95)<3000"`)

	f.StringP("out", "o", "", "write <prefix>.csv, <prefix>_summary.json and <prefix>_timeline.json")
	f.Bool("history", d.Output.History, "save the run to history")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.Bool("tui", false, "show the interactive dashboard")

	bindFlags(v, pf)
	bindFlags(v, f)

	root.AddCommand(newDummyCmd(v), newHistoryCmd(v))
	return root
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(fl *pflag.Flag) {
		if key, ok := flagKeys[fl.Name]; ok {
			v.BindPFlag(key, fl)
		}
	})
}

func initConfig(v *viper.Viper) error {
	v.SetEnvPrefix("STAGEQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".stageq")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Execute runs the CLI and exits with its status.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		if errors.Is(err, ErrThresholds) {
			os.Exit(ExitThresholds)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
