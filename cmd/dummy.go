package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"stageq/internal/dummy"
)

func newDummyCmd(v *viper.Viper) *cobra.Command {
	cfg := dummy.ServerConfig{}
	cmd := &cobra.Command{
		Use:   "dummy",
		Short: "Run the built-in demo target server",
		Long: `Serves endpoints with known behaviour for trying out profiles:
  /fast  /medium  /slow  /spike  /error  and POST /api/v1/evaluate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(v.GetString(keyLogLevel), "stderr")
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cmd.Printf("dummy server on %s\n", cfg.Addr)
			if err := dummy.Start(ctx, cfg, log); err != nil {
				log.Error("dummy server stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfg.Addr, "addr", "a", ":8080", "listen address")
	cmd.Flags().Float64Var(&cfg.LatencyScale, "latency-scale", 1, "multiply every simulated delay")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 0, "random seed (0 = time based)")
	return cmd
}
