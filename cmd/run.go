package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stageq/internal/cli"
	"stageq/internal/config"
	"stageq/internal/metrics"
	"stageq/internal/report"
	"stageq/internal/runner"
	"stageq/internal/storage"
	"stageq/internal/transport"
	"stageq/internal/tui/app"
)

const updateBuffer = 64

// session is everything one load test needs besides the run itself.
type session struct {
	cfg       *config.Config
	log       *zap.Logger
	runner    *runner.Runner
	updates   runner.ProgressChan
	store     *storage.Store
	collector *metrics.Collector
	out       io.Writer
}

func runTest(cmd *cobra.Command, v *viper.Viper) error {
	tui := v.GetBool(keyTUI)
	logPath := "stderr"
	if tui {
		logPath = filepath.Join(os.TempDir(), "stageq.log")
	}
	log, err := newLogger(v.GetString(keyLogLevel), logPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	t, err := transport.NewHTTP(cfg.Target, cfg.RequestTimeout, cfg.Concurrency)
	if err != nil {
		return err
	}
	defer t.CloseIdle()

	s := &session{
		cfg:     cfg,
		log:     log,
		updates: make(runner.ProgressChan, updateBuffer),
		out:     cmd.OutOrStdout(),
	}
	s.runner, err = runner.New(cfg, t, runner.WithLogger(log), runner.WithUpdates(s.updates))
	if err != nil {
		return err
	}

	if cfg.Output.History {
		s.store = openHistory(cfg.Output.HistoryPath, log)
		if s.store != nil {
			defer s.store.Close()
			s.runner.Hooks().OnRunComplete(s.store.Recorder(cfg, func(err error) {
				log.Warn("saving run to history failed", zap.Error(err))
			}))
		}
	}
	if cfg.MetricsAddr != "" {
		s.collector = metrics.New()
		s.collector.Attach(s.runner.Hooks())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rep *runner.Report
	if tui {
		rep, err = s.runTUI(ctx)
	} else {
		rep, err = s.runHeadless(ctx)
	}
	if err != nil {
		return err
	}

	report.WriteText(s.out, rep)
	if !rep.Passed {
		return ErrThresholds
	}
	return nil
}

func openHistory(path string, log *zap.Logger) *storage.Store {
	if path == "" {
		var err error
		if path, err = storage.DefaultPath(); err != nil {
			log.Warn("history disabled", zap.Error(err))
			return nil
		}
	}
	store, err := storage.Open(path)
	if err != nil {
		log.Warn("history disabled", zap.String("path", path), zap.Error(err))
		return nil
	}
	return store
}

// start launches the run, the progress watcher and the metrics server in one
// group. Services stop once the run returns; done is called with its result.
func (s *session) start(ctx context.Context, sinks []func(runner.Progress), done func(*runner.Report, error)) (*errgroup.Group, context.CancelFunc) {
	g, gctx := errgroup.WithContext(ctx)
	svcCtx, stopServices := context.WithCancel(gctx)
	runCtx, cancelRun := context.WithCancel(gctx)

	if s.collector != nil {
		sinks = append(sinks, s.collector.ObserveProgress)
		g.Go(func() error {
			return metrics.Serve(svcCtx, s.cfg.MetricsAddr, s.collector.Handler(), s.log)
		})
	}
	g.Go(func() error {
		cli.Watch(svcCtx, s.updates, sinks...)
		return nil
	})
	g.Go(func() error {
		defer stopServices()
		rep, err := s.runner.Run(runCtx)
		done(rep, err)
		return err
	})
	return g, cancelRun
}

func (s *session) runHeadless(ctx context.Context) (*runner.Report, error) {
	cfg := s.cfg
	report.WriteHeader(s.out, cfg.Target.URL, cfg.Target.Method, string(cfg.Mode), cfg.Stages, cfg.Concurrency)

	display := cli.NewDisplay(s.out, cfg.Mode)
	var rep *runner.Report
	g, cancelRun := s.start(ctx, []func(runner.Progress){display.Update}, func(r *runner.Report, _ error) {
		rep = r
	})
	defer cancelRun()

	err := g.Wait()
	display.Finish()
	if err != nil {
		return nil, err
	}
	s.export(rep)
	return rep, nil
}

func (s *session) runTUI(ctx context.Context) (*runner.Report, error) {
	screen := make(runner.ProgressChan, updateBuffer)
	forward := func(p runner.Progress) {
		select {
		case screen <- p:
		default:
		}
	}

	var (
		p   *tea.Program
		rep *runner.Report
	)
	ready := make(chan struct{})
	g, cancelRun := s.start(ctx, []func(runner.Progress){forward}, func(r *runner.Report, err error) {
		rep = r
		<-ready
		p.Send(app.DoneMsg{Report: r, Err: err})
	})
	defer cancelRun()

	model := app.NewModel(s.cfg, screen, cancelRun, s.store, s.runner.Samples().All)
	p = tea.NewProgram(model, tea.WithAltScreen())
	close(ready)

	if _, err := p.Run(); err != nil {
		cancelRun()
		g.Wait()
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	cancelRun()
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.export(rep)
	return rep, nil
}

func (s *session) export(rep *runner.Report) {
	prefix := s.cfg.Output.Prefix
	if prefix == "" {
		return
	}
	files, err := report.WriteFiles(prefix, rep, s.runner.Samples().All())
	if err != nil {
		s.log.Error("export failed", zap.String("prefix", prefix), zap.Error(err))
		return
	}
	s.log.Info("results exported", zap.String("prefix", prefix), zap.Int("samples", s.runner.Samples().Len()))
	fmt.Fprintf(s.out, "\n📁 Results saved to %s, %s and %s\n", files.CSV, files.JSON, files.Timeline)
}
