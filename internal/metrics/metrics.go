// Package metrics exports a live run to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stageq/internal/runner"
	"stageq/internal/sample"
)

const namespace = "stageq"

type Collector struct {
	reg *prometheus.Registry

	requests   *prometheus.CounterVec
	latency    prometheus.Histogram
	bytes      prometheus.Counter
	inflight   prometheus.Gauge
	active     prometheus.Gauge
	targetRate prometheus.Gauge
	stage      prometheus.Gauge
	thresholds *prometheus.GaugeVec
	runs       *prometheus.CounterVec
}

// New builds a collector on its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		reg: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Completed requests by outcome (ok, status, check, error, timeout).",
		}, []string{"result"}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_bytes_total",
			Help:      "Response body bytes received.",
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_requests",
			Help:      "Requests currently awaiting a response.",
		}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Busy worker slots, or running virtual users.",
		}),
		targetRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_rate",
			Help:      "Scheduled rate (req/s) or VU count at this instant.",
		}),
		stage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage",
			Help:      "Index of the active stage, -1 when the profile is complete.",
		}),
		thresholds: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold_passed",
			Help:      "1 if the threshold passed on the last completed run.",
		}, []string{"threshold"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by verdict.",
		}, []string{"passed"}),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// Attach subscribes the collector to a run.
func (c *Collector) Attach(h *runner.Hooks) {
	h.OnSampleObserved(c.ObserveSample)
	h.OnRunComplete(c.ObserveReport)
}

func (c *Collector) ObserveSample(s sample.Sample) {
	c.requests.WithLabelValues(string(s.Reason)).Inc()
	c.latency.Observe(s.Duration.Seconds())
	if s.SizeBytes > 0 {
		c.bytes.Add(float64(s.SizeBytes))
	}
}

func (c *Collector) ObserveProgress(p runner.Progress) {
	c.inflight.Set(float64(p.Inflight))
	c.active.Set(float64(p.Active))
	c.targetRate.Set(p.TargetRate)
	c.stage.Set(float64(p.Stage))
}

func (c *Collector) ObserveReport(rep *runner.Report) {
	for _, r := range rep.Thresholds {
		v := 0.0
		if r.Passed {
			v = 1
		}
		c.thresholds.WithLabelValues(r.Name).Set(v)
	}
	passed := "false"
	if rep.Passed {
		passed = "true"
	}
	c.runs.WithLabelValues(passed).Inc()
	c.inflight.Set(0)
	c.active.Set(0)
	c.stage.Set(-1)
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
