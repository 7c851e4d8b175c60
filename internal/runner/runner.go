package runner

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stageq/internal/config"
	"stageq/internal/sample"
	"stageq/internal/schedule"
	"stageq/internal/stats"
	"stageq/internal/threshold"
	"stageq/internal/transport"
)

var (
	ErrAlreadyRun  = errors.New("runner has already been started")
	ErrNoTransport = errors.New("transport is required")
)

// maxStreamHint bounds the sample stream's initial allocation.
const maxStreamHint = 1 << 20

type Option func(*Runner)

func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithUpdates makes the runner push a Progress every UpdateInterval.
func WithUpdates(ch ProgressChan) Option {
	return func(r *Runner) { r.updates = ch }
}

// WithRand sets the source used for think-time jitter.
func WithRand(rng *rand.Rand) Option {
	return func(r *Runner) {
		if rng != nil {
			r.rng = rng
		}
	}
}

// Runner drives one load test: it turns the stage profile into requests,
// executes them through a Transport and aggregates the outcome.
type Runner struct {
	cfg        *config.Config
	sched      *schedule.Schedule
	thresholds []threshold.Threshold
	transport  transport.Transport
	log        *zap.Logger
	updates    ProgressChan
	hooks      Hooks

	rngMu sync.Mutex
	rng   *rand.Rand

	agg    *stats.Aggregator
	stream *sample.Stream

	started  atomic.Bool
	clock    atomic.Pointer[Clock]
	issued   atomic.Uint64
	inflight atomic.Int64
	active   atomic.Int64

	// set by Run before any request goroutine starts
	hardCtx    context.Context
	hardCancel context.CancelFunc
	idleCtx    context.Context
	idleCancel context.CancelFunc
}

// New validates cfg and prepares a run. Nothing is sent until Run.
func New(cfg *config.Config, t transport.Transport, opts ...Option) (*Runner, error) {
	if t == nil {
		return nil, ErrNoTransport
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sched, err := schedule.New(cfg.Stages)
	if err != nil {
		return nil, err
	}
	ths, err := cfg.CompileThresholds()
	if err != nil {
		return nil, err
	}

	hint := sched.Expected(sched.Total())
	if cfg.Mode != config.ModeRate || hint > maxStreamHint {
		hint = 0
	}

	r := &Runner{
		cfg:        cfg,
		sched:      sched,
		thresholds: ths,
		transport:  t,
		log:        zap.NewNop(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		agg:        stats.NewAggregator(cfg.Percentiles),
		stream:     sample.NewStream(int(hint)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Runner) Config() *config.Config {
	return r.cfg
}

func (r *Runner) Schedule() *schedule.Schedule {
	return r.sched
}

// Hooks returns the subscription points. Subscribe before calling Run.
func (r *Runner) Hooks() *Hooks {
	return &r.hooks
}

// Samples is the run's sample stream. It is frozen once Run returns.
func (r *Runner) Samples() *sample.Stream {
	return r.stream
}

// Summary is the live aggregate; safe to call at any time.
func (r *Runner) Summary() stats.Summary {
	return r.agg.Snapshot()
}

// Progress reports where the run is. Before Run it reads zero.
func (r *Runner) Progress() Progress {
	p := Progress{
		Total:    r.sched.Total(),
		Issued:   r.issued.Load(),
		Inflight: r.inflight.Load(),
		Active:   r.active.Load(),
		Summary:  r.agg.Snapshot(),
	}
	c := r.clock.Load()
	if c == nil {
		return p
	}
	p.Elapsed = min(c.Elapsed(), p.Total)
	p.Stage = r.sched.StageAt(c.Elapsed())
	p.TargetRate = r.sched.Rate(c.Elapsed())
	return p
}

// Run executes the profile and blocks until every issued request has
// produced a sample. Cancelling ctx (or reaching MaxDuration) stops new
// requests; those still in flight get GracePeriod to finish and are then
// recorded as timeouts. A Runner can only be run once.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if !r.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	r.hardCtx, r.hardCancel = context.WithCancel(context.Background())
	defer r.hardCancel()
	r.idleCtx, r.idleCancel = context.WithCancel(context.Background())
	defer r.idleCancel()

	runCtx := ctx
	if r.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.MaxDuration)
		defer cancel()
	}

	clock := NewClock()
	r.clock.Store(clock)
	info := RunInfo{
		ID:        newRunID(),
		StartedAt: clock.Start(),
		Mode:      r.cfg.Mode,
		Stages:    r.sched.Stages(),
		Total:     r.sched.Total(),
	}
	r.log.Info("run starting",
		zap.String("id", info.ID),
		zap.String("mode", string(info.Mode)),
		zap.Int("stages", len(info.Stages)),
		zap.Duration("total", info.Total),
		zap.Int("concurrency", r.cfg.Concurrency),
	)
	r.hooks.runStart(info)

	stopTicks := r.startTickLoop()

	var (
		stopped bool
		unsent  uint64
		err     error
	)
	switch r.cfg.Mode {
	case config.ModeUsers:
		stopped, err = r.runUsers(runCtx, clock)
	default:
		stopped, unsent, err = r.runRate(runCtx, clock)
	}
	stopTicks()
	r.stream.Freeze()
	if err != nil {
		r.log.Error("run failed", zap.String("id", info.ID), zap.Error(err))
		return nil, err
	}

	summary := r.agg.Snapshot()
	results := threshold.EvaluateAll(r.thresholds, summary)
	rep := &Report{
		ID:          info.ID,
		StartedAt:   info.StartedAt,
		Duration:    clock.Elapsed(),
		Mode:        info.Mode,
		Target:      r.cfg.Target.URL,
		Stages:      info.Stages,
		Interrupted: stopped,
		Issued:      r.issued.Load(),
		Unsent:      unsent,
		Summary:     summary,
		Thresholds:  results,
		Passed:      threshold.Passed(results),
	}

	r.log.Info("run complete",
		zap.String("id", rep.ID),
		zap.Uint64("requests", summary.Count),
		zap.Uint64("failed", summary.Failed),
		zap.Uint64("unsent", unsent),
		zap.Bool("interrupted", stopped),
		zap.Bool("passed", rep.Passed),
	)
	if unsent > 0 {
		r.log.Warn("concurrency ceiling kept requests from being sent",
			zap.Uint64("unsent", unsent), zap.Int("concurrency", r.cfg.Concurrency))
	}

	r.hooks.runComplete(rep)
	r.sendUpdate()
	return rep, nil
}

// runRate is the open-loop driver. Every tick it issues whatever the
// schedule's integral says is owed, so slow responses never slow the
// arrival rate. Requests over the ceiling stay owed and are retried as soon
// as a slot frees.
func (r *Runner) runRate(ctx context.Context, clock *Clock) (stopped bool, unsent uint64, err error) {
	p, err := newPool(r.cfg.PoolSize(), r.cfg.Concurrency, r.handle)
	if err != nil {
		return false, 0, err
	}

	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	total := r.sched.Total()
	saturated := false
	stage := 0
	var owed int64

loop:
	for {
		now := clock.Elapsed()
		done := r.sched.Done(now)
		if done {
			now = total
		}
		stage = r.stageChanged(stage, now)

		owed = int64(math.Floor(r.sched.Expected(now)+1e-9)) - int64(r.issued.Load())
		for owed > 0 {
			if !p.tryDispatch(job{seq: r.issued.Load() + 1, dispatched: time.Now()}) {
				break
			}
			r.issued.Add(1)
			owed--
		}
		r.active.Store(p.Busy())

		if owed > 0 && !saturated {
			saturated = true
			r.log.Warn("concurrency ceiling reached, deferring requests",
				zap.Int("concurrency", r.cfg.Concurrency), zap.Duration("elapsed", now))
		} else if owed == 0 {
			saturated = false
		}
		if done {
			break
		}

		var freed <-chan struct{}
		if owed > 0 {
			freed = p.Freed()
		}
		select {
		case <-ctx.Done():
			stopped = true
			break loop
		case <-ticker.C:
		case <-freed:
		}
	}

	if owed > 0 {
		unsent = uint64(owed)
	}
	r.drain(p.close, stopped)
	r.active.Store(0)
	return stopped, unsent, nil
}

// stageChanged logs every stage boundary crossed since prev and returns the
// stage now running (len(stages) once the profile is over).
func (r *Runner) stageChanged(prev int, now time.Duration) int {
	cur := r.sched.StageAt(now)
	if cur < 0 {
		cur = len(r.sched.Stages())
	}
	for ; prev < cur; prev++ {
		r.log.Info("stage complete",
			zap.Int("stage", prev+1),
			zap.Stringer("profile", r.sched.Stages()[prev]),
			zap.Uint64("issued", r.issued.Load()),
			zap.Duration("elapsed", now))
	}
	return cur
}

func (r *Runner) handle(j job) {
	r.execute(j.seq, 0, j.dispatched)
	r.think(r.idleCtx)
}

// drain waits for in-flight work. After a stop, requests still running when
// the grace period ends are cancelled and recorded as timeouts.
func (r *Runner) drain(wait func(), stopped bool) {
	r.idleCancel()

	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	if !stopped {
		<-done
		return
	}

	r.log.Info("stopping, waiting for in-flight requests",
		zap.Int64("inflight", r.inflight.Load()), zap.Duration("grace", r.cfg.GracePeriod))
	timer := time.NewTimer(r.cfg.GracePeriod)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		r.log.Warn("grace period expired, cancelling in-flight requests",
			zap.Int64("inflight", r.inflight.Load()))
		r.hardCancel()
		<-done
	}
}

type outcome struct {
	meta transport.ResponseMeta
	err  error
}

// execute issues one request and records exactly one sample for it, even if
// the transport ignores its context.
func (r *Runner) execute(seq uint64, vu int, dispatched time.Time) sample.Sample {
	clock := r.clock.Load()
	req := transport.Request{Seq: seq, ID: uuid.NewString(), VU: vu}

	r.inflight.Add(1)
	defer r.inflight.Add(-1)

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.hardCtx, r.cfg.RequestTimeout)
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		meta, err := r.transport.Execute(ctx, req)
		ch <- outcome{meta, err}
	}()

	var out outcome
	select {
	case out = <-ch:
	case <-ctx.Done():
		out = outcome{meta: transport.ResponseMeta{BodyLength: -1}, err: ctx.Err()}
	}
	end := time.Now()

	s := sample.Sample{
		Seq:        seq,
		ID:         req.ID,
		IssuedAt:   start,
		Offset:     clock.At(start),
		Duration:   end.Sub(start),
		QueueWait:  max(0, start.Sub(dispatched)),
		StatusCode: out.meta.StatusCode,
		SizeBytes:  out.meta.BodyLength,
	}
	s.Success, s.Reason, s.Err = r.classify(ctx, out, s.Duration)

	r.agg.Observe(s)
	if err := r.stream.Append(s); err != nil {
		r.log.Debug("sample dropped", zap.Uint64("seq", seq), zap.Error(err))
	}
	r.hooks.sampleObserved(s)
	return s
}

func (r *Runner) think(ctx context.Context) {
	d := r.thinkDuration()
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (r *Runner) thinkDuration() time.Duration {
	tt := r.cfg.ThinkTime
	if tt.Max <= tt.Min {
		return tt.Min
	}
	r.rngMu.Lock()
	n := r.rng.Int63n(int64(tt.Max-tt.Min) + 1)
	r.rngMu.Unlock()
	return tt.Min + time.Duration(n)
}

// startTickLoop pushes Progress to the updates channel until the returned
// stop func is called. stop returns once the loop has exited.
func (r *Runner) startTickLoop() (stop func()) {
	if r.updates == nil || r.cfg.UpdateInterval <= 0 {
		return func() {}
	}
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.cfg.UpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				r.sendUpdate()
			}
		}
	}()
	return func() {
		close(quit)
		<-done
	}
}

func (r *Runner) sendUpdate() {
	if r.updates == nil {
		return
	}
	// Drop the update if the consumer is behind.
	select {
	case r.updates <- r.Progress():
	default:
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
