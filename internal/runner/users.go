package runner

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// runUsers is the closed-loop driver: stage targets are virtual users, each
// sending a request, waiting for it, thinking, and going again. The VU count
// follows the profile, rounded, and never exceeds the concurrency ceiling.
// A retired VU still counts against the ceiling until its last request
// returns.
func (r *Runner) runUsers(ctx context.Context, clock *Clock) (stopped bool, err error) {
	var (
		wg   sync.WaitGroup
		vus  []context.CancelFunc
		live atomic.Int64
	)
	ceiling := r.cfg.Concurrency
	capped := false
	stage := 0

	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

loop:
	for {
		now := clock.Elapsed()
		if r.sched.Done(now) {
			r.stageChanged(stage, now)
			break
		}
		stage = r.stageChanged(stage, now)

		want := int(math.Round(r.sched.Rate(now)))
		if want > ceiling {
			if !capped {
				capped = true
				r.log.Warn("virtual users capped by concurrency",
					zap.Int("wanted", want), zap.Int("concurrency", ceiling))
			}
			want = ceiling
		}

		for len(vus) > want {
			last := len(vus) - 1
			vus[last]()
			vus = vus[:last]
		}
		for len(vus) < want && live.Load() < int64(ceiling) {
			vctx, cancel := context.WithCancel(ctx)
			vus = append(vus, cancel)
			id := len(vus)
			live.Add(1)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer live.Add(-1)
				r.vu(vctx, id)
			}()
		}
		r.active.Store(live.Load())

		select {
		case <-ctx.Done():
			stopped = true
			break loop
		case <-ticker.C:
		}
	}

	for _, cancel := range vus {
		cancel()
	}
	r.drain(wg.Wait, stopped)
	r.active.Store(0)
	return stopped, nil
}

// vu loops until its context is cancelled. A cancelled VU finishes the
// request it is waiting on.
func (r *Runner) vu(ctx context.Context, id int) {
	for ctx.Err() == nil {
		seq := r.issued.Add(1)
		r.execute(seq, id, time.Now())
		r.think(ctx)
	}
}
