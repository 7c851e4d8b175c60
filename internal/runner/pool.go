package runner

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var ErrPoolInit = errors.New("cannot start worker pool")

type job struct {
	seq        uint64
	dispatched time.Time
}

// pool runs jobs on a set of persistent workers and, when none is idle, on
// transient goroutines. Busy slots never exceed the ceiling. tryDispatch must
// only be called from one goroutine.
type pool struct {
	jobs    chan job
	ceiling int64
	busy    atomic.Int64
	spawned atomic.Uint64 // transient workers started
	freed   chan struct{}
	run     func(job)
	wg      sync.WaitGroup
}

func newPool(size, ceiling int, run func(job)) (*pool, error) {
	if ceiling <= 0 || size <= 0 || size > ceiling {
		return nil, fmt.Errorf("%w: %d workers with ceiling %d", ErrPoolInit, size, ceiling)
	}
	p := &pool{
		jobs:    make(chan job),
		ceiling: int64(ceiling),
		freed:   make(chan struct{}, 1),
		run:     run,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p, nil
}

func (p *pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.handle(j)
	}
}

func (p *pool) handle(j job) {
	defer p.release()
	p.run(j)
}

func (p *pool) release() {
	p.busy.Add(-1)
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

// tryDispatch hands j to an idle worker or a new transient one. It returns
// false when the ceiling is reached; the caller defers the job.
func (p *pool) tryDispatch(j job) bool {
	if p.busy.Load() >= p.ceiling {
		return false
	}
	p.busy.Add(1)

	select {
	case p.jobs <- j:
	default:
		p.spawned.Add(1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.handle(j)
		}()
	}
	return true
}

// Freed signals (coalesced) that a slot was released.
func (p *pool) Freed() <-chan struct{} {
	return p.freed
}

func (p *pool) Busy() int64 {
	return p.busy.Load()
}

// close stops persistent workers once their current job is done and waits
// for every worker to return.
func (p *pool) close() {
	close(p.jobs)
	p.wg.Wait()
}
