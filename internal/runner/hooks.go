package runner

import (
	"sync"

	"stageq/internal/sample"
)

// Hooks lets reporting layers subscribe to a run without the runner knowing
// about them. Sample callbacks run on worker goroutines, concurrently, and
// must be cheap and safe for concurrent use.
type Hooks struct {
	mu         sync.RWMutex
	onStart    []func(RunInfo)
	onSample   []func(sample.Sample)
	onComplete []func(*Report)
}

func (h *Hooks) OnRunStart(fn func(RunInfo)) {
	h.mu.Lock()
	h.onStart = append(h.onStart, fn)
	h.mu.Unlock()
}

func (h *Hooks) OnSampleObserved(fn func(sample.Sample)) {
	h.mu.Lock()
	h.onSample = append(h.onSample, fn)
	h.mu.Unlock()
}

func (h *Hooks) OnRunComplete(fn func(*Report)) {
	h.mu.Lock()
	h.onComplete = append(h.onComplete, fn)
	h.mu.Unlock()
}

func (h *Hooks) runStart(info RunInfo) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onStart {
		fn(info)
	}
}

func (h *Hooks) sampleObserved(s sample.Sample) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onSample {
		fn(s)
	}
}

func (h *Hooks) runComplete(rep *Report) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onComplete {
		fn(rep)
	}
}
