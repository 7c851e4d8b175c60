// Package dummy is a demo target with endpoints of known latency and error
// profiles, for trying out load profiles and thresholds locally.
package dummy

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ServerConfig struct {
	Addr string
	// LatencyScale multiplies every simulated delay; 0 means 1.
	LatencyScale float64
	Seed         int64
}

// Endpoints lists the demo routes.
var Endpoints = []string{"/fast", "/medium", "/slow", "/spike", "/error", "/api/v1/evaluate"}

type handler struct {
	mu    sync.Mutex
	rng   *rand.Rand
	scale float64
}

func (h *handler) intn(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Intn(n)
}

func (h *handler) float() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64()
}

// wait sleeps for d (scaled) unless the client goes away first.
func (h *handler) wait(r *http.Request, d time.Duration) bool {
	t := time.NewTimer(time.Duration(float64(d) * h.scale))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.Context().Done():
		return false
	}
}

func (h *handler) between(r *http.Request, lo, hi int) bool {
	return h.wait(r, time.Duration(h.intn(hi-lo)+lo)*time.Millisecond)
}

func Handler(cfg ServerConfig) http.Handler {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	h := &handler{rng: rand.New(rand.NewSource(seed)), scale: cfg.LatencyScale}
	if h.scale <= 0 {
		h.scale = 1
	}

	mux := http.NewServeMux()

	// 10-50ms
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
		if h.between(r, 10, 50) {
			w.Write([]byte("Fast response"))
		}
	})

	// 100-300ms
	mux.HandleFunc("/medium", func(w http.ResponseWriter, r *http.Request) {
		if h.between(r, 100, 300) {
			w.Write([]byte("Medium response"))
		}
	})

	// 1-2s, for timeouts and queuing
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		if h.between(r, 1000, 2000) {
			w.Write([]byte("Slow response"))
		}
	})

	// Usually fast, 5% of requests take 2s: fine p50, terrible p99.
	mux.HandleFunc("/spike", func(w http.ResponseWriter, r *http.Request) {
		d := 20 * time.Millisecond
		if h.float() < 0.05 {
			d = 2 * time.Second
		}
		if h.wait(r, d) {
			w.Write([]byte("Spikey response"))
		}
	})

	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		switch rnd := h.float(); {
		case rnd < 0.2:
			http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
		case rnd < 0.4:
			http.Error(w, "429 Too Many Requests", http.StatusTooManyRequests)
		default:
			w.Write([]byte("OK"))
		}
	})

	mux.HandleFunc("/api/v1/evaluate", h.evaluate)

	return mux
}

type evaluateRequest struct {
	TokenImage string `json:"tokenImage"`
	ExtraData  string `json:"extraData"`
}

type evaluateResponse struct {
	RequestID string  `json:"requestId"`
	Status    string  `json:"status"`
	Score     float64 `json:"score"`
	ExtraData string  `json:"extraData,omitempty"`
}

// evaluate mimics a JSON scoring API: POST a token, get a verdict after
// 50-150ms.
func (h *handler) evaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TokenImage == "" {
		http.Error(w, "tokenImage is required", http.StatusBadRequest)
		return
	}
	if !h.between(r, 50, 150) {
		return
	}

	score := 0.5 + h.float()/2
	status := "LIVE"
	if score < 0.6 {
		status = "SPOOF"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(evaluateResponse{
		RequestID: uuid.NewString(),
		Status:    status,
		Score:     score,
		ExtraData: req.ExtraData,
	})
}

// Start serves the demo endpoints until ctx is done, then shuts down
// gracefully.
func Start(ctx context.Context, cfg ServerConfig, log *zap.Logger) error {
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Handler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("dummy server listening", zap.String("addr", cfg.Addr), zap.Strings("endpoints", Endpoints))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
