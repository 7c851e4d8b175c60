package dummy

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(Handler(ServerConfig{LatencyScale: 0.01, Seed: 1}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandler_LatencyEndpoints(t *testing.T) {
	srv := newServer(t)
	for _, path := range []string{"/fast", "/medium", "/slow", "/spike"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, body, path)
	}
}

func TestHandler_ErrorEndpointMixesStatuses(t *testing.T) {
	srv := newServer(t)
	codes := make(map[int]int)
	for i := 0; i < 200; i++ {
		resp, err := http.Get(srv.URL + "/error")
		require.NoError(t, err)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		codes[resp.StatusCode]++
	}
	assert.Positive(t, codes[http.StatusOK])
	assert.Positive(t, codes[http.StatusInternalServerError])
	assert.Positive(t, codes[http.StatusTooManyRequests])
}

func TestHandler_Evaluate(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/evaluate", "application/json",
		strings.NewReader(`{"tokenImage":"abc","extraData":"k6-load-test-request"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var out evaluateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.RequestID)
	assert.Contains(t, []string{"LIVE", "SPOOF"}, out.Status)
	assert.GreaterOrEqual(t, out.Score, 0.5)
	assert.Equal(t, "k6-load-test-request", out.ExtraData)
}

func TestHandler_EvaluateRejectsBadInput(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/evaluate")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/evaluate", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStart_GracefulShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Start(ctx, ServerConfig{Addr: addr, LatencyScale: 0.01}, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/fast")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return")
	}
}
