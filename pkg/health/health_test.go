package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) statusBody {
	t.Helper()
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body statusBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func passing() CheckFunc {
	return func(context.Context) error { return nil }
}

func failingWith(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func runTimes(p *probe, n int) {
	for range n {
		p.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		check      CheckFunc
		runs       int
		wantStatus int
		wantChecks map[string]string
	}{
		{name: "passing", check: passing(), runs: 1, wantStatus: http.StatusOK},
		{name: "healthy before first run", check: failingWith("down"), runs: 0, wantStatus: http.StatusOK},
		{name: "failure below threshold", check: failingWith("down"), runs: failAfter - 1, wantStatus: http.StatusOK},
		{
			name:       "failure at threshold",
			check:      failingWith("connection refused"),
			runs:       failAfter,
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"db": "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(zap.NewNop())
			h.AddLivenessCheck("db", time.Second, tt.check)
			runTimes(h.liveness[0], tt.runs)

			w := httptest.NewRecorder()
			h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decode(t, w)
			if tt.wantChecks == nil {
				assert.Equal(t, "ok", body.Status)
				assert.Empty(t, body.Checks)
				return
			}
			assert.Equal(t, "unhealthy", body.Status)
			assert.Equal(t, tt.wantChecks, body.Checks)
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("not ready until marked", func(t *testing.T) {
		h := New(zap.NewNop())
		h.AddReadinessCheck("store", time.Second, passing())

		w := httptest.NewRecorder()
		h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "service is not ready", decode(t, w).Checks["_readiness"])
		assert.False(t, h.IsReady())

		h.SetReady(true)
		w = httptest.NewRecorder()
		h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, h.IsReady())

		h.SetReady(false)
		assert.False(t, h.IsReady())
	})
	t.Run("one failing check fails readiness", func(t *testing.T) {
		h := New(zap.NewNop())
		h.AddReadinessCheck("store", time.Second, passing())
		h.AddReadinessCheck("catalog", time.Second, failingWith("product catalog is empty"))
		h.SetReady(true)
		for _, p := range h.readiness {
			runTimes(p, failAfter)
		}

		w := httptest.NewRecorder()
		h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, map[string]string{"catalog": "product catalog is empty"}, decode(t, w).Checks)
		assert.False(t, h.IsReady())
	})
}

func TestProbeRecovers(t *testing.T) {
	var (
		mu   sync.Mutex
		fail = true
	)
	p := newProbe("db", time.Second, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return errors.New("down")
		}
		return nil
	})

	runTimes(p, failAfter-1)
	assert.True(t, p.healthy.Load())
	assert.True(t, p.run(context.Background()), "third failure flips the probe")
	assert.False(t, p.healthy.Load())
	assert.EqualError(t, p.err(), "down")

	mu.Lock()
	fail = false
	mu.Unlock()
	assert.True(t, p.run(context.Background()))
	assert.True(t, p.healthy.Load())
	assert.NoError(t, p.err())
}

func TestProbeTimeout(t *testing.T) {
	p := newProbe("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	p.run(context.Background())
	assert.ErrorIs(t, p.err(), context.DeadlineExceeded)
}

func TestRun_LogsTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := New(zap.New(core))
	h.AddReadinessCheck("store", time.Second, failingWith("down"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, time.Millisecond) }()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Health check failing").Len() == 1
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	entry := logs.FilterMessage("Health check failing").All()[0]
	assert.Equal(t, "store", entry.ContextMap()["check"])
}

func TestConcurrentAccess(t *testing.T) {
	h := New(zap.NewNop())
	h.AddLivenessCheck("live", time.Second, passing())
	h.AddReadinessCheck("ready", time.Second, passing())
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx, time.Millisecond) }()

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
			h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			_ = h.IsReady()
		})
	}
	wg.Wait()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	assert.Error(t, GoroutineCountCheck(0)(ctx))
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))

	assert.NoError(t, PingCheck(pinger{})(ctx))
	assert.ErrorContains(t, PingCheck(pinger{err: errors.New("refused")})(ctx), "ping")

	assert.NoError(t, CatalogCheck(func(context.Context) (int, error) { return 9, nil })(ctx))
	assert.EqualError(t, CatalogCheck(func(context.Context) (int, error) { return 0, nil })(ctx), "product catalog is empty")
	assert.ErrorContains(t, CatalogCheck(func(context.Context) (int, error) {
		return 0, errors.New("db down")
	})(ctx), "count products")
}
