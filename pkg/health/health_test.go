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
)

func alwaysPass(_ context.Context) error { return nil }

func alwaysFail(msg string) CheckFunc {
	return func(_ context.Context) error { return errors.New(msg) }
}

// evaluateN drives a probe through n evaluations outside of Start.
func evaluateN(p *probe, n int) {
	for range n {
		p.evaluate(context.Background())
	}
}

type probeBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) probeBody {
	t.Helper()
	var body probeBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestProbe_Thresholds(t *testing.T) {
	t.Run("starts healthy", func(t *testing.T) {
		p := newProbe("platform", time.Second, alwaysFail("down"))
		healthy, _ := p.status()
		assert.True(t, healthy)
	})

	t.Run("failures below the threshold keep it healthy", func(t *testing.T) {
		p := newProbe("platform", time.Second, alwaysFail("down"))
		evaluateN(p, failAfter-1)
		healthy, _ := p.status()
		assert.True(t, healthy)
	})

	t.Run("consecutive failures flip it unhealthy", func(t *testing.T) {
		p := newProbe("platform", time.Second, alwaysFail("connection refused"))
		evaluateN(p, failAfter)
		healthy, err := p.status()
		assert.False(t, healthy)
		assert.EqualError(t, err, "connection refused")
	})

	t.Run("one pass resets the failure streak", func(t *testing.T) {
		calls := 0
		p := newProbe("platform", time.Second, func(_ context.Context) error {
			calls++
			if calls == failAfter {
				return nil // a pass right before the streak would complete
			}
			return errors.New("flaky")
		})
		evaluateN(p, failAfter+1)
		healthy, _ := p.status()
		assert.True(t, healthy)
	})

	t.Run("recovers after a pass", func(t *testing.T) {
		broken := true
		p := newProbe("platform", time.Second, func(_ context.Context) error {
			if broken {
				return errors.New("down")
			}
			return nil
		})
		evaluateN(p, failAfter)
		healthy, _ := p.status()
		require.False(t, healthy)

		broken = false
		evaluateN(p, okAfter)
		healthy, _ = p.status()
		assert.True(t, healthy)
	})
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("healthy probes serve 200", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("goroutines", time.Second, alwaysPass)

		w := httptest.NewRecorder()
		h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", decodeBody(t, w).Status)
	})

	t.Run("an unhealthy probe serves 503 with its error", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("goroutines", time.Second, alwaysFail("leak suspected"))
		evaluateN(h.liveness[0], failAfter)

		w := httptest.NewRecorder()
		h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "leak suspected", body.Checks["goroutines"])
	})

	t.Run("no probes is healthy", func(t *testing.T) {
		w := httptest.NewRecorder()
		New().LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("closed gate serves 503 even with passing probes", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("platform", time.Second, alwaysPass)

		w := httptest.NewRecorder()
		h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, decodeBody(t, w).Checks, "_readiness")
	})

	t.Run("open gate with passing probes serves 200", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("platform", time.Second, alwaysPass)
		h.SetReady(true)

		w := httptest.NewRecorder()
		h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("closing the gate drains traffic", func(t *testing.T) {
		h := New()
		h.SetReady(true)
		h.SetReady(false)

		w := httptest.NewRecorder()
		h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("only the failing probe is reported", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("platform", time.Second, alwaysPass)
		h.AddReadinessCheck("broker", time.Second, alwaysFail("broker unreachable"))
		h.SetReady(true)
		evaluateN(h.readiness[1], failAfter)

		w := httptest.NewRecorder()
		h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decodeBody(t, w)
		assert.Contains(t, body.Checks, "broker")
		assert.NotContains(t, body.Checks, "platform")
	})
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("platform", time.Second, alwaysPass)

	assert.False(t, h.IsReady())
	h.SetReady(true)
	assert.True(t, h.IsReady())

	evaluateN(h.readiness[0], 1)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, alwaysPass)
	h.AddReadinessCheck("platform", time.Second, alwaysPass)

	h.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	healthy, _ := h.liveness[0].status()
	assert.True(t, healthy)

	h.Stop()
	h.Stop() // idempotent
}

func TestConcurrentEndpointAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, alwaysFail("noise"))
	h.AddReadinessCheck("platform", time.Second, alwaysPass)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold")
}
