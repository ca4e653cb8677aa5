package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-sender limit on the notification
// endpoint.
type RateLimitConfig struct {
	// Max requests allowed per Window.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// KeyFunc identifies the sender. Nil means senderKey (the delivering
	// host's address, honoring X-Forwarded-For behind a proxy).
	KeyFunc func(*http.Request) string
}

// window holds the request counts of two adjacent fixed windows. The
// effective rate is the current count plus the previous count weighted by
// how much of the previous window still overlaps the sliding one.
type window struct {
	prev      float64
	cur       float64
	prevStart time.Time
	curStart  time.Time
}

// limiter tracks one window per sender key.
type limiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	senders map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = senderKey
	}
	return &limiter{cfg: cfg, senders: make(map[string]*window)}
}

// admit decides whether the sender may proceed at the given instant and
// returns the remaining budget and the time the current window resets.
func (l *limiter) admit(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.senders[key]
	if w == nil {
		w = &window{curStart: now}
		l.senders[key] = w
	}

	if elapsed := now.Sub(w.curStart); elapsed >= l.cfg.Window {
		w.prev, w.prevStart = w.cur, w.curStart
		w.cur = 0
		w.curStart = now.Truncate(l.cfg.Window)
		if now.Sub(w.prevStart) >= 2*l.cfg.Window {
			w.prev = 0
		}
	}

	weight := 1 - now.Sub(w.curStart).Seconds()/l.cfg.Window.Seconds()
	if weight < 0 {
		weight = 0
	}
	rate := w.prev*weight + w.cur
	resetAt = w.curStart.Add(l.cfg.Window)

	if rate >= float64(l.cfg.Max) {
		return 0, resetAt, false
	}
	w.cur++

	remaining = int(float64(l.cfg.Max) - rate - 1)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

// sweep drops senders whose windows have fully aged out.
func (l *limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.senders {
		if now.Sub(w.curStart) >= 2*l.cfg.Window {
			delete(l.senders, key)
		}
	}
}

// RateLimit returns a middleware enforcing a per-sender sliding window.
// Rejections answer 429 with a Retry-After header; every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset. Stale
// sender state is never evicted; use RateLimitWithCleanup in servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return limitMiddleware(newLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit plus a background goroutine sweeping
// aged-out sender state every two windows until ctx ends.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.sweep(now)
			}
		}
	}()
	return limitMiddleware(l)
}

func limitMiddleware(l *limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, ok := l.admit(l.cfg.KeyFunc(r), time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				retry := math.Ceil(math.Max(time.Until(resetAt).Seconds(), 0))
				w.Header().Set("Retry-After", strconv.Itoa(int(retry)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "too many requests",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// senderKey identifies the delivering host. Notification systems usually
// call from a stable address pool; behind a proxy the first X-Forwarded-For
// entry is that address, otherwise the socket peer is.
func senderKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
