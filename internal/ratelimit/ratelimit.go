// Package ratelimit counts requests per key in Redis windows that restart on
// every hit.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"live-service/internal/shared/httpx"
)

type Limiter struct {
	r *redis.Client
}

func New(r *redis.Client) *Limiter { return &Limiter{r: r} }

// Allow counts one hit for key and reports whether the window still admits it.
func (l *Limiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	k := "rl:" + key
	pipe := l.r.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// LimitHTTP rejects requests over limit per window with 429. Limiter errors
// let the request through; polling must keep working when Redis does not.
func (l *Limiter) LimitHTTP(limit int64, window time.Duration, keyFn func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := keyFn(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		ok, n, err := l.Allow(r.Context(), key, limit, window)
		if err == nil && !ok {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			httpx.WriteError(w, http.StatusTooManyRequests,
				fmt.Errorf("rate limit exceeded (count=%d, limit=%d)", n, limit),
				"rate_limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PerClient keys polling requests by client address and channel.
func PerClient(r *http.Request) string {
	return "poll:" + httpx.ClientIP(r) + ":" + r.PathValue("channel_id")
}

// Middleware adapts LimitHTTP to the func(http.Handler) http.Handler shape
// route registration takes.
func (l *Limiter) Middleware(limit int64, window time.Duration, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return l.LimitHTTP(limit, window, keyFn, next)
	}
}
