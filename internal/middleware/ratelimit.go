// Package middleware provides HTTP middleware for the portal API.
// ratelimit.go implements per-IP fixed-window rate limiting backed by a
// counter store. Redis is used in deployment so limits hold across replicas;
// the in-memory store serves tests and single-process development.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/carelinkhealth/portal/internal/apperror"
)

// rateLimitKeyPrefix namespaces limiter keys in Redis.
const rateLimitKeyPrefix = "ratelimit:"

// RateLimitStore counts hits per key within a window.
type RateLimitStore interface {
	// Hit records one request against key and returns the count so far in
	// the current window plus the time left until the window resets.
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

// --- Redis store ---

// RedisRateLimitStore is a fixed-window counter using INCR and PEXPIRE.
type RedisRateLimitStore struct {
	rdb redis.UniversalClient
}

// NewRedisRateLimitStore creates a store on the given client.
func NewRedisRateLimitStore(rdb redis.UniversalClient) *RedisRateLimitStore {
	return &RedisRateLimitStore{rdb: rdb}
}

// Hit increments the key and starts its expiry on the first hit of a window.
func (s *RedisRateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	key = rateLimitKeyPrefix + key

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("rate limit incr: %w", err)
	}

	count := incr.Val()
	remaining := ttl.Val()

	// A key with no expiry (new window, or an expire lost to a crash) gets
	// one now so it can never count forever.
	if count == 1 || remaining < 0 {
		if err := s.rdb.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("rate limit expire: %w", err)
		}
		remaining = window
	}

	return count, remaining, nil
}

// --- Memory store ---

type memoryWindow struct {
	count int64
	reset time.Time
}

// MemoryRateLimitStore is a process-local fixed-window counter.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

// NewMemoryRateLimitStore creates an empty store. now may be nil to use the
// wall clock.
func NewMemoryRateLimitStore(now func() time.Time) *MemoryRateLimitStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryRateLimitStore{windows: make(map[string]*memoryWindow), now: now}
}

// Hit increments the key's counter, opening a new window if the old one has
// elapsed. Expired windows are swept lazily.
func (s *MemoryRateLimitStore) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.reset) {
		if len(s.windows) > 10000 {
			for k, old := range s.windows {
				if !now.Before(old.reset) {
					delete(s.windows, k)
				}
			}
		}
		w = &memoryWindow{reset: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.reset.Sub(now), nil
}

// --- Middleware ---

// RateLimit returns middleware that limits requests per client IP to
// maxRequests within window, counted under name. Exceeding the limit yields
// 429 with Retry-After. Store failures are logged and the request is let
// through so a Redis outage does not take down login.
func RateLimit(store RateLimitStore, name string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := name + ":" + c.RealIP()

			count, resetIn, err := store.Hit(c.Request().Context(), key, window)
			if err != nil {
				slog.Warn("rate limiter unavailable",
					slog.String("limiter", name),
					slog.Any("error", err),
				)
				return next(c)
			}

			if count > int64(maxRequests) {
				secs := int(math.Ceil(resetIn.Seconds()))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return apperror.New(http.StatusTooManyRequests, apperror.TypeTooManyAttempts,
					"Too many requests. Please try again later.")
			}

			return next(c)
		}
	}
}
