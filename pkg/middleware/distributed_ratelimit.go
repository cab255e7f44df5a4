package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/workbasehq/workbase/pkg/httputil"
	"github.com/workbasehq/workbase/pkg/observability"
	"github.com/workbasehq/workbase/pkg/storage/postgres"
)

// DistributedRateLimiter enforces a shared fixed-window limit through
// Redis so multiple instances see the same counters. Redis holds no
// correctness-critical state here: if it is down the limiter fails
// open and the in-process limiter still applies.
type DistributedRateLimiter struct {
	redis  *postgres.RedisClient
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a Redis-backed rate limiter
func NewDistributedRateLimiter(redis *postgres.RedisClient, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = LoginRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &DistributedRateLimiter{
		redis:  redis,
		config: config,
		prefix: prefix,
	}
}

// Allow reports whether a request for the given key is within the
// shared window. The returned error means Redis was unreachable; the
// caller decides fail-open behavior, and allowed is true in that case.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	count, err := rl.redis.Incr(ctx, redisKey)
	if err != nil {
		return true, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := rl.redis.Expire(ctx, redisKey, rl.config.Window); err != nil {
			return true, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= int64(rl.config.Requests+rl.config.Burst), nil
}

// DistributedRateLimitMiddleware applies the shared per-IP limit to a
// route. Mounted in front of the in-process limiter when Redis is
// configured.
type DistributedRateLimitMiddleware struct {
	limiter *DistributedRateLimiter
	name    string
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewDistributedRateLimitMiddleware creates Redis-backed rate limiting
// middleware. name labels the drop counter; metrics may be nil.
func NewDistributedRateLimitMiddleware(
	limiter *DistributedRateLimiter,
	name string,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *DistributedRateLimitMiddleware {
	return &DistributedRateLimitMiddleware{
		limiter: limiter,
		name:    name,
		logger:  logger,
		metrics: metrics,
	}
}

// Handler wraps an HTTP handler with distributed rate limiting keyed
// by client IP
func (m *DistributedRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + ClientIP(r)

		allowed, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			// Fail open: a Redis outage must not lock everyone out of
			// login. The in-process limiter still bounds abuse.
			m.logger.WithError(err).Warn("distributed rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			if m.metrics != nil {
				m.metrics.RateLimitDropsTotal.WithLabelValues(m.name).Inc()
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", m.limiter.config.Window.Seconds()))
			httputil.WriteTooManyRequests(w, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
