package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/workbasehq/workbase/pkg/httputil"
	"github.com/workbasehq/workbase/pkg/observability"
)

// RateLimitConfig defines token bucket rate limiting settings
type RateLimitConfig struct {
	// Requests is the sustained number of requests allowed per Window
	Requests int
	// Window is the refill period
	Window time.Duration
	// Burst allows short spikes above the sustained rate
	Burst int
	// MaxKeys bounds how many client buckets are tracked at once.
	// Oldest buckets are evicted, which resets that client's budget.
	MaxKeys int
}

// LoginRateLimitConfig returns the limiter settings for the login
// endpoint. Deliberately tight: login is the only credential oracle.
func LoginRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Requests: 10,
		Window:   time.Minute,
		Burst:    5,
		MaxKeys:  10000,
	}
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// RateLimiter implements a per-key token bucket. Buckets live in a
// bounded LRU so an attacker rotating source addresses cannot grow
// memory without limit.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets *lru.Cache[string, *bucket]
	now     func() time.Time
	mu      sync.Mutex
}

// NewRateLimiter creates a rate limiter
func NewRateLimiter(config *RateLimitConfig) (*RateLimiter, error) {
	if config == nil {
		config = LoginRateLimitConfig()
	}
	cache, err := lru.New[string, *bucket](config.MaxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket cache: %w", err)
	}
	return &RateLimiter{
		config:  config,
		buckets: cache,
		now:     time.Now,
	}, nil
}

// WithClock overrides the time source (useful for tests)
func (rl *RateLimiter) WithClock(fn func() time.Time) *RateLimiter {
	if fn != nil {
		rl.now = fn
	}
	return rl
}

// Allow reports whether a request for the given key may proceed and
// consumes a token when it may.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets.Get(key)
	if !ok {
		b = &bucket{
			tokens:     rl.config.Requests + rl.config.Burst,
			lastUpdate: rl.now(),
		}
		rl.buckets.Add(key, b)
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(b.lastUpdate)
	refill := int(elapsed.Seconds() * float64(rl.config.Requests) / rl.config.Window.Seconds())
	if refill > 0 {
		b.tokens += refill
		if max := rl.config.Requests + rl.config.Burst; b.tokens > max {
			b.tokens = max
		}
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the number of tokens left for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	b, ok := rl.buckets.Get(key)
	rl.mu.Unlock()
	if !ok {
		return rl.config.Requests + rl.config.Burst
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// RateLimitMiddleware applies per-IP rate limiting to a route
type RateLimitMiddleware struct {
	limiter *RateLimiter
	name    string
	metrics *observability.Metrics
}

// NewRateLimitMiddleware creates rate limiting middleware. name labels
// the drop counter; metrics may be nil.
func NewRateLimitMiddleware(limiter *RateLimiter, name string, metrics *observability.Metrics) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, name: name, metrics: metrics}
}

// Handler wraps an HTTP handler with rate limiting keyed by client IP
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + ClientIP(r)
		if !m.limiter.Allow(key) {
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

// ClientIP extracts the originating client address, trusting proxy
// headers when present.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First hop is the original client
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
