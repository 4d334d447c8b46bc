package dispatch

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Route names the dispatch core uses as rate-limit buckets, matching the
// HTTP route names in spec §6.
const (
	RouteChat       = "/chat"
	RouteChatStream = "/chat/stream"
)

// DefaultRouteLimits mirrors the per-route caps named in spec §6.
func DefaultRouteLimits() map[string]RouteLimit {
	return map[string]RouteLimit{
		RouteChat:       {PerMinute: 30},
		RouteChatStream: {PerMinute: 20},
	}
}

// RateLimitError signals the caller exceeded a route's arrival-rate cap.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return "rate limited" }

// RouteLimit configures one route's per-key token bucket: perMinute
// requests refill continuously, with a burst of the same size.
type RouteLimit struct {
	PerMinute int
}

// RateLimiter enforces per-route, per-caller arrival-rate caps (spec
// §4.6.4), keyed by authenticated user id when available, else by remote
// address. Each (route, key) pair gets its own token bucket.
type RateLimiter struct {
	mu      sync.Mutex
	routes  map[string]RouteLimit
	buckets map[string]*rate.Limiter
}

// NewRateLimiter builds a RateLimiter configured with routes, a map from
// route name to its per-minute cap.
func NewRateLimiter(routes map[string]RouteLimit) *RateLimiter {
	return &RateLimiter{
		routes:  routes,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow checks whether key may proceed against route, minting a fresh
// bucket on first use. A route with no configured limit always allows.
func (r *RateLimiter) Allow(route, key string) error {
	limit, ok := r.routes[route]
	if !ok || limit.PerMinute <= 0 {
		return nil
	}

	bucketKey := route + "|" + key
	r.mu.Lock()
	limiter, ok := r.buckets[bucketKey]
	if !ok {
		everySec := 60.0 / float64(limit.PerMinute)
		limiter = rate.NewLimiter(rate.Every(time.Duration(everySec*float64(time.Second))), limit.PerMinute)
		r.buckets[bucketKey] = limiter
	}
	r.mu.Unlock()

	if limiter.Allow() {
		return nil
	}
	reservation := limiter.Reserve()
	retryAfter := reservation.Delay()
	reservation.Cancel()
	return &RateLimitError{RetryAfter: retryAfter}
}
