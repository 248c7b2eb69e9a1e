// Package transport holds the outbound HTTP plumbing shared by remote
// service clients: per-host rate limiting and retry with backoff.
package transport

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter applies an independent token bucket to each key, typically
// the host of the service being called.
type RateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing ratePerSecond requests per key
// with the given burst. A non-positive rate disables limiting.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Allow reports whether a request for key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	return r.limiter(key).Allow()
}

// Wait blocks until a request for key may proceed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, key string) error {
	return r.limiter(key).Wait(ctx)
}

// WaitURL is Wait keyed by the host of rawURL.
func (r *RateLimiter) WaitURL(ctx context.Context, rawURL string) error {
	return r.Wait(ctx, HostKey(rawURL))
}

func (r *RateLimiter) limiter(key string) *rate.Limiter {
	r.mu.RLock()
	l, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.limiters[key]; ok {
		return l
	}
	l = rate.NewLimiter(r.limit, r.burst)
	r.limiters[key] = l
	return l
}

// HostKey returns the host portion of rawURL, or rawURL itself when it
// does not parse.
func HostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
