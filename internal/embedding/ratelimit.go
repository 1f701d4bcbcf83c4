package embedding

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures request-rate limiting.
type RateLimitConfig struct {
	RequestsPerMinute int // 0 = unlimited
	BurstSize         int // defaults to 1
}

// RateLimitProvider delays calls so the inner provider sees at most the
// configured request rate.
type RateLimitProvider struct {
	inner    Provider
	limiter  *rate.Limiter
	requests atomic.Int64
}

// NewRateLimitProvider wraps inner. RequestsPerMinute <= 0 disables limiting.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	limit := rate.Inf
	burst := 1
	if config != nil && config.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(config.RequestsPerMinute) / 60.0)
		if config.BurstSize > 0 {
			burst = config.BurstSize
		}
	}
	return &RateLimitProvider{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimitProvider) Name() string { return r.inner.Name() }

func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	r.requests.Add(1)
	return r.inner.Embed(ctx, texts)
}

// Requests reports how many calls were let through.
func (r *RateLimitProvider) Requests() int64 { return r.requests.Load() }
