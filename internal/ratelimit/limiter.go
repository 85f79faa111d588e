package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ProviderConfig holds the rate limit settings for one upstream provider
type ProviderConfig struct {
	// RequestsPerSecond is the sustained request rate
	RequestsPerSecond float64
	// Burst is the maximum burst size
	Burst int
}

// Limiter throttles outbound requests per upstream provider so the pipeline
// stays under marketplace API quotas instead of relying on 429 backoff alone.
//
//go:generate mockgen -source=limiter.go -destination=../mocks/ratelimit_limiter.go -package=mocks -mock_names=Limiter=MockLimiter
type Limiter interface {
	// Wait blocks until the provider's limiter permits a request or ctx is done
	Wait(ctx context.Context, provider string) error
}

type limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	configs  map[string]ProviderConfig
	fallback ProviderConfig
}

// NewLimiter creates a limiter with per-provider settings. Providers without
// an explicit config share the fallback rate.
func NewLimiter(configs map[string]ProviderConfig, fallback ProviderConfig) Limiter {
	if fallback.RequestsPerSecond <= 0 {
		fallback.RequestsPerSecond = 5
	}
	if fallback.Burst <= 0 {
		fallback.Burst = 5
	}
	return &limiter{
		limiters: make(map[string]*rate.Limiter),
		configs:  configs,
		fallback: fallback,
	}
}

func (l *limiter) Wait(ctx context.Context, provider string) error {
	if err := l.limiterFor(provider).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", provider, err)
	}
	return nil
}

func (l *limiter) limiterFor(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[provider]; ok {
		return lim
	}

	cfg, ok := l.configs[provider]
	if !ok || cfg.RequestsPerSecond <= 0 {
		cfg = l.fallback
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	lim := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	l.limiters[provider] = lim
	return lim
}
