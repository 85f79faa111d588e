package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config parameterizes the bounded retry helper. Every network-calling
// component in the pipeline goes through Do with its own Config instead of
// scattering ad-hoc retry loops across call sites.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts uint64
	// BackoffBase is the initial backoff interval between attempts
	BackoffBase time.Duration
	// AttemptTimeout is the hard per-attempt timeout
	AttemptTimeout time.Duration
}

// DefaultMediaConfig is the retry discipline for media downloads and uploads
func DefaultMediaConfig() Config {
	return Config{
		MaxAttempts:    3,
		BackoffBase:    2 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// Permanent wraps an error so Do stops retrying immediately
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op with exponential backoff until it succeeds, returns a permanent
// error, or MaxAttempts is exhausted. Each attempt runs under its own
// AttemptTimeout-scoped context derived from ctx.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	attempt := func() error {
		attemptCtx := ctx
		if cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
			defer cancel()
		}
		return op(attemptCtx)
	}

	b := backoff.NewExponentialBackOff()
	if cfg.BackoffBase > 0 {
		b.InitialInterval = cfg.BackoffBase
	}
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	return backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx))
}
