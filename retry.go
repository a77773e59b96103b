package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy configures the backoff applied around each generation unit
type RetryPolicy struct {
	MaxAttempts         int           `yaml:"max_attempts" validate:"min=1"`
	BaseDelay           time.Duration `yaml:"base_delay" validate:"gte=0"`
	Multiplier          float64       `yaml:"multiplier" validate:"gte=1"`
	MaxDelay            time.Duration `yaml:"max_delay" validate:"gtefield=BaseDelay"`
	Jitter              float64       `yaml:"jitter" validate:"gte=0,lte=1"`
	RateLimitDelay      time.Duration `yaml:"rate_limit_delay" validate:"gte=0"`
	MaxRateLimitRetries int           `yaml:"max_rate_limit_retries" validate:"gte=0"`
}

// DefaultRetryPolicy returns the policy used when settings leave retry unset
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         5,
		BaseDelay:           10 * time.Second,
		Multiplier:          2.0,
		MaxDelay:            60 * time.Second,
		Jitter:              0.2,
		RateLimitDelay:      60 * time.Second,
		MaxRateLimitRetries: 15,
	}
}

// RetryState is the bookkeeping for one unit of work
type RetryState struct {
	Attempts          int
	RateLimitAttempts int
	Waited            time.Duration
	LastKind          ErrorKind
	LastErr           error
	lastDelay         time.Duration
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryController runs units of work under a RetryPolicy
type RetryController struct {
	policy RetryPolicy
	logger *slog.Logger
	sleep  Sleeper
	jitter func() float64
}

// NewRetryController creates a controller that sleeps on the wall clock
func NewRetryController(policy RetryPolicy, logger *slog.Logger) *RetryController {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryController{
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
		jitter: rand.Float64,
	}
}

// WithSleeper replaces the sleeper, typically with a recording fake
func (c *RetryController) WithSleeper(s Sleeper) *RetryController {
	c.sleep = s
	return c
}

// Execute runs unit until it succeeds or a budget is exhausted.
//
// Rate-limited failures wait the advised delay and count only against
// MaxRateLimitRetries. Other non-fatal failures count against MaxAttempts
// and wait an exponentially growing delay. Fatal failures and context
// cancellation return immediately.
func Execute[T any](ctx context.Context, c *RetryController, unit func(ctx context.Context, attempt int) (T, error), attrs ...any) (T, RetryState, error) {
	var zero T
	var state RetryState
	logger := c.logger.With(attrs...)

	for call := 1; ; call++ {
		if err := ctx.Err(); err != nil {
			return zero, state, fatalError("retry", err)
		}

		result, err := unit(ctx, call)
		if err == nil {
			if call > 1 {
				logger.Debug("unit succeeded after retries", "attempt", call, "waited", state.Waited)
			}
			return result, state, nil
		}

		kind := KindOf(err)
		state.LastKind = kind
		state.LastErr = err

		var delay time.Duration
		switch kind {
		case ErrFatal, ErrRetryLimit, ErrRateLimitExceeded:
			logger.Error("unit failed", "attempt", call, "error_kind", kind, "error", err)
			return zero, state, err

		case ErrRateLimited:
			state.RateLimitAttempts++
			if state.RateLimitAttempts > c.policy.MaxRateLimitRetries {
				logger.Error("rate limit budget exhausted", "rate_limit_attempts", state.RateLimitAttempts-1, "error", err)
				return zero, state, newError(ErrRateLimitExceeded, "retry",
					fmt.Errorf("rate limited %d times: %w", state.RateLimitAttempts-1, err))
			}
			delay = retryAfterOf(err)
			if delay <= 0 {
				delay = c.policy.RateLimitDelay
			}
			logger.Warn("rate limited", "rate_limit_attempt", state.RateLimitAttempts, "delay", delay, "error", err)

		default:
			state.Attempts++
			if state.Attempts >= c.policy.MaxAttempts {
				logger.Error("retry budget exhausted", "attempts", state.Attempts, "error_kind", kind, "error", err)
				return zero, state, newError(ErrRetryLimit, "retry",
					fmt.Errorf("gave up after %d attempts: %w", state.Attempts, err))
			}
			delay = c.backoff(state.Attempts, state.lastDelay)
			state.lastDelay = delay
			logger.Warn("attempt failed", "attempt", state.Attempts, "error_kind", kind, "delay", delay, "error", err)
		}

		if err := c.sleep(ctx, delay); err != nil {
			return zero, state, fatalError("retry", err)
		}
		state.Waited += delay
	}
}

// backoff returns the delay after the nth failed attempt. Jitter only ever
// lengthens the delay and the result never drops below the previous one.
func (c *RetryController) backoff(n int, previous time.Duration) time.Duration {
	p := c.policy
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 && c.jitter != nil {
		d += d * p.Jitter * c.jitter()
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	delay := time.Duration(d)
	if delay < previous {
		delay = previous
	}
	return delay
}
