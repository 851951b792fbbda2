package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kbukum/depguard/validation"
)

// Baseline retry settings used for any field left at zero.
const (
	DefaultMaxAttempts       = 3
	DefaultInitialDelay      = time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultMaxDelay          = 30 * time.Second

	// jitterFraction bounds the random perturbation as a share of the capped delay.
	jitterFraction = 0.25
)

// jitterSource returns a uniform value in [0, 1). Tests replace it.
var jitterSource = rand.Float64

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int `validate:"gte=0"`
	// InitialDelay is the delay after the first failed attempt.
	InitialDelay time.Duration `validate:"gte=0"`
	// BackoffMultiplier grows the delay per attempt. Values below 1 would
	// shrink delays and are rejected.
	BackoffMultiplier float64 `validate:"eq=0|gte=1"`
	// MaxDelay caps the pre-jitter delay.
	MaxDelay time.Duration `validate:"gte=0"`
	// JitterEnabled perturbs each delay by up to ±25%.
	JitterEnabled bool
	// RetryCondition decides whether an error is retried. When set it is the
	// only rule applied; nil uses DefaultRetryCondition.
	RetryCondition func(error) bool
	// OnRetry is called before waiting out each retry delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the baseline policy: 3 attempts, 1s doubling
// delay capped at 30s, with jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       DefaultMaxAttempts,
		InitialDelay:      DefaultInitialDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MaxDelay:          DefaultMaxDelay,
		JitterEnabled:     true,
	}
}

// Validate checks the configuration, defaults applied.
func (c RetryConfig) Validate() error {
	v := validation.New().Merge("retry", validation.Validate(c))
	d := c.withDefaults()
	v.Custom(d.MaxDelay >= d.InitialDelay, "retry.max_delay", "must not be below initial_delay")
	return v.Validate()
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.RetryCondition == nil {
		c.RetryCondition = DefaultRetryCondition
	}
	return c
}

// Delay returns the pre-jitter delay that follows the given failed attempt:
// min(InitialDelay * BackoffMultiplier^(attempt-1), MaxDelay).
func (c RetryConfig) Delay(attempt int) time.Duration {
	c = c.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(c.InitialDelay) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if d > float64(c.MaxDelay) || math.IsInf(d, 1) || math.IsNaN(d) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// backoff applies jitter to Delay, truncated to whole milliseconds.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := c.Delay(attempt)
	if !c.JitterEnabled {
		return d
	}
	ms := float64(d) / float64(time.Millisecond)
	ms += (jitterSource()*2 - 1) * jitterFraction * ms
	if ms < 0 {
		ms = 0
	}
	return time.Duration(math.Trunc(ms)) * time.Millisecond
}

// RetryAttempt records one invocation made by Retry.
type RetryAttempt struct {
	Attempt int
	// Err is nil for the successful attempt.
	Err error
	// Delay is the wait that followed this attempt; zero when no retry followed.
	Delay         time.Duration
	ExecutionTime time.Duration
}

// RetryResult is the outcome of Retry. History holds one entry per attempt.
type RetryResult[T any] struct {
	Success            bool
	Data               T
	Err                error
	Attempts           int
	TotalExecutionTime time.Duration
	History            []RetryAttempt
}

// Retry invokes fn until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. It never panics on behalf of fn: a panic is
// recorded as a *PanicError attempt.
//
// Retry has no timeout of its own. When ctx ends, during an attempt or a
// delay, the loop stops and Err is ctx.Err().
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) RetryResult[T] {
	cfg = cfg.withDefaults()
	start := time.Now()
	result := RetryResult[T]{History: make([]RetryAttempt, 0, cfg.MaxAttempts)}

	finish := func() RetryResult[T] {
		result.TotalExecutionTime = time.Since(start)
		return result
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return finish()
		}

		attemptStart := time.Now()
		data, err := safeCall(ctx, fn)
		entry := RetryAttempt{Attempt: attempt, Err: err, ExecutionTime: time.Since(attemptStart)}
		result.Attempts = attempt

		if err == nil {
			result.History = append(result.History, entry)
			result.Success = true
			result.Data = data
			result.Err = nil
			return finish()
		}
		result.Err = err

		// The budget ran out while the attempt was running.
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.History = append(result.History, entry)
			result.Err = ctxErr
			return finish()
		}

		if attempt == cfg.MaxAttempts || !cfg.RetryCondition(err) {
			result.History = append(result.History, entry)
			return finish()
		}

		delay := cfg.backoff(attempt)
		entry.Delay = delay
		result.History = append(result.History, entry)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Err = ctx.Err()
			return finish()
		case <-timer.C:
		}
	}

	return finish()
}

// RetryFunc executes a function that returns only an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) RetryResult[struct{}] {
	return Retry(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}
