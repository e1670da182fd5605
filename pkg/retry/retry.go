// Package retry runs an operation a bounded number of times with a delay
// between attempts. It is used only around the LLM call; warehouse queries
// are never retried.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64 // 1.0 keeps the delay fixed
	JitterFactor float64 // 0.0-1.0
}

// DefaultConfig is 3 retries with a fixed 1s delay and no jitter.
func DefaultConfig() *Config {
	return Fixed(3, time.Second)
}

// Fixed returns a config that waits the same delay between every attempt.
func Fixed(maxRetries int, delay time.Duration) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: delay,
		MaxDelay:     delay,
		Multiplier:   1.0,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

func (c *Config) next(delay time.Duration) time.Duration {
	if c.Multiplier > 0 {
		delay = time.Duration(float64(delay) * c.Multiplier)
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// DoWithResult runs fn until it succeeds, returns a non-retryable error, or
// MaxRetries retries have been spent. It reports how many attempts were made.
// Context cancellation during a wait ends the loop with ctx.Err().
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func(attempt int) (T, error)) (T, int, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var zero T
	delay := cfg.InitialDelay
	attempts := 0

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		attempts++
		r, err := fn(attempt)
		if err == nil {
			return r, attempts, nil
		}
		if !IsRetryable(err) || attempt == cfg.MaxRetries {
			return zero, attempts, err
		}

		select {
		case <-time.After(applyJitter(delay, cfg.JitterFactor)):
			delay = cfg.next(delay)
		case <-ctx.Done():
			return zero, attempts, ctx.Err()
		}
	}

	return zero, attempts, errors.New("retry: no attempts made")
}

// RetryableError is implemented by errors that know whether they are transient.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable reports whether err is transient. Errors implementing
// RetryableError decide for themselves; others are matched by message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"timed out",
		"temporary failure",
		"429",
		"500",
		"502",
		"503",
		"504",
		"rate limit",
		"service unavailable",
		"too many requests",
		"overloaded",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
