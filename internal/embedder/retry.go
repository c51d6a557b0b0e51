package embedder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig configures exponential backoff retry behavior
type RetryConfig struct {
	MaxRetries     int           // Retries after the first attempt
	BaseDelay      time.Duration // Initial delay between retries
	MaxDelay       time.Duration // Maximum delay between retries
	Multiplier     float64       // Exponential backoff multiplier
	Jitter         float64       // Randomization factor in [0, 1)
	AttemptTimeout time.Duration // Deadline for a single provider call
}

// DefaultRetryConfig returns sensible defaults for API retry
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     MaxRetries,
		BaseDelay:      time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:       time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier:     BackoffMultiplier,
		Jitter:         0.5,
		AttemptTimeout: DefaultTimeout,
	}
}

// StatusError is a non-2xx response from an embedding provider
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsTransient classifies provider errors. Rate limiting, server errors,
// timeouts and network failures are transient. Other client errors and
// malformed responses are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// retryWithBackoff runs fn until it succeeds, fails permanently, or the
// retry budget is spent. Each attempt gets its own timeout.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = config.BaseDelay
	policy.MaxInterval = config.MaxDelay
	if config.Multiplier > 0 {
		policy.Multiplier = config.Multiplier
	}
	policy.RandomizationFactor = config.Jitter

	operation := func() (T, error) {
		attemptCtx := ctx
		if config.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, config.AttemptTimeout)
			defer cancel()
		}
		result, err := fn(attemptCtx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return result, backoff.Permanent(ctx.Err())
		}
		if !IsTransient(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	tries := uint(1)
	if config.MaxRetries > 0 {
		tries += uint(config.MaxRetries)
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(tries),
	)
}
