package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	// Attempts is the total number of attempts, including the first one
	Attempts int
	// InitialDelay is the delay before the second attempt
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts
	MaxDelay time.Duration
	// Multiplier is the backoff multiplier (e.g., 2 for exponential backoff)
	Multiplier float64
	// Jitter adds ±25% randomness to delays
	Jitter bool
	// RetryableFunc determines if an error is retryable
	RetryableFunc func(error) bool
	// OnRetry is called after a failed attempt, before sleeping
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		Attempts:      3,
		InitialDelay:  time.Second,
		MaxDelay:      5 * time.Second,
		Multiplier:    2.0,
		RetryableFunc: DefaultRetryableFunc,
	}
}

// DefaultRetryableFunc retries everything except cancellation and
// errors explicitly marked as non-retryable. Deadline errors stay
// retryable since each attempt usually runs under its own deadline;
// the retrier checks the parent context separately.
func DefaultRetryableFunc(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var nonRetryable *NonRetryableError
	return !errors.As(err, &nonRetryable)
}

// Retrier provides retry functionality with exponential backoff
type Retrier struct {
	config Config
}

// New creates a new retrier with the given configuration
func New(config Config) *Retrier {
	if config.Attempts < 1 {
		config.Attempts = 1
	}
	if config.InitialDelay < 0 {
		config.InitialDelay = 0
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier <= 1 {
		config.Multiplier = 2.0
	}
	if config.RetryableFunc == nil {
		config.RetryableFunc = DefaultRetryableFunc
	}

	return &Retrier{
		config: config,
	}
}

// Attempts returns the configured total number of attempts
func (r *Retrier) Attempts() int {
	return r.config.Attempts
}

// Do executes fn until it succeeds, the attempts are exhausted, the error
// is not retryable, or ctx is done. fn receives the 0-based attempt index.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt < r.config.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return &Error{Err: lastErr, Attempts: attempt}
			}
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == r.config.Attempts-1 {
			break
		}
		if !r.config.RetryableFunc(err) {
			return err
		}

		delay := r.Backoff(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return &Error{Err: lastErr, Attempts: attempt + 1}
		}
	}

	return &Error{
		Err:      lastErr,
		Attempts: r.config.Attempts,
	}
}

// Backoff returns the delay that follows the failed attempt with the given
// 0-based index: min(InitialDelay * Multiplier^attempt, MaxDelay).
func (r *Retrier) Backoff(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt))

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	return time.Duration(delay)
}

// Error represents a retry error with additional information
type Error struct {
	Err      error
	Attempts int
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NonRetryableError wraps an error to indicate it should not be retried
type NonRetryableError struct {
	err error
}

// NewNonRetryableError creates a new non-retryable error
func NewNonRetryableError(err error) error {
	return &NonRetryableError{err: err}
}

// Error implements the error interface
func (e *NonRetryableError) Error() string {
	return e.err.Error()
}

// Unwrap returns the underlying error
func (e *NonRetryableError) Unwrap() error {
	return e.err
}
