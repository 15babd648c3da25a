package graph

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Default retry policy parameters.
const (
	DefaultRetryInitialInterval = 500 * time.Millisecond
	DefaultRetryBackoffFactor   = 2.0
	DefaultRetryMaxInterval     = 128 * time.Second
	DefaultRetryMaxAttempts     = 3
)

// RetryPolicy controls how the scheduler retries failing tasks:
// exponential backoff with an initial delay, multiplicative factor, cap,
// optional jitter, a maximum attempt count, and a predicate selecting
// which errors are retriable.
type RetryPolicy struct {
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// BackoffFactor multiplies the delay after every attempt.
	BackoffFactor float64
	// MaxInterval caps the delay between attempts.
	MaxInterval time.Duration
	// MaxAttempts bounds the total number of attempts, first included.
	MaxAttempts int
	// Jitter randomizes each delay within [delay/2, delay].
	Jitter bool
	// RetryOn decides whether an error is retriable. Nil means
	// DefaultRetryOn.
	RetryOn func(error) bool
}

// NewRetryPolicy returns the default policy.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		InitialInterval: DefaultRetryInitialInterval,
		BackoffFactor:   DefaultRetryBackoffFactor,
		MaxInterval:     DefaultRetryMaxInterval,
		MaxAttempts:     DefaultRetryMaxAttempts,
		Jitter:          true,
	}
}

// DefaultRetryOn is the default retriability predicate. Cancellation,
// interrupts, parent-command bubbles, and graph misuse errors are never
// retried; 4xx statuses other than 408 and 429 are treated as permanent.
func DefaultRetryOn(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var gi *GraphInterrupt
	if errors.As(err, &gi) {
		return false
	}
	var pc *ParentCommandError
	if errors.As(err, &pc) {
		return false
	}
	var gv *GraphValueError
	if errors.As(err, &gv) {
		return false
	}
	if errors.Is(err, ErrInvalidUpdate) || errors.Is(err, ErrEmptyChannel) ||
		errors.Is(err, ErrMissingCheckpointer) || errors.Is(err, ErrResumeMismatch) {
		return false
	}
	if status, ok := httpStatus(err); ok {
		if status >= 400 && status < 500 && status != 408 && status != 429 {
			return false
		}
	}
	return true
}

func (p *RetryPolicy) retryOn(err error) bool {
	if p.RetryOn != nil {
		return p.RetryOn(err)
	}
	return DefaultRetryOn(err)
}

// nextInterval computes the delay before the given attempt (1-based count
// of failures so far).
func (p *RetryPolicy) nextInterval(attempt int) time.Duration {
	interval := float64(p.InitialInterval)
	for i := 1; i < attempt; i++ {
		interval *= p.BackoffFactor
		if interval >= float64(p.MaxInterval) {
			interval = float64(p.MaxInterval)
			break
		}
	}
	d := time.Duration(interval)
	if d > p.MaxInterval {
		d = p.MaxInterval
	}
	if p.Jitter {
		half := d / 2
		d = half + time.Duration(rand.Int63n(int64(half)+1))
	}
	return d
}

// runWithRetry invokes fn until it succeeds, fails permanently, or the
// attempt budget is spent. The context cancels pending backoff sleeps.
func runWithRetry(ctx context.Context, policy *RetryPolicy, fn func(context.Context) error) error {
	if policy == nil {
		policy = NewRetryPolicy()
	}
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || !policy.retryOn(err) {
			return err
		}
		timer := time.NewTimer(policy.nextInterval(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
