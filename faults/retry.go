package faults

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inletlabs/inlet/types"
)

// Retry defaults. Backoff is exponential from BaseDelay, doubling per
// attempt, capped at MaxDelay.
const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 250 * time.Millisecond
	DefaultMaxDelay  = 5 * time.Second
)

// BudgetExceededError is the terminal condition raised when every
// attempt in the retry budget failed with a retryable fault.
type BudgetExceededError struct {
	// Attempts is the number of attempts made.
	Attempts int
	// Last is the classification of the final failure.
	Last *types.ClassifiedError
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("retry budget exceeded after %d attempts: %v", e.Attempts, e.Last)
}

func (e *BudgetExceededError) Unwrap() error {
	return e.Last
}

// IsBudgetExceeded returns true if the error is a retry budget exhaustion.
func IsBudgetExceeded(err error) bool {
	var budgetErr *BudgetExceededError
	return errors.As(err, &budgetErr)
}

// RetryConfig configures a Retrier.
type RetryConfig struct {
	// Attempts is the total attempt budget (default 3).
	Attempts int
	// BaseDelay is the first backoff delay (default 250ms).
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay (default 5s).
	MaxDelay time.Duration
}

// Retrier re-invokes an operation while its failures classify as
// retryable. A non-retryable fault returns immediately; budget
// exhaustion returns a *BudgetExceededError. Each Do call starts with
// a fresh attempt counter, so a Retrier may be reused across
// operations.
type Retrier struct {
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewRetrier creates a retrier, applying defaults for zero fields.
func NewRetrier(config RetryConfig) *Retrier {
	if config.Attempts <= 0 {
		config.Attempts = DefaultAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultBaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultMaxDelay
	}
	return &Retrier{
		attempts:  config.Attempts,
		baseDelay: config.BaseDelay,
		maxDelay:  config.MaxDelay,
	}
}

// Do invokes op up to the attempt budget.
// Returns nil on the first success. On failure, returns the classified
// fault if it is not retryable, or *BudgetExceededError once the
// budget is spent.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last *types.ClassifiedError

	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Classify(err)
		}

		// Backoff before retries, not before the first attempt.
		if attempt > 1 {
			if err := r.sleep(ctx, attempt-1); err != nil {
				return Classify(err)
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		last = Classify(err)
		if !last.Retryable {
			return last
		}
	}

	return &BudgetExceededError{
		Attempts: r.attempts,
		Last:     last,
	}
}

// sleep waits out the backoff for the given retry ordinal (1-based).
func (r *Retrier) sleep(ctx context.Context, retry int) error {
	delay := r.baseDelay << uint(retry-1)
	if delay > r.maxDelay || delay <= 0 {
		delay = r.maxDelay
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
