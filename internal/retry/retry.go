// Package retry wraps remote generative calls with bounded exponential
// backoff on transient failures. Every remote call in the system goes
// through Policy.Do — nothing talks to the backend without it.
package retry

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	// maxAttempts is the total number of invocations, not the retries after
	// the first: an operation runs at most 3 times.
	maxAttempts = 3

	// baseDelay scales the backoff: 2^attempt × 15s → 30s, then 60s.
	baseDelay = 15 * time.Second
)

// transientMarkers are the failure-message substrings that identify a
// recoverable backend condition: unavailability (503), overload, and
// rate limiting (429).
var transientMarkers = []string{
	"503",
	"unavailable",
	"overloaded",
	"429",
	"rate limit",
	"resource has been exhausted",
}

// IsTransient classifies an error by its message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Policy retries a zero-argument operation on transient failure.
// The zero value is usable; OnRetry and sleep are injection points for the
// UI progress channel and for tests with a mocked clock.
type Policy struct {
	// OnRetry, when set, receives a human-readable "retrying in Ns" message
	// before each backoff wait. When unset the message is only logged.
	OnRetry func(msg string)

	// sleep defaults to a context-aware time.After wait.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a policy reporting progress through onRetry (may be nil).
func New(onRetry func(msg string)) *Policy {
	return &Policy{OnRetry: onRetry}
}

// WithSleep overrides the clock. Tests use this to record delays instead of
// actually waiting.
func (p *Policy) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Policy {
	p.sleep = sleep
	return p
}

// Do invokes op, retrying on transient failures up to the attempt ceiling.
// Non-transient errors propagate unchanged after the first attempt.
func (p *Policy) Do(ctx context.Context, label string, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay := (1 << attempt) * baseDelay // 30s after attempt 1, 60s after attempt 2
		msg := fmt.Sprintf("%s hit a transient backend error, retrying in %ds", label, int(delay.Seconds()))
		if p.OnRetry != nil {
			p.OnRetry(msg)
		} else {
			log.Printf("[Retry] %s (attempt %d/%d): %v", msg, attempt, maxAttempts, err)
		}

		if err := p.wait(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s failed after multiple retries: %w", label, lastErr)
}

func (p *Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}
