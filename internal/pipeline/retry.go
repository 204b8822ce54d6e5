package pipeline

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy configures Retry. Zero values take the defaults.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	// ShouldRetry reports whether err is worth another attempt. Nil retries
	// everything except context cancellation.
	ShouldRetry func(error) bool
}

const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 500 * time.Millisecond
)

// Notifier receives the final failure of a retried operation.
type Notifier func(op string, err error)

// Retry runs fn up to policy.Attempts times, sleeping attempt×Delay between
// tries. The last error goes to notify and is returned.
func Retry(ctx context.Context, op string, policy RetryPolicy, notify Notifier, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	delay := policy.Delay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts || ctx.Err() != nil {
			break
		}
		if policy.ShouldRetry != nil && !policy.ShouldRetry(err) {
			break
		}

		timer := time.NewTimer(time.Duration(attempt) * delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return giveUp(op, ctx.Err(), notify)
		case <-timer.C:
		}
	}
	return giveUp(op, err, notify)
}

func giveUp(op string, err error, notify Notifier) error {
	err = fmt.Errorf("%s failed: %w", op, err)
	if notify != nil {
		notify(op, err)
	}
	return err
}
