package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"photolineart-backend/internal/pipeline"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := pipeline.Retry(context.Background(), "op", pipeline.RetryPolicy{Attempts: 3, Delay: time.Millisecond}, nil, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_NotifiesFinalFailure(t *testing.T) {
	calls := 0
	var notifiedOp string
	var notifiedErr error
	err := pipeline.Retry(context.Background(), "upload", pipeline.RetryPolicy{Attempts: 2, Delay: time.Millisecond},
		func(op string, err error) { notifiedOp, notifiedErr = op, err },
		func(ctx context.Context) error {
			calls++
			return errBoom
		})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "upload", notifiedOp)
	assert.Equal(t, err, notifiedErr)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	calls := 0
	err := pipeline.Retry(context.Background(), "op", pipeline.RetryPolicy{
		Attempts:    5,
		Delay:       time.Millisecond,
		ShouldRetry: func(err error) bool { return !errors.Is(err, permanent) },
	}, nil, func(ctx context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_LinearBackoff(t *testing.T) {
	start := time.Now()
	_ = pipeline.Retry(context.Background(), "op", pipeline.RetryPolicy{Attempts: 3, Delay: 20 * time.Millisecond}, nil, func(ctx context.Context) error {
		return errBoom
	})
	// 1×20ms + 2×20ms between three attempts.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := pipeline.Retry(ctx, "op", pipeline.RetryPolicy{Attempts: 5, Delay: time.Second}, nil, func(ctx context.Context) error {
		calls++
		cancel()
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}
