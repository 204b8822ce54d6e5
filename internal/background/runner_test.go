package background_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photolineart-backend/internal/background"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/metrics"
)

func init() {
	logger.Silence()
}

func TestRunner_RunsAndWaits(t *testing.T) {
	runner := background.NewRunner(nil)
	var ran int32
	for i := 0; i < 5; i++ {
		runner.Go("count", nil, func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, runner.Wait(ctx))
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
}

func TestRunner_FailuresAreCountedNotPropagated(t *testing.T) {
	reg := prometheus.NewRegistry()
	runner := background.NewRunner(metrics.NewCollector(reg))

	runner.Go("credits_update", nil, func(ctx context.Context) error {
		return errors.New("database unavailable")
	})
	runner.Go("panicky", nil, func(ctx context.Context) error {
		panic("boom")
	})

	require.NoError(t, runner.Wait(context.Background()))
	count, err := testutil.GatherAndCount(reg, "photolineart_background_task_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunner_TaskContextHasDeadline(t *testing.T) {
	runner := background.NewRunner(nil).WithTimeout(20 * time.Millisecond)
	var sawDeadline int32

	runner.Go("deadline", nil, func(ctx context.Context) error {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			atomic.StoreInt32(&sawDeadline, 1)
		}
		return ctx.Err()
	})

	require.NoError(t, runner.Wait(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&sawDeadline))
}
