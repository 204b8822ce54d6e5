package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Runner executes fire-and-forget tasks detached from the request that
// started them. Failures are logged and counted, never returned to callers.
type Runner struct {
	wg      sync.WaitGroup
	timeout time.Duration
	metrics *metrics.Collector
}

func NewRunner(m *metrics.Collector) *Runner {
	return &Runner{timeout: defaultTimeout, metrics: m}
}

// WithTimeout overrides the per-task deadline.
func (r *Runner) WithTimeout(d time.Duration) *Runner {
	r.timeout = d
	return r
}

// Go runs fn in its own goroutine with a fresh context bounded by the runner
// timeout. The parent request context is deliberately not used.
func (r *Runner) Go(name string, fields logrus.Fields, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		log := logger.Log.WithField("task", name).WithFields(fields)

		defer func() {
			if rec := recover(); rec != nil {
				log.WithField("panic", fmt.Sprint(rec)).Error("Background task panicked")
				r.metrics.RecordBackgroundFailure(name)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			log.WithError(err).Warn("Background task failed")
			r.metrics.RecordBackgroundFailure(name)
			return
		}
		log.Debug("Background task finished")
	}()
}

// Wait blocks until all started tasks finish or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
