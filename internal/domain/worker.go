package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// defaultRateLimitWait applies when the provider throttles without
	// advertising a retry delay.
	defaultRateLimitWait = 15 * time.Minute

	backoffUnit = time.Minute
	maxBackoff  = 30 * time.Minute
)

// Run starts the configured number of worker loops and blocks until ctx is
// cancelled and every worker has finished its current cycle.
func (c *Crawler) Run(ctx context.Context) error {
	c.logger.Info("starting crawler", "concurrency", c.opts.Concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := range c.opts.Concurrency {
		workerID := i + 1
		g.Go(func() error {
			c.runWorker(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

// runWorker repeatedly dispatches work. Stop is checked once per iteration;
// an in-flight dispatch is never interrupted, only the sleeps between cycles.
func (c *Crawler) runWorker(ctx context.Context, workerID int) {
	logger := c.logger.With("worker", workerID)
	logger.Info("worker started")

	// Work runs detached from cancellation so a stop request never aborts a
	// transaction half way.
	workCtx := context.WithoutCancel(ctx)

	failures := 0
	for ctx.Err() == nil {
		progress, err := c.dispatch(workCtx, logger)
		if err != nil {
			var wait time.Duration
			wait, failures = nextDelay(err, failures)
			logFailure(logger, err, wait, failures)
			c.sleep(ctx, wait)
			continue
		}

		failures = 0
		if !progress {
			logger.Info("no progress made, waiting", "seconds", c.opts.IdleDelay.Seconds())
			c.sleep(ctx, c.opts.IdleDelay)
		}
	}

	logger.Info("worker stopped")
}

// nextDelay classifies a dispatch error and returns how long to wait and the
// updated consecutive failure count. Rate limits are expected, so they wait
// the advertised delay and reset the count instead of escalating.
func nextDelay(err error, failures int) (time.Duration, int) {
	var rateLimit *RateLimitError
	if errors.As(err, &rateLimit) {
		wait := rateLimit.RetryAfter
		if wait <= 0 {
			wait = defaultRateLimitWait
		}
		return wait, 0
	}

	failures++
	return backoffFor(failures), failures
}

// backoffFor returns 2^(failures-1) minutes capped at maxBackoff.
func backoffFor(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	// Past 2^5 minutes the cap applies anyway; avoid overflowing the shift.
	if failures > 6 {
		return maxBackoff
	}
	return min(backoffUnit<<(failures-1), maxBackoff)
}

func logFailure(logger *slog.Logger, err error, wait time.Duration, failures int) {
	var (
		rateLimit  *RateLimitError
		validation *ValidationError
		apiErr     *APIError
	)
	switch {
	case errors.As(err, &rateLimit):
		logger.Error("rate limit hit", "error", err, "wait_seconds", wait.Seconds())
		return
	case errors.As(err, &validation):
		logger.Error("validation error", "endpoint", validation.Endpoint, "details", validation.Details, "error", err)
	case errors.As(err, &apiErr):
		logger.Error("provider API error", "status", apiErr.Status, "error", err)
	default:
		logger.Error("crawler failed", "error", err)
	}
	logger.Info("backing off", "seconds", wait.Seconds(), "failure_count", failures)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
