package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// threadBatchSize bounds the parents fetched per traversal cycle.
	threadBatchSize = 20

	// hydrationBatchSize is the provider's bulk pricing threshold: batches of
	// 100 accounts cost materially less per account than smaller ones.
	hydrationBatchSize = 100

	defaultConcurrency    = 3
	defaultDailyPostLimit = 200000
	defaultIdleDelay      = time.Minute
)

// Options tunes a Crawler. Zero values select the defaults.
type Options struct {
	// Concurrency is the number of worker loops started by Run.
	Concurrency int

	// DailyPostLimit stops suggestion intake once this many posts were
	// written in the trailing 24 hours.
	DailyPostLimit int64

	// IdleDelay is how long a worker sleeps when no job was found.
	IdleDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.DailyPostLimit <= 0 {
		o.DailyPostLimit = defaultDailyPostLimit
	}
	if o.IdleDelay <= 0 {
		o.IdleDelay = defaultIdleDelay
	}
	return o
}

// Crawler is the core domain service. It owns the job dispatch loop and the
// logic that turns provider responses into store mutations.
type Crawler struct {
	store  Store
	client ContentClient
	opts   Options
	logger *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewCrawler creates a Crawler backed by store and client.
func NewCrawler(store Store, client ContentClient, opts Options, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		store:  store,
		client: client,
		opts:   opts.withDefaults(),
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// step is one job kind. It reports whether it made progress.
type step func(ctx context.Context, tx Tx, logger *slog.Logger) (bool, error)

// Dispatch runs one unit of work inside a single transaction. Job kinds are
// tried in priority order and the first one with work wins. It reports
// whether any progress was made.
func (c *Crawler) Dispatch(ctx context.Context) (bool, error) {
	return c.dispatch(ctx, c.logger)
}

func (c *Crawler) dispatch(ctx context.Context, logger *slog.Logger) (bool, error) {
	steps := []step{
		c.processNextCursorSearch,
		c.processNextThreadJobs,
		c.processNextStubAccounts,
		c.processNextSuggestion,
	}

	var progress bool
	err := c.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, s := range steps {
			ok, err := s(ctx, tx, logger)
			if err != nil {
				return err
			}
			if ok {
				progress = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("dispatch: %w", err)
	}
	return progress, nil
}
