// Package stats periodically logs the crawler's queue depths.
package stats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blackmichael/twitter-crawler/internal/domain"
	"github.com/robfig/cron/v3"
)

// Source provides queue counts. domain.Store satisfies it.
type Source interface {
	QueueStats(ctx context.Context) (domain.QueueStats, error)
}

// Reporter logs queue stats on a cron schedule.
type Reporter struct {
	source Source
	logger *slog.Logger
}

// NewReporter creates a Reporter reading from source.
func NewReporter(source Source, logger *slog.Logger) *Reporter {
	return &Reporter{source: source, logger: logger}
}

// Report logs the current queue stats once and returns them.
func (r *Reporter) Report(ctx context.Context) (domain.QueueStats, error) {
	s, err := r.source.QueueStats(ctx)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("query queue stats: %w", err)
	}
	r.logger.Info("queue stats",
		"cursor_search_jobs", s.CursorSearchJobs,
		"thread_jobs", s.ThreadJobs,
		"stub_accounts", s.StubAccounts,
		"pending_suggestions", s.PendingSuggestions,
		"tracked_accounts", s.TrackedAccounts,
		"posts_last_24h", s.PostsLast24h,
	)
	return s, nil
}

// Start reports on schedule, a standard cron spec or descriptor such as
// "@every 5m". It blocks until ctx is cancelled and any running report has
// finished.
func (r *Reporter) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := r.Report(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("queue stats failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule queue stats %q: %w", schedule, err)
	}

	c.Start()
	r.logger.Info("queue stats scheduled", "schedule", schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
