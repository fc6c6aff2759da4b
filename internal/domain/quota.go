package domain

import (
	"context"
	"fmt"
	"time"
)

// quotaWindow is the trailing window the daily post limit applies to.
const quotaWindow = 24 * time.Hour

// dailyLimitReached reports whether the posts written in the trailing window
// meet the configured limit. Only new discovery is gated on it.
func (c *Crawler) dailyLimitReached(ctx context.Context, tx Tx) (bool, error) {
	since := c.now().Add(-quotaWindow)
	count, err := tx.CountPostsUpdatedSince(ctx, since)
	if err != nil {
		return false, fmt.Errorf("count recent posts: %w", err)
	}
	return count >= c.opts.DailyPostLimit, nil
}
