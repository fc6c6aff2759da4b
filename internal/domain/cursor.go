package domain

import (
	"context"
	"fmt"
	"log/slog"
)

// processNextCursorSearch claims the least recently updated cursor search job
// and fetches the next page of the account's history, older than anything
// already ingested. An empty page means the history is exhausted and the job
// is removed; otherwise the job goes to the back of the queue.
func (c *Crawler) processNextCursorSearch(ctx context.Context, tx Tx, logger *slog.Logger) (bool, error) {
	job, err := tx.ClaimCursorSearchJob(ctx)
	if err != nil {
		return false, fmt.Errorf("claim cursor search job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	account, err := tx.GetAccount(ctx, job.AuthorID)
	if err != nil {
		return false, fmt.Errorf("get account %d: %w", job.AuthorID, err)
	}

	query := job.Query
	if account != nil {
		query = pagedQuery(query, account.OldestTrackedPostID)
	}

	logger.Info("found cursor search job", "author_id", job.AuthorID, "query", query)

	posts, err := c.client.SearchPosts(ctx, query, SearchLatest)
	if err != nil {
		return false, fmt.Errorf("search posts %q: %w", query, err)
	}

	if err := c.ingestPosts(ctx, tx, logger, posts); err != nil {
		return false, err
	}
	if err := c.queueAuthorBatch(ctx, tx, logger, job.AuthorID, posts); err != nil {
		return false, err
	}

	if len(posts) > 0 {
		logger.Info("cursor search scheduled for another run", "author_id", job.AuthorID, "count", len(posts))
		if err := tx.TouchCursorSearchJob(ctx, job.AuthorID); err != nil {
			return false, fmt.Errorf("touch cursor search job %d: %w", job.AuthorID, err)
		}
	} else {
		logger.Info("reached end of search", "author_id", job.AuthorID)
		if err := tx.DeleteCursorSearchJob(ctx, job.AuthorID); err != nil {
			return false, fmt.Errorf("delete cursor search job %d: %w", job.AuthorID, err)
		}
	}

	return true, nil
}
