package domain

import (
	"context"
	"fmt"
	"log/slog"
)

// processNextThreadJobs claims a batch of thread traversal jobs and moves each
// one level up its reply chain. Parents already stored end the walk without a
// fetch; the rest are fetched in a single call. A walk ends when the parent
// is missing remotely or is a root post, otherwise the job advances to the
// grandparent and stays queued.
func (c *Crawler) processNextThreadJobs(ctx context.Context, tx Tx, logger *slog.Logger) (bool, error) {
	jobs, err := tx.ClaimThreadJobs(ctx, threadBatchSize)
	if err != nil {
		return false, fmt.Errorf("claim thread jobs: %w", err)
	}
	if len(jobs) == 0 {
		return false, nil
	}

	toFetch := make([]ThreadJob, 0, len(jobs))
	for _, job := range jobs {
		jobLogger := threadJobLogger(logger, job)
		jobLogger.Info("found thread traversal job")

		exists, err := tx.PostExists(ctx, job.NextReplyID)
		if err != nil {
			return false, fmt.Errorf("check parent %d: %w", job.NextReplyID, err)
		}
		if exists {
			jobLogger.Info("parent already stored, ending traversal")
			if err := finishThreadJob(ctx, tx, job); err != nil {
				return false, err
			}
			continue
		}
		toFetch = append(toFetch, job)
	}

	if len(toFetch) == 0 {
		return true, nil
	}

	ids := uniqueNextReplyIDs(toFetch)
	logger.Info("fetching thread posts", "count", len(ids))

	posts, err := c.client.GetPostsByIDs(ctx, ids)
	if err != nil {
		return false, fmt.Errorf("get posts by ids: %w", err)
	}

	byID := make(map[int64]*FetchedPost, len(posts))
	for i := range posts {
		byID[posts[i].ID] = &posts[i]
	}

	for _, job := range toFetch {
		jobLogger := threadJobLogger(logger, job)
		post, ok := byID[job.NextReplyID]
		switch {
		case !ok:
			jobLogger.Info("parent post not found, ending traversal")
			if err := finishThreadJob(ctx, tx, job); err != nil {
				return false, err
			}
		case !post.IsReply() || *post.ParentID == post.ID:
			jobLogger.Info("reached root post, ending traversal")
			if err := finishThreadJob(ctx, tx, job); err != nil {
				return false, err
			}
		default:
			if err := tx.AdvanceThreadJob(ctx, job.ConversationID, job.OriginalReplyID, *post.ParentID); err != nil {
				return false, fmt.Errorf("advance thread job %d/%d: %w", job.ConversationID, job.OriginalReplyID, err)
			}
		}
	}

	if err := c.ingestPosts(ctx, tx, logger, posts); err != nil {
		return false, err
	}

	return true, nil
}

func finishThreadJob(ctx context.Context, tx Tx, job ThreadJob) error {
	if err := tx.DeleteThreadJob(ctx, job.ConversationID, job.OriginalReplyID); err != nil {
		return fmt.Errorf("delete thread job %d/%d: %w", job.ConversationID, job.OriginalReplyID, err)
	}
	return nil
}

func uniqueNextReplyIDs(jobs []ThreadJob) []int64 {
	seen := make(map[int64]struct{}, len(jobs))
	ids := make([]int64, 0, len(jobs))
	for _, job := range jobs {
		if _, ok := seen[job.NextReplyID]; ok {
			continue
		}
		seen[job.NextReplyID] = struct{}{}
		ids = append(ids, job.NextReplyID)
	}
	return ids
}

func threadJobLogger(logger *slog.Logger, job ThreadJob) *slog.Logger {
	return logger.With(
		"conversation_id", job.ConversationID,
		"original_reply_id", job.OriginalReplyID,
		"next_reply_id", job.NextReplyID,
	)
}
