package domain

import (
	"context"
	"fmt"
	"log/slog"
)

// ingestPosts upserts fetched posts, their quoted posts and stub accounts for
// every author seen.
func (c *Crawler) ingestPosts(ctx context.Context, tx Tx, logger *slog.Logger, posts []FetchedPost) error {
	if len(posts) == 0 {
		return nil
	}

	for i := range posts {
		if err := c.ingestPost(ctx, tx, logger, &posts[i]); err != nil {
			return err
		}
	}

	logger.Info("inserted posts", "count", len(posts))
	return nil
}

func (c *Crawler) ingestPost(ctx context.Context, tx Tx, logger *slog.Logger, post *FetchedPost) error {
	if err := tx.UpsertPost(ctx, &post.Post); err != nil {
		return fmt.Errorf("upsert post %d: %w", post.ID, err)
	}
	if post.AuthorID != 0 {
		if err := tx.EnsureAccountStub(ctx, post.AuthorID); err != nil {
			return fmt.Errorf("ensure author %d: %w", post.AuthorID, err)
		}
	}

	// Quoted posts feed the traversal engine the same way top-level replies do.
	if quoted := post.Quoted; quoted != nil && quoted.ID != 0 {
		if err := c.ingestPost(ctx, tx, logger, quoted); err != nil {
			return err
		}
		if err := c.queueMissingParent(ctx, tx, logger, quoted); err != nil {
			return err
		}
	}
	return nil
}

// queueAuthorBatch creates traversal jobs for replies in a batch fetched for
// author and widens the author's tracked boundaries to cover the batch.
func (c *Crawler) queueAuthorBatch(ctx context.Context, tx Tx, logger *slog.Logger, authorID int64, posts []FetchedPost) error {
	if len(posts) == 0 {
		return nil
	}

	oldest, newest := posts[0].ID, posts[0].ID
	for i := range posts {
		p := &posts[i]
		oldest = min(oldest, p.ID)
		newest = max(newest, p.ID)

		if err := c.queueMissingParent(ctx, tx, logger, p); err != nil {
			return err
		}
	}

	if err := tx.WidenBoundaries(ctx, authorID, oldest, newest); err != nil {
		return fmt.Errorf("widen boundaries for %d: %w", authorID, err)
	}
	return nil
}

// queueMissingParent starts a thread traversal for a reply whose parent is
// not stored yet.
func (c *Crawler) queueMissingParent(ctx context.Context, tx Tx, logger *slog.Logger, post *FetchedPost) error {
	if !post.IsReply() || post.ConversationID == nil {
		return nil
	}

	exists, err := tx.PostExists(ctx, *post.ParentID)
	if err != nil {
		return fmt.Errorf("check parent %d: %w", *post.ParentID, err)
	}
	if exists {
		return nil
	}

	logger.Info("found reply, creating thread traversal job",
		"conversation_id", *post.ConversationID,
		"original_reply_id", post.ID,
		"next_reply_id", *post.ParentID,
	)

	job := ThreadJob{
		ConversationID:  *post.ConversationID,
		OriginalReplyID: post.ID,
		NextReplyID:     *post.ParentID,
	}
	if err := tx.CreateThreadJob(ctx, job); err != nil {
		return fmt.Errorf("create thread job for %d: %w", post.ID, err)
	}

	if post.ParentAuthorID != nil && *post.ParentAuthorID != 0 {
		if err := tx.EnsureAccountStub(ctx, *post.ParentAuthorID); err != nil {
			return fmt.Errorf("ensure parent author %d: %w", *post.ParentAuthorID, err)
		}
	}
	return nil
}
