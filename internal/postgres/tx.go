package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blackmichael/twitter-crawler/internal/domain"
)

// txRepository implements domain.Tx on top of one database transaction.
type txRepository struct {
	tx *sql.Tx
}

var _ domain.Tx = (*txRepository)(nil)

const accountColumns = `
	id, username, display_name, bio, avatar_url, is_verified, verified_type,
	is_automated, automated_by, follower_count, following_count, post_count,
	account_created_at, tracked, unavailable_reason,
	oldest_tracked_post_id, newest_tracked_post_id, updated_at`

// GetAccount retrieves an account by id.
func (r *txRepository) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	var (
		a                                                 domain.Account
		username, displayName, bio, avatar, vType, autoBy sql.NullString
		reason                                            sql.NullString
		verified                                          sql.NullBool
		followers, following, posts                       sql.NullInt64
		createdAt                                         sql.NullTime
		oldest, newest                                    sql.NullInt64
	)
	err := r.tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	).Scan(
		&a.ID, &username, &displayName, &bio, &avatar, &verified, &vType,
		&a.IsAutomated, &autoBy, &followers, &following, &posts,
		&createdAt, &a.Tracked, &reason,
		&oldest, &newest, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}

	a.Username = username.String
	a.DisplayName = displayName.String
	a.Bio = bio.String
	a.AvatarURL = avatar.String
	a.IsVerified = verified.Bool
	a.VerifiedType = vType.String
	a.AutomatedBy = autoBy.String
	a.FollowerCount = int(followers.Int64)
	a.FollowingCount = int(following.Int64)
	a.PostCount = int(posts.Int64)
	if createdAt.Valid {
		a.CreatedAt = &createdAt.Time
	}
	a.UnavailableReason = reason.String
	a.OldestTrackedPostID = int64Ptr(oldest)
	a.NewestTrackedPostID = int64Ptr(newest)
	return &a, nil
}

// EnsureAccountStub inserts an untracked stub account unless it exists.
func (r *txRepository) EnsureAccountStub(ctx context.Context, id int64) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO accounts (id, tracked)
		VALUES ($1, FALSE)
		ON CONFLICT (id) DO NOTHING`, id)
	return err
}

// UpsertProfile writes a provider profile onto an account row.
func (r *txRepository) UpsertProfile(ctx context.Context, id int64, p *domain.Profile, tracked bool) error {
	if p.Unavailable {
		_, err := r.tx.ExecContext(ctx, `
			INSERT INTO accounts (id, tracked, unavailable, unavailable_reason, updated_at)
			VALUES ($1, $2, TRUE, $3, NOW())
			ON CONFLICT (id) DO UPDATE SET
				username = NULL,
				display_name = NULL,
				bio = NULL,
				avatar_url = NULL,
				is_verified = NULL,
				verified_type = NULL,
				is_automated = FALSE,
				automated_by = NULL,
				follower_count = NULL,
				following_count = NULL,
				post_count = NULL,
				account_created_at = NULL,
				unavailable = TRUE,
				unavailable_reason = EXCLUDED.unavailable_reason,
				tracked = EXCLUDED.tracked,
				updated_at = NOW()`,
			id, tracked, p.UnavailableReason,
		)
		return err
	}

	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO accounts (
			id, username, display_name, bio, avatar_url, is_verified, verified_type,
			is_automated, automated_by, follower_count, following_count, post_count,
			account_created_at, tracked, unavailable, unavailable_reason, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, FALSE, NULL, NOW())
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			bio = EXCLUDED.bio,
			avatar_url = EXCLUDED.avatar_url,
			is_verified = EXCLUDED.is_verified,
			verified_type = EXCLUDED.verified_type,
			is_automated = EXCLUDED.is_automated,
			automated_by = EXCLUDED.automated_by,
			follower_count = EXCLUDED.follower_count,
			following_count = EXCLUDED.following_count,
			post_count = EXCLUDED.post_count,
			account_created_at = EXCLUDED.account_created_at,
			tracked = EXCLUDED.tracked,
			unavailable = FALSE,
			unavailable_reason = NULL,
			updated_at = NOW()`,
		id,
		p.Username,
		nullString(p.DisplayName),
		nullString(p.Bio),
		nullString(p.AvatarURL),
		p.IsVerified,
		nullString(p.VerifiedType),
		p.IsAutomated,
		nullString(p.AutomatedBy),
		p.FollowerCount,
		p.FollowingCount,
		p.PostCount,
		nullTime(p.CreatedAt),
		tracked,
	)
	return err
}

// ClaimStubAccounts locks accounts awaiting hydration, tracked ones first.
func (r *txRepository) ClaimStubAccounts(ctx context.Context, limit int) ([]domain.StubAccount, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, tracked
		FROM accounts
		WHERE username IS NULL
			AND unavailable_reason IS NULL
			AND deleted_at IS NULL
		ORDER BY tracked DESC, updated_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("query stub accounts: %w", err)
	}
	defer rows.Close()

	var stubs []domain.StubAccount
	for rows.Next() {
		var s domain.StubAccount
		if err := rows.Scan(&s.ID, &s.Tracked); err != nil {
			return nil, fmt.Errorf("scan stub account: %w", err)
		}
		stubs = append(stubs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stub accounts: %w", err)
	}
	return stubs, nil
}

// WidenBoundaries extends the tracked post range. The WHERE clause makes the
// update a no-op unless the batch actually extends a boundary, so concurrent
// batches for the same account can only widen it.
func (r *txRepository) WidenBoundaries(ctx context.Context, id int64, oldest, newest int64) error {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE accounts SET
			oldest_tracked_post_id = LEAST(COALESCE(oldest_tracked_post_id, $2), $2),
			newest_tracked_post_id = GREATEST(COALESCE(newest_tracked_post_id, $3), $3)
		WHERE id = $1
			AND (
				oldest_tracked_post_id IS NULL
				OR $2 < oldest_tracked_post_id
				OR newest_tracked_post_id IS NULL
				OR $3 > newest_tracked_post_id
			)`,
		id, oldest, newest,
	)
	return err
}

// UpsertPost inserts a post or refreshes every field of an existing one.
func (r *txRepository) UpsertPost(ctx context.Context, p *domain.Post) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO posts (id, text, author_id, posted_at, conversation_id, parent_post_id, quoted_post_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			author_id = EXCLUDED.author_id,
			posted_at = EXCLUDED.posted_at,
			conversation_id = EXCLUDED.conversation_id,
			parent_post_id = EXCLUDED.parent_post_id,
			quoted_post_id = EXCLUDED.quoted_post_id,
			updated_at = NOW()`,
		p.ID,
		p.Text,
		p.AuthorID,
		p.CreatedAt,
		nullInt64(p.ConversationID),
		nullInt64(p.ParentID),
		nullInt64(p.QuotedID),
	)
	return err
}

// PostExists reports whether a post is stored.
func (r *txRepository) PostExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, id,
	).Scan(&exists)
	return exists, err
}

// CountPostsUpdatedSince counts posts written at or after since.
func (r *txRepository) CountPostsUpdatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE updated_at >= $1`, since,
	).Scan(&count)
	return count, err
}

// ClaimCursorSearchJob locks the least recently updated cursor search job.
func (r *txRepository) ClaimCursorSearchJob(ctx context.Context) (*domain.CursorSearchJob, error) {
	var j domain.CursorSearchJob
	err := r.tx.QueryRowContext(ctx, `
		SELECT author_id, query, created_at, updated_at
		FROM cursor_search_jobs
		ORDER BY updated_at ASC, author_id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
	).Scan(&j.AuthorID, &j.Query, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// EnsureCursorSearchJob creates a cursor search job unless one exists.
func (r *txRepository) EnsureCursorSearchJob(ctx context.Context, authorID int64, query string) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO cursor_search_jobs (author_id, query)
		VALUES ($1, $2)
		ON CONFLICT (author_id) DO NOTHING`,
		authorID, query,
	)
	return err
}

// TouchCursorSearchJob moves a job to the back of the queue.
func (r *txRepository) TouchCursorSearchJob(ctx context.Context, authorID int64) error {
	_, err := r.tx.ExecContext(ctx,
		`UPDATE cursor_search_jobs SET updated_at = clock_timestamp() WHERE author_id = $1`, authorID)
	return err
}

// DeleteCursorSearchJob removes a finished cursor search job.
func (r *txRepository) DeleteCursorSearchJob(ctx context.Context, authorID int64) error {
	_, err := r.tx.ExecContext(ctx, `DELETE FROM cursor_search_jobs WHERE author_id = $1`, authorID)
	return err
}

// ClaimThreadJobs locks up to limit thread jobs, oldest first.
func (r *txRepository) ClaimThreadJobs(ctx context.Context, limit int) ([]domain.ThreadJob, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT conversation_id, original_reply_id, next_reply_id, created_at, updated_at
		FROM thread_jobs
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("query thread jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ThreadJob
	for rows.Next() {
		var j domain.ThreadJob
		if err := rows.Scan(&j.ConversationID, &j.OriginalReplyID, &j.NextReplyID, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan thread job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread jobs: %w", err)
	}
	return jobs, nil
}

// CreateThreadJob inserts a thread job unless one with the same key exists.
func (r *txRepository) CreateThreadJob(ctx context.Context, j domain.ThreadJob) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO thread_jobs (conversation_id, original_reply_id, next_reply_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, original_reply_id) DO NOTHING`,
		j.ConversationID, j.OriginalReplyID, j.NextReplyID,
	)
	return err
}

// AdvanceThreadJob points a thread job at the next parent.
func (r *txRepository) AdvanceThreadJob(ctx context.Context, conversationID, originalReplyID, nextReplyID int64) error {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE thread_jobs SET next_reply_id = $3, updated_at = clock_timestamp()
		WHERE conversation_id = $1 AND original_reply_id = $2`,
		conversationID, originalReplyID, nextReplyID,
	)
	return err
}

// DeleteThreadJob removes a finished thread job.
func (r *txRepository) DeleteThreadJob(ctx context.Context, conversationID, originalReplyID int64) error {
	_, err := r.tx.ExecContext(ctx, `
		DELETE FROM thread_jobs
		WHERE conversation_id = $1 AND original_reply_id = $2`,
		conversationID, originalReplyID,
	)
	return err
}

// ClaimSuggestion locks the oldest pending suggestion.
func (r *txRepository) ClaimSuggestion(ctx context.Context) (*domain.Suggestion, error) {
	var s domain.Suggestion
	err := r.tx.QueryRowContext(ctx, `
		SELECT username, created_at
		FROM user_suggestions
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
	).Scan(&s.Username, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSuggestion soft-deletes pending suggestions for a username.
func (r *txRepository) DeleteSuggestion(ctx context.Context, username string) error {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE user_suggestions SET deleted_at = NOW()
		WHERE deleted_at IS NULL AND username = $1`,
		username,
	)
	return err
}
