package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blackmichael/twitter-crawler/internal/domain"
)

// txStore implements domain.Tx on top of one SQLite transaction. Claims are
// plain selects; exclusivity comes from the store's single connection.
type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

var _ domain.Tx = (*txStore)(nil)

func (r *txStore) stamp() int64 {
	return millis(r.now())
}

// GetAccount retrieves an account by id.
func (r *txStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	var (
		a                                                 domain.Account
		username, displayName, bio, avatar, vType, autoBy sql.NullString
		reason                                            sql.NullString
		verified                                          sql.NullBool
		followers, following, posts                       sql.NullInt64
		createdAt, oldest, newest                         sql.NullInt64
		updatedAt                                         int64
	)
	err := r.tx.QueryRowContext(ctx, `
		SELECT id, username, display_name, bio, avatar_url, is_verified, verified_type,
			is_automated, automated_by, follower_count, following_count, post_count,
			account_created_at, tracked, unavailable_reason,
			oldest_tracked_post_id, newest_tracked_post_id, updated_at
		FROM accounts WHERE id = ?`, id,
	).Scan(
		&a.ID, &username, &displayName, &bio, &avatar, &verified, &vType,
		&a.IsAutomated, &autoBy, &followers, &following, &posts,
		&createdAt, &a.Tracked, &reason,
		&oldest, &newest, &updatedAt,
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
		t := fromMillis(createdAt.Int64)
		a.CreatedAt = &t
	}
	a.UnavailableReason = reason.String
	a.OldestTrackedPostID = int64Ptr(oldest)
	a.NewestTrackedPostID = int64Ptr(newest)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

// EnsureAccountStub inserts an untracked stub account unless it exists.
func (r *txStore) EnsureAccountStub(ctx context.Context, id int64) error {
	now := r.stamp()
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO accounts (id, tracked, created_at, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT (id) DO NOTHING`, id, now, now)
	return err
}

// UpsertProfile writes a provider profile onto an account row.
func (r *txStore) UpsertProfile(ctx context.Context, id int64, p *domain.Profile, tracked bool) error {
	now := r.stamp()
	if p.Unavailable {
		_, err := r.tx.ExecContext(ctx, `
			INSERT INTO accounts (id, tracked, unavailable, unavailable_reason, created_at, updated_at)
			VALUES (?, ?, 1, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				username = NULL,
				display_name = NULL,
				bio = NULL,
				avatar_url = NULL,
				is_verified = NULL,
				verified_type = NULL,
				is_automated = 0,
				automated_by = NULL,
				follower_count = NULL,
				following_count = NULL,
				post_count = NULL,
				account_created_at = NULL,
				unavailable = 1,
				unavailable_reason = excluded.unavailable_reason,
				tracked = excluded.tracked,
				updated_at = excluded.updated_at`,
			id, tracked, p.UnavailableReason, now, now,
		)
		return err
	}

	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO accounts (
			id, username, display_name, bio, avatar_url, is_verified, verified_type,
			is_automated, automated_by, follower_count, following_count, post_count,
			account_created_at, tracked, unavailable, unavailable_reason, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			bio = excluded.bio,
			avatar_url = excluded.avatar_url,
			is_verified = excluded.is_verified,
			verified_type = excluded.verified_type,
			is_automated = excluded.is_automated,
			automated_by = excluded.automated_by,
			follower_count = excluded.follower_count,
			following_count = excluded.following_count,
			post_count = excluded.post_count,
			account_created_at = excluded.account_created_at,
			tracked = excluded.tracked,
			unavailable = 0,
			unavailable_reason = NULL,
			updated_at = excluded.updated_at`,
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
		nullMillis(p.CreatedAt),
		tracked,
		now,
		now,
	)
	return err
}

// ClaimStubAccounts selects accounts awaiting hydration, tracked ones first.
func (r *txStore) ClaimStubAccounts(ctx context.Context, limit int) ([]domain.StubAccount, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, tracked
		FROM accounts
		WHERE username IS NULL
			AND unavailable_reason IS NULL
			AND deleted_at IS NULL
		ORDER BY tracked DESC, updated_at ASC, id ASC
		LIMIT ?`, limit)
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

// WidenBoundaries extends the tracked post range. MIN and MAX keep it from
// ever narrowing.
func (r *txStore) WidenBoundaries(ctx context.Context, id int64, oldest, newest int64) error {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE accounts SET
			oldest_tracked_post_id = MIN(COALESCE(oldest_tracked_post_id, ?), ?),
			newest_tracked_post_id = MAX(COALESCE(newest_tracked_post_id, ?), ?)
		WHERE id = ?
			AND (
				oldest_tracked_post_id IS NULL
				OR ? < oldest_tracked_post_id
				OR newest_tracked_post_id IS NULL
				OR ? > newest_tracked_post_id
			)`,
		oldest, oldest, newest, newest, id, oldest, newest,
	)
	return err
}

// UpsertPost inserts a post or refreshes every field of an existing one.
func (r *txStore) UpsertPost(ctx context.Context, p *domain.Post) error {
	now := r.stamp()
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO posts (id, text, author_id, posted_at, conversation_id, parent_post_id, quoted_post_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			text = excluded.text,
			author_id = excluded.author_id,
			posted_at = excluded.posted_at,
			conversation_id = excluded.conversation_id,
			parent_post_id = excluded.parent_post_id,
			quoted_post_id = excluded.quoted_post_id,
			updated_at = excluded.updated_at`,
		p.ID,
		p.Text,
		p.AuthorID,
		millis(p.CreatedAt),
		nullInt64(p.ConversationID),
		nullInt64(p.ParentID),
		nullInt64(p.QuotedID),
		now,
		now,
	)
	return err
}

// PostExists reports whether a post is stored.
func (r *txStore) PostExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE id = ?)`, id,
	).Scan(&exists)
	return exists, err
}

// CountPostsUpdatedSince counts posts written at or after since.
func (r *txStore) CountPostsUpdatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE updated_at >= ?`, millis(since),
	).Scan(&count)
	return count, err
}

// ClaimCursorSearchJob selects the least recently updated cursor search job.
func (r *txStore) ClaimCursorSearchJob(ctx context.Context) (*domain.CursorSearchJob, error) {
	var (
		j                    domain.CursorSearchJob
		createdAt, updatedAt int64
	)
	err := r.tx.QueryRowContext(ctx, `
		SELECT author_id, query, created_at, updated_at
		FROM cursor_search_jobs
		ORDER BY updated_at ASC, author_id ASC
		LIMIT 1`,
	).Scan(&j.AuthorID, &j.Query, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.CreatedAt = fromMillis(createdAt)
	j.UpdatedAt = fromMillis(updatedAt)
	return &j, nil
}

// EnsureCursorSearchJob creates a cursor search job unless one exists.
func (r *txStore) EnsureCursorSearchJob(ctx context.Context, authorID int64, query string) error {
	now := r.stamp()
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO cursor_search_jobs (author_id, query, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (author_id) DO NOTHING`,
		authorID, query, now, now,
	)
	return err
}

// TouchCursorSearchJob moves a job to the back of the queue.
func (r *txStore) TouchCursorSearchJob(ctx context.Context, authorID int64) error {
	_, err := r.tx.ExecContext(ctx,
		`UPDATE cursor_search_jobs SET updated_at = ? WHERE author_id = ?`, r.stamp(), authorID)
	return err
}

// DeleteCursorSearchJob removes a finished cursor search job.
func (r *txStore) DeleteCursorSearchJob(ctx context.Context, authorID int64) error {
	_, err := r.tx.ExecContext(ctx, `DELETE FROM cursor_search_jobs WHERE author_id = ?`, authorID)
	return err
}

// ClaimThreadJobs selects up to limit thread jobs, oldest first.
func (r *txStore) ClaimThreadJobs(ctx context.Context, limit int) ([]domain.ThreadJob, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT conversation_id, original_reply_id, next_reply_id, created_at, updated_at
		FROM thread_jobs
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query thread jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ThreadJob
	for rows.Next() {
		var (
			j                    domain.ThreadJob
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&j.ConversationID, &j.OriginalReplyID, &j.NextReplyID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan thread job: %w", err)
		}
		j.CreatedAt = fromMillis(createdAt)
		j.UpdatedAt = fromMillis(updatedAt)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread jobs: %w", err)
	}
	return jobs, nil
}

// CreateThreadJob inserts a thread job unless one with the same key exists.
func (r *txStore) CreateThreadJob(ctx context.Context, j domain.ThreadJob) error {
	now := r.stamp()
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO thread_jobs (conversation_id, original_reply_id, next_reply_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, original_reply_id) DO NOTHING`,
		j.ConversationID, j.OriginalReplyID, j.NextReplyID, now, now,
	)
	return err
}

// AdvanceThreadJob points a thread job at the next parent.
func (r *txStore) AdvanceThreadJob(ctx context.Context, conversationID, originalReplyID, nextReplyID int64) error {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE thread_jobs SET next_reply_id = ?, updated_at = ?
		WHERE conversation_id = ? AND original_reply_id = ?`,
		nextReplyID, r.stamp(), conversationID, originalReplyID,
	)
	return err
}

// DeleteThreadJob removes a finished thread job.
func (r *txStore) DeleteThreadJob(ctx context.Context, conversationID, originalReplyID int64) error {
	_, err := r.tx.ExecContext(ctx, `
		DELETE FROM thread_jobs
		WHERE conversation_id = ? AND original_reply_id = ?`,
		conversationID, originalReplyID,
	)
	return err
}

// ClaimSuggestion selects the oldest pending suggestion.
func (r *txStore) ClaimSuggestion(ctx context.Context) (*domain.Suggestion, error) {
	var (
		s         domain.Suggestion
		createdAt int64
	)
	err := r.tx.QueryRowContext(ctx, `
		SELECT username, created_at
		FROM user_suggestions
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT 1`,
	).Scan(&s.Username, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt = fromMillis(createdAt)
	return &s, nil
}

// DeleteSuggestion soft-deletes pending suggestions for a username.
func (r *txStore) DeleteSuggestion(ctx context.Context, username string) error {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE user_suggestions SET deleted_at = ?
		WHERE deleted_at IS NULL AND username = ?`,
		r.stamp(), username,
	)
	return err
}
