package domain

import (
	"context"
	"time"
)

// SearchOrder selects how the provider orders search results.
type SearchOrder string

// SearchLatest orders results newest first, which cursor paging relies on.
const SearchLatest SearchOrder = "Latest"

// ContentClient is the external content provider.
type ContentClient interface {
	// GetProfileByUsername returns nil when the provider has no such account.
	GetProfileByUsername(ctx context.Context, username string) (*Profile, error)

	// BatchGetProfiles fetches 1..100 accounts. Unknown ids are silently absent.
	BatchGetProfiles(ctx context.Context, ids []int64) ([]Profile, error)

	// SearchPosts runs a provider search query.
	SearchPosts(ctx context.Context, query string, order SearchOrder) ([]FetchedPost, error)

	// GetPostsByIDs fetches posts by id. Unknown ids are silently absent.
	GetPostsByIDs(ctx context.Context, ids []int64) ([]FetchedPost, error)
}

// Store is the content store and work queue.
type Store interface {
	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// AddSuggestion queues a username for tracking. Pending duplicates are ignored.
	AddSuggestion(ctx context.Context, username string) error

	// QueueStats counts pending work.
	QueueStats(ctx context.Context) (QueueStats, error)
}

// Tx is the set of operations available inside one dispatch transaction.
// Claim methods lock the returned rows until the transaction ends and skip
// rows locked by other transactions.
type Tx interface {
	AccountRepository
	PostRepository
	CursorJobRepository
	ThreadJobRepository
	SuggestionRepository
}

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	// GetAccount returns nil when the account does not exist.
	GetAccount(ctx context.Context, id int64) (*Account, error)

	// EnsureAccountStub inserts an untracked stub unless the account exists.
	EnsureAccountStub(ctx context.Context, id int64) error

	// UpsertProfile writes a provider profile onto account id. Unavailable
	// profiles clear every profile field and record the reason.
	UpsertProfile(ctx context.Context, id int64, profile *Profile, tracked bool) error

	// ClaimStubAccounts locks up to limit accounts awaiting hydration,
	// tracked first, then least recently updated.
	ClaimStubAccounts(ctx context.Context, limit int) ([]StubAccount, error)

	// WidenBoundaries extends the account's tracked range to include
	// [oldest, newest]. It never narrows an existing boundary.
	WidenBoundaries(ctx context.Context, id int64, oldest, newest int64) error
}

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	// UpsertPost inserts the post or refreshes every field of an existing row.
	UpsertPost(ctx context.Context, post *Post) error

	PostExists(ctx context.Context, id int64) (bool, error)

	// CountPostsUpdatedSince counts posts whose row was written after since.
	CountPostsUpdatedSince(ctx context.Context, since time.Time) (int64, error)
}

// CursorJobRepository defines persistence operations for cursor search jobs.
type CursorJobRepository interface {
	// ClaimCursorSearchJob locks the least recently updated job. Returns nil
	// when none is available.
	ClaimCursorSearchJob(ctx context.Context) (*CursorSearchJob, error)

	// EnsureCursorSearchJob creates the account's job unless one exists.
	EnsureCursorSearchJob(ctx context.Context, authorID int64, query string) error

	// TouchCursorSearchJob bumps updated_at, moving the job to the back of the queue.
	TouchCursorSearchJob(ctx context.Context, authorID int64) error

	DeleteCursorSearchJob(ctx context.Context, authorID int64) error
}

// ThreadJobRepository defines persistence operations for thread traversal jobs.
type ThreadJobRepository interface {
	// ClaimThreadJobs locks up to limit jobs, oldest created first.
	ClaimThreadJobs(ctx context.Context, limit int) ([]ThreadJob, error)

	// CreateThreadJob inserts the job unless one with the same key exists.
	CreateThreadJob(ctx context.Context, job ThreadJob) error

	// AdvanceThreadJob points the job at the next parent to fetch.
	AdvanceThreadJob(ctx context.Context, conversationID, originalReplyID, nextReplyID int64) error

	DeleteThreadJob(ctx context.Context, conversationID, originalReplyID int64) error
}

// SuggestionRepository defines persistence operations for user suggestions.
type SuggestionRepository interface {
	// ClaimSuggestion locks the oldest pending suggestion. Returns nil when
	// none is available.
	ClaimSuggestion(ctx context.Context) (*Suggestion, error)

	// DeleteSuggestion soft-deletes pending suggestions for username.
	DeleteSuggestion(ctx context.Context, username string) error
}
