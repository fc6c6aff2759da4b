package domain

import (
	"fmt"
	"time"
)

// CursorSearchJob walks one tracked account's history backward. There is at
// most one per account.
type CursorSearchJob struct {
	AuthorID  int64
	Query     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// searchQueryFor returns the base search query for an account's own posts.
func searchQueryFor(username string) string {
	return "from:" + username
}

// pagedQuery appends an upper-bound cursor so the provider returns only posts
// strictly older than oldest.
func pagedQuery(query string, oldest *int64) string {
	if oldest == nil {
		return query
	}
	return fmt.Sprintf("%s max_id:%d", query, *oldest-1)
}

// ThreadJob is an in-flight upward walk of a reply chain. It is identified by
// the conversation and the reply that started the walk.
type ThreadJob struct {
	ConversationID  int64
	OriginalReplyID int64

	// NextReplyID is the parent post to fetch next.
	NextReplyID int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// QueueStats summarises the crawler's pending work.
type QueueStats struct {
	CursorSearchJobs   int64
	ThreadJobs         int64
	StubAccounts       int64
	PendingSuggestions int64
	TrackedAccounts    int64
	PostsLast24h       int64
}
