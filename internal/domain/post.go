package domain

import "time"

// Post represents a post stored in our database.
type Post struct {
	// ID is the provider's post id. Ids are time-ordered.
	ID int64

	Text     string
	AuthorID int64

	// CreatedAt is when the author published the post.
	CreatedAt time.Time

	// ConversationID identifies the thread. Nil means no known thread.
	ConversationID *int64

	// ParentID is the post this one replies to, if any.
	ParentID *int64

	// QuotedID is the post this one quotes, if any.
	QuotedID *int64
}

// IsReply reports whether the post replies to another post.
func (p *Post) IsReply() bool {
	return p.ParentID != nil
}

// FetchedPost is a post as returned by the content provider. It carries the
// references needed to grow the local graph that are not stored on the row.
type FetchedPost struct {
	Post

	// ParentAuthorID is the author of the parent post, when the provider
	// reports it.
	ParentAuthorID *int64

	// Quoted is the embedded quoted post, when present.
	Quoted *FetchedPost
}
