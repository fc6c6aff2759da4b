package twitter

import (
	"fmt"
	"html"
	"strconv"
	"time"

	"github.com/blackmichael/twitter-crawler/internal/domain"
)

// apiUser is a user entry as returned by the user endpoints. Unavailable
// entries carry only the unavailable fields.
type apiUser struct {
	ID             string  `json:"id"`
	UserName       string  `json:"userName"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	ProfilePicture string  `json:"profilePicture"`
	IsVerified     *bool   `json:"isVerified"`
	IsBlueVerified bool    `json:"isBlueVerified"`
	VerifiedType   *string `json:"verifiedType"`
	IsAutomated    bool    `json:"isAutomated"`
	AutomatedBy    *string `json:"automatedBy"`
	Followers      int     `json:"followers"`
	Following      int     `json:"following"`
	StatusesCount  int     `json:"statusesCount"`
	CreatedAt      string  `json:"createdAt"`

	Unavailable       bool   `json:"unavailable"`
	UnavailableReason string `json:"unavailableReason"`
	Message           string `json:"message"`
}

// apiAuthor is the embedded author of a tweet.
type apiAuthor struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
}

// apiTweet is a tweet entry. The API mixes camelCase and snake_case names for
// the same fields depending on the endpoint.
type apiTweet struct {
	ID              string     `json:"id"`
	Text            string     `json:"text"`
	CreatedAt       string     `json:"createdAt"`
	CreatedAtSnake  string     `json:"created_at"`
	AuthorID        string     `json:"author_id"`
	Author          *apiAuthor `json:"author"`
	InReplyToID     *string    `json:"inReplyToId"`
	InReplyToUserID *string    `json:"inReplyToUserId"`
	ConversationID  string     `json:"conversationId"`
	QuotedTweet     *apiTweet  `json:"quoted_tweet"`
}

func (u *apiUser) toProfile(endpoint string) (domain.Profile, error) {
	if u.Unavailable {
		reason := u.UnavailableReason
		if reason == "" {
			reason = u.Message
		}
		p := domain.Profile{Unavailable: true, UnavailableReason: reason}
		if u.ID != "" {
			id, err := parseID(endpoint, "user id", u.ID)
			if err != nil {
				return domain.Profile{}, err
			}
			p.ID = id
		}
		return p, nil
	}

	id, err := parseID(endpoint, "user id", u.ID)
	if err != nil {
		return domain.Profile{}, err
	}
	if u.UserName == "" {
		return domain.Profile{}, &domain.ValidationError{Endpoint: endpoint, Details: fmt.Sprintf("user %d has no userName", id)}
	}
	var createdAt time.Time
	if u.CreatedAt != "" {
		if createdAt, err = parseTime(endpoint, u.CreatedAt); err != nil {
			return domain.Profile{}, err
		}
	}

	verified := u.IsBlueVerified
	if u.IsVerified != nil {
		verified = *u.IsVerified
	}

	return domain.Profile{
		ID:             id,
		Username:       u.UserName,
		DisplayName:    u.Name,
		Bio:            u.Description,
		AvatarURL:      u.ProfilePicture,
		IsVerified:     verified,
		VerifiedType:   deref(u.VerifiedType),
		IsAutomated:    u.IsAutomated,
		AutomatedBy:    deref(u.AutomatedBy),
		FollowerCount:  u.Followers,
		FollowingCount: u.Following,
		PostCount:      u.StatusesCount,
		CreatedAt:      createdAt,
	}, nil
}

// toFetchedPost converts t. Posts without a creation date are stamped with now.
func (t *apiTweet) toFetchedPost(endpoint string, now time.Time) (*domain.FetchedPost, error) {
	id, err := parseID(endpoint, "tweet id", t.ID)
	if err != nil {
		return nil, err
	}

	authorRaw := t.AuthorID
	if authorRaw == "" && t.Author != nil {
		authorRaw = t.Author.ID
	}
	var authorID int64
	if authorRaw != "" {
		if authorID, err = parseID(endpoint, "author id", authorRaw); err != nil {
			return nil, err
		}
	}

	createdRaw := t.CreatedAt
	if createdRaw == "" {
		createdRaw = t.CreatedAtSnake
	}
	createdAt := now.UTC()
	if createdRaw != "" {
		if createdAt, err = parseTime(endpoint, createdRaw); err != nil {
			return nil, err
		}
	}

	post := &domain.FetchedPost{
		Post: domain.Post{
			ID:        id,
			Text:      html.UnescapeString(t.Text),
			AuthorID:  authorID,
			CreatedAt: createdAt,
		},
	}

	if post.ConversationID, err = parseOptionalID(endpoint, "conversation id", t.ConversationID); err != nil {
		return nil, err
	}
	if post.ParentID, err = parseOptionalID(endpoint, "reply id", deref(t.InReplyToID)); err != nil {
		return nil, err
	}
	if post.ParentAuthorID, err = parseOptionalID(endpoint, "reply user id", deref(t.InReplyToUserID)); err != nil {
		return nil, err
	}

	if t.QuotedTweet != nil && t.QuotedTweet.ID != "" {
		quoted, err := t.QuotedTweet.toFetchedPost(endpoint, now)
		if err != nil {
			return nil, err
		}
		post.Quoted = quoted
		post.QuotedID = &quoted.ID
	}

	return post, nil
}

func parseID(endpoint, field, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Endpoint: endpoint, Details: fmt.Sprintf("invalid %s %q", field, raw)}
	}
	return id, nil
}

// parseOptionalID treats an empty string as absent.
func parseOptionalID(endpoint, field, raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := parseID(endpoint, field, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// twitterTimeLayouts are the date formats seen in API responses.
var twitterTimeLayouts = []string{
	time.RubyDate, // "Mon Jan 02 15:04:05 -0700 2006"
	time.RFC3339Nano,
	time.RFC3339,
}

func parseTime(endpoint, raw string) (time.Time, error) {
	for _, layout := range twitterTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &domain.ValidationError{Endpoint: endpoint, Details: fmt.Sprintf("invalid date %q", raw)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
