package domain

import "time"

// Account is a provider account known to the crawler. A row is either a stub
// (id only), hydrated (Username set) or unavailable (UnavailableReason set).
type Account struct {
	ID int64

	Username     string
	DisplayName  string
	Bio          string
	AvatarURL    string
	IsVerified   bool
	VerifiedType string
	IsAutomated  bool
	AutomatedBy  string

	FollowerCount  int
	FollowingCount int
	PostCount      int

	// CreatedAt is when the account was created on the provider.
	CreatedAt *time.Time

	// Tracked accounts have their post history crawled.
	Tracked bool

	// UnavailableReason is empty for live accounts.
	UnavailableReason string

	// OldestTrackedPostID and NewestTrackedPostID bound the range of the
	// account's history already ingested. Nil until the first batch lands.
	OldestTrackedPostID *int64
	NewestTrackedPostID *int64

	UpdatedAt time.Time
}

// IsStub reports whether the account still waits for hydration.
func (a *Account) IsStub() bool {
	return a.Username == "" && a.UnavailableReason == ""
}

// Profile is an account as reported by the content provider.
type Profile struct {
	ID int64

	Username     string
	DisplayName  string
	Bio          string
	AvatarURL    string
	IsVerified   bool
	VerifiedType string
	IsAutomated  bool
	AutomatedBy  string

	FollowerCount  int
	FollowingCount int
	PostCount      int

	CreatedAt time.Time

	// Unavailable profiles (suspended, deleted, not found) carry only a reason.
	Unavailable       bool
	UnavailableReason string
}

// reasonNotFound is recorded when the provider returns nothing for an account.
const reasonNotFound = "user not found"

// reasonUnavailable is recorded when the provider flags an account without
// saying why.
const reasonUnavailable = "unavailable"

// NotFoundProfile returns the unavailable profile used when the provider has
// no record for an account.
func NotFoundProfile(id int64) *Profile {
	return &Profile{
		ID:                id,
		Unavailable:       true,
		UnavailableReason: reasonNotFound,
	}
}

// StubAccount is a claimed account awaiting hydration.
type StubAccount struct {
	ID      int64
	Tracked bool
}

// Suggestion is a request to start tracking an account by username.
type Suggestion struct {
	Username  string
	CreatedAt time.Time
}
