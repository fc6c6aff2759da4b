package domain

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

var testEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type threadKey struct {
	conversationID  int64
	originalReplyID int64
}

type memPost struct {
	post      Post
	updatedAt time.Time
}

type memSuggestion struct {
	Suggestion
	deleted bool
}

// memState is the data held by memStore. It is copied before every
// transaction so a failed transaction can be rolled back.
type memState struct {
	accounts    map[int64]Account
	posts       map[int64]memPost
	cursorJobs  map[int64]CursorSearchJob
	threadJobs  map[threadKey]ThreadJob
	suggestions []memSuggestion
}

func (s *memState) clone() *memState {
	return &memState{
		accounts:    maps.Clone(s.accounts),
		posts:       maps.Clone(s.posts),
		cursorJobs:  maps.Clone(s.cursorJobs),
		threadJobs:  maps.Clone(s.threadJobs),
		suggestions: slices.Clone(s.suggestions),
	}
}

// memStore is an in-memory Store. Transactions are serialised, so claims
// are trivially exclusive.
type memStore struct {
	mu    sync.Mutex
	state *memState
	clock time.Time

	// recentPosts, when set, overrides CountPostsUpdatedSince.
	recentPosts *int64
}

func newMemStore() *memStore {
	return &memStore{
		state: &memState{
			accounts:   map[int64]Account{},
			posts:      map[int64]memPost{},
			cursorJobs: map[int64]CursorSearchJob{},
			threadJobs: map[threadKey]ThreadJob{},
		},
		clock: testEpoch,
	}
}

// tick advances the store clock so every write gets a distinct timestamp.
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *memStore) AddSuggestion(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sg := range s.state.suggestions {
		if !sg.deleted && sg.Username == username {
			return nil
		}
	}
	s.state.suggestions = append(s.state.suggestions, memSuggestion{
		Suggestion: Suggestion{Username: username, CreatedAt: s.tick()},
	})
	return nil
}

func (s *memStore) QueueStats(context.Context) (QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return QueueStats{
		CursorSearchJobs: int64(len(s.state.cursorJobs)),
		ThreadJobs:       int64(len(s.state.threadJobs)),
	}, nil
}

// Test accessors. They read committed state only.

func (s *memStore) account(id int64) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.accounts[id]
	return a, ok
}

func (s *memStore) post(id int64) (Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.posts[id]
	return p.post, ok
}

func (s *memStore) postCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.posts)
}

func (s *memStore) cursorJob(authorID int64) (CursorSearchJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.state.cursorJobs[authorID]
	return j, ok
}

func (s *memStore) threadJobList() []ThreadJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Collect(maps.Values(s.state.threadJobs))
}

func (s *memStore) pendingSuggestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, sg := range s.state.suggestions {
		if !sg.deleted {
			out = append(out, sg.Username)
		}
	}
	return out
}

// Seeding helpers write committed state directly.

func (s *memStore) seedAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.UpdatedAt = s.tick()
	s.state.accounts[a.ID] = a
}

func (s *memStore) seedPost(p Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.posts[p.ID] = memPost{post: p, updatedAt: s.tick()}
}

func (s *memStore) seedCursorJob(authorID int64, query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	s.state.cursorJobs[authorID] = CursorSearchJob{AuthorID: authorID, Query: query, CreatedAt: now, UpdatedAt: now}
}

func (s *memStore) seedThreadJob(conversationID, originalReplyID, nextReplyID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	s.state.threadJobs[threadKey{conversationID, originalReplyID}] = ThreadJob{
		ConversationID:  conversationID,
		OriginalReplyID: originalReplyID,
		NextReplyID:     nextReplyID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

type memTx struct {
	store *memStore
	state *memState
}

var _ Tx = (*memTx)(nil)

func (t *memTx) GetAccount(_ context.Context, id int64) (*Account, error) {
	a, ok := t.state.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (t *memTx) EnsureAccountStub(_ context.Context, id int64) error {
	if _, ok := t.state.accounts[id]; ok {
		return nil
	}
	t.state.accounts[id] = Account{ID: id, UpdatedAt: t.store.tick()}
	return nil
}

func (t *memTx) UpsertProfile(_ context.Context, id int64, p *Profile, tracked bool) error {
	a := t.state.accounts[id]
	next := Account{
		ID:                  id,
		Tracked:             tracked,
		OldestTrackedPostID: a.OldestTrackedPostID,
		NewestTrackedPostID: a.NewestTrackedPostID,
		UpdatedAt:           t.store.tick(),
	}
	if p.Unavailable {
		next.UnavailableReason = p.UnavailableReason
	} else {
		created := p.CreatedAt
		next.Username = p.Username
		next.DisplayName = p.DisplayName
		next.Bio = p.Bio
		next.AvatarURL = p.AvatarURL
		next.IsVerified = p.IsVerified
		next.VerifiedType = p.VerifiedType
		next.IsAutomated = p.IsAutomated
		next.AutomatedBy = p.AutomatedBy
		next.FollowerCount = p.FollowerCount
		next.FollowingCount = p.FollowingCount
		next.PostCount = p.PostCount
		next.CreatedAt = &created
	}
	t.state.accounts[id] = next
	return nil
}

func (t *memTx) ClaimStubAccounts(_ context.Context, limit int) ([]StubAccount, error) {
	var stubs []Account
	for _, a := range t.state.accounts {
		if a.IsStub() {
			stubs = append(stubs, a)
		}
	}
	slices.SortFunc(stubs, func(a, b Account) int {
		if a.Tracked != b.Tracked {
			if a.Tracked {
				return -1
			}
			return 1
		}
		return cmp.Or(a.UpdatedAt.Compare(b.UpdatedAt), cmp.Compare(a.ID, b.ID))
	})

	var out []StubAccount
	for _, a := range stubs[:min(limit, len(stubs))] {
		out = append(out, StubAccount{ID: a.ID, Tracked: a.Tracked})
	}
	return out, nil
}

func (t *memTx) WidenBoundaries(_ context.Context, id int64, oldest, newest int64) error {
	a, ok := t.state.accounts[id]
	if !ok {
		return nil
	}
	if a.OldestTrackedPostID == nil || oldest < *a.OldestTrackedPostID {
		a.OldestTrackedPostID = &oldest
	}
	if a.NewestTrackedPostID == nil || newest > *a.NewestTrackedPostID {
		a.NewestTrackedPostID = &newest
	}
	t.state.accounts[id] = a
	return nil
}

func (t *memTx) UpsertPost(_ context.Context, p *Post) error {
	t.state.posts[p.ID] = memPost{post: *p, updatedAt: t.store.tick()}
	return nil
}

func (t *memTx) PostExists(_ context.Context, id int64) (bool, error) {
	_, ok := t.state.posts[id]
	return ok, nil
}

func (t *memTx) CountPostsUpdatedSince(_ context.Context, since time.Time) (int64, error) {
	if t.store.recentPosts != nil {
		return *t.store.recentPosts, nil
	}
	var n int64
	for _, p := range t.state.posts {
		if !p.updatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ClaimCursorSearchJob(context.Context) (*CursorSearchJob, error) {
	jobs := slices.Collect(maps.Values(t.state.cursorJobs))
	if len(jobs) == 0 {
		return nil, nil
	}
	j := slices.MinFunc(jobs, func(a, b CursorSearchJob) int {
		return cmp.Or(a.UpdatedAt.Compare(b.UpdatedAt), cmp.Compare(a.AuthorID, b.AuthorID))
	})
	return &j, nil
}

func (t *memTx) EnsureCursorSearchJob(_ context.Context, authorID int64, query string) error {
	if _, ok := t.state.cursorJobs[authorID]; ok {
		return nil
	}
	now := t.store.tick()
	t.state.cursorJobs[authorID] = CursorSearchJob{AuthorID: authorID, Query: query, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (t *memTx) TouchCursorSearchJob(_ context.Context, authorID int64) error {
	if j, ok := t.state.cursorJobs[authorID]; ok {
		j.UpdatedAt = t.store.tick()
		t.state.cursorJobs[authorID] = j
	}
	return nil
}

func (t *memTx) DeleteCursorSearchJob(_ context.Context, authorID int64) error {
	delete(t.state.cursorJobs, authorID)
	return nil
}

func (t *memTx) ClaimThreadJobs(_ context.Context, limit int) ([]ThreadJob, error) {
	jobs := slices.Collect(maps.Values(t.state.threadJobs))
	slices.SortFunc(jobs, func(a, b ThreadJob) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.OriginalReplyID, b.OriginalReplyID))
	})
	return jobs[:min(limit, len(jobs))], nil
}

func (t *memTx) CreateThreadJob(_ context.Context, j ThreadJob) error {
	key := threadKey{j.ConversationID, j.OriginalReplyID}
	if _, ok := t.state.threadJobs[key]; ok {
		return nil
	}
	now := t.store.tick()
	j.CreatedAt, j.UpdatedAt = now, now
	t.state.threadJobs[key] = j
	return nil
}

func (t *memTx) AdvanceThreadJob(_ context.Context, conversationID, originalReplyID, nextReplyID int64) error {
	key := threadKey{conversationID, originalReplyID}
	if j, ok := t.state.threadJobs[key]; ok {
		j.NextReplyID = nextReplyID
		j.UpdatedAt = t.store.tick()
		t.state.threadJobs[key] = j
	}
	return nil
}

func (t *memTx) DeleteThreadJob(_ context.Context, conversationID, originalReplyID int64) error {
	delete(t.state.threadJobs, threadKey{conversationID, originalReplyID})
	return nil
}

func (t *memTx) ClaimSuggestion(context.Context) (*Suggestion, error) {
	for _, sg := range t.state.suggestions {
		if !sg.deleted {
			s := sg.Suggestion
			return &s, nil
		}
	}
	return nil, nil
}

func (t *memTx) DeleteSuggestion(_ context.Context, username string) error {
	for i := range t.state.suggestions {
		if t.state.suggestions[i].Username == username {
			t.state.suggestions[i].deleted = true
		}
	}
	return nil
}

// fakeClient is a scripted ContentClient. Every call is recorded.
type fakeClient struct {
	mu sync.Mutex

	byUsername map[string]*Profile
	byID       map[int64]Profile
	searches   map[string][]FetchedPost
	posts      map[int64]FetchedPost

	// errs are returned by successive calls, then err by every later one.
	errs []error
	err  error

	calls []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		byUsername: map[string]*Profile{},
		byID:       map[int64]Profile{},
		searches:   map[string][]FetchedPost{},
		posts:      map[int64]FetchedPost{},
	}
}

func (f *fakeClient) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return f.err
}

func (f *fakeClient) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeClient) GetProfileByUsername(_ context.Context, username string) (*Profile, error) {
	if err := f.record("profile " + username); err != nil {
		return nil, err
	}
	return f.byUsername[username], nil
}

func (f *fakeClient) BatchGetProfiles(_ context.Context, ids []int64) ([]Profile, error) {
	if err := f.record("batch " + joinInts(ids)); err != nil {
		return nil, err
	}
	var out []Profile
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeClient) SearchPosts(_ context.Context, query string, _ SearchOrder) ([]FetchedPost, error) {
	if err := f.record("search " + query); err != nil {
		return nil, err
	}
	return slices.Clone(f.searches[query]), nil
}

func (f *fakeClient) GetPostsByIDs(_ context.Context, ids []int64) ([]FetchedPost, error) {
	if err := f.record("posts " + joinInts(ids)); err != nil {
		return nil, err
	}
	var out []FetchedPost
	for _, id := range ids {
		if p, ok := f.posts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func joinInts(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func ptr[T any](v T) *T {
	return &v
}

func post(id, author int64) FetchedPost {
	return FetchedPost{Post: Post{ID: id, AuthorID: author, Text: "post", CreatedAt: testEpoch}}
}

func reply(id, author, conversation, parent, parentAuthor int64) FetchedPost {
	p := post(id, author)
	p.ConversationID = &conversation
	p.ParentID = &parent
	p.ParentAuthorID = &parentAuthor
	return p
}

func newTestCrawler(store Store, client ContentClient, opts Options) *Crawler {
	c := NewCrawler(store, client, opts, discardLogger())
	c.now = func() time.Time { return testEpoch }
	return c
}
