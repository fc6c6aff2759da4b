package sqlite

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/blackmichael/twitter-crawler/internal/domain"
)

// stepClock is a goroutine-safe clock that advances one millisecond per read
// so every write gets a distinct timestamp.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	clock := &stepClock{now: time.Now().UTC()}
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "crawler.db"), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return s
}

// inTx runs fn in a transaction and fails the test on error.
func inTx(t *testing.T, s *Store, fn func(ctx context.Context, tx domain.Tx) error) {
	t.Helper()

	if err := s.InTx(context.Background(), fn); err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	changed, err := s.Migrate()
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if changed {
		t.Error("second Migrate() reported a change")
	}
}

func TestUpsertPost(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		p := &domain.Post{ID: 90, Text: "first", AuthorID: 1, CreatedAt: created, ConversationID: ptr[int64](5), ParentID: ptr[int64](70)}
		if err := tx.UpsertPost(ctx, p); err != nil {
			return err
		}
		p.Text = "edited"
		p.QuotedID = ptr[int64](12)
		return tx.UpsertPost(ctx, p)
	})

	var (
		text   string
		quoted int64
		count  int
	)
	if err := s.db.QueryRow(`SELECT text, quoted_post_id FROM posts WHERE id = 90`).Scan(&text, &quoted); err != nil {
		t.Fatalf("query post: %v", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM posts`).Scan(&count); err != nil {
		t.Fatalf("count posts: %v", err)
	}
	if text != "edited" || quoted != 12 || count != 1 {
		t.Errorf("post = (%q, %d), rows = %d; want (edited, 12), 1", text, quoted, count)
	}

	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		exists, err := tx.PostExists(ctx, 90)
		if err != nil {
			return err
		}
		missing, err := tx.PostExists(ctx, 70)
		if err != nil {
			return err
		}
		if !exists || missing {
			t.Errorf("PostExists(90, 70) = (%v, %v), want (true, false)", exists, missing)
		}

		n, err := tx.CountPostsUpdatedSince(ctx, time.Now().Add(-time.Hour))
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("CountPostsUpdatedSince() = %d, want 1", n)
		}
		return nil
	})
}

func TestWidenBoundariesNeverNarrows(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	steps := []struct {
		oldest, newest         int64
		wantOldest, wantNewest int64
	}{
		{oldest: 80, newest: 100, wantOldest: 80, wantNewest: 100},
		{oldest: 90, newest: 95, wantOldest: 80, wantNewest: 100},
		{oldest: 50, newest: 99, wantOldest: 50, wantNewest: 100},
		{oldest: 60, newest: 120, wantOldest: 50, wantNewest: 120},
	}

	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		return tx.EnsureAccountStub(ctx, 1)
	})

	for _, st := range steps {
		inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
			if err := tx.WidenBoundaries(ctx, 1, st.oldest, st.newest); err != nil {
				return err
			}
			a, err := tx.GetAccount(ctx, 1)
			if err != nil {
				return err
			}
			if *a.OldestTrackedPostID != st.wantOldest || *a.NewestTrackedPostID != st.wantNewest {
				t.Errorf("after widen(%d, %d) = [%d, %d], want [%d, %d]",
					st.oldest, st.newest, *a.OldestTrackedPostID, *a.NewestTrackedPostID, st.wantOldest, st.wantNewest)
			}
			return nil
		})
	}
}

func TestAccounts(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	joined := time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC)

	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		for _, id := range []int64{2, 3, 4} {
			if err := tx.EnsureAccountStub(ctx, id); err != nil {
				return err
			}
		}
		// A second stub insert must not reset anything.
		return tx.EnsureAccountStub(ctx, 2)
	})
	if _, err := s.db.Exec(`INSERT INTO accounts (id, tracked, created_at, updated_at) VALUES (1, 1, 0, ?)`, millis(time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("insert tracked stub: %v", err)
	}

	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		stubs, err := tx.ClaimStubAccounts(ctx, 3)
		if err != nil {
			return err
		}
		want := []domain.StubAccount{{ID: 1, Tracked: true}, {ID: 2}, {ID: 3}}
		if !slices.Equal(stubs, want) {
			t.Errorf("ClaimStubAccounts() = %+v, want %+v", stubs, want)
		}
		return nil
	})

	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.UpsertProfile(ctx, 2, &domain.Profile{
			ID:            2,
			Username:      "bob",
			DisplayName:   "Bob",
			IsVerified:    true,
			FollowerCount: 10,
			CreatedAt:     joined,
		}, false); err != nil {
			return err
		}
		return tx.UpsertProfile(ctx, 3, &domain.Profile{ID: 3, Unavailable: true, UnavailableReason: "suspended"}, false)
	})

	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		bob, err := tx.GetAccount(ctx, 2)
		if err != nil {
			return err
		}
		if bob.Username != "bob" || bob.DisplayName != "Bob" || !bob.IsVerified || bob.FollowerCount != 10 {
			t.Errorf("account 2 = %+v", bob)
		}
		if bob.CreatedAt == nil || !bob.CreatedAt.Equal(joined) {
			t.Errorf("account 2 created = %v, want %v", bob.CreatedAt, joined)
		}
		if bob.IsStub() {
			t.Error("hydrated account reported as stub")
		}

		gone, err := tx.GetAccount(ctx, 3)
		if err != nil {
			return err
		}
		if gone.UnavailableReason != "suspended" || gone.IsStub() {
			t.Errorf("account 3 = %+v, want unavailable", gone)
		}

		missing, err := tx.GetAccount(ctx, 99)
		if err != nil {
			return err
		}
		if missing != nil {
			t.Errorf("GetAccount(99) = %+v, want nil", missing)
		}

		stubs, err := tx.ClaimStubAccounts(ctx, 100)
		if err != nil {
			return err
		}
		want := []domain.StubAccount{{ID: 1, Tracked: true}, {ID: 4}}
		if !slices.Equal(stubs, want) {
			t.Errorf("ClaimStubAccounts() after hydration = %+v, want %+v", stubs, want)
		}
		return nil
	})

	// Going unavailable clears the profile.
	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.UpsertProfile(ctx, 2, &domain.Profile{ID: 2, Unavailable: true, UnavailableReason: "deactivated"}, true); err != nil {
			return err
		}
		bob, err := tx.GetAccount(ctx, 2)
		if err != nil {
			return err
		}
		if bob.Username != "" || bob.FollowerCount != 0 || bob.CreatedAt != nil || !bob.Tracked || bob.UnavailableReason != "deactivated" {
			t.Errorf("account 2 after going unavailable = %+v", bob)
		}
		return nil
	})
}

func TestCursorSearchJobs(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.EnsureCursorSearchJob(ctx, 1, "from:alice"); err != nil {
			return err
		}
		if err := tx.EnsureCursorSearchJob(ctx, 2, "from:bob"); err != nil {
			return err
		}
		return tx.EnsureCursorSearchJob(ctx, 1, "from:other")
	})

	claim := func() *domain.CursorSearchJob {
		t.Helper()
		var job *domain.CursorSearchJob
		inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
			var err error
			job, err = tx.ClaimCursorSearchJob(ctx)
			return err
		})
		return job
	}

	if j := claim(); j == nil || j.AuthorID != 1 || j.Query != "from:alice" {
		t.Fatalf("first claim = %+v, want author 1 with original query", j)
	}

	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		return tx.TouchCursorSearchJob(ctx, 1)
	})
	if j := claim(); j == nil || j.AuthorID != 2 {
		t.Fatalf("claim after touch = %+v, want author 2", j)
	}

	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.DeleteCursorSearchJob(ctx, 1); err != nil {
			return err
		}
		return tx.DeleteCursorSearchJob(ctx, 2)
	})
	if j := claim(); j != nil {
		t.Errorf("claim on empty queue = %+v, want nil", j)
	}
}

func TestThreadJobs(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		for _, j := range []domain.ThreadJob{
			{ConversationID: 5, OriginalReplyID: 90, NextReplyID: 70},
			{ConversationID: 6, OriginalReplyID: 91, NextReplyID: 71},
			{ConversationID: 5, OriginalReplyID: 90, NextReplyID: 1},
		} {
			if err := tx.CreateThreadJob(ctx, j); err != nil {
				return err
			}
		}
		return tx.AdvanceThreadJob(ctx, 5, 90, 60)
	})

	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		jobs, err := tx.ClaimThreadJobs(ctx, 20)
		if err != nil {
			return err
		}
		if len(jobs) != 2 {
			t.Fatalf("ClaimThreadJobs() = %+v, want 2 jobs", jobs)
		}
		if jobs[0].OriginalReplyID != 90 || jobs[0].NextReplyID != 60 {
			t.Errorf("first job = %+v, want (5, 90) advanced to 60", jobs[0])
		}
		if jobs[1].OriginalReplyID != 91 {
			t.Errorf("second job = %+v, want (6, 91)", jobs[1])
		}

		limited, err := tx.ClaimThreadJobs(ctx, 1)
		if err != nil {
			return err
		}
		if len(limited) != 1 {
			t.Errorf("ClaimThreadJobs(1) returned %d jobs", len(limited))
		}
		return tx.DeleteThreadJob(ctx, 5, 90)
	})

	st, err := s.QueueStats(context.Background())
	if err != nil {
		t.Fatalf("QueueStats() error = %v", err)
	}
	if st.ThreadJobs != 1 {
		t.Errorf("ThreadJobs = %d, want 1", st.ThreadJobs)
	}
}

func TestSuggestions(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "alice"} {
		if err := s.AddSuggestion(ctx, u); err != nil {
			t.Fatalf("AddSuggestion(%q) error = %v", u, err)
		}
	}

	st, err := s.QueueStats(ctx)
	if err != nil {
		t.Fatalf("QueueStats() error = %v", err)
	}
	if st.PendingSuggestions != 2 {
		t.Errorf("PendingSuggestions = %d, want 2", st.PendingSuggestions)
	}

	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		sg, err := tx.ClaimSuggestion(ctx)
		if err != nil {
			return err
		}
		if sg == nil || sg.Username != "alice" {
			t.Fatalf("ClaimSuggestion() = %+v, want alice", sg)
		}
		return tx.DeleteSuggestion(ctx, "alice")
	})

	// A processed username may be suggested again.
	if err := s.AddSuggestion(ctx, "alice"); err != nil {
		t.Fatalf("re-add alice: %v", err)
	}

	inTx(t, s, func(ctx context.Context, tx domain.Tx) error {
		sg, err := tx.ClaimSuggestion(ctx)
		if err != nil {
			return err
		}
		if sg == nil || sg.Username != "bob" {
			t.Errorf("ClaimSuggestion() = %+v, want bob", sg)
		}
		return nil
	})
}

func TestInTxRollsBack(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	err := s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if err := tx.EnsureCursorSearchJob(ctx, 1, "from:alice"); err != nil {
			return err
		}
		return context.Canceled
	})
	if err != context.Canceled {
		t.Fatalf("InTx() error = %v, want the callback's error", err)
	}

	st, err := s.QueueStats(context.Background())
	if err != nil {
		t.Fatalf("QueueStats() error = %v", err)
	}
	if st.CursorSearchJobs != 0 {
		t.Errorf("CursorSearchJobs = %d after rollback, want 0", st.CursorSearchJobs)
	}
}
