// Package sqlite implements the content store on an embedded SQLite database.
//
// SQLite has no row-level locks, so FOR UPDATE SKIP LOCKED is unavailable.
// The store instead serialises transactions over a single connection: a claim
// made inside InTx is exclusive because no other transaction can run until it
// commits or rolls back. This suits single-node deployments and tests; use the
// postgres store when workers should make progress in parallel.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blackmichael/twitter-crawler/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements domain.Store using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens or creates the database file at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies any pending embedded migrations. It reports whether the
// schema changed.
func (s *Store) Migrate() (bool, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return false, fmt.Errorf("create migration source: %w", err)
	}
	defer src.Close()

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return false, fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return false, fmt.Errorf("initialize migrate: %w", err)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("apply migrations: %w", err)
	}
	return true, nil
}

// InTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &txStore{tx: tx, now: s.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AddSuggestion queues a username for tracking.
func (s *Store) AddSuggestion(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_suggestions (username, created_at)
		VALUES (?, ?)
		ON CONFLICT (username) WHERE deleted_at IS NULL DO NOTHING`,
		username, millis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("insert suggestion %q: %w", username, err)
	}
	return nil
}

// QueueStats counts pending work across the job tables.
func (s *Store) QueueStats(ctx context.Context) (domain.QueueStats, error) {
	var st domain.QueueStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM cursor_search_jobs),
			(SELECT COUNT(*) FROM thread_jobs),
			(SELECT COUNT(*) FROM accounts
				WHERE username IS NULL AND unavailable_reason IS NULL AND deleted_at IS NULL),
			(SELECT COUNT(*) FROM user_suggestions WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM accounts WHERE tracked = 1 AND deleted_at IS NULL),
			(SELECT COUNT(*) FROM posts WHERE updated_at >= ?)`,
		millis(s.now().Add(-24*time.Hour)),
	).Scan(
		&st.CursorSearchJobs,
		&st.ThreadJobs,
		&st.StubAccounts,
		&st.PendingSuggestions,
		&st.TrackedAccounts,
		&st.PostsLast24h,
	)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("query queue stats: %w", err)
	}
	return st, nil
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func nullMillis(t time.Time) sql.NullInt64 {
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: !t.IsZero()}
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
