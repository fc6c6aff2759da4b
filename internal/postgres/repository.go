package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/blackmichael/twitter-crawler/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository implements domain.Store using PostgreSQL. Claims use
// FOR UPDATE SKIP LOCKED so concurrent workers never block on, or double
// process, the same job row.
type Repository struct {
	db *sql.DB
}

var _ domain.Store = (*Repository)(nil)

// NewRepository connects to PostgreSQL at the given URL, verifies the
// connection, and returns a new Repository. The caller should call Close
// when the repository is no longer needed.
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Migrate applies any pending embedded migrations. It reports whether the
// schema changed.
func (r *Repository) Migrate() (bool, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return false, fmt.Errorf("create migration source: %w", err)
	}
	defer src.Close()

	driver, err := migratepgx.WithInstance(r.db, &migratepgx.Config{})
	if err != nil {
		return false, fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
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
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AddSuggestion queues a username for tracking.
func (r *Repository) AddSuggestion(ctx context.Context, username string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_suggestions (username)
		VALUES ($1)
		ON CONFLICT (username) WHERE deleted_at IS NULL DO NOTHING`,
		username,
	)
	if err != nil {
		return fmt.Errorf("insert suggestion %q: %w", username, err)
	}
	return nil
}

// QueueStats counts pending work across the job tables.
func (r *Repository) QueueStats(ctx context.Context) (domain.QueueStats, error) {
	var s domain.QueueStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM cursor_search_jobs),
			(SELECT COUNT(*) FROM thread_jobs),
			(SELECT COUNT(*) FROM accounts
				WHERE username IS NULL AND unavailable_reason IS NULL AND deleted_at IS NULL),
			(SELECT COUNT(*) FROM user_suggestions WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM accounts WHERE tracked AND deleted_at IS NULL),
			(SELECT COUNT(*) FROM posts WHERE updated_at >= $1)`,
		time.Now().UTC().Add(-24*time.Hour),
	).Scan(
		&s.CursorSearchJobs,
		&s.ThreadJobs,
		&s.StubAccounts,
		&s.PendingSuggestions,
		&s.TrackedAccounts,
		&s.PostsLast24h,
	)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("query queue stats: %w", err)
	}
	return s, nil
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

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
