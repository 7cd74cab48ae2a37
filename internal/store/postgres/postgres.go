// Package postgres provides the Postgres-backed store implementation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// db is the slice of the pool surface the store uses. *pgxpool.Pool
// satisfies it, as does pgxmock's pool in tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	ConnectAttempts int
	ConnectBackoff  time.Duration
}

// Store implements store.Store on Postgres.
type Store struct {
	pool   db
	logger *zap.Logger
}

// Connect builds a pool and verifies connectivity, retrying with growing
// backoff up to cfg.ConnectAttempts so a starting database does not kill
// the process immediately. After the attempts are exhausted the error
// propagates and the process exits non-zero for the orchestrator.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := cfg.ConnectBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	var pool *pgxpool.Pool
	for attempt := 1; ; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				break
			}
			pool.Close()
		}
		if attempt >= attempts {
			return nil, fmt.Errorf("connect postgres after %d attempts: %w", attempts, err)
		}
		wait := backoff * time.Duration(attempt)
		logger.Warn("postgres not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect postgres: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return &Store{pool: pool, logger: logger}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing with pgxmock).
func NewWithPool(pool db, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables and uniqueness constraints the store
// relies on. The mention constraints are the correctness backstop for
// deduplication and must exist before any scanning starts.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS subreddit (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			title TEXT,
			display_name TEXT,
			description TEXT,
			subscribers INTEGER,
			active_users INTEGER,
			over18 BOOLEAN,
			subreddit_type TEXT,
			found BOOLEAN,
			banned BOOLEAN NOT NULL DEFAULT FALSE,
			first_mentioned BIGINT,
			last_checked TIMESTAMPTZ,
			next_retry_at TIMESTAMPTZ,
			retry_priority INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS post (
			id BIGSERIAL PRIMARY KEY,
			reddit_post_id TEXT NOT NULL UNIQUE,
			title TEXT,
			author TEXT,
			created_utc BIGINT,
			url TEXT,
			unique_subreddits INTEGER NOT NULL DEFAULT 0,
			last_scanned TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS comment (
			id BIGSERIAL PRIMARY KEY,
			reddit_comment_id TEXT NOT NULL UNIQUE,
			post_id BIGINT REFERENCES post(id) ON DELETE CASCADE,
			author TEXT,
			body TEXT,
			created_utc BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS mention (
			id BIGSERIAL PRIMARY KEY,
			subreddit_id BIGINT NOT NULL REFERENCES subreddit(id) ON DELETE CASCADE,
			comment_id BIGINT REFERENCES comment(id) ON DELETE CASCADE,
			post_id BIGINT REFERENCES post(id) ON DELETE CASCADE,
			user_id TEXT,
			ts BIGINT,
			CONSTRAINT uq_mention_sub_comment UNIQUE (subreddit_id, comment_id),
			CONSTRAINT uq_mention_sub_user UNIQUE (subreddit_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS analytics (
			id BIGSERIAL PRIMARY KEY,
			total_subreddits BIGINT NOT NULL DEFAULT 0,
			total_posts BIGINT NOT NULL DEFAULT 0,
			total_comments BIGINT NOT NULL DEFAULT 0,
			total_mentions BIGINT NOT NULL DEFAULT 0,
			last_scan_started TIMESTAMPTZ,
			last_scan_duration INTEGER,
			last_scan_new_mentions INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS subreddit_scan_config (
			id BIGSERIAL PRIMARY KEY,
			subreddit_name TEXT NOT NULL UNIQUE,
			allowed_users TEXT,
			nsfw_only BOOLEAN NOT NULL DEFAULT TRUE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			priority INTEGER NOT NULL DEFAULT 3
		)`,
		`CREATE TABLE IF NOT EXISTS ignored_subreddit (
			id BIGSERIAL PRIMARY KEY,
			subreddit_name TEXT NOT NULL UNIQUE,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS ignored_user (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a uniqueness-constraint
// rejection, the expected duplicate-absorption path.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
