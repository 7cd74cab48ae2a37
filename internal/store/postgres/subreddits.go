package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pineapple-index/subindex/internal/store"
)

const subredditColumns = `id, name, title, display_name, description, subscribers,
	active_users, over18, subreddit_type, found, banned, first_mentioned,
	last_checked, next_retry_at, retry_priority`

func scanSubreddit(row pgx.Row) (*store.Subreddit, error) {
	var sub store.Subreddit
	err := row.Scan(
		&sub.ID, &sub.Name, &sub.Title, &sub.DisplayName, &sub.Description,
		&sub.Subscribers, &sub.ActiveUsers, &sub.Over18, &sub.Type,
		&sub.Found, &sub.Banned, &sub.FirstMentioned,
		&sub.LastChecked, &sub.NextRetryAt, &sub.RetryPriority,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetOrCreateSubreddit returns the entity for name, creating an empty
// record on first reference.
func (s *Store) GetOrCreateSubreddit(ctx context.Context, name string) (*store.Subreddit, bool, error) {
	query := `SELECT ` + subredditColumns + ` FROM subreddit WHERE name = $1`
	sub, err := scanSubreddit(s.pool.QueryRow(ctx, query, name))
	if err == nil {
		return sub, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("get subreddit %q: %w", name, err)
	}

	insert := `INSERT INTO subreddit (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING
		RETURNING ` + subredditColumns
	sub, err = scanSubreddit(s.pool.QueryRow(ctx, insert, name))
	if err == nil {
		return sub, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("create subreddit %q: %w", name, err)
	}

	// Lost the race to a concurrent insert; read the winner's row.
	sub, err = scanSubreddit(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		return nil, false, fmt.Errorf("get subreddit %q after conflict: %w", name, err)
	}
	return sub, false, nil
}

// UpdateSubredditMeta writes profile fields, flags, and retry state.
func (s *Store) UpdateSubredditMeta(ctx context.Context, sub *store.Subreddit) error {
	query := `UPDATE subreddit SET
		title = $2, display_name = $3, description = $4, subscribers = $5,
		active_users = $6, over18 = $7, subreddit_type = $8, found = $9,
		banned = $10, next_retry_at = $11, retry_priority = $12,
		last_checked = $13
		WHERE id = $1`
	_, err := s.pool.Exec(ctx, query,
		sub.ID, sub.Title, sub.DisplayName, sub.Description, sub.Subscribers,
		sub.ActiveUsers, sub.Over18, sub.Type, sub.Found,
		sub.Banned, sub.NextRetryAt, sub.RetryPriority, sub.LastChecked,
	)
	if err != nil {
		return fmt.Errorf("update subreddit %q: %w", sub.Name, err)
	}
	return nil
}

// LowerFirstMentioned moves first_mentioned down to ts, never up. The
// comparison happens in the database so concurrent writers cannot raise it.
func (s *Store) LowerFirstMentioned(ctx context.Context, id int64, ts int64) (bool, error) {
	if ts <= 0 {
		return false, nil
	}
	query := `UPDATE subreddit SET first_mentioned = $2
		WHERE id = $1 AND (first_mentioned IS NULL OR first_mentioned > $2)`
	tag, err := s.pool.Exec(ctx, query, id, ts)
	if err != nil {
		return false, fmt.Errorf("lower first_mentioned for %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// TierCandidate returns the next refresh candidate for the given tier.
// Banned entities never qualify; a future next_retry_at excludes an entity
// from every tier until it passes.
func (s *Store) TierCandidate(ctx context.Context, tier store.Tier, q store.TierQuery) (*store.Subreddit, error) {
	const retryGate = `(next_retry_at IS NULL OR next_retry_at <= $1)`

	var query string
	args := []any{q.Now}
	switch tier {
	case store.TierNeverChecked:
		query = `SELECT ` + subredditColumns + ` FROM subreddit
			WHERE last_checked IS NULL
			AND NOT banned
			AND found IS DISTINCT FROM FALSE
			AND ` + retryGate + `
			ORDER BY first_mentioned ASC NULLS LAST, retry_priority DESC
			LIMIT 1`
	case store.TierIncomplete:
		query = `SELECT ` + subredditColumns + ` FROM subreddit
			WHERE last_checked IS NOT NULL
			AND (title IS NULL OR subscribers IS NULL OR description IS NULL)
			AND NOT banned
			AND found IS DISTINCT FROM FALSE
			AND ` + retryGate + `
			ORDER BY first_mentioned ASC NULLS LAST, retry_priority DESC
			LIMIT 1`
	case store.TierStale:
		query = `SELECT ` + subredditColumns + ` FROM subreddit
			WHERE last_checked IS NOT NULL
			AND title IS NOT NULL AND subscribers IS NOT NULL AND description IS NOT NULL
			AND NOT banned
			AND found IS DISTINCT FROM FALSE
			AND last_checked < $2
			AND ` + retryGate + `
			ORDER BY last_checked ASC
			LIMIT 1`
		args = append(args, q.Now.Add(-q.Staleness))
	case store.TierAbsentRecheck:
		query = `SELECT ` + subredditColumns + ` FROM subreddit
			WHERE found = FALSE
			AND NOT banned
			AND last_checked IS NOT NULL
			AND last_checked < $2
			AND ` + retryGate + `
			ORDER BY last_checked ASC
			LIMIT 1`
		args = append(args, q.Now.Add(-q.AbsentRecheck))
	default:
		return nil, fmt.Errorf("unknown tier %d", tier)
	}

	sub, err := scanSubreddit(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tier %d candidate: %w", tier, err)
	}
	return sub, nil
}
