package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pineapple-index/subindex/internal/store"
)

const postColumns = `id, reddit_post_id, title, author, created_utc, url,
	unique_subreddits, last_scanned`

func scanPost(row pgx.Row) (*store.Post, error) {
	var p store.Post
	err := row.Scan(
		&p.ID, &p.RedditID, &p.Title, &p.Author, &p.CreatedUTC, &p.URL,
		&p.UniqueSubreddits, &p.LastScanned,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPostByRedditID returns nil when the item has never been stored.
func (s *Store) GetPostByRedditID(ctx context.Context, redditID string) (*store.Post, error) {
	query := `SELECT ` + postColumns + ` FROM post WHERE reddit_post_id = $1`
	p, err := scanPost(s.pool.QueryRow(ctx, query, redditID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post %q: %w", redditID, err)
	}
	return p, nil
}

// CreatePost stores a new source item and fills in its assigned id.
func (s *Store) CreatePost(ctx context.Context, p *store.Post) error {
	query := `INSERT INTO post (reddit_post_id, title, author, created_utc, url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := s.pool.QueryRow(ctx, query,
		p.RedditID, p.Title, p.Author, p.CreatedUTC, p.URL,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("create post %q: %w", p.RedditID, err)
	}
	return nil
}

// FinalizePostScan recomputes the distinct-entity summary and stamps
// last_scanned after a (re)scan.
func (s *Store) FinalizePostScan(ctx context.Context, postID int64, at time.Time) error {
	query := `UPDATE post SET
		unique_subreddits = (
			SELECT COUNT(DISTINCT subreddit_id) FROM mention WHERE post_id = $1
		),
		last_scanned = $2
		WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, postID, at); err != nil {
		return fmt.Errorf("finalize post scan %d: %w", postID, err)
	}
	return nil
}

// TouchPostScan stamps last_scanned without touching the summary, for
// items whose comments were unchanged.
func (s *Store) TouchPostScan(ctx context.Context, postID int64, at time.Time) error {
	query := `UPDATE post SET last_scanned = $2 WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, postID, at); err != nil {
		return fmt.Errorf("touch post scan %d: %w", postID, err)
	}
	return nil
}
