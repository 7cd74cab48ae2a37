package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pineapple-index/subindex/internal/store"
)

const commentColumns = `id, reddit_comment_id, post_id, author, body, created_utc`

func scanComment(row pgx.Row) (*store.Comment, error) {
	var c store.Comment
	err := row.Scan(&c.ID, &c.RedditID, &c.PostID, &c.Author, &c.Body, &c.CreatedUTC)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCommentByRedditID returns nil when the comment has never been stored.
func (s *Store) GetCommentByRedditID(ctx context.Context, redditID string) (*store.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comment WHERE reddit_comment_id = $1`
	c, err := scanComment(s.pool.QueryRow(ctx, query, redditID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comment %q: %w", redditID, err)
	}
	return c, nil
}

// CreateComment stores a new comment and fills in its assigned id.
func (s *Store) CreateComment(ctx context.Context, c *store.Comment) error {
	query := `INSERT INTO comment (reddit_comment_id, post_id, author, body, created_utc)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := s.pool.QueryRow(ctx, query,
		c.RedditID, c.PostID, c.Author, c.Body, c.CreatedUTC,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("create comment %q: %w", c.RedditID, err)
	}
	return nil
}

// OverwriteComment replaces an edited comment's body, author, and
// timestamp in place. No new row is ever created for an edit.
func (s *Store) OverwriteComment(ctx context.Context, id int64, body, author string, createdUTC int64) error {
	query := `UPDATE comment SET body = $2, author = $3, created_utc = $4 WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id, body, author, createdUTC); err != nil {
		return fmt.Errorf("overwrite comment %d: %w", id, err)
	}
	return nil
}
