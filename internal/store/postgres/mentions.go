package postgres

import (
	"context"
	"fmt"

	"github.com/pineapple-index/subindex/internal/store"
)

// InsertMention attempts one mention insert. Either uniqueness constraint
// rejecting the row is reported as Conflict, not an error: duplicates are
// expected under concurrent, at-least-once processing and the database is
// the sole dedup authority.
//
// Anonymous authors insert NULL user ids so the database-wide
// (entity, user) constraint never collapses distinct anonymous mentions.
func (s *Store) InsertMention(ctx context.Context, m *store.Mention) (store.InsertResult, error) {
	query := `INSERT INTO mention (subreddit_id, comment_id, post_id, user_id, ts)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id`
	err := s.pool.QueryRow(ctx, query,
		m.SubredditID, m.CommentID, m.PostID, m.UserID, m.Timestamp,
	).Scan(&m.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return store.Conflict, nil
		}
		return store.Conflict, fmt.Errorf("insert mention sub=%d comment=%d: %w", m.SubredditID, m.CommentID, err)
	}
	return store.Inserted, nil
}
