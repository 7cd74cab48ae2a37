package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pineapple-index/subindex/internal/store"
)

// ensureAnalyticsRow creates the single counters row when missing.
func (s *Store) ensureAnalyticsRow(ctx context.Context) error {
	query := `INSERT INTO analytics (id, total_subreddits, total_posts, total_comments, total_mentions)
		SELECT 1, 0, 0, 0, 0
		WHERE NOT EXISTS (SELECT 1 FROM analytics)`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure analytics row: %w", err)
	}
	return nil
}

// IncrementAnalytics applies an opportunistic counter delta.
func (s *Store) IncrementAnalytics(ctx context.Context, delta store.AnalyticsDelta) error {
	if delta == (store.AnalyticsDelta{}) {
		return nil
	}
	if err := s.ensureAnalyticsRow(ctx); err != nil {
		return err
	}
	query := `UPDATE analytics SET
		total_subreddits = total_subreddits + $1,
		total_posts = total_posts + $2,
		total_comments = total_comments + $3,
		total_mentions = total_mentions + $4`
	_, err := s.pool.Exec(ctx, query, delta.Subreddits, delta.Posts, delta.Comments, delta.Mentions)
	if err != nil {
		return fmt.Errorf("increment analytics: %w", err)
	}
	return nil
}

// RecordScan stores the last-scan metadata.
func (s *Store) RecordScan(ctx context.Context, started time.Time, duration time.Duration, newMentions int) error {
	if err := s.ensureAnalyticsRow(ctx); err != nil {
		return err
	}
	query := `UPDATE analytics SET
		last_scan_started = $1,
		last_scan_duration = $2,
		last_scan_new_mentions = $3`
	_, err := s.pool.Exec(ctx, query, started, int(duration.Seconds()), newMentions)
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}
	return nil
}

// ReconcileAnalytics replaces the opportunistic counters with true table
// counts. Drift accumulates from rolled-back increments and is expected.
func (s *Store) ReconcileAnalytics(ctx context.Context) error {
	if err := s.ensureAnalyticsRow(ctx); err != nil {
		return err
	}
	query := `UPDATE analytics SET
		total_subreddits = (SELECT COUNT(*) FROM subreddit),
		total_posts = (SELECT COUNT(*) FROM post),
		total_comments = (SELECT COUNT(*) FROM comment),
		total_mentions = (SELECT COUNT(*) FROM mention)`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("reconcile analytics: %w", err)
	}
	return nil
}

// GetAnalytics returns the counters row, or zero values when none exists.
func (s *Store) GetAnalytics(ctx context.Context) (*store.Analytics, error) {
	query := `SELECT total_subreddits, total_posts, total_comments, total_mentions,
		last_scan_started, last_scan_duration, last_scan_new_mentions
		FROM analytics LIMIT 1`
	var a store.Analytics
	var dur, newMentions *int
	err := s.pool.QueryRow(ctx, query).Scan(
		&a.TotalSubreddits, &a.TotalPosts, &a.TotalComments, &a.TotalMentions,
		&a.LastScanStarted, &dur, &newMentions,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &store.Analytics{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analytics: %w", err)
	}
	if dur != nil {
		a.LastScanDuration = *dur
	}
	if newMentions != nil {
		a.LastScanNewMentions = *newMentions
	}
	return &a, nil
}
