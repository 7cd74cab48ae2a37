package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pineapple-index/subindex/internal/store"
)

// ActiveScanSources returns the configured sources ordered by ascending
// priority. An empty result tells the crawl loop to use its static
// fallback list.
func (s *Store) ActiveScanSources(ctx context.Context) ([]store.ScanSource, error) {
	query := `SELECT subreddit_name, allowed_users, nsfw_only, priority
		FROM subreddit_scan_config
		WHERE active
		ORDER BY priority ASC, subreddit_name ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("active scan sources: %w", err)
	}
	defer rows.Close()

	var out []store.ScanSource
	for rows.Next() {
		var src store.ScanSource
		var allowed *string
		if err := rows.Scan(&src.Name, &allowed, &src.NSFWOnly, &src.Priority); err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		if allowed != nil {
			for _, u := range strings.Split(*allowed, ",") {
				if u = strings.TrimSpace(u); u != "" {
					src.AllowedUsers = append(src.AllowedUsers, u)
				}
			}
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan source rows: %w", err)
	}
	return out, nil
}

// IgnoredSubreddits returns the active community ignore-list.
func (s *Store) IgnoredSubreddits(ctx context.Context) ([]string, error) {
	return s.nameList(ctx, `SELECT subreddit_name FROM ignored_subreddit WHERE active`)
}

// IgnoredUsers returns the active user ignore-list.
func (s *Store) IgnoredUsers(ctx context.Context) ([]string, error) {
	return s.nameList(ctx, `SELECT username FROM ignored_user WHERE active`)
}

func (s *Store) nameList(ctx context.Context, query string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("name list: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("name row: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("name rows: %w", err)
	}
	return out, nil
}
