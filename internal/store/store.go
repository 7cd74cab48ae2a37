// Package store defines the persistence contract for communities, posts,
// comments, and mentions. The Postgres implementation lives in the postgres
// subpackage; consumers depend only on these interfaces.
package store

import (
	"context"
	"time"
)

// Subreddit is one tracked entity: a community or a user-profile
// pseudo-community (stored under its u_ name).
type Subreddit struct {
	ID          int64
	Name        string
	Title       *string
	DisplayName *string
	Description *string
	Subscribers *int
	ActiveUsers *int
	Over18      *bool
	Type        *string
	// Found is tri-state: nil means never resolved, false means confirmed
	// absent at last check.
	Found  *bool
	Banned bool
	// FirstMentioned is the earliest comment timestamp (epoch seconds) that
	// referenced this entity. It only ever decreases once set.
	FirstMentioned *int64
	LastChecked    *time.Time
	NextRetryAt    *time.Time
	RetryPriority  int
}

// ProfileComplete reports whether the profile has all the fields the
// refresh scheduler considers required.
func (s *Subreddit) ProfileComplete() bool {
	return s.Title != nil && s.Subscribers != nil && s.Description != nil
}

// Post is one source item.
type Post struct {
	ID               int64
	RedditID         string
	Title            string
	Author           string
	CreatedUTC       int64
	URL              string
	UniqueSubreddits int
	LastScanned      *time.Time
}

// Comment belongs to exactly one post. Author is the resolved identity,
// empty for deleted accounts.
type Comment struct {
	ID         int64
	RedditID   string
	PostID     int64
	Author     string
	Body       string
	CreatedUTC int64
}

// Mention records that one comment referenced one entity.
type Mention struct {
	ID          int64
	SubredditID int64
	CommentID   int64
	PostID      int64
	UserID      string
	Timestamp   int64
}

// Analytics is the single row of aggregate counters.
type Analytics struct {
	TotalSubreddits     int64
	TotalPosts          int64
	TotalComments       int64
	TotalMentions       int64
	LastScanStarted     *time.Time
	LastScanDuration    int
	LastScanNewMentions int
}

// AnalyticsDelta is an opportunistic counter increment.
type AnalyticsDelta struct {
	Subreddits int
	Posts      int
	Comments   int
	Mentions   int
}

// ScanSource configures one source the crawl loop visits.
type ScanSource struct {
	Name string
	// AllowedUsers restricts items to these authors; empty means all.
	AllowedUsers []string
	// NSFWOnly restricts items to restricted-content posts.
	NSFWOnly bool
	// Priority orders sources; lower runs sooner.
	Priority int
}

// AllowsAuthor applies the source's author filter.
func (s ScanSource) AllowsAuthor(author string) bool {
	if len(s.AllowedUsers) == 0 {
		return true
	}
	for _, u := range s.AllowedUsers {
		if u == author {
			return true
		}
	}
	return false
}

// InsertResult distinguishes a fresh insert from an absorbed duplicate.
type InsertResult int

const (
	Inserted InsertResult = iota
	// Conflict means a uniqueness constraint rejected the row. Expected
	// under concurrent and repeated processing; never an error.
	Conflict
)

// Tier is one of the four refresh priority classes.
type Tier int

const (
	TierNeverChecked Tier = iota + 1
	TierIncomplete
	TierStale
	TierAbsentRecheck
)

// TierQuery parameterizes candidate selection.
type TierQuery struct {
	Now           time.Time
	Staleness     time.Duration
	AbsentRecheck time.Duration
}

// SubredditStore persists entities and serves the refresh tiers.
type SubredditStore interface {
	// GetOrCreateSubreddit returns the entity for name, creating an empty
	// record on first reference. The second result reports creation.
	GetOrCreateSubreddit(ctx context.Context, name string) (*Subreddit, bool, error)

	// UpdateSubredditMeta writes profile fields, status flags, retry state,
	// and last_checked in one commit.
	UpdateSubredditMeta(ctx context.Context, sub *Subreddit) error

	// LowerFirstMentioned moves first_mentioned down to ts if ts is earlier
	// than the stored value (or the value is unset). Returns whether a
	// write happened.
	LowerFirstMentioned(ctx context.Context, id int64, ts int64) (bool, error)

	// TierCandidate returns the next entity in the given tier, or nil when
	// the tier is empty. Entities with a future next_retry_at are excluded;
	// banned entities never appear in any tier.
	TierCandidate(ctx context.Context, tier Tier, q TierQuery) (*Subreddit, error)
}

// PostStore persists source items.
type PostStore interface {
	// GetPostByRedditID returns nil when the item is not stored.
	GetPostByRedditID(ctx context.Context, redditID string) (*Post, error)
	CreatePost(ctx context.Context, p *Post) error

	// FinalizePostScan recomputes the distinct-entity count and stamps
	// last_scanned.
	FinalizePostScan(ctx context.Context, postID int64, at time.Time) error

	// TouchPostScan only stamps last_scanned, for items whose comments
	// were unchanged.
	TouchPostScan(ctx context.Context, postID int64, at time.Time) error
}

// CommentStore persists comments.
type CommentStore interface {
	// GetCommentByRedditID returns nil when the comment is not stored.
	GetCommentByRedditID(ctx context.Context, redditID string) (*Comment, error)
	CreateComment(ctx context.Context, c *Comment) error

	// OverwriteComment replaces body, author, and timestamp in place for an
	// edited comment.
	OverwriteComment(ctx context.Context, id int64, body, author string, createdUTC int64) error
}

// MentionStore persists mention facts.
type MentionStore interface {
	// InsertMention attempts the insert and reports Conflict when either
	// uniqueness constraint (entity+comment, or entity+user database-wide)
	// rejects it.
	InsertMention(ctx context.Context, m *Mention) (InsertResult, error)
}

// AnalyticsStore maintains the aggregate counters row.
type AnalyticsStore interface {
	IncrementAnalytics(ctx context.Context, delta AnalyticsDelta) error
	RecordScan(ctx context.Context, started time.Time, duration time.Duration, newMentions int) error
	// ReconcileAnalytics replaces the counters with true table counts.
	ReconcileAnalytics(ctx context.Context) error
	GetAnalytics(ctx context.Context) (*Analytics, error)
}

// ConfigStore serves scan configuration and ignore-lists.
type ConfigStore interface {
	// ActiveScanSources returns configured sources ordered by priority.
	// An empty result means the caller falls back to its static list.
	ActiveScanSources(ctx context.Context) ([]ScanSource, error)
	IgnoredSubreddits(ctx context.Context) ([]string, error)
	IgnoredUsers(ctx context.Context) ([]string, error)
}

// Store is the full persistence contract.
type Store interface {
	SubredditStore
	PostStore
	CommentStore
	MentionStore
	AnalyticsStore
	ConfigStore
	Close()
}
