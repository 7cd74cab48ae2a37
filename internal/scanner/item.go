package scanner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pineapple-index/subindex/internal/mentions"
	"github.com/pineapple-index/subindex/internal/metrics"
	"github.com/pineapple-index/subindex/internal/reddit"
	"github.com/pineapple-index/subindex/internal/store"
)

// userEntityPrefix namespaces user-profile pseudo-communities in the entity
// table so a user and a community with the same name never collide.
const userEntityPrefix = "u_"

type itemDecision int

const (
	decisionProcess itemDecision = iota
	decisionSkipTooOldNew
	decisionSkipTooOldStored
	decisionSkipRecentlyScanned
)

// decide applies the three age horizons to one feed item.
func (s *Scanner) decide(existing *store.Post, item reddit.PostItem, now time.Time) itemDecision {
	age := now.Sub(time.Unix(item.CreatedUTC, 0))
	if existing == nil {
		if s.cfg.InitialScanHorizon > 0 && age > s.cfg.InitialScanHorizon {
			return decisionSkipTooOldNew
		}
		return decisionProcess
	}
	if s.cfg.RecheckWindow > 0 && existing.LastScanned != nil &&
		now.Sub(*existing.LastScanned) < s.cfg.RecheckWindow {
		return decisionSkipRecentlyScanned
	}
	if s.cfg.RescanHorizon > 0 && age > s.cfg.RescanHorizon {
		return decisionSkipTooOldStored
	}
	return decisionProcess
}

// editedComment pairs a stored comment with the fresher upstream version.
type editedComment struct {
	stored *store.Comment
	item   reddit.CommentItem
}

// processItem fetches one item's comment tree, diffs it against the store,
// and persists comments and mentions. A stored item whose tree is unchanged
// gets only a last_scanned stamp.
func (s *Scanner) processItem(ctx context.Context, item reddit.PostItem, state *passState, log *zap.Logger) {
	now := s.clock.Now()
	existing, err := s.store.GetPostByRedditID(ctx, item.ID)
	if err != nil {
		log.Warn("load stored item failed", zap.String("item", item.ID), zap.Error(err))
		return
	}
	if s.decide(existing, item, now) != decisionProcess {
		return
	}

	comments, outcome := s.feed.Comments(ctx, item.ID)
	if !outcome.OK() {
		log.Warn("comment fetch failed",
			zap.String("item", item.ID),
			zap.String("outcome", outcome.Status.String()),
			zap.Error(outcome.Err))
		return
	}

	var fresh []reddit.CommentItem
	var edited []editedComment
	for _, c := range comments {
		stored, err := s.store.GetCommentByRedditID(ctx, c.ID)
		if err != nil {
			log.Warn("load stored comment failed", zap.String("comment", c.ID), zap.Error(err))
			continue
		}
		switch {
		case stored == nil:
			fresh = append(fresh, c)
		case stored.Body != c.Body:
			edited = append(edited, editedComment{stored: stored, item: c})
		}
	}

	// Unchanged re-fetch: the only write is the scan stamp.
	if existing != nil && len(fresh) == 0 && len(edited) == 0 {
		if err := s.store.TouchPostScan(ctx, existing.ID, now); err != nil {
			log.Warn("touch item scan failed", zap.Int64("post_id", existing.ID), zap.Error(err))
		}
		return
	}

	post := existing
	if post == nil {
		post = &store.Post{
			RedditID:   item.ID,
			Title:      item.Title,
			Author:     item.Author,
			CreatedUTC: item.CreatedUTC,
			URL:        item.Permalink,
		}
		if err := s.store.CreatePost(ctx, post); err != nil {
			log.Warn("create item failed", zap.String("item", item.ID), zap.Error(err))
			return
		}
		if err := s.store.IncrementAnalytics(ctx, store.AnalyticsDelta{Posts: 1}); err != nil {
			log.Warn("analytics increment failed", zap.Error(err))
		}
	}

	for _, c := range fresh {
		s.storeNewComment(ctx, post, c, state, log)
	}
	for _, e := range edited {
		s.applyEditedComment(ctx, post, e, state, log)
	}

	if err := s.store.FinalizePostScan(ctx, post.ID, now); err != nil {
		log.Warn("finalize item scan failed", zap.Int64("post_id", post.ID), zap.Error(err))
	}
	metrics.IncPostsProcessed()
}

// storeNewComment extracts mentions from a never-seen comment and stores it
// only when it actually references something.
func (s *Scanner) storeNewComment(ctx context.Context, post *store.Post, c reddit.CommentItem, state *passState, log *zap.Logger) {
	matches := state.extractor.Extract(c.Body)
	if len(matches) == 0 {
		return
	}
	comment := &store.Comment{
		RedditID:   c.ID,
		PostID:     post.ID,
		Author:     c.AuthorIdentity(),
		Body:       c.Body,
		CreatedUTC: c.CreatedUTC,
	}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		log.Warn("create comment failed", zap.String("comment", c.ID), zap.Error(err))
		return
	}
	if err := s.store.IncrementAnalytics(ctx, store.AnalyticsDelta{Comments: 1}); err != nil {
		log.Warn("analytics increment failed", zap.Error(err))
	}
	metrics.IncCommentsStored()
	s.recordMentions(ctx, post, comment, matches, state, log)
}

// applyEditedComment overwrites the stored body and re-extracts. Mentions
// already recorded for the old text survive; re-inserts are absorbed by the
// uniqueness constraints, so only references new to the edited text land.
func (s *Scanner) applyEditedComment(ctx context.Context, post *store.Post, e editedComment, state *passState, log *zap.Logger) {
	author := e.item.AuthorIdentity()
	if err := s.store.OverwriteComment(ctx, e.stored.ID, e.item.Body, author, e.item.CreatedUTC); err != nil {
		log.Warn("overwrite comment failed", zap.Int64("comment_id", e.stored.ID), zap.Error(err))
		return
	}
	updated := &store.Comment{
		ID:         e.stored.ID,
		RedditID:   e.stored.RedditID,
		PostID:     post.ID,
		Author:     author,
		Body:       e.item.Body,
		CreatedUTC: e.item.CreatedUTC,
	}
	s.recordMentions(ctx, post, updated, state.extractor.Extract(e.item.Body), state, log)
}

// recordMentions persists one comment's extracted references: get-or-create
// the entity, lower its first_mentioned floor, insert the mention fact, and
// mark the entity touched for the refresh batch.
func (s *Scanner) recordMentions(ctx context.Context, post *store.Post, comment *store.Comment, matches []mentions.Match, state *passState, log *zap.Logger) {
	for _, m := range matches {
		entity := m.Name
		if m.IsUser {
			entity = userEntityPrefix + m.Name
		}
		sub, created, err := s.store.GetOrCreateSubreddit(ctx, entity)
		if err != nil {
			log.Warn("get or create entity failed", zap.String("entity", entity), zap.Error(err))
			continue
		}
		if created {
			if err := s.store.IncrementAnalytics(ctx, store.AnalyticsDelta{Subreddits: 1}); err != nil {
				log.Warn("analytics increment failed", zap.Error(err))
			}
		}
		if _, err := s.store.LowerFirstMentioned(ctx, sub.ID, comment.CreatedUTC); err != nil {
			log.Warn("lower first_mentioned failed", zap.String("entity", entity), zap.Error(err))
		}
		res, err := s.store.InsertMention(ctx, &store.Mention{
			SubredditID: sub.ID,
			CommentID:   comment.ID,
			PostID:      post.ID,
			UserID:      comment.Author,
			Timestamp:   comment.CreatedUTC,
		})
		if err != nil {
			log.Warn("insert mention failed", zap.String("entity", entity), zap.Error(err))
			continue
		}
		if res == store.Inserted {
			state.newMentions++
			metrics.IncMention("inserted")
			if err := s.store.IncrementAnalytics(ctx, store.AnalyticsDelta{Mentions: 1}); err != nil {
				log.Warn("analytics increment failed", zap.Error(err))
			}
		} else {
			metrics.IncMention("duplicate")
		}
		state.touch(entity)
	}
}
