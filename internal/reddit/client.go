// Package reddit implements the upstream content API client.
//
// Every request passes through the shared rate budget before it is made and
// is recorded after it completes, success or failure. Responses are
// classified into Outcomes; transient network failures are retried with
// capped exponential backoff, everything else is surfaced to the caller.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pineapple-index/subindex/internal/clock"
	"github.com/pineapple-index/subindex/internal/metrics"
	"github.com/pineapple-index/subindex/internal/ratelimit"
)

// maxBodyBytes bounds how much of a response the client will read.
const maxBodyBytes = 8 << 20

// Config controls the client.
type Config struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	MaxRetries        int
	DefaultRetryAfter time.Duration
	MinDelay          time.Duration
}

// Client fetches listings, comment trees, and community profiles.
type Client struct {
	http   *http.Client
	cfg    Config
	budget ratelimit.Budget
	clock  clock.Clock
	logger *zap.Logger
}

// New builds a Client funneled through the given rate budget.
func New(cfg Config, budget ratelimit.Budget, clk clock.Clock, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.reddit.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = 30 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			// Redirects mean "community does not exist"; classify rather
			// than follow.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg:    cfg,
		budget: budget,
		clock:  clk,
		logger: logger,
	}
}

// About fetches one community's profile.
func (c *Client) About(ctx context.Context, name string) AboutResult {
	body, outcome := c.get(ctx, "about", fmt.Sprintf("%s/r/%s/about.json", c.cfg.BaseURL, name))
	res := AboutResult{Outcome: outcome}
	if !outcome.OK() {
		return res
	}
	var payload wireAbout
	if err := unmarshal(body, &payload); err != nil {
		c.logger.Warn("decode profile payload failed", zap.String("name", name), zap.Error(err))
		res.Status = StatusUnexpected
		return res
	}
	res.Data = payload.Data
	res.Reason = payload.Reason
	if res.Data == nil {
		res.Data = &AboutData{}
	}
	return res
}

// RecentPosts fetches one page of a source's recent-items feed.
func (c *Client) RecentPosts(ctx context.Context, source, after string) (Listing, Outcome) {
	url := fmt.Sprintf("%s/r/%s/new.json?limit=100", c.cfg.BaseURL, source)
	if after != "" {
		url += "&after=" + after
	}
	body, outcome := c.get(ctx, "listing", url)
	if !outcome.OK() {
		return Listing{}, outcome
	}
	listing, err := parseListing(body)
	if err != nil {
		c.logger.Warn("decode listing failed", zap.String("source", source), zap.Error(err))
		outcome.Status = StatusUnexpected
		return Listing{}, outcome
	}
	return listing, outcome
}

// Comments fetches and flattens one item's comment tree.
func (c *Client) Comments(ctx context.Context, postID string) ([]CommentItem, Outcome) {
	url := fmt.Sprintf("%s/comments/%s.json?limit=500", c.cfg.BaseURL, postID)
	body, outcome := c.get(ctx, "comments", url)
	if !outcome.OK() {
		return nil, outcome
	}
	comments, err := parseComments(body)
	if err != nil {
		c.logger.Warn("decode comment tree failed", zap.String("post", postID), zap.Error(err))
		outcome.Status = StatusUnexpected
		return nil, outcome
	}
	return comments, outcome
}

// get performs one GET through the budget, retrying transient network
// failures up to cfg.MaxRetries with capped exponential backoff.
func (c *Client) get(ctx context.Context, endpoint, url string) ([]byte, Outcome) {
	var outcome Outcome
	for attempt := 0; ; attempt++ {
		body, o := c.getOnce(ctx, endpoint, url)
		outcome = o
		if o.Status != StatusNetworkError || attempt >= c.cfg.MaxRetries {
			return body, outcome
		}
		if ctx.Err() != nil {
			return nil, outcome
		}
		wait := Backoff(attempt, 0, c.cfg.MinDelay)
		c.logger.Warn("transient fetch failure, backing off",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(o.Err))
		c.clock.Sleep(ctx, wait)
	}
}

func (c *Client) getOnce(ctx context.Context, endpoint, url string) ([]byte, Outcome) {
	if _, err := c.budget.Acquire(ctx); err != nil {
		return nil, Outcome{Status: StatusNetworkError, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Outcome{Status: StatusNetworkError, Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)

	// The call hit the wire either way; record it against the budget.
	if rerr := c.budget.Record(ctx); rerr != nil {
		c.logger.Warn("record api call failed", zap.Error(rerr))
	}

	outcome := classify(resp, err, c.clock.Now(), c.cfg.DefaultRetryAfter)
	metrics.ObserveAPICall(endpoint, outcome.Status.String())
	if err != nil {
		return nil, outcome
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, Outcome{Status: StatusNetworkError, Err: err}
	}
	return body, outcome
}

func unmarshal(body []byte, v any) error {
	if len(body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(body, v)
}
