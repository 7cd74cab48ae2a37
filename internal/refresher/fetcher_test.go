package refresher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pineapple-index/subindex/internal/reddit"
	"github.com/pineapple-index/subindex/internal/store"
)

// fakeSubStore is an in-memory SubredditStore.
type fakeSubStore struct {
	mu   sync.Mutex
	subs map[string]*store.Subreddit
	next int64
}

func newFakeSubStore() *fakeSubStore {
	return &fakeSubStore{subs: make(map[string]*store.Subreddit)}
}

func (f *fakeSubStore) GetOrCreateSubreddit(_ context.Context, name string) (*store.Subreddit, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[name]; ok {
		cp := *s
		return &cp, false, nil
	}
	f.next++
	s := &store.Subreddit{ID: f.next, Name: name}
	f.subs[name] = s
	cp := *s
	return &cp, true, nil
}

func (f *fakeSubStore) UpdateSubredditMeta(_ context.Context, sub *store.Subreddit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sub
	f.subs[sub.Name] = &cp
	return nil
}

func (f *fakeSubStore) LowerFirstMentioned(_ context.Context, id int64, ts int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.ID != id {
			continue
		}
		if s.FirstMentioned == nil || *s.FirstMentioned > ts {
			v := ts
			s.FirstMentioned = &v
			return true, nil
		}
		return false, nil
	}
	return false, nil
}

func (f *fakeSubStore) TierCandidate(_ context.Context, tier store.Tier, q store.TierQuery) (*store.Subreddit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *store.Subreddit
	for _, s := range f.subs {
		if s.Banned {
			continue
		}
		if s.NextRetryAt != nil && s.NextRetryAt.After(q.Now) {
			continue
		}
		if !inTier(s, tier, q) {
			continue
		}
		if best == nil || tierLess(s, best) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func inTier(s *store.Subreddit, tier store.Tier, q store.TierQuery) bool {
	switch tier {
	case store.TierNeverChecked:
		return s.LastChecked == nil
	case store.TierIncomplete:
		return s.LastChecked != nil && (s.Found == nil || *s.Found) && !s.ProfileComplete()
	case store.TierStale:
		return s.LastChecked != nil && (s.Found != nil && *s.Found) &&
			q.Now.Sub(*s.LastChecked) > q.Staleness
	case store.TierAbsentRecheck:
		return s.LastChecked != nil && s.Found != nil && !*s.Found &&
			q.Now.Sub(*s.LastChecked) > q.AbsentRecheck
	}
	return false
}

func tierLess(a, b *store.Subreddit) bool {
	switch {
	case a.FirstMentioned == nil && b.FirstMentioned == nil:
		return a.ID < b.ID
	case a.FirstMentioned == nil:
		return false
	case b.FirstMentioned == nil:
		return true
	default:
		return *a.FirstMentioned < *b.FirstMentioned
	}
}

// scriptedAPI returns canned results per entity name.
type scriptedAPI struct {
	mu      sync.Mutex
	results map[string]reddit.AboutResult
	calls   []string
}

func (a *scriptedAPI) About(_ context.Context, name string) reddit.AboutResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, name)
	if res, ok := a.results[name]; ok {
		return res
	}
	return reddit.AboutResult{Outcome: reddit.Outcome{Status: reddit.StatusNotFound}}
}

func successResult(title, desc string, subscribers int) reddit.AboutResult {
	return reddit.AboutResult{
		Outcome: reddit.Outcome{Status: reddit.StatusSuccess},
		Data: &reddit.AboutData{
			DisplayName:       "name",
			Title:             &title,
			PublicDescription: &desc,
			Subscribers:       &subscribers,
			SubredditType:     "public",
		},
	}
}

func TestFetcher_Success(t *testing.T) {
	st := newFakeSubStore()
	api := &scriptedAPI{results: map[string]reddit.AboutResult{
		"golang": successResult("The Go Language", "gophers", 250000),
	}}
	clk := newTestClock()
	f := NewFetcher(st, api, clk, nil)

	require.NoError(t, f.Refresh(context.Background(), "golang"))

	sub := st.subs["golang"]
	require.NotNil(t, sub)
	require.NotNil(t, sub.Found)
	assert.True(t, *sub.Found)
	assert.Equal(t, "The Go Language", *sub.Title)
	assert.Equal(t, 250000, *sub.Subscribers)
	assert.False(t, sub.Banned)
	require.NotNil(t, sub.LastChecked)
	assert.Equal(t, clk.Now(), *sub.LastChecked)
	assert.True(t, sub.ProfileComplete())
}

func TestFetcher_SuccessWithMissingTextFields(t *testing.T) {
	st := newFakeSubStore()
	subscribers := 10
	api := &scriptedAPI{results: map[string]reddit.AboutResult{
		"terse": {
			Outcome: reddit.Outcome{Status: reddit.StatusSuccess},
			Data:    &reddit.AboutData{Subscribers: &subscribers},
		},
	}}
	f := NewFetcher(st, api, newTestClock(), nil)

	require.NoError(t, f.Refresh(context.Background(), "terse"))

	sub := st.subs["terse"]
	// Missing text fields land as empty strings so the entity cannot
	// re-qualify for the incomplete tier forever.
	require.NotNil(t, sub.Title)
	assert.Empty(t, *sub.Title)
	require.NotNil(t, sub.Description)
	assert.Empty(t, *sub.Description)
	assert.True(t, sub.ProfileComplete())
}

func TestFetcher_PrivateTypeMeansBanned(t *testing.T) {
	st := newFakeSubStore()
	title := "t"
	api := &scriptedAPI{results: map[string]reddit.AboutResult{
		"hidden": {
			Outcome: reddit.Outcome{Status: reddit.StatusSuccess},
			Data:    &reddit.AboutData{Title: &title, SubredditType: "private"},
		},
	}}
	f := NewFetcher(st, api, newTestClock(), nil)

	require.NoError(t, f.Refresh(context.Background(), "hidden"))
	assert.True(t, st.subs["hidden"].Banned)
}

func TestFetcher_ForbiddenMarksBanned(t *testing.T) {
	st := newFakeSubStore()
	api := &scriptedAPI{results: map[string]reddit.AboutResult{
		"walled": {Outcome: reddit.Outcome{Status: reddit.StatusForbidden}},
	}}
	f := NewFetcher(st, api, newTestClock(), nil)

	require.NoError(t, f.Refresh(context.Background(), "walled"))

	sub := st.subs["walled"]
	assert.True(t, sub.Banned)
	require.NotNil(t, sub.Found)
	assert.True(t, *sub.Found)
}

func TestFetcher_NotFoundMarksAbsent(t *testing.T) {
	st := newFakeSubStore()
	api := &scriptedAPI{results: map[string]reddit.AboutResult{}}
	f := NewFetcher(st, api, newTestClock(), nil)

	require.NoError(t, f.Refresh(context.Background(), "ghost"))

	sub := st.subs["ghost"]
	require.NotNil(t, sub.Found)
	assert.False(t, *sub.Found)
	assert.False(t, sub.Banned)
	assert.NotNil(t, sub.LastChecked)
}

func TestFetcher_RateLimitedSchedulesRetry(t *testing.T) {
	st := newFakeSubStore()
	api := &scriptedAPI{results: map[string]reddit.AboutResult{
		"busy": {Outcome: reddit.Outcome{Status: reddit.StatusRateLimited, RetryAfter: 30 * time.Second}},
	}}
	clk := newTestClock()
	f := NewFetcher(st, api, clk, nil)

	require.NoError(t, f.Refresh(context.Background(), "busy"))

	sub := st.subs["busy"]
	require.NotNil(t, sub.NextRetryAt)
	assert.Equal(t, clk.Now().Add(30*time.Second), *sub.NextRetryAt)
	assert.Equal(t, 1, sub.RetryPriority)
	// No profile fields were touched.
	assert.Nil(t, sub.Title)
	assert.Nil(t, sub.Found)
}

func TestFetcher_RetryPriorityCapped(t *testing.T) {
	st := newFakeSubStore()
	api := &scriptedAPI{results: map[string]reddit.AboutResult{
		"busy": {Outcome: reddit.Outcome{Status: reddit.StatusRateLimited, RetryAfter: time.Second}},
	}}
	f := NewFetcher(st, api, newTestClock(), nil)

	for i := 0; i < 15; i++ {
		require.NoError(t, f.Refresh(context.Background(), "busy"))
	}
	assert.Equal(t, maxRetryPriority, st.subs["busy"].RetryPriority)
}

func TestFetcher_SuccessClearsRetryState(t *testing.T) {
	st := newFakeSubStore()
	retryAt := time.Now().Add(time.Minute)
	st.subs["flappy"] = &store.Subreddit{
		ID: 1, Name: "flappy",
		NextRetryAt:   &retryAt,
		RetryPriority: 4,
	}
	api := &scriptedAPI{results: map[string]reddit.AboutResult{
		"flappy": successResult("t", "d", 5),
	}}
	f := NewFetcher(st, api, newTestClock(), nil)

	require.NoError(t, f.Refresh(context.Background(), "flappy"))

	sub := st.subs["flappy"]
	assert.Nil(t, sub.NextRetryAt)
	assert.Zero(t, sub.RetryPriority)
}

func TestFetcher_UnexpectedLeavesStateAlone(t *testing.T) {
	st := newFakeSubStore()
	found := true
	title := "kept"
	st.subs["solid"] = &store.Subreddit{ID: 1, Name: "solid", Found: &found, Title: &title}
	api := &scriptedAPI{results: map[string]reddit.AboutResult{
		"solid": {Outcome: reddit.Outcome{Status: reddit.StatusUnexpected, HTTPStatus: 500}},
	}}
	f := NewFetcher(st, api, newTestClock(), nil)

	require.NoError(t, f.Refresh(context.Background(), "solid"))

	sub := st.subs["solid"]
	assert.Equal(t, "kept", *sub.Title)
	assert.True(t, *sub.Found)
	// last_checked still advances so the entity leaves the urgent tier.
	assert.NotNil(t, sub.LastChecked)
}
