package refresher

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Pool runs discovery-triggered refreshes for a batch of entity names with
// bounded concurrency. Every worker still funnels through the shared rate
// budget inside the API client, so the pool bounds goroutines, not call
// rate.
type Pool struct {
	fetcher     *Fetcher
	concurrency int
	logger      *zap.Logger
}

// NewPool builds a Pool.
func NewPool(fetcher *Fetcher, concurrency int, logger *zap.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{fetcher: fetcher, concurrency: concurrency, logger: logger}
}

// RefreshBatch refreshes each name, at most concurrency at a time. Errors
// are logged and swallowed: a failed refresh only delays freshness.
func (p *Pool) RefreshBatch(ctx context.Context, names []string) {
	if len(names) == 0 {
		return
	}
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := p.fetcher.Refresh(ctx, name); err != nil {
				p.logger.Warn("discovery refresh failed",
					zap.String("subreddit", name),
					zap.Error(err))
			}
		}(name)
	}
	wg.Wait()
}
