package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Pager backfills older posts into the store on demand, one page at a time.
type Pager struct {
	store    *Store
	source   BackfillSource
	pageSize int
	logger   *slog.Logger

	mu      sync.Mutex
	offset  int
	hasMore bool
	loading bool
}

// NewPager creates a pager over the given backfill source.
func NewPager(store *Store, source BackfillSource, pageSize int, logger *slog.Logger) *Pager {
	return &Pager{
		store:    store,
		source:   source,
		pageSize: pageSize,
		logger:   logger,
		hasMore:  true,
	}
}

// HasMore reports whether another page may still be available.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// LoadNextPage fetches the next backfill page and appends it to the store.
// It is a no-op returning 0 if a load is already in flight or a prior
// response indicated no more data. On transport failure the offset is left
// unchanged so a retry re-requests the same page. Returns the number of
// posts actually inserted.
func (p *Pager) LoadNextPage(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.loading || !p.hasMore {
		p.mu.Unlock()
		return 0, nil
	}
	p.loading = true
	offset := p.offset
	p.mu.Unlock()

	page, err := p.source.FetchPosts(ctx, offset, p.pageSize)

	p.mu.Lock()
	p.loading = false
	if err != nil {
		p.mu.Unlock()
		return 0, fmt.Errorf("fetch posts at offset %d: %w", offset, err)
	}

	got := len(page.Posts)
	p.offset += got
	// A short page overrides the server's hasMore flag.
	p.hasMore = page.HasMore && got == p.pageSize
	p.mu.Unlock()

	inserted := p.store.AppendBackfill(page.Posts)

	p.logger.Debug("backfill page loaded",
		"offset", offset,
		"returned", got,
		"inserted", inserted,
		"has_more", p.HasMore(),
	)
	return inserted, nil
}
