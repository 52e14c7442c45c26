// Package media resolves posts' attached media URLs with bounded polling.
// Media is not always available at post-creation time, so a miss is retried
// on a fixed interval up to a configured attempt budget.
package media

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nekhebet/mirrorfeed/internal/domain"
)

// OutcomeRecorder receives terminal resolution outcomes, for metrics.
type OutcomeRecorder interface {
	RecordMediaResolved()
	RecordMediaUnavailable()
}

// resolution is the shared in-flight state for one post id. All subscribers
// registered while it is active are notified exactly once when it reaches a
// terminal outcome.
type resolution struct {
	attempts int
	timer    *time.Timer
	subs     []func(domain.MediaOutcome)
}

// Resolver resolves pending media for posts, sharing at most one in-flight
// resolution per post id. Terminal outcomes are applied to the store by the
// resolver itself; subscriber callbacks are purely notifications.
type Resolver struct {
	store       *domain.Store
	source      domain.MediaSource
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
	recorder    OutcomeRecorder // may be nil

	mu       sync.Mutex
	inflight map[int64]*resolution
}

// NewResolver creates a resolver polling the given source.
func NewResolver(store *domain.Store, source domain.MediaSource, interval time.Duration, maxAttempts int, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:       store,
		source:      source,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
		inflight:    make(map[int64]*resolution),
	}
}

// SetRecorder wires an optional metrics recorder.
func (r *Resolver) SetRecorder(rec OutcomeRecorder) {
	r.recorder = rec
}

// Request subscribes cb to the resolution of the given post's media. cb may
// be nil to drive resolution without observing the outcome.
//
// Terminal states answer immediately without network access: a resolved post
// yields its cached URL, an exhausted one the unavailable signal. If a
// resolution is already in flight for the id, cb joins it instead of
// starting a second one.
func (r *Resolver) Request(ctx context.Context, id int64, cb func(domain.MediaOutcome)) {
	p, ok := r.store.Get(id)
	if !ok || p.Media.Status == domain.MediaNone {
		return
	}

	switch p.Media.Status {
	case domain.MediaResolved:
		if cb != nil {
			cb(domain.MediaOutcome{URL: p.Media.URL, Kind: p.Media.Kind})
		}
		return
	case domain.MediaUnavailable:
		if cb != nil {
			cb(domain.MediaOutcome{Unavailable: true})
		}
		return
	}

	r.mu.Lock()
	if res, ok := r.inflight[id]; ok {
		if cb != nil {
			res.subs = append(res.subs, cb)
		}
		r.mu.Unlock()
		return
	}
	res := &resolution{attempts: 1}
	if cb != nil {
		res.subs = append(res.subs, cb)
	}
	r.inflight[id] = res
	r.mu.Unlock()

	r.store.MarkMediaResolving(id, 1)
	go r.attempt(ctx, id, res, 1)
}

// Cancel stops the retry timer and clears in-flight bookkeeping without
// changing the post's logical state. A cancelled resolution may be restarted
// by a fresh Request unless the post already reached a terminal state.
func (r *Resolver) Cancel(id int64) {
	r.mu.Lock()
	res, ok := r.inflight[id]
	if ok {
		if res.timer != nil {
			res.timer.Stop()
		}
		delete(r.inflight, id)
	}
	r.mu.Unlock()
}

func (r *Resolver) attempt(ctx context.Context, id int64, res *resolution, n int) {
	result, err := r.source.FetchMedia(ctx, id)

	if err == nil && result != nil {
		r.finish(id, res, domain.MediaOutcome{URL: result.URL, Kind: result.Kind})
		return
	}

	// A transport error is treated exactly like a miss: it consumes one of
	// the bounded attempts and does not fast-fail to unavailable.
	if err != nil && err != domain.ErrMediaNotFound {
		r.logger.Warn("media lookup failed",
			"message_id", id,
			"attempt", n,
			"error", err,
		)
	}

	if n >= r.maxAttempts {
		r.finish(id, res, domain.MediaOutcome{Unavailable: true})
		return
	}

	r.mu.Lock()
	if r.inflight[id] != res {
		// Cancelled while the lookup was running.
		r.mu.Unlock()
		return
	}
	res.timer = time.AfterFunc(r.interval, func() {
		r.mu.Lock()
		if r.inflight[id] != res {
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
		r.store.MarkMediaResolving(id, n+1)
		r.attempt(ctx, id, res, n+1)
	})
	r.mu.Unlock()
}

// finish applies a terminal outcome and notifies every subscriber exactly
// once. The store transition is applied before the in-flight entry is
// released: a racing Request either joins this resolution (and lands in the
// subscriber snapshot) or observes the terminal state and answers
// synchronously, never starts a second resolution.
func (r *Resolver) finish(id int64, res *resolution, out domain.MediaOutcome) {
	if out.Unavailable {
		r.mu.Lock()
		active := r.inflight[id] == res
		r.mu.Unlock()
		if !active {
			// Cancelled while the final lookup was running; the
			// post keeps its logical state.
			return
		}
		r.store.SetMediaUnavailable(id)
	} else {
		// A success is cached even when the resolution was cancelled
		// mid-lookup.
		r.store.SetMediaResolved(id, out.URL, out.Kind)
	}

	r.mu.Lock()
	owned := r.inflight[id] == res
	var subs []func(domain.MediaOutcome)
	if owned {
		if res.timer != nil {
			res.timer.Stop()
		}
		subs = res.subs
		res.subs = nil
		delete(r.inflight, id)
	}
	r.mu.Unlock()

	if !owned {
		return
	}

	if out.Unavailable {
		if r.recorder != nil {
			r.recorder.RecordMediaUnavailable()
		}
		r.logger.Info("media unavailable", "message_id", id, "attempts", r.maxAttempts)
	} else if r.recorder != nil {
		r.recorder.RecordMediaResolved()
	}

	for _, cb := range subs {
		cb(out)
	}
}
