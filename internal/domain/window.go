package domain

import (
	"context"
	"sort"
	"sync"
)

// WindowConfig holds the geometry parameters for the virtual window.
type WindowConfig struct {
	// EstimatedHeight is the default row height for posts without a
	// measured height.
	EstimatedHeight int

	// EstimatedMediaHeight is the default used for posts known to carry
	// video media.
	EstimatedMediaHeight int

	// Overscan is the number of extra rows materialized on both sides of
	// the visible range.
	Overscan int
}

// Window maps a scroll offset to the contiguous index range of the store's
// ordered sequence that must be materialized. It keeps a cumulative-offset
// array parallel to the order, rebuilt lazily whenever order, membership, or
// a height measurement changes.
//
// Window implements FeedListener so it can be subscribed to the store it
// indexes.
type Window struct {
	store    *Store
	cfg      WindowConfig
	resolver MediaRequester

	mu      sync.Mutex
	heights map[int64]int // measured heights by post id
	ids     []int64       // order snapshot the offsets were built from
	offsets []int         // len(ids)+1, last entry is the total height
	stale   bool
	visible map[int64]struct{}
}

// NewWindow creates a window over the given store.
func NewWindow(store *Store, cfg WindowConfig) *Window {
	return &Window{
		store:   store,
		cfg:     cfg,
		heights: make(map[int64]int),
		offsets: []int{0},
		visible: make(map[int64]struct{}),
		stale:   true,
	}
}

// AttachResolver wires the resolver used for viewport-driven media
// resolution. Without one, SetViewport only tracks visibility.
func (w *Window) AttachResolver(r MediaRequester) {
	w.mu.Lock()
	w.resolver = r
	w.mu.Unlock()
}

// PostsChanged implements FeedListener.
func (w *Window) PostsChanged() {
	w.mu.Lock()
	w.stale = true
	w.mu.Unlock()
}

// PostUpdated implements FeedListener. A media transition can change the
// height estimate, so the offsets are marked stale.
func (w *Window) PostUpdated(id int64) {
	w.mu.Lock()
	if _, measured := w.heights[id]; !measured {
		w.stale = true
	}
	w.mu.Unlock()
}

// OnHeightMeasured records the rendered height for a post. If it differs
// from what the offsets were built with, they are marked stale.
func (w *Window) OnHeightMeasured(id int64, height int) {
	if height <= 0 {
		return
	}
	w.mu.Lock()
	if w.heights[id] != height {
		w.heights[id] = height
		w.stale = true
	}
	w.mu.Unlock()
}

// Rebuild recomputes the cumulative-offset array from the store's current
// order. O(n) in sequence length; it only runs when something structural or
// a measurement changed.
func (w *Window) Rebuild() {
	ids := w.store.OrderedIDs()

	w.mu.Lock()
	w.rebuildLocked(ids)
	w.mu.Unlock()
}

func (w *Window) rebuildLocked(ids []int64) {
	offsets := make([]int, len(ids)+1)
	for i, id := range ids {
		offsets[i+1] = offsets[i] + w.heightForLocked(id)
	}
	w.ids = ids
	w.offsets = offsets
	w.stale = false
}

func (w *Window) heightForLocked(id int64) int {
	if h, ok := w.heights[id]; ok {
		return h
	}
	if p, ok := w.store.Get(id); ok && p.Media.Status != MediaNone && p.Media.Kind == MediaKindVideo {
		return w.cfg.EstimatedMediaHeight
	}
	return w.cfg.EstimatedHeight
}

func (w *Window) ensureFreshLocked() {
	if w.stale {
		w.rebuildLocked(w.store.OrderedIDs())
	}
}

// TotalHeight returns the cumulative height of the whole sequence.
func (w *Window) TotalHeight() int {
	w.mu.Lock()
	w.ensureFreshLocked()
	h := w.offsets[len(w.offsets)-1]
	w.mu.Unlock()
	return h
}

// Locate returns the anchor index: the last index whose cumulative offset is
// at or before scrollOffset.
func (w *Window) Locate(scrollOffset int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensureFreshLocked()
	return w.locateLocked(scrollOffset)
}

func (w *Window) locateLocked(scrollOffset int) int {
	n := len(w.ids)
	if n == 0 {
		return 0
	}
	// First index whose offset exceeds scrollOffset, minus one.
	i := sort.Search(n+1, func(i int) bool { return w.offsets[i] > scrollOffset })
	i--
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// ComputeRange returns the half-open index range [start, end) that covers
// the viewport starting at scrollOffset, expanded by the overscan margin on
// both sides and clamped to [0, size).
func (w *Window) ComputeRange(scrollOffset, viewportHeight int) (start, end int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.computeRangeLocked(scrollOffset, viewportHeight)
}

func (w *Window) computeRangeLocked(scrollOffset, viewportHeight int) (start, end int) {
	w.ensureFreshLocked()

	n := len(w.ids)
	if n == 0 {
		return 0, 0
	}

	anchor := w.locateLocked(scrollOffset)
	bottom := scrollOffset + viewportHeight

	end = anchor + 1
	for end < n && w.offsets[end] < bottom {
		end++
	}

	start = anchor - w.cfg.Overscan
	if start < 0 {
		start = 0
	}
	end += w.cfg.Overscan
	if end > n {
		end = n
	}
	return start, end
}

// SetViewport computes the range for the given scroll position, updates the
// visibility set, requests media resolution for posts entering the range
// whose media is still unresolved, and cancels in-flight resolution for
// posts leaving it. Returns the computed range.
func (w *Window) SetViewport(ctx context.Context, scrollOffset, viewportHeight int) (start, end int) {
	w.mu.Lock()
	start, end = w.computeRangeLocked(scrollOffset, viewportHeight)

	next := make(map[int64]struct{}, end-start)
	var entering, leaving []int64
	for _, id := range w.ids[start:end] {
		next[id] = struct{}{}
		if _, ok := w.visible[id]; !ok {
			entering = append(entering, id)
		}
	}
	for id := range w.visible {
		if _, ok := next[id]; !ok {
			leaving = append(leaving, id)
		}
	}
	w.visible = next
	resolver := w.resolver
	w.mu.Unlock()

	if resolver == nil {
		return start, end
	}
	for _, id := range entering {
		if p, ok := w.store.Get(id); ok && !p.Media.Status.Terminal() {
			resolver.Request(ctx, id, nil)
		}
	}
	for _, id := range leaving {
		resolver.Cancel(id)
	}
	return start, end
}

// VisibleIDs returns the ids currently inside the computed range.
func (w *Window) VisibleIDs() []int64 {
	w.mu.Lock()
	ids := make([]int64, 0, len(w.visible))
	for id := range w.visible {
		ids = append(ids, id)
	}
	w.mu.Unlock()
	return ids
}
