package domain

import (
	"context"
	"sync"
	"testing"
)

func windowFixture(t *testing.T, n int) (*Store, *Window) {
	t.Helper()
	s := NewStore()
	posts := make([]*Post, 0, n)
	for i := n; i >= 1; i-- {
		posts = append(posts, &Post{ID: int64(i)})
	}
	s.AppendBackfill(posts)

	w := NewWindow(s, WindowConfig{
		EstimatedHeight:      100,
		EstimatedMediaHeight: 300,
		Overscan:             3,
	})
	s.Subscribe(w)
	return s, w
}

func TestLocateFindsAnchorIndex(t *testing.T) {
	_, w := windowFixture(t, 10) // 10 rows of height 100

	tests := []struct {
		scroll int
		want   int
	}{
		{0, 0},
		{99, 0},
		{100, 1},
		{450, 4},
		{999, 9},
		{5000, 9}, // past the end clamps to the last index
	}
	for _, tt := range tests {
		if got := w.Locate(tt.scroll); got != tt.want {
			t.Errorf("Locate(%d) = %d, want %d", tt.scroll, got, tt.want)
		}
	}
}

func TestComputeRangeCoversViewportWithOverscan(t *testing.T) {
	_, w := windowFixture(t, 500)

	start, end := w.ComputeRange(10_000, 800) // rows 100..107 visible

	if start > 100-3 {
		t.Errorf("start = %d, want at most %d", start, 100-3)
	}
	if end < 108+3 {
		t.Errorf("end = %d, want at least %d", end, 108+3)
	}
	if start < 0 || end > 500 {
		t.Fatalf("range [%d, %d) outside [0, 500)", start, end)
	}

	// The materialized rows must span the viewport.
	covered := (end - start) * 100
	if covered < 800 {
		t.Fatalf("range covers %dpx, viewport needs 800px", covered)
	}
}

func TestComputeRangeClampsAtBothEnds(t *testing.T) {
	_, w := windowFixture(t, 10)

	start, end := w.ComputeRange(0, 800)
	if start != 0 {
		t.Errorf("start = %d, want 0", start)
	}
	if end > 10 {
		t.Errorf("end = %d, want at most 10", end)
	}

	start, end = w.ComputeRange(999999, 800)
	if start < 0 || end != 10 {
		t.Errorf("range [%d, %d), want end clamped to 10", start, end)
	}
}

func TestComputeRangeEmptyStore(t *testing.T) {
	s := NewStore()
	w := NewWindow(s, WindowConfig{EstimatedHeight: 100, EstimatedMediaHeight: 300, Overscan: 3})

	if start, end := w.ComputeRange(0, 800); start != 0 || end != 0 {
		t.Fatalf("range = [%d, %d), want [0, 0)", start, end)
	}
}

func TestMeasuredHeightReplacesEstimate(t *testing.T) {
	_, w := windowFixture(t, 5)

	if got := w.TotalHeight(); got != 500 {
		t.Fatalf("TotalHeight() = %d, want 500", got)
	}

	w.OnHeightMeasured(5, 250) // top row grows by 150
	if got := w.TotalHeight(); got != 650 {
		t.Fatalf("TotalHeight() after measurement = %d, want 650", got)
	}

	// Anchor positions shift with the corrected height.
	if got := w.Locate(260); got != 1 {
		t.Fatalf("Locate(260) = %d, want 1", got)
	}
}

func TestVideoPostsUseLargerEstimate(t *testing.T) {
	s := NewStore()
	s.AppendBackfill([]*Post{
		{ID: 2, Media: MediaState{Status: MediaPending, Kind: MediaKindVideo}},
		{ID: 1},
	})
	w := NewWindow(s, WindowConfig{EstimatedHeight: 100, EstimatedMediaHeight: 300, Overscan: 0})
	s.Subscribe(w)

	if got := w.TotalHeight(); got != 400 {
		t.Fatalf("TotalHeight() = %d, want 400", got)
	}
}

func TestStructuralChangeInvalidatesOffsets(t *testing.T) {
	s, w := windowFixture(t, 3)

	if got := w.TotalHeight(); got != 300 {
		t.Fatalf("TotalHeight() = %d, want 300", got)
	}

	s.InsertAtTop(&Post{ID: 100})
	if got := w.TotalHeight(); got != 400 {
		t.Fatalf("TotalHeight() after insert = %d, want 400", got)
	}

	s.Remove(100)
	s.Remove(1)
	if got := w.TotalHeight(); got != 200 {
		t.Fatalf("TotalHeight() after removals = %d, want 200", got)
	}
}

type fakeRequester struct {
	mu        sync.Mutex
	requested []int64
	cancelled []int64
}

func (f *fakeRequester) Request(_ context.Context, id int64, _ func(MediaOutcome)) {
	f.mu.Lock()
	f.requested = append(f.requested, id)
	f.mu.Unlock()
}

func (f *fakeRequester) Cancel(id int64) {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, id)
	f.mu.Unlock()
}

func TestSetViewportDrivesResolution(t *testing.T) {
	s := NewStore()
	posts := make([]*Post, 0, 20)
	for i := 20; i >= 1; i-- {
		posts = append(posts, &Post{
			ID:    int64(i),
			Media: MediaState{Status: MediaPending, Kind: MediaKindPhoto},
		})
	}
	s.AppendBackfill(posts)

	w := NewWindow(s, WindowConfig{EstimatedHeight: 100, EstimatedMediaHeight: 300, Overscan: 0})
	s.Subscribe(w)
	req := &fakeRequester{}
	w.AttachResolver(req)

	ctx := context.Background()

	// Top of the feed: the first rows become visible and request media.
	w.SetViewport(ctx, 0, 300)
	req.mu.Lock()
	firstCount := len(req.requested)
	req.mu.Unlock()
	if firstCount == 0 {
		t.Fatal("no media requested for visible posts")
	}

	// Scroll far down: the original rows leave and are cancelled.
	w.SetViewport(ctx, 1500, 300)
	req.mu.Lock()
	cancelled := len(req.cancelled)
	req.mu.Unlock()
	if cancelled != firstCount {
		t.Fatalf("cancelled %d resolutions, want %d", cancelled, firstCount)
	}
}

func TestSetViewportSkipsTerminalMedia(t *testing.T) {
	s := NewStore()
	s.AppendBackfill([]*Post{
		{ID: 3, Media: MediaState{Status: MediaResolved, URL: "/m/a.jpg", Kind: MediaKindPhoto}},
		{ID: 2, Media: MediaState{Status: MediaUnavailable}},
		{ID: 1},
	})
	w := NewWindow(s, WindowConfig{EstimatedHeight: 100, EstimatedMediaHeight: 300, Overscan: 1})
	s.Subscribe(w)
	req := &fakeRequester{}
	w.AttachResolver(req)

	w.SetViewport(context.Background(), 0, 300)

	req.mu.Lock()
	defer req.mu.Unlock()
	if len(req.requested) != 0 {
		t.Fatalf("requested %v, want no requests for terminal media states", req.requested)
	}
}
