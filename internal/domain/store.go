package domain

import "sync"

// PostUpdate is a partial post mutation. Nil fields are left untouched.
type PostUpdate struct {
	Text     *string
	EditDate *string // RFC3339; applied only when it parses
	Views    *int

	// MediaURL, when non-nil, is authoritative: the post's media state is
	// forced directly to MediaResolved, bypassing the resolver.
	MediaURL  *string
	MediaKind MediaKind
}

// Store is the single source of truth for post identity, order, and
// membership. The ordered sequence is newest first. All mutations are atomic
// under an internal lock; listener notifications run after the lock is
// released, so mutation methods may be re-entered from listener callbacks.
type Store struct {
	mu    sync.Mutex
	posts map[int64]*Post
	order []int64

	lmu       sync.RWMutex
	listeners []FeedListener
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		posts: make(map[int64]*Post),
	}
}

// Subscribe registers a listener for structural and per-post changes.
func (s *Store) Subscribe(l FeedListener) {
	s.lmu.Lock()
	s.listeners = append(s.listeners, l)
	s.lmu.Unlock()
}

func (s *Store) notifyStructural() {
	s.lmu.RLock()
	ls := make([]FeedListener, len(s.listeners))
	copy(ls, s.listeners)
	s.lmu.RUnlock()
	for _, l := range ls {
		l.PostsChanged()
	}
}

func (s *Store) notifyUpdated(id int64) {
	s.lmu.RLock()
	ls := make([]FeedListener, len(s.listeners))
	copy(ls, s.listeners)
	s.lmu.RUnlock()
	for _, l := range ls {
		l.PostUpdated(id)
	}
}

// Has reports whether a post with the given id is present.
func (s *Store) Has(id int64) bool {
	s.mu.Lock()
	_, ok := s.posts[id]
	s.mu.Unlock()
	return ok
}

// Get returns a copy of the post, or false if absent.
func (s *Store) Get(id int64) (Post, bool) {
	s.mu.Lock()
	p, ok := s.posts[id]
	if !ok {
		s.mu.Unlock()
		return Post{}, false
	}
	cp := *p
	s.mu.Unlock()
	return cp, true
}

// Len returns the number of posts.
func (s *Store) Len() int {
	s.mu.Lock()
	n := len(s.order)
	s.mu.Unlock()
	return n
}

// OrderedIDs returns a copy of the display order, newest first.
func (s *Store) OrderedIDs() []int64 {
	s.mu.Lock()
	ids := make([]int64, len(s.order))
	copy(ids, s.order)
	s.mu.Unlock()
	return ids
}

// InsertAtTop inserts a post at the head of the sequence. It is the dedup
// boundary for real-time "new" events: a post whose id is already present is
// silently ignored. Returns whether the post was inserted.
func (s *Store) InsertAtTop(p *Post) bool {
	s.mu.Lock()
	if _, ok := s.posts[p.ID]; ok {
		s.mu.Unlock()
		return false
	}
	cp := *p
	s.posts[p.ID] = &cp
	s.order = append([]int64{p.ID}, s.order...)
	s.mu.Unlock()

	s.notifyStructural()
	return true
}

// AppendBackfill appends the subsequence of posts not yet present, preserving
// their relative order, and returns the count actually inserted. Posts that
// arrived earlier through the push channel are skipped.
func (s *Store) AppendBackfill(posts []*Post) int {
	s.mu.Lock()
	inserted := 0
	for _, p := range posts {
		if _, ok := s.posts[p.ID]; ok {
			continue
		}
		cp := *p
		s.posts[p.ID] = &cp
		s.order = append(s.order, p.ID)
		inserted++
	}
	s.mu.Unlock()

	if inserted > 0 {
		s.notifyStructural()
	}
	return inserted
}

// Update merges the given fields into an existing post. It is a no-op for an
// unknown id. Returns whether any field actually changed.
func (s *Store) Update(id int64, u PostUpdate) bool {
	s.mu.Lock()
	p, ok := s.posts[id]
	if !ok {
		s.mu.Unlock()
		return false
	}

	changed := false
	if u.Text != nil && p.Text != *u.Text {
		p.Text = *u.Text
		changed = true
	}
	if u.EditDate != nil {
		if t, err := ParseWireTime(*u.EditDate); err == nil && !t.Equal(p.EditDate) {
			p.EditDate = t
			changed = true
		}
		if !p.Edited {
			p.Edited = true
			changed = true
		}
	}
	if u.Views != nil && p.Views != *u.Views {
		p.Views = *u.Views
		changed = true
	}
	if u.MediaURL != nil && *u.MediaURL != "" {
		kind := u.MediaKind
		if kind == "" {
			kind = InferMediaKind("", *u.MediaURL)
		}
		if p.Media.Status != MediaResolved || p.Media.URL != *u.MediaURL {
			p.Media = MediaState{Status: MediaResolved, URL: *u.MediaURL, Kind: kind}
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.notifyUpdated(id)
	}
	return changed
}

// Remove deletes a post from both the map and the sequence; no-op if absent.
// Returns whether a post was removed.
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	if _, ok := s.posts[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.posts, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notifyStructural()
	return true
}

// MarkMediaResolving records that a resolution attempt is in flight. It
// refuses to touch terminal states and never lets the attempt counter
// decrease. Returns whether the transition was applied.
func (s *Store) MarkMediaResolving(id int64, attempts int) bool {
	s.mu.Lock()
	p, ok := s.posts[id]
	if !ok || p.Media.Status.Terminal() {
		s.mu.Unlock()
		return false
	}
	if p.Media.Status == MediaResolving && attempts < p.Media.Attempts {
		attempts = p.Media.Attempts
	}
	p.Media.Status = MediaResolving
	p.Media.Attempts = attempts
	s.mu.Unlock()
	return true
}

// SetMediaResolved applies a successful resolution; terminal, no-op if absent.
func (s *Store) SetMediaResolved(id int64, url string, kind MediaKind) {
	s.mu.Lock()
	p, ok := s.posts[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	p.Media = MediaState{Status: MediaResolved, URL: url, Kind: kind}
	s.mu.Unlock()

	s.notifyUpdated(id)
}

// SetMediaUnavailable marks media as permanently unavailable; terminal. An
// already resolved post keeps its URL.
func (s *Store) SetMediaUnavailable(id int64) {
	s.mu.Lock()
	p, ok := s.posts[id]
	if !ok || p.Media.Status == MediaResolved {
		s.mu.Unlock()
		return
	}
	p.Media.Status = MediaUnavailable
	s.mu.Unlock()

	s.notifyUpdated(id)
}
