// Package realtime keeps the feed store synchronized with the mirror
// backend's push channel: it ingests websocket frames, deduplicates
// redeliveries, and applies new/edit/delete events to the store strictly in
// arrival order through a serialized drain loop.
package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nekhebet/mirrorfeed/internal/domain"
)

// EventRecorder receives event-pipeline counters, for metrics.
type EventRecorder interface {
	RecordEventReceived(kind string)
	RecordEventDeduplicated()
	RecordEventDropped()
	RecordReconnect()
}

// Syncer applies push events to the feed store. Frames are pushed into a
// FIFO queue and drained by a loop that never runs twice concurrently: a
// drain request while one is active is a no-op, and the active loop picks up
// newly queued events before exiting. That guarantees events mutate the
// store in the exact order received even when delivery is asynchronous.
type Syncer struct {
	store     *domain.Store
	resolver  domain.MediaRequester
	channelID int64
	dedup     *dedupCache
	logger    *slog.Logger
	recorder  EventRecorder // may be nil

	mu       sync.Mutex
	queue    []event
	draining bool
}

// NewSyncer creates a syncer for the given channel. Events addressed to any
// other channel are discarded before dedup and dispatch.
func NewSyncer(store *domain.Store, resolver domain.MediaRequester, channelID int64, dedupTTL time.Duration, dedupSweepAt int, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:     store,
		resolver:  resolver,
		channelID: channelID,
		dedup:     newDedupCache(dedupTTL, dedupSweepAt),
		logger:    logger,
	}
}

// SetRecorder wires an optional metrics recorder.
func (s *Syncer) SetRecorder(rec EventRecorder) {
	s.recorder = rec
}

// HandleFrame parses one raw push frame and queues it for dispatch. A
// malformed frame is dropped; the stream continues with the next one.
func (s *Syncer) HandleFrame(raw []byte) {
	ev, err := parseEvent(raw)
	if err != nil {
		s.logger.Error("dropping malformed push frame", "error", err)
		if s.recorder != nil {
			s.recorder.RecordEventDropped()
		}
		return
	}

	if ev.control() {
		return
	}

	if ev.ChannelID != s.channelID {
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, *ev)
	s.mu.Unlock()

	s.drain()
}

// drain processes queued events in order. Only one drain loop runs at a
// time; re-entrant calls return immediately.
func (s *Syncer) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true

	for len(s.queue) > 0 {
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.dispatch(ev)

		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

func (s *Syncer) dispatch(ev event) {
	if s.recorder != nil {
		s.recorder.RecordEventReceived(ev.Type)
	}

	if s.dedup.duplicate(ev.ChannelID, ev.MessageID, ev.Type) {
		if s.recorder != nil {
			s.recorder.RecordEventDeduplicated()
		}
		return
	}

	switch ev.Type {
	case "new":
		s.handleNew(ev)
	case "edit":
		s.handleEdit(ev)
	case "delete":
		s.handleDelete(ev)
	default:
		s.logger.Warn("dropping event of unknown type", "type", ev.Type, "message_id", ev.MessageID)
		if s.recorder != nil {
			s.recorder.RecordEventDropped()
		}
	}
}

// handleNew constructs a post and inserts it at the top of the feed. The
// store's identity check makes a redelivered or backfill-raced "new" a no-op
// beyond what the dedup cache already filtered.
func (s *Syncer) handleNew(ev event) {
	if s.store.Has(ev.MessageID) {
		return
	}

	p := &domain.Post{
		ID:        ev.MessageID,
		ChannelID: ev.ChannelID,
		Date:      time.Now(),
		Views:     0,
	}
	if ev.Text != nil {
		p.Text = *ev.Text
	}
	if ev.Views != nil {
		p.Views = *ev.Views
	}
	if t, err := domain.ParseWireTime(ev.Date); err == nil {
		p.Date = t
	}

	switch {
	case ev.MediaURL != "":
		p.Media = domain.MediaState{
			Status: domain.MediaResolved,
			URL:    ev.MediaURL,
			Kind:   domain.InferMediaKind(ev.MediaType, ev.MediaURL),
		}
	case ev.MediaType != "":
		// Media exists but the URL is not known yet. Resolution starts
		// once the post enters the visible window.
		p.Media = domain.MediaState{
			Status: domain.MediaPending,
			Kind:   domain.InferMediaKind(ev.MediaType, ""),
		}
	}

	s.store.InsertAtTop(p)
}

func (s *Syncer) handleEdit(ev event) {
	u := domain.PostUpdate{
		Text:     ev.Text,
		EditDate: ev.EditDate,
		Views:    ev.Views,
	}
	if ev.MediaURL != "" {
		// An edit carries authoritative media data, bypassing the
		// resolver.
		u.MediaURL = &ev.MediaURL
		u.MediaKind = domain.InferMediaKind(ev.MediaType, ev.MediaURL)
	}
	s.store.Update(ev.MessageID, u)
}

func (s *Syncer) handleDelete(ev event) {
	if s.resolver != nil {
		s.resolver.Cancel(ev.MessageID)
	}
	s.store.Remove(ev.MessageID)
}
