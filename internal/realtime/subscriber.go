package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrReconnectExhausted is returned by Run once the reconnect attempt budget
// is spent. The client then stays disconnected until restarted externally.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// ConnState is the push connection's lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// String returns a short label for logging.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// SubscriberConfig holds connection and retry parameters.
type SubscriberConfig struct {
	// URL is the websocket endpoint of the push channel.
	URL string

	// BaseDelay seeds the exponential reconnect backoff; the n-th
	// reconnect waits BaseDelay*2^n, clamped at MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// MaxAttempts bounds consecutive reconnects. The counter resets on
	// every successful connection.
	MaxAttempts int

	// PingInterval is the keepalive cadence while connected.
	PingInterval time.Duration
}

// Subscriber maintains the websocket connection to the push channel and
// feeds received frames to the Syncer. It reconnects with exponential
// backoff on failure.
type Subscriber struct {
	cfg     SubscriberConfig
	syncer  *Syncer
	logger  *slog.Logger
	onState func(ConnState) // may be nil

	mu       sync.Mutex
	state    ConnState
	attempts int
}

// NewSubscriber creates a subscriber feeding the given syncer.
func NewSubscriber(cfg SubscriberConfig, syncer *Syncer, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		cfg:    cfg,
		syncer: syncer,
		logger: logger,
	}
}

// OnStateChange registers a callback invoked on every connection state
// transition. Must be called before Run.
func (s *Subscriber) OnStateChange(fn func(ConnState)) {
	s.onState = fn
}

// State returns the current connection state.
func (s *Subscriber) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Subscriber) setState(st ConnState) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed && s.onState != nil {
		s.onState(st)
	}
}

// Run connects to the push channel and processes frames until the context
// is cancelled or the reconnect budget is exhausted.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		s.setState(StateConnecting)
		err := s.connect(ctx)
		s.setState(StateDisconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.mu.Lock()
		s.attempts++
		attempt := s.attempts
		s.mu.Unlock()

		if attempt > s.cfg.MaxAttempts {
			s.logger.Error("giving up on push channel", "attempts", attempt-1, "error", err)
			return ErrReconnectExhausted
		}

		delay := backoffDelay(s.cfg.BaseDelay, s.cfg.MaxDelay, attempt)
		s.logger.Warn("push connection lost, reconnecting",
			"error", err,
			"attempt", attempt,
			"delay", delay,
		)
		if s.syncer.recorder != nil {
			s.syncer.recorder.RecordReconnect()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// connect dials the push endpoint and reads frames until the connection
// fails or the context is cancelled.
func (s *Subscriber) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial push channel: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
	s.setState(StateConnected)
	s.logger.Info("connected to push channel", "url", s.cfg.URL)

	done := make(chan struct{})
	defer close(done)

	// Keepalive pings. The ping loop is the connection's only writer; the
	// read loop below is its only reader.
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read push frame: %w", err)
		}
		s.syncer.HandleFrame(message)
	}
}

// backoffDelay returns base*2^attempt clamped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
