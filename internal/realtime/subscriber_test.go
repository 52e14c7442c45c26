package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBackoffDelaySequence(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s clamps at the cap
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(base, max, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func pushServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSubscriberAppliesReceivedEvents(t *testing.T) {
	srv := pushServer(t, func(conn *websocket.Conn) {
		msg := `{"type":"new","channel_id":42,"message_id":1,"text":"live"}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	syncer, store, _ := newTestSyncer()
	sub := NewSubscriber(SubscriberConfig{
		URL:          wsURL(srv),
		BaseDelay:    time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		MaxAttempts:  3,
		PingInterval: 10 * time.Millisecond,
	}, syncer, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	waitFor(t, func() bool { return store.Has(1) }, "event never reached the store")
	if sub.State() != StateConnected {
		t.Fatalf("state = %v, want connected", sub.State())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestAttemptCounterResetsOnConnect(t *testing.T) {
	srv := pushServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	syncer, _, _ := newTestSyncer()
	sub := NewSubscriber(SubscriberConfig{
		URL:          wsURL(srv),
		BaseDelay:    time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		MaxAttempts:  3,
		PingInterval: 10 * time.Millisecond,
	}, syncer, discardLogger())
	sub.attempts = 2 // as if earlier reconnects had failed

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	waitFor(t, func() bool { return sub.State() == StateConnected }, "never connected")
	sub.mu.Lock()
	attempts := sub.attempts
	sub.mu.Unlock()
	if attempts != 0 {
		t.Fatalf("attempts = %d, want 0 after a successful connect", attempts)
	}
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	syncer, _, _ := newTestSyncer()
	sub := NewSubscriber(SubscriberConfig{
		URL:          "ws://127.0.0.1:1", // nothing listens here
		BaseDelay:    time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		MaxAttempts:  2,
		PingInterval: time.Second,
	}, syncer, discardLogger())

	var states []ConnState
	sub.OnStateChange(func(st ConnState) { states = append(states, st) })

	err := sub.Run(context.Background())
	if !errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("Run returned %v, want ErrReconnectExhausted", err)
	}
	if sub.State() != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", sub.State())
	}
	for _, st := range states {
		if st == StateConnected {
			t.Fatal("never expected a connected transition")
		}
	}
}
