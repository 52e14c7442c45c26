// Package httpserver exposes the engine's operational endpoints: health,
// Prometheus metrics, and a JSON snapshot of the feed for inspection.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nekhebet/mirrorfeed/internal/domain"
	"github.com/nekhebet/mirrorfeed/internal/realtime"
)

// Server serves the engine's debug HTTP endpoints.
type Server struct {
	store      *domain.Store
	window     *domain.Window
	subscriber *realtime.Subscriber
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates the debug server on the given port.
func NewServer(port int, store *domain.Store, window *domain.Window, subscriber *realtime.Subscriber, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{
		store:      store,
		window:     window,
		subscriber: subscriber,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /feed", s.handleFeed)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"connection": s.subscriber.State().String(),
	})
}

// handleFeed returns the ordered posts currently materialized by the window
// for the requested scroll position, defaulting to the top of the feed.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	scroll := 0
	if v := r.URL.Query().Get("scroll"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "scroll must be a non-negative integer")
			return
		}
		scroll = parsed
	}
	viewport := 900
	if v := r.URL.Query().Get("viewport"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "viewport must be a positive integer")
			return
		}
		viewport = parsed
	}

	start, end := s.window.ComputeRange(scroll, viewport)
	ids := s.store.OrderedIDs()
	// The store may have changed between the two calls.
	if end > len(ids) {
		end = len(ids)
	}
	if start > end {
		start = end
	}

	type postView struct {
		ID       int64  `json:"id"`
		Text     string `json:"text"`
		Date     string `json:"date"`
		Views    int    `json:"views"`
		Edited   bool   `json:"edited"`
		Media    string `json:"media"`
		MediaURL string `json:"media_url,omitempty"`
	}

	posts := make([]postView, 0, end-start)
	for _, id := range ids[start:end] {
		p, ok := s.store.Get(id)
		if !ok {
			continue
		}
		posts = append(posts, postView{
			ID:       p.ID,
			Text:     p.Text,
			Date:     p.Date.Format(time.RFC3339),
			Views:    p.Views,
			Edited:   p.Edited,
			Media:    p.Media.Status.String(),
			MediaURL: p.Media.URL,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"size":         len(ids),
		"range_start":  start,
		"range_end":    end,
		"total_height": s.window.TotalHeight(),
		"posts":        posts,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
