package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nekhebet/mirrorfeed/internal/config"
	"github.com/nekhebet/mirrorfeed/internal/domain"
	"github.com/nekhebet/mirrorfeed/internal/httpserver"
	"github.com/nekhebet/mirrorfeed/internal/media"
	"github.com/nekhebet/mirrorfeed/internal/metrics"
	"github.com/nekhebet/mirrorfeed/internal/mirror"
	"github.com/nekhebet/mirrorfeed/internal/realtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	store := domain.NewStore()
	window := domain.NewWindow(store, domain.WindowConfig{
		EstimatedHeight:      cfg.EstimatedHeight,
		EstimatedMediaHeight: cfg.EstimatedMediaHeight,
		Overscan:             cfg.Overscan,
	})
	store.Subscribe(window)
	store.Subscribe(&sizeListener{store: store, collector: collector})

	client := mirror.NewClient(cfg.APIBase, cfg.ChannelID, cfg.MediaLookupsPerSec)

	resolver := media.NewResolver(store, client, cfg.MediaPollInterval, cfg.MediaMaxAttempts, logger)
	resolver.SetRecorder(collector)
	window.AttachResolver(resolver)

	pager := domain.NewPager(store, client, cfg.PageSize, logger)

	syncer := realtime.NewSyncer(store, resolver, cfg.ChannelID, cfg.DedupTTL, cfg.DedupSweepAt, logger)
	syncer.SetRecorder(collector)

	subscriber := realtime.NewSubscriber(realtime.SubscriberConfig{
		URL:          cfg.PushURL,
		BaseDelay:    cfg.ReconnectBaseDelay,
		MaxDelay:     cfg.ReconnectMaxDelay,
		MaxAttempts:  cfg.MaxReconnectAttempts,
		PingInterval: cfg.KeepaliveInterval,
	}, syncer, logger)
	subscriber.OnStateChange(func(st realtime.ConnState) {
		logger.Info("push connection state changed", "state", st.String())
	})

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Initial backfill before the push channel is consumed.
	inserted, err := pager.LoadNextPage(ctx)
	if err != nil {
		logger.Error("initial backfill failed", "error", err)
	} else {
		collector.RecordBackfillPage()
		logger.Info("initial backfill complete", "posts", inserted)
	}

	// Start the push subscriber in the background.
	go func() {
		err := subscriber.Run(ctx)
		if errors.Is(err, realtime.ErrReconnectExhausted) {
			logger.Error("push channel permanently disconnected")
		} else if err != nil && ctx.Err() == nil {
			logger.Error("push subscriber exited with error", "error", err)
		}
	}()

	// Start the debug HTTP server.
	server := httpserver.NewServer(cfg.Port, store, window, subscriber, registry, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("mirror feed client started",
		"channel_id", cfg.ChannelID,
		"api_base", cfg.APIBase,
		"push_url", cfg.PushURL,
		"port", cfg.Port,
	)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}

// sizeListener keeps the feed size gauge current.
type sizeListener struct {
	store     *domain.Store
	collector *metrics.Collector
}

func (l *sizeListener) PostsChanged() {
	l.collector.SetFeedSize(l.store.Len())
}

func (l *sizeListener) PostUpdated(int64) {}
