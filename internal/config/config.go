// Package config loads the engine's configuration from environment
// variables with defaults matching the mirror backend's conventions.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// APIBase is the mirror backend's base URL for REST calls.
	APIBase string

	// PushURL is the websocket endpoint for push events. Derived from
	// APIBase when unset.
	PushURL string

	// ChannelID is the mirrored channel. Required.
	ChannelID int64

	// Port is the debug HTTP server port.
	Port int

	// PageSize is the backfill page size.
	PageSize int

	// Reconnect backoff parameters for the push channel.
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	// KeepaliveInterval is the push channel's ping cadence.
	KeepaliveInterval time.Duration

	// Media resolution polling parameters.
	MediaPollInterval  time.Duration
	MediaMaxAttempts   int
	MediaLookupsPerSec float64

	// DedupTTL bounds the push event dedup cache; DedupSweepAt is the
	// cache size past which expired entries are swept.
	DedupTTL     time.Duration
	DedupSweepAt int

	// Window geometry.
	Overscan             int
	EstimatedHeight      int
	EstimatedMediaHeight int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		APIBase:              "http://localhost:8081",
		Port:                 3000,
		PageSize:             20,
		MaxReconnectAttempts: 10,
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		KeepaliveInterval:    30 * time.Second,
		MediaPollInterval:    5 * time.Second,
		MediaMaxAttempts:     12,
		MediaLookupsPerSec:   5,
		DedupTTL:             5 * time.Second,
		DedupSweepAt:         256,
		Overscan:             5,
		EstimatedHeight:      220,
		EstimatedMediaHeight: 460,
	}

	if v := os.Getenv("MIRROR_API_BASE"); v != "" {
		cfg.APIBase = strings.TrimRight(v, "/")
	}

	ch := os.Getenv("MIRROR_CHANNEL_ID")
	if ch == "" {
		return nil, fmt.Errorf("MIRROR_CHANNEL_ID is required")
	}
	channelID, err := strconv.ParseInt(ch, 10, 64)
	if err != nil || channelID <= 0 {
		return nil, fmt.Errorf("invalid MIRROR_CHANNEL_ID %q", ch)
	}
	cfg.ChannelID = channelID

	cfg.PushURL = os.Getenv("MIRROR_PUSH_URL")
	if cfg.PushURL == "" {
		cfg.PushURL = derivePushURL(cfg.APIBase)
	}

	if err := overrideInt(&cfg.Port, "PORT"); err != nil {
		return nil, err
	}
	if err := overrideInt(&cfg.PageSize, "MIRROR_PAGE_SIZE"); err != nil {
		return nil, err
	}
	if err := overrideInt(&cfg.MaxReconnectAttempts, "MIRROR_MAX_RECONNECT_ATTEMPTS"); err != nil {
		return nil, err
	}
	if err := overrideDuration(&cfg.ReconnectBaseDelay, "MIRROR_RECONNECT_BASE_DELAY"); err != nil {
		return nil, err
	}
	if err := overrideDuration(&cfg.ReconnectMaxDelay, "MIRROR_RECONNECT_MAX_DELAY"); err != nil {
		return nil, err
	}
	if err := overrideDuration(&cfg.KeepaliveInterval, "MIRROR_KEEPALIVE_INTERVAL"); err != nil {
		return nil, err
	}
	if err := overrideDuration(&cfg.MediaPollInterval, "MIRROR_MEDIA_POLL_INTERVAL"); err != nil {
		return nil, err
	}
	if err := overrideInt(&cfg.MediaMaxAttempts, "MIRROR_MEDIA_MAX_ATTEMPTS"); err != nil {
		return nil, err
	}
	if err := overrideDuration(&cfg.DedupTTL, "MIRROR_DEDUP_TTL"); err != nil {
		return nil, err
	}
	if err := overrideInt(&cfg.Overscan, "MIRROR_OVERSCAN"); err != nil {
		return nil, err
	}
	if err := overrideInt(&cfg.EstimatedHeight, "MIRROR_ROW_HEIGHT"); err != nil {
		return nil, err
	}
	if err := overrideInt(&cfg.EstimatedMediaHeight, "MIRROR_MEDIA_ROW_HEIGHT"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// derivePushURL turns an http(s) API base into the matching ws(s) endpoint.
func derivePushURL(apiBase string) string {
	switch {
	case strings.HasPrefix(apiBase, "https://"):
		return "wss://" + strings.TrimPrefix(apiBase, "https://")
	case strings.HasPrefix(apiBase, "http://"):
		return "ws://" + strings.TrimPrefix(apiBase, "http://")
	default:
		return apiBase
	}
}

func overrideInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func overrideDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = parsed
	return nil
}
