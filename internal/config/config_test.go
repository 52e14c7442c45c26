package config

import (
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so tests see only what they set.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MIRROR_API_BASE", "MIRROR_PUSH_URL", "MIRROR_CHANNEL_ID", "PORT",
		"MIRROR_PAGE_SIZE", "MIRROR_MAX_RECONNECT_ATTEMPTS",
		"MIRROR_RECONNECT_BASE_DELAY", "MIRROR_RECONNECT_MAX_DELAY",
		"MIRROR_KEEPALIVE_INTERVAL", "MIRROR_MEDIA_POLL_INTERVAL",
		"MIRROR_MEDIA_MAX_ATTEMPTS", "MIRROR_DEDUP_TTL", "MIRROR_OVERSCAN",
		"MIRROR_ROW_HEIGHT", "MIRROR_MEDIA_ROW_HEIGHT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIRROR_CHANNEL_ID", "42")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ChannelID != 42 {
		t.Errorf("ChannelID = %d", cfg.ChannelID)
	}
	if cfg.APIBase != "http://localhost:8081" {
		t.Errorf("APIBase = %q", cfg.APIBase)
	}
	if cfg.PushURL != "ws://localhost:8081" {
		t.Errorf("PushURL = %q", cfg.PushURL)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.PageSize != 20 {
		t.Errorf("PageSize = %d", cfg.PageSize)
	}
	if cfg.MaxReconnectAttempts != 10 {
		t.Errorf("MaxReconnectAttempts = %d", cfg.MaxReconnectAttempts)
	}
	if cfg.ReconnectBaseDelay != time.Second || cfg.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("reconnect delays = %v / %v", cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay)
	}
	if cfg.MediaPollInterval != 5*time.Second || cfg.MediaMaxAttempts != 12 {
		t.Errorf("media polling = %v / %d", cfg.MediaPollInterval, cfg.MediaMaxAttempts)
	}
	if cfg.DedupTTL != 5*time.Second || cfg.DedupSweepAt != 256 {
		t.Errorf("dedup = %v / %d", cfg.DedupTTL, cfg.DedupSweepAt)
	}
}

func TestLoadRequiresChannelID(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error without MIRROR_CHANNEL_ID")
	}
}

func TestLoadRejectsBadChannelID(t *testing.T) {
	for _, bad := range []string{"abc", "0", "-7"} {
		t.Run(bad, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("MIRROR_CHANNEL_ID", bad)
			if _, err := Load(); err == nil {
				t.Fatalf("Load accepted channel id %q", bad)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIRROR_CHANNEL_ID", "42")
	t.Setenv("MIRROR_API_BASE", "https://mirror.example.com/")
	t.Setenv("PORT", "8080")
	t.Setenv("MIRROR_PAGE_SIZE", "50")
	t.Setenv("MIRROR_RECONNECT_BASE_DELAY", "250ms")
	t.Setenv("MIRROR_MEDIA_MAX_ATTEMPTS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.APIBase != "https://mirror.example.com" {
		t.Errorf("APIBase = %q, want trailing slash trimmed", cfg.APIBase)
	}
	if cfg.PushURL != "wss://mirror.example.com" {
		t.Errorf("PushURL = %q", cfg.PushURL)
	}
	if cfg.Port != 8080 || cfg.PageSize != 50 {
		t.Errorf("Port/PageSize = %d/%d", cfg.Port, cfg.PageSize)
	}
	if cfg.ReconnectBaseDelay != 250*time.Millisecond {
		t.Errorf("ReconnectBaseDelay = %v", cfg.ReconnectBaseDelay)
	}
	if cfg.MediaMaxAttempts != 3 {
		t.Errorf("MediaMaxAttempts = %d", cfg.MediaMaxAttempts)
	}
}

func TestLoadExplicitPushURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIRROR_CHANNEL_ID", "42")
	t.Setenv("MIRROR_PUSH_URL", "wss://push.example.com/feed")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PushURL != "wss://push.example.com/feed" {
		t.Errorf("PushURL = %q", cfg.PushURL)
	}
}

func TestLoadRejectsMalformedOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIRROR_CHANNEL_ID", "42")
	t.Setenv("MIRROR_PAGE_SIZE", "twenty")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric MIRROR_PAGE_SIZE")
	}

	t.Setenv("MIRROR_PAGE_SIZE", "")
	t.Setenv("MIRROR_DEDUP_TTL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed MIRROR_DEDUP_TTL")
	}
}

func TestDerivePushURL(t *testing.T) {
	tests := []struct {
		base, want string
	}{
		{"http://localhost:8081", "ws://localhost:8081"},
		{"https://mirror.example.com", "wss://mirror.example.com"},
		{"ws://already-ws", "ws://already-ws"},
	}
	for _, tt := range tests {
		if got := derivePushURL(tt.base); got != tt.want {
			t.Errorf("derivePushURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
