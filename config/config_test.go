package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHAT_MODE", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("SOURCE_POLL_MIN", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Mode != ModeLive {
		t.Errorf("default Mode = %q, want %q", cfg.Mode, ModeLive)
	}
	if cfg.Replay() {
		t.Errorf("Replay() = true for default mode")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("default HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.SourcePollMin != time.Second {
		t.Errorf("default SourcePollMin = %v, want 1s", cfg.SourcePollMin)
	}
	if cfg.InnerTubeEndpoint == "" {
		t.Errorf("expected default InnerTube endpoint, got empty")
	}
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	t.Setenv("CHAT_MODE", "vod")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for invalid CHAT_MODE")
	}
}

func TestLoadRejectsInvalidPollMin(t *testing.T) {
	t.Setenv("CHAT_MODE", "")
	t.Setenv("SOURCE_POLL_MIN", "soon")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for invalid SOURCE_POLL_MIN")
	}
}

func TestReplayMode(t *testing.T) {
	t.Setenv("CHAT_MODE", ModeReplay)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Replay() {
		t.Errorf("Replay() = false for CHAT_MODE=replay")
	}
}

func TestValidateTwitchReady(t *testing.T) {
	t.Setenv("CHAT_MODE", "")
	t.Setenv("TWITCH_CHANNEL", "chan")
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	cfg, _ := Load()
	if err := cfg.ValidateTwitchReady(); err != nil {
		t.Errorf("expected valid twitch config, got %v", err)
	}
	t.Setenv("TWITCH_CHANNEL", "")
	cfg, _ = Load()
	if err := cfg.ValidateTwitchReady(); err == nil {
		t.Errorf("expected error when missing twitch envs")
	}
}

func TestValidateScraperReady(t *testing.T) {
	t.Setenv("CHAT_MODE", "")
	t.Setenv("INNERTUBE_API_KEY", "key")
	t.Setenv("CHAT_CONTINUATION", "cont")
	cfg, _ := Load()
	if err := cfg.ValidateScraperReady(); err != nil {
		t.Errorf("expected valid scraper config, got %v", err)
	}
	t.Setenv("CHAT_CONTINUATION", "")
	cfg, _ = Load()
	if err := cfg.ValidateScraperReady(); err == nil {
		t.Errorf("expected error when missing scraper envs")
	}
}

func TestValidateYouTubeReady(t *testing.T) {
	t.Setenv("CHAT_MODE", "")
	t.Setenv("YT_CLIENT_ID", "id")
	t.Setenv("YT_CLIENT_SECRET", "secret")
	t.Setenv("YT_REFRESH_TOKEN", "refresh")
	t.Setenv("YT_LIVE_CHAT_ID", "chat")
	cfg, _ := Load()
	if err := cfg.ValidateYouTubeReady(); err != nil {
		t.Errorf("expected valid youtube config, got %v", err)
	}
	t.Setenv("YT_REFRESH_TOKEN", "")
	cfg, _ = Load()
	if err := cfg.ValidateYouTubeReady(); err == nil {
		t.Errorf("expected error when missing youtube envs")
	}
}
