// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (e.g., the Twitch or YouTube sources), use the Validate helpers.
package config

import (
	"fmt"
	"os"
	"time"
)

// Modes the sync engine can run in for its whole lifetime.
const (
	ModeLive   = "live"
	ModeReplay = "replay"
)

type Config struct {
	// Mode selects live or replay synchronization.
	Mode string

	// Video / chat identity on the platform
	VideoID          string
	ChatContinuation string

	// InnerTube scraper source
	InnerTubeAPIKey   string
	InnerTubeEndpoint string
	SourcePollMin     time.Duration

	// HTTP
	HTTPAddr string

	// Twitch IRC source
	TwitchChannel     string
	TwitchBotUsername string
	TwitchOAuthToken  string

	// YouTube Data API source
	YTClientID     string
	YTClientSecret string
	YTRefreshToken string
	YTLiveChatID   string
	YTScopes       string
}

// Load reads environment variables and applies defaults. It doesn't fail if
// source credentials are missing; use the Validate helpers when you require a
// particular source. Missing optional variables disable features.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Mode = os.Getenv("CHAT_MODE")
	if cfg.Mode == "" {
		cfg.Mode = ModeLive
	}
	if cfg.Mode != ModeLive && cfg.Mode != ModeReplay {
		return nil, fmt.Errorf("invalid CHAT_MODE %q: want %q or %q", cfg.Mode, ModeLive, ModeReplay)
	}

	cfg.VideoID = os.Getenv("VIDEO_ID")
	cfg.ChatContinuation = os.Getenv("CHAT_CONTINUATION")

	cfg.InnerTubeAPIKey = os.Getenv("INNERTUBE_API_KEY")
	cfg.InnerTubeEndpoint = os.Getenv("INNERTUBE_ENDPOINT")
	if cfg.InnerTubeEndpoint == "" {
		cfg.InnerTubeEndpoint = "https://www.youtube.com/youtubei/v1/live_chat/get_live_chat"
	}

	cfg.SourcePollMin = 1 * time.Second
	if v := os.Getenv("SOURCE_POLL_MIN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid SOURCE_POLL_MIN %q: want a positive duration", v)
		}
		cfg.SourcePollMin = d
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	// Twitch
	cfg.TwitchChannel = os.Getenv("TWITCH_CHANNEL")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")

	// YouTube
	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")
	cfg.YTRefreshToken = os.Getenv("YT_REFRESH_TOKEN")
	cfg.YTLiveChatID = os.Getenv("YT_LIVE_CHAT_ID")
	cfg.YTScopes = os.Getenv("YT_SCOPES")
	if cfg.YTScopes == "" {
		cfg.YTScopes = "https://www.googleapis.com/auth/youtube.readonly"
	}

	return cfg, nil
}

// Replay reports whether the service runs in replay mode.
func (c *Config) Replay() bool { return c.Mode == ModeReplay }

// ValidateScraperReady checks required fields for the InnerTube scraper source.
func (c *Config) ValidateScraperReady() error {
	if c.InnerTubeAPIKey == "" || c.ChatContinuation == "" {
		return fmt.Errorf("missing scraper env: require INNERTUBE_API_KEY, CHAT_CONTINUATION")
	}
	return nil
}

// ValidateTwitchReady checks required fields for the Twitch IRC source.
func (c *Config) ValidateTwitchReady() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN")
	}
	return nil
}

// ValidateYouTubeReady checks required fields for the YouTube Data API source.
func (c *Config) ValidateYouTubeReady() error {
	if c.YTClientID == "" || c.YTClientSecret == "" || c.YTRefreshToken == "" || c.YTLiveChatID == "" {
		return fmt.Errorf("missing youtube env: require YT_CLIENT_ID, YT_CLIENT_SECRET, YT_REFRESH_TOKEN, YT_LIVE_CHAT_ID")
	}
	return nil
}
