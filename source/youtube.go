// Package source contains the feeders that deliver platform chat into the
// sync engine: the InnerTube scraper, the Twitch IRC client, and (in
// package youtubeapi) the official Data API poller.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/onnwee/chat-relay/chat"
	"github.com/onnwee/chat-relay/config"
	"github.com/onnwee/chat-relay/telemetry"
)

// innerTubeRequest is the minimal request body the chat endpoint accepts.
type innerTubeRequest struct {
	Context struct {
		Client struct {
			ClientName    string `json:"clientName"`
			ClientVersion string `json:"clientVersion"`
		} `json:"client"`
	} `json:"context"`
	Continuation string `json:"continuation"`
}

// StartInnerTubeScraper polls the platform's internal live-chat endpoint and
// feeds parsed chunks into the engine. The first successful response is the
// bootstrap payload. Polling cadence follows the endpoint's own timeout
// hints, floored at cfg.SourcePollMin; errors back off and are never fatal.
func StartInnerTubeScraper(ctx context.Context, cfg *config.Config, e *chat.Engine) {
	if err := cfg.ValidateScraperReady(); err != nil {
		slog.Info("innertube scraper disabled", slog.Any("reason", err))
		return
	}

	logger := slog.Default().With(slog.String("component", "innertube_source"), slog.String("video_id", cfg.VideoID))
	endpoint := cfg.InnerTubeEndpoint + "?key=" + url.QueryEscape(cfg.InnerTubeAPIKey)
	continuation := cfg.ChatContinuation
	initial := true
	errStreak := 0

	logger.Info("starting innertube scraper", slog.Bool("replay", cfg.Replay()))
	for {
		if ctx.Err() != nil {
			return
		}
		raw, err := fetchChatPage(ctx, endpoint, continuation)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			errStreak++
			logger.Warn("chat page fetch failed", slog.Any("err", err), slog.Int("streak", errStreak))
			if !sleepCtx(ctx, backoff(errStreak)) {
				return
			}
			continue
		}
		errStreak = 0

		chunk, err := chat.Parse(raw, cfg.Replay())
		if err != nil {
			telemetry.IncParseFailure()
			logger.Warn("chat page parse failed", slog.Any("err", err), slog.Int("payload_bytes", len(raw)))
			if !sleepCtx(ctx, cfg.SourcePollMin) {
				return
			}
			continue
		}

		e.IngestChunk(chunk, initial)
		initial = false
		if chunk.Continuation != "" {
			continuation = chunk.Continuation
		}

		wait := cfg.SourcePollMin
		if d := time.Duration(chunk.TimeoutMs) * time.Millisecond; d > wait {
			wait = d
		}
		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

func fetchChatPage(ctx context.Context, endpoint, continuation string) ([]byte, error) {
	var reqBody innerTubeRequest
	reqBody.Context.Client.ClientName = "WEB"
	reqBody.Context.Client.ClientVersion = "2.20240401.00.00"
	reqBody.Continuation = continuation
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "chat-relay/1.0 (+https://github.com/onnwee/chat-relay)")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("chat endpoint status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// backoff grows with consecutive failures, capped at 30s.
func backoff(streak int) time.Duration {
	d := time.Duration(streak) * 2 * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
