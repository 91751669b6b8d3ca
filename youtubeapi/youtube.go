// Package youtubeapi wraps Google OAuth2 client config and the YouTube Data
// API for the single purpose of polling live chat through the official
// surface. It is the sanctioned alternative to the InnerTube scraper; both
// feed the same sync engine.
package youtubeapi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/chat-relay/chat"
	"github.com/onnwee/chat-relay/config"
)

type Service struct {
	cfg   *config.Config
	oauth *oauth2.Config
}

func New(cfg *config.Config) *Service {
	scopes := []string{"https://www.googleapis.com/auth/youtube.readonly"}
	if cfg.YTScopes != "" {
		// allow comma or space separated
		s := strings.ReplaceAll(cfg.YTScopes, ",", " ")
		fields := strings.Fields(s)
		if len(fields) > 0 {
			scopes = fields
		}
	}
	oauth := &oauth2.Config{
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
	return &Service{cfg: cfg, oauth: oauth}
}

// Client builds a YouTube service from the configured refresh token. The
// oauth2 token source refreshes access tokens in memory as needed.
func (s *Service) Client(ctx context.Context) (*yt.Service, error) {
	if s.cfg.YTRefreshToken == "" {
		return nil, fmt.Errorf("no youtube refresh token configured")
	}
	tok := &oauth2.Token{RefreshToken: s.cfg.YTRefreshToken}
	client := s.oauth.Client(ctx, tok)
	return yt.New(client)
}

// StartLiveChatPoller polls LiveChatMessages.List for the configured live
// chat and feeds each page into the engine as one chunk. Cadence follows the
// API's PollingIntervalMillis, floored at cfg.SourcePollMin. Blocks until
// ctx is cancelled.
func StartLiveChatPoller(ctx context.Context, cfg *config.Config, e *chat.Engine) {
	if err := cfg.ValidateYouTubeReady(); err != nil {
		slog.Info("youtube data api source disabled", slog.Any("reason", err))
		return
	}
	logger := slog.Default().With(slog.String("component", "youtube_source"), slog.String("live_chat_id", cfg.YTLiveChatID))

	svc, err := New(cfg).Client(ctx)
	if err != nil {
		logger.Error("youtube client init failed", slog.Any("err", err))
		return
	}

	pageToken := ""
	initial := true
	errStreak := 0
	logger.Info("starting youtube live chat poller")
	for {
		if ctx.Err() != nil {
			return
		}
		call := svc.LiveChatMessages.List(cfg.YTLiveChatID, []string{"snippet", "authorDetails"}).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			errStreak++
			logger.Warn("live chat list failed", slog.Any("err", err), slog.Int("streak", errStreak))
			wait := time.Duration(errStreak) * 2 * time.Second
			if wait > 30*time.Second {
				wait = 30 * time.Second
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		errStreak = 0
		pageToken = resp.NextPageToken

		chunk := chunkFromItems(resp.Items)
		e.IngestChunk(chunk, initial)
		initial = false

		wait := cfg.SourcePollMin
		if d := time.Duration(resp.PollingIntervalMillis) * time.Millisecond; d > wait {
			wait = d
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// chunkFromItems maps one API page onto the engine's chunk model.
func chunkFromItems(items []*yt.LiveChatMessage) *chat.Chunk {
	c := &chat.Chunk{}
	for _, it := range items {
		if it == nil || it.Snippet == nil {
			continue
		}
		sn := it.Snippet
		switch sn.Type {
		case "messageDeletedEvent":
			if sn.MessageDeletedDetails != nil {
				c.Deletions = append(c.Deletions, chat.DeletionAction{
					MessageID:    sn.MessageDeletedDetails.DeletedMessageId,
					ReplacedText: "[message deleted]",
				})
			}
			continue
		case "userBannedEvent":
			if sn.UserBannedDetails != nil && sn.UserBannedDetails.BannedUserDetails != nil {
				c.Bonks = append(c.Bonks, chat.BonkAction{
					AuthorID:     sn.UserBannedDetails.BannedUserDetails.ChannelId,
					ReplacedText: "[messages removed]",
				})
			}
			continue
		case "chatEndedEvent":
			c.Refresh = true
			continue
		}

		m := chat.ChatMessage{
			ID:         it.Id,
			Text:       sn.DisplayMessage,
			ShowtimeMs: publishedMs(sn.PublishedAt),
		}
		if it.AuthorDetails != nil {
			m.Author = chat.Author{
				ID:       it.AuthorDetails.ChannelId,
				Name:     it.AuthorDetails.DisplayName,
				ImageURL: it.AuthorDetails.ProfileImageUrl,
			}
		}
		switch sn.Type {
		case "superChatEvent":
			detail := ""
			if sn.SuperChatDetails != nil {
				detail = sn.SuperChatDetails.AmountDisplayString
			}
			m.Marker = &chat.Marker{Kind: "superchat", Detail: detail}
		case "superStickerEvent":
			m.Marker = &chat.Marker{Kind: "sticker"}
		case "newSponsorEvent", "memberMilestoneChatEvent":
			m.Marker = &chat.Marker{Kind: "membership"}
		}
		c.Messages = append(c.Messages, m)
	}
	return c
}

func publishedMs(publishedAt string) int64 {
	t, err := time.Parse(time.RFC3339Nano, publishedAt)
	if err != nil {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}
