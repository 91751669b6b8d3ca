package source

import (
	"context"
	"log/slog"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-relay/chat"
	"github.com/onnwee/chat-relay/config"
)

// StartTwitchChatSource connects to Twitch IRC and feeds live chat into the
// engine as one-event chunks: PRIVMSG becomes a message, CLEARCHAT a bonk,
// CLEARMSG a deletion. Only meaningful in live mode. Blocks until ctx is
// cancelled.
func StartTwitchChatSource(ctx context.Context, cfg *config.Config, e *chat.Engine) {
	if err := cfg.ValidateTwitchReady(); err != nil {
		slog.Info("twitch source disabled", slog.Any("reason", err))
		return
	}
	client := twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		name := msg.User.DisplayName
		if name == "" {
			name = msg.User.Name
		}
		m := chat.ChatMessage{
			ID:         msg.ID,
			Author:     chat.Author{ID: msg.User.ID, Name: name},
			Text:       msg.Message,
			ShowtimeMs: time.Now().UnixMilli(),
		}
		if msg.Bits > 0 {
			m.Marker = &chat.Marker{Kind: "superchat"}
		}
		e.IngestChunk(&chat.Chunk{Messages: []chat.ChatMessage{m}}, false)
	})

	client.OnClearChatMessage(func(msg twitch.ClearChatMessage) {
		// CLEARCHAT with no target wipes the whole room; the platform sends
		// a fresh state afterwards, so treat it as a stream refresh.
		if msg.TargetUserID == "" {
			e.IngestChunk(&chat.Chunk{Refresh: true}, false)
			return
		}
		e.IngestChunk(&chat.Chunk{Bonks: []chat.BonkAction{{
			AuthorID:     msg.TargetUserID,
			ReplacedText: "[messages removed]",
		}}}, false)
	})

	client.OnClearMessage(func(msg twitch.ClearMessage) {
		e.IngestChunk(&chat.Chunk{Deletions: []chat.DeletionAction{{
			MessageID:    msg.TargetMsgID,
			ReplacedText: "[message deleted]",
		}}}, false)
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		client.Disconnect()
		close(done)
	}()

	client.Join(cfg.TwitchChannel)
	slog.Info("twitch source connecting", slog.String("channel", cfg.TwitchChannel))
	if err := client.Connect(); err != nil {
		slog.Error("twitch chat connect error", slog.Any("err", err))
	}
	<-done
}
