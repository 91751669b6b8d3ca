package chat

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Wire shapes for the platform's internal get_live_chat responses. Only the
// fields this service reads are declared; everything else is ignored.

type rawResponse struct {
	ContinuationContents struct {
		LiveChatContinuation struct {
			Actions       []rawAction       `json:"actions"`
			Continuations []rawContinuation `json:"continuations"`
		} `json:"liveChatContinuation"`
	} `json:"continuationContents"`
}

type rawContinuation struct {
	TimedContinuationData        *rawContinuationData `json:"timedContinuationData"`
	InvalidationContinuationData *rawContinuationData `json:"invalidationContinuationData"`
	ReloadContinuationData       *rawContinuationData `json:"reloadContinuationData"`
}

type rawContinuationData struct {
	Continuation string `json:"continuation"`
	TimeoutMs    int    `json:"timeoutMs"`
}

type rawAction struct {
	ReplayChatItemAction *struct {
		Actions             []rawAction `json:"actions"`
		VideoOffsetTimeMsec string      `json:"videoOffsetTimeMsec"`
	} `json:"replayChatItemAction"`
	AddChatItemAction *struct {
		Item rawItem `json:"item"`
	} `json:"addChatItemAction"`
	MarkChatItemsByAuthorAsDeletedAction *struct {
		ExternalChannelID   string  `json:"externalChannelId"`
		DeletedStateMessage rawRuns `json:"deletedStateMessage"`
	} `json:"markChatItemsByAuthorAsDeletedAction"`
	MarkChatItemAsDeletedAction *struct {
		TargetItemID        string  `json:"targetItemId"`
		DeletedStateMessage rawRuns `json:"deletedStateMessage"`
	} `json:"markChatItemAsDeletedAction"`
	AddBannerToLiveChatCommandAction    json.RawMessage `json:"addBannerToLiveChatCommandAction"`
	RemoveBannerForLiveChatCommandAction json.RawMessage `json:"removeBannerForLiveChatCommandAction"`
}

type rawItem struct {
	LiveChatTextMessageRenderer    *rawRenderer `json:"liveChatTextMessageRenderer"`
	LiveChatPaidMessageRenderer    *rawRenderer `json:"liveChatPaidMessageRenderer"`
	LiveChatPaidStickerRenderer    *rawRenderer `json:"liveChatPaidStickerRenderer"`
	LiveChatMembershipItemRenderer *rawRenderer `json:"liveChatMembershipItemRenderer"`
}

type rawRenderer struct {
	ID            string  `json:"id"`
	TimestampUsec string  `json:"timestampUsec"`
	Message       rawRuns `json:"message"`
	AuthorName    struct {
		SimpleText string `json:"simpleText"`
	} `json:"authorName"`
	AuthorExternalChannelID string `json:"authorExternalChannelId"`
	AuthorPhoto             struct {
		Thumbnails []struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"authorPhoto"`
	PurchaseAmountText struct {
		SimpleText string `json:"simpleText"`
	} `json:"purchaseAmountText"`
	BodyBackgroundColor int64   `json:"bodyBackgroundColor"`
	HeaderSubtext       rawRuns `json:"headerSubtext"`
}

type rawRuns struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text  string `json:"text"`
		Emoji struct {
			EmojiID   string `json:"emojiId"`
			Shortcuts []string `json:"shortcuts"`
		} `json:"emoji"`
	} `json:"runs"`
}

func (r rawRuns) text() string {
	if r.SimpleText != "" {
		return r.SimpleText
	}
	out := ""
	for _, run := range r.Runs {
		switch {
		case run.Text != "":
			out += run.Text
		case len(run.Emoji.Shortcuts) > 0:
			out += run.Emoji.Shortcuts[0]
		case run.Emoji.EmojiID != "":
			out += run.Emoji.EmojiID
		}
	}
	return out
}

// Parse converts one raw get_live_chat response into a Chunk. In replay mode
// showtimes come from the replay wrapper's video offset (may be negative for
// pre-roll messages); in live mode from the publish timestamp, as wall-clock
// milliseconds. Messages the platform ships without an id get a generated
// one so deletions can still be matched by the renderer.
func Parse(raw []byte, replay bool) (*Chunk, error) {
	var resp rawResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	lc := resp.ContinuationContents.LiveChatContinuation
	if len(lc.Actions) == 0 && len(lc.Continuations) == 0 {
		return nil, fmt.Errorf("decode chat response: no live chat continuation")
	}

	c := &Chunk{}
	for _, cont := range lc.Continuations {
		switch {
		case cont.TimedContinuationData != nil:
			c.Continuation = cont.TimedContinuationData.Continuation
			c.TimeoutMs = cont.TimedContinuationData.TimeoutMs
		case cont.InvalidationContinuationData != nil:
			c.Continuation = cont.InvalidationContinuationData.Continuation
			c.TimeoutMs = cont.InvalidationContinuationData.TimeoutMs
		case cont.ReloadContinuationData != nil:
			// The platform restarted the chat stream.
			c.Refresh = true
			c.Continuation = cont.ReloadContinuationData.Continuation
		}
	}

	for _, a := range lc.Actions {
		appendAction(c, a, replay, 0, false)
	}
	return c, nil
}

func appendAction(c *Chunk, a rawAction, replay bool, offsetMs int64, offsetKnown bool) {
	if a.ReplayChatItemAction != nil {
		off, err := strconv.ParseInt(a.ReplayChatItemAction.VideoOffsetTimeMsec, 10, 64)
		known := err == nil
		for _, inner := range a.ReplayChatItemAction.Actions {
			appendAction(c, inner, replay, off, known)
		}
		return
	}
	switch {
	case a.AddChatItemAction != nil:
		if msg, ok := parseItem(a.AddChatItemAction.Item, replay, offsetMs, offsetKnown); ok {
			c.Messages = append(c.Messages, msg)
		}
	case a.MarkChatItemsByAuthorAsDeletedAction != nil:
		b := a.MarkChatItemsByAuthorAsDeletedAction
		c.Bonks = append(c.Bonks, BonkAction{
			AuthorID:     b.ExternalChannelID,
			ReplacedText: b.DeletedStateMessage.text(),
		})
	case a.MarkChatItemAsDeletedAction != nil:
		d := a.MarkChatItemAsDeletedAction
		c.Deletions = append(c.Deletions, DeletionAction{
			MessageID:    d.TargetItemID,
			ReplacedText: d.DeletedStateMessage.text(),
		})
	case len(a.AddBannerToLiveChatCommandAction) > 0:
		c.Misc = append(c.Misc, MiscAction{Kind: MiscPin, Payload: a.AddBannerToLiveChatCommandAction})
	case len(a.RemoveBannerForLiveChatCommandAction) > 0:
		c.Misc = append(c.Misc, MiscAction{Kind: MiscUnpin, Payload: a.RemoveBannerForLiveChatCommandAction})
	}
}

func parseItem(item rawItem, replay bool, offsetMs int64, offsetKnown bool) (ChatMessage, bool) {
	var r *rawRenderer
	var marker *Marker
	switch {
	case item.LiveChatTextMessageRenderer != nil:
		r = item.LiveChatTextMessageRenderer
	case item.LiveChatPaidMessageRenderer != nil:
		r = item.LiveChatPaidMessageRenderer
		marker = &Marker{Kind: "superchat", Detail: r.PurchaseAmountText.SimpleText, Color: r.BodyBackgroundColor}
	case item.LiveChatPaidStickerRenderer != nil:
		r = item.LiveChatPaidStickerRenderer
		marker = &Marker{Kind: "sticker", Detail: r.PurchaseAmountText.SimpleText}
	case item.LiveChatMembershipItemRenderer != nil:
		r = item.LiveChatMembershipItemRenderer
		marker = &Marker{Kind: "membership", Detail: r.HeaderSubtext.text()}
	default:
		// Ticker items and other renderers are display-only noise.
		return ChatMessage{}, false
	}

	showtime := offsetMs
	if !replay || !offsetKnown {
		if usec, err := strconv.ParseInt(r.TimestampUsec, 10, 64); err == nil {
			showtime = usec / 1000
		}
	}

	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	var img string
	if n := len(r.AuthorPhoto.Thumbnails); n > 0 {
		img = r.AuthorPhoto.Thumbnails[n-1].URL
	}
	return ChatMessage{
		ID: id,
		Author: Author{
			ID:       r.AuthorExternalChannelID,
			Name:     r.AuthorName.SimpleText,
			ImageURL: img,
		},
		Text:       r.Message.text(),
		ShowtimeMs: showtime,
		Marker:     marker,
	}, true
}
