package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records every action published on the engine's latest channel.
type collector struct {
	actions []Action
}

func collect(e *Engine) *collector {
	c := &collector{}
	e.Latest().Subscribe(func(a Action) { c.actions = append(c.actions, a) })
	return c
}

func (c *collector) ofKind(kind ActionKind) []Action {
	var out []Action
	for _, a := range c.actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func msg(id, authorID string, showtimeMs int64) ChatMessage {
	return ChatMessage{
		ID:         id,
		Author:     Author{ID: authorID, Name: "user-" + authorID},
		Text:       "text " + id,
		ShowtimeMs: showtimeMs,
	}
}

func showtimes(batch []*MessageAction) []int64 {
	out := make([]int64, 0, len(batch))
	for _, ma := range batch {
		out = append(out, ma.Message.ShowtimeMs)
	}
	return out
}

func TestChunkSortedByShowtime(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	e := newEngine(EngineConfig{Now: fixedNow(now)})
	c := collect(e)

	e.IngestChunk(&Chunk{Messages: []ChatMessage{
		msg("m3", "a", now.UnixMilli()+300),
		msg("m1", "a", now.UnixMilli()+100),
		msg("m2", "a", now.UnixMilli()+200),
	}}, false)
	e.ReportPlaybackProgress(float64(now.UnixMilli() + 500))

	batches := c.ofKind(KindMessages)
	require.Len(t, batches, 1)
	got := showtimes(batches[0].Messages)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1], got[i], "batch not in ascending showtime order: %v", got)
	}
	assert.Len(t, got, 3)
}

func TestProgressReleasesExactlyDue(t *testing.T) {
	e := newEngine(EngineConfig{Replay: true})
	c := collect(e)

	e.IngestChunk(&Chunk{Messages: []ChatMessage{
		msg("m1", "a", 1000),
		msg("m2", "b", 2000),
		msg("m3", "c", 3000),
	}}, false)

	e.ReportPlaybackProgress(2000)
	batches := c.ofKind(KindMessages)
	require.Len(t, batches, 1)
	assert.Equal(t, []int64{1000, 2000}, showtimes(batches[0].Messages))

	// Nothing newly due: no messages action, progress echo only.
	e.ReportPlaybackProgress(2500)
	assert.Len(t, c.ofKind(KindMessages), 1)

	e.ReportPlaybackProgress(3000)
	batches = c.ofKind(KindMessages)
	require.Len(t, batches, 2)
	assert.Equal(t, []int64{3000}, showtimes(batches[1].Messages))
}

func TestProgressEchoUnconditional(t *testing.T) {
	e := newEngine(EngineConfig{Replay: true})
	c := collect(e)

	e.ReportPlaybackProgress(1000)
	e.ReportPlaybackProgress(1200)
	echoes := c.ofKind(KindPlayerProgress)
	require.Len(t, echoes, 2)
	assert.Equal(t, 1000.0, echoes[0].ProgressMs)
	assert.Equal(t, 1200.0, echoes[1].ProgressMs)
}

func TestNegativeProgressIgnored(t *testing.T) {
	e := newEngine(EngineConfig{Replay: true})
	c := collect(e)

	e.ReportPlaybackProgress(-250)
	assert.Empty(t, c.actions)
}

func TestSeekPublishesEmptyForceUpdate(t *testing.T) {
	e := newEngine(EngineConfig{Replay: true})
	c := collect(e)

	e.IngestChunk(&Chunk{Messages: []ChatMessage{
		msg("m1", "a", 6000),
	}}, false)
	e.ReportPlaybackProgress(5000) // baseline

	// Jump back more than one second: seek.
	e.ReportPlaybackProgress(2000)
	forces := c.ofKind(KindForceUpdate)
	require.Len(t, forces, 1)
	assert.Empty(t, forces[0].Messages)

	// Queue was dropped: reaching 6000 releases nothing.
	e.ReportPlaybackProgress(2500)
	e.ReportPlaybackProgress(3400)
	e.ReportPlaybackProgress(4300)
	e.ReportPlaybackProgress(5200)
	e.ReportPlaybackProgress(6100)
	assert.Empty(t, c.ofKind(KindMessages))
}

func TestSmallJumpIsNotASeek(t *testing.T) {
	e := newEngine(EngineConfig{Replay: true})
	c := collect(e)

	e.IngestChunk(&Chunk{Messages: []ChatMessage{msg("m1", "a", 1500)}}, false)
	e.ReportPlaybackProgress(1000)
	e.ReportPlaybackProgress(1900) // 0.9s forward, normal playback
	assert.Empty(t, c.ofKind(KindForceUpdate))
	batches := c.ofKind(KindMessages)
	require.Len(t, batches, 1)
	assert.Equal(t, []int64{1500}, showtimes(batches[0].Messages))
}

func TestRefreshClearsPendingAndForcesCatchUp(t *testing.T) {
	e := newEngine(EngineConfig{Replay: true})
	c := collect(e)

	// Buffered but never due: must vanish on refresh.
	e.IngestChunk(&Chunk{Messages: []ChatMessage{msg("stale", "a", 9000)}}, false)
	e.ReportPlaybackProgress(5000)

	e.IngestChunk(&Chunk{
		Refresh: true,
		Messages: []ChatMessage{
			msg("due", "b", 1000),
			msg("future", "c", 7000),
		},
	}, false)

	forces := c.ofKind(KindForceUpdate)
	require.Len(t, forces, 1)
	assert.Equal(t, []int64{1000}, showtimes(forces[0].Messages))

	// The stale pre-refresh message is gone; the future one survives.
	e.ReportPlaybackProgress(5400)
	e.ReportPlaybackProgress(6200)
	e.ReportPlaybackProgress(7100)
	batches := c.ofKind(KindMessages)
	require.Len(t, batches, 1)
	assert.Equal(t, []int64{7000}, showtimes(batches[0].Messages))
}

func TestBonkReconciledBeforePublish(t *testing.T) {
	e := newEngine(EngineConfig{Replay: true})
	c := collect(e)

	e.IngestChunk(&Chunk{
		Messages: []ChatMessage{msg("m1", "badguy", 1000), msg("m2", "ok", 1100)},
		Bonks:    []BonkAction{{AuthorID: "badguy", ReplacedText: "[removed]"}},
	}, false)

	// The bonk itself is republished for the renderer.
	bonks := c.ofKind(KindBonk)
	require.Len(t, bonks, 1)
	assert.Equal(t, "badguy", bonks[0].Bonk.AuthorID)

	e.ReportPlaybackProgress(1200)
	batches := c.ofKind(KindMessages)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Messages, 2)
	struck := batches[0].Messages[0]
	require.NotNil(t, struck.Deleted)
	assert.Equal(t, "[removed]", struck.Deleted.ReplacedText)
	assert.Nil(t, batches[0].Messages[1].Deleted)
}

func TestDeletionReconciledByMessageID(t *testing.T) {
	e := newEngine(EngineConfig{Replay: true})
	c := collect(e)

	e.IngestChunk(&Chunk{
		Messages:  []ChatMessage{msg("m1", "a", 1000)},
		Deletions: []DeletionAction{{MessageID: "m1", ReplacedText: "deleted"}},
	}, false)
	e.ReportPlaybackProgress(1000)

	batches := c.ofKind(KindMessages)
	require.Len(t, batches, 1)
	require.NotNil(t, batches[0].Messages[0].Deleted)
	assert.Equal(t, "deleted", batches[0].Messages[0].Deleted.ReplacedText)
}

func TestBonkWinsOverDeletion(t *testing.T) {
	e := newEngine(EngineConfig{Replay: true})
	c := collect(e)

	e.IngestChunk(&Chunk{
		Messages:  []ChatMessage{msg("m1", "a", 1000)},
		Bonks:     []BonkAction{{AuthorID: "a", ReplacedText: "by-bonk"}},
		Deletions: []DeletionAction{{MessageID: "m1", ReplacedText: "by-delete"}},
	}, false)
	e.ReportPlaybackProgress(1000)

	batches := c.ofKind(KindMessages)
	require.Len(t, batches, 1)
	require.NotNil(t, batches[0].Messages[0].Deleted)
	assert.Equal(t, "by-bonk", batches[0].Messages[0].Deleted.ReplacedText)
}

func TestLateModerationHasNoEffect(t *testing.T) {
	e := newEngine(EngineConfig{Replay: true})
	c := collect(e)

	e.IngestChunk(&Chunk{Messages: []ChatMessage{msg("m1", "a", 1000)}}, false)
	e.ReportPlaybackProgress(1000) // m1 released

	// Deletion for an already-released message arrives in a later chunk:
	// nothing pending matches, the delete action still goes downstream.
	e.IngestChunk(&Chunk{
		Messages:  []ChatMessage{msg("m2", "b", 2000)},
		Deletions: []DeletionAction{{MessageID: "m1", ReplacedText: "gone"}},
	}, false)

	dels := c.ofKind(KindDelete)
	require.Len(t, dels, 1)
	assert.Equal(t, "m1", dels[0].Delete.MessageID)

	e.ReportPlaybackProgress(2000)
	batches := c.ofKind(KindMessages)
	require.Len(t, batches, 2)
	assert.Nil(t, batches[1].Messages[0].Deleted, "pending m2 must not be struck by m1's deletion")
}

func TestReplayBootstrap(t *testing.T) {
	e := newEngine(EngineConfig{Replay: true})
	c := collect(e)

	e.IngestChunk(&Chunk{Messages: []ChatMessage{
		msg("pre", "a", -5000),
		msg("m2", "b", 2000),
		msg("m5", "c", 5000),
	}}, true)

	// Bootstrap publishes nothing live.
	assert.Empty(t, c.actions)

	snap := e.InitialSnapshot()
	require.Len(t, snap, 1)
	require.Equal(t, KindMessages, snap[0].Kind)
	assert.Equal(t, []int64{-5000}, showtimes(snap[0].Messages))

	e.ReportPlaybackProgress(2000)
	batches := c.ofKind(KindMessages)
	require.Len(t, batches, 1)
	assert.Equal(t, []int64{2000}, showtimes(batches[0].Messages))
}

func TestLiveBootstrapKeepsEverythingInSnapshot(t *testing.T) {
	now := time.UnixMilli(2_000_000)
	e := newEngine(EngineConfig{Now: fixedNow(now)})
	c := collect(e)

	e.IngestChunk(&Chunk{
		Messages: []ChatMessage{msg("m1", "a", now.UnixMilli()-100), msg("m2", "b", now.UnixMilli())},
		Misc:     []MiscAction{{Kind: MiscPin}},
	}, true)

	assert.Empty(t, c.actions)
	snap := e.InitialSnapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, KindMessages, snap[0].Kind)
	assert.Len(t, snap[0].Messages, 2)
	assert.Equal(t, KindPin, snap[1].Kind)

	// Nothing was queued: a live tick releases no batch.
	e.ReportPlaybackProgress(float64(now.UnixMilli()))
	assert.Empty(t, c.ofKind(KindMessages))
}

func TestInitialSnapshotIdempotent(t *testing.T) {
	e := newEngine(EngineConfig{Replay: true})
	e.IngestChunk(&Chunk{Messages: []ChatMessage{msg("pre", "a", -100)}}, true)

	first := e.InitialSnapshot()
	second := e.InitialSnapshot()
	require.Len(t, first, 1)
	assert.Equal(t, first, second)

	// A second "initial" payload must not replace the snapshot.
	e.IngestChunk(&Chunk{Messages: []ChatMessage{msg("other", "b", -200)}}, true)
	assert.Equal(t, first, e.InitialSnapshot())
}

func TestAdaptiveLateChunkDelay(t *testing.T) {
	now := time.UnixMilli(10_000_000)
	e := newEngine(EngineConfig{Now: fixedNow(now)})
	c := collect(e)

	// First chunk arrives 4000ms late: the delay becomes 3000 (capped).
	e.IngestChunk(&Chunk{Messages: []ChatMessage{
		msg("late1", "a", now.UnixMilli()-4000),
	}}, false)
	assert.Equal(t, int64(3000), e.nextChunkDelay)

	// Second chunk is also late (2000ms -> fresh delay 2000, positive), so
	// its messages absorb the previous chunk's 3000ms delay.
	e.IngestChunk(&Chunk{Messages: []ChatMessage{
		msg("late2", "b", now.UnixMilli()-2000),
	}}, false)
	assert.Equal(t, int64(2000), e.nextChunkDelay)

	e.ReportPlaybackProgress(float64(now.UnixMilli() + 1000))
	batches := c.ofKind(KindMessages)
	require.Len(t, batches, 1)
	got := showtimes(batches[0].Messages)
	require.Len(t, got, 2)
	assert.Equal(t, now.UnixMilli()-4000, got[0], "first chunk keeps its own showtime")
	assert.Equal(t, now.UnixMilli()-2000+3000, got[1], "second chunk stretched by previous delay")
}

func TestOnTimeChunkResetsDelay(t *testing.T) {
	now := time.UnixMilli(10_000_000)
	e := newEngine(EngineConfig{Now: fixedNow(now)})

	e.IngestChunk(&Chunk{Messages: []ChatMessage{msg("late", "a", now.UnixMilli() - 1500)}}, false)
	assert.Equal(t, int64(2000), e.nextChunkDelay) // ceil(1.5s)

	e.IngestChunk(&Chunk{Messages: []ChatMessage{msg("ontime", "b", now.UnixMilli() + 50)}}, false)
	assert.Equal(t, int64(0), e.nextChunkDelay)
}

func TestParseFailureIsNoOp(t *testing.T) {
	parse := func([]byte, bool) (*Chunk, error) { return nil, errors.New("bad payload") }
	e := newEngine(EngineConfig{Replay: true, Parse: parse})
	c := collect(e)

	e.Ingest([]byte(`{"broken":`), false)
	assert.Empty(t, c.actions)
	assert.Equal(t, 0, e.pending.Len())
}

func TestLiveTickerAndDispose(t *testing.T) {
	now := time.UnixMilli(3_000_000)
	e := New(EngineConfig{Now: fixedNow(now), PollInterval: 5 * time.Millisecond})

	echo := make(chan Action, 64)
	e.Latest().Subscribe(func(a Action) {
		if a.Kind == KindPlayerProgress {
			select {
			case echo <- a:
			default:
			}
		}
	})

	select {
	case a := <-echo:
		assert.Equal(t, float64(now.UnixMilli()), a.ProgressMs)
	case <-time.After(2 * time.Second):
		t.Fatal("live ticker never reported progress")
	}

	e.Dispose()
	e.Dispose() // idempotent

	// Drain anything in flight, then confirm the ticker stopped.
	time.Sleep(20 * time.Millisecond)
	for len(echo) > 0 {
		<-echo
	}
	select {
	case <-echo:
		t.Fatal("progress reported after Dispose")
	case <-time.After(50 * time.Millisecond):
	}
}
