package chat

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/chat-relay/pubsub"
	"github.com/onnwee/chat-relay/queue"
	"github.com/onnwee/chat-relay/telemetry"
)

const (
	// maxChunkDelayMs caps the adaptive late-chunk smoothing delay.
	maxChunkDelayMs = 3000
	// defaultLivePoll is how often the live-mode ticker reports wall-clock
	// progress.
	defaultLivePoll = 250 * time.Millisecond
	// scrubThreshold is the playback jump, in seconds, beyond which a
	// progress report counts as a seek.
	scrubThreshold = 1.0
)

// ParseFunc converts one raw platform response into a Chunk. It is the
// engine's external parser collaborator; a failure drops the payload.
type ParseFunc func(raw []byte, replay bool) (*Chunk, error)

// EngineConfig configures a sync engine instance.
type EngineConfig struct {
	// Replay selects replay mode (externally driven playback position).
	// When false the engine self-drives progress from wall clock.
	Replay bool
	// Parse handles raw payloads given to Ingest. Defaults to Parse.
	Parse ParseFunc
	// Now is the engine's clock; defaults to time.Now. Tests override it.
	Now func() time.Time
	// PollInterval is the live-mode ticker period; defaults to 250ms.
	PollInterval time.Duration
}

// Engine buffers parsed chat chunks, reconciles moderation events against
// buffered messages, and releases them to the latest-action channel at the
// correct playback-relative instant.
//
// All public methods are serialized by one mutex; the live ticker funnels
// through the same entry point as external callers. Subscriber callbacks on
// the latest-action channel run synchronously on the engine's thread of
// control and are expected to return quickly.
type Engine struct {
	mu      sync.Mutex
	replay  bool
	parse   ParseFunc
	now     func() time.Time
	pending *queue.Queue[*MessageAction]
	latest  *pubsub.Channel[Action]

	previousTime   float64 // seconds
	hasProgress    bool
	nextChunkDelay int64 // ms

	initial    []Action
	initialSet bool

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates an engine. In live mode the internal progress ticker starts
// immediately; callers must Dispose the engine to stop it.
func New(cfg EngineConfig) *Engine {
	e := newEngine(cfg)
	if !e.replay {
		interval := cfg.PollInterval
		if interval <= 0 {
			interval = defaultLivePoll
		}
		go e.runLiveTicker(interval)
	}
	return e
}

// newEngine builds the engine without starting the live ticker, so tests can
// drive progress deterministically.
func newEngine(cfg EngineConfig) *Engine {
	parse := cfg.Parse
	if parse == nil {
		parse = Parse
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		replay:  cfg.Replay,
		parse:   parse,
		now:     now,
		pending: queue.New[*MessageAction](),
		latest:  pubsub.New[Action](),
		stop:    make(chan struct{}),
	}
}

// Latest is the publish channel carrying every action destined for the
// renderer.
func (e *Engine) Latest() *pubsub.Channel[Action] { return e.latest }

// Dispose stops the live ticker. Idempotent; safe in both modes.
func (e *Engine) Dispose() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *Engine) runLiveTicker(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-t.C:
			e.ReportPlaybackProgress(float64(e.now().UnixMilli()))
		}
	}
}

// Ingest hands raw to the parser and processes the resulting chunk. A parse
// failure is logged and dropped; no state changes. initial marks the
// bootstrap snapshot payload.
func (e *Engine) Ingest(raw []byte, initial bool) {
	chunk, err := e.parse(raw, e.replay)
	if err != nil {
		telemetry.IncParseFailure()
		slog.Warn("chat payload parse failed",
			slog.Any("err", err),
			slog.Bool("replay", e.replay),
			slog.Bool("initial", initial),
			slog.Int("payload_bytes", len(raw)))
		return
	}
	e.IngestChunk(chunk, initial)
}

// IngestChunk processes an already-parsed chunk. Sources that produce chunks
// directly (IRC, official API) call this instead of Ingest.
func (e *Engine) IngestChunk(c *Chunk, initial bool) {
	if c == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	telemetry.IncChunkIngested()

	// Capture the previous chunk's delay before recomputing; a late chunk
	// stretches the timing of the chunk after it, not its own.
	currentDelay := e.nextChunkDelay
	if !e.replay && !initial && len(c.Messages) > 0 {
		diff := e.now().UnixMilli() - c.Messages[0].ShowtimeMs
		if diff > 0 {
			d := ((diff + 999) / 1000) * 1000
			if d > maxChunkDelayMs {
				d = maxChunkDelayMs
			}
			e.nextChunkDelay = d
		} else {
			e.nextChunkDelay = 0
		}
	}

	// A chat-stream restart invalidates all buffered timing.
	if c.Refresh {
		e.pending.Clear()
	}

	msgs := make([]ChatMessage, len(c.Messages))
	copy(msgs, c.Messages)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ShowtimeMs < msgs[j].ShowtimeMs })

	var snapshot []*MessageAction
	queued := 0
	for i := range msgs {
		m := msgs[i]
		if currentDelay > 0 && e.nextChunkDelay > 0 {
			m.ShowtimeMs += currentDelay
		}
		ma := reconcile(m, c.Bonks, c.Deletions)
		if initial {
			// Bootstrap routing: in replay mode only pre-roll messages
			// (negative showtime) seed the snapshot, the rest wait in the
			// queue; in live mode everything seeds the snapshot.
			if e.replay && m.ShowtimeMs >= 0 {
				e.pending.Push(ma)
				queued++
			} else {
				snapshot = append(snapshot, ma)
			}
		} else {
			e.pending.Push(ma)
			queued++
		}
	}
	telemetry.AddMessagesQueued(queued)
	telemetry.SetPendingDepth(e.pending.Len())

	if initial {
		if !e.initialSet {
			var actions []Action
			if len(snapshot) > 0 {
				actions = append(actions, Action{Kind: KindMessages, Messages: snapshot})
			}
			for i := range c.Misc {
				actions = append(actions, miscAction(c.Misc[i]))
			}
			e.initial = actions
			e.initialSet = true
		}
		return
	}

	if c.Refresh {
		// Forced catch-up: a refresh must not silently drop messages that
		// were already due at the last known position.
		due := e.drainDue(e.previousTime * 1000)
		e.publish(Action{Kind: KindForceUpdate, Messages: due})
	}
	for i := range c.Bonks {
		b := c.Bonks[i]
		e.publish(Action{Kind: KindBonk, Bonk: &b})
	}
	for i := range c.Deletions {
		d := c.Deletions[i]
		e.publish(Action{Kind: KindDelete, Delete: &d})
	}
	for i := range c.Misc {
		e.publish(miscAction(c.Misc[i]))
	}
	telemetry.SetPendingDepth(e.pending.Len())
}

// ReportPlaybackProgress reacts to a known playback position in
// milliseconds. Negative positions are ignored. In replay mode a jump of
// more than one second is a seek: the pending queue is dropped and the
// renderer is told to wipe its view. Otherwise every buffered message due at
// or before the position is released as a single batch. The position itself
// is echoed unconditionally so a renderer can track the scrubber.
func (e *Engine) ReportPlaybackProgress(timeMs float64) {
	if timeMs < 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	timeSec := timeMs / 1000
	// The first report establishes the baseline; there is no previous
	// position to have scrubbed away from.
	scrubbed := e.hasProgress && math.Abs(e.previousTime-timeSec) > scrubThreshold
	if e.replay && scrubbed {
		e.pending.Clear()
		e.publish(Action{Kind: KindForceUpdate, Messages: []*MessageAction{}})
	} else {
		if batch := e.drainDue(timeMs); len(batch) > 0 {
			e.publish(Action{Kind: KindMessages, Messages: batch})
		}
	}
	e.previousTime = timeSec
	e.hasProgress = true
	e.publish(Action{Kind: KindPlayerProgress, ProgressMs: timeMs})
	telemetry.SetPendingDepth(e.pending.Len())
}

// InitialSnapshot returns the one-time bootstrap snapshot for a newly
// attached consumer. It is identical across calls.
func (e *Engine) InitialSnapshot() []Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initial
}

// drainDue pops pending actions, oldest first, while the head's showtime is
// at or before cutoffMs. Callers hold e.mu.
func (e *Engine) drainDue(cutoffMs float64) []*MessageAction {
	var out []*MessageAction
	for {
		front, ok := e.pending.Front()
		if !ok || float64(front.Message.ShowtimeMs) > cutoffMs {
			return out
		}
		ma, _ := e.pending.Pop()
		out = append(out, ma)
	}
}

// publish delivers one action through the latest-action channel. Callers
// hold e.mu; subscriber callbacks run before publish returns.
func (e *Engine) publish(a Action) {
	telemetry.TimeFunc(telemetry.PublishDuration, func() {
		e.latest.Set(a)
	})
	telemetry.IncActionPublished(string(a.Kind))
}

// reconcile builds the MessageAction for m, applying this chunk's own
// moderation events. First match wins: bonks by author, then deletions by
// message id. At most one marking is applied.
func reconcile(m ChatMessage, bonks []BonkAction, dels []DeletionAction) *MessageAction {
	for i := range bonks {
		if bonks[i].AuthorID != "" && bonks[i].AuthorID == m.Author.ID {
			return &MessageAction{Message: m, Deleted: &Deleted{ReplacedText: bonks[i].ReplacedText}}
		}
	}
	for i := range dels {
		if dels[i].MessageID != "" && dels[i].MessageID == m.ID {
			return &MessageAction{Message: m, Deleted: &Deleted{ReplacedText: dels[i].ReplacedText}}
		}
	}
	return &MessageAction{Message: m}
}

func miscAction(m MiscAction) Action {
	a := Action{Misc: &m}
	switch m.Kind {
	case MiscPin:
		a.Kind = KindPin
	case MiscUnpin:
		a.Kind = KindUnpin
	default:
		a.Kind = KindMisc
	}
	return a
}
