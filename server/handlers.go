package server

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/chat-relay/chat"
	"github.com/onnwee/chat-relay/config"
)

// maxIngestBytes bounds a single raw chat payload on /chat/ingest.
const maxIngestBytes = 8 << 20

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	cfg     *config.Config
	engine  *chat.Engine
	started time.Time

	// One websocket consumer at a time; a new connection replaces the
	// previous one.
	wsMu    sync.Mutex
	wsClose func()

	subs atomic.Int64
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(cfg *config.Config, engine *chat.Engine) *Handlers {
	return &Handlers{
		cfg:     cfg,
		engine:  engine,
		started: time.Now(),
	}
}

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleStatus reports the engine mode and the latest published action kind.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out := map[string]any{
		"mode":           h.cfg.Mode,
		"video_id":       h.cfg.VideoID,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}
	if latest, ok := h.engine.Latest().Latest(); ok {
		out["latest_action_kind"] = string(latest.Kind)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// HandleSnapshot returns the bootstrap actions for a consumer that attaches
// after startup. The list is empty until the first bootstrap payload arrives.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snapshot := h.engine.InitialSnapshot()
	if snapshot == nil {
		snapshot = []chat.Action{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}

// HandleProgress accepts a playback position from the replay frontend. The
// live engine drives its own clock, so posting progress there is a conflict.
func (h *Handlers) HandleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.cfg.Replay() {
		http.Error(w, "progress reports are only accepted in replay mode", http.StatusConflict)
		return
	}
	var body struct {
		TimeMs float64 `json:"timeMs"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&body); err != nil {
		http.Error(w, "invalid body: want {\"timeMs\": <number>}", http.StatusBadRequest)
		return
	}
	h.engine.ReportPlaybackProgress(body.TimeMs)
	w.WriteHeader(http.StatusAccepted)
}

// HandleIngest feeds a raw platform chat payload into the engine. The
// initial=1 query flag marks the bootstrap payload. Malformed payloads are
// dropped by the engine, so acceptance here only means receipt.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBytes))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(raw) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}
	initial := r.URL.Query().Get("initial") == "1" || r.URL.Query().Get("initial") == "true"
	h.engine.Ingest(raw, initial)
	w.WriteHeader(http.StatusAccepted)
}
