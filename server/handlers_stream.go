package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/chat-relay/chat"
	"github.com/onnwee/chat-relay/telemetry"
)

// streamBuffer is how many published actions a slow consumer may fall behind
// before the feed drops it. Engine callbacks must never block.
const streamBuffer = 256

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS policy is enforced by the outer middleware; the upgrade itself
	// accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleStream delivers the action feed over Server-Sent Events. Each event
// is one JSON-encoded action. A heartbeat comment keeps idle connections
// alive through proxies.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	actions, unsubscribe := h.subscribeBuffered()
	defer unsubscribe()

	ctx := r.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case a := <-actions:
			if _, err := w.Write([]byte("data: ")); err != nil {
				slog.Warn("failed to write SSE data prefix", slog.Any("err", err))
				return
			}
			if err := enc.Encode(a); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				slog.Warn("failed to write SSE newline", slog.Any("err", err))
				return
			}
			flusher.Flush()
		}
	}
}

// HandleWS delivers the action feed over a websocket. The feed has one
// consumer: accepting a new connection closes the previous one.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}

	actions, unsubscribe := h.subscribeBuffered()
	done := make(chan struct{})
	var once sync.Once
	closeOnce := func() {
		once.Do(func() {
			unsubscribe()
			close(done)
			_ = conn.Close()
		})
	}

	h.wsMu.Lock()
	if h.wsClose != nil {
		h.wsClose()
	}
	h.wsClose = closeOnce
	h.wsMu.Unlock()

	// Reader goroutine notices client close and consumes control frames.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeOnce()
				return
			}
		}
	}()

	slog.Info("websocket consumer attached", slog.String("remote", conn.RemoteAddr().String()))
	for {
		select {
		case <-done:
			return
		case a := <-actions:
			if err := conn.WriteJSON(a); err != nil {
				closeOnce()
				return
			}
		}
	}
}

// subscribeBuffered bridges the synchronous latest-action channel to a
// buffered Go channel a network writer can drain at its own pace. When the
// buffer is full the oldest queued action is dropped; the consumer always
// sees the newest state.
func (h *Handlers) subscribeBuffered() (<-chan chat.Action, func()) {
	actions := make(chan chat.Action, streamBuffer)
	unsubscribe := h.engine.Latest().Subscribe(func(a chat.Action) {
		for {
			select {
			case actions <- a:
				return
			default:
			}
			select {
			case <-actions:
			default:
			}
		}
	})
	telemetry.SetSubscribers(int(h.subs.Add(1)))
	var once sync.Once
	return actions, func() {
		once.Do(func() {
			unsubscribe()
			telemetry.SetSubscribers(int(h.subs.Add(-1)))
		})
	}
}
