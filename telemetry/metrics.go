// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChunksIngested   prometheus.Counter
	ParseFailures    prometheus.Counter
	MessagesQueued   prometheus.Counter
	ActionsPublished *prometheus.CounterVec

	// Histograms (seconds)
	PublishDuration prometheus.Observer

	// Gauges
	PendingDepthGauge prometheus.Gauge
	SubscribersGauge  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChunksIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_chunks_ingested_total", Help: "Number of chat chunks processed by the sync engine"})
		ParseFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_parse_failures_total", Help: "Number of raw chat payloads dropped due to parse failure"})
		MessagesQueued = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_queued_total", Help: "Number of message actions inserted into the pending queue"})
		ActionsPublished = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_actions_published_total", Help: "Number of actions published to the display consumer, by kind"}, []string{"kind"})
		PublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_publish_duration_seconds", Help: "Subscriber fan-out duration seconds", Buckets: prometheus.DefBuckets})
		PendingDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_pending_depth", Help: "Current number of buffered message actions not yet released"})
		SubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_stream_subscribers", Help: "Current number of attached stream consumers"})
	})
}

// IncChunkIngested counts one processed chunk.
func IncChunkIngested() { if ChunksIngested != nil { ChunksIngested.Inc() } }

// IncParseFailure counts one dropped payload.
func IncParseFailure() { if ParseFailures != nil { ParseFailures.Inc() } }

// AddMessagesQueued counts message actions entering the pending queue.
func AddMessagesQueued(n int) { if MessagesQueued != nil { MessagesQueued.Add(float64(n)) } }

// IncActionPublished counts one published action of the given kind.
func IncActionPublished(kind string) { if ActionsPublished != nil { ActionsPublished.WithLabelValues(kind).Inc() } }

// SetPendingDepth records the current pending-queue depth.
func SetPendingDepth(n int) { if PendingDepthGauge != nil { PendingDepthGauge.Set(float64(n)) } }

// SetSubscribers records the current consumer count.
func SetSubscribers(n int) { if SubscribersGauge != nil { SubscribersGauge.Set(float64(n)) } }

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil { obs.Observe(d.Seconds()) }
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}
var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context { return context.WithValue(ctx, corrKey, id) }

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok { return s }
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" { return slog.Default().With(slog.String("corr", id)) }
	return slog.Default()
}
