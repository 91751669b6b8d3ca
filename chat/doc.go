// Package chat contains the chat synchronization engine and the platform
// response parser.
//
// The engine buffers parsed chat chunks in an ordered pending queue,
// reconciles out-of-band moderation events (author bonks, single-message
// deletions) against buffered messages, smooths delivery timing when chunks
// arrive late, and releases messages to the display consumer at the correct
// playback-relative instant.
//
// Two modes exist for the lifetime of an engine:
//   - live: the engine self-drives progress from wall clock every 250ms and
//     message showtimes are wall-clock milliseconds.
//   - replay: the host reports playback position (which may jump on seeks)
//     and showtimes are milliseconds relative to video start.
//
// Feed the engine either raw platform JSON via Ingest (parsed by Parse or an
// injected ParseFunc) or pre-built chunks via IngestChunk. Consumers attach
// to Latest() and seed their view from InitialSnapshot().
package chat
