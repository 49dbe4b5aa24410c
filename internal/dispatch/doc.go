// Package dispatch implements the fan-out from the merged event stream to
// the configured sink.
//
// Each origin (topic pattern) gets its own bounded ring buffer and drain
// goroutine, so a slow or failing delivery for one origin never reorders or
// stalls another. When a buffer fills, the configured policy either drops
// the oldest buffered event (drop_oldest) or blocks the dispatcher (block),
// which backpressures the WebSocket reads feeding it.
package dispatch
