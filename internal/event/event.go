// Package event defines the canonical event envelope and the normalization
// from raw subscribe-stream frames into it.
package event

import (
	"encoding/json"
	"time"
)

// UnknownType is assigned when no type identifier can be extracted from a
// frame. The full frame is kept as the payload so nothing is discarded.
const UnknownType = "unknown"

// RawMessage is one unparsed frame as received from the transport. It is
// owned by the session that read it until handed to Normalize.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// Envelope is the canonical normalized event. Immutable once constructed;
// ownership passes through the dispatcher to the sink.
type Envelope struct {
	// ID is the wire event ID, or a generated UUID when the frame has none.
	ID string `json:"id"`

	// Type identifies the event operation, e.g. "kv-v2/data-write".
	Type string `json:"type"`

	// Origin is the topic pattern of the session that received the frame.
	Origin string `json:"origin"`

	// Timestamp is the event time claimed by the frame, falling back to the
	// local receive time.
	Timestamp time.Time `json:"timestamp"`

	// Payload is the structured event body: the frame's "data" member when
	// present, otherwise the whole frame.
	Payload json.RawMessage `json:"payload"`

	// Raw is the complete original frame, retained for storage sinks.
	Raw json.RawMessage `json:"-"`

	// ReceivedAt is when the transport delivered the frame.
	ReceivedAt time.Time `json:"received_at"`
}
