package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// frameSnippetLen bounds how much of a bad frame is carried in errors.
const frameSnippetLen = 256

// NormalizationError reports a frame that could not be normalized. It is
// recoverable: the session logs it, drops the frame, and keeps reading.
type NormalizationError struct {
	Cause error
	Frame []byte
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize frame %q: %v", e.Frame, e.Cause)
}

func (e *NormalizationError) Unwrap() error { return e.Cause }

// Normalize converts one raw frame into an Envelope attributed to origin.
//
// The type identifier is resolved from the frame's top-level "event_type",
// then the nested "data.event_type", then the top-level "type"; if none is
// present the envelope gets UnknownType and the whole frame as payload. The
// nested lookup comes first of the two because subscribe streams set the
// top-level "type" to the subscription wildcard, while "data.event_type"
// names the actual operation.
//
// Malformed frames return a *NormalizationError and no envelope.
func Normalize(raw RawMessage, origin string) (Envelope, error) {
	data := bytes.TrimSpace(raw.Data)
	if len(data) == 0 {
		return Envelope{}, &NormalizationError{Cause: errors.New("empty frame"), Frame: snippet(raw.Data)}
	}
	if !json.Valid(data) {
		return Envelope{}, &NormalizationError{Cause: errors.New("invalid JSON"), Frame: snippet(data)}
	}

	env := Envelope{
		Type:       UnknownType,
		Origin:     origin,
		Timestamp:  raw.ReceivedAt,
		Payload:    json.RawMessage(data),
		Raw:        json.RawMessage(data),
		ReceivedAt: raw.ReceivedAt,
	}

	if data[0] != '{' {
		// Arrays and scalars are valid frames with no type information.
		env.ID = uuid.NewString()
		return env, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}, &NormalizationError{Cause: err, Frame: snippet(data)}
	}

	if t := stringField(fields, "event_type"); t != "" {
		env.Type = t
	} else if t := nestedEventType(fields["data"]); t != "" {
		env.Type = t
	} else if t := stringField(fields, "type"); t != "" {
		env.Type = t
	}

	if nested, ok := fields["data"]; ok && len(nested) > 0 {
		env.Payload = nested
	}

	if id := stringField(fields, "id"); id != "" {
		env.ID = id
	} else {
		env.ID = uuid.NewString()
	}

	if s := stringField(fields, "time"); s != "" {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			env.Timestamp = ts
		}
	}

	return env, nil
}

func nestedEventType(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var nested struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &nested); err != nil {
		return ""
	}
	return nested.EventType
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func snippet(b []byte) []byte {
	if len(b) > frameSnippetLen {
		b = b[:frameSnippetLen]
	}
	return b
}
