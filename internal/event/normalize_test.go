package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNormalize_TypeAndData(t *testing.T) {
	raw := RawMessage{
		Data:       []byte(`{"type":"x","data":{"k":1}}`),
		ReceivedAt: time.Now(),
	}

	env, err := Normalize(raw, "kv-v2/data-*")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if env.Type != "x" {
		t.Errorf("Type = %q, want %q", env.Type, "x")
	}
	if string(env.Payload) != `{"k":1}` {
		t.Errorf("Payload = %s, want {\"k\":1}", env.Payload)
	}
	if env.Origin != "kv-v2/data-*" {
		t.Errorf("Origin = %q, want %q", env.Origin, "kv-v2/data-*")
	}
}

func TestNormalize_CloudEventsFrame(t *testing.T) {
	frame := `{
		"id": "abc-123",
		"source": "https://vaultproject.io/",
		"specversion": "1.0",
		"type": "*",
		"data": {
			"event": {"metadata": {"path": "secret/data/app"}},
			"event_type": "kv-v2/data-write",
			"plugin_info": {"mount_path": "secret/"}
		},
		"time": "2025-06-01T12:30:45.123456789Z"
	}`
	raw := RawMessage{Data: []byte(frame), ReceivedAt: time.Now()}

	env, err := Normalize(raw, "kv-v2/data-*")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if env.ID != "abc-123" {
		t.Errorf("ID = %q, want abc-123", env.ID)
	}
	// The nested event_type names the operation; the top-level type is only
	// the subscription wildcard.
	if env.Type != "kv-v2/data-write" {
		t.Errorf("Type = %q, want kv-v2/data-write", env.Type)
	}
	want := time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC)
	if !env.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", env.Timestamp, want)
	}

	var payload map[string]any
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("Payload not valid JSON: %v", err)
	}
	if payload["event_type"] != "kv-v2/data-write" {
		t.Errorf("payload event_type = %v, want kv-v2/data-write", payload["event_type"])
	}
}

func TestNormalize_TopLevelEventTypeWins(t *testing.T) {
	raw := RawMessage{
		Data:       []byte(`{"event_type":"top","type":"wild","data":{"event_type":"nested"}}`),
		ReceivedAt: time.Now(),
	}

	env, err := Normalize(raw, "p")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if env.Type != "top" {
		t.Errorf("Type = %q, want top", env.Type)
	}
}

func TestNormalize_UnknownTypeKeepsFullPayload(t *testing.T) {
	frame := `{"foo":"bar","n":42}`
	raw := RawMessage{Data: []byte(frame), ReceivedAt: time.Now()}

	env, err := Normalize(raw, "p1")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if env.Type != UnknownType {
		t.Errorf("Type = %q, want %q", env.Type, UnknownType)
	}
	if string(env.Payload) != frame {
		t.Errorf("Payload = %s, want full frame %s", env.Payload, frame)
	}
	if env.ID == "" {
		t.Error("ID empty, want generated UUID")
	}
}

func TestNormalize_NonObjectFrame(t *testing.T) {
	for _, frame := range []string{`[1,2,3]`, `"just a string"`, `42`, `null`} {
		raw := RawMessage{Data: []byte(frame), ReceivedAt: time.Now()}

		env, err := Normalize(raw, "p1")
		if err != nil {
			t.Errorf("Normalize(%s) error = %v, want nil", frame, err)
			continue
		}
		if env.Type != UnknownType {
			t.Errorf("Normalize(%s) Type = %q, want %q", frame, env.Type, UnknownType)
		}
		if string(env.Payload) != frame {
			t.Errorf("Normalize(%s) Payload = %s, want full frame", frame, env.Payload)
		}
	}
}

func TestNormalize_MalformedFrame(t *testing.T) {
	for _, frame := range []string{`{not json`, ``, `   `, `{"type":"x"`} {
		raw := RawMessage{Data: []byte(frame), ReceivedAt: time.Now()}

		_, err := Normalize(raw, "p1")
		if err == nil {
			t.Errorf("Normalize(%q) error = nil, want NormalizationError", frame)
			continue
		}
		var nerr *NormalizationError
		if !errors.As(err, &nerr) {
			t.Errorf("Normalize(%q) error type = %T, want *NormalizationError", frame, err)
		}
	}
}

func TestNormalize_OriginPreserved(t *testing.T) {
	frames := []string{
		`{"type":"a"}`,
		`{"event_type":"b","data":{}}`,
		`{"x":1}`,
		`[true]`,
	}
	for _, frame := range frames {
		env, err := Normalize(RawMessage{Data: []byte(frame), ReceivedAt: time.Now()}, "secret/*")
		if err != nil {
			t.Fatalf("Normalize(%s) error = %v", frame, err)
		}
		if env.Origin != "secret/*" {
			t.Errorf("Normalize(%s) Origin = %q, want secret/*", frame, env.Origin)
		}
	}
}

func TestNormalize_TimestampFallsBackToReceivedAt(t *testing.T) {
	receivedAt := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	raw := RawMessage{Data: []byte(`{"type":"x","time":"not a timestamp"}`), ReceivedAt: receivedAt}

	env, err := Normalize(raw, "p")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !env.Timestamp.Equal(receivedAt) {
		t.Errorf("Timestamp = %v, want receive time %v", env.Timestamp, receivedAt)
	}
	if !env.ReceivedAt.Equal(receivedAt) {
		t.Errorf("ReceivedAt = %v, want %v", env.ReceivedAt, receivedAt)
	}
}

func TestNormalize_ErrorSnippetTruncated(t *testing.T) {
	big := make([]byte, 4096)
	for i := range big {
		big[i] = 'x'
	}

	_, err := Normalize(RawMessage{Data: big, ReceivedAt: time.Now()}, "p")
	if err == nil {
		t.Fatal("Normalize() error = nil, want NormalizationError")
	}
	var nerr *NormalizationError
	if !errors.As(err, &nerr) {
		t.Fatalf("error type = %T, want *NormalizationError", err)
	}
	if len(nerr.Frame) > frameSnippetLen {
		t.Errorf("Frame snippet length = %d, want <= %d", len(nerr.Frame), frameSnippetLen)
	}
}
