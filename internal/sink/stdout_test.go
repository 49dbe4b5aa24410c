package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gitrgoliveira/vault-eda-delivery/internal/event"
)

func testEnvelope(id, eventType string) event.Envelope {
	return event.Envelope{
		ID:         id,
		Type:       eventType,
		Origin:     "kv-v2/data-*",
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Payload:    json.RawMessage(`{"path":"secret/app"}`),
		Raw:        json.RawMessage(`{"id":"` + id + `"}`),
		ReceivedAt: time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC),
	}
}

func TestStdoutSink_Put(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutSink(&buf)

	if err := s.Put(context.Background(), testEnvelope("ev-1", "kv-v2/data-write")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if strings.Contains(line, "\n") {
		t.Errorf("output spans multiple lines: %q", line)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["id"] != "ev-1" {
		t.Errorf("id = %v, want ev-1", decoded["id"])
	}
	if decoded["type"] != "kv-v2/data-write" {
		t.Errorf("type = %v, want kv-v2/data-write", decoded["type"])
	}
	if decoded["origin"] != "kv-v2/data-*" {
		t.Errorf("origin = %v, want kv-v2/data-*", decoded["origin"])
	}
	payload, ok := decoded["payload"].(map[string]any)
	if !ok || payload["path"] != "secret/app" {
		t.Errorf("payload = %v, want embedded object", decoded["payload"])
	}
}

func TestStdoutSink_OneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutSink(&buf)

	for i, id := range []string{"a", "b", "c"} {
		if err := s.Put(context.Background(), testEnvelope(id, "kv-v2/data-write")); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Errorf("line is not valid JSON: %q", line)
		}
	}
}

func TestStdoutSink_CanceledContext(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutSink(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, testEnvelope("ev-1", "kv-v2/data-write")); err == nil {
		t.Error("Put succeeded with canceled context")
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes after cancel", buf.Len())
	}
}

func TestDiscard(t *testing.T) {
	var d Discard
	if err := d.Put(context.Background(), testEnvelope("ev-1", "kv-v2/data-write")); err != nil {
		t.Errorf("Put failed: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestChannelSink_Put(t *testing.T) {
	s := NewChannelSink(2)

	if err := s.Put(context.Background(), testEnvelope("ev-1", "kv-v2/data-write")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	select {
	case got := <-s.C:
		if got.ID != "ev-1" {
			t.Errorf("ID = %s, want ev-1", got.ID)
		}
	default:
		t.Fatal("channel empty after Put")
	}
}

func TestChannelSink_PutHonorsCancel(t *testing.T) {
	s := NewChannelSink(0) // unbuffered, nothing receiving

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, testEnvelope("ev-1", "kv-v2/data-write")); err == nil {
		t.Error("Put succeeded with canceled context and no receiver")
	}
}
