package sink

import (
	"testing"
)

func TestSubjectForType(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		want      string
	}{
		{name: "simple", eventType: "write", want: "events.write"},
		{name: "mount path", eventType: "kv-v2/data-write", want: "events.kv-v2.data-write"},
		{name: "deep path", eventType: "database/creds/app-role", want: "events.database.creds.app-role"},
		{name: "unknown", eventType: "unknown", want: "events.unknown"},
		{name: "empty", eventType: "", want: "events.unknown"},
		{name: "wildcard stripped", eventType: "kv-v2/data-*", want: "events.kv-v2.data-_"},
		{name: "spaces replaced", eventType: "foo bar", want: "events.foo_bar"},
		{name: "slashes only", eventType: "///", want: "events.unknown"},
		{name: "dots replaced", eventType: "a.b/c", want: "events.a_b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := subjectForType("events", tt.eventType)
			if got != tt.want {
				t.Errorf("subjectForType(%q) = %q, want %q", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestDefaultNATSConfig(t *testing.T) {
	cfg := DefaultNATSConfig()
	if cfg.URL == "" {
		t.Error("URL is empty")
	}
	if cfg.SubjectPrefix != "events" {
		t.Errorf("SubjectPrefix = %q, want events", cfg.SubjectPrefix)
	}
	if cfg.MaxReconnects != -1 {
		t.Errorf("MaxReconnects = %d, want -1", cfg.MaxReconnects)
	}
}
