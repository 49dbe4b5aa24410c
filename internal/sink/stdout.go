package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/gitrgoliveira/vault-eda-delivery/internal/event"
)

// StdoutSink writes each event as a single JSON line.
type StdoutSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdoutSink creates a sink writing to w, or os.Stdout when w is nil.
func NewStdoutSink(w io.Writer) *StdoutSink {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutSink{enc: json.NewEncoder(w)}
}

// Put encodes the envelope as one JSON line.
func (s *StdoutSink) Put(ctx context.Context, env event.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(env)
}

// Close is a no-op; nothing is buffered.
func (s *StdoutSink) Close(ctx context.Context) error { return nil }
