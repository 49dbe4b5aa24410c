package sink

import (
	"context"

	"github.com/gitrgoliveira/vault-eda-delivery/internal/event"
)

// Sink delivers normalized events to a destination. Implementations must be
// safe for concurrent Put calls; the dispatcher delivers from one goroutine
// per origin.
//
// Close is owned by whoever constructed the sink, not by the dispatcher.
type Sink interface {
	// Put delivers a single event. A non-nil error marks the event as
	// failed; the dispatcher logs and counts it but keeps going.
	Put(ctx context.Context, env event.Envelope) error

	// Close flushes anything buffered and releases resources. The context
	// bounds how long the flush may take.
	Close(ctx context.Context) error
}

// Discard is a Sink that accepts and drops every event. Used when no
// delivery target is configured and the stream is run for its logs and
// metrics alone.
type Discard struct{}

func (Discard) Put(ctx context.Context, env event.Envelope) error { return nil }

func (Discard) Close(ctx context.Context) error { return nil }

// ChannelSink forwards events onto a Go channel, for embedding the pipeline
// in another program.
type ChannelSink struct {
	C chan event.Envelope
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{C: make(chan event.Envelope, size)}
}

// Put sends the envelope on the channel, honoring context cancellation.
func (s *ChannelSink) Put(ctx context.Context, env event.Envelope) error {
	select {
	case s.C <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the channel. No Put may be in flight or follow.
func (s *ChannelSink) Close(ctx context.Context) error {
	close(s.C)
	return nil
}
