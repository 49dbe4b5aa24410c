package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gitrgoliveira/vault-eda-delivery/internal/event"
)

// NATSConfig holds NATS sink configuration.
type NATSConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for connection identification.
	Name string

	// SubjectPrefix is prepended to every published subject.
	SubjectPrefix string

	// ConnectTimeout is the initial connection timeout.
	ConnectTimeout time.Duration

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for infinite reconnects.
	MaxReconnects int
}

// DefaultNATSConfig returns a NATSConfig with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            nats.DefaultURL,
		Name:           "vault-eda-delivery",
		SubjectPrefix:  "events",
		ConnectTimeout: 5 * time.Second,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
	}
}

// NATSSink publishes each event to a subject derived from its type.
type NATSSink struct {
	cfg    NATSConfig
	logger *slog.Logger
	conn   *nats.Conn
}

// NewNATSSink connects to the NATS server and returns a sink.
func NewNATSSink(cfg NATSConfig, logger *slog.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATSSink{cfg: cfg, logger: logger, conn: conn}, nil
}

// Put publishes the envelope as JSON to its type subject.
func (s *NATSSink) Put(ctx context.Context, env event.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return s.conn.Publish(subjectForType(s.cfg.SubjectPrefix, env.Type), data)
}

// Close flushes pending publishes and closes the connection.
func (s *NATSSink) Close(ctx context.Context) error {
	defer s.conn.Close()
	return s.conn.FlushWithContext(ctx)
}

// subjectForType maps an event type onto a NATS subject under the prefix.
// Path separators become subject tokens, so "kv-v2/data-write" publishes to
// "events.kv-v2.data-write" and consumers can subscribe to "events.kv-v2.>".
func subjectForType(prefix, eventType string) string {
	var tokens []string
	for _, part := range strings.Split(eventType, "/") {
		token := sanitizeToken(part)
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		tokens = []string{event.UnknownType}
	}
	return prefix + "." + strings.Join(tokens, ".")
}

// sanitizeToken replaces characters that are not valid in a NATS subject
// token. '*' and '>' are subject wildcards and must never appear literally.
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
