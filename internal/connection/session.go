package connection

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gitrgoliveira/vault-eda-delivery/internal/event"
	"github.com/gitrgoliveira/vault-eda-delivery/internal/metrics"
)

// Session represents a single WebSocket subscription to one topic pattern.
type Session interface {
	// Connect performs the handshake and starts the read and heartbeat loops.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Events returns the channel of normalized envelopes read from this
	// session, in arrival order.
	Events() <-chan event.Envelope

	// Errors returns a channel of connection errors.
	Errors() <-chan error

	// Established is closed after the first successful read or heartbeat
	// ack, the point at which the reconnect attempt counter resets.
	Established() <-chan struct{}

	// IsConnected returns current connection state.
	IsConnected() bool
}

// session implements the Session interface.
type session struct {
	cfg    SessionConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	events chan event.Envelope
	errors chan error
	done   chan struct{}

	// Established signal
	estOnce     sync.Once
	established chan struct{}

	// State
	mu        sync.RWMutex
	connected bool
	lastAckAt time.Time
	closed    bool
}

// NewSession creates a session for one topic pattern. It does not connect.
func NewSession(cfg SessionConfig, logger *slog.Logger) Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &session{
		cfg:         cfg,
		logger:      logger,
		events:      make(chan event.Envelope, cfg.BufferSize),
		errors:      make(chan error, 1),
		done:        make(chan struct{}),
		established: make(chan struct{}),
	}
}

// Connect performs the WebSocket handshake and starts the session loops.
func (s *session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	s.mu.Unlock()

	wsURL, err := SubscribeURL(s.cfg.Addr, s.cfg.Pattern, s.cfg.Filter)
	if err != nil {
		return err
	}

	// Build headers
	header := http.Header{}
	header.Set("X-Vault-Token", s.cfg.Token)
	if s.cfg.Namespace != "" {
		header.Set("X-Vault-Namespace", s.cfg.Namespace)
	}
	for k, v := range s.cfg.Headers {
		header.Set(k, v)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}
	if s.cfg.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return &AuthError{StatusCode: resp.StatusCode}
		}
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.lastAckAt = time.Now()
	s.mu.Unlock()

	// Server-initiated pings refresh liveness and get the mandatory pong.
	conn.SetPingHandler(func(data string) error {
		s.markAck()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(s.cfg.WriteTimeout),
		)
	})

	// Pong acks for our keepalive pings establish the session.
	conn.SetPongHandler(func(string) error {
		s.markAck()
		s.markEstablished()
		return nil
	})

	go s.readLoop()
	go s.heartbeatLoop()

	s.logger.Debug("websocket connected", "url", wsURL)

	return nil
}

// Close gracefully closes the connection.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	s.mu.Unlock()

	// Signal goroutines to stop
	close(s.done)

	if s.conn != nil {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return s.conn.Close()
	}

	return nil
}

// Events returns the normalized event channel.
func (s *session) Events() <-chan event.Envelope {
	return s.events
}

// Errors returns the errors channel.
func (s *session) Errors() <-chan error {
	return s.errors
}

// Established returns the established signal channel.
func (s *session) Established() <-chan struct{} {
	return s.established
}

// IsConnected returns the current connection state.
func (s *session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *session) markAck() {
	s.mu.Lock()
	s.lastAckAt = time.Now()
	s.mu.Unlock()
}

func (s *session) markEstablished() {
	s.estOnce.Do(func() {
		close(s.established)
	})
}

// readLoop reads frames, normalizes them, and forwards envelopes. Malformed
// frames are logged and dropped without leaving the loop. The forward blocks
// when the events channel is full: a stalled consumer stops reads, the
// heartbeat goes stale, and the session is torn down for a clean reconnect.
func (s *session) readLoop() {
	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-s.done:
				return
			default:
				select {
				case s.errors <- err:
				default:
				}
				return
			}
		}

		s.markAck()
		s.markEstablished()

		env, err := event.Normalize(event.RawMessage{Data: data, ReceivedAt: receivedAt}, s.cfg.Pattern)
		if err != nil {
			s.logger.Warn("dropping malformed frame", "error", err)
			metrics.NormalizeErrorsTotal.WithLabelValues(s.cfg.Pattern).Inc()
			continue
		}
		metrics.EventsReceivedTotal.WithLabelValues(s.cfg.Pattern).Inc()

		select {
		case s.events <- env:
		case <-s.done:
			return
		}
	}
}

// heartbeatLoop sends keepalive pings and tears the session down when no
// ack or frame has arrived within the stale timeout.
func (s *session) heartbeatLoop() {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(s.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					s.logger.Debug("failed to send ping", "error", err)
				}
			}

			s.mu.RLock()
			lastAck := s.lastAckAt
			s.mu.RUnlock()

			if time.Since(lastAck) > s.cfg.StaleTimeout {
				s.logger.Warn("no heartbeat ack, connection stale",
					"last_ack", lastAck,
					"timeout", s.cfg.StaleTimeout,
				)
				select {
				case s.errors <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
