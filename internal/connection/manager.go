package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gitrgoliveira/vault-eda-delivery/internal/event"
	"github.com/gitrgoliveira/vault-eda-delivery/internal/metrics"
)

// Manager supervises one session per configured topic pattern.
type Manager interface {
	// Start validates the configuration and begins supervising sessions.
	Start(ctx context.Context) error

	// Stop gracefully shuts down all sessions, waiting up to the deadline
	// on ctx before abandoning them.
	Stop(ctx context.Context) error

	// Events returns the aggregate channel of normalized envelopes from
	// all sessions. It is closed after a clean Stop.
	Events() <-chan event.Envelope

	// Errors returns a best-effort channel of recovered errors.
	Errors() <-chan error

	// Fatal returns a channel that receives at most one error, when the
	// fatal-auth threshold is crossed.
	Fatal() <-chan error

	// States returns the current state of every pattern's session.
	States() map[string]SessionState

	// Stats returns current session statistics.
	Stats() ManagerStats
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	// Output channels
	events chan event.Envelope
	errors chan error
	fatal  chan error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	states  map[string]SessionState
}

// NewManager creates a Connection Manager. A manager drives a single run:
// Start may be called once, and a new run needs a new manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &manager{
		cfg:    cfg,
		logger: logger,
		events: make(chan event.Envelope, cfg.EventBufferSize),
		errors: make(chan error, 64),
		fatal:  make(chan error, 1),
		states: make(map[string]SessionState),
	}
}

// Start validates the configuration and spawns one supervision loop per
// topic pattern. Configuration problems are returned before any dial.
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	if len(m.cfg.Patterns) == 0 {
		return ErrNoPatterns
	}
	seen := make(map[string]struct{}, len(m.cfg.Patterns))
	for _, p := range m.cfg.Patterns {
		if _, dup := seen[p]; dup {
			return fmt.Errorf("duplicate topic pattern %q", p)
		}
		seen[p] = struct{}{}
		if _, err := SubscribeURL(m.cfg.Addr, p, m.cfg.Filter); err != nil {
			return err
		}
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	for _, p := range m.cfg.Patterns {
		m.mu.Lock()
		m.states[p] = StateConnecting
		m.mu.Unlock()

		m.wg.Add(1)
		go m.supervise(p)
	}

	m.logger.Info("connection manager started", "patterns", len(m.cfg.Patterns))

	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping connection manager")

	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	for p := range m.states {
		m.states[p] = StateClosing
	}
	m.mu.Unlock()

	// Wait for supervision loops with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		close(m.events)
	case <-ctx.Done():
		m.logger.Warn("shutdown grace period exceeded, abandoning sessions")
		err = ctx.Err()
	}

	m.mu.Lock()
	for p := range m.states {
		m.states[p] = StateStopped
	}
	m.mu.Unlock()

	m.logger.Info("connection manager stopped")
	return err
}

// Events returns the aggregate envelope channel.
func (m *manager) Events() <-chan event.Envelope {
	return m.events
}

// Errors returns the recovered-error channel.
func (m *manager) Errors() <-chan error {
	return m.errors
}

// Fatal returns the fatal-error channel.
func (m *manager) Fatal() <-chan error {
	return m.fatal
}

// States returns a snapshot of each pattern's session state.
func (m *manager) States() map[string]SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]SessionState, len(m.states))
	for p, st := range m.states {
		states[p] = st
	}
	return states
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	open := 0
	for _, st := range m.states {
		if st == StateOpen {
			open++
		}
	}
	return ManagerStats{
		Patterns:     len(m.states),
		OpenSessions: open,
	}
}

// supervise keeps one pattern's session alive until shutdown. Each iteration
// dials a fresh session, pumps it until it fails, then waits out the backoff
// delay. The attempt counter resets once a session is established, so the
// next failure backs off from the initial delay again.
func (m *manager) supervise(pattern string) {
	defer m.wg.Done()

	logger := m.logger.With("pattern", pattern)
	attempt := 0
	authFails := 0

	for {
		if m.ctx.Err() != nil {
			return
		}

		m.setState(pattern, StateConnecting)

		sess := m.newSession(pattern, logger)
		if err := sess.Connect(m.ctx); err != nil {
			sess.Close()
			if m.ctx.Err() != nil {
				return
			}

			var authErr *AuthError
			if errors.As(err, &authErr) {
				authFails++
				metrics.AuthFailuresTotal.WithLabelValues(pattern).Inc()
				if m.cfg.FatalAuthAfter > 0 && authFails >= m.cfg.FatalAuthAfter {
					logger.Error("giving up after repeated authorization failures",
						"failures", authFails,
					)
					select {
					case m.fatal <- fmt.Errorf("pattern %q: %w", pattern, err):
					default:
					}
					m.setState(pattern, StateStopped)
					return
				}
			} else {
				authFails = 0
			}

			m.reportError(err)
			wait := m.cfg.Backoff.Next(attempt)
			logger.Warn("connect failed", "error", err, "attempt", attempt, "retry_in", wait)
			if !m.waitBackoff(pattern, wait) {
				return
			}
			attempt++
			continue
		}

		m.setState(pattern, StateOpen)
		logger.Info("session open", "attempt", attempt)
		metrics.SessionsOpen.Inc()

		err := m.pump(sess, &attempt, &authFails)
		sess.Close()
		metrics.SessionsOpen.Dec()

		if m.ctx.Err() != nil {
			return
		}

		m.reportError(err)
		wait := m.cfg.Backoff.Next(attempt)
		logger.Warn("session lost", "error", err, "attempt", attempt, "retry_in", wait)
		if !m.waitBackoff(pattern, wait) {
			return
		}
		attempt++
	}
}

// pump forwards one session's envelopes to the aggregate channel until the
// session fails or the manager shuts down. On failure, envelopes the session
// already read are drained first so none are lost ahead of the reconnect.
func (m *manager) pump(sess Session, attempt, authFails *int) error {
	established := sess.Established()

	for {
		select {
		case <-m.ctx.Done():
			return nil

		case <-established:
			*attempt = 0
			*authFails = 0
			established = nil

		case err := <-sess.Errors():
			// The session may have established in the same instant it failed;
			// do not lose the attempt reset to select ordering.
			if established != nil {
				select {
				case <-established:
					*attempt = 0
					*authFails = 0
				default:
				}
			}
			for {
				select {
				case env := <-sess.Events():
					select {
					case m.events <- env:
					case <-m.ctx.Done():
						return nil
					}
				default:
					return err
				}
			}

		case env := <-sess.Events():
			select {
			case m.events <- env:
			case <-m.ctx.Done():
				return nil
			}
		}
	}
}

// waitBackoff sleeps out one backoff delay. It returns false when the
// manager shut down during the wait.
func (m *manager) waitBackoff(pattern string, wait time.Duration) bool {
	m.setState(pattern, StateBackoff)
	metrics.ReconnectsTotal.WithLabelValues(pattern).Inc()

	select {
	case <-m.ctx.Done():
		return false
	case <-time.After(wait):
	}

	return true
}

// newSession builds the per-pattern session from the manager configuration.
func (m *manager) newSession(pattern string, logger *slog.Logger) Session {
	return NewSession(SessionConfig{
		Addr:               m.cfg.Addr,
		Pattern:            pattern,
		Token:              m.cfg.Token,
		Namespace:          m.cfg.Namespace,
		Headers:            m.cfg.Headers,
		Filter:             m.cfg.Filter,
		InsecureSkipVerify: m.cfg.InsecureSkipVerify,
		HeartbeatInterval:  m.cfg.HeartbeatInterval,
		StaleTimeout:       m.cfg.StaleTimeout,
		WriteTimeout:       m.cfg.WriteTimeout,
		HandshakeTimeout:   m.cfg.HandshakeTimeout,
		BufferSize:         m.cfg.SessionBufferSize,
	}, logger)
}

// reportError pushes a recovered error to the advisory channel.
func (m *manager) reportError(err error) {
	if err == nil {
		return
	}
	select {
	case m.errors <- err:
	default:
	}
}

// setState records a state transition. Transitions are ignored once shutdown
// has begun so Stop owns the terminal states.
func (m *manager) setState(pattern string, st SessionState) {
	if m.ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	prev := m.states[pattern]
	m.states[pattern] = st
	m.mu.Unlock()

	if prev != st {
		m.logger.Debug("session state changed", "pattern", pattern, "from", prev, "to", st)
	}
}
