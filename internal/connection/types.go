package connection

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gitrgoliveira/vault-eda-delivery/internal/backoff"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no heartbeat ack)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAlreadyStarted  = errors.New("manager already started")
	ErrNoPatterns      = errors.New("no topic patterns configured")
)

// AuthError reports a handshake rejected by the server's authorization layer
// (401 or 403). It is retried like any transport failure unless the manager
// is configured with a fatal-failure threshold.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("handshake rejected: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// SessionState is the lifecycle state of one pattern's session, as tracked
// by the manager.
type SessionState string

const (
	StateConnecting SessionState = "connecting"
	StateOpen       SessionState = "open"
	StateBackoff    SessionState = "backoff"
	StateClosing    SessionState = "closing"
	StateStopped    SessionState = "stopped"
)

// SessionConfig configures a single WebSocket session.
type SessionConfig struct {
	Addr               string            // Server base URL (http(s) or ws(s) scheme)
	Pattern            string            // Topic pattern this session subscribes to
	Token              string            // Auth token, sent as X-Vault-Token
	Namespace          string            // Optional namespace, sent as X-Vault-Namespace
	Headers            map[string]string // Extra headers attached to the handshake
	Filter             string            // Optional server-side filter expression
	InsecureSkipVerify bool              // Disable TLS certificate verification
	HeartbeatInterval  time.Duration     // Interval between keepalive pings
	StaleTimeout       time.Duration     // Max time without any ack or frame before the session is stale
	WriteTimeout       time.Duration     // Write deadline for control frames
	HandshakeTimeout   time.Duration     // Dial timeout
	BufferSize         int               // Event channel buffer size
}

// DefaultSessionConfig returns sensible defaults. Addr, Pattern and Token
// must still be supplied.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		HeartbeatInterval: 20 * time.Second,
		StaleTimeout:      60 * time.Second,
		WriteTimeout:      5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		BufferSize:        256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Addr               string            // Server base URL
	Token              string            // Auth token shared by all sessions
	Namespace          string            // Optional namespace header
	Headers            map[string]string // Extra handshake headers
	Patterns           []string          // One session is kept per pattern
	Filter             string            // Optional filter expression, applied to every pattern
	InsecureSkipVerify bool              // Disable TLS certificate verification
	HeartbeatInterval  time.Duration     // Keepalive ping interval
	StaleTimeout       time.Duration     // Stale-session timeout
	WriteTimeout       time.Duration     // Write deadline for control frames
	HandshakeTimeout   time.Duration     // Dial timeout
	Backoff            backoff.Policy    // Reconnect delay policy
	FatalAuthAfter     int               // Consecutive auth failures before giving up (0 = retry forever)
	EventBufferSize    int               // Aggregate event channel buffer size
	SessionBufferSize  int               // Per-session event channel buffer size
}

// DefaultManagerConfig returns sensible defaults. Addr, Token and Patterns
// must still be supplied.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HeartbeatInterval: 20 * time.Second,
		StaleTimeout:      60 * time.Second,
		WriteTimeout:      5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		Backoff:           backoff.DefaultPolicy(),
		EventBufferSize:   1000,
		SessionBufferSize: 256,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Patterns     int
	OpenSessions int
}
