package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

// testSessionConfig returns a session config pointed at a test server. The
// server's plain http URL is used directly; SubscribeURL maps it to ws.
func testSessionConfig(server *httptest.Server) SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Addr = server.URL
	cfg.Pattern = "kv-v2/data-*"
	cfg.Token = "test-token"
	cfg.BufferSize = 100
	return cfg
}

func TestSession_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Just keep the connection open
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	sess := NewSession(testSessionConfig(server), nil)
	ctx := context.Background()

	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !sess.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := sess.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if sess.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestSession_HandshakeRequest(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotToken, gotNamespace, gotExtra string
	var gotQuery map[string][]string

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotToken = r.Header.Get("X-Vault-Token")
		gotNamespace = r.Header.Get("X-Vault-Namespace")
		gotExtra = r.Header.Get("X-Custom")
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	cfg := testSessionConfig(server)
	cfg.Namespace = "team-a"
	cfg.Headers = map[string]string{"X-Custom": "yes"}
	cfg.Filter = `event_type == "kv-v2/data-write"`

	sess := NewSession(cfg, nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	mu.Lock()
	defer mu.Unlock()

	if gotPath != "/v1/sys/events/subscribe/kv-v2/data-*" {
		t.Errorf("path = %q, want /v1/sys/events/subscribe/kv-v2/data-*", gotPath)
	}
	if got := gotQuery["json"]; len(got) != 1 || got[0] != "true" {
		t.Errorf("json query = %v, want [true]", got)
	}
	if got := gotQuery["filter"]; len(got) != 1 || got[0] != `event_type == "kv-v2/data-write"` {
		t.Errorf("filter query = %v, want the configured expression", got)
	}
	if gotToken != "test-token" {
		t.Errorf("X-Vault-Token = %q, want test-token", gotToken)
	}
	if gotNamespace != "team-a" {
		t.Errorf("X-Vault-Namespace = %q, want team-a", gotNamespace)
	}
	if gotExtra != "yes" {
		t.Errorf("X-Custom = %q, want yes", gotExtra)
	}
}

func TestSession_Events(t *testing.T) {
	frames := []string{
		`{"type":"test","data":{"n":1}}`,
		`{"type":"test","data":{"n":2}}`,
		`{"type":"test","data":{"n":3}}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		// Keep connection open
		time.Sleep(time.Second)
	})
	defer server.Close()

	sess := NewSession(testSessionConfig(server), nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	var payloads []string
	timeout := time.After(2 * time.Second)

	for i := 0; i < len(frames); i++ {
		select {
		case env := <-sess.Events():
			payloads = append(payloads, string(env.Payload))
			if env.Origin != "kv-v2/data-*" {
				t.Errorf("Origin = %q, want kv-v2/data-*", env.Origin)
			}
			if env.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for events, received %d of %d", len(payloads), len(frames))
		}
	}

	want := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	for i := range want {
		if payloads[i] != want[i] {
			t.Errorf("event %d: payload = %q, want %q", i, payloads[i], want[i])
		}
	}
}

func TestSession_MalformedFrameKeepsReading(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{broken`))
		time.Sleep(10 * time.Millisecond)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ok"}`))
		time.Sleep(time.Second)
	})
	defer server.Close()

	sess := NewSession(testSessionConfig(server), nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	select {
	case env := <-sess.Events():
		if env.Type != "ok" {
			t.Errorf("Type = %q, want ok", env.Type)
		}
	case err := <-sess.Errors():
		t.Fatalf("unexpected session error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for the frame after the malformed one")
	}

	if !sess.IsConnected() {
		t.Error("expected session to stay connected after malformed frame")
	}
}

func TestSession_EstablishedOnFirstRead(t *testing.T) {
	release := make(chan struct{})

	server := mockWSServer(t, func(conn *websocket.Conn) {
		<-release
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"first"}`))
		time.Sleep(time.Second)
	})
	defer server.Close()

	sess := NewSession(testSessionConfig(server), nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	select {
	case <-sess.Established():
		t.Fatal("session established before any read or ack")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-sess.Established():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for established signal")
	}
}

func TestSession_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission denied", http.StatusForbidden)
	}))
	defer server.Close()

	sess := NewSession(testSessionConfig(server), nil)

	err := sess.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect succeeded, want auth error")
	}

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error type = %T (%v), want *AuthError", err, err)
	}
	if authErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", authErr.StatusCode)
	}
}

func TestSession_StaleConnection(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Never read: client pings are never processed, so no pong comes back.
		time.Sleep(2 * time.Second)
	})
	defer server.Close()

	cfg := testSessionConfig(server)
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.StaleTimeout = 60 * time.Millisecond

	sess := NewSession(cfg, nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	select {
	case err := <-sess.Errors():
		if err != ErrStaleConnection {
			t.Errorf("error = %v, want ErrStaleConnection", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for stale connection error")
	}
}

func TestSession_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	sess := NewSession(testSessionConfig(server), nil)
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestSession_ConnectAfterClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	sess := NewSession(testSessionConfig(server), nil)
	sess.Close()

	if err := sess.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestDefaultConfigs(t *testing.T) {
	sessCfg := DefaultSessionConfig()
	if sessCfg.HeartbeatInterval != 20*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 20s", sessCfg.HeartbeatInterval)
	}
	if sessCfg.StaleTimeout != 60*time.Second {
		t.Errorf("StaleTimeout = %v, want 60s", sessCfg.StaleTimeout)
	}

	mgrCfg := DefaultManagerConfig()
	if mgrCfg.Backoff.Initial != 1*time.Second {
		t.Errorf("Backoff.Initial = %v, want 1s", mgrCfg.Backoff.Initial)
	}
	if mgrCfg.Backoff.Max != 30*time.Second {
		t.Errorf("Backoff.Max = %v, want 30s", mgrCfg.Backoff.Max)
	}
	if mgrCfg.FatalAuthAfter != 0 {
		t.Errorf("FatalAuthAfter = %d, want 0", mgrCfg.FatalAuthAfter)
	}
}
