// streamtest runs a local WebSocket server that mimics the Vault event
// subscribe endpoint, emitting synthetic kv-v2 events so the full connector
// pipeline can be exercised without a Vault Enterprise cluster.
// Usage: go run ./cmd/streamtest --addr 127.0.0.1:8200
//
// Point a connector at it with:
//
//	vault:
//	  addr: http://127.0.0.1:8200
//	  token: root
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8200", "listen address")
	token := flag.String("token", "root", "expected X-Vault-Token value (empty disables the check)")
	interval := flag.Duration("interval", time.Second, "delay between synthetic events")
	verbose := flag.Bool("verbose", false, "print each emitted frame")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	srv := &eventServer{
		token:    *token,
		interval: *interval,
		verbose:  *verbose,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sys/events/subscribe/", func(w http.ResponseWriter, r *http.Request) {
		srv.handleSubscribe(ctx, w, r)
	})

	httpServer := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Info("listening", "addr", *addr, "interval", interval.String())
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	// Close rather than Shutdown: hijacked WebSocket connections never drain.
	logger.Info("shutting down...")
	httpServer.Close()
	logger.Info("shutdown complete")
}

type eventServer struct {
	token    string
	interval time.Duration
	verbose  bool
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func (s *eventServer) handleSubscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	pattern := strings.TrimPrefix(r.URL.Path, "/v1/sys/events/subscribe/")
	if pattern == "" {
		http.Error(w, `{"errors":["missing event type pattern"]}`, http.StatusBadRequest)
		return
	}

	if s.token != "" && r.Header.Get("X-Vault-Token") != s.token {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":["permission denied"]}`))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "error", err)
		return
	}

	s.logger.Info("client subscribed",
		"pattern", pattern,
		"filter", r.URL.Query().Get("filter"),
		"remote", r.RemoteAddr,
	)

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	// Read loop so client pings get answered; any read error ends the session.
	go func() {
		defer connCancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer conn.Close()

	n := 0
	for {
		select {
		case <-connCtx.Done():
			s.logger.Info("client gone", "pattern", pattern, "sent", n)
			return
		case <-ticker.C:
			frame, eventType := syntheticFrame(pattern, n)
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Warn("write failed", "pattern", pattern, "error", err)
				return
			}
			if s.verbose {
				fmt.Printf("[EVENT] %s\n", frame)
			} else {
				s.logger.Debug("sent event", "pattern", pattern, "event_type", eventType, "n", n)
			}
			n++
		}
	}
}

// vaultFrame mirrors the JSON shape Vault sends on the subscribe stream:
// a CloudEvents wrapper whose data carries the actual event.
type vaultFrame struct {
	ID              string         `json:"id"`
	Source          string         `json:"source"`
	SpecVersion     string         `json:"specversion"`
	Type            string         `json:"type"`
	Data            vaultFrameData `json:"data"`
	DataContentType string         `json:"datacontenttype"`
	Time            string         `json:"time"`
}

type vaultFrameData struct {
	Event      vaultEvent      `json:"event"`
	EventType  string          `json:"event_type"`
	PluginInfo vaultPluginInfo `json:"plugin_info"`
}

type vaultEvent struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

type vaultPluginInfo struct {
	MountClass    string `json:"mount_class"`
	MountAccessor string `json:"mount_accessor"`
	MountPath     string `json:"mount_path"`
	Plugin        string `json:"plugin"`
}

var kvOperations = []string{"data-write", "data-patch", "data-delete"}

// syntheticFrame builds one event frame whose event_type satisfies the
// subscription pattern. Wildcards in the pattern are filled with a rotating
// kv operation so a kv-v2/* subscription sees varied types.
func syntheticFrame(pattern string, n int) ([]byte, string) {
	op := kvOperations[n%len(kvOperations)]
	eventType := pattern
	if strings.Contains(pattern, "*") {
		eventType = strings.Replace(pattern, "*", op, 1)
	}

	id := uuid.NewString()
	path := fmt.Sprintf("secret/data/app-%d", n%5)
	frame := vaultFrame{
		ID:          id,
		Source:      "vault://streamtest",
		SpecVersion: "1.0",
		Type:        "*",
		Data: vaultFrameData{
			Event: vaultEvent{
				ID: id,
				Metadata: map[string]string{
					"current_version": fmt.Sprintf("%d", n/5+1),
					"data_path":       path,
					"modified":        "true",
					"operation":       op,
					"path":            path,
				},
			},
			EventType: eventType,
			PluginInfo: vaultPluginInfo{
				MountClass:    "secret",
				MountAccessor: "kv_streamtest",
				MountPath:     "secret/",
				Plugin:        "kv",
			},
		},
		DataContentType: "application/cloudevents",
		Time:            time.Now().UTC().Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(frame)
	if err != nil {
		// Static struct, cannot fail
		panic(err)
	}
	return data, eventType
}
