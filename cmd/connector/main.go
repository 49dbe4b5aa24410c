// connector streams Vault audit events over WebSocket and delivers them to a
// configurable sink. Usage: connector --config configs/connector.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gitrgoliveira/vault-eda-delivery/internal/backoff"
	"github.com/gitrgoliveira/vault-eda-delivery/internal/config"
	"github.com/gitrgoliveira/vault-eda-delivery/internal/connection"
	"github.com/gitrgoliveira/vault-eda-delivery/internal/database"
	"github.com/gitrgoliveira/vault-eda-delivery/internal/dispatch"
	"github.com/gitrgoliveira/vault-eda-delivery/internal/sink"
	"github.com/gitrgoliveira/vault-eda-delivery/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/connector.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Logs go to stderr so the stdout sink keeps stdout clean for event JSON.
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting connector",
		"version", version.Version,
		"commit", version.Commit,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

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

	// Build the delivery sink
	var snk sink.Sink
	var pool *pgxpool.Pool
	switch cfg.Sink.Kind {
	case "stdout":
		snk = sink.NewStdoutSink(nil)
	case "none":
		snk = sink.Discard{}
	case "nats":
		ncfg := sink.DefaultNATSConfig()
		ncfg.URL = cfg.Sink.NATS.URL
		ncfg.SubjectPrefix = cfg.Sink.NATS.SubjectPrefix
		ncfg.ConnectTimeout = cfg.Sink.NATS.ConnectTimeout
		natsSink, err := sink.NewNATSSink(ncfg, logger)
		if err != nil {
			logger.Error("failed to connect to nats", "url", ncfg.URL, "error", err)
			os.Exit(1)
		}
		snk = natsSink
	case "postgres":
		logger.Info("connecting to database",
			"host", cfg.Sink.Postgres.Host,
			"port", cfg.Sink.Postgres.Port,
			"database", cfg.Sink.Postgres.Name,
		)
		pool, err = database.Connect(ctx, cfg.Sink.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		pgSink := sink.NewPostgresSink(pool, sink.PostgresConfig{
			BatchSize:     cfg.Sink.Postgres.BatchSize,
			FlushInterval: cfg.Sink.Postgres.FlushInterval,
		}, logger)
		if err := pgSink.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		pgSink.Start(ctx)
		snk = pgSink
	default:
		logger.Error("unknown sink kind", "kind", cfg.Sink.Kind)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	// Connection manager, one session per event path pattern
	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.Addr = cfg.Vault.Addr
	mgrCfg.Token = cfg.Vault.Token
	mgrCfg.Namespace = cfg.Vault.Namespace
	mgrCfg.Headers = cfg.ExtraHeaders
	mgrCfg.Patterns = cfg.EventPaths
	mgrCfg.Filter = cfg.Filter
	mgrCfg.InsecureSkipVerify = cfg.Vault.TLS.SkipVerify
	mgrCfg.HeartbeatInterval = cfg.HeartbeatInterval
	mgrCfg.StaleTimeout = cfg.StaleTimeout
	mgrCfg.Backoff = backoff.Policy{Initial: cfg.Backoff.Initial, Max: cfg.Backoff.Max}
	mgrCfg.FatalAuthAfter = cfg.Auth.FatalAfter

	mgr := connection.NewManager(mgrCfg, logger)

	// Dispatcher fans events out of the manager channel into per-origin buffers
	disp := dispatch.NewDispatcher(dispatch.Config{
		BufferCapacity: cfg.Buffer.Capacity,
		Policy:         dispatch.Policy(cfg.Buffer.Policy),
	}, mgr.Events(), snk, logger)

	logger.Info("starting connection manager", "patterns", len(cfg.EventPaths))
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	logger.Info("starting dispatcher", "sink", cfg.Sink.Kind)
	if err := disp.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}

	// Session errors are already logged inside the manager. Draining the
	// channel here keeps slow consumers from being an issue.
	go func() {
		for err := range mgr.Errors() {
			logger.Debug("session error", "error", err)
		}
	}()

	// Health and metrics listeners share one server when their addrs match.
	muxes := make(map[string]*http.ServeMux)
	muxFor := func(addr string) *http.ServeMux {
		if m, ok := muxes[addr]; ok {
			return m
		}
		m := http.NewServeMux()
		muxes[addr] = m
		return m
	}
	if cfg.Health.Addr != "" {
		muxFor(cfg.Health.Addr).Handle("/health", healthHandler(mgr, disp, pool, len(cfg.EventPaths)))
	}
	if cfg.Metrics.Addr != "" {
		muxFor(cfg.Metrics.Addr).Handle(cfg.Metrics.Path, promhttp.Handler())
	}
	var servers []*http.Server
	for addr, mux := range muxes {
		srv := &http.Server{Addr: addr, Handler: mux}
		servers = append(servers, srv)
		go func() {
			logger.Info("starting http listener", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("http listener error", "addr", srv.Addr, "error", err)
			}
		}()
	}

	logger.Info("connector running",
		"addr", cfg.Vault.Addr,
		"event_paths", []string(cfg.EventPaths),
		"sink", cfg.Sink.Kind,
	)

	// Wait for shutdown or a fatal session error
	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-mgr.Fatal():
		logger.Error("fatal session error, shutting down", "error", err)
		exitCode = 1
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the manager first so the event channel closes, then let the
	// dispatcher flush what is buffered before the sink goes away.
	if err := mgr.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping connection manager", "error", err)
	}
	if err := disp.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping dispatcher", "error", err)
	}
	if err := snk.Close(shutdownCtx); err != nil {
		logger.Error("error closing sink", "error", err)
	}

	for _, srv := range servers {
		srvCtx, srvCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(srvCtx); err != nil {
			logger.Error("error shutting down http listener", "addr", srv.Addr, "error", err)
		}
		srvCancel()
	}

	stats := disp.Stats()
	logger.Info("shutdown complete",
		"events_in", stats.EventsIn,
		"delivered", stats.Delivered,
		"dropped", stats.Dropped,
	)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// healthHandler reports session and dispatcher health as JSON. Returns 503
// when the database is unreachable or no session is open.
func healthHandler(mgr connection.Manager, disp dispatch.Dispatcher, pool *pgxpool.Pool, patterns int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		states := mgr.States()
		sessions := make(map[string]string, len(states))
		open := 0
		for pattern, st := range states {
			sessions[pattern] = string(st)
			if st == connection.StateOpen {
				open++
			}
		}
		health.Components["sessions"] = sessions
		if open == 0 {
			health.Status = "unhealthy"
		} else if open < patterns {
			health.Status = "degraded"
		}

		stats := disp.Stats()
		health.Components["dispatcher"] = map[string]interface{}{
			"events_in":   stats.EventsIn,
			"delivered":   stats.Delivered,
			"dropped":     stats.Dropped,
			"sink_errors": stats.SinkErrors,
		}

		if pool != nil {
			pingCtx, pingCancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer pingCancel()
			if err := pool.Ping(pingCtx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = "unreachable: " + err.Error()
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
