package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitrgoliveira/vault-eda-delivery/internal/event"
)

// PostgresConfig contains configuration for the Postgres sink.
type PostgresConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultPostgresConfig returns sensible defaults.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		BatchSize:     1000,
		FlushInterval: 5 * time.Second,
	}
}

// PostgresMetrics holds counters for the Postgres sink.
type PostgresMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// eventRow represents a row to be inserted into the vault_events table.
type eventRow struct {
	EventID    string
	EventType  string
	Origin     string
	EventTime  time.Time
	ReceivedAt time.Time
	Payload    []byte // JSONB
}

// PostgresSink batches events and writes them to the vault_events table.
// Rows are deduplicated on event_id with ON CONFLICT DO NOTHING, so replays
// after a reconnect are harmless.
type PostgresSink struct {
	cfg    PostgresConfig
	logger *slog.Logger

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics PostgresMetrics
}

// NewPostgresSink creates a new PostgresSink. Call Start to begin the
// periodic flush loop.
func NewPostgresSink(db *pgxpool.Pool, cfg PostgresConfig, logger *slog.Logger) *PostgresSink {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultPostgresConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultPostgresConfig().FlushInterval
	}
	return &PostgresSink{
		cfg:    cfg,
		db:     db,
		logger: logger,
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the vault_events table and its indexes if they do
// not already exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vault_events (
		event_id    TEXT PRIMARY KEY,
		event_type  TEXT NOT NULL,
		origin      TEXT NOT NULL,
		event_time  TIMESTAMPTZ NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		payload     JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_vault_events_type
		ON vault_events (event_type, event_time DESC);
	CREATE INDEX IF NOT EXISTS idx_vault_events_origin
		ON vault_events (origin, event_time DESC);
	`

	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Start begins the periodic flush loop.
func (s *PostgresSink) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.flushTicker = time.NewTicker(s.cfg.FlushInterval)

	s.wg.Add(1)
	go s.flushLoop()

	s.logger.Info("postgres sink started",
		"batch_size", s.cfg.BatchSize,
		"flush_interval", s.cfg.FlushInterval,
	)
	return nil
}

// Put adds an event to the current batch, flushing when the batch is full.
func (s *PostgresSink) Put(ctx context.Context, env event.Envelope) error {
	row := s.transform(env)

	s.batchMu.Lock()
	s.batch = append(s.batch, row)
	shouldFlush := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if shouldFlush {
		return s.flush(ctx)
	}
	return nil
}

// Close stops the flush loop and writes out whatever is still batched. The
// context bounds the final flush.
func (s *PostgresSink) Close(ctx context.Context) error {
	s.logger.Info("stopping postgres sink")

	if s.cancel != nil {
		s.cancel()
	}
	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("postgres sink stop timed out")
	}

	return s.flush(ctx)
}

// Stats returns current metrics.
func (s *PostgresSink) Stats() PostgresMetrics {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return s.metrics
}

// flushLoop periodically flushes the batch.
func (s *PostgresSink) flushLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.flushTicker.C:
			if err := s.flush(s.ctx); err != nil {
				s.logger.Error("batch insert failed", "error", err)
			}
		}
	}
}

// transform converts an Envelope to an eventRow.
func (s *PostgresSink) transform(env event.Envelope) eventRow {
	return eventRow{
		EventID:    env.ID,
		EventType:  env.Type,
		Origin:     env.Origin,
		EventTime:  env.Timestamp,
		ReceivedAt: env.ReceivedAt,
		Payload:    []byte(env.Payload),
	}
}

// flush writes the current batch to the database.
func (s *PostgresSink) flush(ctx context.Context) error {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return nil
	}

	// Take ownership of current batch
	batch := s.batch
	s.batch = make([]eventRow, 0, s.cfg.BatchSize)
	s.batchMu.Unlock()

	start := time.Now()

	conflicts, err := s.batchInsert(ctx, batch)
	if err != nil {
		s.batchMu.Lock()
		s.metrics.Errors++
		s.batchMu.Unlock()
		return fmt.Errorf("insert events: %w", err)
	}

	s.batchMu.Lock()
	s.metrics.Inserts += int64(len(batch) - conflicts)
	s.metrics.Conflicts += int64(conflicts)
	s.metrics.Flushes++
	s.batchMu.Unlock()

	s.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *PostgresSink) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO vault_events (event_id, event_type, origin, event_time, received_at, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (event_id) DO NOTHING
		`, r.EventID, r.EventType, r.Origin, r.EventTime, r.ReceivedAt, r.Payload)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
