package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHeartbeatInterval  = 20 * time.Second
	DefaultStaleTimeout       = 60 * time.Second
	DefaultBackoffInitial     = 1 * time.Second
	DefaultBackoffMax         = 30 * time.Second
	DefaultBufferCapacity     = 1000
	DefaultBufferPolicy       = "drop_oldest"
	DefaultSinkKind           = "stdout"
	DefaultNATSURL            = "nats://127.0.0.1:4222"
	DefaultNATSSubjectPrefix  = "events"
	DefaultNATSConnectTimeout = 5 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultBatchSize          = 1000
	DefaultFlushInterval      = 5 * time.Second
	DefaultMetricsPath        = "/metrics"
)

// DefaultEventPath is subscribed when no event_paths are configured.
const DefaultEventPath = "kv-v2/data-*"

func (c *ConnectorConfig) applyDefaults() {
	// Subscription defaults. An absent event_paths key falls back to the
	// default path; an explicitly empty list stays empty and fails
	// validation.
	if c.EventPaths == nil {
		c.EventPaths = StringList{DefaultEventPath}
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.StaleTimeout == 0 {
		c.StaleTimeout = DefaultStaleTimeout
	}

	// Backoff defaults
	if c.Backoff.Initial == 0 {
		c.Backoff.Initial = DefaultBackoffInitial
	}
	if c.Backoff.Max == 0 {
		c.Backoff.Max = DefaultBackoffMax
	}

	// Buffer defaults
	if c.Buffer.Capacity == 0 {
		c.Buffer.Capacity = DefaultBufferCapacity
	}
	if c.Buffer.Policy == "" {
		c.Buffer.Policy = DefaultBufferPolicy
	}

	// Sink defaults
	if c.Sink.Kind == "" {
		c.Sink.Kind = DefaultSinkKind
	}
	if c.Sink.NATS.URL == "" {
		c.Sink.NATS.URL = DefaultNATSURL
	}
	if c.Sink.NATS.SubjectPrefix == "" {
		c.Sink.NATS.SubjectPrefix = DefaultNATSSubjectPrefix
	}
	if c.Sink.NATS.ConnectTimeout == 0 {
		c.Sink.NATS.ConnectTimeout = DefaultNATSConnectTimeout
	}
	applyDBDefaults(&c.Sink.Postgres)

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *PostgresConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.BatchSize == 0 {
		db.BatchSize = DefaultBatchSize
	}
	if db.FlushInterval == 0 {
		db.FlushInterval = DefaultFlushInterval
	}
}
