package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ConnectorConfig is the root configuration for a connector instance.
type ConnectorConfig struct {
	Vault             VaultConfig       `yaml:"vault"`
	EventPaths        StringList        `yaml:"event_paths"`
	Filter            string            `yaml:"filter"`
	HeartbeatInterval time.Duration     `yaml:"heartbeat_interval"`
	StaleTimeout      time.Duration     `yaml:"stale_timeout"`
	Backoff           BackoffConfig     `yaml:"backoff"`
	ExtraHeaders      map[string]string `yaml:"extra_headers"`
	Auth              AuthConfig        `yaml:"auth"`
	Buffer            BufferConfig      `yaml:"buffer"`
	Sink              SinkConfig        `yaml:"sink"`
	Metrics           MetricsConfig     `yaml:"metrics"`
	Health            HealthConfig      `yaml:"health"`
}

// VaultConfig holds the Vault endpoint and credentials.
type VaultConfig struct {
	Addr      string    `yaml:"addr"`  // e.g. https://vault.example.com:8200
	Token     string    `yaml:"token"` // typically ${VAULT_TOKEN}
	Namespace string    `yaml:"namespace"`
	TLS       TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS settings for the WebSocket connection.
type TLSConfig struct {
	SkipVerify bool `yaml:"skip_verify"`
}

// BackoffConfig holds reconnect backoff settings.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// AuthConfig holds authentication failure policy.
type AuthConfig struct {
	// FatalAfter stops the connector after N consecutive handshake
	// rejections for a pattern. 0 retries forever.
	FatalAfter int `yaml:"fatal_after"`
}

// BufferConfig holds per-origin dispatch buffer settings.
type BufferConfig struct {
	Capacity int    `yaml:"capacity"`
	Policy   string `yaml:"policy"` // drop_oldest or block
}

// SinkConfig selects and configures the delivery target.
type SinkConfig struct {
	Kind     string         `yaml:"kind"` // stdout, nats, postgres, none
	NATS     NATSConfig     `yaml:"nats"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// NATSConfig holds NATS sink settings.
type NATSConfig struct {
	URL            string        `yaml:"url"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// PostgresConfig holds the Postgres sink connection and batching settings.
type PostgresConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Name          string        `yaml:"name"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	SSLMode       string        `yaml:"ssl_mode"`
	MaxConns      int           `yaml:"max_conns"`
	MinConns      int           `yaml:"min_conns"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// MetricsConfig holds Prometheus metrics settings. An empty Addr disables
// the listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// HealthConfig holds the health endpoint settings. An empty Addr disables
// the listener.
type HealthConfig struct {
	Addr string `yaml:"addr"`
}

// StringList unmarshals from either a single YAML scalar or a sequence, so
// both of these are accepted:
//
//	event_paths: kv-v2/data-*
//
//	event_paths:
//	  - kv-v2/data-*
//	  - database/*
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := value.Decode(&ss); err != nil {
			return err
		}
		*l = StringList(ss)
		return nil
	default:
		return fmt.Errorf("expected string or list of strings, got %s", value.Tag)
	}
}
