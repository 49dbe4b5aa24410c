package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-bexpr"
)

// Validate checks that all required fields are set and values are valid.
func (c *ConnectorConfig) Validate() error {
	if c.Vault.Addr == "" {
		return errors.New("vault.addr is required")
	}
	if c.Vault.Token == "" {
		return errors.New("vault.token is required")
	}

	if len(c.EventPaths) == 0 {
		return errors.New("event_paths must not be empty")
	}
	seen := make(map[string]bool, len(c.EventPaths))
	for _, p := range c.EventPaths {
		if strings.TrimSpace(p) == "" {
			return errors.New("event_paths entries must not be blank")
		}
		if seen[p] {
			return fmt.Errorf("event_paths contains duplicate %q", p)
		}
		seen[p] = true
	}

	if c.Filter != "" {
		if _, err := bexpr.CreateEvaluator(c.Filter); err != nil {
			return fmt.Errorf("filter is not a valid expression: %w", err)
		}
	}

	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat_interval must be positive")
	}
	if c.StaleTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("stale_timeout (%v) must exceed heartbeat_interval (%v)",
			c.StaleTimeout, c.HeartbeatInterval)
	}

	if c.Backoff.Initial <= 0 {
		return errors.New("backoff.initial must be positive")
	}
	if c.Backoff.Max < c.Backoff.Initial {
		return fmt.Errorf("backoff.max (%v) must be >= backoff.initial (%v)",
			c.Backoff.Max, c.Backoff.Initial)
	}

	if c.Auth.FatalAfter < 0 {
		return errors.New("auth.fatal_after must be >= 0")
	}

	if c.Buffer.Capacity < 1 {
		return errors.New("buffer.capacity must be >= 1")
	}
	switch c.Buffer.Policy {
	case "drop_oldest", "block":
	default:
		return fmt.Errorf("buffer.policy must be drop_oldest or block, got %q", c.Buffer.Policy)
	}

	switch c.Sink.Kind {
	case "stdout", "none", "nats":
	case "postgres":
		if err := c.Sink.Postgres.validate("sink.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("sink.kind must be one of stdout, nats, postgres, none, got %q", c.Sink.Kind)
	}

	return nil
}

func (db *PostgresConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	if db.BatchSize < 1 {
		return fmt.Errorf("%s.batch_size must be >= 1", prefix)
	}
	return nil
}
