package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Connection.validate("connection"); err != nil {
		return err
	}

	if c.Telemetry.Enabled {
		if err := c.Telemetry.Database.validate("telemetry.database"); err != nil {
			return err
		}
		if c.Telemetry.BatchSize < 1 {
			return errors.New("telemetry.batch_size must be >= 1")
		}
		if c.Telemetry.FlushInterval <= 0 {
			return errors.New("telemetry.flush_interval must be positive")
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (c *ConnectionConfig) validate(prefix string) error {
	if c.URL == "" {
		return fmt.Errorf("%s.url is required", prefix)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%s.url is invalid: %w", prefix, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s.url must use ws or wss, got %q", prefix, u.Scheme)
	}
	if c.MaxReconnectAttempts < 1 {
		return fmt.Errorf("%s.max_reconnect_attempts must be >= 1", prefix)
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("%s.reconnect_interval must be positive", prefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s.request_timeout must be positive", prefix)
	}
	if c.PingInterval < 0 {
		return fmt.Errorf("%s.ping_interval must not be negative", prefix)
	}
	if c.SendRate < 0 {
		return fmt.Errorf("%s.send_rate must not be negative", prefix)
	}
	if c.SendBurst < 1 {
		return fmt.Errorf("%s.send_burst must be >= 1", prefix)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
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
	return nil
}
