package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultReconnectInterval    = 1 * time.Second
	DefaultMaxReconnectAttempts = 50
	DefaultRequestTimeout       = 30 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultSendBurst            = 1
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultBatchSize            = 100
	DefaultFlushInterval        = 1 * time.Second
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
)

func (c *ClientConfig) applyDefaults() {
	// Connection defaults
	conn := &c.Connection
	if conn.AutoReconnect == nil {
		enabled := true
		conn.AutoReconnect = &enabled
	}
	if conn.ReconnectInterval == 0 {
		conn.ReconnectInterval = DefaultReconnectInterval
	}
	if conn.MaxReconnectAttempts == 0 {
		conn.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if conn.RequestTimeout == 0 {
		conn.RequestTimeout = DefaultRequestTimeout
	}
	if conn.PingInterval == 0 {
		conn.PingInterval = DefaultPingInterval
	}
	if conn.HandshakeTimeout == 0 {
		conn.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if conn.WriteTimeout == 0 {
		conn.WriteTimeout = DefaultWriteTimeout
	}
	if conn.SendBurst == 0 {
		conn.SendBurst = DefaultSendBurst
	}

	// Telemetry defaults
	applyDBDefaults(&c.Telemetry.Database)
	if c.Telemetry.BatchSize == 0 {
		c.Telemetry.BatchSize = DefaultBatchSize
	}
	if c.Telemetry.FlushInterval == 0 {
		c.Telemetry.FlushInterval = DefaultFlushInterval
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
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
}
