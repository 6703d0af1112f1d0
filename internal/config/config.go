package config

import "time"

// ClientConfig is the root configuration for a client process.
type ClientConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Connection ConnectionConfig `yaml:"connection"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// InstanceConfig identifies this client.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ConnectionConfig holds WebSocket transport settings.
type ConnectionConfig struct {
	URL                  string        `yaml:"url"`
	Token                string        `yaml:"token"`          // Bearer token for the handshake
	AutoReconnect        *bool         `yaml:"auto_reconnect"` // nil means true
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	DisableKeepalive     bool          `yaml:"disable_keepalive"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	SendRate             float64       `yaml:"send_rate"` // packets per second, 0 = unlimited
	SendBurst            int           `yaml:"send_burst"`
	Debug                bool          `yaml:"debug"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// TelemetryConfig holds the connection event log settings.
type TelemetryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Database        DBConfig      `yaml:"database"`
	BatchSize       int           `yaml:"batch_size"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	IncludeMessages bool          `yaml:"include_messages"` // log every inbound packet
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
