package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/casino-client/internal/correlator"
)

// Errors
var (
	ErrNotConnected   = errors.New("not connected")
	ErrConnectionLost = errors.New("connection lost")
	ErrRateLimited    = errors.New("send rate limit exceeded")
)

// RequestTimeoutError is returned by Request when no response arrives before
// the deadline.
type RequestTimeoutError = correlator.RequestTimeoutError

// TransportError reports a failure of the underlying connection.
type TransportError struct {
	Op  string // "connect", "dial", "read", "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Status is the connection state. Exactly one holds at any time.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusReconnecting:
		return "RECONNECTING"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Config configures a Manager.
type Config struct {
	URL                  string        // WebSocket URL (e.g., wss://casino.example.com/ws)
	Token                string        // Optional bearer token sent on the handshake
	DisableAutoReconnect bool          // Give up after the first unexpected close
	ReconnectInterval    time.Duration // Fixed delay between reconnect attempts
	MaxReconnectAttempts int           // Consecutive attempts before giving up
	RequestTimeout       time.Duration // Default per-request deadline
	PingInterval         time.Duration // Keepalive probe period
	DisableKeepalive     bool          // Never send keepalive probes
	HandshakeTimeout     time.Duration // Dial handshake limit
	WriteTimeout         time.Duration // Write deadline for sends
	MaxMessageSize       int64         // Largest inbound frame in bytes
	SendRate             float64       // Outbound packets per second (0 = unlimited)
	SendBurst            int           // Token bucket burst for SendRate
	Debug                bool          // Log every packet and state change
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectInterval:    1 * time.Second,
		MaxReconnectAttempts: 50,
		RequestTimeout:       30 * time.Second,
		PingInterval:         30 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		MaxMessageSize:       1 << 20,
		SendBurst:            1,
	}
}

// withDefaults fills zero-valued durations and limits, so a Config with only
// URL set reconnects and probes with the default timings.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.DisableKeepalive {
		c.PingInterval = 0
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = def.ReconnectInterval
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBurst < 1 {
		c.SendBurst = def.SendBurst
	}
	return c
}
