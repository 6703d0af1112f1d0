// Package keepalive probes a live connection on a fixed period and reports
// the round-trip latency of each probe.
package keepalive

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rickgao/casino-client/pkg/protocol"
)

// ProbeType is the packet type sent as a liveness probe.
const ProbeType = "ping"

// Prober issues a request and waits for its response.
type Prober interface {
	Request(ctx context.Context, typ string, payload any, timeout time.Duration) (*protocol.Packet, error)
}

// Monitor sends a probe every interval while running. A failed probe is
// logged and otherwise ignored; it never changes connection state.
type Monitor struct {
	prober    Prober
	clock     clock.Clock
	interval  time.Duration
	logger    *slog.Logger
	onLatency func(time.Duration)

	latest atomic.Int64 // nanoseconds

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a stopped monitor. onLatency is called with the RTT of every
// successful probe and may be nil.
func New(prober Prober, clk clock.Clock, interval time.Duration, logger *slog.Logger, onLatency func(time.Duration)) *Monitor {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		prober:    prober,
		clock:     clk,
		interval:  interval,
		logger:    logger,
		onLatency: onLatency,
	}
}

// Start begins probing. Restarting a running monitor resets its period.
func (m *Monitor) Start() {
	if m.interval <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	ticker := m.clock.Ticker(m.interval)
	go m.run(ctx, ticker)
}

// Stop halts probing. A probe already in flight is abandoned and its result
// discarded. Stop does not wait for the probe goroutine.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Running reports whether the monitor is started.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Latest returns the RTT of the most recent successful probe, or 0.
func (m *Monitor) Latest() time.Duration {
	return time.Duration(m.latest.Load())
}

func (m *Monitor) run(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	start := m.clock.Now()

	// Zero timeout selects the prober's default request timeout.
	_, err := m.prober.Request(ctx, ProbeType, struct{}{}, 0)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.logger.Debug("keepalive probe failed", "error", err)
		return
	}

	latency := m.clock.Since(start)
	if latency < 0 {
		latency = 0
	}
	m.latest.Store(int64(latency))

	if m.onLatency != nil {
		m.onLatency(latency)
	}
}
