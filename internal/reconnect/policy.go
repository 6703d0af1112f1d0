// Package reconnect decides whether and when a lost connection is retried.
//
// The delay between attempts is fixed. Attempts are counted from the last
// successful connection; once the count reaches the cap, or once the policy is
// disabled by an explicit disconnect, no further retries are scheduled.
package reconnect

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// State is the policy's position in its retry cycle.
type State int

const (
	StateIdle      State = iota // No retry scheduled
	StateWaiting                // Retry scheduled, interval not yet elapsed
	StateExhausted              // Attempt cap reached
	StateDisabled               // Explicit disconnect; terminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateExhausted:
		return "exhausted"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Config configures a Policy.
type Config struct {
	Enabled     bool
	Interval    time.Duration
	MaxAttempts int
}

// Policy tracks reconnect attempts and schedules retries on a clock.
type Policy struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	attempts int
	state    State
	timer    *clock.Timer
}

// New creates a policy. A nil clock uses the wall clock.
func New(cfg Config, clk clock.Clock, logger *slog.Logger) *Policy {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Policy{
		cfg:    cfg,
		clock:  clk,
		logger: logger,
	}
	if !cfg.Enabled {
		p.state = StateDisabled
	}
	return p
}

// Next records an unexpected close. It returns the attempt number to announce
// and true if a retry should be scheduled.
func (p *Policy) Next() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateDisabled, StateExhausted:
		return 0, false
	}

	if p.attempts >= p.cfg.MaxAttempts {
		p.state = StateExhausted
		p.logger.Warn("max reconnect attempts reached", "attempts", p.attempts)
		return 0, false
	}

	p.attempts++
	return p.attempts, true
}

// Schedule runs retry once the interval elapses, unless the policy is disabled
// or reset first. A previously scheduled retry is replaced.
func (p *Policy) Schedule(retry func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateDisabled || p.state == StateExhausted {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}

	p.state = StateWaiting
	var t *clock.Timer
	t = p.clock.AfterFunc(p.cfg.Interval, func() {
		p.mu.Lock()
		if p.state != StateWaiting || p.timer != t {
			p.mu.Unlock()
			return
		}
		p.state = StateIdle
		p.timer = nil
		p.mu.Unlock()

		retry()
	})
	p.timer = t
}

// Reset clears the attempt count after a successful connection.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts = 0
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.state != StateDisabled {
		p.state = StateIdle
	}
}

// Disable cancels any scheduled retry and stops all future ones.
func (p *Policy) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.state = StateDisabled
}

// Attempts returns the number of attempts since the last successful connection.
func (p *Policy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// State returns the current state.
func (p *Policy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
