// Package correlator matches inbound responses to outstanding requests by
// nonce.
//
// Every pending entry is delivered to exactly once: by a matching response,
// by its deadline, by Cancel, or by RejectAll. Each of those paths removes the
// entry from the table under the lock before delivering, so whichever path
// runs second finds nothing to do.
package correlator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rickgao/casino-client/pkg/protocol"
)

var (
	ErrDuplicateNonce = errors.New("nonce already pending")
	ErrInvalidTimeout = errors.New("request timeout must be positive")
)

// RequestTimeoutError is delivered when a request's deadline passes without a
// matching response.
type RequestTimeoutError struct {
	Nonce   int64
	Timeout time.Duration
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("request %d timed out after %s", e.Nonce, e.Timeout)
}

// Result is the single outcome of a pending request.
type Result struct {
	Packet *protocol.Packet
	Err    error
}

type entry struct {
	done  chan Result
	timer *clock.Timer
}

// Correlator owns the nonce counter and the pending-request table.
type Correlator struct {
	clock clock.Clock

	mu      sync.Mutex
	nonce   int64
	pending map[int64]*entry
}

// New creates a correlator. A nil clock uses the wall clock.
func New(clk clock.Clock) *Correlator {
	if clk == nil {
		clk = clock.New()
	}
	return &Correlator{
		clock:   clk,
		pending: make(map[int64]*entry),
	}
}

// NextNonce returns the next nonce. The first is 1; nonces are never reused.
func (c *Correlator) NextNonce() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonce++
	return c.nonce
}

// Register adds a pending entry for nonce with a deadline timeout from now.
// The returned channel receives exactly one Result.
func (c *Correlator) Register(nonce int64, timeout time.Duration) (<-chan Result, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[nonce]; exists {
		return nil, ErrDuplicateNonce
	}

	e := &entry{done: make(chan Result, 1)}
	e.timer = c.clock.AfterFunc(timeout, func() {
		c.expire(nonce, e, timeout)
	})
	c.pending[nonce] = e

	return e.done, nil
}

// Resolve delivers p to the request with the same nonce. Packets for unknown,
// already-settled, or zero nonces are ignored and return false.
func (c *Correlator) Resolve(p *protocol.Packet) bool {
	if p == nil || p.Nonce == 0 {
		return false
	}

	e := c.take(p.Nonce)
	if e == nil {
		return false
	}
	e.timer.Stop()
	e.done <- Result{Packet: p}
	return true
}

// Cancel fails a single pending request with err.
func (c *Correlator) Cancel(nonce int64, err error) bool {
	e := c.take(nonce)
	if e == nil {
		return false
	}
	e.timer.Stop()
	e.done <- Result{Err: err}
	return true
}

// RejectAll fails every pending request with err and empties the table.
// Returns the number of requests rejected.
func (c *Correlator) RejectAll(err error) int {
	c.mu.Lock()
	entries := c.pending
	c.pending = make(map[int64]*entry)
	c.mu.Unlock()

	for _, e := range entries {
		e.timer.Stop()
		e.done <- Result{Err: err}
	}
	return len(entries)
}

// Len returns the number of pending requests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// has reports whether nonce is pending.
func (c *Correlator) has(nonce int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[nonce]
	return ok
}

func (c *Correlator) take(nonce int64) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.pending[nonce]
	if !ok {
		return nil
	}
	delete(c.pending, nonce)
	return e
}

func (c *Correlator) expire(nonce int64, want *entry, timeout time.Duration) {
	c.mu.Lock()
	e, ok := c.pending[nonce]
	if !ok || e != want {
		c.mu.Unlock()
		return
	}
	delete(c.pending, nonce)
	c.mu.Unlock()

	e.done <- Result{Err: &RequestTimeoutError{Nonce: nonce, Timeout: timeout}}
}
