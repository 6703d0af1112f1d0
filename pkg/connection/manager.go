package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/rickgao/casino-client/internal/correlator"
	"github.com/rickgao/casino-client/internal/keepalive"
	"github.com/rickgao/casino-client/internal/reconnect"
	"github.com/rickgao/casino-client/pkg/events"
	"github.com/rickgao/casino-client/pkg/protocol"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces the clock driving request deadlines, reconnect delays
// and keepalive probes.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		if d != nil {
			m.dialer = d
		}
	}
}

// Manager owns one logical connection to the service. It is safe for
// concurrent use.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	clock  clock.Clock
	dialer Dialer
	id     uuid.UUID

	bus       *events.Bus
	pending   *correlator.Correlator
	policy    *reconnect.Policy
	keepalive *keepalive.Monitor
	limiter   *rate.Limiter

	mu         sync.RWMutex
	status     Status
	conn       Conn
	gen        uint64 // bumped for every dial and on Disconnect
	dialCancel context.CancelFunc
}

// NewManager creates a Manager in the Disconnected state.
func NewManager(cfg Config, opts ...Option) *Manager {
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:    cfg,
		logger: slog.Default(),
		clock:  clock.New(),
		id:     uuid.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = &WebSocketDialer{
			Token:            cfg.Token,
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			ReadLimit:        cfg.MaxMessageSize,
		}
	}
	m.logger = m.logger.With("session", m.id.String())

	m.bus = events.New(m.logger)
	m.pending = correlator.New(m.clock)
	m.policy = reconnect.New(reconnect.Config{
		Enabled:     !cfg.DisableAutoReconnect,
		Interval:    cfg.ReconnectInterval,
		MaxAttempts: cfg.MaxReconnectAttempts,
	}, m.clock, m.logger)
	m.keepalive = keepalive.New(m, m.clock, cfg.PingInterval, m.logger, m.onLatency)
	if cfg.SendRate > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst)
	}

	return m
}

// Connect starts connecting in the background. It is a no-op while
// Connecting or Connected. Failures are reported on the ERROR event.
func (m *Manager) Connect() {
	m.mu.Lock()
	err := m.connectLocked()
	m.mu.Unlock()

	if err != nil {
		m.emit(events.Event{Kind: events.KindError, Err: err})
	}
}

// retry is the reconnect policy callback. A Disconnect that raced the timer
// wins.
func (m *Manager) retry() {
	m.mu.Lock()
	if m.status != StatusReconnecting {
		m.mu.Unlock()
		return
	}
	err := m.connectLocked()
	m.mu.Unlock()

	if err != nil {
		m.emit(events.Event{Kind: events.KindError, Err: err})
	}
}

func (m *Manager) connectLocked() error {
	if m.status == StatusConnecting || m.status == StatusConnected {
		return nil
	}

	if err := validateURL(m.cfg.URL); err != nil {
		m.status = StatusDisconnected
		m.logger.Error("invalid connection url", "url", m.cfg.URL, "error", err)
		return &TransportError{Op: "connect", Err: err}
	}

	m.status = StatusConnecting
	m.gen++
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	m.dialCancel = cancel

	m.debug("connecting", "url", m.cfg.URL, "attempt", m.policy.Attempts())
	go m.dial(ctx, cancel, m.gen)
	return nil
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	conn, err := m.dialer.Dial(ctx, m.cfg.URL)
	cancel()
	if err != nil {
		if m.current(gen) {
			m.logger.Warn("dial failed", "url", m.cfg.URL, "error", err)
			m.emit(events.Event{Kind: events.KindError, Err: &TransportError{Op: "dial", Err: err}})
		}
		m.handleClose(gen, m.emit)
		return
	}

	if !m.handleOpen(conn, gen) {
		conn.Close()
		return
	}

	// The read loop starts before CONNECTED is dispatched so that a listener
	// issuing a request there still gets its response. Everything the loop
	// emits waits behind the gate until CONNECTED has gone out.
	gate := &deliveryGate{}
	go m.readLoop(conn, gen, gate)

	m.logger.Info("connected", "url", m.cfg.URL)
	m.emit(events.Event{Kind: events.KindConnected})
	gate.release(m.emit)
}

// handleOpen moves a Connecting manager to Connected. It returns false if the
// dial was superseded.
func (m *Manager) handleOpen(conn Conn, gen uint64) bool {
	m.mu.Lock()
	if m.gen != gen || m.status != StatusConnecting {
		m.mu.Unlock()
		return false
	}
	m.status = StatusConnected
	m.conn = conn
	m.dialCancel = nil
	m.policy.Reset()
	m.keepalive.Start()
	m.mu.Unlock()
	return true
}

func (m *Manager) readLoop(conn Conn, gen uint64, gate *deliveryGate) {
	emit := func(ev events.Event) {
		if ev.At.IsZero() {
			ev.At = m.clock.Now()
		}
		gate.deliver(ev, m.emit)
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if m.current(gen) && !isNormalClose(err) {
				m.logger.Warn("read failed", "error", err)
				emit(events.Event{Kind: events.KindError, Err: &TransportError{Op: "read", Err: err}})
			}
			m.handleClose(gen, emit)
			return
		}
		if !m.current(gen) {
			return
		}
		m.handleMessage(data, emit)
	}
}

func (m *Manager) handleMessage(data []byte, emit func(events.Event)) {
	p, err := protocol.Parse(data)
	if err != nil {
		m.logger.Warn("dropping malformed packet", "error", err)
		emit(events.Event{Kind: events.KindError, Err: err})
		return
	}

	m.debug("received packet", "type", p.Type, "nonce", p.Nonce)

	if p.Nonce != 0 {
		m.pending.Resolve(p)
	}
	emit(events.Event{Kind: events.KindMessage, Packet: p})
}

// handleClose reacts to the loss of connection gen, scheduling a reconnect
// when the policy allows one. Events go out through emit.
func (m *Manager) handleClose(gen uint64, emit func(events.Event)) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	wasConnected := m.status == StatusConnected
	conn := m.conn
	m.conn = nil
	m.dialCancel = nil
	m.status = StatusDisconnected

	attempt, retry := m.policy.Next()
	if retry {
		m.status = StatusReconnecting
	}
	m.keepalive.Stop()
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if n := m.pending.RejectAll(ErrConnectionLost); n > 0 {
		m.logger.Warn("rejected pending requests", "count", n)
	}
	if wasConnected {
		m.logger.Info("disconnected", "url", m.cfg.URL)
		emit(events.Event{Kind: events.KindDisconnected})
	}

	if !retry {
		m.debug("not reconnecting", "policy", m.policy.State())
		return
	}
	m.logger.Info("reconnecting",
		"attempt", attempt,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"interval", m.cfg.ReconnectInterval,
	)
	emit(events.Event{Kind: events.KindReconnecting, Attempt: attempt})
	m.policy.Schedule(m.retry)
}

// Disconnect closes the connection and permanently disables reconnection for
// this Manager. Pending requests fail with ErrConnectionLost.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.status == StatusDisconnected {
		m.mu.Unlock()
		return
	}
	wasConnected := m.status == StatusConnected
	conn := m.conn
	cancel := m.dialCancel
	m.conn = nil
	m.dialCancel = nil
	m.status = StatusDisconnected
	m.gen++
	m.policy.Disable()
	m.keepalive.Stop()
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.pending.RejectAll(ErrConnectionLost)
	if conn != nil {
		conn.Close()
	}
	if wasConnected {
		m.logger.Info("disconnected by caller", "url", m.cfg.URL)
		m.emit(events.Event{Kind: events.KindDisconnected})
	}
}

// Send writes a one-way packet and returns its nonce.
func (m *Manager) Send(typ string, payload any) (int64, error) {
	p, err := protocol.New(typ, payload, 0)
	if err != nil {
		return 0, err
	}
	conn, err := m.connected()
	if err != nil {
		return 0, err
	}
	if m.limiter != nil && !m.limiter.Allow() {
		return 0, ErrRateLimited
	}

	p.Nonce = m.pending.NextNonce()
	data, err := p.Marshal()
	if err != nil {
		return 0, err
	}
	if err := conn.WriteMessage(data); err != nil {
		return 0, &TransportError{Op: "write", Err: err}
	}

	m.debug("sent packet", "type", typ, "nonce", p.Nonce)
	return p.Nonce, nil
}

// Request writes a packet and waits for the response carrying the same nonce.
// A timeout <= 0 uses the configured default. Request returns
// *RequestTimeoutError on timeout, ErrConnectionLost if the
// connection drops first, or ctx.Err() if ctx ends first.
func (m *Manager) Request(ctx context.Context, typ string, payload any, timeout time.Duration) (*protocol.Packet, error) {
	if timeout <= 0 {
		timeout = m.cfg.RequestTimeout
	}
	p, err := protocol.New(typ, payload, 0)
	if err != nil {
		return nil, err
	}
	if _, err := m.connected(); err != nil {
		return nil, err
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	// Nothing is written for a context that has already ended.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Registering under the read lock orders this request before any close,
	// whose RejectAll runs after it takes the write lock.
	m.mu.RLock()
	if m.status != StatusConnected || m.conn == nil {
		m.mu.RUnlock()
		return nil, ErrNotConnected
	}
	conn := m.conn
	p.Nonce = m.pending.NextNonce()
	done, err := m.pending.Register(p.Nonce, timeout)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	data, err := p.Marshal()
	if err == nil {
		if werr := conn.WriteMessage(data); werr != nil {
			err = &TransportError{Op: "write", Err: werr}
		}
	}
	if err != nil {
		m.pending.Cancel(p.Nonce, err)
	} else {
		m.debug("sent request", "type", typ, "nonce", p.Nonce, "timeout", timeout)
	}

	select {
	case res := <-done:
		return res.Packet, res.Err
	case <-ctx.Done():
		m.pending.Cancel(p.Nonce, ctx.Err())
		res := <-done
		return res.Packet, res.Err
	}
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// On registers a listener. See events.Bus.On. A CONNECTED listener may call
// Request to restore subscriptions; later events wait until it returns.
func (m *Manager) On(kind events.Kind, fn events.Listener) events.ListenerID {
	return m.bus.On(kind, fn)
}

// Off removes a listener registered with On.
func (m *Manager) Off(kind events.Kind, id events.ListenerID) bool {
	return m.bus.Off(kind, id)
}

// Pending returns the number of requests awaiting a response.
func (m *Manager) Pending() int {
	return m.pending.Len()
}

// LatestLatency returns the round trip of the last successful keepalive
// probe, or 0 if none has completed.
func (m *Manager) LatestLatency() time.Duration {
	return m.keepalive.Latest()
}

// SessionID identifies this Manager in logs and telemetry.
func (m *Manager) SessionID() uuid.UUID {
	return m.id
}

func (m *Manager) connected() (Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusConnected || m.conn == nil {
		return nil, ErrNotConnected
	}
	return m.conn, nil
}

func (m *Manager) current(gen uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen == gen
}

func (m *Manager) onLatency(d time.Duration) {
	m.debug("keepalive", "latency", d)
	m.emit(events.Event{Kind: events.KindPing, Latency: d})
}

func (m *Manager) emit(ev events.Event) {
	if ev.At.IsZero() {
		ev.At = m.clock.Now()
	}
	m.bus.Emit(ev)
}

// debug logs only when Debug is configured.
func (m *Manager) debug(msg string, args ...any) {
	if m.cfg.Debug {
		m.logger.Debug(msg, args...)
	}
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// deliveryGate queues the events of one connection until release. After
// release, events pass straight through in arrival order.
type deliveryGate struct {
	mu      sync.Mutex
	open    bool
	backlog []events.Event
}

func (g *deliveryGate) deliver(ev events.Event, emit func(events.Event)) {
	g.mu.Lock()
	if !g.open {
		g.backlog = append(g.backlog, ev)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	emit(ev)
}

// release emits the backlog and opens the gate. Events queued while the
// backlog is being emitted are emitted too, before the gate opens.
func (g *deliveryGate) release(emit func(events.Event)) {
	for {
		g.mu.Lock()
		batch := g.backlog
		g.backlog = nil
		if len(batch) == 0 {
			g.open = true
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()

		for _, ev := range batch {
			emit(ev)
		}
	}
}
