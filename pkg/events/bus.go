// Package events implements the synchronous event bus used by the connection
// transport to publish lifecycle changes and inbound packets.
//
// Listeners run on the emitting goroutine, in registration order. They should
// return quickly, since later events wait behind them. Start a goroutine for
// anything long running.
package events

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rickgao/casino-client/pkg/protocol"
)

// Kind identifies an event.
type Kind int

const (
	KindConnected Kind = iota + 1
	KindDisconnected
	KindMessage
	KindError
	KindReconnecting
	KindPing
)

var kindNames = map[Kind]string{
	KindConnected:    "connected",
	KindDisconnected: "disconnected",
	KindMessage:      "message",
	KindError:        "error",
	KindReconnecting: "reconnecting",
	KindPing:         "ping",
}

// Kinds lists every event kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindConnected, KindDisconnected, KindMessage, KindError, KindReconnecting, KindPing}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Event is a single published event. Only the field matching Kind is set.
type Event struct {
	Kind    Kind
	At      time.Time
	Packet  *protocol.Packet // KindMessage
	Err     error            // KindError
	Attempt int              // KindReconnecting
	Latency time.Duration    // KindPing
}

// Listener receives events.
type Listener func(Event)

// ListenerID identifies a registration for removal. Zero is never issued.
type ListenerID uint64

// Subscriber is the registration surface shared by Bus and the connection
// manager.
type Subscriber interface {
	On(kind Kind, fn Listener) ListenerID
	Off(kind Kind, id ListenerID) bool
}

type registration struct {
	id ListenerID
	fn Listener
}

// Bus dispatches events to listeners keyed by kind.
type Bus struct {
	logger *slog.Logger

	mu        sync.RWMutex
	nextID    ListenerID
	listeners map[Kind][]registration
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:    logger,
		listeners: make(map[Kind][]registration),
	}
}

// On registers fn for kind and returns an id for Off.
// Returns 0 for an unknown kind or a nil listener.
func (b *Bus) On(kind Kind, fn Listener) ListenerID {
	if fn == nil || !kind.Valid() {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[kind] = append(b.listeners[kind], registration{id: id, fn: fn})
	return id
}

// Off removes a registration. Returns false if it was not registered.
func (b *Bus) Off(kind Kind, id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.listeners[kind]
	for i, r := range regs {
		if r.id != id {
			continue
		}
		// Copy so an in-flight Emit keeps its own snapshot intact.
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		b.listeners[kind] = next
		return true
	}
	return false
}

// count returns the number of listeners registered for kind.
func (b *Bus) count(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[kind])
}

// Emit delivers ev to the listeners registered for ev.Kind at the time of
// the call. A panicking listener is logged and skipped.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	regs := b.listeners[ev.Kind]
	b.mu.RUnlock()

	for _, r := range regs {
		b.dispatch(r, ev)
	}
}

func (b *Bus) dispatch(r registration, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("event listener panicked",
				"event", ev.Kind.String(),
				"listener", uint64(r.id),
				"panic", p,
				"stack", string(debug.Stack()),
			)
		}
	}()
	r.fn(ev)
}
