package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rickgao/casino-client/pkg/connection"
	"github.com/rickgao/casino-client/pkg/events"
	"github.com/rickgao/casino-client/pkg/protocol"
)

// fakeSource is a bus with fixed status and pending count.
type fakeSource struct {
	*events.Bus
	status    connection.Status
	pending   int
	listeners map[events.Kind]int
}

func (f *fakeSource) Status() connection.Status { return f.status }
func (f *fakeSource) Pending() int              { return f.pending }

// On wraps the bus and counts live registrations per kind.
func (f *fakeSource) On(kind events.Kind, fn events.Listener) events.ListenerID {
	id := f.Bus.On(kind, fn)
	if id != 0 {
		f.listeners[kind]++
	}
	return id
}

// Off wraps the bus and counts live registrations per kind.
func (f *fakeSource) Off(kind events.Kind, id events.ListenerID) bool {
	ok := f.Bus.Off(kind, id)
	if ok {
		f.listeners[kind]--
	}
	return ok
}

// Len returns the number of listeners registered for kind.
func (f *fakeSource) Len(kind events.Kind) int { return f.listeners[kind] }

func newTestCollector(t *testing.T) (*Collector, *fakeSource, *prometheus.Registry) {
	t.Helper()
	src := &fakeSource{Bus: events.New(nil), listeners: make(map[events.Kind]int)}
	reg := prometheus.NewRegistry()
	c, err := New(reg, src)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, src, reg
}

func TestCollector_LifecycleCounters(t *testing.T) {
	c, src, _ := newTestCollector(t)

	src.Emit(events.Event{Kind: events.KindConnected})
	src.Emit(events.Event{Kind: events.KindDisconnected})
	src.Emit(events.Event{Kind: events.KindReconnecting, Attempt: 1})
	src.Emit(events.Event{Kind: events.KindReconnecting, Attempt: 2})
	src.Emit(events.Event{Kind: events.KindConnected})

	if got := testutil.ToFloat64(c.connects); got != 2 {
		t.Errorf("connects = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.disconnects); got != 1 {
		t.Errorf("disconnects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.reconnects); got != 2 {
		t.Errorf("reconnects = %v, want 2", got)
	}
}

func TestCollector_ErrorsByKind(t *testing.T) {
	c, src, _ := newTestCollector(t)

	_, parseErr := protocol.Parse([]byte("nope"))
	src.Emit(events.Event{Kind: events.KindError, Err: parseErr})
	src.Emit(events.Event{Kind: events.KindError, Err: &connection.TransportError{Op: "read", Err: io.EOF}})
	src.Emit(events.Event{Kind: events.KindError, Err: &connection.TransportError{Op: "dial", Err: io.EOF}})
	src.Emit(events.Event{Kind: events.KindError, Err: errors.New("mystery")})

	tests := []struct {
		kind string
		want float64
	}{
		{ErrorKindParse, 1},
		{ErrorKindTransport, 2},
		{ErrorKindOther, 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(c.errors.WithLabelValues(tt.kind)); got != tt.want {
			t.Errorf("errors{kind=%q} = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestCollector_MessagesByType(t *testing.T) {
	c, src, _ := newTestCollector(t)

	src.Emit(events.Event{Kind: events.KindMessage, Packet: &protocol.Packet{Type: "bet"}})
	src.Emit(events.Event{Kind: events.KindMessage, Packet: &protocol.Packet{Type: "bet", Nonce: 3}})
	src.Emit(events.Event{Kind: events.KindMessage, Packet: &protocol.Packet{Type: "jackpot"}})
	src.Emit(events.Event{Kind: events.KindMessage})

	if got := testutil.ToFloat64(c.messages.WithLabelValues("bet")); got != 2 {
		t.Errorf("messages{type=bet} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.messages.WithLabelValues("jackpot")); got != 1 {
		t.Errorf("messages{type=jackpot} = %v, want 1", got)
	}
}

func TestCollector_Gauges(t *testing.T) {
	c, src, _ := newTestCollector(t)

	src.status = connection.StatusReconnecting
	src.pending = 4

	if got := testutil.ToFloat64(c.status); got != 3 {
		t.Errorf("connection_status = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.pending); got != 4 {
		t.Errorf("pending_requests = %v, want 4", got)
	}
}

func TestCollector_PingLatency(t *testing.T) {
	c, src, reg := newTestCollector(t)

	src.Emit(events.Event{Kind: events.KindPing, Latency: 20 * time.Millisecond})
	src.Emit(events.Event{Kind: events.KindPing, Latency: 40 * time.Millisecond})

	if got := testutil.CollectAndCount(c.pingLatency); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "casino_client_ping_latency_seconds" {
			continue
		}
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 2 {
			t.Errorf("sample count = %d, want 2", h.GetSampleCount())
		}
		if sum := h.GetSampleSum(); sum < 0.059 || sum > 0.061 {
			t.Errorf("sample sum = %v, want 0.06", sum)
		}
		return
	}
	t.Error("ping latency histogram not gathered")
}

func TestCollector_Close(t *testing.T) {
	c, src, reg := newTestCollector(t)

	c.Close()
	for _, kind := range events.Kinds() {
		if n := src.Len(kind); n != 0 {
			t.Errorf("listeners for %s after Close = %d, want 0", kind, n)
		}
	}

	// Series are gone, so a new collector can register on the same registry.
	if _, err := New(reg, src); err != nil {
		t.Errorf("New after Close failed: %v", err)
	}
}

func TestNew_DuplicateRegistration(t *testing.T) {
	_, src, reg := newTestCollector(t)

	if _, err := New(reg, src); err == nil {
		t.Fatal("expected error registering twice on one registry")
	}
	if n := src.Len(events.KindConnected); n != 1 {
		t.Errorf("listeners after failed New = %d, want 1", n)
	}
}

func TestHandler(t *testing.T) {
	_, src, reg := newTestCollector(t)
	src.Emit(events.Event{Kind: events.KindConnected})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "casino_client_connects_total 1") {
		t.Errorf("metrics output missing connects_total:\n%s", body)
	}
}
