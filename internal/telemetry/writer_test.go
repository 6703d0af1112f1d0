package telemetry

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rickgao/casino-client/pkg/connection"
	"github.com/rickgao/casino-client/pkg/events"
	"github.com/rickgao/casino-client/pkg/protocol"
)

// memStore records inserted batches.
type memStore struct {
	mu      sync.Mutex
	batches [][]Row
	err     error
}

func (s *memStore) Insert(ctx context.Context, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.batches = append(s.batches, rows)
	return nil
}

func (s *memStore) rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Row
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func waitRows(t *testing.T, s *memStore, n int) []Row {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rows := s.rows(); len(rows) >= n {
			return rows
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("store has %d rows, want %d", len(s.rows()), n)
	return nil
}

func TestNewRow(t *testing.T) {
	session := uuid.New()
	at := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		ev    events.Event
		check func(t *testing.T, r Row)
	}{
		{
			name: "reconnecting",
			ev:   events.Event{Kind: events.KindReconnecting, At: at, Attempt: 3},
			check: func(t *testing.T, r Row) {
				if r.Kind != "reconnecting" || r.Attempt != 3 {
					t.Errorf("row = %+v, want reconnecting attempt 3", r)
				}
			},
		},
		{
			name: "ping",
			ev:   events.Event{Kind: events.KindPing, At: at, Latency: 1500 * time.Microsecond},
			check: func(t *testing.T, r Row) {
				if r.LatencyUS != 1500 {
					t.Errorf("LatencyUS = %d, want 1500", r.LatencyUS)
				}
			},
		},
		{
			name: "message",
			ev:   events.Event{Kind: events.KindMessage, At: at, Packet: &protocol.Packet{Type: "bet", Nonce: 7}},
			check: func(t *testing.T, r Row) {
				if r.PacketType != "bet" || r.Nonce != 7 {
					t.Errorf("row = %+v, want bet nonce 7", r)
				}
			},
		},
		{
			name: "error",
			ev:   events.Event{Kind: events.KindError, At: at, Err: &connection.TransportError{Op: "read", Err: io.EOF}},
			check: func(t *testing.T, r Row) {
				if r.Error != "transport read: EOF" {
					t.Errorf("Error = %q, want %q", r.Error, "transport read: EOF")
				}
			},
		},
		{
			name: "connected",
			ev:   events.Event{Kind: events.KindConnected, At: at},
			check: func(t *testing.T, r Row) {
				if r.Kind != "connected" || r.Attempt != 0 || r.Error != "" {
					t.Errorf("row = %+v, want bare connected row", r)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRow(session, tt.ev)
			if r.SessionID != session {
				t.Errorf("SessionID = %v, want %v", r.SessionID, session)
			}
			if !r.OccurredAt.Equal(at) {
				t.Errorf("OccurredAt = %v, want %v", r.OccurredAt, at)
			}
			tt.check(t, r)
		})
	}
}

func TestInsertArgs(t *testing.T) {
	id := uuid.New()
	ping := insertArgs(Row{SessionID: id, Kind: "ping", OccurredAt: time.Now()})
	if len(ping) != 8 {
		t.Fatalf("len(args) = %d, want 8", len(ping))
	}
	if u := ping[0].(pgtype.UUID); !u.Valid || u.Bytes != id {
		t.Errorf("session arg = %+v, want %s", u, id)
	}
	// A zero latency is still a measurement for ping rows.
	if lat := ping[4].(pgtype.Int8); !lat.Valid {
		t.Error("latency_us should be set for ping rows")
	}
	if nonce := ping[6].(pgtype.Int8); nonce.Valid {
		t.Error("nonce should be NULL for ping rows")
	}

	msg := insertArgs(Row{SessionID: id, Kind: "message", PacketType: "bet"})
	if lat := msg[4].(pgtype.Int8); lat.Valid {
		t.Error("latency_us should be NULL for message rows")
	}
	if typ := msg[5].(pgtype.Text); !typ.Valid || typ.String != "bet" {
		t.Errorf("packet_type arg = %+v, want bet", typ)
	}
	if errArg := msg[7].(pgtype.Text); errArg.Valid {
		t.Error("error should be NULL when empty")
	}
}

func TestWriter_FlushOnBatchSize(t *testing.T) {
	store := &memStore{}
	bus := events.New(nil)
	w := NewWriter(Config{BatchSize: 3, FlushInterval: time.Hour}, store, uuid.New(), nil)
	w.Attach(bus)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	bus.Emit(events.Event{Kind: events.KindConnected})
	bus.Emit(events.Event{Kind: events.KindDisconnected})
	bus.Emit(events.Event{Kind: events.KindReconnecting, Attempt: 1})

	rows := waitRows(t, store, 3)
	want := []string{"connected", "disconnected", "reconnecting"}
	for i, r := range rows {
		if r.Kind != want[i] {
			t.Errorf("rows[%d].Kind = %q, want %q", i, r.Kind, want[i])
		}
	}

	w.Stop(context.Background())
	if s := w.Stats(); s.Flushes != 1 || s.Inserts != 3 {
		t.Errorf("Stats = %+v, want 1 flush of 3", s)
	}
}

func TestWriter_FlushOnInterval(t *testing.T) {
	store := &memStore{}
	bus := events.New(nil)
	w := NewWriter(Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, store, uuid.New(), nil)
	w.Attach(bus)

	w.Start(context.Background())
	defer w.Stop(context.Background())

	bus.Emit(events.Event{Kind: events.KindPing, Latency: time.Millisecond})

	rows := waitRows(t, store, 1)
	if rows[0].Kind != "ping" {
		t.Errorf("Kind = %q, want ping", rows[0].Kind)
	}
}

func TestWriter_StopFlushesRemainder(t *testing.T) {
	store := &memStore{}
	bus := events.New(nil)
	w := NewWriter(Config{BatchSize: 100, FlushInterval: time.Hour}, store, uuid.New(), nil)
	w.Attach(bus)
	w.Start(context.Background())

	for i := 0; i < 5; i++ {
		bus.Emit(events.Event{Kind: events.KindError, Err: errors.New("boom")})
	}

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := len(store.rows()); got != 5 {
		t.Errorf("rows after Stop = %d, want 5", got)
	}

	// Detached: later events are not recorded.
	bus.Emit(events.Event{Kind: events.KindConnected})
	if s := w.Stats(); s.Queue.Pushed != 5 || s.Dropped != 0 {
		t.Errorf("Stats after Stop = %+v, want 5 pushed and nothing dropped", s)
	}
}

func TestWriter_StopFlushesWithStopContext(t *testing.T) {
	store := &memStore{}
	bus := events.New(nil)
	w := NewWriter(Config{BatchSize: 2, FlushInterval: time.Hour}, store, uuid.New(), nil)
	w.Attach(bus)

	for i := 0; i < 5; i++ {
		bus.Emit(events.Event{Kind: events.KindError, Err: errors.New("boom")})
	}

	// The run context is gone before the backlog is consumed, as it is when
	// the process shuts down.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Start(ctx)

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := len(store.rows()); got != 5 {
		t.Errorf("rows after Stop = %d, want 5", got)
	}
	s := w.Stats()
	if s.Errors != 0 {
		t.Errorf("Errors = %d, want 0", s.Errors)
	}
	if s.Queue.Peak != 5 {
		t.Errorf("Queue.Peak = %d, want 5", s.Queue.Peak)
	}
}

func TestWriter_SkipsMessagesByDefault(t *testing.T) {
	msg := events.Event{Kind: events.KindMessage, Packet: &protocol.Packet{Type: "balance", Nonce: 1}}

	bus := events.New(nil)
	w := NewWriter(DefaultConfig(), &memStore{}, uuid.New(), nil)
	w.Attach(bus)
	w2 := NewWriter(Config{IncludeMessages: true}, &memStore{}, uuid.New(), nil)
	w2.Attach(bus)

	bus.Emit(msg)
	bus.Emit(events.Event{Kind: events.KindConnected})

	if n := w.Stats().Queue.Pushed; n != 1 {
		t.Errorf("queued rows = %d, want 1 (connected only)", n)
	}
	if n := w2.Stats().Queue.Pushed; n != 2 {
		t.Errorf("queued rows with IncludeMessages = %d, want 2", n)
	}
}

func TestWriter_StoreError(t *testing.T) {
	store := &memStore{err: errors.New("db down")}
	bus := events.New(nil)
	w := NewWriter(Config{BatchSize: 1, FlushInterval: time.Hour}, store, uuid.New(), nil)
	w.Attach(bus)
	w.Start(context.Background())

	bus.Emit(events.Event{Kind: events.KindConnected})
	w.Stop(context.Background())

	s := w.Stats()
	if s.Errors == 0 {
		t.Errorf("Errors = 0, want > 0")
	}
	if s.Inserts != 0 {
		t.Errorf("Inserts = %d, want 0", s.Inserts)
	}
}

func TestWriter_DefaultsApplied(t *testing.T) {
	w := NewWriter(Config{}, &memStore{}, uuid.New(), nil)
	def := DefaultConfig()
	if w.cfg.BatchSize != def.BatchSize || w.cfg.FlushInterval != def.FlushInterval {
		t.Errorf("cfg = %+v, want defaults %+v", w.cfg, def)
	}
}
