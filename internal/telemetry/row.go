package telemetry

import (
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/casino-client/pkg/events"
)

// Row is one connection_events record.
type Row struct {
	SessionID  uuid.UUID
	Kind       string
	OccurredAt time.Time
	Attempt    int    // reconnecting
	LatencyUS  int64  // ping
	PacketType string // message
	Nonce      int64  // message
	Error      string // error
}

// NewRow converts a bus event into a row for session.
func NewRow(session uuid.UUID, ev events.Event) Row {
	r := Row{
		SessionID:  session,
		Kind:       ev.Kind.String(),
		OccurredAt: ev.At,
	}
	if r.OccurredAt.IsZero() {
		r.OccurredAt = time.Now()
	}

	switch ev.Kind {
	case events.KindReconnecting:
		r.Attempt = ev.Attempt
	case events.KindPing:
		r.LatencyUS = ev.Latency.Microseconds()
	case events.KindMessage:
		if ev.Packet != nil {
			r.PacketType = ev.Packet.Type
			r.Nonce = ev.Packet.Nonce
		}
	case events.KindError:
		if ev.Err != nil {
			r.Error = ev.Err.Error()
		}
	}
	return r
}
