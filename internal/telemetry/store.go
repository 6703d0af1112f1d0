package telemetry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/casino-client/pkg/events"
)

// Store persists batches of rows.
type Store interface {
	Insert(ctx context.Context, rows []Row) error
}

const schema = `
CREATE TABLE IF NOT EXISTS connection_events (
	id          BIGSERIAL PRIMARY KEY,
	session_id  UUID        NOT NULL,
	kind        TEXT        NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	attempt     INTEGER,
	latency_us  BIGINT,
	packet_type TEXT,
	nonce       BIGINT,
	error       TEXT
);
CREATE INDEX IF NOT EXISTS connection_events_session_idx
	ON connection_events (session_id, occurred_at);
`

const insertRow = `
	INSERT INTO connection_events (session_id, kind, occurred_at, attempt, latency_us, packet_type, nonce, error)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// PGStore writes rows to PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore creates a store backed by db.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the connection_events table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create connection_events: %w", err)
	}
	return nil
}

// Insert writes rows in a single batch round trip.
func (s *PGStore) Insert(ctx context.Context, rows []Row) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertRow, insertArgs(r)...)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// insertArgs maps r onto insertRow's parameters. Fields that do not apply to
// the row's kind are stored as NULL.
func insertArgs(r Row) []any {
	return []any{
		pgtype.UUID{Bytes: r.SessionID, Valid: true},
		r.Kind,
		r.OccurredAt,
		pgtype.Int4{Int32: int32(r.Attempt), Valid: r.Attempt != 0},
		pgtype.Int8{Int64: r.LatencyUS, Valid: r.Kind == events.KindPing.String()},
		pgtype.Text{String: r.PacketType, Valid: r.PacketType != ""},
		pgtype.Int8{Int64: r.Nonce, Valid: r.Kind == events.KindMessage.String()},
		pgtype.Text{String: r.Error, Valid: r.Error != ""},
	}
}
