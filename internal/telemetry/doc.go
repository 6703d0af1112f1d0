// Package telemetry records connection lifecycle events to PostgreSQL.
//
// A Writer subscribes to the transport's event bus and converts each event into
// a Row. Listeners only enqueue, so the read loop never waits on the database.
// Rows are batched and flushed every BatchSize rows or FlushInterval, whichever
// comes first, into the connection_events table.
package telemetry
