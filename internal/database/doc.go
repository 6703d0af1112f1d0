// Package database provides the PostgreSQL connection pool used by the
// connection event log.
package database
