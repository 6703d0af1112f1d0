package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/casino-client/pkg/connection"
)

// healthSource is the part of the manager the health endpoint reads.
type healthSource interface {
	Status() connection.Status
	Pending() int
	LatestLatency() time.Duration
	SessionID() uuid.UUID
}

// healthHandler reports connection state. It answers 503 unless connected.
func healthHandler(src healthSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := src.Status()
		health := struct {
			Status    string `json:"status"`
			Session   string `json:"session"`
			Pending   int    `json:"pending_requests"`
			LatencyMS int64  `json:"ping_latency_ms"`
		}{
			Status:    status.String(),
			Session:   src.SessionID().String(),
			Pending:   src.Pending(),
			LatencyMS: src.LatestLatency().Milliseconds(),
		}

		w.Header().Set("Content-Type", "application/json")
		if status != connection.StatusConnected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
