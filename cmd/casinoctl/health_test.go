package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/casino-client/pkg/connection"
)

type stubHealth struct {
	status connection.Status
	id     uuid.UUID
}

func (s stubHealth) Status() connection.Status    { return s.status }
func (s stubHealth) Pending() int                 { return 2 }
func (s stubHealth) LatestLatency() time.Duration { return 42 * time.Millisecond }
func (s stubHealth) SessionID() uuid.UUID         { return s.id }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		status   connection.Status
		wantCode int
	}{
		{connection.StatusConnected, http.StatusOK},
		{connection.StatusReconnecting, http.StatusServiceUnavailable},
		{connection.StatusDisconnected, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			src := stubHealth{status: tt.status, id: uuid.New()}
			rec := httptest.NewRecorder()
			healthHandler(src).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}

			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["status"] != tt.status.String() {
				t.Errorf("status = %v, want %s", body["status"], tt.status)
			}
			if body["session"] != src.id.String() {
				t.Errorf("session = %v, want %s", body["session"], src.id)
			}
			if body["ping_latency_ms"] != float64(42) {
				t.Errorf("ping_latency_ms = %v, want 42", body["ping_latency_ms"])
			}
		})
	}
}
