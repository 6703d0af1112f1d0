// Package metrics exposes connection transport metrics to Prometheus.
//
// Key metrics:
//   - Connection state, connects, disconnects and reconnect attempts
//   - Inbound message rates by packet type
//   - Error counts by kind (parse, transport)
//   - Keepalive round-trip latency
//   - Requests awaiting a response
package metrics
