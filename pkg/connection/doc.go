// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns one WebSocket connection and its Disconnected / Connecting /
//     Connected / Reconnecting state machine
//   - Multiplexes concurrent requests over the connection by nonce
//   - Reconnects at a fixed interval after unexpected closes, up to a cap
//   - Probes liveness with periodic ping requests while connected
//   - Publishes lifecycle changes and every inbound packet on an event bus
package connection
