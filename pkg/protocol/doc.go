// Package protocol defines the wire packet shared by both directions of the
// connection.
//
// Every WebSocket text frame carries exactly one JSON packet:
//
//	{"type": "auth/login", "payload": {...}, "nonce": 7}
//
// A nonce of 0 (or an absent nonce) marks a one-way or unsolicited packet that
// is never matched against a pending request. Payloads are opaque to the
// transport; collaborators decode them per type with Decode.
package protocol
