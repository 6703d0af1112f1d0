package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// emptyPayload is sent when a caller passes a nil payload.
var emptyPayload = json.RawMessage(`{}`)

// maxParseSample bounds how much of a rejected frame is kept on a ParseError.
const maxParseSample = 256

// Packet is a single message on the wire.
type Packet struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Nonce   int64           `json:"nonce"`
}

// ParseError reports an inbound frame that is not a well-formed packet.
type ParseError struct {
	Sample []byte // Leading bytes of the rejected frame
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse packet: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errMissingType = errors.New("missing type")

// Parse decodes a raw frame into a Packet.
func Parse(data []byte) (*Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, newParseError(data, err)
	}
	if p.Type == "" {
		return nil, newParseError(data, errMissingType)
	}
	if len(p.Payload) == 0 || bytes.Equal(p.Payload, []byte("null")) {
		p.Payload = emptyPayload
	}
	return &p, nil
}

func newParseError(data []byte, err error) *ParseError {
	n := len(data)
	if n > maxParseSample {
		n = maxParseSample
	}
	sample := make([]byte, n)
	copy(sample, data[:n])
	return &ParseError{Sample: sample, Err: err}
}

// EncodePayload marshals a payload value. Nil becomes an empty object and
// json.RawMessage / []byte values are passed through unchanged.
func EncodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return emptyPayload, nil
	case json.RawMessage:
		if len(v) == 0 {
			return emptyPayload, nil
		}
		return v, nil
	case []byte:
		if len(v) == 0 {
			return emptyPayload, nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid JSON")
		}
		return json.RawMessage(v), nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// New builds a packet from an arbitrary payload value.
func New(typ string, payload any, nonce int64) (*Packet, error) {
	if typ == "" {
		return nil, errMissingType
	}
	raw, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	return &Packet{Type: typ, Payload: raw, Nonce: nonce}, nil
}

// NewRequest builds a packet that expects a response carrying the same nonce.
func NewRequest(typ string, payload any, nonce int64) (*Packet, error) {
	if nonce <= 0 {
		return nil, fmt.Errorf("request nonce must be positive, got %d", nonce)
	}
	return New(typ, payload, nonce)
}

// NewResponse builds a packet answering the request with the given nonce.
func NewResponse(typ string, payload any, requestNonce int64) (*Packet, error) {
	return New(typ, payload, requestNonce)
}

// Marshal encodes the packet for the wire.
func (p *Packet) Marshal() ([]byte, error) {
	out := *p
	if len(out.Payload) == 0 {
		out.Payload = emptyPayload
	}
	return json.Marshal(&out)
}

// IsUnsolicited reports whether the packet can never resolve a request.
func (p *Packet) IsUnsolicited() bool {
	return p.Nonce == 0
}

// IsResponseTo reports whether the packet answers the request with nonce.
func (p *Packet) IsResponseTo(nonce int64) bool {
	return nonce != 0 && p.Nonce == nonce
}

// Decode unmarshals the packet payload into T.
func Decode[T any](p *Packet) (T, error) {
	var out T
	if p == nil {
		return out, errors.New("decode payload: nil packet")
	}
	if err := json.Unmarshal(p.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", p.Type, err)
	}
	return out, nil
}
