package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Well-known originator values.
const (
	// OriginatorSystem marks events computed by the server itself,
	// such as a re-ranked queue after a vote.
	OriginatorSystem = "system"

	// OriginatorUnknown is substituted when the server omitted the
	// acting user from an event.
	OriginatorUnknown = "unknown"
)

// ErrEmptyType is returned when an envelope carries no type tag.
var ErrEmptyType = errors.New("protocol: envelope has empty type")

// Envelope is a single typed message on the real-time channel.
// It is immutable once constructed; the payload stays opaque JSON until
// a consumer decodes it (see DecodePayload).
type Envelope struct {
	// Type is the discriminating tag, e.g. "track_added".
	Type string `json:"type"`

	// Payload is the tag-specific body. May be empty.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Timestamp is when the message was produced.
	Timestamp time.Time `json:"timestamp"`

	// Originator identifies who caused the message: a user id,
	// OriginatorSystem, or OriginatorUnknown.
	Originator string `json:"originator"`
}

// NewEnvelope builds an envelope with the given tag and payload,
// stamped with the current time. The payload is marshaled to JSON; a
// nil payload produces an empty body.
func NewEnvelope(typ string, payload any, originator string) (*Envelope, error) {
	if typ == "" {
		return nil, ErrEmptyType
	}
	if originator == "" {
		originator = OriginatorUnknown
	}

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s payload: %w", typ, err)
		}
		raw = b
	}

	return &Envelope{
		Type:       typ,
		Payload:    raw,
		Timestamp:  time.Now().UTC(),
		Originator: originator,
	}, nil
}

// Encode serializes the envelope for transmission.
func (e *Envelope) Encode() ([]byte, error) {
	if e.Type == "" {
		return nil, ErrEmptyType
	}
	return json.Marshal(e)
}

// DecodeEnvelope parses a wire message into an Envelope.
// A missing originator is normalized to OriginatorUnknown; an unknown
// type tag is accepted as-is for forward compatibility.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if e.Type == "" {
		return nil, ErrEmptyType
	}
	if e.Originator == "" {
		e.Originator = OriginatorUnknown
	}
	return &e, nil
}

// Equal reports whether two envelopes carry the same message.
// Timestamps are compared with time.Time.Equal so differing wall-clock
// representations of the same instant still match.
func (e *Envelope) Equal(other *Envelope) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Type == other.Type &&
		e.Originator == other.Originator &&
		e.Timestamp.Equal(other.Timestamp) &&
		string(e.Payload) == string(other.Payload)
}
