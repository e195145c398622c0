package outbound

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Priority int

const (
	Low Priority = iota
	Normal
	High
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Message is one outbound event on its way to a socket.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Priority  Priority        `json:"priority"`
	Target    string          `json:"target"`        // room name or user room
	Key       string          `json:"key,omitempty"` // coalescing key; empty never coalesces
	Origin    string          `json:"origin,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// New builds a message with a fresh id and the payload JSON-encoded.
func New(typ string, payload any, priority Priority, at time.Time) (Message, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		raw = b
	}
	return Message{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   raw,
		Priority:  priority,
		Timestamp: at,
	}, nil
}

// Coalescing returns a copy of m that supersedes older pending copies with
// the same target and key.
func (m Message) Coalescing(key string) Message {
	m.Key = key
	return m
}

// Frame is the JSON written to the socket.
type Frame struct {
	Type      string          `json:"type"`
	Room      string          `json:"room,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(Frame{
		Type:      m.Type,
		Room:      m.Target,
		Payload:   m.Payload,
		Timestamp: m.Timestamp,
	})
}
