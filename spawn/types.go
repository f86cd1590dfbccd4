package spawn

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind discriminates wire messages.
type Kind string

const (
	KindChat      Kind = "chat"
	KindHeartbeat Kind = "heartbeat"
	KindSystem    Kind = "system"
	KindPing      Kind = "ping"
	KindPong      Kind = "pong"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindHeartbeat, KindSystem, KindPing, KindPong:
		return true
	}
	return false
}

// control reports whether messages of this kind stay inside the client.
func (k Kind) control() bool {
	return k == KindPing || k == KindPong
}

// sentAtLayout matches the ISO-8601 form produced by browsers.
const sentAtLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload is the kind-specific body of a Message.
// The set of implementations is closed.
type Payload interface {
	Kind() Kind
	validate() error
}

// ChatPayload carries a chat line in either direction.
type ChatPayload struct {
	Content string `json:"content"`
}

func (ChatPayload) Kind() Kind      { return KindChat }
func (ChatPayload) validate() error { return nil }

// HeartbeatEvent marks the start or end of an agent cycle.
type HeartbeatEvent string

const (
	HeartbeatStart HeartbeatEvent = "start"
	HeartbeatEnd   HeartbeatEvent = "end"
)

// HeartbeatStatus is the outcome of a finished cycle.
type HeartbeatStatus string

const (
	HeartbeatSuccess  HeartbeatStatus = "success"
	HeartbeatNoAction HeartbeatStatus = "no_action"
	HeartbeatError    HeartbeatStatus = "error"
)

// HeartbeatPayload reports agent cycle progress.
type HeartbeatPayload struct {
	Event       HeartbeatEvent  `json:"event"`
	CycleNumber int             `json:"cycleNumber"`
	Action      string          `json:"action,omitempty"`
	Status      HeartbeatStatus `json:"status,omitempty"`
}

func (HeartbeatPayload) Kind() Kind { return KindHeartbeat }

func (p HeartbeatPayload) validate() error {
	switch p.Event {
	case HeartbeatStart, HeartbeatEnd:
	default:
		return fmt.Errorf("invalid heartbeat event %q", p.Event)
	}
	switch p.Status {
	case "", HeartbeatSuccess, HeartbeatNoAction, HeartbeatError:
	default:
		return fmt.Errorf("invalid heartbeat status %q", p.Status)
	}
	return nil
}

// SystemPayload carries a notice from the agent platform.
type SystemPayload struct {
	Message string `json:"message"`
	Level   string `json:"level,omitempty"`
}

func (SystemPayload) Kind() Kind      { return KindSystem }
func (SystemPayload) validate() error { return nil }

// PingPayload is the empty body of a liveness probe.
type PingPayload struct{}

func (PingPayload) Kind() Kind      { return KindPing }
func (PingPayload) validate() error { return nil }

// PongPayload is the empty body of a probe reply.
type PongPayload struct{}

func (PongPayload) Kind() Kind      { return KindPong }
func (PongPayload) validate() error { return nil }

// Message is the envelope exchanged in both directions.
type Message struct {
	Payload Payload
	SentAt  time.Time // zero means unset
}

// Kind returns the kind of the payload, or "" when there is none.
func (m Message) Kind() Kind {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.Kind()
}

// NewChatMessage builds a chat message stamped with at.
func NewChatMessage(content string, at time.Time) Message {
	return Message{Payload: ChatPayload{Content: content}, SentAt: at}
}

// wireMessage is the JSON form of Message.
type wireMessage struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	SentAt  string          `json:"sentAt,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Payload == nil {
		return nil, NewError(ErrorSerialization, "message has no payload")
	}
	body, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, WrapError(ErrorSerialization, "failed to marshal payload", err)
	}
	w := wireMessage{Kind: m.Payload.Kind(), Payload: body}
	if !m.SentAt.IsZero() {
		w.SentAt = m.SentAt.UTC().Format(sentAtLayout)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. Unknown kinds and payloads that
// do not fit their kind are rejected.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return WrapError(ErrorMalformedFrame, "invalid envelope", err)
	}
	if !w.Kind.Valid() {
		return NewError(ErrorMalformedFrame, fmt.Sprintf("unknown kind %q", w.Kind))
	}

	var p Payload
	switch w.Kind {
	case KindChat:
		var v ChatPayload
		if err := decodePayload(w.Payload, &v); err != nil {
			return err
		}
		p = v
	case KindHeartbeat:
		var v HeartbeatPayload
		if err := decodePayload(w.Payload, &v); err != nil {
			return err
		}
		p = v
	case KindSystem:
		var v SystemPayload
		if err := decodePayload(w.Payload, &v); err != nil {
			return err
		}
		p = v
	case KindPing:
		p = PingPayload{}
	case KindPong:
		p = PongPayload{}
	}
	if err := p.validate(); err != nil {
		return WrapError(ErrorMalformedFrame, "invalid "+string(w.Kind)+" payload", err)
	}

	var sentAt time.Time
	if w.SentAt != "" {
		t, err := time.Parse(time.RFC3339Nano, w.SentAt)
		if err != nil {
			return WrapError(ErrorMalformedFrame, "invalid sentAt", err)
		}
		sentAt = t
	}

	m.Payload = p
	m.SentAt = sentAt
	return nil
}

func decodePayload(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return NewError(ErrorMalformedFrame, "payload must be an object")
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return WrapError(ErrorMalformedFrame, "invalid payload", err)
	}
	return nil
}

// DecodeMessage parses one inbound frame.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		var se *SpawnError
		if errors.As(err, &se) {
			return Message{}, err
		}
		return Message{}, WrapError(ErrorMalformedFrame, "invalid json", err)
	}
	return m, nil
}
