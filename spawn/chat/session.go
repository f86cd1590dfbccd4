// Package chat keeps a chat transcript on top of a spawn.Client.
package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/spawnagents/spawn-sdk-go/spawn"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MessageType says who produced a transcript entry.
type MessageType string

const (
	TypeUser      MessageType = "user"
	TypeAgent     MessageType = "agent"
	TypeSystem    MessageType = "system"
	TypeHeartbeat MessageType = "heartbeat"
)

// Status is the delivery status of a user entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusError     Status = "error"
)

// HeartbeatType classifies heartbeat entries.
type HeartbeatType string

const (
	CycleStart HeartbeatType = "cycle_start"
	CycleEnd   HeartbeatType = "cycle_end"
	Action     HeartbeatType = "action"
)

// Notices appended by the session itself.
const (
	NoticeConnected    = "Connected to agent"
	NoticeDisconnected = "Disconnected from agent"
	NoticeQueued       = "Message queued - waiting for connection"
)

// ChatMessage is one transcript entry.
type ChatMessage struct {
	ID        string
	Type      MessageType
	Content   string
	Timestamp time.Time

	CycleNumber int    // heartbeat entries
	Status      Status // user entries

	HeartbeatType   HeartbeatType
	HeartbeatStatus spawn.HeartbeatStatus
}

// Option customises a Session.
type Option func(*Session)

// WithInitialMessages seeds the transcript.
func WithInitialMessages(msgs []ChatMessage) Option {
	return func(s *Session) {
		s.messages = append(s.messages, msgs...)
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock replaces time.Now for entries without a server timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session turns client traffic into a transcript. It takes over the client's
// OnMessage and OnStateChange callbacks.
type Session struct {
	client *spawn.Client
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	messages    []ChatMessage
	dropped     uint64 // client evictions already applied to the transcript
	onUpdate    func(ChatMessage)
	onAgent     func(ChatMessage)
	onHeartbeat func(ChatMessage)
}

// NewSession wires a session to client. It does not connect.
func NewSession(client *spawn.Client, opts ...Option) *Session {
	s := &Session{
		client: client,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	client.OnMessage(s.handleMessage)
	client.OnStateChange(s.handleState)
	return s
}

// OnUpdate registers a callback for every appended or changed entry.
func (s *Session) OnUpdate(fn func(ChatMessage)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// OnAgentMessage registers a callback for agent replies.
func (s *Session) OnAgentMessage(fn func(ChatMessage)) {
	s.mu.Lock()
	s.onAgent = fn
	s.mu.Unlock()
}

// OnHeartbeat registers a callback for heartbeat entries.
func (s *Session) OnHeartbeat(fn func(ChatMessage)) {
	s.mu.Lock()
	s.onHeartbeat = fn
	s.mu.Unlock()
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// State returns the client connection state.
func (s *Session) State() spawn.ConnectionState { return s.client.State() }

// IsConnected reports whether the client is connected.
func (s *Session) IsConnected() bool { return s.client.IsConnected() }

// Connect opens the underlying client.
func (s *Session) Connect() { s.client.Connect() }

// Reconnect drops the connection and opens a fresh one.
func (s *Session) Reconnect() {
	s.client.Disconnect()
	s.client.Connect()
}

// SendMessage appends a user entry and sends it. Blank content is ignored and
// yields false. An entry that cannot go out now stays pending until the next
// connect flushes it, or turns to error if the full queue evicts it.
func (s *Session) SendMessage(content string) (ChatMessage, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return ChatMessage{}, false
	}

	s.mu.Lock()
	entry := ChatMessage{
		ID:        uuid.NewString(),
		Type:      TypeUser,
		Content:   content,
		Timestamp: s.now(),
		Status:    StatusPending,
	}
	if s.client.Send(spawn.NewChatMessage(content, entry.Timestamp)) {
		entry.Status = StatusSent
	}
	updates := s.markEvictedLocked()
	s.messages = append(s.messages, entry)
	updates = append(updates, entry)
	if entry.Status == StatusPending {
		updates = append(updates, s.appendLocked(s.notice(NoticeQueued)))
	}
	fn := s.onUpdate
	s.mu.Unlock()

	notify(fn, updates...)
	return entry, true
}

func (s *Session) handleMessage(m spawn.Message) {
	var (
		entry ChatMessage
		hook  func(ChatMessage)
	)

	s.mu.Lock()
	switch p := m.Payload.(type) {
	case spawn.ChatPayload:
		entry = s.entry(TypeAgent, p.Content, m.SentAt)
		hook = s.onAgent
	case spawn.HeartbeatPayload:
		entry = s.entry(TypeHeartbeat, heartbeatText(p), m.SentAt)
		entry.CycleNumber = p.CycleNumber
		entry.HeartbeatType = CycleEnd
		if p.Event == spawn.HeartbeatStart {
			entry.HeartbeatType = CycleStart
		}
		entry.HeartbeatStatus = p.Status
		if entry.HeartbeatStatus == "" {
			entry.HeartbeatStatus = spawn.HeartbeatSuccess
		}
		hook = s.onHeartbeat
	case spawn.SystemPayload:
		entry = s.entry(TypeSystem, p.Message, m.SentAt)
	default:
		s.mu.Unlock()
		s.logger.Debug().Str("kind", string(m.Kind())).Msg("ignoring message")
		return
	}
	s.appendLocked(entry)
	fn := s.onUpdate
	s.mu.Unlock()

	if hook != nil {
		hook(entry)
	}
	notify(fn, entry)
}

func (s *Session) handleState(ev spawn.StateEvent) {
	s.mu.Lock()
	var updates []ChatMessage
	switch ev.NewState {
	case spawn.StateConnected:
		updates = s.markEvictedLocked()
		for i := range s.messages {
			if s.messages[i].Type == TypeUser && s.messages[i].Status == StatusPending {
				s.messages[i].Status = StatusSent
				updates = append(updates, s.messages[i])
			}
		}
		updates = append(updates, s.appendLocked(s.notice(NoticeConnected)))
	case spawn.StateDisconnected:
		updates = append(updates, s.appendLocked(s.notice(NoticeDisconnected)))
	}
	fn := s.onUpdate
	s.mu.Unlock()

	if ev.Error != nil {
		s.logger.Debug().Err(ev.Error).Stringer("state", ev.NewState).Msg("connection state changed")
	}
	notify(fn, updates...)
}

// markEvictedLocked fails the oldest pending user entries, one per message
// the client evicted from its full queue since the last call.
func (s *Session) markEvictedLocked() []ChatMessage {
	total := s.client.Dropped()
	n := total - s.dropped
	s.dropped = total

	var updates []ChatMessage
	for i := range s.messages {
		if n == 0 {
			break
		}
		if s.messages[i].Type == TypeUser && s.messages[i].Status == StatusPending {
			s.messages[i].Status = StatusError
			updates = append(updates, s.messages[i])
			n--
		}
	}
	return updates
}

func (s *Session) entry(t MessageType, content string, at time.Time) ChatMessage {
	if at.IsZero() {
		at = s.now()
	}
	return ChatMessage{ID: uuid.NewString(), Type: t, Content: content, Timestamp: at}
}

func (s *Session) notice(text string) ChatMessage {
	return s.entry(TypeSystem, text, time.Time{})
}

func (s *Session) appendLocked(m ChatMessage) ChatMessage {
	s.messages = append(s.messages, m)
	return m
}

func heartbeatText(p spawn.HeartbeatPayload) string {
	if p.Event == spawn.HeartbeatStart {
		return "Agent woke up"
	}
	if p.Action != "" {
		return p.Action
	}
	return "Cycle completed"
}

func notify(fn func(ChatMessage), msgs ...ChatMessage) {
	if fn == nil {
		return
	}
	for _, m := range msgs {
		fn(m)
	}
}
