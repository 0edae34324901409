package domain

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeAudio MessageType = "audio"
)

func (t MessageType) String() string {
	return string(t)
}

// Message 会话中的一轮消息
type Message struct {
	ID               string
	SessionID        string
	Role             Role
	Type             MessageType
	Content          string
	Media            string
	ReasoningContent string
	Liked            bool
	CreatedAt        time.Time
}

// IsUser checks if the message is from a user
func (m *Message) IsUser() bool {
	return m.Role == RoleUser
}

// MessageOwner is a message joined with the owner of its session.
type MessageOwner struct {
	MessageID string
	SessionID string
	OwnerID   string
	Role      Role
	CreatedAt time.Time
}

// Session 会话实体 (Aggregate Root)
type Session struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const TitleMaxLen = 50

// SetTitle truncates content to maxLen runes.
func (s *Session) SetTitle(content string, maxLen int) {
	runes := []rune(content)
	if len(runes) > maxLen {
		s.Title = string(runes[:maxLen])
	} else {
		s.Title = content
	}
}

// NormalizedMessage is a client turn after media resolution, ready to be sent
// to the provider and persisted.
type NormalizedMessage struct {
	Role    Role        `json:"role"`
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
	Media   string      `json:"media,omitempty"`
}

type EventType string

const (
	EventDelta    EventType = "delta"
	EventThinking EventType = "thinking"
	EventDone     EventType = "done"
)

// StreamEvent is one server-sent event of a streamed reply.
type StreamEvent struct {
	Type      EventType `json:"type"`
	Text      string    `json:"text,omitempty"`
	Thinking  string    `json:"thinking,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

func DeltaEvent(text string) StreamEvent {
	return StreamEvent{Type: EventDelta, Text: text}
}

func ThinkingEvent(thinking string) StreamEvent {
	return StreamEvent{Type: EventThinking, Thinking: thinking}
}

func DoneEvent(sessionID string) StreamEvent {
	return StreamEvent{Type: EventDone, SessionID: sessionID}
}
