package domain

import (
	"context"
	"time"
)

// ChatMessage is the provider-facing view of a turn: role and content only.
type ChatMessage struct {
	Role    Role
	Content string
}

type CompletionRequest struct {
	Model    string
	Messages []ChatMessage
}

type Completion struct {
	Content          string
	ReasoningContent string
}

// Fragment is one delta of a streamed completion. Either field may be empty.
type Fragment struct {
	Content          string
	ReasoningContent string
}

// DeltaStream is a pull iterator over provider fragments. Next blocks until a
// fragment is available and returns false once the stream is exhausted or
// failed; Err reports the failure.
type DeltaStream interface {
	Next() bool
	Current() Fragment
	Err() error
	Close() error
}

type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	Stream(ctx context.Context, req CompletionRequest) (DeltaStream, error)
	ListModels(ctx context.Context) ([]string, error)
}

// OCRProvider recognizes the text in an image.
type OCRProvider interface {
	Recognize(ctx context.Context, image []byte, mimeType, lang string) (string, error)
}

// ImageFetcher downloads an image referenced by an HTTP(S) URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, lang string) (string, error)
}

type ChatEventType string

const (
	ChatEventMessageSaved       ChatEventType = "message_saved"
	ChatEventMessageRegenerated ChatEventType = "message_regenerated"
	ChatEventSessionDeleted     ChatEventType = "session_deleted"
)

// ChatEvent is published after a successful write so downstream consumers
// (analytics, search indexing) can follow the conversation.
type ChatEvent struct {
	Type      ChatEventType `json:"type"`
	SessionID string        `json:"session_id"`
	MessageID string        `json:"message_id,omitempty"`
	Role      Role          `json:"role,omitempty"`
	At        time.Time     `json:"at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, evt *ChatEvent) error
}
