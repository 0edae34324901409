package domain

import (
	"context"
	"time"
)

// ChatRepository 定义数据访问接口
// 不关心具体实现是redis，mq，还是db
type ChatRepository interface {
	CreateSession(ctx context.Context, ownerID, title string) (*Session, error)
	// GetSession returns ErrNotFound when the session does not exist.
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, ownerID string) ([]*Session, error)
	// DeleteSession removes the session together with its messages.
	DeleteSession(ctx context.Context, sessionID string) error

	// ListHistory returns the session turns in creation order. A non-nil
	// before keeps only turns created strictly earlier.
	ListHistory(ctx context.Context, sessionID string, before *time.Time) ([]*Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)
	// InsertMessage stores msg, assigns its ID and bumps the session's
	// UpdatedAt.
	InsertMessage(ctx context.Context, msg *Message) (string, error)
	// UpdateMessage rewrites content and reasoning and refreshes CreatedAt.
	UpdateMessage(ctx context.Context, messageID, content, reasoningContent string) error
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	GetMessageWithOwner(ctx context.Context, messageID string) (*MessageOwner, error)
	SetMessageLiked(ctx context.Context, messageID string, liked bool) error
}
