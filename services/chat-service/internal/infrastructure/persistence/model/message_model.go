package model

import (
	"time"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

// MessageModel orders by (created_at, id); id is the insertion sequence.
type MessageModel struct {
	ID               uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	MessageID        string    `gorm:"uniqueIndex:idx_message_id;size:36;not null;column:message_id" json:"message_id"`
	SessionID        string    `gorm:"index:idx_session_created,priority:1;size:36;not null;column:session_id" json:"session_id"`
	Role             string    `gorm:"size:20;not null;column:role" json:"role"`
	Type             string    `gorm:"size:20;not null;default:text;column:type" json:"type"`
	Content          string    `gorm:"type:text;not null;column:content" json:"content"`
	Media            string    `gorm:"type:text;column:media" json:"media,omitempty"`
	ReasoningContent string    `gorm:"type:text;column:reasoning_content" json:"reasoning_content,omitempty"`
	Liked            bool      `gorm:"not null;default:false;column:liked" json:"liked"`
	CreatedAt        time.Time `gorm:"index:idx_session_created,priority:2;not null;column:created_at" json:"created_at"`
}

func (MessageModel) TableName() string { return "chat_messages" }

func (m *MessageModel) ToDomain() *domain.Message {
	return &domain.Message{
		ID:               m.MessageID,
		SessionID:        m.SessionID,
		Role:             domain.Role(m.Role),
		Type:             domain.MessageType(m.Type),
		Content:          m.Content,
		Media:            m.Media,
		ReasoningContent: m.ReasoningContent,
		Liked:            m.Liked,
		CreatedAt:        m.CreatedAt,
	}
}

func ToMessageModel(d *domain.Message) *MessageModel {
	typ := d.Type
	if typ == "" {
		typ = domain.TypeText
	}
	return &MessageModel{
		MessageID:        d.ID,
		SessionID:        d.SessionID,
		Role:             d.Role.String(),
		Type:             typ.String(),
		Content:          d.Content,
		Media:            d.Media,
		ReasoningContent: d.ReasoningContent,
		Liked:            d.Liked,
		CreatedAt:        d.CreatedAt,
	}
}
