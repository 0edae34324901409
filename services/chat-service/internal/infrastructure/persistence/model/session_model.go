package model

import (
	"time"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

type SessionModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement;column:id"`
	SessionID string    `gorm:"uniqueIndex:idx_session_id;size:36;not null;column:session_id"`
	UserID    string    `gorm:"index:idx_user_id;size:64;not null;column:user_id"`
	Title     string    `gorm:"size:255;not null;column:title"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
	UpdatedAt time.Time `gorm:"index;not null;column:updated_at"`
}

func (SessionModel) TableName() string { return "chat_sessions" }

func (m *SessionModel) ToDomain() *domain.Session {
	return &domain.Session{
		ID:        m.SessionID,
		UserID:    m.UserID,
		Title:     m.Title,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func ToSessionModel(d *domain.Session) *SessionModel {
	return &SessionModel{
		SessionID: d.ID,
		UserID:    d.UserID,
		Title:     d.Title,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
