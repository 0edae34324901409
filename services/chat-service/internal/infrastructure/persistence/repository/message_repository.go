package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/persistence/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Save inserts m and bumps the owning session's updated_at. A missing session
// yields domain.ErrNotFound and nothing is written.
func (r *MessageRepository) Save(ctx context.Context, m *domain.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.SessionModel{}).
			Where("session_id = ?", m.SessionID).
			Update("updated_at", m.CreatedAt)
		if res.Error != nil {
			return fmt.Errorf("failed to touch session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("session %s: %w", m.SessionID, domain.ErrNotFound)
		}
		if err := tx.Create(model.ToMessageModel(m)).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		return nil
	})
}

func (r *MessageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	var msgModel model.MessageModel
	err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&msgModel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message: %w", err)
	}
	return msgModel.ToDomain(), nil
}

// FindBySessionID returns the session's messages oldest first. With a non-nil
// before, only messages created strictly earlier are returned.
func (r *MessageRepository) FindBySessionID(ctx context.Context, sessionID string, before *time.Time) ([]*domain.Message, error) {
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}
	var models []*model.MessageModel
	if err := q.Order("created_at asc").Order("id asc").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	messages := make([]*domain.Message, len(models))
	for i, entity := range models {
		messages[i] = entity.ToDomain()
	}
	return messages, nil
}

type messageOwnerRow struct {
	MessageID string
	SessionID string
	Role      string
	CreatedAt time.Time
	OwnerID   string
}

func (r *MessageRepository) FindWithOwner(ctx context.Context, messageID string) (*domain.MessageOwner, error) {
	var row messageOwnerRow
	err := r.db.WithContext(ctx).
		Table("chat_messages AS m").
		Select("m.message_id, m.session_id, m.role, m.created_at, s.user_id AS owner_id").
		Joins("JOIN chat_sessions AS s ON s.session_id = m.session_id").
		Where("m.message_id = ?", messageID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message owner: %w", err)
	}
	return &domain.MessageOwner{
		MessageID: row.MessageID,
		SessionID: row.SessionID,
		OwnerID:   row.OwnerID,
		Role:      domain.Role(row.Role),
		CreatedAt: row.CreatedAt,
	}, nil
}

// UpdateContent rewrites a message and moves it to at in the timeline.
func (r *MessageRepository) UpdateContent(ctx context.Context, messageID, content, reasoning string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.MessageModel{}).
		Where("message_id = ?", messageID).
		Updates(map[string]any{
			"content":           content,
			"reasoning_content": reasoning,
			"created_at":        at,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepository) SetLiked(ctx context.Context, messageID string, liked bool) error {
	res := r.db.WithContext(ctx).Model(&model.MessageModel{}).
		Where("message_id = ?", messageID).
		Update("liked", liked)
	if res.Error != nil {
		return fmt.Errorf("failed to update like: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
