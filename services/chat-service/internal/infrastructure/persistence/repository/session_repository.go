package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/persistence/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	if err := r.db.WithContext(ctx).Create(model.ToSessionModel(s)).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	var sessionModel model.SessionModel
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&sessionModel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return sessionModel.ToDomain(), nil
}

// FindByUserID lists the sessions of a user, most recently active first.
func (r *SessionRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Session, error) {
	var models []*model.SessionModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc").
		Order("id desc").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find sessions: %w", err)
	}

	sessions := make([]*domain.Session, len(models))
	for i, m := range models {
		sessions[i] = m.ToDomain()
	}
	return sessions, nil
}

// DeleteByID removes the session and all of its messages in one transaction.
func (r *SessionRepository) DeleteByID(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.MessageModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		res := tx.Where("session_id = ?", sessionID).Delete(&model.SessionModel{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}
