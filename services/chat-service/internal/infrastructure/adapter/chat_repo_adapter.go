package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/persistence/cache"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/persistence/repository"
)

// HistoryCache is the cache-aside store for session message lists.
type HistoryCache interface {
	GetSessionMessages(ctx context.Context, sessionID string) ([]*domain.Message, error)
	SetSessionMessages(ctx context.Context, sessionID string, messages []*domain.Message) error
	InvalidateSessionMessages(ctx context.Context, sessionID string) error
}

// ChatRepositoryAdapter 协调 Postgres, Redis 和 MQ.
// Writes go to the database synchronously; the cache is invalidated and an
// event published afterwards, and failures of either are only logged.
type ChatRepositoryAdapter struct {
	cache       HistoryCache
	msgRepo     *repository.MessageRepository
	sessionRepo *repository.SessionRepository
	publisher   domain.EventPublisher
	logger      *zap.Logger
	now         func() time.Time
}

func NewChatRepositoryAdapter(
	cache HistoryCache,
	msgRepo *repository.MessageRepository,
	sessionRepo *repository.SessionRepository,
	publisher domain.EventPublisher,
	logger *zap.Logger,
) *ChatRepositoryAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatRepositoryAdapter{
		cache:       cache,
		msgRepo:     msgRepo,
		sessionRepo: sessionRepo,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}
}

func (adp *ChatRepositoryAdapter) CreateSession(ctx context.Context, ownerID, title string) (*domain.Session, error) {
	now := adp.now()
	session := &domain.Session{
		ID:        uuid.New().String(),
		UserID:    ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	session.SetTitle(title, domain.TitleMaxLen)
	if err := adp.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (adp *ChatRepositoryAdapter) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return adp.sessionRepo.FindByID(ctx, sessionID)
}

func (adp *ChatRepositoryAdapter) ListSessions(ctx context.Context, ownerID string) ([]*domain.Session, error) {
	return adp.sessionRepo.FindByUserID(ctx, ownerID)
}

func (adp *ChatRepositoryAdapter) DeleteSession(ctx context.Context, sessionID string) error {
	if err := adp.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return err
	}
	adp.invalidate(ctx, sessionID)
	adp.publish(ctx, &domain.ChatEvent{Type: domain.ChatEventSessionDeleted, SessionID: sessionID})
	return nil
}

// ListHistory serves full histories from the cache. Cut-off reads are rare
// (regeneration only) and go straight to the database.
func (adp *ChatRepositoryAdapter) ListHistory(ctx context.Context, sessionID string, before *time.Time) ([]*domain.Message, error) {
	if before != nil {
		return adp.msgRepo.FindBySessionID(ctx, sessionID, before)
	}
	return adp.ListMessages(ctx, sessionID)
}

func (adp *ChatRepositoryAdapter) ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	// 读缓存
	if adp.cache != nil {
		messages, err := adp.cache.GetSessionMessages(ctx, sessionID)
		if err == nil {
			return messages, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			adp.logger.Warn("read history cache failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	messages, err := adp.msgRepo.FindBySessionID(ctx, sessionID, nil)
	if err != nil {
		return nil, err
	}

	// 回写缓存
	if adp.cache != nil && len(messages) > 0 {
		if err := adp.cache.SetSessionMessages(ctx, sessionID, messages); err != nil {
			adp.logger.Warn("fill history cache failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return messages, nil
}

func (adp *ChatRepositoryAdapter) InsertMessage(ctx context.Context, msg *domain.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = adp.now()
	}
	if err := adp.msgRepo.Save(ctx, msg); err != nil {
		return "", err
	}
	adp.invalidate(ctx, msg.SessionID)
	adp.publish(ctx, &domain.ChatEvent{
		Type:      domain.ChatEventMessageSaved,
		SessionID: msg.SessionID,
		MessageID: msg.ID,
		Role:      msg.Role,
	})
	return msg.ID, nil
}

func (adp *ChatRepositoryAdapter) UpdateMessage(ctx context.Context, messageID, content, reasoningContent string) error {
	owner, err := adp.msgRepo.FindWithOwner(ctx, messageID)
	if err != nil {
		return err
	}
	if err := adp.msgRepo.UpdateContent(ctx, messageID, content, reasoningContent, adp.now()); err != nil {
		return err
	}
	adp.invalidate(ctx, owner.SessionID)
	adp.publish(ctx, &domain.ChatEvent{
		Type:      domain.ChatEventMessageRegenerated,
		SessionID: owner.SessionID,
		MessageID: messageID,
		Role:      owner.Role,
	})
	return nil
}

func (adp *ChatRepositoryAdapter) GetMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	return adp.msgRepo.FindByID(ctx, messageID)
}

func (adp *ChatRepositoryAdapter) GetMessageWithOwner(ctx context.Context, messageID string) (*domain.MessageOwner, error) {
	return adp.msgRepo.FindWithOwner(ctx, messageID)
}

func (adp *ChatRepositoryAdapter) SetMessageLiked(ctx context.Context, messageID string, liked bool) error {
	msg, err := adp.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := adp.msgRepo.SetLiked(ctx, messageID, liked); err != nil {
		return err
	}
	adp.invalidate(ctx, msg.SessionID)
	return nil
}

func (adp *ChatRepositoryAdapter) invalidate(ctx context.Context, sessionID string) {
	if adp.cache == nil {
		return
	}
	if err := adp.cache.InvalidateSessionMessages(ctx, sessionID); err != nil {
		adp.logger.Warn("invalidate history cache failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (adp *ChatRepositoryAdapter) publish(ctx context.Context, evt *domain.ChatEvent) {
	if adp.publisher == nil {
		return
	}
	evt.At = adp.now()
	if err := adp.publisher.Publish(ctx, evt); err != nil {
		adp.logger.Warn("publish chat event failed",
			zap.String("type", string(evt.Type)), zap.String("session_id", evt.SessionID), zap.Error(err))
	}
}
