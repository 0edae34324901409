package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/infrastructure/persistence/model"
)

var ErrCacheMiss = errors.New("cache miss")

const DefaultHistoryTTL = time.Hour

type Options struct {
	Prefix string
	TTL    time.Duration
	// Jitter spreads expiry so hot sessions do not all reload at once.
	Jitter time.Duration
}

type RedisCache struct {
	client *redis.Client
	opts   Options
}

func NewRedisCache(client *redis.Client, opts Options) (*RedisCache, error) {
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultHistoryTTL
	}
	return &RedisCache{client: client, opts: opts}, nil
}

// GetSessionMessages returns the cached full message list of a session.
func (r *RedisCache) GetSessionMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	data, err := r.client.Get(ctx, r.sessionMessagesKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get session messages from cache: %w", err)
	}

	var models []*model.MessageModel
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	messages := make([]*domain.Message, len(models))
	for i, m := range models {
		messages[i] = m.ToDomain()
	}
	return messages, nil
}

func (r *RedisCache) SetSessionMessages(ctx context.Context, sessionID string, messages []*domain.Message) error {
	models := make([]*model.MessageModel, len(messages))
	for i, m := range messages {
		models[i] = model.ToMessageModel(m)
	}
	data, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	return r.client.Set(ctx, r.sessionMessagesKey(sessionID), data, r.ttl()).Err()
}

func (r *RedisCache) InvalidateSessionMessages(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, r.sessionMessagesKey(sessionID)).Err()
}

func (r *RedisCache) ttl() time.Duration {
	if r.opts.Jitter <= 0 {
		return r.opts.TTL
	}
	return r.opts.TTL + time.Duration(rand.Int63n(int64(r.opts.Jitter)))
}

func (r *RedisCache) sessionMessagesKey(sessionID string) string {
	return fmt.Sprintf("%ssession_messages:%s", r.opts.Prefix, sessionID)
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
