package mq

import (
	"context"
	"encoding/json"
	"fmt"

	rocketmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

// sender is the part of rocketmq.Producer the publisher needs.
type sender interface {
	SendSync(ctx context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error)
}

type Producer struct {
	client sender
	topic  string
}

func NewProducer(client rocketmq.Producer, topic string) *Producer {
	return newProducer(client, topic)
}

func newProducer(client sender, topic string) *Producer {
	if topic == "" {
		topic = DefaultTopicChatEvent
	}
	return &Producer{client: client, topic: topic}
}

// Publish sends evt tagged with its type and keyed by session, so consumers
// can filter by tag and keep per-session order.
func (p *Producer) Publish(ctx context.Context, evt *domain.ChatEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("converting error: %w", err)
	}
	msg := primitive.NewMessage(p.topic, data)
	msg.WithTag(string(evt.Type))
	msg.WithKeys([]string{evt.SessionID})

	if _, err := p.client.SendSync(ctx, msg); err != nil {
		return fmt.Errorf("send %s event: %w", evt.Type, err)
	}
	return nil
}
