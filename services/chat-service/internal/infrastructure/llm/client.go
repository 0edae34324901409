package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/config"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

var ErrNoChoices = errors.New("completion returned no choices")

// EndpointSelector chooses the base URL for one call. release is invoked when
// the call is over.
type EndpointSelector interface {
	Acquire(ctx context.Context) (baseURL string, release func(), err error)
}

// Client talks to any OpenAI-compatible chat API (DeepSeek, vLLM, OpenAI).
type Client struct {
	client   openai.Client
	selector EndpointSelector
	logger   *zap.Logger
}

func NewClient(cfg config.LLMConfig, selector EndpointSelector, logger *zap.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client:   openai.NewClient(opts...),
		selector: selector,
		logger:   logger,
	}
}

func (c *Client) requestOptions(ctx context.Context) ([]option.RequestOption, func(), error) {
	if c.selector == nil {
		return nil, func() {}, nil
	}
	baseURL, release, err := c.selector.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return []option.RequestOption{option.WithBaseURL(baseURL)}, release, nil
}

func toParams(req domain.CompletionRequest) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: msgs,
	}
}

func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	opts, release, err := c.requestOptions(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := c.client.Chat.Completions.New(ctx, toParams(req), opts...)
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	msg := resp.Choices[0].Message
	return &domain.Completion{
		Content:          msg.Content,
		ReasoningContent: reasoningOf(msg.RawJSON()),
	}, nil
}

func (c *Client) Stream(ctx context.Context, req domain.CompletionRequest) (domain.DeltaStream, error) {
	opts, release, err := c.requestOptions(ctx)
	if err != nil {
		return nil, err
	}
	stream := c.client.Chat.Completions.NewStreaming(ctx, toParams(req), opts...)
	return &chunkStream{stream: stream, release: release}, nil
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	opts, release, err := c.requestOptions(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	page, err := c.client.Models.List(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("openai models: %w", err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// reasoningOf extracts the reasoning_content extension DeepSeek reasoner
// models add to messages and deltas.
func reasoningOf(raw string) string {
	if !strings.Contains(raw, "reasoning_content") {
		return ""
	}
	var ext struct {
		ReasoningContent string `json:"reasoning_content"`
	}
	if err := json.Unmarshal([]byte(raw), &ext); err != nil {
		return ""
	}
	return ext.ReasoningContent
}
