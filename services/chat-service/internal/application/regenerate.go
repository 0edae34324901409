package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

type RegenerateRequest struct {
	MessageID string
	UserID    string
	Model     string
	Stream    bool
}

type RegenerateResult struct {
	SessionID  string
	MessageID  string
	NewContent string
	Streamed   bool
}

// Regenerate rewrites an assistant message in place using the conversation
// that preceded it. The last user turn of that conversation is sent again as
// the prompt.
func (s *ChatService) Regenerate(ctx context.Context, req RegenerateRequest, emit Emitter) (*RegenerateResult, error) {
	target, err := s.repo.GetMessageWithOwner(ctx, req.MessageID)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", req.MessageID, err)
	}
	if target.Role != domain.RoleAssistant {
		return nil, fmt.Errorf("message %s: %w", req.MessageID, domain.ErrInvalidOperation)
	}
	if target.OwnerID != req.UserID {
		return nil, fmt.Errorf("message %s: %w", req.MessageID, domain.ErrForbidden)
	}

	cutoff := target.CreatedAt
	history, err := s.history.Load(ctx, target.SessionID, &cutoff)
	if err != nil {
		return nil, err
	}
	last, ok := lastUserTurn(history)
	if !ok {
		return nil, fmt.Errorf("message %s: %w", req.MessageID, domain.ErrNoUserContext)
	}

	result := &RegenerateResult{
		SessionID: target.SessionID,
		MessageID: target.MessageID,
		Streamed:  req.Stream,
	}
	gen, err := s.generate(ctx, domain.CompletionRequest{
		Model:    s.model(req.Model),
		Messages: append(history, last),
	}, req.Stream, emit)
	if err != nil {
		return result, err
	}
	result.NewContent = gen.Content

	if gen.Content == "" {
		s.logger.Warn("regeneration returned an empty reply, message left unchanged",
			zap.String("message_id", target.MessageID))
		return result, nil
	}

	saveCtx, cancel := s.saveContext(ctx)
	defer cancel()
	if err := s.repo.UpdateMessage(saveCtx, target.MessageID, gen.Content, gen.Reasoning); err != nil {
		return result, fmt.Errorf("update message %s: %w", target.MessageID, err)
	}
	return result, nil
}
