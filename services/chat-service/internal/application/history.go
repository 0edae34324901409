package application

import (
	"context"
	"fmt"
	"time"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

// HistoryAssembler builds the provider context for a session.
type HistoryAssembler struct {
	repo domain.ChatRepository
}

func NewHistoryAssembler(repo domain.ChatRepository) *HistoryAssembler {
	return &HistoryAssembler{repo: repo}
}

// Load returns the stored turns of the session in creation order, limited to
// turns created strictly before the cutoff when one is given.
func (h *HistoryAssembler) Load(ctx context.Context, sessionID string, before *time.Time) ([]domain.ChatMessage, error) {
	msgs, err := h.repo.ListHistory(ctx, sessionID, before)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	out := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// Assemble appends the new turns to the stored history.
func (h *HistoryAssembler) Assemble(ctx context.Context, sessionID string, turns []domain.NormalizedMessage) ([]domain.ChatMessage, error) {
	history, err := h.Load(ctx, sessionID, nil)
	if err != nil {
		return nil, err
	}
	for _, t := range turns {
		history = append(history, domain.ChatMessage{Role: t.Role, Content: t.Content})
	}
	return history, nil
}

// lastUserTurn finds the most recent user turn of history.
func lastUserTurn(history []domain.ChatMessage) (domain.ChatMessage, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			return history[i], true
		}
	}
	return domain.ChatMessage{}, false
}
