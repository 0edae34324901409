package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

type regenFixture struct {
	svc       *ChatService
	repo      *memRepo
	provider  *fakeProvider
	sessionID string
	firstID   string
	lastID    string
}

func newRegenFixture(t *testing.T) *regenFixture {
	t.Helper()
	provider := &fakeProvider{completion: &domain.Completion{Content: "a better answer", ReasoningContent: "rethink"}}
	svc, repo := newTestService(provider)
	session, err := repo.CreateSession(context.Background(), "u1", "t")
	require.NoError(t, err)

	base := epoch.Add(-time.Hour)
	repo.seed(session.ID, domain.RoleUser, "q1", base)
	first := repo.seed(session.ID, domain.RoleAssistant, "a1", base.Add(time.Minute))
	repo.seed(session.ID, domain.RoleUser, "q2", base.Add(2*time.Minute))
	last := repo.seed(session.ID, domain.RoleAssistant, "a2", base.Add(3*time.Minute))

	return &regenFixture{svc: svc, repo: repo, provider: provider, sessionID: session.ID, firstID: first, lastID: last}
}

func TestRegenerateRewritesMessageInPlace(t *testing.T) {
	f := newRegenFixture(t)

	res, err := f.svc.Regenerate(context.Background(), RegenerateRequest{MessageID: f.lastID, UserID: "u1"}, nil)

	require.NoError(t, err)
	assert.Equal(t, f.lastID, res.MessageID)
	assert.Equal(t, "a better answer", res.NewContent)
	assert.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "q1"},
		{Role: domain.RoleAssistant, Content: "a1"},
		{Role: domain.RoleUser, Content: "q2"},
		{Role: domain.RoleUser, Content: "q2"},
	}, f.provider.lastReq.Messages)

	msgs := f.repo.sessionMessages(f.sessionID)
	require.Len(t, msgs, 4)
	updated, err := f.repo.GetMessage(context.Background(), f.lastID)
	require.NoError(t, err)
	assert.Equal(t, "a better answer", updated.Content)
	assert.Equal(t, "rethink", updated.ReasoningContent)
	assert.True(t, updated.CreatedAt.After(epoch))
}

func TestRegenerateUsesOnlyEarlierTurns(t *testing.T) {
	f := newRegenFixture(t)

	_, err := f.svc.Regenerate(context.Background(), RegenerateRequest{MessageID: f.firstID, UserID: "u1"}, nil)

	require.NoError(t, err)
	assert.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "q1"},
		{Role: domain.RoleUser, Content: "q1"},
	}, f.provider.lastReq.Messages)
}

func TestRegenerateStreaming(t *testing.T) {
	f := newRegenFixture(t)
	f.provider.fragments = []domain.Fragment{{ReasoningContent: "hmm"}, {Content: "streamed again."}}
	rec := &eventRecorder{}

	res, err := f.svc.Regenerate(context.Background(), RegenerateRequest{MessageID: f.lastID, UserID: "u1", Stream: true}, rec.emit)

	require.NoError(t, err)
	assert.Equal(t, f.sessionID, res.SessionID)
	assert.Equal(t, []domain.StreamEvent{
		domain.ThinkingEvent("hmm"),
		domain.DeltaEvent("streamed again."),
	}, rec.events)
	updated, _ := f.repo.GetMessage(context.Background(), f.lastID)
	assert.Equal(t, "streamed again.", updated.Content)
	assert.Equal(t, "hmm", updated.ReasoningContent)
}

func TestRegenerateValidation(t *testing.T) {
	f := newRegenFixture(t)
	ctx := context.Background()
	msgs := f.repo.sessionMessages(f.sessionID)
	userMsgID := msgs[0].ID

	_, err := f.svc.Regenerate(ctx, RegenerateRequest{MessageID: "nope", UserID: "u1"}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// role is checked before ownership
	_, err = f.svc.Regenerate(ctx, RegenerateRequest{MessageID: userMsgID, UserID: "u2"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	_, err = f.svc.Regenerate(ctx, RegenerateRequest{MessageID: f.lastID, UserID: "u2"}, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Zero(t, f.provider.completeCalls+f.provider.streamCalls)
	unchanged, _ := f.repo.GetMessage(ctx, f.lastID)
	assert.Equal(t, "a2", unchanged.Content)
}

func TestRegenerateWithoutUserContext(t *testing.T) {
	provider := &fakeProvider{completion: &domain.Completion{Content: "x"}}
	svc, repo := newTestService(provider)
	session, _ := repo.CreateSession(context.Background(), "u1", "t")
	greeting := repo.seed(session.ID, domain.RoleAssistant, "welcome!", epoch)

	_, err := svc.Regenerate(context.Background(), RegenerateRequest{MessageID: greeting, UserID: "u1"}, nil)

	assert.ErrorIs(t, err, domain.ErrNoUserContext)
	assert.Zero(t, provider.completeCalls)
}

func TestRegenerateKeepsMessageOnEmptyReply(t *testing.T) {
	f := newRegenFixture(t)
	f.provider.completion = &domain.Completion{}

	res, err := f.svc.Regenerate(context.Background(), RegenerateRequest{MessageID: f.lastID, UserID: "u1"}, nil)

	require.NoError(t, err)
	assert.Empty(t, res.NewContent)
	unchanged, _ := f.repo.GetMessage(context.Background(), f.lastID)
	assert.Equal(t, "a2", unchanged.Content)
}
