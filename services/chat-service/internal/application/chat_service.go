package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

const defaultSaveTimeout = 5 * time.Second

type Options struct {
	DefaultModel string
	Buffer       BufferOptions
	// ProviderTimeout bounds one provider call, streaming or not. Zero means
	// no bound beyond the provider client's own.
	ProviderTimeout time.Duration
	SaveTimeout     time.Duration
}

// ChatService runs one conversational turn: session bookkeeping, context
// assembly, persistence and the provider call.
type ChatService struct {
	repo     domain.ChatRepository
	provider domain.CompletionProvider
	history  *HistoryAssembler
	logger   *zap.Logger
	opts     Options
	now      func() time.Time
}

func NewChatService(repo domain.ChatRepository, provider domain.CompletionProvider, logger *zap.Logger, opts Options) *ChatService {
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		repo:     repo,
		provider: provider,
		history:  NewHistoryAssembler(repo),
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

type ChatRequest struct {
	UserID    string
	SessionID string
	Model     string
	Stream    bool
	Messages  []domain.NormalizedMessage
}

type ChatResult struct {
	SessionID string
	// Reply is set for non-streaming calls only.
	Reply    *domain.ChatMessage
	Streamed bool
}

// Chat appends req.Messages to the session and produces the assistant reply.
// With req.Stream set, the reply is delivered through emit and ChatResult
// carries only the session id.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest, emit Emitter) (*ChatResult, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: messages is empty", domain.ErrInvalidInput)
	}

	sessionID, err := s.ensureSession(ctx, req.UserID, req.SessionID, req.Messages[0].Content)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("session_id", sessionID))

	// history is loaded before the new turns are stored so they are not sent twice
	messages, err := s.history.Assemble(ctx, sessionID, req.Messages)
	if err != nil {
		return nil, err
	}

	for _, m := range req.Messages {
		msg := &domain.Message{
			SessionID: sessionID,
			Role:      m.Role,
			Type:      m.Type,
			Content:   m.Content,
			Media:     m.Media,
			CreatedAt: s.now(),
		}
		if _, err := s.repo.InsertMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("save %s message: %w", m.Role, err)
		}
	}

	gen, err := s.generate(ctx, domain.CompletionRequest{
		Model:    s.model(req.Model),
		Messages: messages,
	}, req.Stream, emit)
	if err != nil {
		return &ChatResult{SessionID: sessionID, Streamed: req.Stream}, err
	}

	if gen.Content != "" {
		saveCtx, cancel := s.saveContext(ctx)
		defer cancel()
		reply := &domain.Message{
			SessionID:        sessionID,
			Role:             domain.RoleAssistant,
			Type:             domain.TypeText,
			Content:          gen.Content,
			ReasoningContent: gen.Reasoning,
			CreatedAt:        s.now(),
		}
		if _, err := s.repo.InsertMessage(saveCtx, reply); err != nil {
			return &ChatResult{SessionID: sessionID, Streamed: req.Stream}, fmt.Errorf("save assistant message: %w", err)
		}
	} else {
		log.Warn("provider returned an empty reply, nothing persisted")
	}

	result := &ChatResult{SessionID: sessionID, Streamed: req.Stream}
	if !req.Stream {
		result.Reply = &domain.ChatMessage{Role: domain.RoleAssistant, Content: gen.Content}
	}
	return result, nil
}

// ensureSession 确保会话存在
func (s *ChatService) ensureSession(ctx context.Context, userID, sessionID, firstContent string) (string, error) {
	if sessionID == "" {
		var draft domain.Session
		draft.SetTitle(firstContent, domain.TitleMaxLen)
		session, err := s.repo.CreateSession(ctx, userID, draft.Title)
		if err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
		return session.ID, nil
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("session %s: %w", sessionID, err)
	}
	if session.UserID != userID {
		return "", fmt.Errorf("session %s: %w", sessionID, domain.ErrForbidden)
	}
	return session.ID, nil
}

type generation struct {
	Content   string
	Reasoning string
}

// generate performs the provider call. In streaming mode the reply goes
// through a StreamBuffer; a stream that produced nothing is retried once as a
// plain completion whose text is emitted as a single delta.
func (s *ChatService) generate(ctx context.Context, req domain.CompletionRequest, stream bool, emit Emitter) (*generation, error) {
	pctx, cancel := s.providerContext(ctx)
	defer cancel()

	if !stream {
		c, err := s.provider.Complete(pctx, req)
		if err != nil {
			return nil, fmt.Errorf("completion: %w", err)
		}
		return &generation{Content: c.Content, Reasoning: c.ReasoningContent}, nil
	}

	ds, err := s.provider.Stream(pctx, req)
	if err != nil {
		return nil, fmt.Errorf("open completion stream: %w", err)
	}
	buf := NewStreamBuffer(s.opts.Buffer, emit, s.logger)
	content := buf.Drain(ctx, ds)
	if buf.Streamed() {
		return &generation{Content: content, Reasoning: buf.Reasoning()}, nil
	}

	s.logger.Info("stream produced no output, falling back to a plain completion",
		zap.String("model", req.Model))
	c, err := s.provider.Complete(pctx, req)
	if err != nil {
		return nil, fmt.Errorf("fallback completion: %w", err)
	}
	if c.Content != "" {
		if err := emit(ctx, domain.DeltaEvent(c.Content)); err != nil {
			s.logger.Warn("emit fallback reply failed", zap.Error(err))
		}
	}
	reasoning := buf.Reasoning()
	if c.ReasoningContent != "" {
		reasoning = c.ReasoningContent
	}
	return &generation{Content: c.Content, Reasoning: reasoning}, nil
}

func (s *ChatService) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if s.opts.ProviderTimeout > 0 {
		return context.WithTimeout(detached, s.opts.ProviderTimeout)
	}
	return context.WithCancel(detached)
}

// saveContext survives client disconnects so a finished reply is not lost.
func (s *ChatService) saveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.SaveTimeout)
}

func (s *ChatService) model(requested string) string {
	if requested != "" {
		return requested
	}
	return s.opts.DefaultModel
}

// ListSessions 获取用户会话列表
func (s *ChatService) ListSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.repo.ListSessions(ctx, userID)
}

// SessionMessages returns every message of a session owned by userID.
func (s *ChatService) SessionMessages(ctx context.Context, userID, sessionID string) ([]*domain.Message, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrForbidden)
	}
	return s.repo.ListMessages(ctx, sessionID)
}

// DeleteSession 删除会话. Sessions of other users are reported as missing.
func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	if session.UserID != userID {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return s.repo.DeleteSession(ctx, sessionID)
}

// ToggleLike flips the liked flag of a message and returns the new value.
func (s *ChatService) ToggleLike(ctx context.Context, userID, messageID string) (bool, error) {
	owner, err := s.repo.GetMessageWithOwner(ctx, messageID)
	if err != nil {
		return false, fmt.Errorf("message %s: %w", messageID, err)
	}
	if owner.OwnerID != userID {
		return false, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return false, fmt.Errorf("message %s: %w", messageID, err)
	}
	liked := !msg.Liked
	if err := s.repo.SetMessageLiked(ctx, messageID, liked); err != nil {
		return false, fmt.Errorf("update like: %w", err)
	}
	return liked, nil
}

func (s *ChatService) ListModels(ctx context.Context) ([]string, error) {
	models, err := s.provider.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return models, nil
}
