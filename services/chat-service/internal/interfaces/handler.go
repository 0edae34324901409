package interfaces

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/application"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/middleware"
)

type ChatUseCase interface {
	Chat(ctx context.Context, req application.ChatRequest, emit application.Emitter) (*application.ChatResult, error)
	Regenerate(ctx context.Context, req application.RegenerateRequest, emit application.Emitter) (*application.RegenerateResult, error)
	ListSessions(ctx context.Context, userID string) ([]*domain.Session, error)
	SessionMessages(ctx context.Context, userID, sessionID string) ([]*domain.Message, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
	ToggleLike(ctx context.Context, userID, messageID string) (bool, error)
	ListModels(ctx context.Context) ([]string, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, items []application.RawInputItem, opts application.NormalizeOptions) ([]domain.NormalizedMessage, error)
}

type SpeechUseCase interface {
	Transcribe(ctx context.Context, audio *application.UploadedFile, lang string) (string, error)
}

type ChatHandler struct {
	chat       ChatUseCase
	normalizer Normalizer
	speech     SpeechUseCase
	logger     *zap.Logger
	maxUpload  int64
}

func NewChatHandler(chat ChatUseCase, normalizer Normalizer, speech SpeechUseCase, logger *zap.Logger, maxUpload int64) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		chat:       chat,
		normalizer: normalizer,
		speech:     speech,
		logger:     logger,
		maxUpload:  maxUpload,
	}
}

// RegisterRoutes mounts the chat API on an authenticated group.
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/chat", h.Chat)
	rg.GET("/sessions", h.ListSessions)
	rg.GET("/sessions/:id/messages", h.SessionMessages)
	rg.POST("/sessions/:id/delete", h.DeleteSession)
	rg.DELETE("/sessions/:id", h.DeleteSession)
	rg.GET("/models", h.ListModels)
	rg.POST("/messages/:id/like", h.ToggleLike)
	rg.POST("/messages/:id/regenerate", h.Regenerate)
	rg.POST("/speech-to-text", h.SpeechToText)
}

func (h *ChatHandler) Chat(c *gin.Context) {
	const fallback = "AI服务调用失败"
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	in, err := bindChatInput(c, h.maxUpload)
	if err != nil {
		h.fail(c, err, fallback)
		return
	}
	messages, err := h.normalizer.Normalize(ctx, in.Items, application.NormalizeOptions{
		File: in.File,
		Lang: in.Lang,
	})
	if err != nil {
		h.fail(c, err, fallback)
		return
	}

	req := application.ChatRequest{
		UserID:    userID,
		SessionID: in.SessionID,
		Model:     in.Model,
		Stream:    in.Stream,
		Messages:  messages,
	}

	if !in.Stream {
		res, err := h.chat.Chat(ctx, req, nil)
		if err != nil {
			h.fail(c, err, fallback)
			return
		}
		reply := gin.H{"role": domain.RoleAssistant, "content": ""}
		if res.Reply != nil {
			reply["content"] = res.Reply.Content
		}
		c.JSON(http.StatusOK, gin.H{"sessionId": res.SessionID, "reply": reply})
		return
	}

	sink := newSSESink(c, h.logger.With(zap.String("user_id", userID)))
	res, err := h.chat.Chat(ctx, req, sink.Emit)
	sessionID := ""
	if res != nil {
		sessionID = res.SessionID
	}
	h.endStream(c, sink, sessionID, err, fallback)
}

// endStream closes a streamed response. An error raised before anything was
// written is still answered as JSON; after that it can only be logged.
func (h *ChatHandler) endStream(c *gin.Context, sink *sseSink, sessionID string, err error, fallback string) {
	if err != nil && !sink.Started() {
		h.fail(c, err, fallback)
		return
	}
	if err != nil {
		h.logger.Error("stream ended with error",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	sink.Done(sessionID)
}

func (h *ChatHandler) Regenerate(c *gin.Context) {
	const fallback = "重新生成失败"
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	body, err := bindRegenerate(c)
	if err != nil {
		h.fail(c, err, fallback)
		return
	}
	req := application.RegenerateRequest{
		MessageID: c.Param("id"),
		UserID:    userID,
		Model:     body.Model,
		Stream:    bool(body.Stream),
	}

	if !req.Stream {
		res, err := h.chat.Regenerate(ctx, req, nil)
		if err != nil {
			h.fail(c, err, fallback)
			return
		}
		c.JSON(http.StatusOK, gin.H{"messageId": res.MessageID, "newContent": res.NewContent})
		return
	}

	sink := newSSESink(c, h.logger.With(zap.String("user_id", userID)))
	res, err := h.chat.Regenerate(ctx, req, sink.Emit)
	sessionID := ""
	if res != nil {
		sessionID = res.SessionID
	}
	h.endStream(c, sink, sessionID, err, fallback)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	sessions, err := h.chat.ListSessions(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err, "获取会话失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": toSessionViews(sessions)})
}

func (h *ChatHandler) SessionMessages(c *gin.Context) {
	messages, err := h.chat.SessionMessages(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "获取会话消息失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toMessageViews(messages)})
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.chat.DeleteSession(c.Request.Context(), middleware.UserID(c), sessionID); err != nil {
		h.fail(c, err, "删除失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "删除成功", "sessionId": sessionID})
}

func (h *ChatHandler) ToggleLike(c *gin.Context) {
	messageID := c.Param("id")
	liked, err := h.chat.ToggleLike(c.Request.Context(), middleware.UserID(c), messageID)
	if err != nil {
		h.fail(c, err, "点赞操作失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "操作成功", "messageId": messageID, "liked": boolToInt(liked)})
}

func (h *ChatHandler) ListModels(c *gin.Context) {
	models, err := h.chat.ListModels(c.Request.Context())
	if err != nil {
		h.fail(c, err, "获取模型失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (h *ChatHandler) SpeechToText(c *gin.Context) {
	const fallback = "语音识别失败"
	audio, err := formFile(c, "audio", h.maxUpload)
	if err != nil {
		h.fail(c, err, fallback)
		return
	}
	if audio == nil || len(audio.Data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "未提供音频文件或文件为空"})
		return
	}

	text, err := h.speech.Transcribe(c.Request.Context(), audio, c.PostForm("lang"))
	if err != nil {
		h.fail(c, err, fallback)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "语音识别成功", "text": text})
}
