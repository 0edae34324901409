package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

// sseSink writes stream events to one client as "data: <json>\n\n" frames.
// Headers go out with the first event, so validation errors raised before
// that can still be answered with a plain JSON status. Once the client is
// gone every emit is a no-op and the reply keeps being produced server side.
type sseSink struct {
	c       *gin.Context
	logger  *zap.Logger
	started bool
	gone    bool
}

func newSSESink(c *gin.Context, logger *zap.Logger) *sseSink {
	return &sseSink{c: c, logger: logger}
}

func (s *sseSink) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
	s.c.Writer.WriteHeaderNow()
	s.c.Writer.Flush()
}

// Emit matches application.Emitter.
func (s *sseSink) Emit(_ context.Context, evt domain.StreamEvent) error {
	if s.gone {
		return nil
	}
	if s.c.Request.Context().Err() != nil {
		s.gone = true
		s.logger.Info("client disconnected, dropping remaining events")
		return nil
	}
	s.start()

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.c.Writer, "data: %s\n\n", data); err != nil {
		s.gone = true
		return fmt.Errorf("write event: %w", err)
	}
	s.c.Writer.Flush()
	return nil
}

// Started reports whether the response has been committed as an event stream.
func (s *sseSink) Started() bool {
	return s.started
}

// Done terminates the stream. It is sent even after a provider failure so the
// client always sees the session id.
func (s *sseSink) Done(sessionID string) {
	if err := s.Emit(s.c.Request.Context(), domain.DoneEvent(sessionID)); err != nil {
		s.logger.Warn("write done event failed", zap.Error(err))
	}
}
