package interfaces

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

type errorMapping struct {
	status int
	msg    string
}

var errorMappings = map[domain.Kind]errorMapping{
	domain.KindInvalidInput:        {http.StatusBadRequest, "messages格式不正确"},
	domain.KindMissingImageContent: {http.StatusBadRequest, "图片消息缺少可识别的图片内容"},
	domain.KindOCREmptyResult:      {http.StatusBadRequest, "未能从图片中识别出文字"},
	domain.KindNotFound:            {http.StatusNotFound, "资源不存在或无权限"},
	domain.KindForbidden:           {http.StatusForbidden, "无权限访问该会话"},
	domain.KindInvalidOperation:    {http.StatusBadRequest, "只能重新生成AI回复的消息"},
	domain.KindNoUserContext:       {http.StatusBadRequest, "找不到可用于重新生成的用户消息"},
}

// statusOf maps err to a status code and a client-safe message. Internal
// errors get fallback so no detail leaks to the client.
func statusOf(err error, fallback string) (int, string) {
	if m, ok := errorMappings[domain.KindOf(err)]; ok {
		return m.status, m.msg
	}
	return http.StatusInternalServerError, fallback
}

func (h *ChatHandler) fail(c *gin.Context, err error, fallback string) {
	status, msg := statusOf(err, fallback)
	if status >= http.StatusInternalServerError {
		h.logger.Error(fallback, zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		h.logger.Info("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"msg": msg})
}
