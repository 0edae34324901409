package interfaces

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/application"
	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

// flexBool accepts true as well as the string "true", which is what form
// posts and some mini-program clients send.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	*b = flexBool(strings.Trim(string(data), `"`) == "true")
	return nil
}

type chatBody struct {
	Messages  json.RawMessage `json:"messages"`
	Model     string          `json:"model"`
	Stream    flexBool        `json:"stream"`
	SessionID string          `json:"sessionId"`
	Lang      string          `json:"lang"`
}

type regenerateBody struct {
	Model  string   `json:"model"`
	Stream flexBool `json:"stream"`
}

type chatInput struct {
	Items     []application.RawInputItem
	Model     string
	Stream    bool
	SessionID string
	Lang      string
	File      *application.UploadedFile
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// bindChatInput reads a chat request sent either as JSON or as a multipart
// form carrying an optional "image" file.
func bindChatInput(c *gin.Context, maxUpload int64) (*chatInput, error) {
	var (
		in  chatInput
		raw []byte
	)

	if isMultipart(c) {
		raw = []byte(c.PostForm("messages"))
		in.Model = c.PostForm("model")
		in.Stream = c.PostForm("stream") == "true"
		in.SessionID = c.PostForm("sessionId")
		in.Lang = c.PostForm("lang")

		file, err := formFile(c, "image", maxUpload)
		if err != nil {
			return nil, err
		}
		in.File = file
	} else {
		var body chatBody
		if err := c.ShouldBindJSON(&body); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		raw = body.Messages
		in.Model = body.Model
		in.Stream = bool(body.Stream)
		in.SessionID = body.SessionID
		in.Lang = body.Lang
	}

	items, err := application.DecodeRawItems(raw)
	if err != nil {
		return nil, err
	}
	in.Items = items
	return &in, nil
}

func bindRegenerate(c *gin.Context) (*regenerateBody, error) {
	var body regenerateBody
	if c.Request.ContentLength == 0 {
		return &body, nil
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return &body, nil
}

// formFile returns nil without error when the field is absent.
func formFile(c *gin.Context, field string, maxUpload int64) (*application.UploadedFile, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return readUpload(fh, maxUpload)
}

func readUpload(fh *multipart.FileHeader, maxUpload int64) (*application.UploadedFile, error) {
	if maxUpload > 0 && fh.Size > maxUpload {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidInput, fh.Filename, maxUpload)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return &application.UploadedFile{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

type sessionView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type messageView struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"sessionId"`
	Role             string    `json:"role"`
	Type             string    `json:"type"`
	Content          string    `json:"content"`
	Media            *string   `json:"media"`
	ReasoningContent *string   `json:"reasoningContent"`
	CreatedAt        time.Time `json:"createdAt"`
	Liked            int       `json:"liked"`
}

func toSessionViews(sessions []*domain.Session) []sessionView {
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:        s.ID,
			Title:     s.Title,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}
	return views
}

func toMessageViews(messages []*domain.Message) []messageView {
	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView{
			ID:               m.ID,
			SessionID:        m.SessionID,
			Role:             m.Role.String(),
			Type:             m.Type.String(),
			Content:          m.Content,
			Media:            nullable(m.Media),
			ReasoningContent: nullable(m.ReasoningContent),
			CreatedAt:        m.CreatedAt,
			Liked:            boolToInt(m.Liked),
		})
	}
	return views
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
