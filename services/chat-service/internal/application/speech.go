package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

const defaultSpeechLanguage = "zh"

// SpeechService transcribes recorded voice input for the client.
type SpeechService struct {
	transcriber domain.Transcriber
}

func NewSpeechService(t domain.Transcriber) *SpeechService {
	return &SpeechService{transcriber: t}
}

func (s *SpeechService) Transcribe(ctx context.Context, audio *UploadedFile, lang string) (string, error) {
	if audio == nil || len(audio.Data) == 0 {
		return "", fmt.Errorf("%w: audio file is required", domain.ErrInvalidInput)
	}
	if lang == "" {
		lang = defaultSpeechLanguage
	}
	text, err := s.transcriber.Transcribe(ctx, audio.Data, audio.MimeType, lang)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(text), nil
}
