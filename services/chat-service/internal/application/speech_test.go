package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

type fakeTranscriber struct {
	text string
	lang string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, _ string, lang string) (string, error) {
	f.lang = lang
	return f.text, nil
}

func TestSpeechServiceTranscribe(t *testing.T) {
	tr := &fakeTranscriber{text: " 你好世界 \n"}
	svc := NewSpeechService(tr)

	text, err := svc.Transcribe(context.Background(), &UploadedFile{Name: "a.webm", MimeType: "audio/webm", Data: []byte{1, 2}}, "")
	require.NoError(t, err)
	assert.Equal(t, "你好世界", text)
	assert.Equal(t, "zh", tr.lang)

	_, err = svc.Transcribe(context.Background(), &UploadedFile{}, "en")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.Transcribe(context.Background(), nil, "en")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
