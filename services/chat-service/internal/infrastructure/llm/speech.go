package llm

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

var audioExtensions = map[string]string{
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/mp4":   "m4a",
	"audio/x-m4a": "m4a",
	"audio/webm":  "webm",
	"audio/ogg":   "ogg",
	"audio/aac":   "aac",
}

// Transcriber uses the audio transcription endpoint (Whisper compatible).
type Transcriber struct {
	client *Client
	model  string
}

func NewTranscriber(client *Client, model string) *Transcriber {
	return &Transcriber{client: client, model: model}
}

func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType, lang string) (string, error) {
	mimeType = strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	ext, ok := audioExtensions[mimeType]
	if !ok {
		ext, mimeType = "wav", "audio/wav"
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "speech."+ext, mimeType),
		Model: openai.AudioModel(t.model),
	}
	if lang != "" {
		params.Language = openai.String(lang)
	}

	opts, release, err := t.client.requestOptions(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	resp, err := t.client.client.Audio.Transcriptions.New(ctx, params, opts...)
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return resp.Text, nil
}
