package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// ocrLanguages maps tesseract-style codes to language names for the prompt.
var ocrLanguages = map[string]string{
	"chi_sim": "Simplified Chinese",
	"chi_tra": "Traditional Chinese",
	"eng":     "English",
	"jpn":     "Japanese",
	"kor":     "Korean",
	"fra":     "French",
	"deu":     "German",
	"spa":     "Spanish",
	"rus":     "Russian",
}

const ocrPrompt = "Transcribe all text visible in this image exactly as written, keeping line breaks. " +
	"The text is most likely in %s. Reply with the transcription only. " +
	"If the image contains no text, reply with an empty message."

// VisionOCR recognizes text with a vision-capable chat model.
type VisionOCR struct {
	client *Client
	model  string
}

func NewVisionOCR(client *Client, model string) *VisionOCR {
	return &VisionOCR{client: client, model: model}
}

func (o *VisionOCR) Recognize(ctx context.Context, image []byte, mimeType, lang string) (string, error) {
	name, ok := ocrLanguages[lang]
	if !ok {
		name = lang
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	params := openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(fmt.Sprintf(ocrPrompt, name)),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	}

	opts, release, err := o.client.requestOptions(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	resp, err := o.client.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return "", fmt.Errorf("openai vision: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
