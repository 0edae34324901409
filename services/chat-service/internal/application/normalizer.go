package application

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

// FallbackOCRLanguage is used when neither the item nor the request names one.
const FallbackOCRLanguage = "chi_sim"

const (
	defaultImageMIME = "image/png"
	defaultAudioMIME = "audio/wav"
)

var (
	imageDataURLRegex = regexp.MustCompile(`(?s)^data:(image/[a-zA-Z0-9.+-]+);base64,(.*)$`)
	imageDataPrefix   = regexp.MustCompile(`^data:image/[^;]+;base64,`)
	httpURLRegex      = regexp.MustCompile(`(?i)^https?://`)
)

// RawInputItem is one client message as submitted, before media resolution.
type RawInputItem struct {
	Role        string `json:"role"`
	Type        string `json:"type,omitempty"`
	Content     string `json:"content"`
	Prompt      string `json:"prompt,omitempty"`
	Lang        string `json:"lang,omitempty"`
	Media       string `json:"media,omitempty"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	AudioURL    string `json:"audioUrl,omitempty"`
	AudioBase64 string `json:"audioBase64,omitempty"`
}

// UploadedFile is a binary part submitted alongside the messages.
type UploadedFile struct {
	Name     string
	MimeType string
	Data     []byte
}

type NormalizeOptions struct {
	File *UploadedFile
	// Lang is the request-wide OCR language.
	Lang string
}

// DecodeRawItems accepts either a JSON array of items or a JSON string that
// itself encodes the array, as multipart forms submit it.
func DecodeRawItems(raw []byte) ([]RawInputItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		raw = bytes.TrimSpace([]byte(encoded))
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: messages must be a list", domain.ErrInvalidInput)
	}
	var items []RawInputItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return items, nil
}

// MessageNormalizer turns raw client items into provider-ready turns. Image
// items are reduced to their recognized text; audio items keep a displayable
// media reference only.
type MessageNormalizer struct {
	ocr          domain.OCRProvider
	fetcher      domain.ImageFetcher
	fallbackLang string
	logger       *zap.Logger
}

func NewMessageNormalizer(ocr domain.OCRProvider, fetcher domain.ImageFetcher, fallbackLang string, logger *zap.Logger) *MessageNormalizer {
	if fallbackLang == "" {
		fallbackLang = FallbackOCRLanguage
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageNormalizer{
		ocr:          ocr,
		fetcher:      fetcher,
		fallbackLang: fallbackLang,
		logger:       logger,
	}
}

func (n *MessageNormalizer) Normalize(ctx context.Context, items []RawInputItem, opts NormalizeOptions) ([]domain.NormalizedMessage, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: messages is empty", domain.ErrInvalidInput)
	}

	fileUsed := false
	out := make([]domain.NormalizedMessage, 0, len(items))
	for i, item := range items {
		var (
			msg domain.NormalizedMessage
			err error
		)
		switch strings.ToLower(item.Type) {
		case "image":
			var usedFile bool
			msg, usedFile, err = n.normalizeImage(ctx, item, opts, fileUsed)
			if usedFile {
				fileUsed = true
			}
		case "audio", "voice":
			msg = normalizeAudio(item)
		default:
			msg = domain.NormalizedMessage{
				Role:    domain.Role(item.Role),
				Type:    domain.TypeText,
				Content: item.Content,
				Media:   item.Media,
			}
		}
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		if !msg.Role.Valid() || msg.Content == "" {
			return nil, fmt.Errorf("%w: message %d needs a role and content", domain.ErrInvalidInput, i)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (n *MessageNormalizer) normalizeImage(ctx context.Context, item RawInputItem, opts NormalizeOptions, fileUsed bool) (domain.NormalizedMessage, bool, error) {
	src, err := n.resolveImage(ctx, item, opts.File, fileUsed)
	if err != nil {
		return domain.NormalizedMessage{}, false, err
	}

	lang := firstNonEmpty(item.Lang, opts.Lang, n.fallbackLang)
	text, err := n.ocr.Recognize(ctx, src.data, src.mime, lang)
	if err != nil {
		return domain.NormalizedMessage{}, src.usedFile, fmt.Errorf("recognize image: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.NormalizedMessage{}, src.usedFile, domain.ErrOCREmptyResult
	}

	prompt := item.Prompt
	if prompt == "" && !isImageSource(item.Content) {
		prompt = item.Content
	}
	content := text
	if prompt != "" {
		content = prompt + "\n\n" + text
	}

	role := domain.Role(item.Role)
	if role == "" {
		role = domain.RoleUser
	}
	return domain.NormalizedMessage{
		Role:    role,
		Type:    domain.TypeImage,
		Content: content,
		Media:   src.media,
	}, src.usedFile, nil
}

type imageSource struct {
	data     []byte
	mime     string
	media    string
	usedFile bool
}

// resolveImage picks the first usable source: inline base64, data-URI
// content, imageUrl, URL content, then the uploaded file if still unused.
func (n *MessageNormalizer) resolveImage(ctx context.Context, item RawInputItem, file *UploadedFile, fileUsed bool) (*imageSource, error) {
	uploadMIME := defaultImageMIME
	if file != nil && strings.HasPrefix(file.MimeType, "image/") {
		uploadMIME = file.MimeType
	}

	if item.ImageBase64 != "" {
		raw := imageDataPrefix.ReplaceAllString(item.ImageBase64, "")
		if data, err := decodeBase64(raw); err == nil && len(data) > 0 {
			mime := sniffImageMIME(data, uploadMIME)
			media := item.ImageBase64
			if !strings.HasPrefix(media, "data:image/") {
				media = dataURL(mime, raw)
			}
			return &imageSource{data: data, mime: mime, media: media}, nil
		}
		n.logger.Debug("imageBase64 is not valid base64, trying other sources")
	}

	if m := imageDataURLRegex.FindStringSubmatch(item.Content); m != nil {
		if data, err := decodeBase64(m[2]); err == nil && len(data) > 0 {
			return &imageSource{data: data, mime: m[1], media: item.Content}, nil
		}
	}

	for _, url := range []string{item.ImageURL, item.Content} {
		if !isHTTPURL(url) {
			continue
		}
		data, mime, err := n.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("fetch image %s: %w", url, err)
		}
		return &imageSource{data: data, mime: sniffImageMIME(data, mime), media: url}, nil
	}

	if file != nil && len(file.Data) > 0 && !fileUsed {
		mime := sniffImageMIME(file.Data, uploadMIME)
		return &imageSource{
			data:     file.Data,
			mime:     mime,
			media:    dataURL(mime, base64.StdEncoding.EncodeToString(file.Data)),
			usedFile: true,
		}, nil
	}

	return nil, domain.ErrMissingImageContent
}

func normalizeAudio(item RawInputItem) domain.NormalizedMessage {
	media := item.Media
	if media == "" && isHTTPURL(item.AudioURL) {
		media = item.AudioURL
	}
	if media == "" && item.AudioBase64 != "" {
		media = item.AudioBase64
		if !strings.HasPrefix(media, "data:audio/") {
			media = dataURL(defaultAudioMIME, media)
		}
	}
	return domain.NormalizedMessage{
		Role:    domain.Role(item.Role),
		Type:    domain.TypeAudio,
		Content: item.Content,
		Media:   media,
	}
}

func isHTTPURL(s string) bool {
	return httpURLRegex.MatchString(s)
}

func isImageSource(s string) bool {
	return imageDataURLRegex.MatchString(s) || isHTTPURL(s)
}

func dataURL(mime, b64 string) string {
	return "data:" + mime + ";base64," + b64
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// sniffImageMIME prefers the type detected from the bytes and falls back to
// the declared one.
func sniffImageMIME(data []byte, declared string) string {
	if detected := http.DetectContentType(data); strings.HasPrefix(detected, "image/") {
		return detected
	}
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	return defaultImageMIME
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
