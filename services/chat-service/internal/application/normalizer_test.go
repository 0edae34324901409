package application

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func newTestNormalizer(ocrText string) (*MessageNormalizer, *fakeOCR, *fakeFetcher) {
	ocr := &fakeOCR{text: ocrText}
	fetcher := &fakeFetcher{data: pngBytes, mime: "image/png"}
	return NewMessageNormalizer(ocr, fetcher, "", nil), ocr, fetcher
}

func TestDecodeRawItems(t *testing.T) {
	items, err := DecodeRawItems([]byte(`[{"role":"user","content":"hi"}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "hi", items[0].Content)

	items, err = DecodeRawItems([]byte(`"[{\"role\":\"user\",\"type\":\"image\",\"content\":\"look\"}]"`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "image", items[0].Type)

	for _, raw := range []string{`{"role":"user"}`, `"hello"`, ``, `[{"role":"user","content":42}]`} {
		_, err := DecodeRawItems([]byte(raw))
		assert.ErrorIs(t, err, domain.ErrInvalidInput, raw)
	}
}

func TestNormalizeTextPassthrough(t *testing.T) {
	n, ocr, _ := newTestNormalizer("unused")

	out, err := n.Normalize(context.Background(), []RawInputItem{
		{Role: "system", Content: "be brief"},
		{Role: "user", Type: "TEXT", Content: "hello"},
	}, NormalizeOptions{})

	require.NoError(t, err)
	assert.Equal(t, []domain.NormalizedMessage{
		{Role: domain.RoleSystem, Type: domain.TypeText, Content: "be brief"},
		{Role: domain.RoleUser, Type: domain.TypeText, Content: "hello"},
	}, out)
	assert.Zero(t, ocr.calls)
}

func TestNormalizeRejectsInvalidItems(t *testing.T) {
	n, _, _ := newTestNormalizer("x")

	_, err := n.Normalize(context.Background(), nil, NormalizeOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = n.Normalize(context.Background(), []RawInputItem{{Content: "no role"}}, NormalizeOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = n.Normalize(context.Background(), []RawInputItem{{Role: "user"}}, NormalizeOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNormalizeImageFromRawBase64(t *testing.T) {
	n, ocr, fetcher := newTestNormalizer("  recognized text \n")
	raw := base64.StdEncoding.EncodeToString(pngBytes)

	out, err := n.Normalize(context.Background(), []RawInputItem{
		{Type: "image", ImageBase64: raw, Prompt: "what does it say?"},
	}, NormalizeOptions{})

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.RoleUser, out[0].Role)
	assert.Equal(t, domain.TypeImage, out[0].Type)
	assert.Equal(t, "what does it say?\n\nrecognized text", out[0].Content)
	assert.Equal(t, "data:image/png;base64,"+raw, out[0].Media)
	assert.Equal(t, 1, ocr.calls)
	assert.Equal(t, []string{FallbackOCRLanguage}, ocr.langs)
	assert.Zero(t, fetcher.calls)
}

func TestNormalizeImageFromDataURLContent(t *testing.T) {
	n, ocr, _ := newTestNormalizer("receipt total 42")
	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg-ish bytes"))

	out, err := n.Normalize(context.Background(), []RawInputItem{
		{Role: "user", Type: "image", Content: uri},
	}, NormalizeOptions{})

	require.NoError(t, err)
	// the data URI is not reused as a prompt
	assert.Equal(t, "receipt total 42", out[0].Content)
	assert.Equal(t, uri, out[0].Media)
	assert.Equal(t, []string{"image/jpeg"}, ocr.mimes)
}

func TestNormalizeImageFromURL(t *testing.T) {
	n, ocr, fetcher := newTestNormalizer("sign text")

	out, err := n.Normalize(context.Background(), []RawInputItem{
		{Role: "user", Type: "image", Content: "translate this", ImageURL: "https://example.com/a.png", Lang: "eng"},
	}, NormalizeOptions{Lang: "jpn"})

	require.NoError(t, err)
	assert.Equal(t, "translate this\n\nsign text", out[0].Content)
	assert.Equal(t, "https://example.com/a.png", out[0].Media)
	assert.Equal(t, []string{"https://example.com/a.png"}, fetcher.urls)
	assert.Equal(t, []string{"eng"}, ocr.langs)
}

func TestNormalizeImageURLInContent(t *testing.T) {
	n, ocr, fetcher := newTestNormalizer("menu")

	out, err := n.Normalize(context.Background(), []RawInputItem{
		{Role: "user", Type: "image", Content: "http://example.com/menu.png"},
	}, NormalizeOptions{Lang: "jpn"})

	require.NoError(t, err)
	assert.Equal(t, "menu", out[0].Content)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, []string{"jpn"}, ocr.langs)
}

func TestNormalizeImageFetchFailure(t *testing.T) {
	n, ocr, fetcher := newTestNormalizer("x")
	fetcher.err = errors.New("dial tcp: timeout")

	_, err := n.Normalize(context.Background(), []RawInputItem{
		{Role: "user", Type: "image", ImageURL: "https://example.com/a.png"},
	}, NormalizeOptions{})

	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Zero(t, ocr.calls)
}

func TestNormalizeUploadConsumedOnce(t *testing.T) {
	n, ocr, _ := newTestNormalizer("scan")
	file := &UploadedFile{Name: "a.png", MimeType: "image/png", Data: pngBytes}

	out, err := n.Normalize(context.Background(), []RawInputItem{
		{Role: "user", Type: "image", Content: "first"},
	}, NormalizeOptions{File: file})
	require.NoError(t, err)
	assert.Equal(t, "first\n\nscan", out[0].Content)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(pngBytes), out[0].Media)

	_, err = n.Normalize(context.Background(), []RawInputItem{
		{Role: "user", Type: "image", Content: "first"},
		{Role: "user", Type: "image", Content: "second"},
	}, NormalizeOptions{File: file})
	assert.ErrorIs(t, err, domain.ErrMissingImageContent)
	assert.Equal(t, 2, ocr.calls)
}

func TestNormalizeImageWithoutSource(t *testing.T) {
	n, ocr, _ := newTestNormalizer("x")

	_, err := n.Normalize(context.Background(), []RawInputItem{
		{Role: "user", Type: "image", Content: "where is it?"},
	}, NormalizeOptions{})

	assert.ErrorIs(t, err, domain.ErrMissingImageContent)
	assert.Zero(t, ocr.calls)
}

func TestNormalizeImageEmptyOCR(t *testing.T) {
	n, _, _ := newTestNormalizer("   ")

	_, err := n.Normalize(context.Background(), []RawInputItem{
		{Role: "user", Type: "image", ImageBase64: base64.StdEncoding.EncodeToString(pngBytes)},
	}, NormalizeOptions{})

	assert.ErrorIs(t, err, domain.ErrOCREmptyResult)
}

func TestNormalizeAudio(t *testing.T) {
	n, _, _ := newTestNormalizer("x")

	out, err := n.Normalize(context.Background(), []RawInputItem{
		{Role: "user", Type: "voice", Content: "transcribed words", AudioBase64: "UklGRg=="},
		{Role: "user", Type: "audio", Content: "kept", AudioBase64: "data:audio/mp3;base64,AAAA"},
		{Role: "user", Type: "audio", Content: "linked", AudioURL: "https://cdn.example.com/v.mp3"},
		{Role: "user", Type: "audio", Content: "explicit", Media: "blob:abc", AudioURL: "https://cdn.example.com/v.mp3"},
	}, NormalizeOptions{})

	require.NoError(t, err)
	assert.Equal(t, domain.TypeAudio, out[0].Type)
	assert.Equal(t, "transcribed words", out[0].Content)
	assert.Equal(t, "data:audio/wav;base64,UklGRg==", out[0].Media)
	assert.Equal(t, "data:audio/mp3;base64,AAAA", out[1].Media)
	assert.Equal(t, "https://cdn.example.com/v.mp3", out[2].Media)
	assert.Equal(t, "blob:abc", out[3].Media)
}
