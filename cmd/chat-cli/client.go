package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/packages/ssestream"
)

type streamEvent struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Thinking  string `json:"thinking"`
	SessionID string `json:"sessionId"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updatedAt"`
}

type historyMessage struct {
	ID               string  `json:"id"`
	Role             string  `json:"role"`
	Type             string  `json:"type"`
	Content          string  `json:"content"`
	ReasoningContent *string `json:"reasoningContent"`
	CreatedAt        string  `json:"createdAt"`
	Liked            int     `json:"liked"`
}

// apiClient speaks the /api/v1/ai protocol.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(server, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(server, "/") + "/api/v1/ai",
		token:   token,
		// streaming replies have no upper bound
		http: &http.Client{},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}
	return resp, nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Msg string `json:"msg"`
	}
	data, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(data, &body) == nil && body.Msg != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body.Msg)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

type chatParams struct {
	SessionID string
	Model     string
	Stream    bool
	Text      string
}

// Chat sends one user turn. In streaming mode onEvent receives every event and
// the session id comes from the closing done event.
func (c *apiClient) Chat(ctx context.Context, p chatParams, onEvent func(streamEvent)) (string, error) {
	body := map[string]any{
		"messages": []chatMessage{{Role: "user", Content: p.Text}},
		"stream":   p.Stream,
	}
	if p.SessionID != "" {
		body["sessionId"] = p.SessionID
	}
	if p.Model != "" {
		body["model"] = p.Model
	}

	resp, err := c.do(ctx, http.MethodPost, "/chat", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if !p.Stream {
		var out struct {
			SessionID string      `json:"sessionId"`
			Reply     chatMessage `json:"reply"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode reply: %w", err)
		}
		onEvent(streamEvent{Type: "delta", Text: out.Reply.Content})
		return out.SessionID, nil
	}
	return readEvents(resp, onEvent)
}

// Regenerate streams a new version of an assistant message.
func (c *apiClient) Regenerate(ctx context.Context, messageID, model string, onEvent func(streamEvent)) error {
	resp, err := c.do(ctx, http.MethodPost, "/messages/"+messageID+"/regenerate",
		map[string]any{"stream": true, "model": model})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = readEvents(resp, onEvent)
	return err
}

// readEvents decodes "data: <json>" frames until done or EOF and returns the
// session id carried by done.
func readEvents(resp *http.Response, onEvent func(streamEvent)) (string, error) {
	dec := ssestream.NewDecoder(resp)
	defer dec.Close()

	sessionID := ""
	for dec.Next() {
		data := bytes.TrimSpace(dec.Event().Data)
		if len(data) == 0 {
			continue
		}
		var evt streamEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return sessionID, fmt.Errorf("decode event %q: %w", data, err)
		}
		onEvent(evt)
		if evt.Type == "done" {
			return evt.SessionID, nil
		}
	}
	if err := dec.Err(); err != nil {
		return sessionID, err
	}
	return sessionID, fmt.Errorf("stream closed before done")
}

func (c *apiClient) Sessions(ctx context.Context) ([]session, error) {
	var out struct {
		Sessions []session `json:"sessions"`
	}
	err := c.getJSON(ctx, "/sessions", &out)
	return out.Sessions, err
}

func (c *apiClient) History(ctx context.Context, sessionID string) ([]historyMessage, error) {
	var out struct {
		Messages []historyMessage `json:"messages"`
	}
	err := c.getJSON(ctx, "/sessions/"+sessionID+"/messages", &out)
	return out.Messages, err
}

func (c *apiClient) Models(ctx context.Context) ([]string, error) {
	var out struct {
		Models []string `json:"models"`
	}
	err := c.getJSON(ctx, "/models", &out)
	return out.Models, err
}

func (c *apiClient) DeleteSession(ctx context.Context, sessionID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/sessions/"+sessionID, nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
