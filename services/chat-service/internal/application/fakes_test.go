package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

type memRepo struct {
	mu        sync.Mutex
	sessions  map[string]*domain.Session
	messages  []*domain.Message
	seq       int
	insertErr error
	now       func() time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: map[string]*domain.Session{}, now: time.Now}
}

func (r *memRepo) nextID(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s-%d", prefix, r.seq)
}

func (r *memRepo) CreateSession(_ context.Context, ownerID, title string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &domain.Session{ID: r.nextID("s"), UserID: ownerID, Title: title, CreatedAt: r.now(), UpdatedAt: r.now()}
	r.sessions[s.ID] = s
	return s, nil
}

func (r *memRepo) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) ListSessions(_ context.Context, ownerID string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.UserID == ownerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memRepo) DeleteSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	kept := r.messages[:0]
	for _, m := range r.messages {
		if m.SessionID != sessionID {
			kept = append(kept, m)
		}
	}
	r.messages = kept
	return nil
}

func (r *memRepo) ListHistory(_ context.Context, sessionID string, before *time.Time) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, m := range r.messages {
		if m.SessionID != sessionID {
			continue
		}
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	return r.ListHistory(ctx, sessionID, nil)
}

func (r *memRepo) InsertMessage(_ context.Context, msg *domain.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return "", r.insertErr
	}
	s, ok := r.sessions[msg.SessionID]
	if !ok {
		return "", domain.ErrNotFound
	}
	cp := *msg
	cp.ID = r.nextID("m")
	r.messages = append(r.messages, &cp)
	s.UpdatedAt = r.now()
	return cp.ID, nil
}

func (r *memRepo) find(id string) *domain.Message {
	for _, m := range r.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (r *memRepo) UpdateMessage(_ context.Context, messageID, content, reasoningContent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(messageID)
	if m == nil {
		return domain.ErrNotFound
	}
	m.Content = content
	m.ReasoningContent = reasoningContent
	m.CreatedAt = r.now()
	return nil
}

func (r *memRepo) GetMessage(_ context.Context, messageID string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(messageID)
	if m == nil {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memRepo) GetMessageWithOwner(_ context.Context, messageID string) (*domain.MessageOwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(messageID)
	if m == nil {
		return nil, domain.ErrNotFound
	}
	s := r.sessions[m.SessionID]
	return &domain.MessageOwner{
		MessageID: m.ID,
		SessionID: m.SessionID,
		OwnerID:   s.UserID,
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
	}, nil
}

func (r *memRepo) SetMessageLiked(_ context.Context, messageID string, liked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(messageID)
	if m == nil {
		return domain.ErrNotFound
	}
	m.Liked = liked
	return nil
}

// seed stores a message with an explicit timestamp and returns its id.
func (r *memRepo) seed(sessionID string, role domain.Role, content string, at time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := &domain.Message{ID: r.nextID("m"), SessionID: sessionID, Role: role, Type: domain.TypeText, Content: content, CreatedAt: at}
	r.messages = append(r.messages, m)
	return m.ID
}

func (r *memRepo) sessionMessages(sessionID string) []*domain.Message {
	msgs, _ := r.ListHistory(context.Background(), sessionID, nil)
	return msgs
}

type sliceStream struct {
	fragments []domain.Fragment
	err       error
	pos       int
	closed    bool
}

func (s *sliceStream) Next() bool {
	if s.pos >= len(s.fragments) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Current() domain.Fragment { return s.fragments[s.pos-1] }
func (s *sliceStream) Err() error               { return s.err }
func (s *sliceStream) Close() error             { s.closed = true; return nil }

type fakeProvider struct {
	fragments   []domain.Fragment
	streamErr   error
	openErr     error
	completion  *domain.Completion
	completeErr error
	models      []string

	streamCalls   int
	completeCalls int
	lastReq       domain.CompletionRequest
	ctxErr        error
}

func (p *fakeProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	p.completeCalls++
	p.lastReq = req
	p.ctxErr = ctx.Err()
	if p.completeErr != nil {
		return nil, p.completeErr
	}
	if p.completion == nil {
		return &domain.Completion{}, nil
	}
	return p.completion, nil
}

func (p *fakeProvider) Stream(ctx context.Context, req domain.CompletionRequest) (domain.DeltaStream, error) {
	p.streamCalls++
	p.lastReq = req
	p.ctxErr = ctx.Err()
	if p.openErr != nil {
		return nil, p.openErr
	}
	return &sliceStream{fragments: p.fragments, err: p.streamErr}, nil
}

func (p *fakeProvider) ListModels(context.Context) ([]string, error) {
	return p.models, nil
}

type eventRecorder struct {
	events []domain.StreamEvent
	err    error
}

func (r *eventRecorder) emit(_ context.Context, evt domain.StreamEvent) error {
	r.events = append(r.events, evt)
	return r.err
}

func (r *eventRecorder) texts() []string {
	var out []string
	for _, e := range r.events {
		if e.Type == domain.EventDelta {
			out = append(out, e.Text)
		}
	}
	return out
}

type fakeOCR struct {
	text  string
	err   error
	calls int
	langs []string
	mimes []string
}

func (o *fakeOCR) Recognize(_ context.Context, _ []byte, mimeType, lang string) (string, error) {
	o.calls++
	o.langs = append(o.langs, lang)
	o.mimes = append(o.mimes, mimeType)
	return o.text, o.err
}

type fakeFetcher struct {
	data  []byte
	mime  string
	err   error
	calls int
	urls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, string, error) {
	f.calls++
	f.urls = append(f.urls, url)
	return f.data, f.mime, f.err
}

// tickClock returns a clock advancing one second per call.
func tickClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}
