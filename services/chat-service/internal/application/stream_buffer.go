package application

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

// Emitter delivers one stream event to the client. It is called synchronously
// from the consuming loop.
type Emitter func(ctx context.Context, evt domain.StreamEvent) error

// DefaultBoundary matches a blank line anywhere in the buffer or
// sentence-final punctuation at its end.
var DefaultBoundary = regexp.MustCompile(`\n\n|[。！？.!?]\s*$`)

const (
	DefaultMinChars = 60
	DefaultMaxWait  = 180 * time.Millisecond
)

type BufferOptions struct {
	MinChars     int
	MaxWait      time.Duration
	Boundary     *regexp.Regexp
	EmitThinking bool
}

func DefaultBufferOptions() BufferOptions {
	return BufferOptions{
		MinChars:     DefaultMinChars,
		MaxWait:      DefaultMaxWait,
		Boundary:     DefaultBoundary,
		EmitThinking: true,
	}
}

// bufferState lives for one streaming call.
type bufferState struct {
	pending  strings.Builder
	lastEmit time.Time
	full     strings.Builder
}

// StreamBuffer merges provider deltas into readable chunks. A delta event is
// flushed once the pending text reaches MinChars, matches Boundary, or has
// waited MaxWait since the previous flush. Reasoning text is never buffered.
type StreamBuffer struct {
	opts   BufferOptions
	emit   Emitter
	logger *zap.Logger
	now    func() time.Time

	state     bufferState
	reasoning strings.Builder
	streamed  bool
}

func NewStreamBuffer(opts BufferOptions, emit Emitter, logger *zap.Logger) *StreamBuffer {
	if opts.MinChars <= 0 {
		opts.MinChars = DefaultMinChars
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.Boundary == nil {
		opts.Boundary = DefaultBoundary
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &StreamBuffer{
		opts:   opts,
		emit:   emit,
		logger: logger,
		now:    time.Now,
	}
	b.state.lastEmit = b.now()
	return b
}

// Process handles one fragment.
func (b *StreamBuffer) Process(ctx context.Context, f domain.Fragment) {
	if f.Content != "" {
		b.state.pending.WriteString(f.Content)
		b.state.full.WriteString(f.Content)
	}

	if f.ReasoningContent != "" {
		b.reasoning.WriteString(f.ReasoningContent)
		if b.opts.EmitThinking {
			// pending content must reach the client before the reasoning that follows it
			b.Flush(ctx)
			b.send(ctx, domain.ThinkingEvent(f.ReasoningContent))
		}
	}

	pending := b.state.pending.String()
	if pending == "" {
		return
	}
	byLength := utf8.RuneCountInString(pending) >= b.opts.MinChars
	byBoundary := b.opts.Boundary.MatchString(pending)
	byTime := b.now().Sub(b.state.lastEmit) >= b.opts.MaxWait
	if byLength || byBoundary || byTime {
		b.Flush(ctx)
	}
}

// Flush emits the pending text, if any, and restarts the wait timer.
func (b *StreamBuffer) Flush(ctx context.Context) {
	if b.state.pending.Len() == 0 {
		return
	}
	text := b.state.pending.String()
	b.state.pending.Reset()
	b.state.lastEmit = b.now()
	b.send(ctx, domain.DeltaEvent(text))
}

// Drain consumes stream until it ends and returns the full content text.
// Stream failures end the loop; whatever is pending is still flushed.
func (b *StreamBuffer) Drain(ctx context.Context, stream domain.DeltaStream) string {
	defer func() {
		if err := stream.Close(); err != nil {
			b.logger.Debug("close delta stream", zap.Error(err))
		}
	}()

	for stream.Next() {
		b.Process(ctx, stream.Current())
	}
	if err := stream.Err(); err != nil {
		b.logger.Warn("delta stream terminated with error", zap.Error(err))
	}
	b.Flush(ctx)
	return b.Full()
}

func (b *StreamBuffer) send(ctx context.Context, evt domain.StreamEvent) {
	b.streamed = true
	if err := b.emit(ctx, evt); err != nil {
		b.logger.Warn("emit stream event failed",
			zap.String("type", string(evt.Type)), zap.Error(err))
	}
}

// Streamed reports whether any delta or thinking event was emitted.
func (b *StreamBuffer) Streamed() bool { return b.streamed }

func (b *StreamBuffer) Full() string { return b.state.full.String() }

func (b *StreamBuffer) Reasoning() string { return b.reasoning.String() }
