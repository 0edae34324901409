package llm

import (
	"errors"
	"io"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/dolt-y/deepseek-ai-h5/services/chat-service/internal/domain"
)

// chunkStream adapts an SSE completion stream to domain.DeltaStream. Chunks
// without content or reasoning (role headers, usage trailers) are skipped.
type chunkStream struct {
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	release func()
	cur     domain.Fragment
	once    sync.Once
}

func (s *chunkStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		frag := domain.Fragment{
			Content:          delta.Content,
			ReasoningContent: reasoningOf(delta.RawJSON()),
		}
		if frag.Content == "" && frag.ReasoningContent == "" {
			continue
		}
		s.cur = frag
		return true
	}
	return false
}

func (s *chunkStream) Current() domain.Fragment { return s.cur }

func (s *chunkStream) Err() error {
	if err := s.stream.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *chunkStream) Close() error {
	s.once.Do(s.release)
	return s.stream.Close()
}
