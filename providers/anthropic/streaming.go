package anthropic

import (
	"context"
	"io"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// eventStream is the part of *ssestream.Stream the source reads; tests
// substitute a canned stream.
type eventStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

var _ eventStream = (*ssestream.Stream[anthropic.MessageStreamEventUnion])(nil)

// Source adapts the SDK's SSE stream to llmstream.RawChunkSource. Events
// are passed through unchanged; the transformer reads them.
type Source struct {
	stream eventStream
	model  string

	closeOnce sync.Once
	closeErr  error
}

// NewSource wraps an SDK event stream opened for model.
func NewSource(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], model string) *Source {
	return &Source{stream: stream, model: model}
}

// Next returns the next event, io.EOF at the end of the stream, or the
// stream's error mapped to the llmstream taxonomy.
func (s *Source) Next(ctx context.Context) (llmstream.RawChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.stream.Next() {
		return s.stream.Current(), nil
	}
	if err := s.stream.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, mapError(s.model, err)
	}
	return nil, io.EOF
}

// Close releases the HTTP response. Safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.stream.Close()
	})
	return s.closeErr
}
