package gemini

import (
	"context"
	"io"
	"iter"
	"sync"

	"google.golang.org/genai"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// Source adapts the genai streaming iterator to llmstream.RawChunkSource.
// The push iterator is converted to pull form; Close stops it, which
// releases the HTTP response. The pull functions must not run concurrently,
// so a Close that lands while Next is reading defers the stop to that Next.
type Source struct {
	next  func() (*genai.GenerateContentResponse, error, bool)
	stop  func()
	model string

	mu       sync.Mutex
	reading  bool
	closed   bool
	stopOnce sync.Once
}

// NewSource wraps a stream returned by Models.GenerateContentStream.
func NewSource(seq iter.Seq2[*genai.GenerateContentResponse, error], model string) *Source {
	next, stop := iter.Pull2(seq)
	return &Source{next: next, stop: stop, model: model}
}

// Next returns the next response. Nil responses are skipped.
func (s *Source) Next(ctx context.Context) (llmstream.RawChunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err, ok, closed := s.pull()
		if closed || !ok {
			return nil, io.EOF
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, mapError(s.model, err)
		}
		if resp != nil {
			return resp, nil
		}
	}
}

func (s *Source) pull() (resp *genai.GenerateContentResponse, err error, ok, closed bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, false, true
	}
	s.reading = true
	s.mu.Unlock()

	resp, err, ok = s.next()

	s.mu.Lock()
	s.reading = false
	closed = s.closed
	s.mu.Unlock()
	if closed {
		s.stopOnce.Do(s.stop)
	}
	return resp, err, ok, closed
}

// Close stops the iterator. Safe to call more than once, and while a Next
// is blocked; the read in flight then stops the iterator when it returns.
func (s *Source) Close() error {
	s.mu.Lock()
	s.closed = true
	reading := s.reading
	s.mu.Unlock()
	if !reading {
		s.stopOnce.Do(s.stop)
	}
	return nil
}
