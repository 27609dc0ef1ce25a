package llmstream

import (
	"context"
	"io"
)

// RawChunk is one vendor-shaped value as delivered by a transport
// collaborator. Each transformer accepts the concrete types of its own wire
// family and ignores anything else:
//   - chat family: *openai.ChatChunk
//   - responses family: *openai.ResponseEvent
//   - anthropic family: anthropic.MessageStreamEventUnion or *anthropic.Message
//   - gemini family: *genai.GenerateContentResponse
type RawChunk any

// RawChunkSource yields raw chunks for one turn, one at a time.
// Next returns io.EOF when the vendor stream ends naturally. Close aborts
// the underlying transport and is safe to call more than once.
type RawChunkSource interface {
	Next(ctx context.Context) (RawChunk, error)
	Close() error
}

// Model defines the interface of a vendor transport collaborator.
// Open performs one vendor call for the given conversation and returns its
// raw chunks; it never retries and never reinterprets payloads.
//
// Usage:
//
//	src, err := model.Open(ctx, conv)
//	if err != nil { return err }
//	defer src.Close()
//	for {
//	  raw, err := src.Next(ctx)
//	  if err == io.EOF { break }
//	  ...
//	}
type Model interface {
	// Open starts one turn against the vendor.
	Open(ctx context.Context, conv *Conversation) (RawChunkSource, error)

	// Provider returns the vendor identity whose transformer reads this model's chunks.
	Provider() ProviderID
}

// SliceSource replays a fixed slice of raw chunks. Used for non-streaming
// responses (a single whole message) and for recorded fixtures.
type SliceSource struct {
	chunks []RawChunk
	pos    int
	closed bool
}

// NewSliceSource creates a source that yields chunks in order, then io.EOF.
func NewSliceSource(chunks ...RawChunk) *SliceSource {
	return &SliceSource{chunks: chunks}
}

// Next returns the next chunk, or io.EOF once exhausted or closed.
func (s *SliceSource) Next(ctx context.Context) (RawChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed || s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

// Close stops the source.
func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}
