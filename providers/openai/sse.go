package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// maxEventSize bounds one SSE event; reasoning models can send large chunks.
const maxEventSize = 4 << 20

// Decoder turns one SSE data payload into a raw chunk.
type Decoder func(data []byte) (llmstream.RawChunk, error)

// SSESource reads server-sent events from an HTTP body and decodes each
// data payload. It stops at "data: [DONE]" or the end of the body, and
// turns an in-stream {"error": …} payload into a ProviderError.
type SSESource struct {
	provider llmstream.ProviderID
	body     io.ReadCloser
	scanner  *bufio.Scanner
	decode   Decoder

	closeOnce sync.Once
	done      bool
}

// NewSSESource creates a source over body. The source owns body.
func NewSSESource(provider llmstream.ProviderID, body io.ReadCloser, decode Decoder) *SSESource {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &SSESource{provider: provider, body: body, scanner: scanner, decode: decode}
}

// Next returns the next decoded event.
func (s *SSESource) Next(ctx context.Context) (llmstream.RawChunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.done {
			return nil, io.EOF
		}

		data, err := s.readEvent()
		if err != nil {
			s.done = true
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			return nil, io.EOF
		}

		var errResp struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != nil && errResp.Error.Message != "" {
			s.done = true
			return nil, streamError(s.provider, errResp.Error)
		}

		raw, err := s.decode(data)
		if err != nil {
			// Keep-alives and vendor extensions that are not JSON
			continue
		}
		return raw, nil
	}
}

// readEvent collects the data lines of one event. Comment, event and id
// lines are skipped; the event type is repeated inside the JSON payloads
// this package decodes.
func (s *SSESource) readEvent() ([]byte, error) {
	var data []byte
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			if len(data) > 0 {
				return data, nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}
		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			rest = bytes.TrimPrefix(rest, []byte(" "))
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, rest...)
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		return data, nil
	}
	return nil, io.EOF
}

// Close closes the body, aborting the transport.
func (s *SSESource) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}
