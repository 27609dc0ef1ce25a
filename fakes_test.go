package llmstream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// recorder collects emitted chunks.
type recorder struct {
	mu     sync.Mutex
	chunks []Chunk
}

func (r *recorder) emit(c Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, c)
	return nil
}

func (r *recorder) types() []ChunkType {
	return chunkTypes(r.chunks)
}

func chunkTypes(chunks []Chunk) []ChunkType {
	out := make([]ChunkType, len(chunks))
	for i, c := range chunks {
		out[i] = c.Type
	}
	return out
}

func chunksOfType(chunks []Chunk, t ChunkType) []Chunk {
	var out []Chunk
	for _, c := range chunks {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// step is one scripted raw chunk understood by scriptTransformer.
type step struct {
	thinking string
	text     string
	call     *ToolCall
	usage    *Usage
	finish   string
	fail     error
}

// scriptTransformer applies steps to the turn state the way a vendor
// transformer would.
type scriptTransformer struct{}

func (scriptTransformer) Provider() ProviderID { return ProviderLorem }

func (scriptTransformer) Transform(raw RawChunk, state *TurnState, emit Emit) error {
	s, ok := raw.(step)
	if !ok {
		return nil
	}
	if s.fail != nil {
		return s.fail
	}
	if err := state.AppendThinking(s.thinking, emit); err != nil {
		return err
	}
	if err := state.AppendText(s.text, emit); err != nil {
		return err
	}
	if s.call != nil {
		state.AddToolCallFragment(s.call.Index, s.call.ID, s.call.Name, s.call.Arguments)
	}
	if s.usage != nil {
		state.ObserveUsage(*s.usage)
	}
	if s.finish != "" {
		state.Finish(s.finish)
		return state.Complete(emit)
	}
	return nil
}

func (scriptTransformer) Flush(state *TurnState, emit Emit) error {
	return FlushTurn(state, emit)
}

// scriptModel replays one scripted turn per Open and records the
// conversation each turn was opened with. Turns past the script repeat
// the last one.
type scriptModel struct {
	mu      sync.Mutex
	turns   [][]step
	openErr error
	convs   []*Conversation
	source  func(turn []step) RawChunkSource
}

func (m *scriptModel) Provider() ProviderID { return ProviderLorem }

func (m *scriptModel) Open(ctx context.Context, conv *Conversation) (RawChunkSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	n := len(m.convs)
	m.convs = append(m.convs, conv.Clone())
	if n >= len(m.turns) {
		n = len(m.turns) - 1
	}
	if m.source != nil {
		return m.source(m.turns[n]), nil
	}
	raws := make([]RawChunk, len(m.turns[n]))
	for i, s := range m.turns[n] {
		raws[i] = s
	}
	return NewSliceSource(raws...), nil
}

func (m *scriptModel) opened() []*Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Conversation(nil), m.convs...)
}

// blockingSource yields its steps, then blocks until its context ends,
// ignoring it if ignoreCtx is set.
type blockingSource struct {
	steps     []step
	pos       int
	ignoreCtx bool
	release   chan struct{}
	closeOnce sync.Once
}

func newBlockingSource(steps []step, ignoreCtx bool) *blockingSource {
	return &blockingSource{steps: steps, ignoreCtx: ignoreCtx, release: make(chan struct{})}
}

func (s *blockingSource) Next(ctx context.Context) (RawChunk, error) {
	if s.pos < len(s.steps) {
		st := s.steps[s.pos]
		s.pos++
		return st, nil
	}
	if s.ignoreCtx {
		<-s.release
		return nil, io.EOF
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.release:
		return nil, io.EOF
	}
}

func (s *blockingSource) Close() error {
	s.closeOnce.Do(func() { close(s.release) })
	return nil
}

// failingSource yields its steps, then a transport error.
type failingSource struct {
	steps []step
	pos   int
	err   error
}

func (s *failingSource) Next(context.Context) (RawChunk, error) {
	if s.pos < len(s.steps) {
		st := s.steps[s.pos]
		s.pos++
		return st, nil
	}
	return nil, s.err
}

func (s *failingSource) Close() error { return nil }

var errConnectionReset = errors.New("connection reset by peer")

type echoInput struct {
	Text string `json:"text" jsonschema:"required"`
}

// echoTool returns its "text" argument.
func echoTool(t interface{ Fatalf(string, ...any) }) CatalogTool {
	def, exec, err := NewFuncTool("echo", "Echo the text back",
		func(_ context.Context, in echoInput) (*ToolResult, error) {
			return TextResult(in.Text, false), nil
		})
	if err != nil {
		t.Fatalf("NewFuncTool: %v", err)
	}
	return CatalogTool{Definition: def, Executor: exec}
}

// wordEstimator counts whitespace-separated words.
type wordEstimator struct{}

func (wordEstimator) CountTokens(text string) int { return len(strings.Fields(text)) }

// pullSource blocks in Next until its context ends, and Close waits for a
// read in flight to return, like the stop function of an iter.Pull.
type pullSource struct {
	mu      sync.Mutex
	reading chan struct{}
}

func (s *pullSource) Next(ctx context.Context) (RawChunk, error) {
	s.mu.Lock()
	done := make(chan struct{})
	s.reading = done
	s.mu.Unlock()
	defer close(done)

	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *pullSource) Close() error {
	s.mu.Lock()
	done := s.reading
	s.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

// detachedTransformer completes the turn in Flush without going through
// the emit it was given.
type detachedTransformer struct{ scriptTransformer }

func (detachedTransformer) Flush(state *TurnState, _ Emit) error {
	return state.Complete(func(Chunk) error { return nil })
}
