package llmstream

import (
	"sort"
	"strings"
	"time"
)

// TurnState is the mutable accumulation state of one model turn. The
// pipeline owns it, passes it to every Transform call and resets it when a
// tool round starts the next turn. Its helpers implement the
// vendor-independent half of the transformation: channel bracketing,
// positional tool-call assembly, the web-search and completion latches and
// last-value-wins usage.
type TurnState struct {
	Provider ProviderID
	Turn     int

	now func() time.Time

	started    time.Time
	firstToken time.Time

	textOpen bool
	text     strings.Builder

	thinkingOpen      bool
	thinking          strings.Builder
	thinkingStarted   time.Time
	thinkingSignature string
	thinkingTotal     time.Duration

	calls   []*callBuilder
	aliases map[int]int
	blocks  map[int]string

	webSearchStarted bool
	webSearchDone    bool

	completed     bool
	pendingFinish bool
	stopReason    string

	usage     Usage
	usageSeen bool

	transcript []*Block

	values map[any]any
}

// callBuilder accumulates one positional tool call.
type callBuilder struct {
	index int
	id    string
	name  string
	args  strings.Builder
	sig   string
}

// TurnStateOption configures a TurnState.
type TurnStateOption func(*TurnState)

// WithClock replaces time.Now for elapsed-time and latency measurements.
func WithClock(now func() time.Time) TurnStateOption {
	return func(s *TurnState) {
		s.now = now
	}
}

// NewTurnState creates the state for turn 0 of a request to provider.
func NewTurnState(provider ProviderID, opts ...TurnStateOption) *TurnState {
	s := &TurnState{Provider: provider, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset(0)
	return s
}

// Reset clears all per-turn accumulation and starts the latency clock for turn.
func (s *TurnState) Reset(turn int) {
	s.Turn = turn
	s.started = s.now()
	s.firstToken = time.Time{}
	s.textOpen = false
	s.text.Reset()
	s.thinkingOpen = false
	s.thinking.Reset()
	s.thinkingStarted = time.Time{}
	s.thinkingSignature = ""
	s.thinkingTotal = 0
	s.calls = nil
	s.aliases = make(map[int]int)
	s.blocks = make(map[int]string)
	s.webSearchStarted = false
	s.webSearchDone = false
	s.completed = false
	s.pendingFinish = false
	s.stopReason = ""
	s.usage = Usage{}
	s.usageSeen = false
	s.transcript = nil
	s.values = nil
}

// Value returns transformer-private per-turn data stored under key, such as
// a partial tag carried between chunks. Keys should be unexported types.
func (s *TurnState) Value(key any) any {
	return s.values[key]
}

// SetValue stores transformer-private per-turn data. It is cleared by Reset.
func (s *TurnState) SetValue(key, v any) {
	if s.values == nil {
		s.values = make(map[any]any)
	}
	s.values[key] = v
}

func (s *TurnState) emit(emit Emit, c Chunk) error {
	c.Turn = s.Turn
	return emit(c)
}

func (s *TurnState) markToken() {
	if s.firstToken.IsZero() {
		s.firstToken = s.now()
	}
}

func (s *TurnState) elapsedThinking() *int64 {
	ms := s.now().Sub(s.thinkingStarted).Milliseconds()
	return &ms
}

// AppendText adds a text delta, opening the text channel (and closing the
// thinking channel) as needed. Empty text is ignored.
func (s *TurnState) AppendText(text string, emit Emit) error {
	if text == "" || s.completed {
		return nil
	}
	if err := s.CloseThinking(emit); err != nil {
		return err
	}
	s.markToken()
	if !s.textOpen {
		s.textOpen = true
		s.text.Reset()
		if err := s.emit(emit, Chunk{Type: ChunkTextStart}); err != nil {
			return err
		}
	}
	s.text.WriteString(text)
	return s.emit(emit, Chunk{Type: ChunkTextDelta, Text: text})
}

// AppendThinking adds a reasoning delta, opening the thinking channel (and
// closing the text channel) as needed. Empty text is ignored.
func (s *TurnState) AppendThinking(text string, emit Emit) error {
	if text == "" || s.completed {
		return nil
	}
	if err := s.CloseText(emit); err != nil {
		return err
	}
	s.markToken()
	if !s.thinkingOpen {
		s.thinkingOpen = true
		s.thinking.Reset()
		s.thinkingSignature = ""
		s.thinkingStarted = s.now()
		if err := s.emit(emit, Chunk{Type: ChunkThinkingStart}); err != nil {
			return err
		}
	}
	s.thinking.WriteString(text)
	return s.emit(emit, Chunk{Type: ChunkThinkingDelta, Text: text, ElapsedMillis: s.elapsedThinking()})
}

// SetThinkingSignature attaches a vendor signature to the open thinking run.
// Anthropic requires it when the thinking block is replayed in a tool round.
func (s *TurnState) SetThinkingSignature(sig string) {
	s.thinkingSignature += sig
}

// CloseText emits text.complete if the text channel is open.
func (s *TurnState) CloseText(emit Emit) error {
	if !s.textOpen {
		return nil
	}
	s.textOpen = false
	full := s.text.String()
	s.transcript = append(s.transcript, NewTextBlock(full))
	return s.emit(emit, Chunk{Type: ChunkTextComplete, Text: full})
}

// CloseThinking emits thinking.complete if the thinking channel is open.
func (s *TurnState) CloseThinking(emit Emit) error {
	if !s.thinkingOpen {
		return nil
	}
	s.thinkingOpen = false
	full := s.thinking.String()
	elapsed := s.elapsedThinking()
	s.thinkingTotal += time.Duration(*elapsed) * time.Millisecond

	block := NewThinkingBlock(full)
	if s.thinkingSignature != "" {
		block.Content = map[string]interface{}{"signature": s.thinkingSignature}
		block.Provider = stringPtr(s.Provider.String())
	}
	s.transcript = append(s.transcript, block)
	return s.emit(emit, Chunk{Type: ChunkThinkingComplete, Text: full, ElapsedMillis: elapsed})
}

// TextOpen reports whether a text run is open.
func (s *TurnState) TextOpen() bool { return s.textOpen }

// ThinkingOpen reports whether a thinking run is open.
func (s *TurnState) ThinkingOpen() bool { return s.thinkingOpen }

// AddToolCallFragment merges one streamed tool-call fragment. The first
// fragment at a position usually carries id and name; later ones carry only
// an arguments fragment, which is concatenated positionally. A fragment
// whose id differs from the call already at its position starts a new call
// (some vendors reuse index 0 for every parallel call).
func (s *TurnState) AddToolCallFragment(index int, id, name, fragment string) {
	if s.completed {
		return
	}
	s.markToken()
	if alias, ok := s.aliases[index]; ok {
		index = alias
	}
	call := s.callAt(index)
	if call != nil && id != "" && call.id != "" && call.id != id {
		next := s.nextCallIndex()
		s.aliases[index] = next
		call, index = nil, next
	}
	if call == nil {
		call = &callBuilder{index: index}
		s.calls = append(s.calls, call)
	}
	if call.id == "" {
		call.id = id
	}
	if call.name == "" {
		call.name = name
	}
	call.args.WriteString(fragment)
}

// SetToolCallArguments replaces the accumulated arguments of the call at
// index, for vendors that repeat the complete arguments when a call ends.
func (s *TurnState) SetToolCallArguments(index int, args string) {
	if alias, ok := s.aliases[index]; ok {
		index = alias
	}
	if call := s.callAt(index); call != nil && !s.completed {
		call.args.Reset()
		call.args.WriteString(args)
	}
}

// SetToolCallSignature attaches a vendor signature to the call at index.
func (s *TurnState) SetToolCallSignature(index int, sig string) {
	if alias, ok := s.aliases[index]; ok {
		index = alias
	}
	if call := s.callAt(index); call != nil && !s.completed {
		call.sig = sig
	}
}

// AddToolCall records a call delivered whole (no fragmentation) and
// returns its position.
func (s *TurnState) AddToolCall(id, name, args string) int {
	index := s.nextCallIndex()
	s.AddToolCallFragment(index, id, name, args)
	return index
}

func (s *TurnState) callAt(index int) *callBuilder {
	for _, c := range s.calls {
		if c.index == index {
			return c
		}
	}
	return nil
}

func (s *TurnState) nextCallIndex() int {
	next := 0
	for _, c := range s.calls {
		if c.index >= next {
			next = c.index + 1
		}
	}
	return next
}

// HasToolCalls reports whether any tool call was seen this turn.
func (s *TurnState) HasToolCalls() bool { return len(s.calls) > 0 }

// ToolCalls returns the assembled calls in positional order. Calls without a
// vendor id get a generated one, stable for the rest of the turn.
func (s *TurnState) ToolCalls() []ToolCall {
	ordered := append([]*callBuilder(nil), s.calls...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

	out := make([]ToolCall, 0, len(ordered))
	for i, c := range ordered {
		if c.id == "" {
			c.id = NewToolCallID()
		}
		out = append(out, ToolCall{Index: i, ID: c.id, Name: c.name, Arguments: c.args.String(), Signature: c.sig})
	}
	return out
}

// SetBlockKind registers the kind of a vendor content block by index.
func (s *TurnState) SetBlockKind(index int, kind string) {
	s.blocks[index] = kind
}

// BlockKind returns the registered kind of a vendor content block.
func (s *TurnState) BlockKind(index int) (string, bool) {
	kind, ok := s.blocks[index]
	return kind, ok
}

// ObserveUsage records vendor-reported usage. Vendors report cumulative
// counts, so each non-zero field replaces the previous value instead of
// being added to it.
func (s *TurnState) ObserveUsage(u Usage) {
	s.usageSeen = true
	if u.PromptTokens > 0 {
		s.usage.PromptTokens = u.PromptTokens
	}
	if u.CompletionTokens > 0 {
		s.usage.CompletionTokens = u.CompletionTokens
	}
	if u.TotalTokens > 0 {
		s.usage.TotalTokens = u.TotalTokens
	}
	if u.ThoughtsTokens > 0 {
		s.usage.ThoughtsTokens = u.ThoughtsTokens
	}
}

// UsageSeen reports whether the vendor reported any usage this turn.
func (s *TurnState) UsageSeen() bool { return s.usageSeen }

// Usage returns the turn's usage with completion/total derived when missing.
func (s *TurnState) Usage() Usage {
	u := s.usage
	// A later total that no longer matches an earlier completion count
	// means the vendor reported only prompt and total on the last chunk.
	if u.CompletionTokens > 0 && u.TotalTokens > u.PromptTokens+u.CompletionTokens {
		u.CompletionTokens = u.TotalTokens - u.PromptTokens
	}
	return u.Normalized()
}

// EmitWebSearchInProgress emits web_search.in_progress once per turn.
func (s *TurnState) EmitWebSearchInProgress(source WebSearchSource, emit Emit) error {
	if s.webSearchStarted || s.webSearchDone {
		return nil
	}
	s.webSearchStarted = true
	return s.emit(emit, Chunk{Type: ChunkWebSearchInProgress, WebSearch: &WebSearchResult{Source: source}})
}

// EmitWebSearch emits the turn's citations. It runs at most once per turn;
// later calls (vendors repeating citations on every chunk) are no-ops.
func (s *TurnState) EmitWebSearch(result WebSearchResult, emit Emit) error {
	if s.webSearchDone || len(result.Results) == 0 {
		return nil
	}
	if err := s.EmitWebSearchInProgress(result.Source, emit); err != nil {
		return err
	}
	s.webSearchDone = true
	return s.emit(emit, Chunk{Type: ChunkWebSearchComplete, WebSearch: &result})
}

// WebSearchDone reports whether citations were already emitted this turn.
func (s *TurnState) WebSearchDone() bool { return s.webSearchDone }

// EmitImage emits inline binary output.
func (s *TurnState) EmitImage(img Image, emit Emit) error {
	if len(img.Data) == 0 || s.completed {
		return nil
	}
	s.markToken()
	return s.emit(emit, Chunk{Type: ChunkImageComplete, Image: &img})
}

// Finish records the vendor's finish reason. Completion may still wait for
// a trailing usage chunk; see PendingFinish.
func (s *TurnState) Finish(reason string) {
	if reason != "" {
		s.stopReason = reason
	}
	s.pendingFinish = true
}

// PendingFinish reports whether a finish reason arrived without completing the turn.
func (s *TurnState) PendingFinish() bool { return s.pendingFinish && !s.completed }

// StopReason returns the last finish reason seen.
func (s *TurnState) StopReason() string { return s.stopReason }

// Complete ends the turn: it closes open channels, emits mcp_tool.created
// for the assembled calls and then llm_response.complete. It is guarded by
// a one-shot latch, so the explicit finish signal and the end-of-stream
// flush can both call it.
func (s *TurnState) Complete(emit Emit) error {
	if s.completed {
		return nil
	}
	if err := s.CloseThinking(emit); err != nil {
		return err
	}
	if err := s.CloseText(emit); err != nil {
		return err
	}
	s.completed = true

	if len(s.calls) > 0 {
		if err := s.emit(emit, Chunk{Type: ChunkToolCreated, ToolCalls: s.ToolCalls()}); err != nil {
			return err
		}
	}

	usage := s.Usage()
	metrics := s.Metrics()
	return s.emit(emit, Chunk{
		Type:       ChunkResponseComplete,
		Usage:      &usage,
		Metrics:    &metrics,
		StopReason: s.stopReason,
	})
}

// Completed reports whether the completion latch fired.
func (s *TurnState) Completed() bool { return s.completed }

// Metrics returns the turn's latency measurements so far.
func (s *TurnState) Metrics() Metrics {
	m := Metrics{
		CompletionMillis: s.now().Sub(s.started).Milliseconds(),
		ThinkingMillis:   s.thinkingTotal.Milliseconds(),
	}
	if !s.firstToken.IsZero() {
		m.FirstTokenMillis = s.firstToken.Sub(s.started).Milliseconds()
	}
	return m
}

// Transcript returns the closed thinking and text runs of the turn, in
// order, as assistant message blocks.
func (s *TurnState) Transcript() []*Block {
	return s.transcript
}

func stringPtr(s string) *string {
	return &s
}
