package lorem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"

	llmstream "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/providers/openai"
)

const (
	defaultWords = 20
	// Arguments are streamed in this many fragments, like real vendors do
	argFragments = 3
)

// Model is a mock vendor that answers with lorem ipsum text in the
// chat-completions wire shape. It needs no API key and is used for tests,
// examples and the demo CLI.
//
// Script per turn:
//   - a thinking run when thinking is enabled
//   - a text run
//   - when tools are offered and the conversation does not end with tool
//     results, one fragmented call to the first tool
//   - a trailing usage chunk
type Model struct {
	generator *loremgen.Lorem
	mu        sync.Mutex

	words     int
	delay     time.Duration
	delaySet  bool
	stream    bool
	toolName  string
	logger    *slog.Logger
	calls     int
}

// Option configures a Model.
type Option func(*Model)

// WithWords sets the number of words in each thinking and text run.
func WithWords(n int) Option {
	return func(m *Model) { m.words = n }
}

// WithWordDelay overrides the per-chunk delay derived from the model name.
func WithWordDelay(d time.Duration) Option {
	return func(m *Model) {
		m.delay = d
		m.delaySet = true
	}
}

// WithStreaming selects streamed chunks (default) or one whole message.
func WithStreaming(stream bool) Option {
	return func(m *Model) { m.stream = stream }
}

// WithToolName selects which offered tool gets called instead of the first.
func WithToolName(name string) Option {
	return func(m *Model) { m.toolName = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// NewModel creates a lorem model.
func NewModel(opts ...Option) *Model {
	m := &Model{
		generator: loremgen.New(),
		words:     defaultWords,
		stream:    true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Provider returns ProviderLorem.
func (m *Model) Provider() llmstream.ProviderID {
	return llmstream.ProviderLorem
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow", "lorem-cutoff"
func (m *Model) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// Open scripts one turn and returns its chunks.
func (m *Model) Open(ctx context.Context, conv *llmstream.Conversation) (llmstream.RawChunkSource, error) {
	if !m.SupportsModel(conv.Model) {
		return nil, &llmstream.ModelError{
			Model:    conv.Model,
			Provider: m.Provider().String(),
			Reason:   "model not supported by Lorem provider (must start with 'lorem-')",
			Err:      llmstream.ErrInvalidModel,
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	script := m.script(conv)
	m.logger.Debug("lorem turn scripted",
		"model", conv.Model,
		"thinking", script.thinking != "",
		"tool_call", script.call != nil,
		"finish", script.finish)

	if !m.stream {
		return llmstream.NewSliceSource(script.message(conv.Model)), nil
	}

	delay := getStreamDelay(conv.Model)
	if m.delaySet {
		delay = m.delay
	}
	return &Source{chunks: script.chunks(conv.Model), delay: delay}, nil
}

// turnScript is what one lorem turn says.
type turnScript struct {
	thinking string
	text     string
	call     *openai.ToolCall
	finish   string
	usage    openai.ChatUsage
}

func (m *Model) script(conv *llmstream.Conversation) turnScript {
	params := conv.Params
	if params == nil {
		params = &llmstream.RequestParams{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var s turnScript
	words := m.words
	if params.IsThinkingEnabled() {
		s.thinking = m.textWords(words)
	}

	s.finish = "stop"
	if isCutoffModel(conv.Model) {
		words = min(words, params.GetMaxTokens(words/2))
		s.finish = "length"
	}
	s.text = m.textWords(words)

	if s.finish == "stop" && !endsWithToolResults(conv.Messages) {
		if tool := m.pickTool(conv.Tools); tool != nil {
			m.calls++
			args, _ := json.Marshal(m.mockArguments(tool))
			s.call = &openai.ToolCall{
				ID:       fmt.Sprintf("call_lorem_%d", m.calls),
				Type:     "function",
				Function: openai.FunctionCall{Name: tool.Name, Arguments: string(args)},
			}
			s.finish = "tool_calls"
		}
	}

	completion := len(strings.Fields(s.thinking)) + len(strings.Fields(s.text))
	if s.call != nil {
		completion += len(s.call.Function.Arguments) / 4
	}
	prompt := estimateTokens(conv.Messages)
	s.usage = openai.ChatUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
	return s
}

// chunks renders the script as streamed chunks: one delta per word, the
// tool call as positional fragments, then finish and usage.
func (s turnScript) chunks(model string) []*openai.ChatChunk {
	var out []*openai.ChatChunk
	add := func(delta *openai.ChatDelta, finish *string, usage *openai.ChatUsage) {
		out = append(out, &openai.ChatChunk{
			ID:      "lorem",
			Object:  "chat.completion.chunk",
			Model:   model,
			Choices: []openai.ChatChoice{{Delta: delta, FinishReason: finish}},
			Usage:   usage,
		})
	}

	for _, w := range splitWords(s.thinking) {
		add(&openai.ChatDelta{ReasoningContent: &w}, nil, nil)
	}
	for _, w := range splitWords(s.text) {
		add(&openai.ChatDelta{Content: &w}, nil, nil)
	}
	if s.call != nil {
		index := 0
		for i, frag := range splitArguments(s.call.Function.Arguments, argFragments) {
			tc := openai.ToolCall{Index: &index, Function: openai.FunctionCall{Arguments: frag}}
			if i == 0 {
				tc.ID = s.call.ID
				tc.Type = "function"
				tc.Function.Name = s.call.Function.Name
			}
			add(&openai.ChatDelta{ToolCalls: []openai.ToolCall{tc}}, nil, nil)
		}
	}

	finish := s.finish
	add(&openai.ChatDelta{}, &finish, nil)

	// Usage arrives in a trailing chunk without choices
	usage := s.usage
	out = append(out, &openai.ChatChunk{ID: "lorem", Object: "chat.completion.chunk", Model: model, Usage: &usage})
	return out
}

// message renders the script as one whole chat.completion response.
func (s turnScript) message(model string) *openai.ChatChunk {
	msg := &openai.ChatDelta{Role: "assistant"}
	if s.thinking != "" {
		msg.ReasoningContent = &s.thinking
	}
	if s.text != "" {
		msg.Content = &s.text
	}
	if s.call != nil {
		msg.ToolCalls = []openai.ToolCall{*s.call}
	}
	finish := s.finish
	usage := s.usage
	return &openai.ChatChunk{
		ID:      "lorem",
		Object:  "chat.completion",
		Model:   model,
		Choices: []openai.ChatChoice{{Message: msg, FinishReason: &finish}},
		Usage:   &usage,
	}
}

func (m *Model) pickTool(tools []*llmstream.ToolDefinition) *llmstream.ToolDefinition {
	for _, tool := range tools {
		if m.toolName == "" || tool.Name == m.toolName {
			return tool
		}
	}
	return nil
}

// mockArguments fills the tool's declared properties with lorem values.
func (m *Model) mockArguments(tool *llmstream.ToolDefinition) map[string]interface{} {
	args := map[string]interface{}{}
	props, _ := tool.InputSchema["properties"].(map[string]interface{})

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, _ := props[name].(map[string]interface{})
		switch prop["type"] {
		case "integer", "number":
			args[name] = 3
		case "boolean":
			args[name] = true
		case "array":
			args[name] = []string{m.generator.Word(3, 8)}
		case "object":
			args[name] = map[string]interface{}{}
		default:
			args[name] = m.generator.Word(3, 8)
		}
	}
	return args
}

// textWords generates lorem ipsum text of exactly n words.
func (m *Model) textWords(n int) string {
	if n <= 0 {
		return ""
	}
	var words []string
	for len(words) < n {
		words = append(words, strings.Fields(m.generator.Sentence(5, 15))...)
	}
	return strings.Join(words[:n], " ")
}

// splitWords splits text into word deltas that concatenate back to text.
func splitWords(text string) []string {
	fields := strings.Fields(text)
	for i := 1; i < len(fields); i++ {
		fields[i] = " " + fields[i]
	}
	return fields
}

// splitArguments cuts a JSON string into n roughly equal fragments.
func splitArguments(args string, n int) []string {
	if len(args) < n {
		return []string{args}
	}
	size := (len(args) + n - 1) / n
	var out []string
	for start := 0; start < len(args); start += size {
		out = append(out, args[start:min(start+size, len(args))])
	}
	return out
}

func endsWithToolResults(messages []llmstream.Message) bool {
	if len(messages) == 0 {
		return false
	}
	for _, b := range messages[len(messages)-1].Blocks {
		if b.IsToolResultBlock() {
			return true
		}
	}
	return false
}

// getStreamDelay returns the delay between chunks based on the model name.
// - lorem-slow: 2 words/second (500ms per word)
// - lorem-fast: 30 words/second (33ms per word)
// - lorem-instant: no delay
// - default: 10 words/second
func getStreamDelay(model string) time.Duration {
	switch {
	case strings.Contains(model, "instant"):
		return 0
	case strings.Contains(model, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 33 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

// isCutoffModel returns true if the model should simulate max_tokens cutoff.
func isCutoffModel(model string) bool {
	return strings.Contains(model, "cutoff") || strings.Contains(model, "small")
}

// estimateTokens estimates the token count for a list of messages.
// Uses word count as a rough approximation.
func estimateTokens(messages []llmstream.Message) int {
	totalWords := 0
	for _, msg := range messages {
		for _, block := range msg.Blocks {
			totalWords += len(strings.Fields(block.Text()))
		}
	}
	return totalWords
}

// Source yields scripted chunks with a fixed delay before each one.
type Source struct {
	chunks []*openai.ChatChunk
	delay  time.Duration
	pos    int

	mu     sync.Mutex
	closed bool
}

// Next waits for the chunk delay and returns the next chunk.
func (s *Source) Next(ctx context.Context) (llmstream.RawChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	done := s.closed || s.pos >= len(s.chunks)
	s.mu.Unlock()
	if done {
		return nil, io.EOF
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

// Close stops the source.
func (s *Source) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
