package anthropic

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// Content block kinds registered per stream index.
const (
	kindText             = "text"
	kindThinking         = "thinking"
	kindRedactedThinking = "redacted_thinking"
	kindToolUse          = "tool_use"
	kindServerToolUse    = "server_tool_use"
	kindWebSearchResult  = "web_search_tool_result"
)

// Transformer normalizes Anthropic's typed event stream. It accepts
// anthropic.MessageStreamEventUnion values (streaming) and *anthropic.Message
// (whole responses); anything else is ignored.
type Transformer struct {
	logger *slog.Logger
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithLogger sets the logger used for ignored events.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transformer) { t.logger = l }
}

// NewTransformer creates an Anthropic transformer.
func NewTransformer(opts ...Option) *Transformer {
	t := &Transformer{logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Provider returns ProviderAnthropic.
func (t *Transformer) Provider() llmstream.ProviderID {
	return llmstream.ProviderAnthropic
}

// Transform processes one raw event or message.
func (t *Transformer) Transform(raw llmstream.RawChunk, state *llmstream.TurnState, emit llmstream.Emit) error {
	switch v := raw.(type) {
	case anthropic.MessageStreamEventUnion:
		return t.transformEvent(v, state, emit)
	case *anthropic.MessageStreamEventUnion:
		if v == nil {
			return nil
		}
		return t.transformEvent(*v, state, emit)
	case *anthropic.Message:
		if v == nil {
			return nil
		}
		return t.transformMessage(v, state, emit)
	default:
		t.logger.Debug("ignoring raw chunk", "provider", t.Provider().String(), "type", fmt.Sprintf("%T", raw))
		return nil
	}
}

// Flush completes the turn, releasing text citations that no search result
// block already reported.
func (t *Transformer) Flush(state *llmstream.TurnState, emit llmstream.Emit) error {
	if cites, _ := state.Value(citationsKey{}).([]llmstream.Citation); len(cites) > 0 {
		result := llmstream.WebSearchResult{Source: llmstream.WebSearchSourceAnthropic, Results: cites}
		if err := state.EmitWebSearch(result, emit); err != nil {
			return err
		}
	}
	return state.Complete(emit)
}

// transformEvent handles one streamed event:
//   - message_start: prompt tokens
//   - content_block_start: registers the block kind at its index
//   - content_block_delta: text, thinking, signature, tool input, citations
//   - content_block_stop: closes the block's channel
//   - message_delta: stop reason and output tokens
//   - message_stop: completes the turn
func (t *Transformer) transformEvent(event anthropic.MessageStreamEventUnion, state *llmstream.TurnState, emit llmstream.Emit) error {
	switch e := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		state.ObserveUsage(convertUsage(e.Message.Usage))
		return nil

	case anthropic.ContentBlockStartEvent:
		index := int(e.Index)
		kind := string(e.ContentBlock.Type)
		state.SetBlockKind(index, kind)

		switch kind {
		case kindToolUse:
			state.AddToolCallFragment(index, e.ContentBlock.ID, e.ContentBlock.Name, "")
		case kindServerToolUse:
			if e.ContentBlock.Name == "web_search" {
				return state.EmitWebSearchInProgress(llmstream.WebSearchSourceAnthropic, emit)
			}
		case kindWebSearchResult:
			return emitSearchResult(e.ContentBlock.RawJSON(), state, emit, t.logger)
		case kindText:
			return state.AppendText(e.ContentBlock.Text, emit)
		}
		return nil

	case anthropic.ContentBlockDeltaEvent:
		index := int(e.Index)
		switch e.Delta.Type {
		case "text_delta":
			return state.AppendText(e.Delta.Text, emit)
		case "thinking_delta":
			return state.AppendThinking(e.Delta.Thinking, emit)
		case "signature_delta":
			state.SetThinkingSignature(e.Delta.Signature)
		case "input_json_delta":
			kind, _ := state.BlockKind(index)
			switch kind {
			case kindToolUse:
				state.AddToolCallFragment(index, "", "", e.Delta.PartialJSON)
			case kindServerToolUse:
				appendServerInput(state, index, e.Delta.PartialJSON)
			}
		case "citations_delta":
			addCitation(state, llmstream.Citation{
				Type:      string(e.Delta.Citation.Type),
				URL:       e.Delta.Citation.URL,
				Title:     e.Delta.Citation.Title,
				CitedText: nonEmpty(e.Delta.Citation.CitedText),
			})
		}
		return nil

	case anthropic.ContentBlockStopEvent:
		kind, _ := state.BlockKind(int(e.Index))
		switch kind {
		case kindText:
			return state.CloseText(emit)
		case kindThinking:
			return state.CloseThinking(emit)
		case kindServerToolUse:
			sealServerInput(state, int(e.Index))
		}
		return nil

	case anthropic.MessageDeltaEvent:
		state.ObserveUsage(llmstream.Usage{CompletionTokens: int(e.Usage.OutputTokens)})
		state.Finish(string(e.Delta.StopReason))
		return nil

	case anthropic.MessageStopEvent:
		return t.Flush(state, emit)

	default:
		// ping and event types added after this SDK version
		return nil
	}
}

// transformMessage replays a whole message through the same state helpers.
func (t *Transformer) transformMessage(msg *anthropic.Message, state *llmstream.TurnState, emit llmstream.Emit) error {
	state.ObserveUsage(convertUsage(msg.Usage))

	for i, block := range msg.Content {
		state.SetBlockKind(i, block.Type)
		switch block.Type {
		case kindText:
			for _, cite := range block.Citations {
				addCitation(state, llmstream.Citation{
					Type:      cite.Type,
					URL:       cite.URL,
					Title:     cite.Title,
					CitedText: nonEmpty(cite.CitedText),
				})
			}
			if err := state.AppendText(block.Text, emit); err != nil {
				return err
			}
			if err := state.CloseText(emit); err != nil {
				return err
			}

		case kindThinking:
			if err := state.AppendThinking(block.Thinking, emit); err != nil {
				return err
			}
			state.SetThinkingSignature(block.Signature)
			if err := state.CloseThinking(emit); err != nil {
				return err
			}

		case kindToolUse:
			state.AddToolCall(block.ID, block.Name, string(block.Input))

		case kindServerToolUse:
			if block.Name == "web_search" {
				appendServerInput(state, i, string(block.Input))
				sealServerInput(state, i)
				if err := state.EmitWebSearchInProgress(llmstream.WebSearchSourceAnthropic, emit); err != nil {
					return err
				}
			}

		case kindWebSearchResult:
			if err := emitSearchResult(block.RawJSON(), state, emit, t.logger); err != nil {
				return err
			}
		}
	}

	state.Finish(string(msg.StopReason))
	return t.Flush(state, emit)
}

// convertUsage counts cached prompt tokens as prompt tokens; Anthropic
// reports them separately from input_tokens.
func convertUsage(u anthropic.Usage) llmstream.Usage {
	return llmstream.Usage{
		PromptTokens:     int(u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens),
		CompletionTokens: int(u.OutputTokens),
	}
}

type (
	citationsKey   struct{}
	serverInputKey struct{}
	queriesKey     struct{}
)

func addCitation(state *llmstream.TurnState, c llmstream.Citation) {
	if c.URL == "" && c.CitedText == nil {
		return
	}
	cites, _ := state.Value(citationsKey{}).([]llmstream.Citation)
	state.SetValue(citationsKey{}, append(cites, c))
}

func appendServerInput(state *llmstream.TurnState, index int, fragment string) {
	inputs, _ := state.Value(serverInputKey{}).(map[int]*strings.Builder)
	if inputs == nil {
		inputs = make(map[int]*strings.Builder)
		state.SetValue(serverInputKey{}, inputs)
	}
	b, ok := inputs[index]
	if !ok {
		b = &strings.Builder{}
		inputs[index] = b
	}
	b.WriteString(fragment)
}

// sealServerInput records the query of a finished web_search invocation.
func sealServerInput(state *llmstream.TurnState, index int) {
	inputs, _ := state.Value(serverInputKey{}).(map[int]*strings.Builder)
	b, ok := inputs[index]
	if !ok {
		return
	}
	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(b.String()), &input); err != nil || input.Query == "" {
		return
	}
	queries, _ := state.Value(queriesKey{}).([]string)
	state.SetValue(queriesKey{}, append(queries, input.Query))
}

// webSearchToolResult is the documented shape of a web_search_tool_result
// block. Content is a result array on success and an error object otherwise.
type webSearchToolResult struct {
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

type webSearchResultItem struct {
	Type             string `json:"type"`
	URL              string `json:"url"`
	Title            string `json:"title"`
	PageAge          string `json:"page_age,omitempty"`
	EncryptedContent string `json:"encrypted_content,omitempty"`
}

func emitSearchResult(raw string, state *llmstream.TurnState, emit llmstream.Emit, logger *slog.Logger) error {
	var block webSearchToolResult
	if err := json.Unmarshal([]byte(raw), &block); err != nil {
		logger.Debug("unreadable web_search_tool_result", "error", err)
		return nil
	}

	content := strings.TrimSpace(string(block.Content))
	if !strings.HasPrefix(content, "[") {
		var searchErr struct {
			ErrorCode string `json:"error_code"`
		}
		_ = json.Unmarshal(block.Content, &searchErr)
		logger.Debug("web search failed", "tool_use_id", block.ToolUseID, "error_code", searchErr.ErrorCode)
		return nil
	}

	var items []webSearchResultItem
	if err := json.Unmarshal(block.Content, &items); err != nil {
		logger.Debug("unreadable web search results", "error", err)
		return nil
	}

	result := llmstream.WebSearchResult{Source: llmstream.WebSearchSourceAnthropic}
	result.Queries, _ = state.Value(queriesKey{}).([]string)
	for i, item := range items {
		idx := i + 1
		cite := llmstream.Citation{
			Type:        "web_search_result",
			URL:         item.URL,
			Title:       item.Title,
			ResultIndex: &idx,
		}
		// encrypted_content is opaque; it is kept only so the block can be replayed
		if item.EncryptedContent != "" || item.PageAge != "" {
			cite.ProviderData, _ = json.Marshal(map[string]string{
				"encrypted_content": item.EncryptedContent,
				"page_age":          item.PageAge,
			})
		}
		result.Results = append(result.Results, cite)
	}
	return state.EmitWebSearch(result, emit)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
