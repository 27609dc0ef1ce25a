package openai

import (
	"fmt"
	"log/slog"
	"strings"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// ChatTransformer normalizes chat-completions chunks. One transformer type
// serves every OpenAI-compatible vendor; the vendor id it is built for
// decides which citation field is read, because field names such as
// "citations" mean different things on different vendors.
type ChatTransformer struct {
	provider  llmstream.ProviderID
	thinkTags bool
	logger    *slog.Logger
}

// ChatOption configures a ChatTransformer.
type ChatOption func(*ChatTransformer)

// WithThinkTags splits <think>…</think> runs out of content into the
// thinking channel, for models that inline their reasoning.
func WithThinkTags() ChatOption {
	return func(t *ChatTransformer) { t.thinkTags = true }
}

// WithLogger sets the logger used for ignored payloads.
func WithLogger(logger *slog.Logger) ChatOption {
	return func(t *ChatTransformer) { t.logger = logger }
}

// NewChatTransformer creates a transformer for an OpenAI-compatible vendor.
func NewChatTransformer(provider llmstream.ProviderID, opts ...ChatOption) *ChatTransformer {
	t := &ChatTransformer{provider: provider, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Provider returns the vendor this transformer reads.
func (t *ChatTransformer) Provider() llmstream.ProviderID { return t.provider }

// Transform processes one *ChatChunk.
func (t *ChatTransformer) Transform(raw llmstream.RawChunk, state *llmstream.TurnState, emit llmstream.Emit) error {
	chunk, ok := raw.(*ChatChunk)
	if !ok || chunk == nil {
		t.logger.Debug("ignoring raw chunk", "provider", t.provider.String(), "type", fmt.Sprintf("%T", raw))
		return nil
	}
	if chunk.Error != nil {
		return streamError(t.provider, chunk.Error)
	}

	if chunk.Usage != nil {
		state.ObserveUsage(convertUsage(chunk.Usage))
	}

	var finish string
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		src := contentSource(choice)
		if src != nil {
			if err := t.applyContent(src, state, emit); err != nil {
				return err
			}
		}
		if err := t.extractCitations(chunk, src, state, emit); err != nil {
			return err
		}
		if choice.FinishReason != nil {
			finish = *choice.FinishReason
		}
	} else if err := t.extractCitations(chunk, nil, state, emit); err != nil {
		return err
	}

	switch {
	case finish != "":
		state.Finish(mapFinishReason(finish))
		// Vendors that send usage in a trailing chunk (stream_options.include_usage)
		// complete there or at Flush.
		if chunk.Usage != nil {
			return t.complete(state, emit)
		}
	case chunk.Usage != nil && state.PendingFinish():
		return t.complete(state, emit)
	}
	return nil
}

// Flush completes the turn if the finish signal did not.
func (t *ChatTransformer) Flush(state *llmstream.TurnState, emit llmstream.Emit) error {
	return t.complete(state, emit)
}

func (t *ChatTransformer) complete(state *llmstream.TurnState, emit llmstream.Emit) error {
	if t.thinkTags {
		if err := flushThinkTags(state, emit); err != nil {
			return err
		}
	}
	return state.Complete(emit)
}

// contentSource picks the delta unless it carries nothing, in which case the
// whole message is used. Non-streaming responses and some vendors' empty
// deltas land on the message.
func contentSource(choice ChatChoice) *ChatDelta {
	if choice.Delta != nil && !choice.Delta.empty() {
		return choice.Delta
	}
	if choice.Message != nil && !choice.Message.empty() {
		return choice.Message
	}
	if choice.Delta != nil {
		return choice.Delta
	}
	return choice.Message
}

func (d *ChatDelta) empty() bool {
	return len(d.ToolCalls) == 0 && d.text() == "" && d.reasoning() == "" && len(d.Annotations) == 0
}

func (d *ChatDelta) text() string {
	if d.Content == nil {
		return ""
	}
	return *d.Content
}

// reasoning returns the chunk's reasoning text. OpenRouter sends both a
// placeholder "reasoning" string and the real reasoning_details, so the
// structured form wins.
func (d *ChatDelta) reasoning() string {
	if text := reasoningDetailsText(d.ReasoningDetails); text != "" {
		return text
	}
	if d.ReasoningContent != nil && *d.ReasoningContent != "" {
		return *d.ReasoningContent
	}
	if d.Reasoning != nil {
		return *d.Reasoning
	}
	return ""
}

// reasoningDetailsText joins the readable entries of reasoning_details.
// Encrypted entries are skipped.
func reasoningDetailsText(details []ReasoningDetail) string {
	var text strings.Builder
	for _, detail := range details {
		switch detail.Type {
		case "reasoning.text":
			if detail.Text != nil {
				text.WriteString(*detail.Text)
			}
		case "reasoning.summary":
			if detail.Summary != nil {
				text.WriteString(*detail.Summary)
			}
		}
	}
	return text.String()
}

// applyContent runs the channel state machine for one content source: a
// field absent from the chunk closes its channel, so alternating
// reasoning and text produce separate runs.
func (t *ChatTransformer) applyContent(src *ChatDelta, state *llmstream.TurnState, emit llmstream.Emit) error {
	reasoning := src.reasoning()
	text := src.text()

	// Held-back tag characters belong to the run this chunk is about to close
	if t.thinkTags && text == "" {
		if err := flushThinkTags(state, emit); err != nil {
			return err
		}
	}

	if reasoning == "" && !(t.thinkTags && insideThinkTag(state)) {
		if err := state.CloseThinking(emit); err != nil {
			return err
		}
	}
	if text == "" {
		if err := state.CloseText(emit); err != nil {
			return err
		}
	}

	if err := state.AppendThinking(reasoning, emit); err != nil {
		return err
	}
	if t.thinkTags {
		if err := appendWithThinkTags(text, state, emit); err != nil {
			return err
		}
	} else if err := state.AppendText(text, emit); err != nil {
		return err
	}

	for i, tc := range src.ToolCalls {
		index := i
		if tc.Index != nil {
			index = *tc.Index
		}
		state.AddToolCallFragment(index, tc.ID, tc.Function.Name, tc.Function.Arguments)
	}
	return nil
}

// extractCitations emits the turn's web search results from the field the
// vendor uses. It runs once per turn.
func (t *ChatTransformer) extractCitations(chunk *ChatChunk, src *ChatDelta, state *llmstream.TurnState, emit llmstream.Emit) error {
	if state.WebSearchDone() {
		return nil
	}

	var result llmstream.WebSearchResult
	switch t.provider {
	case llmstream.ProviderOpenAI:
		if src != nil {
			result = annotationsResult(llmstream.WebSearchSourceOpenAI, src.Annotations)
		}
	case llmstream.ProviderOpenRouter:
		if src != nil {
			result = annotationsResult(llmstream.WebSearchSourceOpenRouter, src.Annotations)
		}
		if len(result.Results) == 0 {
			result = urlListResult(llmstream.WebSearchSourceOpenRouter, chunk.Citations)
		}
	case llmstream.ProviderGrok:
		result = urlListResult(llmstream.WebSearchSourceGrok, chunk.Citations)
	case llmstream.ProviderPerplexity:
		result = perplexityResult(chunk)
	case llmstream.ProviderZhipu:
		result = zhipuResult(chunk.WebSearch)
	case llmstream.ProviderQwen:
		result = searchInfoResult(llmstream.WebSearchSourceQwen, chunk.SearchInfo)
	case llmstream.ProviderHunyuan:
		result = searchInfoResult(llmstream.WebSearchSourceHunyuan, chunk.SearchInfo)
	default:
		return nil
	}
	return state.EmitWebSearch(result, emit)
}

func annotationsResult(source llmstream.WebSearchSource, annotations []Annotation) llmstream.WebSearchResult {
	result := llmstream.WebSearchResult{Source: source}
	for _, a := range annotations {
		if a.URLCitation == nil {
			continue
		}
		start, end := a.URLCitation.StartIndex, a.URLCitation.EndIndex
		c := llmstream.Citation{
			Type:       "url_citation",
			URL:        a.URLCitation.URL,
			StartIndex: &start,
			EndIndex:   &end,
			CitedText:  a.URLCitation.Content,
		}
		if a.URLCitation.Title != nil {
			c.Title = *a.URLCitation.Title
		}
		result.Results = append(result.Results, c)
	}
	return result
}

func urlListResult(source llmstream.WebSearchSource, urls []string) llmstream.WebSearchResult {
	result := llmstream.WebSearchResult{Source: source}
	for i, url := range urls {
		n := i + 1
		result.Results = append(result.Results, llmstream.Citation{Type: "url", URL: url, ResultIndex: &n})
	}
	return result
}

func perplexityResult(chunk *ChatChunk) llmstream.WebSearchResult {
	if len(chunk.SearchResults) == 0 {
		return urlListResult(llmstream.WebSearchSourcePerplexity, chunk.Citations)
	}
	result := llmstream.WebSearchResult{Source: llmstream.WebSearchSourcePerplexity}
	for i, r := range chunk.SearchResults {
		n := i + 1
		result.Results = append(result.Results, llmstream.Citation{Type: "search_result", URL: r.URL, Title: r.Title, ResultIndex: &n})
	}
	return result
}

func zhipuResult(results []ZhipuSearchResult) llmstream.WebSearchResult {
	result := llmstream.WebSearchResult{Source: llmstream.WebSearchSourceZhipu}
	for i, r := range results {
		n := i + 1
		c := llmstream.Citation{Type: "search_result", URL: r.Link, Title: r.Title, ResultIndex: &n}
		if r.Content != "" {
			snippet := r.Content
			c.Snippet = &snippet
		}
		if r.Media != "" || r.Icon != "" || r.Refer != "" {
			c.ProviderData = marshalProviderData(map[string]string{"media": r.Media, "icon": r.Icon, "refer": r.Refer})
		}
		result.Results = append(result.Results, c)
	}
	return result
}

func searchInfoResult(source llmstream.WebSearchSource, info *SearchInfo) llmstream.WebSearchResult {
	result := llmstream.WebSearchResult{Source: source}
	if info == nil {
		return result
	}
	for _, r := range info.SearchResults {
		n := r.Index
		c := llmstream.Citation{Type: "search_result", URL: r.URL, Title: r.Title, ResultIndex: &n}
		if r.SiteName != "" || r.Icon != "" {
			c.ProviderData = marshalProviderData(map[string]string{"site_name": r.SiteName, "icon": r.Icon})
		}
		result.Results = append(result.Results, c)
	}
	return result
}

func convertUsage(u *ChatUsage) llmstream.Usage {
	out := llmstream.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.CompletionTokensDetails != nil {
		out.ThoughtsTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return out
}

// mapFinishReason maps an OpenAI finish_reason to the library stop reason.
func mapFinishReason(finishReason string) string {
	switch finishReason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls", "function_call":
		return "tool_use"
	default:
		return finishReason
	}
}
