package openai

import (
	"fmt"
	"log/slog"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// ResponsesTransformer normalizes the typed event stream of the OpenAI
// Responses API. Unlike chat completions, every event names what it
// carries, so no content-source selection is needed.
type ResponsesTransformer struct {
	logger *slog.Logger
}

// NewResponsesTransformer creates a Responses API transformer.
func NewResponsesTransformer(opts ...ChatOption) *ResponsesTransformer {
	cfg := &ChatTransformer{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	return &ResponsesTransformer{logger: cfg.logger}
}

// Provider returns ProviderOpenAIResponse.
func (t *ResponsesTransformer) Provider() llmstream.ProviderID {
	return llmstream.ProviderOpenAIResponse
}

type responseAnnotationsKey struct{}

// Transform processes one *ResponseEvent.
func (t *ResponsesTransformer) Transform(raw llmstream.RawChunk, state *llmstream.TurnState, emit llmstream.Emit) error {
	ev, ok := raw.(*ResponseEvent)
	if !ok || ev == nil {
		t.logger.Debug("ignoring raw chunk", "provider", t.Provider().String(), "type", fmt.Sprintf("%T", raw))
		return nil
	}

	switch ev.Type {
	case "response.reasoning_summary_text.delta", "response.reasoning_text.delta":
		return state.AppendThinking(ev.Delta, emit)

	case "response.reasoning_summary_part.done", "response.reasoning_text.done":
		return state.CloseThinking(emit)

	case "response.output_text.delta":
		return state.AppendText(ev.Delta, emit)

	case "response.output_text.done":
		if err := state.CloseText(emit); err != nil {
			return err
		}
		return emitResponseCitations(state, emit)

	case "response.output_text.annotation.added":
		if ev.Annotation != nil && ev.Annotation.Type == "url_citation" {
			collected, _ := state.Value(responseAnnotationsKey{}).([]ResponseAnnotation)
			state.SetValue(responseAnnotationsKey{}, append(collected, *ev.Annotation))
		}
		return nil

	case "response.web_search_call.in_progress", "response.web_search_call.searching":
		return state.EmitWebSearchInProgress(llmstream.WebSearchSourceOpenAIResponse, emit)

	case "response.output_item.added":
		if ev.Item != nil && ev.Item.Type == "function_call" {
			state.AddToolCallFragment(ev.OutputIndex, ev.Item.CallID, ev.Item.Name, ev.Item.Arguments)
		}
		return nil

	case "response.function_call_arguments.delta":
		state.AddToolCallFragment(ev.OutputIndex, "", "", ev.Delta)
		return nil

	case "response.function_call_arguments.done":
		state.SetToolCallArguments(ev.OutputIndex, ev.Arguments)
		return nil

	case "response.completed", "response.incomplete":
		if ev.Response != nil && ev.Response.Usage != nil {
			u := ev.Response.Usage
			state.ObserveUsage(llmstream.Usage{
				PromptTokens:     u.InputTokens,
				CompletionTokens: u.OutputTokens,
				TotalTokens:      u.TotalTokens,
				ThoughtsTokens:   u.OutputTokensDetails.ReasoningTokens,
			})
		}
		state.Finish(responseStopReason(ev.Response, state.HasToolCalls()))
		return t.Flush(state, emit)

	case "response.failed":
		apiErr := &APIError{Message: "response failed"}
		if ev.Response != nil && ev.Response.Error != nil {
			apiErr = ev.Response.Error
		}
		return streamError(t.Provider(), apiErr)

	case "error":
		return streamError(t.Provider(), &APIError{Code: []byte(`"` + ev.Code + `"`), Message: ev.Message})

	default:
		// response.created, content_part.*, output_item.done and future events
		return nil
	}
}

// Flush completes the turn, releasing any citations still collected.
func (t *ResponsesTransformer) Flush(state *llmstream.TurnState, emit llmstream.Emit) error {
	if err := emitResponseCitations(state, emit); err != nil {
		return err
	}
	return state.Complete(emit)
}

func emitResponseCitations(state *llmstream.TurnState, emit llmstream.Emit) error {
	collected, _ := state.Value(responseAnnotationsKey{}).([]ResponseAnnotation)
	if len(collected) == 0 || state.WebSearchDone() {
		return nil
	}
	result := llmstream.WebSearchResult{Source: llmstream.WebSearchSourceOpenAIResponse}
	for _, a := range collected {
		start, end := a.StartIndex, a.EndIndex
		result.Results = append(result.Results, llmstream.Citation{
			Type:       "url_citation",
			URL:        a.URL,
			Title:      a.Title,
			StartIndex: &start,
			EndIndex:   &end,
		})
	}
	return state.EmitWebSearch(result, emit)
}

func responseStopReason(resp *ResponseObject, hasToolCalls bool) string {
	switch {
	case hasToolCalls:
		return "tool_use"
	case resp != nil && resp.IncompleteDetails != nil && resp.IncompleteDetails.Reason == "max_output_tokens":
		return "max_tokens"
	case resp != nil && resp.IncompleteDetails != nil:
		return resp.IncompleteDetails.Reason
	default:
		return "end_turn"
	}
}

// ExpandResponse replays a whole (non-streamed) response as the events a
// stream would have carried, so one transformer serves both.
func ExpandResponse(resp *ResponseObject) []llmstream.RawChunk {
	var events []llmstream.RawChunk
	for i, item := range resp.Output {
		switch item.Type {
		case "reasoning":
			for _, part := range item.Summary {
				events = append(events, &ResponseEvent{Type: "response.reasoning_summary_text.delta", OutputIndex: i, Delta: part.Text})
			}
			events = append(events, &ResponseEvent{Type: "response.reasoning_summary_part.done", OutputIndex: i})
		case "message":
			for _, part := range item.Content {
				if part.Type != "output_text" {
					continue
				}
				events = append(events, &ResponseEvent{Type: "response.output_text.delta", OutputIndex: i, Delta: part.Text})
				for _, a := range part.Annotations {
					events = append(events, &ResponseEvent{Type: "response.output_text.annotation.added", OutputIndex: i, Annotation: &a})
				}
				events = append(events, &ResponseEvent{Type: "response.output_text.done", OutputIndex: i, Text: part.Text})
			}
		case "function_call":
			events = append(events, &ResponseEvent{Type: "response.output_item.added", OutputIndex: i, Item: &item})
		case "web_search_call":
			events = append(events, &ResponseEvent{Type: "response.web_search_call.in_progress", OutputIndex: i})
		}
	}
	return append(events, &ResponseEvent{Type: "response.completed", Response: resp})
}
