package gemini

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// Transformer normalizes Gemini's candidate/part stream. Raw chunks are
// *genai.GenerateContentResponse values, one per streamed response or a
// single whole response.
//
// Gemini streams repeat the finish reason and cumulative usage on several
// chunks, so the finish reason is only recorded and the turn completes at
// Flush, when the stream has ended.
type Transformer struct {
	logger *slog.Logger
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithLogger sets the logger used for ignored chunks.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transformer) { t.logger = l }
}

// NewTransformer creates a Gemini transformer.
func NewTransformer(opts ...Option) *Transformer {
	t := &Transformer{logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Provider returns ProviderGemini.
func (t *Transformer) Provider() llmstream.ProviderID {
	return llmstream.ProviderGemini
}

// Transform processes one *genai.GenerateContentResponse.
func (t *Transformer) Transform(raw llmstream.RawChunk, state *llmstream.TurnState, emit llmstream.Emit) error {
	resp, ok := raw.(*genai.GenerateContentResponse)
	if !ok || resp == nil {
		t.logger.Debug("ignoring raw chunk", "provider", llmstream.ProviderGemini.String(), "type", fmt.Sprintf("%T", raw))
		return nil
	}

	if len(resp.Candidates) == 0 && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return promptBlocked(resp.PromptFeedback)
	}

	if resp.UsageMetadata != nil {
		state.ObserveUsage(convertUsage(resp.UsageMetadata))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	candidate := resp.Candidates[0]

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if err := t.applyPart(part, state, emit); err != nil {
				return err
			}
		}
	}

	if err := emitGrounding(candidate.GroundingMetadata, state, emit); err != nil {
		return err
	}

	if candidate.FinishReason != "" && candidate.FinishReason != genai.FinishReasonUnspecified {
		state.Finish(mapFinishReason(candidate.FinishReason))
	}
	return nil
}

// Flush completes the turn. A plain stop that produced function calls is
// reported as tool_use, which Gemini itself never does.
func (t *Transformer) Flush(state *llmstream.TurnState, emit llmstream.Emit) error {
	if state.HasToolCalls() && state.StopReason() == "end_turn" {
		state.Finish("tool_use")
	}
	return state.Complete(emit)
}

func (t *Transformer) applyPart(part *genai.Part, state *llmstream.TurnState, emit llmstream.Emit) error {
	if part == nil {
		return nil
	}

	switch {
	case part.Thought:
		if err := state.AppendThinking(part.Text, emit); err != nil {
			return err
		}
		if len(part.ThoughtSignature) > 0 && state.ThinkingOpen() {
			state.SetThinkingSignature(base64.StdEncoding.EncodeToString(part.ThoughtSignature))
		}
		return nil

	case part.FunctionCall != nil:
		index := state.AddToolCall(part.FunctionCall.ID, part.FunctionCall.Name, t.marshalArgs(part.FunctionCall))
		// With thinking on, the signature rides on the call part instead of a thought
		if len(part.ThoughtSignature) > 0 {
			state.SetToolCallSignature(index, base64.StdEncoding.EncodeToString(part.ThoughtSignature))
		}
		return nil

	case part.InlineData != nil:
		return state.EmitImage(llmstream.Image{
			MimeType: part.InlineData.MIMEType,
			Data:     part.InlineData.Data,
		}, emit)

	case part.Text != "":
		return state.AppendText(part.Text, emit)
	}
	return nil
}

// marshalArgs encodes structured function-call arguments. Gemini never
// fragments them, so each call arrives complete.
func (t *Transformer) marshalArgs(call *genai.FunctionCall) string {
	if len(call.Args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(call.Args)
	if err != nil {
		// Left empty; the orchestrator treats empty arguments as {}
		t.logger.Warn("unencodable function call arguments", "tool", call.Name, "error", err)
		return ""
	}
	return string(data)
}

// emitGrounding turns grounding chunks into the turn's citations. Queries
// without chunks only mark the search as in progress.
func emitGrounding(meta *genai.GroundingMetadata, state *llmstream.TurnState, emit llmstream.Emit) error {
	if meta == nil || state.WebSearchDone() {
		return nil
	}

	var results []llmstream.Citation
	for i, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		index := i + 1
		results = append(results, llmstream.Citation{
			Type:        "grounding_chunk",
			URL:         chunk.Web.URI,
			Title:       chunk.Web.Title,
			ResultIndex: &index,
		})
	}

	if len(results) == 0 {
		if len(meta.WebSearchQueries) > 0 {
			return state.EmitWebSearchInProgress(llmstream.WebSearchSourceGemini, emit)
		}
		return nil
	}
	return state.EmitWebSearch(llmstream.WebSearchResult{
		Source:  llmstream.WebSearchSourceGemini,
		Results: results,
		Queries: meta.WebSearchQueries,
	}, emit)
}

// convertUsage maps Gemini's cumulative usage. Thought tokens are billed as
// output, so they count toward completion.
func convertUsage(m *genai.GenerateContentResponseUsageMetadata) llmstream.Usage {
	return llmstream.Usage{
		PromptTokens:     int(m.PromptTokenCount),
		CompletionTokens: int(m.CandidatesTokenCount + m.ThoughtsTokenCount),
		TotalTokens:      int(m.TotalTokenCount),
		ThoughtsTokens:   int(m.ThoughtsTokenCount),
	}
}

func mapFinishReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return "end_turn"
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	default:
		return strings.ToLower(string(reason))
	}
}

func promptBlocked(feedback *genai.GenerateContentResponsePromptFeedback) error {
	msg := "prompt blocked: " + string(feedback.BlockReason)
	if feedback.BlockReasonMessage != "" {
		msg += ": " + feedback.BlockReasonMessage
	}
	return &llmstream.ProviderError{
		Code:     llmstream.ErrorCodeInvalidRequest,
		Provider: llmstream.ProviderGemini.String(),
		Message:  msg,
		Err:      llmstream.ErrInvalidRequest,
	}
}
