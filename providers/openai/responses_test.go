package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmstream "github.com/haowjy/meridian-stream-go"
)

func runEvents(t *testing.T, tr llmstream.ChunkTransformer, payloads ...string) (*recorder, error) {
	t.Helper()
	rec := &recorder{}
	state := llmstream.NewTurnState(tr.Provider())
	for _, p := range payloads {
		raw, err := DecodeResponseEvent([]byte(p))
		require.NoError(t, err)
		if err := tr.Transform(raw, state, rec.emit); err != nil {
			return rec, err
		}
	}
	return rec, tr.Flush(state, rec.emit)
}

func TestResponsesTransformer_TextReasoningAndCitations(t *testing.T) {
	rec, err := runEvents(t, NewResponsesTransformer(),
		`{"type":"response.created","response":{"id":"resp_1","status":"in_progress"}}`,
		`{"type":"response.reasoning_summary_text.delta","delta":"Searching "}`,
		`{"type":"response.reasoning_summary_text.delta","delta":"first."}`,
		`{"type":"response.reasoning_summary_part.done"}`,
		`{"type":"response.web_search_call.in_progress","output_index":1}`,
		`{"type":"response.output_text.delta","delta":"Paris is "}`,
		`{"type":"response.output_text.annotation.added","annotation":{"type":"url_citation","url":"https://p.example","title":"P","start_index":0,"end_index":5}}`,
		`{"type":"response.output_text.delta","delta":"sunny."}`,
		`{"type":"response.output_text.done","text":"Paris is sunny."}`,
		`{"type":"response.completed","response":{"id":"resp_1","status":"completed","usage":{"input_tokens":20,"output_tokens":9,"total_tokens":29,"output_tokens_details":{"reasoning_tokens":4}}}}`,
	)
	require.NoError(t, err)

	assert.Equal(t, []llmstream.ChunkType{
		llmstream.ChunkThinkingStart, llmstream.ChunkThinkingDelta, llmstream.ChunkThinkingDelta, llmstream.ChunkThinkingComplete,
		llmstream.ChunkWebSearchInProgress,
		llmstream.ChunkTextStart, llmstream.ChunkTextDelta, llmstream.ChunkTextDelta, llmstream.ChunkTextComplete,
		llmstream.ChunkWebSearchComplete,
		llmstream.ChunkResponseComplete,
	}, rec.types())

	ws := rec.ofType(llmstream.ChunkWebSearchComplete)[0].WebSearch
	assert.Equal(t, llmstream.WebSearchSourceOpenAIResponse, ws.Source)
	assert.Equal(t, "https://p.example", ws.Results[0].URL)

	done := rec.ofType(llmstream.ChunkResponseComplete)[0]
	assert.Equal(t, llmstream.Usage{PromptTokens: 20, CompletionTokens: 9, TotalTokens: 29, ThoughtsTokens: 4}, *done.Usage)
	assert.Equal(t, "end_turn", done.StopReason)
}

func TestResponsesTransformer_FunctionCall(t *testing.T) {
	rec, err := runEvents(t, NewResponsesTransformer(),
		`{"type":"response.output_item.added","output_index":0,"item":{"id":"fc_1","type":"function_call","call_id":"call_1","name":"lookup","arguments":""}}`,
		`{"type":"response.function_call_arguments.delta","output_index":0,"delta":"{\"q\":"}`,
		`{"type":"response.function_call_arguments.delta","output_index":0,"delta":"\"go\"}"}`,
		`{"type":"response.function_call_arguments.done","output_index":0,"arguments":"{\"q\":\"go\"}"}`,
		`{"type":"response.completed","response":{"status":"completed"}}`,
	)
	require.NoError(t, err)

	created := rec.ofType(llmstream.ChunkToolCreated)
	require.Len(t, created, 1)
	assert.Equal(t, llmstream.ToolCall{Index: 0, ID: "call_1", Name: "lookup", Arguments: `{"q":"go"}`}, created[0].ToolCalls[0])
	assert.Equal(t, "tool_use", rec.ofType(llmstream.ChunkResponseComplete)[0].StopReason)
}

func TestResponsesTransformer_Failure(t *testing.T) {
	_, err := runEvents(t, NewResponsesTransformer(),
		`{"type":"response.output_text.delta","delta":"par"}`,
		`{"type":"response.failed","response":{"status":"failed","error":{"code":"server_error","message":"boom"}}}`,
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, llmstream.ErrProviderUnavailable)
	assert.True(t, llmstream.IsRetryable(err))
}

func TestExpandResponse(t *testing.T) {
	resp := &ResponseObject{
		Status: "completed",
		Output: []ResponseItem{
			{Type: "reasoning", Summary: []ResponseContent{{Type: "summary_text", Text: "hmm"}}},
			{Type: "message", Content: []ResponseContent{{Type: "output_text", Text: "hello"}}},
		},
	}
	tr := NewResponsesTransformer()
	rec := &recorder{}
	state := llmstream.NewTurnState(tr.Provider())
	for _, ev := range ExpandResponse(resp) {
		require.NoError(t, tr.Transform(ev, state, rec.emit))
	}
	require.NoError(t, tr.Flush(state, rec.emit))

	assert.Equal(t, "hmm", rec.ofType(llmstream.ChunkThinkingComplete)[0].Text)
	assert.Equal(t, "hello", rec.ofType(llmstream.ChunkTextComplete)[0].Text)
	assert.Len(t, rec.ofType(llmstream.ChunkResponseComplete), 1)
}

func TestCompatTransformer_ResolvesModeOnce(t *testing.T) {
	direct := NewCompatTransformer("o3-pro-2025-06-10")
	assert.Equal(t, CompatDirect, direct.Mode())
	assert.Equal(t, llmstream.ProviderOpenAIResponse, direct.Provider())

	delegating := NewCompatTransformer("gpt-4o")
	assert.Equal(t, CompatDelegating, delegating.Mode())
	assert.Equal(t, llmstream.ProviderOpenAI, delegating.Provider())

	rec := run(t, delegating, `{"choices":[{"delta":{"content":"hi"},"finish_reason":"stop"}]}`)
	assert.Equal(t, "hi", rec.ofType(llmstream.ChunkTextComplete)[0].Text)
}

func TestUsesResponsesAPI(t *testing.T) {
	assert.True(t, UsesResponsesAPI("codex-mini-latest"))
	assert.True(t, UsesResponsesAPI("openai/o1-pro"))
	assert.False(t, UsesResponsesAPI("gpt-4.1"))
	assert.False(t, UsesResponsesAPI("o4-mini"))
}
