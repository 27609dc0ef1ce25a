package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	llmstream "github.com/haowjy/meridian-stream-go"
)

func mustEvent(t *testing.T, raw string) anthropic.MessageStreamEventUnion {
	t.Helper()
	var ev anthropic.MessageStreamEventUnion
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal event %s: %v", raw, err)
	}
	return ev
}

// runStream feeds events through a fresh transformer and returns every chunk.
func runStream(t *testing.T, events ...string) ([]llmstream.Chunk, *llmstream.TurnState) {
	t.Helper()
	tr := NewTransformer()
	state := llmstream.NewTurnState(tr.Provider())
	var chunks []llmstream.Chunk
	emit := func(c llmstream.Chunk) error {
		chunks = append(chunks, c)
		return nil
	}
	for _, raw := range events {
		if err := tr.Transform(mustEvent(t, raw), state, emit); err != nil {
			t.Fatalf("Transform() error = %v", err)
		}
	}
	if err := tr.Flush(state, emit); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	return chunks, state
}

func chunkTypes(chunks []llmstream.Chunk) []llmstream.ChunkType {
	out := make([]llmstream.ChunkType, len(chunks))
	for i, c := range chunks {
		out[i] = c.Type
	}
	return out
}

func findChunk(chunks []llmstream.Chunk, typ llmstream.ChunkType) *llmstream.Chunk {
	for i := range chunks {
		if chunks[i].Type == typ {
			return &chunks[i]
		}
	}
	return nil
}

func TestTransformer_ThinkingTextAndToolUse(t *testing.T) {
	chunks, state := runStream(t,
		`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[],"usage":{"input_tokens":120,"cache_read_input_tokens":30,"output_tokens":1}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":"","signature":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"The user wants "}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"the weather."}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"EqQB"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Let me "}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"check."}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_01","name":"get_weather","input":{}}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"{\"city\": "}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"\"Paris\"}"}}`,
		`{"type":"content_block_stop","index":2}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":42}}`,
		`{"type":"message_stop"}`,
	)

	want := []llmstream.ChunkType{
		llmstream.ChunkThinkingStart, llmstream.ChunkThinkingDelta, llmstream.ChunkThinkingDelta, llmstream.ChunkThinkingComplete,
		llmstream.ChunkTextStart, llmstream.ChunkTextDelta, llmstream.ChunkTextDelta, llmstream.ChunkTextComplete,
		llmstream.ChunkToolCreated,
		llmstream.ChunkResponseComplete,
	}
	if got := chunkTypes(chunks); !reflect.DeepEqual(got, want) {
		t.Fatalf("chunk types = %v, want %v", got, want)
	}

	if got := findChunk(chunks, llmstream.ChunkThinkingComplete).Text; got != "The user wants the weather." {
		t.Errorf("thinking text = %q", got)
	}
	if got := findChunk(chunks, llmstream.ChunkTextComplete).Text; got != "Let me check." {
		t.Errorf("text = %q", got)
	}

	calls := findChunk(chunks, llmstream.ChunkToolCreated).ToolCalls
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if calls[0].ID != "toolu_01" || calls[0].Name != "get_weather" || calls[0].Arguments != `{"city": "Paris"}` {
		t.Errorf("tool call = %+v", calls[0])
	}

	done := findChunk(chunks, llmstream.ChunkResponseComplete)
	if done.StopReason != "tool_use" {
		t.Errorf("stop reason = %q, want tool_use", done.StopReason)
	}
	wantUsage := llmstream.Usage{PromptTokens: 150, CompletionTokens: 42, TotalTokens: 192}
	if *done.Usage != wantUsage {
		t.Errorf("usage = %+v, want %+v", *done.Usage, wantUsage)
	}

	// The signed thinking run must survive into the tool-round transcript
	transcript := state.Transcript()
	if len(transcript) != 2 {
		t.Fatalf("expected 2 transcript blocks, got %d", len(transcript))
	}
	if sig, _ := transcript[0].Content["signature"].(string); sig != "EqQB" {
		t.Errorf("thinking signature = %q, want EqQB", sig)
	}
}

func TestTransformer_CompletesOnce(t *testing.T) {
	chunks, _ := runStream(t,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":1}}`,
		`{"type":"message_stop"}`,
		`{"type":"message_stop"}`,
	)

	count := 0
	for _, c := range chunks {
		if c.Type == llmstream.ChunkResponseComplete {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly 1 completion, got %d", count)
	}
}

func TestTransformer_WebSearch(t *testing.T) {
	chunks, _ := runStream(t,
		`{"type":"content_block_start","index":0,"content_block":{"type":"server_tool_use","id":"srvtoolu_1","name":"web_search","input":{}}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"query\": \"paris weather\"}"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"web_search_tool_result","tool_use_id":"srvtoolu_1","content":[{"type":"web_search_result","url":"https://weather.example/paris","title":"Paris forecast","encrypted_content":"Eq8B","page_age":"1 day ago"},{"type":"web_search_result","url":"https://news.example","title":"News","encrypted_content":"Eq9C"}]}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"content_block_start","index":2,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"citations_delta","citation":{"type":"web_search_result_location","url":"https://weather.example/paris","title":"Paris forecast","cited_text":"Sunny","encrypted_index":"Eo8"}}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"text_delta","text":"It is sunny."}}`,
		`{"type":"content_block_stop","index":2}`,
		`{"type":"message_stop"}`,
	)

	want := []llmstream.ChunkType{
		llmstream.ChunkWebSearchInProgress,
		llmstream.ChunkWebSearchComplete,
		llmstream.ChunkTextStart, llmstream.ChunkTextDelta, llmstream.ChunkTextComplete,
		llmstream.ChunkResponseComplete,
	}
	if got := chunkTypes(chunks); !reflect.DeepEqual(got, want) {
		t.Fatalf("chunk types = %v, want %v", got, want)
	}

	ws := findChunk(chunks, llmstream.ChunkWebSearchComplete).WebSearch
	if ws.Source != llmstream.WebSearchSourceAnthropic {
		t.Errorf("source = %s, want ANTHROPIC", ws.Source)
	}
	if !reflect.DeepEqual(ws.Queries, []string{"paris weather"}) {
		t.Errorf("queries = %v", ws.Queries)
	}
	if len(ws.Results) != 2 || ws.Results[0].URL != "https://weather.example/paris" || *ws.Results[1].ResultIndex != 2 {
		t.Errorf("results = %+v", ws.Results)
	}
	if !strings.Contains(string(ws.Results[0].ProviderData), "Eq8B") {
		t.Errorf("provider data lost encrypted content: %s", ws.Results[0].ProviderData)
	}
}

func TestTransformer_TextCitationsWithoutSearchBlock(t *testing.T) {
	chunks, _ := runStream(t,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"citations_delta","citation":{"type":"web_search_result_location","url":"https://a.example","title":"A","cited_text":"quote","encrypted_index":"x"}}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Quoted."}}`,
		`{"type":"content_block_stop","index":0}`,
	)

	ws := findChunk(chunks, llmstream.ChunkWebSearchComplete)
	if ws == nil {
		t.Fatal("expected citations to be flushed as web_search.complete")
	}
	if len(ws.WebSearch.Results) != 1 || *ws.WebSearch.Results[0].CitedText != "quote" {
		t.Errorf("results = %+v", ws.WebSearch.Results)
	}
}

func TestTransformer_RedactedThinkingIgnored(t *testing.T) {
	chunks, _ := runStream(t,
		`{"type":"content_block_start","index":0,"content_block":{"type":"redacted_thinking","data":"EmwKAhgB"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"ok"}}`,
		`{"type":"content_block_stop","index":1}`,
	)
	if findChunk(chunks, llmstream.ChunkThinkingStart) != nil {
		t.Error("redacted thinking must not open the thinking channel")
	}
	if findChunk(chunks, llmstream.ChunkTextComplete).Text != "ok" {
		t.Error("text after redacted thinking lost")
	}
}

func TestTransformer_WholeMessage(t *testing.T) {
	var msg anthropic.Message
	raw := `{"id":"msg_2","type":"message","role":"assistant","model":"claude-haiku-4-5","stop_reason":"tool_use",
		"content":[
			{"type":"thinking","thinking":"Need a lookup.","signature":"sig"},
			{"type":"text","text":"Looking it up."},
			{"type":"tool_use","id":"toolu_9","name":"lookup","input":{"q":"go"}}
		],
		"usage":{"input_tokens":10,"output_tokens":20}}`
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}

	tr := NewTransformer()
	state := llmstream.NewTurnState(tr.Provider())
	var chunks []llmstream.Chunk
	emit := func(c llmstream.Chunk) error {
		chunks = append(chunks, c)
		return nil
	}
	if err := tr.Transform(&msg, state, emit); err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if err := tr.Flush(state, emit); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if got := findChunk(chunks, llmstream.ChunkThinkingComplete).Text; got != "Need a lookup." {
		t.Errorf("thinking = %q", got)
	}
	calls := findChunk(chunks, llmstream.ChunkToolCreated).ToolCalls
	if len(calls) != 1 || calls[0].Arguments != `{"q":"go"}` {
		t.Errorf("tool calls = %+v", calls)
	}
	done := findChunk(chunks, llmstream.ChunkResponseComplete)
	if done.Usage.TotalTokens != 30 || done.StopReason != "tool_use" {
		t.Errorf("completion = %+v / %q", *done.Usage, done.StopReason)
	}
}

func TestTransformer_IgnoresForeignChunks(t *testing.T) {
	tr := NewTransformer()
	state := llmstream.NewTurnState(tr.Provider())
	emit := func(c llmstream.Chunk) error {
		t.Fatalf("unexpected chunk %v", c.Type)
		return nil
	}
	if err := tr.Transform("not an event", state, emit); err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
}

type fakeStream struct {
	events []anthropic.MessageStreamEventUnion
	pos    int
	err    error
	closed int
}

func (f *fakeStream) Next() bool {
	if f.pos >= len(f.events) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeStream) Current() anthropic.MessageStreamEventUnion { return f.events[f.pos-1] }
func (f *fakeStream) Err() error                                 { return f.err }
func (f *fakeStream) Close() error                               { f.closed++; return nil }

func TestSource(t *testing.T) {
	fs := &fakeStream{events: []anthropic.MessageStreamEventUnion{mustEvent(t, `{"type":"message_stop"}`)}}
	src := &Source{stream: fs, model: "claude-haiku-4-5"}

	raw, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if raw.(anthropic.MessageStreamEventUnion).Type != "message_stop" {
		t.Errorf("unexpected event %+v", raw)
	}
	if _, err := src.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}

	src.Close()
	src.Close()
	if fs.closed != 1 {
		t.Errorf("Close called %d times on the stream, want 1", fs.closed)
	}
}

func TestSource_StreamError(t *testing.T) {
	fs := &fakeStream{err: errors.New("received error while streaming: overloaded_error")}
	src := &Source{stream: fs}

	_, err := src.Next(context.Background())
	if !errors.Is(err, llmstream.ErrProviderUnavailable) {
		t.Fatalf("Next() error = %v, want ErrProviderUnavailable", err)
	}
	if !llmstream.IsRetryable(err) {
		t.Error("overloaded stream error should be retryable")
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		status    int
		want      error
		retryable bool
	}{
		{http.StatusUnauthorized, llmstream.ErrInvalidAPIKey, false},
		{http.StatusTooManyRequests, llmstream.ErrRateLimited, true},
		{http.StatusNotFound, llmstream.ErrInvalidModel, false},
		{http.StatusBadRequest, llmstream.ErrInvalidRequest, false},
		{529, llmstream.ErrProviderUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			apiErr := &anthropic.Error{
				StatusCode: tt.status,
				Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
				Response:   &http.Response{StatusCode: tt.status},
			}
			err := mapError("claude-haiku-4-5", apiErr)
			if !errors.Is(err, tt.want) {
				t.Errorf("mapError() = %v, want %v", err, tt.want)
			}
			if llmstream.IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", llmstream.IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestModel_OpenStreaming(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "sk-ant-test" {
			t.Errorf("api key header = %q", r.Header.Get("X-Api-Key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"m\",\"type\":\"message\",\"role\":\"assistant\",\"model\":\"claude-haiku-4-5\",\"content\":[],\"usage\":{\"input_tokens\":5,\"output_tokens\":1}}}\n\n")
		io.WriteString(w, "event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n")
		io.WriteString(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hello\"}}\n\n")
		io.WriteString(w, "event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}\n\n")
		io.WriteString(w, "event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":2}}\n\n")
		io.WriteString(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer server.Close()

	model, err := NewModel("sk-ant-test", WithRequestOptions(option.WithBaseURL(server.URL)))
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}

	system := "be brief"
	src, err := model.Open(context.Background(), &llmstream.Conversation{
		Model:    "claude-haiku-4-5",
		Messages: []llmstream.Message{llmstream.NewUserMessage("hi")},
		Params:   &llmstream.RequestParams{System: &system},
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	tr := NewTransformer()
	state := llmstream.NewTurnState(tr.Provider())
	var text string
	emit := func(c llmstream.Chunk) error {
		if c.Type == llmstream.ChunkTextComplete {
			text = c.Text
		}
		return nil
	}
	for {
		raw, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if err := tr.Transform(raw, state, emit); err != nil {
			t.Fatalf("Transform() error = %v", err)
		}
	}

	if text != "Hello" {
		t.Errorf("text = %q, want Hello", text)
	}
	if !state.Completed() {
		t.Error("turn should be completed by message_stop")
	}
	if body["stream"] != true {
		t.Errorf("request stream flag = %v", body["stream"])
	}
}

func TestModel_RejectsNonClaudeModel(t *testing.T) {
	model, err := NewModel("sk-ant-test")
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}
	_, err = model.Open(context.Background(), &llmstream.Conversation{Model: "gpt-4o"})
	if !errors.Is(err, llmstream.ErrInvalidModel) {
		t.Errorf("Open() error = %v, want ErrInvalidModel", err)
	}

	if _, err := NewModel(""); !errors.Is(err, llmstream.ErrInvalidAPIKey) {
		t.Errorf("NewModel(\"\") error = %v, want ErrInvalidAPIKey", err)
	}
}
