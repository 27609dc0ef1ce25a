package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// decodeLines parses JSON-line output into chunks.
func decodeLines(t *testing.T, out string) []llmstream.Chunk {
	t.Helper()
	var chunks []llmstream.Chunk
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var c llmstream.Chunk
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c), sc.Text())
		chunks = append(chunks, c)
	}
	return chunks
}

func ofType(chunks []llmstream.Chunk, typ llmstream.ChunkType) []llmstream.Chunk {
	var out []llmstream.Chunk
	for _, c := range chunks {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

func TestReplay_GrokSearch(t *testing.T) {
	out, err := execute(t, "replay", "--provider", "grok", filepath.Join("testdata", "grok_search.jsonl"))
	require.NoError(t, err)
	chunks := decodeLines(t, out)

	text := ofType(chunks, llmstream.ChunkTextComplete)
	require.Len(t, text, 1)
	assert.Equal(t, "Paris is sunny.", text[0].Text)

	search := ofType(chunks, llmstream.ChunkWebSearchComplete)
	require.Len(t, search, 1)
	assert.Equal(t, llmstream.WebSearchSourceGrok, search[0].WebSearch.Source)
	assert.Equal(t, "https://weather.example/paris", search[0].WebSearch.Results[0].URL)

	done := chunks[len(chunks)-1]
	assert.Equal(t, llmstream.ChunkResponseComplete, done.Type)
	assert.Equal(t, "end_turn", done.StopReason)
	assert.Equal(t, llmstream.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16}, *done.Usage)
}

func TestReplay_AnthropicToolUse(t *testing.T) {
	out, err := execute(t, "replay", "-p", "anthropic", filepath.Join("testdata", "anthropic_tool_use.jsonl"))
	require.NoError(t, err)
	chunks := decodeLines(t, out)

	created := ofType(chunks, llmstream.ChunkToolCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "get_weather", created[0].ToolCalls[0].Name)
	assert.JSONEq(t, `{"city":"Paris"}`, created[0].ToolCalls[0].Arguments)

	done := ofType(chunks, llmstream.ChunkResponseComplete)
	require.Len(t, done, 1)
	assert.Equal(t, "tool_use", done[0].StopReason)
	assert.Equal(t, 162, done[0].Usage.TotalTokens)
}

func TestReplay_GeminiFromStdin(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "gemini_text.jsonl"))
	require.NoError(t, err)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(bytes.NewReader(data))
	cmd.SetArgs([]string{"replay", "--provider", "gemini"})
	require.NoError(t, cmd.Execute())

	chunks := decodeLines(t, out.String())
	text := ofType(chunks, llmstream.ChunkTextComplete)
	require.Len(t, text, 1)
	assert.Equal(t, "Bonjour le monde.", text[0].Text)

	done := ofType(chunks, llmstream.ChunkResponseComplete)
	require.Len(t, done, 1, "gemini completes once, on flush")
	assert.Equal(t, 8, done[0].Usage.TotalTokens)
}

func TestReplay_Errors(t *testing.T) {
	_, err := execute(t, "replay", "--provider", "carrier-pigeon", filepath.Join("testdata", "grok_search.jsonl"))
	assert.ErrorIs(t, err, llmstream.ErrUnknownProvider)

	_, err = execute(t, "replay", filepath.Join("testdata", "grok_search.jsonl"))
	assert.ErrorContains(t, err, "provider")

	bad := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{\"choices\":[]}\n{not json\n"), 0o600))
	_, err = execute(t, "replay", "--provider", "openai", bad)
	assert.ErrorContains(t, err, "line 2")
}

func TestReplay_VendorErrorEvent(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "overloaded.jsonl")
	require.NoError(t, os.WriteFile(fixture, []byte(
		`data: {"error":{"type":"server_error","message":"Overloaded"}}`+"\n"), 0o600))

	out, err := execute(t, "replay", "--provider", "openrouter", fixture)
	require.Error(t, err)

	chunks := decodeLines(t, out)
	require.Len(t, chunks, 1)
	assert.Equal(t, llmstream.ChunkError, chunks[0].Type)
	assert.Contains(t, chunks[0].Error.Message, "Overloaded")
}

func TestPayload(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{`data: {"a":1}`, `{"a":1}`, true},
		{`data:{"a":1}`, `{"a":1}`, true},
		{`data: [DONE]`, "", false},
		{`event: message_start`, "", false},
		{`# comment`, "", false},
		{"   ", "", false},
	}
	for _, tt := range tests {
		got, ok := payload([]byte(tt.line))
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.want, string(got), tt.line)
	}
}

func TestDecoderFor_OpenAIResponsesModels(t *testing.T) {
	decode, err := decoderFor(llmstream.ProviderOpenAI, "o3-pro")
	require.NoError(t, err)
	raw, err := decode([]byte(`{"type":"response.output_text.delta","delta":"hi"}`))
	require.NoError(t, err)
	assert.NotNil(t, raw)

	_, err = decoderFor("carrier-pigeon", "")
	assert.ErrorIs(t, err, llmstream.ErrUnknownProvider)
}
