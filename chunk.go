package llmstream

// ChunkType identifies the variant carried by a Chunk.
type ChunkType string

// Chunk type constants
const (
	ChunkTextStart    ChunkType = "text.start"
	ChunkTextDelta    ChunkType = "text.delta"
	ChunkTextComplete ChunkType = "text.complete"

	ChunkThinkingStart    ChunkType = "thinking.start"
	ChunkThinkingDelta    ChunkType = "thinking.delta"
	ChunkThinkingComplete ChunkType = "thinking.complete"

	ChunkToolCreated    ChunkType = "mcp_tool.created"
	ChunkToolPending    ChunkType = "mcp_tool.pending"
	ChunkToolInProgress ChunkType = "mcp_tool.in_progress"
	ChunkToolComplete   ChunkType = "mcp_tool.complete"

	ChunkWebSearchInProgress ChunkType = "web_search.in_progress"
	ChunkWebSearchComplete   ChunkType = "web_search.complete"

	ChunkImageComplete ChunkType = "image.complete"

	ChunkResponseComplete ChunkType = "llm_response.complete"

	ChunkError ChunkType = "error"
)

// Chunk is one normalized event in the canonical output stream.
//
// Only the fields relevant to Type are set:
//   - text.* / thinking.*: Text (delta text, or the full run on *.complete)
//   - thinking.delta / thinking.complete: ElapsedMillis since thinking.start
//   - mcp_tool.created: ToolCalls
//   - mcp_tool.pending / in_progress / complete: Responses
//   - web_search.*: WebSearch
//   - image.complete: Image
//   - llm_response.complete: Usage, Metrics, Cost, StopReason
//   - error: Error
type Chunk struct {
	Type ChunkType `json:"type"`

	// Turn is the 0-based model turn within the request that produced this chunk.
	Turn int `json:"turn"`

	Text          string `json:"text,omitempty"`
	ElapsedMillis *int64 `json:"elapsed_ms,omitempty"`

	ToolCalls []ToolCall       `json:"tool_calls,omitempty"`
	Responses []ToolResponse   `json:"responses,omitempty"`
	WebSearch *WebSearchResult `json:"web_search,omitempty"`
	Image     *Image           `json:"image,omitempty"`

	Usage      *Usage   `json:"usage,omitempty"`
	Metrics    *Metrics `json:"metrics,omitempty"`
	Cost       *float64 `json:"cost,omitempty"`
	StopReason string   `json:"stop_reason,omitempty"`

	Error *ChunkErr `json:"error,omitempty"`
}

// IsTerminal returns true for chunks after which nothing else is emitted
// for the request (the outward completion). Transport errors are terminal
// too but are reported through Stream.Err.
func (c Chunk) IsTerminal() bool {
	return c.Type == ChunkResponseComplete
}

// ChunkErr is the structured payload of an error chunk.
type ChunkErr struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	// ToolResponseID scopes the error to a single tool call (empty for
	// pipeline-level errors).
	ToolResponseID string `json:"tool_response_id,omitempty"`
}

// ToolCall is a raw tool invocation request extracted from the vendor stream.
// Arguments is the raw JSON text as assembled from fragments; it has not
// been parsed yet.
type ToolCall struct {
	// Index is the position of the call within the turn.
	Index     int    `json:"index"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`

	// Signature is an opaque vendor token that must be replayed with the
	// call in the next turn (Gemini thought signatures).
	Signature string `json:"signature,omitempty"`
}

// ToolStatus is the lifecycle state of one tool invocation.
type ToolStatus string

const (
	ToolStatusPending  ToolStatus = "pending"
	ToolStatusInvoking ToolStatus = "invoking"
	ToolStatusDone     ToolStatus = "done"
	ToolStatusError    ToolStatus = "error"
)

// IsResolved returns true once the call can no longer change state.
func (s ToolStatus) IsResolved() bool {
	return s == ToolStatusDone || s == ToolStatusError
}

// ToolResponse tracks one invoked tool across pending → invoking → done/error.
// ID is stable across transitions.
type ToolResponse struct {
	ID         string          `json:"id"`
	ToolCallID string          `json:"tool_call_id"`
	Tool       *ToolDefinition `json:"tool,omitempty"`
	ToolName   string          `json:"tool_name"`

	Arguments    map[string]any `json:"arguments,omitempty"`
	RawArguments string         `json:"raw_arguments,omitempty"`
	Signature    string         `json:"signature,omitempty"`

	Status ToolStatus  `json:"status"`
	Result *ToolResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// ToolResult is the payload returned by the tool-execution collaborator.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError"`
}

// ToolContent is one item of a tool result.
// Type is "text", "image", "audio" or "resource"; Text or Data is set accordingly.
type ToolContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// TextResult builds a single-text ToolResult.
func TextResult(text string, isError bool) *ToolResult {
	return &ToolResult{
		Content: []ToolContent{{Type: "text", Text: text}},
		IsError: isError,
	}
}

// WebSearchSource names the vendor citation shape that was normalized.
type WebSearchSource string

const (
	WebSearchSourceOpenAI         WebSearchSource = "OPENAI"
	WebSearchSourceOpenAIResponse WebSearchSource = "OPENAI_RESPONSE"
	WebSearchSourceOpenRouter     WebSearchSource = "OPENROUTER"
	WebSearchSourceGrok           WebSearchSource = "GROK"
	WebSearchSourcePerplexity     WebSearchSource = "PERPLEXITY"
	WebSearchSourceZhipu          WebSearchSource = "ZHIPU"
	WebSearchSourceQwen           WebSearchSource = "QWEN"
	WebSearchSourceHunyuan        WebSearchSource = "HUNYUAN"
	WebSearchSourceAnthropic      WebSearchSource = "ANTHROPIC"
	WebSearchSourceGemini         WebSearchSource = "GEMINI"
)

// WebSearchResult is the normalized citation payload of a web_search chunk.
type WebSearchResult struct {
	Source  WebSearchSource `json:"source"`
	Results []Citation      `json:"results,omitempty"`

	// Queries holds the search queries the vendor reported, when it does.
	Queries []string `json:"queries,omitempty"`
}

// Image is inline binary output (base64-free; Data holds raw bytes).
type Image struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Usage holds token counts for a turn or for a whole request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// ThoughtsTokens is the reasoning share of CompletionTokens, when reported.
	ThoughtsTokens int `json:"thoughts_tokens,omitempty"`

	// Estimated is true when the counts came from a local tokenizer
	// instead of the vendor.
	Estimated bool `json:"estimated,omitempty"`
}

// IsZero reports whether no counts were recorded.
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// Add returns the element-wise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
		ThoughtsTokens:   u.ThoughtsTokens + other.ThoughtsTokens,
		Estimated:        u.Estimated || other.Estimated,
	}
}

// Normalized fills whichever of completion/total is missing.
// Vendors that only report prompt and total imply completion = total - prompt.
func (u Usage) Normalized() Usage {
	if u.CompletionTokens == 0 && u.TotalTokens > u.PromptTokens {
		u.CompletionTokens = u.TotalTokens - u.PromptTokens
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// Metrics holds latency measurements in milliseconds.
type Metrics struct {
	FirstTokenMillis int64 `json:"time_first_token_ms"`
	CompletionMillis int64 `json:"time_completion_ms"`
	ThinkingMillis   int64 `json:"time_thinking_ms,omitempty"`
}
