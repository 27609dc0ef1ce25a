package openai

import (
	"encoding/json"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// ChatChunk is one chat-completions payload: a streamed chunk
// ("chat.completion.chunk", choices carry delta) or a whole response
// ("chat.completion", choices carry message). OpenAI-compatible vendors add
// their own top-level citation fields; which one is read depends on the
// vendor the transformer was built for.
type ChatChunk struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`

	// Citations is a flat URL list (grok, openrouter, perplexity).
	Citations []string `json:"citations,omitempty"`

	// SearchResults carries titled results (perplexity).
	SearchResults []PerplexityResult `json:"search_results,omitempty"`

	// SearchInfo carries search results (qwen, hunyuan).
	SearchInfo *SearchInfo `json:"search_info,omitempty"`

	// WebSearch carries search results (zhipu).
	WebSearch []ZhipuSearchResult `json:"web_search,omitempty"`

	// Error is set when a vendor reports a failure inside the stream.
	Error *APIError `json:"error,omitempty"`
}

// ChatChoice is one completion choice.
type ChatChoice struct {
	Index        int        `json:"index"`
	Delta        *ChatDelta `json:"delta,omitempty"`
	Message      *ChatDelta `json:"message,omitempty"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatDelta is the content of a choice, either incremental (delta) or whole (message).
type ChatDelta struct {
	Role             string            `json:"role,omitempty"`
	Content          *string           `json:"content,omitempty"`
	ReasoningContent *string           `json:"reasoning_content,omitempty"` // deepseek, qwen
	Reasoning        *string           `json:"reasoning,omitempty"`         // openrouter, grok
	ReasoningDetails []ReasoningDetail `json:"reasoning_details,omitempty"` // openrouter structured reasoning
	ToolCalls        []ToolCall        `json:"tool_calls,omitempty"`
	Annotations      []Annotation      `json:"annotations,omitempty"`
}

// ReasoningDetail represents a reasoning/thinking detail in the response.
// Used by reasoning-enabled models routed through OpenRouter.
type ReasoningDetail struct {
	Type    string  `json:"type"`              // "reasoning.text", "reasoning.summary", "reasoning.encrypted"
	Text    *string `json:"text,omitempty"`    // for type "reasoning.text"
	Summary *string `json:"summary,omitempty"` // for type "reasoning.summary"
	Data    *string `json:"data,omitempty"`    // for type "reasoning.encrypted"
}

// ToolCall represents a function call, whole or as a streamed fragment.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"` // streaming only
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall represents the function details of a tool call.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"` // JSON string, possibly a fragment
}

// Annotation represents a citation in the response text (openai, openrouter).
type Annotation struct {
	Type        string       `json:"type"` // "url_citation"
	URLCitation *URLCitation `json:"url_citation,omitempty"`
}

// URLCitation represents a web search result citation.
type URLCitation struct {
	URL        string  `json:"url"`
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	Title      *string `json:"title,omitempty"`
	Content    *string `json:"content,omitempty"`
}

// PerplexityResult is one entry of Perplexity's search_results.
type PerplexityResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Date  string `json:"date,omitempty"`
}

// SearchInfo is the search block of Qwen and Hunyuan.
type SearchInfo struct {
	SearchResults []SearchInfoResult `json:"search_results"`
}

// SearchInfoResult is one Qwen/Hunyuan search result.
type SearchInfoResult struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Icon     string `json:"icon,omitempty"`
	SiteName string `json:"site_name,omitempty"`
}

// ZhipuSearchResult is one entry of Zhipu's web_search array.
type ZhipuSearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Content string `json:"content,omitempty"`
	Media   string `json:"media,omitempty"`
	Icon    string `json:"icon,omitempty"`
	Refer   string `json:"refer,omitempty"`
}

// ChatUsage represents token usage. Vendors report cumulative counts;
// some omit completion_tokens.
type ChatUsage struct {
	PromptTokens            int                      `json:"prompt_tokens"`
	CompletionTokens        int                      `json:"completion_tokens"`
	TotalTokens             int                      `json:"total_tokens"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

// CompletionTokensDetails breaks down completion tokens.
type CompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

// APIError is the error payload of an OpenAI-compatible API.
// Code is a string for OpenAI and a number for OpenRouter.
type APIError struct {
	Code    json.RawMessage `json:"code,omitempty"`
	Type    string          `json:"type,omitempty"`
	Message string          `json:"message"`
}

// ResponseEvent is one typed event of the Responses API stream.
// Fields are set according to Type.
type ResponseEvent struct {
	Type           string `json:"type"`
	SequenceNumber int    `json:"sequence_number"`

	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	ItemID       string `json:"item_id,omitempty"`

	// Delta is the increment of *.delta events.
	Delta string `json:"delta,omitempty"`

	// Text is the full text of response.output_text.done.
	Text string `json:"text,omitempty"`

	// Arguments is the full arguments of response.function_call_arguments.done.
	Arguments string `json:"arguments,omitempty"`

	Item       *ResponseItem       `json:"item,omitempty"`
	Annotation *ResponseAnnotation `json:"annotation,omitempty"`
	Response   *ResponseObject     `json:"response,omitempty"`

	// Code and Message are set on "error" events.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ResponseItem is an output item (message, reasoning, function_call, web_search_call).
type ResponseItem struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Status    string          `json:"status,omitempty"`
	Name      string          `json:"name,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Action    *WebSearchQuery `json:"action,omitempty"`

	// Content and Summary are set on whole message and reasoning items.
	Content []ResponseContent `json:"content,omitempty"`
	Summary []ResponseContent `json:"summary,omitempty"`
}

// ResponseContent is a content part of a whole output item.
type ResponseContent struct {
	Type        string               `json:"type"` // "output_text", "summary_text"
	Text        string               `json:"text"`
	Annotations []ResponseAnnotation `json:"annotations,omitempty"`
}

// WebSearchQuery is the action of a web_search_call item.
type WebSearchQuery struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
}

// ResponseAnnotation is a citation added to output text.
type ResponseAnnotation struct {
	Type       string `json:"type"` // "url_citation"
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// ResponseObject is the response envelope carried by lifecycle events.
type ResponseObject struct {
	ID                string             `json:"id"`
	Status            string             `json:"status"` // completed, incomplete, failed
	Model             string             `json:"model,omitempty"`
	Output            []ResponseItem     `json:"output,omitempty"`
	Usage             *ResponseUsage     `json:"usage,omitempty"`
	Error             *APIError          `json:"error,omitempty"`
	IncompleteDetails *IncompleteDetails `json:"incomplete_details,omitempty"`
}

// IncompleteDetails says why a response stopped early.
type IncompleteDetails struct {
	Reason string `json:"reason"` // "max_output_tokens", "content_filter"
}

// ResponseUsage is the Responses API token usage.
type ResponseUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	TotalTokens         int `json:"total_tokens"`
	OutputTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
}

// DecodeChatChunk decodes one chat-completions JSON payload.
func DecodeChatChunk(data []byte) (llmstream.RawChunk, error) {
	var c ChatChunk
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DecodeResponseEvent decodes one Responses API event payload.
func DecodeResponseEvent(data []byte) (llmstream.RawChunk, error) {
	var e ResponseEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
