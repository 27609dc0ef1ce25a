package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// defaultBaseURLs are the OpenAI-compatible endpoints of each vendor.
var defaultBaseURLs = map[llmstream.ProviderID]string{
	llmstream.ProviderOpenAI:         "https://api.openai.com/v1",
	llmstream.ProviderOpenAIResponse: "https://api.openai.com/v1",
	llmstream.ProviderOpenRouter:     "https://openrouter.ai/api/v1",
	llmstream.ProviderGrok:           "https://api.x.ai/v1",
	llmstream.ProviderPerplexity:     "https://api.perplexity.ai",
	llmstream.ProviderDeepSeek:       "https://api.deepseek.com/v1",
	llmstream.ProviderZhipu:          "https://open.bigmodel.cn/api/paas/v4",
	llmstream.ProviderQwen:           "https://dashscope.aliyuncs.com/compatible-mode/v1",
	llmstream.ProviderHunyuan:        "https://api.hunyuan.cloud.tencent.com/v1",
}

// Model calls an OpenAI-compatible HTTP API. It performs exactly one
// request per Open and never retries.
type Model struct {
	provider   llmstream.ProviderID
	apiKey     string
	baseURL    string
	httpClient *http.Client
	stream     bool
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithBaseURL overrides the vendor endpoint.
func WithBaseURL(url string) ModelOption {
	return func(m *Model) { m.baseURL = url }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) ModelOption {
	return func(m *Model) { m.httpClient = c }
}

// WithStreaming selects streamed (default) or whole-message responses.
func WithStreaming(stream bool) ModelOption {
	return func(m *Model) { m.stream = stream }
}

// NewModel creates a model for an OpenAI-compatible vendor.
func NewModel(provider llmstream.ProviderID, apiKey string, opts ...ModelOption) (*Model, error) {
	if apiKey == "" {
		return nil, llmstream.ErrInvalidAPIKey
	}
	fam := provider.Family()
	if fam != llmstream.WireFamilyChat && fam != llmstream.WireFamilyResponses {
		return nil, fmt.Errorf("%w: %s is not OpenAI-compatible", llmstream.ErrUnknownProvider, provider)
	}
	m := &Model{
		provider: provider,
		apiKey:   apiKey,
		baseURL:  defaultBaseURLs[provider],
		// No overall timeout: streams are bounded by the engine's idle timeout.
		httpClient: &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 60 * time.Second}},
		stream:     true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.baseURL == "" {
		return nil, fmt.Errorf("%w: no base URL for %s", llmstream.ErrInvalidRequest, provider)
	}
	return m, nil
}

// Provider returns the vendor identity.
func (m *Model) Provider() llmstream.ProviderID { return m.provider }

// Open sends one request and returns its raw chunks.
func (m *Model) Open(ctx context.Context, conv *llmstream.Conversation) (llmstream.RawChunkSource, error) {
	var (
		body     any
		endpoint string
		decode   Decoder
	)
	if m.provider == llmstream.ProviderOpenAIResponse {
		req, err := BuildResponsesRequest(conv, m.stream)
		if err != nil {
			return nil, err
		}
		body, endpoint, decode = req, "/responses", DecodeResponseEvent
	} else {
		req, err := BuildChatRequest(m.provider, conv, m.stream)
		if err != nil {
			return nil, err
		}
		body, endpoint, decode = req, "/chat/completions", DecodeChatChunk
	}

	httpReq, err := m.buildHTTPRequest(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &llmstream.ProviderError{
			Code:      llmstream.ErrorCodeTransport,
			Provider:  m.provider.String(),
			Message:   err.Error(),
			Retryable: true,
			Err:       err,
		}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, handleErrorResponse(m.provider, conv.Model, resp)
	}

	if m.stream {
		return NewSSESource(m.provider, resp.Body, decode), nil
	}

	defer resp.Body.Close()
	if m.provider == llmstream.ProviderOpenAIResponse {
		var out ResponseObject
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return llmstream.NewSliceSource(ExpandResponse(&out)...), nil
	}
	var chunk ChatChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return llmstream.NewSliceSource(&chunk), nil
}

// buildHTTPRequest creates an authenticated JSON POST.
func (m *Model) buildHTTPRequest(ctx context.Context, endpoint string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if m.stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

// ResponsesRequest is a Responses API request.
type ResponsesRequest struct {
	Model           string          `json:"model"`
	Instructions    string          `json:"instructions,omitempty"`
	Input           []ResponseInput `json:"input"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"top_p,omitempty"`
	Stream          bool            `json:"stream"`
	Tools           []ResponseTool  `json:"tools,omitempty"`
	Reasoning       *ResponseReason `json:"reasoning,omitempty"`
}

// ResponseInput is one input item: a message, a function call or its output.
type ResponseInput struct {
	Type      string `json:"type"` // "message", "function_call", "function_call_output"
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// ResponseTool is a Responses API tool.
type ResponseTool struct {
	Type        string         `json:"type"` // "function", "web_search"
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ResponseReason configures reasoning output.
type ResponseReason struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// BuildResponsesRequest converts a conversation into a Responses API request.
func BuildResponsesRequest(conv *llmstream.Conversation, stream bool) (*ResponsesRequest, error) {
	params := conv.Params
	if params == nil {
		params = &llmstream.RequestParams{}
	}
	req := &ResponsesRequest{
		Model:           conv.Model,
		Instructions:    params.GetSystem(),
		MaxOutputTokens: params.MaxTokens,
		Temperature:     params.Temperature,
		TopP:            params.TopP,
		Stream:          stream,
	}

	messages := llmstream.StripForeignThinking(conv.Messages, llmstream.ProviderOpenAIResponse)
	for i, msg := range messages {
		var text []byte
		for j, block := range msg.Blocks {
			switch block.BlockType {
			case llmstream.BlockTypeText:
				if len(text) > 0 {
					text = append(text, "\n\n"...)
				}
				text = append(text, block.Text()...)
			case llmstream.BlockTypeToolUse:
				tc, err := convertToolUse(block, i, j)
				if err != nil {
					return nil, err
				}
				req.Input = append(req.Input, ResponseInput{Type: "function_call", CallID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
			case llmstream.BlockTypeToolResult:
				id, _ := block.GetToolUseID()
				req.Input = append(req.Input, ResponseInput{Type: "function_call_output", CallID: id, Output: block.Text()})
			}
		}
		if len(text) > 0 {
			req.Input = append(req.Input, ResponseInput{Type: "message", Role: msg.Role, Content: string(text)})
		}
	}

	for _, t := range convertTools(conv.Tools) {
		rt := ResponseTool{Type: "function", Name: t.Function.Name, Parameters: t.Function.Parameters}
		if t.Function.Description != nil {
			rt.Description = *t.Function.Description
		}
		req.Tools = append(req.Tools, rt)
	}
	if params.IsWebSearchEnabled() {
		req.Tools = append(req.Tools, ResponseTool{Type: "web_search"})
	}
	if params.IsThinkingEnabled() {
		effort := "medium"
		if params.ThinkingLevel != nil && *params.ThinkingLevel != "" {
			effort = *params.ThinkingLevel
		}
		req.Reasoning = &ResponseReason{Effort: effort, Summary: "auto"}
	}
	return req, nil
}
