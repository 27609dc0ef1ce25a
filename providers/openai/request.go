package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// ChatCompletionRequest represents a chat completions request.
// Vendor extensions are omitted unless the vendor needs them.
type ChatCompletionRequest struct {
	Model             string         `json:"model"`
	Messages          []Message      `json:"messages"`
	MaxTokens         *int           `json:"max_tokens,omitempty"`
	Temperature       *float64       `json:"temperature,omitempty"`
	TopP              *float64       `json:"top_p,omitempty"`
	TopK              *int           `json:"top_k,omitempty"`
	Stop              []string       `json:"stop,omitempty"`
	Stream            bool           `json:"stream"`
	StreamOptions     *StreamOptions `json:"stream_options,omitempty"`
	Tools             []Tool         `json:"tools,omitempty"`
	ToolChoice        interface{}    `json:"tool_choice,omitempty"` // "auto", "none", "required", or {"type": "function", "function": {"name": "..."}}
	ParallelToolCalls *bool          `json:"parallel_tool_calls,omitempty"`
	ReasoningEffort   string         `json:"reasoning_effort,omitempty"` // openai, grok
	Reasoning         *Reasoning     `json:"reasoning,omitempty"`        // openrouter
	EnableThinking    *bool          `json:"enable_thinking,omitempty"`  // qwen
	EnableSearch      *bool          `json:"enable_search,omitempty"`    // qwen, hunyuan
	SearchParameters  map[string]any `json:"search_parameters,omitempty"`
	WebSearchOptions  map[string]any `json:"web_search_options,omitempty"`
	Plugins           []Plugin       `json:"plugins,omitempty"`
}

// StreamOptions asks for a trailing usage chunk.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Reasoning is OpenRouter's unified reasoning parameter.
type Reasoning struct {
	Effort string `json:"effort,omitempty"`
}

// Plugin enables an OpenRouter plugin such as "web".
type Plugin struct {
	ID string `json:"id"`
}

// Message represents a request message.
type Message struct {
	Role       string     `json:"role"`              // "system", "user", "assistant", "tool"
	Content    any        `json:"content,omitempty"` // string
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID *string    `json:"tool_call_id,omitempty"` // role "tool"
}

// Tool represents a function tool definition.
type Tool struct {
	Type      string              `json:"type"` // "function", or a vendor tool type
	Function  *FunctionDefinition `json:"function,omitempty"`
	WebSearch map[string]any      `json:"web_search,omitempty"` // zhipu
}

// FunctionDefinition represents a function tool definition.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// BuildChatRequest converts a conversation into a chat completions request
// for provider.
func BuildChatRequest(provider llmstream.ProviderID, conv *llmstream.Conversation, stream bool) (*ChatCompletionRequest, error) {
	params := conv.Params
	if params == nil {
		params = &llmstream.RequestParams{}
	}

	var messages []Message
	if system := params.GetSystem(); system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	converted, err := convertMessages(provider, conv.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	messages = append(messages, converted...)

	req := &ChatCompletionRequest{
		Model:             conv.Model,
		Messages:          messages,
		MaxTokens:         params.MaxTokens,
		Temperature:       params.Temperature,
		TopP:              params.TopP,
		Stop:              params.Stop,
		Stream:            stream,
		ParallelToolCalls: params.ParallelToolCalls,
	}
	if stream {
		req.StreamOptions = &StreamOptions{IncludeUsage: true}
	}
	// Top-K is not part of the OpenAI API; OpenRouter and Qwen accept it.
	if provider == llmstream.ProviderOpenRouter || provider == llmstream.ProviderQwen {
		req.TopK = params.TopK
	}

	req.Tools = convertTools(conv.Tools)
	if params.ToolChoice != nil && len(req.Tools) > 0 {
		req.ToolChoice = convertToolChoice(params.ToolChoice)
	}

	applyThinking(provider, params, req)
	applyWebSearch(provider, params, req)
	return req, nil
}

func applyThinking(provider llmstream.ProviderID, params *llmstream.RequestParams, req *ChatCompletionRequest) {
	if !params.IsThinkingEnabled() {
		return
	}
	effort := "medium"
	if params.ThinkingLevel != nil && *params.ThinkingLevel != "" {
		effort = *params.ThinkingLevel
	}
	switch provider {
	case llmstream.ProviderOpenAI, llmstream.ProviderGrok:
		req.ReasoningEffort = effort
	case llmstream.ProviderOpenRouter:
		req.Reasoning = &Reasoning{Effort: effort}
	case llmstream.ProviderQwen:
		enabled := true
		req.EnableThinking = &enabled
	}
}

func applyWebSearch(provider llmstream.ProviderID, params *llmstream.RequestParams, req *ChatCompletionRequest) {
	if !params.IsWebSearchEnabled() {
		return
	}
	enabled := true
	switch provider {
	case llmstream.ProviderOpenAI:
		req.WebSearchOptions = map[string]any{}
	case llmstream.ProviderOpenRouter:
		if !strings.HasSuffix(req.Model, ":online") {
			req.Plugins = append(req.Plugins, Plugin{ID: "web"})
		}
	case llmstream.ProviderGrok:
		req.SearchParameters = map[string]any{"mode": "auto", "return_citations": true}
	case llmstream.ProviderQwen, llmstream.ProviderHunyuan:
		req.EnableSearch = &enabled
	case llmstream.ProviderZhipu:
		req.Tools = append(req.Tools, Tool{Type: "web_search", WebSearch: map[string]any{"enable": true, "search_result": true}})
	}
}

// convertMessages converts library messages to the chat format: text runs
// are flattened into one content string, tool_use blocks become tool_calls
// and each tool_result becomes its own role "tool" message.
func convertMessages(provider llmstream.ProviderID, messages []llmstream.Message) ([]Message, error) {
	messages = llmstream.StripForeignThinking(messages, provider)
	result := make([]Message, 0, len(messages))

	for i, msg := range messages {
		converted, err := convertMessage(msg, i)
		if err != nil {
			return nil, err
		}
		result = append(result, converted...)
	}
	return result, nil
}

func convertMessage(msg llmstream.Message, msgIndex int) ([]Message, error) {
	var result []Message
	var contentParts []string
	var toolCalls []ToolCall

	for j, block := range msg.Blocks {
		switch block.BlockType {
		case llmstream.BlockTypeText:
			if text := block.Text(); text != "" {
				contentParts = append(contentParts, text)
			}
		case llmstream.BlockTypeThinking:
			// Chat completions has no input slot for reasoning; it is not replayed.
		case llmstream.BlockTypeToolUse:
			if msg.Role != llmstream.RoleAssistant {
				continue
			}
			tc, err := convertToolUse(block, msgIndex, j)
			if err != nil {
				return nil, err
			}
			toolCalls = append(toolCalls, tc)
		case llmstream.BlockTypeToolResult:
			id, ok := block.GetToolUseID()
			if !ok || id == "" {
				return nil, fmt.Errorf("message %d, block %d: tool_result block missing tool_use_id", msgIndex, j)
			}
			result = append(result, Message{Role: "tool", Content: block.Text(), ToolCallID: &id})
		}
	}

	if len(contentParts) > 0 || len(toolCalls) > 0 {
		m := Message{Role: msg.Role, ToolCalls: toolCalls}
		if len(contentParts) > 0 {
			m.Content = strings.Join(contentParts, "\n\n")
		}
		result = append(result, m)
	}
	return result, nil
}

func convertToolUse(block *llmstream.Block, msgIndex, blockIndex int) (ToolCall, error) {
	id, ok := block.GetToolUseID()
	if !ok || id == "" {
		return ToolCall{}, fmt.Errorf("message %d, block %d: tool_use block missing tool_use_id", msgIndex, blockIndex)
	}
	name, ok := block.GetToolName()
	if !ok || name == "" {
		return ToolCall{}, fmt.Errorf("message %d, block %d: tool_use block missing tool_name", msgIndex, blockIndex)
	}
	input, _ := block.GetToolInput()
	if input == nil {
		input = map[string]interface{}{}
	}
	args, err := json.Marshal(input)
	if err != nil {
		return ToolCall{}, fmt.Errorf("message %d, block %d: failed to marshal tool input: %w", msgIndex, blockIndex, err)
	}
	return ToolCall{ID: id, Type: "function", Function: FunctionCall{Name: name, Arguments: string(args)}}, nil
}

func convertTools(defs []*llmstream.ToolDefinition) []Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]Tool, 0, len(defs))
	for _, def := range defs {
		params := def.InputSchema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		fn := &FunctionDefinition{Name: def.Name, Parameters: params}
		if def.Description != "" {
			desc := def.Description
			fn.Description = &desc
		}
		tools = append(tools, Tool{Type: "function", Function: fn})
	}
	return tools
}

func convertToolChoice(tc *llmstream.ToolChoice) interface{} {
	switch tc.Mode {
	case llmstream.ToolChoiceModeSpecific:
		if tc.ToolName != nil {
			return map[string]any{"type": "function", "function": map[string]any{"name": *tc.ToolName}}
		}
		return "required"
	case llmstream.ToolChoiceModeNone, llmstream.ToolChoiceModeRequired:
		return string(tc.Mode)
	default:
		return "auto"
	}
}
