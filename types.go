package llmstream

import "encoding/json"

// Block type constants
const (
	BlockTypeText       = "text"
	BlockTypeThinking   = "thinking" // Reasoning text (Claude extended thinking, reasoning_content, thought parts)
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result" // Result sent back from client-executed tool call
	BlockTypeImage      = "image"
	BlockTypeDocument   = "document" // Provider file uploads (Anthropic/Gemini)
)

// Citation represents a reference from text content to external sources.
// Used primarily for web search results, but can represent any citation type.
//
// Provider mappings:
// - Anthropic: web_search_tool_result / text.citations[] → Citation (web_search_result)
// - Google: groundingChunks[].web → Citation (grounding_chunk)
// - OpenAI/OpenRouter: annotations[] → Citation (url_citation)
// - Grok/Perplexity/OpenRouter: citations[] → Citation (url)
// - Zhipu: web_search[] / Qwen, Hunyuan: search_info.search_results[] → Citation (search_result)
type Citation struct {
	// Type indicates the citation type
	// Values: "web_search_result", "url_citation", "url", "search_result", "grounding_chunk"
	Type string `json:"type"`

	// URL is the cited resource URL
	URL string `json:"url"`

	// Title is the page/resource title
	Title string `json:"title,omitempty"`

	// StartIndex is the character position in the text where citation starts (optional)
	StartIndex *int `json:"start_index,omitempty"`

	// EndIndex is the character position in the text where citation ends (optional)
	EndIndex *int `json:"end_index,omitempty"`

	// CitedText is the exact text that was cited (optional)
	CitedText *string `json:"cited_text,omitempty"`

	// ResultIndex is the vendor's 1-based reference number, when it numbers results (optional)
	ResultIndex *int `json:"result_index,omitempty"`

	// Snippet is a preview/excerpt from the cited source (optional)
	Snippet *string `json:"snippet,omitempty"`

	// ProviderData stores provider-specific citation data
	// Examples: Anthropic's encrypted_content, Zhipu's media/icon fields
	ProviderData json.RawMessage `json:"provider_data,omitempty"`
}

// Block represents a multimodal content block of a conversation message.
//
// User blocks: text, image, tool_result, document
// Assistant blocks: text, thinking, tool_use
//
// The Content field stores block-type-specific structured data as a map:
// - text: empty (text in TextContent field)
// - thinking: {"signature": "..."} (optional, text in TextContent)
// - tool_use: {"tool_use_id": "call_...", "tool_name": "...", "input": {...}}
// - tool_result: {"tool_use_id": "call_...", "is_error": false} (text in TextContent)
// - image: {"url": "...", "mime_type": "..."}
type Block struct {
	// BlockType indicates the type of block
	BlockType string `json:"block_type"`

	// Sequence indicates the position of this block in the message (0-indexed)
	Sequence int `json:"sequence"`

	// TextContent contains the text for text/thinking/tool_result blocks
	TextContent *string `json:"text_content,omitempty"`

	// Content contains type-specific structured data
	Content map[string]interface{} `json:"content,omitempty"`

	// Provider identifies which LLM provider generated this block
	// Only populated when block contains provider-specific data that can't be converted
	Provider *string `json:"provider,omitempty"`

	// Citations contains references to external sources (primarily for text blocks)
	Citations []Citation `json:"citations,omitempty"`
}

// NewTextBlock creates a text block.
func NewTextBlock(text string) *Block {
	return &Block{BlockType: BlockTypeText, TextContent: &text}
}

// NewThinkingBlock creates a thinking block.
func NewThinkingBlock(text string) *Block {
	return &Block{BlockType: BlockTypeThinking, TextContent: &text}
}

// NewToolUseBlock creates a tool_use block for a call the model made.
func NewToolUseBlock(id, name string, input map[string]interface{}) *Block {
	if input == nil {
		input = map[string]interface{}{}
	}
	return &Block{
		BlockType: BlockTypeToolUse,
		Content: map[string]interface{}{
			"tool_use_id": id,
			"tool_name":   name,
			"input":       input,
		},
	}
}

// NewToolResultBlock creates a tool_result block answering the call with the given id.
func NewToolResultBlock(toolUseID, text string, isError bool) *Block {
	return &Block{
		BlockType:   BlockTypeToolResult,
		TextContent: &text,
		Content: map[string]interface{}{
			"tool_use_id": toolUseID,
			"is_error":    isError,
		},
	}
}

// IsToolBlock returns true if this is a tool-related block
func (b *Block) IsToolBlock() bool {
	return b.BlockType == BlockTypeToolUse || b.BlockType == BlockTypeToolResult
}

// IsToolUseBlock returns true if this is a tool_use block
func (b *Block) IsToolUseBlock() bool {
	return b.BlockType == BlockTypeToolUse
}

// IsToolResultBlock returns true if this is a tool_result block
func (b *Block) IsToolResultBlock() bool {
	return b.BlockType == BlockTypeToolResult
}

// Text returns the block's text content, or "" when unset.
func (b *Block) Text() string {
	if b.TextContent == nil {
		return ""
	}
	return *b.TextContent
}

// GetToolUseID returns the tool_use_id from a tool_use or tool_result block
func (b *Block) GetToolUseID() (string, bool) {
	if !b.IsToolBlock() {
		return "", false
	}
	id, ok := b.Content["tool_use_id"].(string)
	return id, ok
}

// GetToolName returns the tool_name from a tool_use block
func (b *Block) GetToolName() (string, bool) {
	if !b.IsToolUseBlock() {
		return "", false
	}
	name, ok := b.Content["tool_name"].(string)
	return name, ok
}

// GetToolInput returns the input from a tool_use block
func (b *Block) GetToolInput() (map[string]interface{}, bool) {
	if !b.IsToolUseBlock() {
		return nil, false
	}
	input, ok := b.Content["input"].(map[string]interface{})
	return input, ok
}

// IsToolError returns true for a tool_result block flagged as an error
func (b *Block) IsToolError() bool {
	if !b.IsToolResultBlock() {
		return false
	}
	isErr, _ := b.Content["is_error"].(bool)
	return isErr
}

// Message represents a single message in the conversation.
type Message struct {
	// Role is either "user" or "assistant"
	Role string `json:"role"`

	// Blocks is the list of content blocks for this message
	Blocks []*Block `json:"blocks"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// NewUserMessage creates a user message holding a single text block.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Blocks: []*Block{NewTextBlock(text)}}
}
