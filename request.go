package llmstream

// Conversation is the model-facing context of one turn: message history,
// request parameters and the tools the model may call.
// The pipeline appends the assistant message and tool results after each
// tool round, then opens the next turn with the grown conversation.
type Conversation struct {
	// Model is the model identifier (e.g., "claude-haiku-4-5-20251001")
	Model string

	// Messages contains the conversation history.
	// Each message has a Role (user/assistant) and Blocks.
	Messages []Message

	// Params contains all request parameters (temperature, max_tokens, thinking settings, etc.)
	// Model collaborators extract what they support from this unified struct.
	Params *RequestParams

	// Tools offered to the model. Filled from the pipeline's catalog when empty.
	Tools []*ToolDefinition
}

// Clone returns a copy whose message slice can be appended to without
// aliasing the original.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	out.Tools = append([]*ToolDefinition(nil), c.Tools...)
	return &out
}

// Append adds messages to the conversation.
func (c *Conversation) Append(msgs ...Message) {
	c.Messages = append(c.Messages, msgs...)
}
