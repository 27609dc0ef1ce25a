package llmstream

// BuildToolRoundMessages builds the messages that carry one tool round into
// the next turn: the assistant message (the turn's thinking and text runs
// followed by one tool_use block per call) and a user message with one
// tool_result block per call. Failed calls get an error result, so the
// vendor sees an answer for every call it made.
func BuildToolRoundMessages(transcript []*Block, responses []ToolResponse) []Message {
	assistant := Message{Role: RoleAssistant, Blocks: append([]*Block(nil), transcript...)}
	results := Message{Role: RoleUser}

	for _, resp := range responses {
		use := NewToolUseBlock(resp.ToolCallID, resp.ToolName, resp.Arguments)
		if resp.Signature != "" {
			use.Content["signature"] = resp.Signature
		}
		assistant.Blocks = append(assistant.Blocks, use)

		text := resultText(resp.Result)
		isError := resp.Status == ToolStatusError
		if isError && text == "" {
			text = resp.Error
		}
		results.Blocks = append(results.Blocks, NewToolResultBlock(resp.ToolCallID, text, isError))
	}

	resequence(assistant.Blocks)
	resequence(results.Blocks)
	return []Message{assistant, results}
}

// StripForeignThinking drops thinking blocks that carry another provider's
// signature. Signatures only verify against the vendor that issued them, so
// a conversation that switched vendors mid-way must not replay them.
// Unsigned thinking blocks are kept.
func StripForeignThinking(messages []Message, currentProvider ProviderID) []Message {
	result := make([]Message, 0, len(messages))

	for _, msg := range messages {
		if msg.Role != RoleAssistant {
			result = append(result, msg)
			continue
		}

		needsCopy := false
		for _, block := range msg.Blocks {
			if isForeignThinking(block, currentProvider) {
				needsCopy = true
				break
			}
		}
		if !needsCopy {
			result = append(result, msg)
			continue
		}

		kept := make([]*Block, 0, len(msg.Blocks))
		for _, block := range msg.Blocks {
			if !isForeignThinking(block, currentProvider) {
				kept = append(kept, block)
			}
		}
		if len(kept) > 0 {
			result = append(result, Message{Role: msg.Role, Blocks: kept})
		}
	}

	return result
}

func isForeignThinking(b *Block, currentProvider ProviderID) bool {
	if b.BlockType != BlockTypeThinking {
		return false
	}
	if _, signed := b.Content["signature"]; !signed {
		return false
	}
	return b.Provider != nil && *b.Provider != "" && *b.Provider != currentProvider.String()
}

func resequence(blocks []*Block) {
	for i, b := range blocks {
		b.Sequence = i
	}
}
