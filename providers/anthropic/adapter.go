package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// convertToAnthropicMessages converts conversation messages to Anthropic SDK format.
// Thinking blocks signed by another vendor are dropped first; unsigned
// thinking is replayed as plain text, since Anthropic rejects thinking
// blocks it cannot verify.
func convertToAnthropicMessages(messages []llmstream.Message) ([]anthropic.MessageParam, error) {
	messages = llmstream.StripForeignThinking(messages, llmstream.ProviderAnthropic)
	messages = mergeConsecutiveSameRoleMessages(messages)

	result := make([]anthropic.MessageParam, 0, len(messages))

	for i, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))

		for j, block := range msg.Blocks {
			switch block.BlockType {
			case llmstream.BlockTypeText:
				if block.TextContent == nil {
					return nil, fmt.Errorf("message %d, block %d: text block missing text_content", i, j)
				}
				blocks = append(blocks, anthropic.NewTextBlock(*block.TextContent))

			case llmstream.BlockTypeToolUse:
				toolUseID, ok := block.GetToolUseID()
				if !ok || toolUseID == "" {
					return nil, fmt.Errorf("message %d, block %d: tool_use block missing tool_use_id", i, j)
				}
				toolName, ok := block.GetToolName()
				if !ok || toolName == "" {
					return nil, fmt.Errorf("message %d, block %d: tool_use block missing tool_name", i, j)
				}
				input, ok := block.Content["input"]
				if !ok {
					return nil, fmt.Errorf("message %d, block %d: tool_use block missing input", i, j)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(toolUseID, input, toolName))

			case llmstream.BlockTypeToolResult:
				toolUseID, ok := block.GetToolUseID()
				if !ok || toolUseID == "" {
					return nil, fmt.Errorf("message %d, block %d: tool_result block missing tool_use_id", i, j)
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(toolUseID, block.Text(), block.IsToolError()))

			case llmstream.BlockTypeThinking:
				if block.TextContent == nil {
					return nil, fmt.Errorf("message %d, block %d: thinking block missing text_content", i, j)
				}
				signature, _ := block.Content["signature"].(string)
				if signature == "" {
					blocks = append(blocks, anthropic.NewTextBlock(*block.TextContent))
					continue
				}
				blocks = append(blocks, anthropic.NewThinkingBlock(signature, *block.TextContent))

			default:
				// image and document blocks are not sent yet
			}
		}

		if len(blocks) == 0 {
			continue
		}

		switch msg.Role {
		case llmstream.RoleUser:
			result = append(result, anthropic.NewUserMessage(blocks...))
		case llmstream.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s'", i, msg.Role)
		}
	}

	return result, nil
}

// mergeConsecutiveSameRoleMessages joins adjacent messages of the same role.
// A tool round ends with a user message of tool results; a follow-up user
// question would otherwise break Anthropic's strict role alternation.
func mergeConsecutiveSameRoleMessages(messages []llmstream.Message) []llmstream.Message {
	if len(messages) <= 1 {
		return messages
	}

	merged := make([]llmstream.Message, 0, len(messages))
	for _, msg := range messages {
		last := len(merged) - 1
		if last >= 0 && merged[last].Role == msg.Role {
			blocks := make([]*llmstream.Block, 0, len(merged[last].Blocks)+len(msg.Blocks))
			blocks = append(blocks, merged[last].Blocks...)
			blocks = append(blocks, msg.Blocks...)
			merged[last] = llmstream.Message{Role: msg.Role, Blocks: blocks}
			continue
		}
		merged = append(merged, msg)
	}
	return merged
}
