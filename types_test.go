package llmstream

import "testing"

func TestNewToolUseBlock_Accessors(t *testing.T) {
	block := NewToolUseBlock("call_1", "get_weather", map[string]interface{}{"city": "Paris"})

	if !block.IsToolBlock() || !block.IsToolUseBlock() || block.IsToolResultBlock() {
		t.Fatalf("unexpected classification for %s block", block.BlockType)
	}
	if id, ok := block.GetToolUseID(); !ok || id != "call_1" {
		t.Errorf("GetToolUseID() = %q, %v", id, ok)
	}
	if name, ok := block.GetToolName(); !ok || name != "get_weather" {
		t.Errorf("GetToolName() = %q, %v", name, ok)
	}
	input, ok := block.GetToolInput()
	if !ok || input["city"] != "Paris" {
		t.Errorf("GetToolInput() = %v, %v", input, ok)
	}
	if block.IsToolError() {
		t.Error("tool_use block is never a tool error")
	}
}

func TestNewToolUseBlock_NilInput(t *testing.T) {
	block := NewToolUseBlock("call_1", "noop", nil)
	input, ok := block.GetToolInput()
	if !ok || input == nil || len(input) != 0 {
		t.Errorf("expected empty input object, got %v (ok=%v)", input, ok)
	}
}

func TestNewToolResultBlock(t *testing.T) {
	tests := []struct {
		name    string
		isError bool
	}{
		{"success", false},
		{"error", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := NewToolResultBlock("call_9", "42", tt.isError)
			if block.BlockType != BlockTypeToolResult {
				t.Fatalf("block type = %s", block.BlockType)
			}
			if block.Text() != "42" {
				t.Errorf("Text() = %q", block.Text())
			}
			if id, ok := block.GetToolUseID(); !ok || id != "call_9" {
				t.Errorf("GetToolUseID() = %q, %v", id, ok)
			}
			if _, ok := block.GetToolName(); ok {
				t.Error("tool_result blocks carry no tool name")
			}
			if block.IsToolError() != tt.isError {
				t.Errorf("IsToolError() = %v, want %v", block.IsToolError(), tt.isError)
			}
		})
	}
}

func TestTextAndThinkingBlocks(t *testing.T) {
	text := NewTextBlock("hello")
	if text.BlockType != BlockTypeText || text.Text() != "hello" || text.IsToolBlock() {
		t.Errorf("unexpected text block %+v", text)
	}
	if _, ok := text.GetToolUseID(); ok {
		t.Error("text blocks have no tool_use_id")
	}

	thinking := NewThinkingBlock("hmm")
	if thinking.BlockType != BlockTypeThinking || thinking.Text() != "hmm" {
		t.Errorf("unexpected thinking block %+v", thinking)
	}

	empty := &Block{BlockType: BlockTypeImage}
	if empty.Text() != "" {
		t.Error("unset text content should read as empty")
	}
}

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("hi there")
	if msg.Role != RoleUser {
		t.Errorf("role = %s", msg.Role)
	}
	if len(msg.Blocks) != 1 || msg.Blocks[0].Text() != "hi there" {
		t.Errorf("blocks = %+v", msg.Blocks)
	}
}

func TestBuildToolRoundMessages(t *testing.T) {
	transcript := []*Block{NewThinkingBlock("plan"), NewTextBlock("Let me check.")}
	responses := []ToolResponse{
		{
			ToolCallID: "call_a",
			ToolName:   "get_weather",
			Arguments:  map[string]any{"city": "Paris"},
			Status:     ToolStatusDone,
			Result:     TextResult("sunny", false),
			Signature:  "c2ln",
		},
		{
			ToolCallID: "call_b",
			ToolName:   "get_time",
			Status:     ToolStatusError,
			Error:      "timed out",
		},
	}

	msgs := BuildToolRoundMessages(transcript, responses)
	if len(msgs) != 2 {
		t.Fatalf("expected assistant and user messages, got %d", len(msgs))
	}

	assistant, results := msgs[0], msgs[1]
	if assistant.Role != RoleAssistant || results.Role != RoleUser {
		t.Fatalf("roles = %s, %s", assistant.Role, results.Role)
	}
	if len(assistant.Blocks) != 4 {
		t.Fatalf("expected 2 transcript + 2 tool_use blocks, got %d", len(assistant.Blocks))
	}
	for i, b := range assistant.Blocks {
		if b.Sequence != i {
			t.Errorf("assistant block %d has sequence %d", i, b.Sequence)
		}
	}
	if id, _ := assistant.Blocks[3].GetToolUseID(); id != "call_b" {
		t.Errorf("last tool_use id = %q", id)
	}
	if sig, _ := assistant.Blocks[2].Content["signature"].(string); sig != "c2ln" {
		t.Errorf("call signature = %q, want c2ln", sig)
	}
	if _, ok := assistant.Blocks[3].Content["signature"]; ok {
		t.Error("unsigned call should carry no signature")
	}

	if len(results.Blocks) != 2 {
		t.Fatalf("expected one result per call, got %d", len(results.Blocks))
	}
	if results.Blocks[0].Text() != "sunny" || results.Blocks[0].IsToolError() {
		t.Errorf("unexpected success result %+v", results.Blocks[0])
	}
	if results.Blocks[1].Text() != "timed out" || !results.Blocks[1].IsToolError() {
		t.Errorf("failed call should carry its error, got %+v", results.Blocks[1])
	}
}

func TestStripForeignThinking(t *testing.T) {
	anthropicSig := NewThinkingBlock("signed elsewhere")
	anthropicSig.Content = map[string]interface{}{"signature": "abc"}
	anthropicSig.Provider = stringPtr("anthropic")

	unsigned := NewThinkingBlock("plain")

	messages := []Message{
		NewUserMessage("q"),
		{Role: RoleAssistant, Blocks: []*Block{anthropicSig, unsigned, NewTextBlock("a")}},
		{Role: RoleAssistant, Blocks: []*Block{anthropicSig}},
	}

	got := StripForeignThinking(messages, ProviderGemini)
	if len(got) != 2 {
		t.Fatalf("expected the all-foreign message to be dropped, got %d messages", len(got))
	}
	if len(got[1].Blocks) != 2 || got[1].Blocks[0] != unsigned {
		t.Errorf("expected unsigned thinking and text to survive, got %+v", got[1].Blocks)
	}

	same := StripForeignThinking(messages, ProviderAnthropic)
	if len(same) != 3 || len(same[1].Blocks) != 3 {
		t.Error("same-vendor signatures must be kept")
	}
}
