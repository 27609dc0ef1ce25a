package mcptool

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// convertResult maps an MCP call result to a tool result. Content types
// the engine has no slot for are carried as JSON text.
func convertResult(result *mcp.CallToolResult) *llmstream.ToolResult {
	out := &llmstream.ToolResult{IsError: result.IsError}
	for _, c := range result.Content {
		out.Content = append(out.Content, convertContent(c))
	}
	if len(out.Content) == 0 && result.StructuredContent != nil {
		if data, err := json.Marshal(result.StructuredContent); err == nil {
			out.Content = append(out.Content, llmstream.ToolContent{Type: "text", Text: string(data)})
		}
	}
	return out
}

func convertContent(c mcp.Content) llmstream.ToolContent {
	switch v := c.(type) {
	case mcp.TextContent:
		return llmstream.ToolContent{Type: "text", Text: v.Text}
	case *mcp.TextContent:
		return llmstream.ToolContent{Type: "text", Text: v.Text}
	case mcp.ImageContent:
		return llmstream.ToolContent{Type: "image", Data: v.Data, MimeType: v.MIMEType}
	case *mcp.ImageContent:
		return llmstream.ToolContent{Type: "image", Data: v.Data, MimeType: v.MIMEType}
	case mcp.AudioContent:
		return llmstream.ToolContent{Type: "audio", Data: v.Data, MimeType: v.MIMEType}
	case *mcp.AudioContent:
		return llmstream.ToolContent{Type: "audio", Data: v.Data, MimeType: v.MIMEType}
	case mcp.EmbeddedResource:
		return resourceContent(v.Resource)
	case *mcp.EmbeddedResource:
		return resourceContent(v.Resource)
	default:
		data, _ := json.Marshal(v)
		return llmstream.ToolContent{Type: "text", Text: string(data)}
	}
}

func resourceContent(r mcp.ResourceContents) llmstream.ToolContent {
	switch v := r.(type) {
	case mcp.TextResourceContents:
		return llmstream.ToolContent{Type: "resource", Text: v.Text, MimeType: v.MIMEType}
	case *mcp.TextResourceContents:
		return llmstream.ToolContent{Type: "resource", Text: v.Text, MimeType: v.MIMEType}
	case mcp.BlobResourceContents:
		return llmstream.ToolContent{Type: "resource", Data: v.Blob, MimeType: v.MIMEType}
	case *mcp.BlobResourceContents:
		return llmstream.ToolContent{Type: "resource", Data: v.Blob, MimeType: v.MIMEType}
	default:
		data, _ := json.Marshal(v)
		return llmstream.ToolContent{Type: "resource", Text: string(data)}
	}
}

// inputSchema returns the tool's argument schema as a map, preferring the
// raw schema a server sent verbatim.
func inputSchema(t mcp.Tool) map[string]any {
	var data []byte
	if len(t.RawInputSchema) > 0 {
		data = t.RawInputSchema
	} else if t.InputSchema.Properties != nil || t.InputSchema.Required != nil {
		data, _ = json.Marshal(t.InputSchema)
	}

	schema := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &schema); err != nil {
			schema = map[string]any{}
		}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema
}
