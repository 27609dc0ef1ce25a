package gemini

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/genai"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// Model opens Gemini turns through the genai SDK, one API call per Open.
type Model struct {
	client *genai.Client
	stream bool
}

// ModelOption configures a Model.
type ModelOption func(*modelConfig)

type modelConfig struct {
	stream     bool
	baseURL    string
	httpClient *http.Client
}

// WithStreaming selects streamed (default) or whole-response calls.
func WithStreaming(stream bool) ModelOption {
	return func(c *modelConfig) { c.stream = stream }
}

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) ModelOption {
	return func(c *modelConfig) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(client *http.Client) ModelOption {
	return func(c *modelConfig) { c.httpClient = client }
}

// NewModel creates a Gemini API model with the given API key.
func NewModel(ctx context.Context, apiKey string, opts ...ModelOption) (*Model, error) {
	if apiKey == "" {
		return nil, llmstream.ErrInvalidAPIKey
	}

	cfg := &modelConfig{stream: true}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.baseURL},
	})
	if err != nil {
		return nil, err
	}
	return &Model{client: client, stream: cfg.stream}, nil
}

// Provider returns ProviderGemini.
func (m *Model) Provider() llmstream.ProviderID {
	return llmstream.ProviderGemini
}

// SupportsModel reports whether model is a Gemini model id.
func (m *Model) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "gemini-")
}

// Open sends one generateContent request. Both modes yield
// *genai.GenerateContentResponse values.
func (m *Model) Open(ctx context.Context, conv *llmstream.Conversation) (llmstream.RawChunkSource, error) {
	if !m.SupportsModel(conv.Model) {
		return nil, &llmstream.ModelError{
			Model:    conv.Model,
			Provider: m.Provider().String(),
			Reason:   "model not supported by Gemini (must start with 'gemini-')",
			Err:      llmstream.ErrInvalidModel,
		}
	}

	contents, cfg, err := buildRequest(conv)
	if err != nil {
		return nil, err
	}

	if m.stream {
		return NewSource(m.client.Models.GenerateContentStream(ctx, conv.Model, contents, cfg), conv.Model), nil
	}

	resp, err := m.client.Models.GenerateContent(ctx, conv.Model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, mapError(conv.Model, err)
	}
	return llmstream.NewSliceSource(resp), nil
}
