package anthropic

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// Model opens Claude turns through the Anthropic SDK. It performs exactly
// one API call per Open; the SDK's own retries are disabled so that
// retrying stays the caller's decision.
type Model struct {
	client *anthropic.Client
	stream bool
}

// ModelOption configures a Model.
type ModelOption func(*modelConfig)

type modelConfig struct {
	stream  bool
	reqOpts []option.RequestOption
}

// WithStreaming selects streamed (default) or whole-message responses.
func WithStreaming(stream bool) ModelOption {
	return func(c *modelConfig) { c.stream = stream }
}

// WithRequestOptions passes options to the SDK client, e.g. option.WithBaseURL.
func WithRequestOptions(opts ...option.RequestOption) ModelOption {
	return func(c *modelConfig) { c.reqOpts = append(c.reqOpts, opts...) }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) ModelOption {
	return WithRequestOptions(option.WithBaseURL(url))
}

// NewModel creates an Anthropic model with the given API key.
func NewModel(apiKey string, opts ...ModelOption) (*Model, error) {
	if apiKey == "" {
		return nil, llmstream.ErrInvalidAPIKey
	}

	cfg := &modelConfig{stream: true}
	for _, opt := range opts {
		opt(cfg)
	}

	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, cfg.reqOpts...)
	client := anthropic.NewClient(reqOpts...)

	return &Model{client: &client, stream: cfg.stream}, nil
}

// Provider returns ProviderAnthropic.
func (m *Model) Provider() llmstream.ProviderID {
	return llmstream.ProviderAnthropic
}

// SupportsModel returns true if this provider supports the given model.
// Anthropic models start with "claude-"
func (m *Model) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// Open sends one Messages request. Streamed turns yield
// anthropic.MessageStreamEventUnion values; whole-message turns yield a
// single *anthropic.Message.
func (m *Model) Open(ctx context.Context, conv *llmstream.Conversation) (llmstream.RawChunkSource, error) {
	if !m.SupportsModel(conv.Model) {
		return nil, &llmstream.ModelError{
			Model:    conv.Model,
			Provider: m.Provider().String(),
			Reason:   "model not supported by Anthropic (must start with 'claude-')",
			Err:      llmstream.ErrInvalidModel,
		}
	}

	params, err := buildMessageParams(conv)
	if err != nil {
		return nil, err
	}

	if m.stream {
		// Connection errors surface on the first Next
		return NewSource(m.client.Messages.NewStreaming(ctx, params), conv.Model), nil
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, mapError(conv.Model, err)
	}
	return llmstream.NewSliceSource(message), nil
}
