package anthropic

import (
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// mapError converts SDK errors into the llmstream error taxonomy.
// HTTP failures arrive as *anthropic.Error; in-stream error events arrive
// as plain errors from the SSE decoder.
func mapError(model string, err error) error {
	provider := llmstream.ProviderAnthropic.String()

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		msg := err.Error()
		retryable := strings.Contains(msg, "overloaded") || strings.Contains(msg, "api_error")
		return &llmstream.ProviderError{
			Code:      llmstream.ErrorCodeProviderUnavailable,
			Provider:  provider,
			Message:   msg,
			Retryable: retryable,
			Err:       llmstream.ErrProviderUnavailable,
		}
	}

	status := apiErr.StatusCode
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeInvalidAPIKey,
			Provider:   provider,
			StatusCode: status,
			Message:    "authentication failed",
			Err:        llmstream.ErrInvalidAPIKey,
		}
	case status == http.StatusTooManyRequests:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeRateLimited,
			Provider:   provider,
			StatusCode: status,
			Message:    apiErr.Error(),
			Retryable:  true,
			Err:        llmstream.ErrRateLimited,
		}
	case status == http.StatusNotFound:
		return &llmstream.ModelError{
			Model:    model,
			Provider: provider,
			Reason:   "model not found",
			Err:      llmstream.ErrInvalidModel,
		}
	case status == http.StatusBadRequest:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeInvalidRequest,
			Provider:   provider,
			StatusCode: status,
			Message:    apiErr.Error(),
			Err:        llmstream.ErrInvalidRequest,
		}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeTimeout,
			Provider:   provider,
			StatusCode: status,
			Message:    apiErr.Error(),
			Retryable:  true,
			Err:        llmstream.ErrTimeout,
		}
	default:
		// 500, 529 (overloaded) and anything unexpected
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeProviderUnavailable,
			Provider:   provider,
			StatusCode: status,
			Message:    apiErr.Error(),
			Retryable:  status >= 500,
			Err:        llmstream.ErrProviderUnavailable,
		}
	}
}
