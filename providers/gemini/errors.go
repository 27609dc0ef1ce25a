package gemini

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// apiError extracts the SDK's HTTP error, which is returned by value from
// some call paths and by pointer from others.
func apiError(err error) (genai.APIError, bool) {
	var byValue genai.APIError
	if errors.As(err, &byValue) {
		return byValue, true
	}
	var byPointer *genai.APIError
	if errors.As(err, &byPointer) && byPointer != nil {
		return *byPointer, true
	}
	return genai.APIError{}, false
}

// mapError converts genai errors into the llmstream error taxonomy.
func mapError(model string, err error) error {
	provider := llmstream.ProviderGemini.String()

	apiErr, ok := apiError(err)
	if !ok {
		return &llmstream.ProviderError{
			Code:     llmstream.ErrorCodeTransport,
			Provider: provider,
			Message:  err.Error(),
			Err:      err,
		}
	}

	status := apiErr.Code
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
			Message:    apiErr.Message,
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
		// Gemini reports a bad key as INVALID_ARGUMENT
		if apiErr.Status == "INVALID_ARGUMENT" && containsKeyHint(apiErr.Message) {
			return &llmstream.ProviderError{
				Code:       llmstream.ErrorCodeInvalidAPIKey,
				Provider:   provider,
				StatusCode: status,
				Message:    apiErr.Message,
				Err:        llmstream.ErrInvalidAPIKey,
			}
		}
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeInvalidRequest,
			Provider:   provider,
			StatusCode: status,
			Message:    apiErr.Message,
			Err:        llmstream.ErrInvalidRequest,
		}
	case status == http.StatusGatewayTimeout:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeTimeout,
			Provider:   provider,
			StatusCode: status,
			Message:    apiErr.Message,
			Retryable:  true,
			Err:        llmstream.ErrTimeout,
		}
	default:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeProviderUnavailable,
			Provider:   provider,
			StatusCode: status,
			Message:    apiErr.Message,
			Retryable:  status >= 500,
			Err:        llmstream.ErrProviderUnavailable,
		}
	}
}

func containsKeyHint(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "api key")
}
