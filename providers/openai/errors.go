package openai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// streamError converts an error reported inside the stream.
func streamError(provider llmstream.ProviderID, e *APIError) error {
	code := strings.Trim(string(e.Code), `"`)
	perr := &llmstream.ProviderError{
		Code:     llmstream.ErrorCodeProviderUnavailable,
		Provider: provider.String(),
		Message:  e.Message,
		Err:      llmstream.ErrProviderUnavailable,
	}
	switch code {
	case "rate_limit_exceeded", "429":
		perr.Code, perr.Err, perr.Retryable = llmstream.ErrorCodeRateLimited, llmstream.ErrRateLimited, true
	case "server_error", "500", "502", "503":
		perr.Retryable = true
	}
	return perr
}

// handleErrorResponse maps a non-200 HTTP response to library errors.
func handleErrorResponse(provider llmstream.ProviderID, model string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error APIError `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeInvalidAPIKey,
			Provider:   provider.String(),
			StatusCode: resp.StatusCode,
			Message:    message,
			Err:        llmstream.ErrInvalidAPIKey,
		}
	case http.StatusTooManyRequests:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeRateLimited,
			Provider:   provider.String(),
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  true,
			Err:        llmstream.ErrRateLimited,
		}
	case http.StatusPaymentRequired:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeProviderUnavailable,
			Provider:   provider.String(),
			StatusCode: resp.StatusCode,
			Message:    "insufficient credits: " + message,
			Err:        llmstream.ErrProviderUnavailable,
		}
	case http.StatusRequestTimeout:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeTimeout,
			Provider:   provider.String(),
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  true,
			Err:        llmstream.ErrTimeout,
		}
	case http.StatusNotFound:
		return &llmstream.ModelError{
			Model:    model,
			Provider: provider.String(),
			Reason:   message,
			Err:      llmstream.ErrInvalidModel,
		}
	case http.StatusBadRequest:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeInvalidRequest,
			Provider:   provider.String(),
			StatusCode: resp.StatusCode,
			Message:    message,
			Err:        llmstream.ErrInvalidRequest,
		}
	default:
		return &llmstream.ProviderError{
			Code:       llmstream.ErrorCodeProviderUnavailable,
			Provider:   provider.String(),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, message),
			Retryable:  resp.StatusCode >= 500,
			Err:        llmstream.ErrProviderUnavailable,
		}
	}
}

func marshalProviderData(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
