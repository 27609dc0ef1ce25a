package llmstream

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrInvalidModel indicates the requested model is not supported by the provider.
	ErrInvalidModel = errors.New("llmstream: invalid or unsupported model")

	// ErrInvalidAPIKey indicates the API key is missing, malformed, or unauthorized.
	ErrInvalidAPIKey = errors.New("llmstream: invalid API key")

	// ErrRateLimited indicates the provider's rate limit has been exceeded.
	ErrRateLimited = errors.New("llmstream: rate limit exceeded")

	// ErrProviderUnavailable indicates the provider service is down or unreachable.
	ErrProviderUnavailable = errors.New("llmstream: provider unavailable")

	// ErrTimeout indicates the provider did not answer in time.
	ErrTimeout = errors.New("llmstream: request timed out")

	// ErrStreamIdle indicates the vendor stream produced nothing for longer
	// than the configured inactivity timeout.
	ErrStreamIdle = errors.New("llmstream: vendor stream idle timeout")

	// ErrUnknownProvider indicates no transformer is registered for a provider ID.
	ErrUnknownProvider = errors.New("llmstream: unknown provider")

	// ErrUnknownTool indicates a tool call named a tool missing from the catalog.
	ErrUnknownTool = errors.New("llmstream: unknown tool")

	// ErrInvalidToolArguments indicates tool arguments failed to parse or validate.
	ErrInvalidToolArguments = errors.New("llmstream: invalid tool arguments")

	// ErrToolRoundsExceeded indicates the model kept requesting tools past MaxToolRounds.
	ErrToolRoundsExceeded = errors.New("llmstream: too many tool rounds")

	// ErrInvalidRequest indicates the request parameters or conversation are malformed.
	ErrInvalidRequest = errors.New("llmstream: invalid request")

	// ErrInternal indicates a transformer broke the turn contract.
	ErrInternal = errors.New("llmstream: internal error")
)

// ErrorCode is the machine-readable code carried by error chunks.
type ErrorCode string

const (
	ErrorCodeTransport            ErrorCode = "transport_error"
	ErrorCodeRateLimited          ErrorCode = "rate_limited"
	ErrorCodeProviderUnavailable  ErrorCode = "provider_unavailable"
	ErrorCodeTimeout              ErrorCode = "timeout"
	ErrorCodeStreamIdle           ErrorCode = "stream_idle"
	ErrorCodeInvalidAPIKey        ErrorCode = "invalid_api_key"
	ErrorCodeInvalidModel         ErrorCode = "invalid_model"
	ErrorCodeInvalidRequest       ErrorCode = "invalid_request"
	ErrorCodeUnknownProvider      ErrorCode = "unknown_provider"
	ErrorCodeUnknownTool          ErrorCode = "tool_not_found"
	ErrorCodeToolArgumentsInvalid ErrorCode = "tool_arguments_invalid"
	ErrorCodeToolArgumentsSchema  ErrorCode = "tool_arguments_schema"
	ErrorCodeToolFailed           ErrorCode = "tool_failed"
	ErrorCodeToolRoundsExceeded   ErrorCode = "tool_rounds_exceeded"
	ErrorCodeInternal             ErrorCode = "internal_error"
)

// ModelError represents an error related to model validation or availability.
type ModelError struct {
	Model    string // The model that was requested
	Provider string // The provider name
	Reason   string // Human-readable explanation
	Err      error  // Wrapped error (usually ErrInvalidModel)
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model '%s' for provider '%s': %s (%v)", e.Model, e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("model '%s' for provider '%s': %s", e.Model, e.Provider, e.Reason)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// ValidationError represents a request validation failure.
type ValidationError struct {
	Field  string      // The field that failed validation
	Value  interface{} // The invalid value
	Reason string      // Human-readable explanation
	Err    error       // Wrapped error (usually ErrInvalidRequest)
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ProviderError represents an error from the underlying provider API,
// either on connect or reported in-stream.
type ProviderError struct {
	Code       ErrorCode // Chunk-level error code
	Provider   string    // The provider name
	StatusCode int       // HTTP status code (if applicable)
	Message    string    // Error message from provider
	Retryable  bool      // Whether this error is potentially retryable
	Err        error     // Wrapped sentinel error (ErrRateLimited, ErrProviderUnavailable, etc.)
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider '%s' error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider '%s' error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ToolError describes a failure scoped to a single tool call.
type ToolError struct {
	Code     ErrorCode
	ToolName string
	CallID   string
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool '%s' (call %s): %v", e.ToolName, e.CallID, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is potentially retryable.
// Retrying is the transport collaborator's job; the engine only reports it.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable
	}

	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrStreamIdle)
}

// IsAuthError checks if an error is related to authentication.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrInvalidAPIKey) {
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		// HTTP 401/403 indicate auth issues
		return providerErr.StatusCode == 401 || providerErr.StatusCode == 403
	}

	return false
}

// IsInvalidRequest checks if an error is a request validation failure.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsCanceled reports whether err stems from caller cancellation.
// Cancellation is a terminal state, not an error chunk.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// ErrorCodeOf maps an error to the code used in error chunks.
func ErrorCodeOf(err error) ErrorCode {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.Code != "" {
		return providerErr.Code
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr.Code != "" {
		return toolErr.Code
	}

	switch {
	case errors.Is(err, ErrStreamIdle):
		return ErrorCodeStreamIdle
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeTimeout
	case errors.Is(err, ErrRateLimited):
		return ErrorCodeRateLimited
	case errors.Is(err, ErrProviderUnavailable):
		return ErrorCodeProviderUnavailable
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCodeInvalidAPIKey
	case errors.Is(err, ErrInvalidModel):
		return ErrorCodeInvalidModel
	case errors.Is(err, ErrUnknownProvider):
		return ErrorCodeUnknownProvider
	case errors.Is(err, ErrInvalidRequest):
		return ErrorCodeInvalidRequest
	case errors.Is(err, ErrUnknownTool):
		return ErrorCodeUnknownTool
	case errors.Is(err, ErrInvalidToolArguments):
		return ErrorCodeToolArgumentsInvalid
	case errors.Is(err, ErrToolRoundsExceeded):
		return ErrorCodeToolRoundsExceeded
	case errors.Is(err, ErrInternal):
		return ErrorCodeInternal
	default:
		return ErrorCodeTransport
	}
}

// errorChunk builds an error chunk for err.
func errorChunk(err error) Chunk {
	return Chunk{
		Type:  ChunkError,
		Error: &ChunkErr{Code: ErrorCodeOf(err), Message: err.Error()},
	}
}
