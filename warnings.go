package llmstream

import (
	"fmt"
)

// Severity indicates how serious a request warning is
type Severity string

const (
	SeverityInfo    Severity = "info"    // Informational (might be expected)
	SeverityWarning Severity = "warning" // Potentially problematic
)

// WarningCode is a machine-readable identifier for request warnings
type WarningCode string

const (
	WarningCodeModelUnknown             WarningCode = "MODEL_UNKNOWN"
	WarningCodeModelDoesNotSupportTools WarningCode = "MODEL_DOES_NOT_SUPPORT_TOOLS"
	WarningCodeThinkingUnsupported      WarningCode = "THINKING_UNSUPPORTED"
	WarningCodeWebSearchUnsupported     WarningCode = "WEB_SEARCH_UNSUPPORTED"
)

// ValidationWarning represents a potential issue that might cause API failure.
// These are informational: requests are never blocked on warnings, since
// provider APIs are the source of truth and capabilities may be outdated.
type ValidationWarning struct {
	Code     WarningCode // Machine-readable code
	Field    string      // Field that might cause issues
	Value    any         // The potentially problematic value
	Message  string      // Human-readable warning
	Severity Severity    // How serious this warning is
}

// ConversationWarnings checks a conversation against known model capabilities.
func ConversationWarnings(registry *CapabilityRegistry, provider ProviderID, conv *Conversation) []ValidationWarning {
	if registry == nil || conv == nil {
		return nil
	}

	modelCap, err := registry.GetModelCapability(provider.String(), conv.Model)
	if err != nil {
		return []ValidationWarning{{
			Code:     WarningCodeModelUnknown,
			Field:    "model",
			Value:    conv.Model,
			Message:  fmt.Sprintf("Model %s not found in %s capabilities (capabilities may be outdated)", conv.Model, provider),
			Severity: SeverityInfo,
		}}
	}

	var warnings []ValidationWarning
	if len(conv.Tools) > 0 && !modelCap.Features.Tools {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeModelDoesNotSupportTools,
			Field:    "tools",
			Value:    len(conv.Tools),
			Message:  fmt.Sprintf("Model %s might not support tools", conv.Model),
			Severity: SeverityWarning,
		})
	}
	if conv.Params.IsThinkingEnabled() && !modelCap.Features.Thinking {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeThinkingUnsupported,
			Field:    "thinking",
			Value:    true,
			Message:  fmt.Sprintf("Model %s might not support extended thinking", conv.Model),
			Severity: SeverityWarning,
		})
	}
	if conv.Params.IsWebSearchEnabled() && !modelCap.Features.WebSearch {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeWebSearchUnsupported,
			Field:    "web_search",
			Value:    true,
			Message:  fmt.Sprintf("Model %s might not support web search", conv.Model),
			Severity: SeverityWarning,
		})
	}
	return warnings
}
