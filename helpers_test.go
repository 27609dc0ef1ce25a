package llmstream

// Test helper functions shared across test files; stringPtr lives in turn_state.go.

func intPtr(i int) *int {
	return &i
}

func float64Ptr(f float64) *float64 {
	return &f
}

func boolPtr(b bool) *bool {
	return &b
}
