// Package llm provides the hosted-model clients used for SQL generation.
package llm

import (
	"context"
)

// GenerateResponseResult is the text of a completion plus token usage.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMClient defines the interface for LLM operations.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	// GenerateResponse sends a single system + user prompt and returns the
	// completion text.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure the provider clients implement LLMClient at compile time.
var (
	_ LLMClient = (*Client)(nil)
	_ LLMClient = (*AnthropicClient)(nil)
)
