package llm

import (
	"context"
	"errors"
)

// ProviderName identifies an LLM provider.
type ProviderName string

// Provider name constants.
const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderMock      ProviderName = "mock"
)

// Priority constants for provider ordering.
const (
	PriorityPrimary  = 100 // Primary provider (OpenAI)
	PriorityFallback = 50  // First fallback (Anthropic)
	PriorityMock     = 0   // Mock provider for testing
)

// Request defaults.
const (
	DefaultMaxTokens = 1024

	rateLimiterBurst    = 5
	defaultRateLimitRPS = 1
)

// API key sentinel that forces the mock provider.
const llmAPIKeyMock = "mock"

// Shared error format strings.
const errRateLimiterFmt = "rate limiter: %w"

// ErrEmptyLLMResponse indicates the provider returned no content.
var ErrEmptyLLMResponse = errors.New("empty response from LLM")

// Response carries the completion text and token accounting.
type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Provider defines the interface for LLM providers.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// IsAvailable returns true if the provider is configured and available.
	IsAvailable() bool

	// Priority returns the provider priority (higher = preferred).
	Priority() int

	// Complete runs one chat completion.
	Complete(ctx context.Context, req Request) (Response, error)
}

// maxTokensOrDefault applies the default token budget to unset requests.
func maxTokensOrDefault(maxTokens int) int {
	if maxTokens <= 0 {
		return DefaultMaxTokens
	}

	return maxTokens
}
