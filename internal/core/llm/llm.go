// Package llm fronts the chat-model providers used for relevance scoring
// and briefing composition.
//
// Callers pick a tier instead of a model: cheap maps to the fast model used
// for high-volume scoring calls, strong to the model that writes briefing
// prose. OpenAI is the primary provider with Anthropic as fallback; with no
// keys configured a deterministic mock keeps development and tests
// self-contained. Circuit breakers are shared with the embeddings package.
package llm

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/core/embeddings"
)

// Tier selects a model class for a request.
type Tier string

// Model tiers.
const (
	TierCheap  Tier = "cheap"  // fast model for per-item scoring
	TierStrong Tier = "strong" // best model for briefing prose
)

// Request describes one chat completion.
type Request struct {
	Tier        Tier
	System      string // system-level instructions, may be empty
	Prompt      string // user message
	MaxTokens   int
	Temperature float32
	JSONOnly    bool   // request a strict JSON response where the provider supports it
	Scope       string // usage counter key, e.g. "global" or "user:<uuid>"
}

// Client is the chat-model surface the pipeline depends on.
type Client interface {
	// Complete runs one chat completion and returns the response text.
	Complete(ctx context.Context, req Request) (string, error)
}

// Ensure Registry implements Client interface.
var _ Client = (*Registry)(nil)

// Config holds provider keys and tier model names.
type Config struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	CheapModel      string
	StrongModel     string
	RateLimit       int

	CircuitBreakerConfig embeddings.CircuitBreakerConfig
}

// New creates a new LLM client with multi-provider fallback support.
// Providers register in priority order: OpenAI (primary), Anthropic
// (fallback). If no providers are configured, it returns a mock client.
func New(cfg Config, recorder UsageRecorder, logger *zerolog.Logger) Client {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	if recorder == nil {
		recorder = NoopUsageRecorder()
	}

	registry := NewRegistry(recorder, logger)
	circuitCfg := cfg.CircuitBreakerConfig

	if cfg.OpenAIAPIKey != "" && cfg.OpenAIAPIKey != llmAPIKeyMock {
		registry.Register(NewOpenAIProvider(OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			CheapModel:  cfg.CheapModel,
			StrongModel: cfg.StrongModel,
			RateLimit:   cfg.RateLimit,
		}), circuitCfg)
	}

	if cfg.AnthropicAPIKey != "" {
		registry.Register(NewAnthropicProvider(AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			RateLimit: cfg.RateLimit,
		}), circuitCfg)
	}

	if registry.ProviderCount() == 0 {
		logger.Warn().Msg("no chat providers configured, using mock provider")

		registry.Register(NewMockProvider(), circuitCfg)
	}

	return registry
}
