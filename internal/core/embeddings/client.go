// Package embeddings generates the semantic vectors behind near-duplicate
// detection.
//
// A single OpenAI provider is registered when an API key is configured;
// without one a deterministic mock provider keeps the pipeline moving in
// development and tests. Providers sit behind a registry with circuit
// breakers and priority-ordered fallback.
package embeddings

import (
	"context"

	"github.com/rs/zerolog"
)

// Client defines the interface for embedding operations.
type Client interface {
	// GetEmbedding generates an embedding for the given text.
	// Returns a vector with consistent dimensions (1536 by default).
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Ensure Registry implements Client interface.
var _ Client = (*Registry)(nil)

// Config holds configuration for creating an embedding client.
type Config struct {
	// OpenAI settings
	APIKey     string
	Model      string
	Dimensions int
	RateLimit  int

	// Circuit breaker settings
	CircuitBreakerConfig CircuitBreakerConfig
}

// NewClient creates a new embedding client with configured providers.
func NewClient(cfg Config, logger *zerolog.Logger) *Registry {
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}

	registry := NewRegistry(cfg.Dimensions, logger)

	if cfg.APIKey != "" && cfg.APIKey != mockAPIKey {
		openaiProvider := NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			RateLimit:  cfg.RateLimit,
		})
		registry.Register(openaiProvider, cfg.CircuitBreakerConfig)
	}

	// Without a real provider the pipeline still needs vectors; the mock
	// produces deterministic ones so dedup stays exercisable locally.
	if registry.ProviderCount() == 0 {
		logger.Warn().Msg("no embedding providers configured, using mock provider")

		registry.Register(NewMockProvider(), cfg.CircuitBreakerConfig)
	}

	return registry
}
