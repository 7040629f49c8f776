package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAI tier model defaults.
const (
	defaultOpenAICheapModel  = "gpt-4o-mini"
	defaultOpenAIStrongModel = "gpt-4o"
)

// openAIProvider implements the Provider interface for OpenAI chat models.
type openAIProvider struct {
	client      *openai.Client
	cheapModel  string
	strongModel string
	rateLimiter *rate.Limiter
	available   bool
}

// OpenAIConfig holds configuration for the OpenAI chat provider.
type OpenAIConfig struct {
	APIKey      string
	CheapModel  string
	StrongModel string
	RateLimit   int // requests per second
}

// NewOpenAIProvider creates a new OpenAI chat provider.
func NewOpenAIProvider(cfg OpenAIConfig) *openAIProvider {
	if cfg.CheapModel == "" {
		cfg.CheapModel = defaultOpenAICheapModel
	}

	if cfg.StrongModel == "" {
		cfg.StrongModel = defaultOpenAIStrongModel
	}

	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimitRPS
	}

	return &openAIProvider{
		client:      openai.NewClient(cfg.APIKey),
		cheapModel:  cfg.CheapModel,
		strongModel: cfg.StrongModel,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), rateLimiterBurst),
		available:   cfg.APIKey != "" && cfg.APIKey != llmAPIKeyMock,
	}
}

// Name returns the provider identifier.
func (p *openAIProvider) Name() ProviderName {
	return ProviderOpenAI
}

// IsAvailable returns true if the provider is configured and available.
func (p *openAIProvider) IsAvailable() bool {
	return p.available
}

// Priority returns the provider priority.
func (p *openAIProvider) Priority() int {
	return PriorityPrimary
}

// resolveModel maps a tier to the configured OpenAI model.
func (p *openAIProvider) resolveModel(tier Tier) string {
	if tier == TierStrong {
		return p.strongModel
	}

	return p.cheapModel
}

// Complete runs one chat completion against the OpenAI API.
func (p *openAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf(errRateLimiterFmt, err)
	}

	model := p.resolveModel(req.Tier)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokensOrDefault(req.MaxTokens),
		Temperature: req.Temperature,
	}

	if req.JSONOnly {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Response{}, fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Response{}, ErrEmptyLLMResponse
	}

	return Response{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Ensure openAIProvider implements Provider interface.
var _ Provider = (*openAIProvider)(nil)
