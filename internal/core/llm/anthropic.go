package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

// Anthropic tier model constants.
const (
	ModelClaudeHaiku  = "claude-3-5-haiku-latest"
	ModelClaudeSonnet = "claude-3-5-sonnet-latest"

	// Content block type for text responses.
	contentTypeText = "text"
)

// anthropicProvider implements the Provider interface for Anthropic Claude.
type anthropicProvider struct {
	client      anthropic.Client
	rateLimiter *rate.Limiter
	available   bool
}

// AnthropicConfig holds configuration for the Anthropic chat provider.
type AnthropicConfig struct {
	APIKey    string
	RateLimit int // requests per second
}

// NewAnthropicProvider creates a new Anthropic LLM provider.
func NewAnthropicProvider(cfg AnthropicConfig) *anthropicProvider {
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimitRPS
	}

	return &anthropicProvider{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), rateLimiterBurst),
		available:   cfg.APIKey != "",
	}
}

// Name returns the provider identifier.
func (p *anthropicProvider) Name() ProviderName {
	return ProviderAnthropic
}

// IsAvailable returns true if the provider is configured and available.
func (p *anthropicProvider) IsAvailable() bool {
	return p.available
}

// Priority returns the provider priority.
func (p *anthropicProvider) Priority() int {
	return PriorityFallback
}

// resolveModel maps a tier to a Claude model.
func (p *anthropicProvider) resolveModel(tier Tier) string {
	if tier == TierStrong {
		return ModelClaudeSonnet
	}

	return ModelClaudeHaiku
}

// Complete runs one message completion against the Anthropic API. System
// instructions are folded into the user message; Claude follows them there
// and it keeps the request shape minimal.
func (p *anthropicProvider) Complete(ctx context.Context, req Request) (Response, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf(errRateLimiterFmt, err)
	}

	model := anthropic.Model(p.resolveModel(req.Tier))

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}

	if req.JSONOnly {
		prompt += "\n\nRespond with valid JSON only."
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("anthropic messages: %w", err)
	}

	if len(resp.Content) == 0 {
		return Response{}, ErrEmptyLLMResponse
	}

	return Response{
		Text:             strings.TrimSpace(extractTextFromResponse(resp)),
		Model:            string(model),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// extractTextFromResponse extracts text content from an Anthropic response.
func extractTextFromResponse(resp *anthropic.Message) string {
	var result strings.Builder

	for _, block := range resp.Content {
		if block.Type == contentTypeText {
			result.WriteString(block.Text)
		}
	}

	return result.String()
}

// Ensure anthropicProvider implements Provider interface.
var _ Provider = (*anthropicProvider)(nil)
