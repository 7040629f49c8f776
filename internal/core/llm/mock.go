package llm

import (
	"context"
)

// Mock response constants.
const (
	mockRelevanceScore = 7
	mockModelID        = "mock-chat-v1"
)

// mockProvider implements the Provider interface for testing purposes.
// It answers the cheap tier with a relevance-shaped JSON object and the
// strong tier with a briefing-shaped one, matching what the pipeline
// expects to parse.
type mockProvider struct{}

// NewMockProvider creates a new mock LLM provider.
func NewMockProvider() *mockProvider {
	return &mockProvider{}
}

// Name returns the provider identifier.
func (p *mockProvider) Name() ProviderName {
	return ProviderMock
}

// IsAvailable returns true as mock is always available.
func (p *mockProvider) IsAvailable() bool {
	return true
}

// Priority returns the provider priority.
func (p *mockProvider) Priority() int {
	return PriorityMock
}

// Complete returns a canned response for the request tier.
func (p *mockProvider) Complete(_ context.Context, req Request) (Response, error) {
	text := "Mock response."

	if req.JSONOnly {
		switch req.Tier {
		case TierStrong:
			text = `{"briefing": "# Daily Intelligence Briefing\n\nMock briefing body.", "items_used": []}`
		default:
			text = `{"score": 7, "reason": "mock relevance"}`
		}
	}

	return Response{
		Text:  text,
		Model: mockModelID,
	}, nil
}

// Ensure mockProvider implements Provider interface.
var _ Provider = (*mockProvider)(nil)
