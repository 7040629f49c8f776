package score

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidesignal/newsbrief/internal/core/llm"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

var errModelDown = errors.New("model down")

type stubLLM struct {
	response string
	err      error
	requests []llm.Request
}

func (s *stubLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.requests = append(s.requests, req)

	if s.err != nil {
		return "", s.err
	}

	return s.response, nil
}

type stubUsage struct {
	used int
	err  error
}

func (s stubUsage) CountUsageSince(_ context.Context, _, _ string, _ time.Time) (int, error) {
	return s.used, s.err
}

func TestHeuristicScore(t *testing.T) {
	longBody := strings.Repeat("x", 300)

	tests := []struct {
		name   string
		item   db.RawItem
		source db.Source
		want   float64
	}{
		{
			name:   "tier four with substantive body",
			item:   db.RawItem{Title: "Acme ships a new database engine", RawText: longBody},
			source: db.Source{CredibilityTier: 4},
			want:   0.9,
		},
		{
			name:   "tier five clamps at one",
			item:   db.RawItem{Title: "Acme ships a new database engine", RawText: longBody},
			source: db.Source{CredibilityTier: 5},
			want:   1.0,
		},
		{
			name:   "short title penalized",
			item:   db.RawItem{Title: "Acme ships"},
			source: db.Source{CredibilityTier: 3},
			want:   0.5,
		},
		{
			name:   "thin low tier item",
			item:   db.RawItem{Title: "A collection of ordinary updates"},
			source: db.Source{CredibilityTier: 1},
			want:   0.2,
		},
		{
			name:   "body exactly at threshold gets boost",
			item:   db.RawItem{Title: "Acme ships a new database engine", RawText: strings.Repeat("x", 200)},
			source: db.Source{CredibilityTier: 3},
			want:   0.7,
		},
		{
			name:   "title exactly at threshold not penalized",
			item:   db.RawItem{Title: strings.Repeat("t", 20)},
			source: db.Source{CredibilityTier: 3},
			want:   0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewHeuristic().Score(context.Background(), &tt.item, &tt.source)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestModelScore(t *testing.T) {
	client := &stubLLM{response: `{"score": 8, "reason": "major infrastructure release"}`}
	scorer := NewModelJudge(client, stubUsage{}, 100, testLogger())

	published := time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)
	item := db.RawItem{
		ID:          "item-1",
		Title:       "Acme ships a new database engine",
		RawText:     "The engine rewrites the storage layer.",
		PublishedAt: &published,
	}
	source := db.Source{Name: "Acme Blog", CredibilityTier: 4, Category: "infrastructure"}

	got := scorer.Score(context.Background(), &item, &source)
	assert.InDelta(t, 0.8, got, 1e-9)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, llm.TierCheap, req.Tier)
	assert.Equal(t, llm.RelevanceSystemPrompt, req.System)
	assert.Equal(t, 100, req.MaxTokens)
	assert.InDelta(t, 0.1, req.Temperature, 1e-6)
	assert.True(t, req.JSONOnly)
	assert.Equal(t, db.ScopeGlobal, req.Scope)
	assert.Contains(t, req.Prompt, "Acme ships a new database engine")
	assert.Contains(t, req.Prompt, "Acme Blog")
	assert.Contains(t, req.Prompt, "2026-02-09T10:00:00Z")
}

func TestModelScoreTruncatesPreview(t *testing.T) {
	client := &stubLLM{response: `{"score": 5, "reason": "ok"}`}
	scorer := NewModelJudge(client, stubUsage{}, 100, testLogger())

	item := db.RawItem{Title: "Long item", RawText: strings.Repeat("x", 2000)}
	source := db.Source{Name: "Acme Blog", CredibilityTier: 3}

	scorer.Score(context.Background(), &item, &source)

	require.Len(t, client.requests, 1)
	assert.NotContains(t, client.requests[0].Prompt, strings.Repeat("x", previewChars+1))
	assert.Contains(t, client.requests[0].Prompt, strings.Repeat("x", previewChars))
}

func TestModelScoreFallsBackOnTransportError(t *testing.T) {
	client := &stubLLM{err: errModelDown}
	scorer := NewModelJudge(client, stubUsage{}, 100, testLogger())

	item := db.RawItem{Title: "Acme ships a new database engine"}
	source := db.Source{CredibilityTier: 4}

	// Heuristic path: 4/5 = 0.8.
	got := scorer.Score(context.Background(), &item, &source)
	assert.InDelta(t, 0.8, got, 1e-9)
}

func TestModelScoreFallsBackOnBadResponse(t *testing.T) {
	client := &stubLLM{response: "the item seems quite relevant"}
	scorer := NewModelJudge(client, stubUsage{}, 100, testLogger())

	item := db.RawItem{Title: "Acme ships a new database engine"}
	source := db.Source{CredibilityTier: 4}

	got := scorer.Score(context.Background(), &item, &source)
	assert.InDelta(t, 0.8, got, 1e-9)
}

func TestModelScoreFallsBackWhenBudgetSpent(t *testing.T) {
	client := &stubLLM{response: `{"score": 9, "reason": "big"}`}
	scorer := NewModelJudge(client, stubUsage{used: 100}, 100, testLogger())

	item := db.RawItem{Title: "Acme ships a new database engine"}
	source := db.Source{CredibilityTier: 4}

	got := scorer.Score(context.Background(), &item, &source)
	assert.InDelta(t, 0.8, got, 1e-9)
	assert.Empty(t, client.requests)
}

func TestModelScoreFallsBackOnUsageReadError(t *testing.T) {
	client := &stubLLM{response: `{"score": 9, "reason": "big"}`}
	scorer := NewModelJudge(client, stubUsage{err: errStorageDown}, 100, testLogger())

	item := db.RawItem{Title: "Acme ships a new database engine"}
	source := db.Source{CredibilityTier: 4}

	got := scorer.Score(context.Background(), &item, &source)
	assert.InDelta(t, 0.8, got, 1e-9)
	assert.Empty(t, client.requests)
}

func TestModelScoreUnlimitedWhenCapDisabled(t *testing.T) {
	client := &stubLLM{response: `{"score": 6, "reason": "fine"}`}
	scorer := NewModelJudge(client, stubUsage{used: 9999}, 0, testLogger())

	item := db.RawItem{Title: "Acme ships a new database engine"}
	source := db.Source{CredibilityTier: 4}

	got := scorer.Score(context.Background(), &item, &source)
	assert.InDelta(t, 0.6, got, 1e-9)
	require.Len(t, client.requests, 1)
}
