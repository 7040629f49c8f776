package score

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/core/llm"
	"github.com/tidesignal/newsbrief/internal/platform/observability"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

const (
	maxCredibilityTier   = 5.0
	substantiveBodyChars = 200
	bodyBoost            = 0.1
	shortTitleChars      = 20
	shortTitlePenalty    = 0.1

	previewChars         = 500
	relevanceMaxTokens   = 100
	relevanceTemperature = 0.1
	modelScoreScale      = 10.0

	budgetWindow = db.HoursPerDay * time.Hour
)

// RelevanceScorer judges the relevance axis for one item. Implementations
// must always return a usable score; degraded paths fall back internally.
type RelevanceScorer interface {
	Score(ctx context.Context, item *db.RawItem, source *db.Source) float64
}

// heuristicScorer derives relevance from source credibility and content
// shape. It is the configured scorer when no chat model is available and the
// fallback when one is.
type heuristicScorer struct{}

// NewHeuristic returns the credibility-based relevance scorer.
func NewHeuristic() RelevanceScorer {
	return heuristicScorer{}
}

func (heuristicScorer) Score(_ context.Context, item *db.RawItem, source *db.Source) float64 {
	score := float64(source.CredibilityTier) / maxCredibilityTier

	if len(item.RawText) >= substantiveBodyChars {
		score += bodyBoost
	}

	if len(item.Title) < shortTitleChars {
		score -= shortTitlePenalty
	}

	return clamp01(score)
}

// UsageReader exposes the spend counters the model scorer checks its daily
// budget against.
type UsageReader interface {
	CountUsageSince(ctx context.Context, kind, scope string, since time.Time) (int, error)
}

// Compile-time assertion that *db.DB implements UsageReader.
var _ UsageReader = (*db.DB)(nil)

// modelScorer asks the cheap-tier chat model to judge relevance, falling
// back to heuristics on any failure or when the daily call budget is spent.
// Scoring never blocks on the model.
type modelScorer struct {
	client    llm.Client
	usage     UsageReader
	fallback  RelevanceScorer
	maxPerDay int
	logger    *zerolog.Logger
}

// NewModelJudge returns a relevance scorer backed by the chat model.
func NewModelJudge(client llm.Client, usage UsageReader, maxPerDay int, logger *zerolog.Logger) RelevanceScorer {
	return &modelScorer{
		client:    client,
		usage:     usage,
		fallback:  NewHeuristic(),
		maxPerDay: maxPerDay,
		logger:    logger,
	}
}

func (s *modelScorer) Score(ctx context.Context, item *db.RawItem, source *db.Source) float64 {
	if !s.withinBudget(ctx) {
		return s.fallback.Score(ctx, item, source)
	}

	published := ""
	if item.PublishedAt != nil {
		published = item.PublishedAt.Format(time.RFC3339)
	}

	prompt := llm.BuildRelevancePrompt(llm.RelevanceInput{
		Title:           item.Title,
		SourceName:      source.Name,
		CredibilityTier: int(source.CredibilityTier),
		PublishedAt:     published,
		Category:        source.Category,
		ContentPreview:  preview(item.RawText, previewChars),
	})

	text, err := s.client.Complete(ctx, llm.Request{
		Tier:        llm.TierCheap,
		System:      llm.RelevanceSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   relevanceMaxTokens,
		Temperature: relevanceTemperature,
		JSONOnly:    true,
		Scope:       db.ScopeGlobal,
	})
	if err != nil {
		s.logger.Debug().Err(err).Str(logKeyItemID, item.ID).Msg("Model relevance failed, using heuristics")

		return s.fallback.Score(ctx, item, source)
	}

	result, err := llm.ParseRelevanceResult(text)
	if err != nil {
		s.logger.Debug().Err(err).Str(logKeyItemID, item.ID).Msg("Unparseable relevance response, using heuristics")

		return s.fallback.Score(ctx, item, source)
	}

	return clamp01(float64(result.Score) / modelScoreScale)
}

// withinBudget reports whether the rolling daily call budget still has room.
// Counter read failures count as exhausted so a broken counter cannot cause
// unbounded spend.
func (s *modelScorer) withinBudget(ctx context.Context) bool {
	if s.maxPerDay <= 0 {
		return true
	}

	used, err := s.usage.CountUsageSince(ctx, db.UsageKindLLM, db.ScopeGlobal, time.Now().UTC().Add(-budgetWindow))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read LLM usage, using heuristics")

		return false
	}

	if used >= s.maxPerDay {
		observability.UsageCapHits.WithLabelValues(db.UsageKindLLM).Inc()

		return false
	}

	return true
}

// preview clips s to at most maxLen bytes without splitting a rune.
func preview(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
