// Package embed turns extracted items into dense vectors for the
// near-duplicate index. Input is the item title plus the best available
// body; output is one item_embeddings row recording which model produced
// the vector. Provider failures leave items at extracted so the next tick
// retries them.
package embed

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/core/embeddings"
	"github.com/tidesignal/newsbrief/internal/platform/observability"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

const (
	stageName = "embed"

	// maxTextLength bounds the embedding input; roughly the ada-002 token
	// window with headroom.
	maxTextLength = 8000

	outcomeEmbedded = "embedded"
	outcomeFailed   = "failed"

	logKeyItemID = "item_id"
)

// Repository defines the storage operations required by the embed stage.
type Repository interface {
	GetItemsByStatus(ctx context.Context, status string, limit int) ([]db.RawItem, error)
	GetExtractedContent(ctx context.Context, rawItemID string) (*db.ExtractedContent, error)
	SaveItemEmbedding(ctx context.Context, e *db.ItemEmbedding) error
	AdvanceStatus(ctx context.Context, id, from, to string) error
	CountUsageSince(ctx context.Context, kind, scope string, since time.Time) (int, error)
	IncrementUsage(ctx context.Context, kind, scope string, calls, tokens int) error
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// Embedder produces vectors with provenance for stored rows.
type Embedder interface {
	GetEmbeddingWithMetadata(ctx context.Context, text string) (embeddings.EmbeddingResult, error)
}

// Worker drains the extracted backlog one batch per tick, bounded by the
// hourly call cap.
type Worker struct {
	repo       Repository
	embedder   Embedder
	batchSize  int
	maxPerHour int
	logger     *zerolog.Logger
}

func NewWorker(repo Repository, embedder Embedder, batchSize, maxPerHour int, logger *zerolog.Logger) *Worker {
	return &Worker{
		repo:       repo,
		embedder:   embedder,
		batchSize:  batchSize,
		maxPerHour: maxPerHour,
		logger:     logger,
	}
}

// ProcessBatch embeds one batch of items at status extracted. When the
// hourly cap is hit the remainder is deferred to a later tick rather than
// dropped.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	start := time.Now()

	items, err := w.repo.GetItemsByStatus(ctx, db.StatusExtracted, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get extracted items: %w", err)
	}

	if len(items) == 0 {
		return 0, nil
	}

	remaining, err := w.remainingBudget(ctx)
	if err != nil {
		return 0, err
	}

	if remaining == 0 {
		observability.UsageCapHits.WithLabelValues(db.UsageKindEmbedding).Inc()

		w.logger.Warn().
			Int("max_per_hour", w.maxPerHour).
			Int("backlog", len(items)).
			Msg("Hourly embedding cap reached, deferring batch")

		return 0, nil
	}

	if len(items) > remaining {
		items = items[:remaining]
	}

	processed := 0

	for i := range items {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		w.processItem(ctx, &items[i])
		processed++
	}

	observability.StageBatchDurationSeconds.WithLabelValues(stageName).Observe(time.Since(start).Seconds())

	w.logger.Info().Int("processed", processed).Msg("Embedding batch complete")

	return processed, nil
}

// remainingBudget returns how many embedding calls the hourly cap still
// allows. A non-positive cap disables the limit.
func (w *Worker) remainingBudget(ctx context.Context) (int, error) {
	if w.maxPerHour <= 0 {
		return w.batchSize, nil
	}

	used, err := w.repo.CountUsageSince(ctx, db.UsageKindEmbedding, db.ScopeGlobal, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		return 0, fmt.Errorf("count embedding usage: %w", err)
	}

	if used >= w.maxPerHour {
		return 0, nil
	}

	return w.maxPerHour - used, nil
}

func (w *Worker) processItem(ctx context.Context, item *db.RawItem) {
	text, err := w.embeddingText(ctx, item)
	if err != nil {
		w.logger.Warn().Err(err).Str(logKeyItemID, item.ID).Msg("Failed to assemble embedding text")

		return
	}

	if text == "" {
		observability.StageProcessed.WithLabelValues(stageName, outcomeFailed).Inc()

		w.logger.Warn().Str(logKeyItemID, item.ID).Msg("No text available for embedding")

		return
	}

	result, err := w.embedder.GetEmbeddingWithMetadata(ctx, text)
	if err != nil {
		observability.StageProcessed.WithLabelValues(stageName, outcomeFailed).Inc()

		// Stays at extracted; the next tick retries.
		w.logger.Warn().Err(err).Str(logKeyItemID, item.ID).Msg("Embedding generation failed")

		return
	}

	if err := w.repo.IncrementUsage(ctx, db.UsageKindEmbedding, db.ScopeGlobal, 1, 0); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to record embedding usage")
	}

	row := &db.ItemEmbedding{
		RawItemID: item.ID,
		ModelID:   result.Model,
		Dim:       result.Dimensions,
		Embedding: result.Vector,
	}

	if err := w.repo.SaveItemEmbedding(ctx, row); err != nil {
		w.logger.Warn().Err(err).Str(logKeyItemID, item.ID).Msg("Failed to save embedding")

		return
	}

	if err := w.repo.AdvanceStatus(ctx, item.ID, db.StatusExtracted, db.StatusEmbedded); err != nil {
		w.logger.Warn().Err(err).Str(logKeyItemID, item.ID).Msg("Failed to advance item")

		return
	}

	observability.StageProcessed.WithLabelValues(stageName, outcomeEmbedded).Inc()
}

// embeddingText assembles the vector input: title plus the extracted body
// when one exists, else title plus the harvest snippet.
func (w *Worker) embeddingText(ctx context.Context, item *db.RawItem) (string, error) {
	ec, err := w.repo.GetExtractedContent(ctx, item.ID)
	if err != nil {
		return "", fmt.Errorf("get extracted content: %w", err)
	}

	if ec != nil && ec.Text != "" {
		return truncate(strings.TrimSpace(item.Title+" "+ec.Text), maxTextLength), nil
	}

	parts := make([]string, 0, 2)

	if item.Title != "" {
		parts = append(parts, item.Title)
	}

	if item.RawText != "" {
		parts = append(parts, item.RawText)
	}

	return truncate(strings.TrimSpace(strings.Join(parts, " ")), maxTextLength), nil
}

// truncate clips s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
