// Package score computes the composite signal score for clustered items.
// Four axes, each normalized to [0,1]: relevance (model-judged with a
// heuristic fallback), velocity (source engagement), cross_source (cluster
// size), novelty (recency). Score rows are append-only history; re-scoring
// inserts rather than updates.
package score

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/platform/observability"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

// Axis weights. Must sum to 1.0.
const (
	weightRelevance   = 0.40
	weightVelocity    = 0.20
	weightCrossSource = 0.20
	weightNovelty     = 0.20
)

const (
	stageName = "score"

	outcomeScored = "scored"
	outcomeFailed = "failed"

	// Velocity normalization: 200 on HN and 500 on Reddit mark saturated
	// engagement; feed items have no counters and take the midpoint.
	hnScoreCeiling     = 200.0
	redditScoreCeiling = 500.0
	defaultVelocity    = 0.5
	defaultUpvoteRatio = 0.5

	// Cross-source bands by cluster size.
	crossSourceStrong    = 1.0
	crossSourcePair      = 0.7
	crossSourceSingle    = 0.3
	strongClusterSize    = 3
	validatedClusterSize = 2

	logKeyItemID = "item_id"
)

// Novelty bands. Published timestamps get the higher band at each age; items
// that only carry a fetch time are assumed slightly stale already.
const (
	freshAge  = 6 * time.Hour
	recentAge = db.HoursPerDay * time.Hour
	agingAge  = 3 * db.HoursPerDay * time.Hour

	noveltyFresh  = 0.9
	noveltyRecent = 0.7
	noveltyAging  = 0.5
	noveltyStale  = 0.3

	noveltyFetchedFresh  = 0.8
	noveltyFetchedRecent = 0.6
	noveltyFetchedStale  = 0.4
)

// ErrSourceNotFound is returned when an item references a missing source.
var ErrSourceNotFound = errors.New("source not found")

// Repository defines the storage operations required by the score stage.
type Repository interface {
	GetItemsByStatus(ctx context.Context, status string, limit int) ([]db.RawItem, error)
	GetSource(ctx context.Context, id string) (*db.Source, error)
	GetClusterSize(ctx context.Context, rawItemID string) (int, error)
	InsertItemScore(ctx context.Context, score *db.ItemScore) error
	AdvanceStatus(ctx context.Context, id, from, to string) error
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// Options bounds a scoring worker.
type Options struct {
	BatchSize           int
	HighSignalThreshold float64
	ModelScoring        bool // recorded in score_meta so readers know which relevance path ran
}

// Worker scores one batch of clustered items per tick.
type Worker struct {
	repo         Repository
	relevance    RelevanceScorer
	batchSize    int
	highSignal   float64
	modelScoring bool
	logger       *zerolog.Logger
}

func NewWorker(repo Repository, relevance RelevanceScorer, opts Options, logger *zerolog.Logger) *Worker {
	return &Worker{
		repo:         repo,
		relevance:    relevance,
		batchSize:    opts.BatchSize,
		highSignal:   opts.HighSignalThreshold,
		modelScoring: opts.ModelScoring,
		logger:       logger,
	}
}

// ProcessBatch scores one batch of items at status clustered. Per-item
// failures are absorbed; the item stays at clustered for the next tick.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	start := time.Now()

	items, err := w.repo.GetItemsByStatus(ctx, db.StatusClustered, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get clustered items: %w", err)
	}

	processed := 0

	for i := range items {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		w.processItem(ctx, &items[i])
		processed++
	}

	if processed > 0 {
		observability.StageBatchDurationSeconds.WithLabelValues(stageName).Observe(time.Since(start).Seconds())

		w.logger.Info().Int("processed", processed).Msg("Scoring batch complete")
	}

	return processed, nil
}

func (w *Worker) processItem(ctx context.Context, item *db.RawItem) {
	score, err := w.scoreItem(ctx, item)
	if err != nil {
		observability.StageProcessed.WithLabelValues(stageName, outcomeFailed).Inc()

		w.logger.Warn().Err(err).Str(logKeyItemID, item.ID).Msg("Failed to score item")

		return
	}

	if err := w.repo.InsertItemScore(ctx, score); err != nil {
		observability.StageProcessed.WithLabelValues(stageName, outcomeFailed).Inc()

		w.logger.Warn().Err(err).Str(logKeyItemID, item.ID).Msg("Failed to save score")

		return
	}

	if err := w.repo.AdvanceStatus(ctx, item.ID, db.StatusClustered, db.StatusScored); err != nil {
		w.logger.Warn().Err(err).Str(logKeyItemID, item.ID).Msg("Failed to advance item")

		return
	}

	observability.StageProcessed.WithLabelValues(stageName, outcomeScored).Inc()
	observability.SignalScoreDistribution.Observe(score.SignalScore)

	if score.SignalScore >= w.highSignal {
		observability.HighSignalItems.Inc()
	}
}

// scoreItem computes all four axes and the weighted composite.
func (w *Worker) scoreItem(ctx context.Context, item *db.RawItem) (*db.ItemScore, error) {
	source, err := w.repo.GetSource(ctx, item.SourceID)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}

	if source == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, item.SourceID)
	}

	clusterSize, err := w.repo.GetClusterSize(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("get cluster size: %w", err)
	}

	now := time.Now().UTC()

	relevance := w.relevance.Score(ctx, item, source)
	velocity := velocityScore(item)
	crossSource := crossSourceScore(clusterSize)
	novelty := noveltyScore(item, now)

	signal := weightRelevance*relevance +
		weightVelocity*velocity +
		weightCrossSource*crossSource +
		weightNovelty*novelty

	return &db.ItemScore{
		RawItemID:   item.ID,
		ComputedAt:  now,
		Relevance:   relevance,
		Velocity:    velocity,
		CrossSource: crossSource,
		Novelty:     novelty,
		SignalScore: signal,
		ScoreMeta:   buildScoreMeta(relevance, velocity, crossSource, novelty, now, w.modelScoring),
	}, nil
}

// buildScoreMeta records the weights and per-component reasons alongside the
// score row so list endpoints can explain rankings without recomputation.
func buildScoreMeta(relevance, velocity, crossSource, novelty float64, computedAt time.Time, modelScored bool) map[string]any {
	return map[string]any{
		"weights": map[string]float64{
			"relevance":    weightRelevance,
			"velocity":     weightVelocity,
			"cross_source": weightCrossSource,
			"novelty":      weightNovelty,
		},
		"components": map[string]any{
			"relevance":    component(relevance, "Based on source credibility and content quality"),
			"velocity":     component(velocity, "Engagement metrics from source"),
			"cross_source": component(crossSource, "Number of sources covering this story"),
			"novelty":      component(novelty, "How new/unique this information is"),
		},
		"computed_at": computedAt.Format(time.RFC3339),
		"ai_scored":   modelScored,
	}
}

func component(score float64, reason string) map[string]any {
	return map[string]any{"score": score, "reason": reason}
}

// velocityScore normalizes source engagement counters. HN and Reddit items
// carry counters in their payload; everything else takes the midpoint.
func velocityScore(item *db.RawItem) float64 {
	if _, ok := item.RawPayload["hn_id"]; ok {
		points, _ := item.PayloadInt("score")

		return clamp01(float64(points) / hnScoreCeiling)
	}

	if _, ok := item.RawPayload["reddit_id"]; ok {
		points, _ := item.PayloadInt("score")

		ratio, ok := item.PayloadFloat("upvote_ratio")
		if !ok {
			ratio = defaultUpvoteRatio
		}

		return clamp01(float64(points) / redditScoreCeiling * ratio)
	}

	return defaultVelocity
}

// crossSourceScore maps cluster size to the validation bands. Size 0 means
// the item was never clustered and scores as a singleton.
func crossSourceScore(clusterSize int) float64 {
	switch {
	case clusterSize >= strongClusterSize:
		return crossSourceStrong
	case clusterSize == validatedClusterSize:
		return crossSourcePair
	default:
		return crossSourceSingle
	}
}

// noveltyScore maps item age to recency bands. Ages exactly on a boundary
// take the lower band; only strictly younger items get the higher one.
func noveltyScore(item *db.RawItem, now time.Time) float64 {
	if item.PublishedAt != nil {
		switch age := now.Sub(*item.PublishedAt); {
		case age < freshAge:
			return noveltyFresh
		case age < recentAge:
			return noveltyRecent
		case age < agingAge:
			return noveltyAging
		default:
			return noveltyStale
		}
	}

	switch age := now.Sub(item.FetchedAt); {
	case age < freshAge:
		return noveltyFetchedFresh
	case age < recentAge:
		return noveltyFetchedRecent
	default:
		return noveltyFetchedStale
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
