// Package dedup assigns embedded items to story clusters. An exact pass
// catches URL and title repeats across sources; a semantic pass queries the
// pgvector index for near-duplicates above the similarity threshold. Items
// matching neither open a new cluster as their own canonical.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/platform/observability"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

const (
	stageName = "cluster"

	// windowDays bounds how far back the title and semantic passes look.
	windowDays = 7

	// semanticMatchLimit caps the neighbor query; only the best match is
	// joined, the rest are logged for tuning.
	semanticMatchLimit = 5

	exactSimilarity = 1.0

	outcomeExactURL   = "exact_url"
	outcomeExactTitle = "exact_title"
	outcomeSemantic   = "semantic"
	outcomeSingleton  = "singleton"
	outcomeExisting   = "existing"
	outcomeFailed     = "failed"

	logKeyItemID    = "item_id"
	logKeyClusterID = "cluster_id"
)

// Repository defines the storage operations required by the cluster stage.
type Repository interface {
	GetUnclusteredEmbedded(ctx context.Context, limit int) ([]db.RawItem, error)
	GetClusterMembership(ctx context.Context, rawItemID string) (*db.ClusterMember, error)
	FindItemByURL(ctx context.Context, url, excludeID string) (*db.RawItem, error)
	FindItemByTitle(ctx context.Context, title string, cutoff time.Time, excludeID string) (*db.RawItem, error)
	GetItemEmbedding(ctx context.Context, rawItemID string) (*db.ItemEmbedding, error)
	FindSemanticMatches(ctx context.Context, excludeID string, embedding []float32, threshold float32, cutoff time.Time, limit int) ([]db.SemanticMatch, error)
	AssignToCluster(ctx context.Context, rawItemID, canonicalItemID string, similarity float32) (string, error)
	CreateSingletonCluster(ctx context.Context, rawItemID string) (string, error)
	AdvanceStatus(ctx context.Context, id, from, to string) error
	MergeClusters(ctx context.Context, clusterIDs []string) (int64, error)
	ArchiveOldClusters(ctx context.Context, cutoff time.Time) (int64, error)
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// Worker clusters one batch of embedded items per tick.
type Worker struct {
	repo      Repository
	threshold float32
	batchSize int
	logger    *zerolog.Logger
}

func NewWorker(repo Repository, threshold float64, batchSize int, logger *zerolog.Logger) *Worker {
	return &Worker{
		repo:      repo,
		threshold: float32(threshold),
		batchSize: batchSize,
		logger:    logger,
	}
}

// ProcessBatch assigns embedded items to clusters and advances them to
// clustered. Assignment failures leave the item at embedded for retry.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	start := time.Now()

	items, err := w.repo.GetUnclusteredEmbedded(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get unclustered items: %w", err)
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

		w.logger.Info().Int("processed", processed).Msg("Clustering batch complete")
	}

	return processed, nil
}

func (w *Worker) processItem(ctx context.Context, item *db.RawItem) {
	outcome, err := w.clusterItem(ctx, item)
	if err != nil {
		observability.ClusterAssignments.WithLabelValues(outcomeFailed).Inc()

		// Stays at embedded; the next tick retries.
		w.logger.Warn().Err(err).Str(logKeyItemID, item.ID).Msg("Cluster assignment failed")

		return
	}

	if err := w.repo.AdvanceStatus(ctx, item.ID, db.StatusEmbedded, db.StatusClustered); err != nil {
		w.logger.Warn().Err(err).Str(logKeyItemID, item.ID).Msg("Failed to advance item")

		return
	}

	observability.ClusterAssignments.WithLabelValues(outcome).Inc()
}

// clusterItem runs the exact pass, then the semantic pass, and opens a
// singleton cluster when neither finds a neighbor. Returns the assignment
// outcome for metrics.
func (w *Worker) clusterItem(ctx context.Context, item *db.RawItem) (string, error) {
	membership, err := w.repo.GetClusterMembership(ctx, item.ID)
	if err != nil {
		return "", fmt.Errorf("check membership: %w", err)
	}

	if membership != nil {
		return outcomeExisting, nil
	}

	cutoff := time.Now().UTC().Add(-windowDays * db.HoursPerDay * time.Hour)

	if item.URL != "" {
		match, err := w.repo.FindItemByURL(ctx, item.URL, item.ID)
		if err != nil {
			return "", fmt.Errorf("find by url: %w", err)
		}

		if match != nil {
			return outcomeExactURL, w.join(ctx, item, match.ID, exactSimilarity)
		}
	}

	if item.Title != "" {
		match, err := w.repo.FindItemByTitle(ctx, item.Title, cutoff, item.ID)
		if err != nil {
			return "", fmt.Errorf("find by title: %w", err)
		}

		if match != nil {
			return outcomeExactTitle, w.join(ctx, item, match.ID, exactSimilarity)
		}
	}

	best, err := w.bestSemanticMatch(ctx, item.ID, cutoff)
	if err != nil {
		return "", err
	}

	if best != nil {
		return outcomeSemantic, w.join(ctx, item, best.RawItemID, best.Similarity)
	}

	clusterID, err := w.repo.CreateSingletonCluster(ctx, item.ID)
	if err != nil {
		return "", fmt.Errorf("create singleton: %w", err)
	}

	w.logger.Debug().
		Str(logKeyItemID, item.ID).
		Str(logKeyClusterID, clusterID).
		Msg("Opened singleton cluster")

	return outcomeSingleton, nil
}

// bestSemanticMatch returns the closest neighbor at or above the threshold,
// or nil when the item has no embedding or no neighbor qualifies. The query
// orders by similarity descending with ties broken to the oldest published
// item.
func (w *Worker) bestSemanticMatch(ctx context.Context, itemID string, cutoff time.Time) (*db.SemanticMatch, error) {
	embedding, err := w.repo.GetItemEmbedding(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}

	if embedding == nil {
		return nil, nil //nolint:nilnil // nil,nil means no embedding to match on
	}

	matches, err := w.repo.FindSemanticMatches(ctx, itemID, embedding.Embedding, w.threshold, cutoff, semanticMatchLimit)
	if err != nil {
		return nil, fmt.Errorf("find semantic matches: %w", err)
	}

	if len(matches) == 0 {
		return nil, nil //nolint:nilnil // nil,nil means no neighbor above threshold
	}

	if len(matches) > 1 {
		w.logger.Debug().
			Str(logKeyItemID, itemID).
			Int("candidates", len(matches)).
			Float32("best_similarity", matches[0].Similarity).
			Msg("Multiple semantic candidates")
	}

	return &matches[0], nil
}

func (w *Worker) join(ctx context.Context, item *db.RawItem, canonicalID string, similarity float32) error {
	clusterID, err := w.repo.AssignToCluster(ctx, item.ID, canonicalID, similarity)
	if err != nil {
		return fmt.Errorf("assign to cluster: %w", err)
	}

	w.logger.Debug().
		Str(logKeyItemID, item.ID).
		Str(logKeyClusterID, clusterID).
		Float32("similarity", similarity).
		Msg("Joined cluster")

	return nil
}

// Merge folds the members of every cluster after the first into the first
// and marks the emptied clusters merged. Administrative operation; repeating
// the same merge is a no-op.
func (w *Worker) Merge(ctx context.Context, clusterIDs []string) (int64, error) {
	moved, err := w.repo.MergeClusters(ctx, clusterIDs)
	if err != nil {
		return 0, err
	}

	if moved > 0 {
		observability.ClustersMerged.Add(float64(len(clusterIDs) - 1))
	}

	w.logger.Info().
		Int("clusters", len(clusterIDs)).
		Int64("members_moved", moved).
		Msg("Merged clusters")

	return moved, nil
}

// ArchiveOld marks open clusters older than maxAge as archived.
func (w *Worker) ArchiveOld(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	archived, err := w.repo.ArchiveOldClusters(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if archived > 0 {
		observability.ClustersArchived.Add(float64(archived))

		w.logger.Info().Int64("archived", archived).Msg("Archived old clusters")
	}

	return archived, nil
}
