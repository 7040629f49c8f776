package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrMergeNeedsTwo is returned when a merge is requested with fewer than two clusters.
var ErrMergeNeedsTwo = errors.New("need at least 2 clusters to merge")

// Cluster groups raw items judged to be the same underlying story.
type Cluster struct {
	ID              string
	CanonicalItemID string
	Status          string
	CreatedAt       time.Time
}

// ClusterMember links one raw item into a cluster. Exactly one member per
// cluster is canonical; the unique index on raw_item_id keeps an item from
// being assigned twice.
type ClusterMember struct {
	ClusterID   string
	RawItemID   string
	IsCanonical bool
	Similarity  float32
}

func (db *DB) GetCluster(ctx context.Context, id string) (*Cluster, error) {
	var (
		c           Cluster
		clusterID   pgtype.UUID
		canonicalID pgtype.UUID
		createdAt   pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT id, canonical_item_id, status, created_at
		FROM clusters
		WHERE id = $1
	`, toUUID(id)).Scan(&clusterID, &canonicalID, &c.Status, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates cluster not found
		}

		return nil, fmt.Errorf("get cluster: %w", err)
	}

	c.ID = fromUUID(clusterID)
	c.CanonicalItemID = fromUUID(canonicalID)
	c.CreatedAt = fromTimestamptz(createdAt)

	return &c, nil
}

// GetClusterMembership returns the membership row for an item, or nil when
// the item has not been clustered.
func (db *DB) GetClusterMembership(ctx context.Context, rawItemID string) (*ClusterMember, error) {
	var (
		m         ClusterMember
		clusterID pgtype.UUID
		itemID    pgtype.UUID
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT cluster_id, raw_item_id, is_canonical, similarity
		FROM cluster_members
		WHERE raw_item_id = $1
	`, toUUID(rawItemID)).Scan(&clusterID, &itemID, &m.IsCanonical, &m.Similarity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates item not clustered
		}

		return nil, fmt.Errorf("get cluster membership: %w", err)
	}

	m.ClusterID = fromUUID(clusterID)
	m.RawItemID = fromUUID(itemID)

	return &m, nil
}

// AssignToCluster joins an item to the cluster anchored by the canonical
// item, creating the cluster and the canonical's own membership when the
// canonical has none yet. The whole protocol runs in one transaction; the
// membership insert is a conflict no-op when the item is already assigned.
func (db *DB) AssignToCluster(ctx context.Context, rawItemID, canonicalItemID string, similarity float32) (string, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin cluster assignment: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // best-effort rollback
	}()

	var clusterID pgtype.UUID

	err = tx.QueryRow(ctx, `
		SELECT cluster_id
		FROM cluster_members
		WHERE raw_item_id = $1 AND is_canonical
	`, toUUID(canonicalItemID)).Scan(&clusterID)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx, `
			INSERT INTO clusters (canonical_item_id, status)
			VALUES ($1, $2)
			RETURNING id
		`, toUUID(canonicalItemID), ClusterStatusOpen).Scan(&clusterID)
		if err != nil {
			return "", fmt.Errorf("create cluster: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO cluster_members (cluster_id, raw_item_id, is_canonical, similarity)
			VALUES ($1, $2, TRUE, 1.0)
			ON CONFLICT (raw_item_id) DO NOTHING
		`, clusterID, toUUID(canonicalItemID)); err != nil {
			return "", fmt.Errorf("add canonical member: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("find canonical cluster: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO cluster_members (cluster_id, raw_item_id, is_canonical, similarity)
		VALUES ($1, $2, FALSE, $3)
		ON CONFLICT (raw_item_id) DO NOTHING
	`, clusterID, toUUID(rawItemID), similarity); err != nil {
		return "", fmt.Errorf("add cluster member: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit cluster assignment: %w", err)
	}

	return fromUUID(clusterID), nil
}

// CreateSingletonCluster opens a new cluster with the item as its canonical
// member. Used when the semantic pass finds no neighbor.
func (db *DB) CreateSingletonCluster(ctx context.Context, rawItemID string) (string, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin singleton cluster: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // best-effort rollback
	}()

	var clusterID pgtype.UUID

	err = tx.QueryRow(ctx, `
		INSERT INTO clusters (canonical_item_id, status)
		VALUES ($1, $2)
		RETURNING id
	`, toUUID(rawItemID), ClusterStatusOpen).Scan(&clusterID)
	if err != nil {
		return "", fmt.Errorf("create singleton cluster: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO cluster_members (cluster_id, raw_item_id, is_canonical, similarity)
		VALUES ($1, $2, TRUE, 1.0)
		ON CONFLICT (raw_item_id) DO NOTHING
	`, clusterID, toUUID(rawItemID)); err != nil {
		return "", fmt.Errorf("add singleton member: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit singleton cluster: %w", err)
	}

	return fromUUID(clusterID), nil
}

// GetClusterSize returns the member count of the cluster containing the item,
// or 0 when the item is unclustered. The scorer's cross-source axis reads it.
func (db *DB) GetClusterSize(ctx context.Context, rawItemID string) (int, error) {
	var count int64

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)::bigint
		FROM cluster_members
		WHERE cluster_id = (
			SELECT cluster_id FROM cluster_members WHERE raw_item_id = $1
		)
	`, toUUID(rawItemID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("get cluster size: %w", err)
	}

	return int(count), nil
}

// CountDistinctClusterSources returns how many distinct sources contributed
// members to the item's cluster.
func (db *DB) CountDistinctClusterSources(ctx context.Context, rawItemID string) (int, error) {
	var count int64

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT ri.source_id)::bigint
		FROM cluster_members cm
		JOIN raw_items ri ON ri.id = cm.raw_item_id
		WHERE cm.cluster_id = (
			SELECT cluster_id FROM cluster_members WHERE raw_item_id = $1
		)
	`, toUUID(rawItemID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count distinct cluster sources: %w", err)
	}

	return int(count), nil
}

// MergeClusters folds the members of every cluster after the first into the
// first and marks the emptied clusters merged. Re-merging the same set is a
// no-op. Returns the number of members moved.
func (db *DB) MergeClusters(ctx context.Context, clusterIDs []string) (int64, error) {
	if len(clusterIDs) < 2 {
		return 0, ErrMergeNeedsTwo
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin cluster merge: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // best-effort rollback
	}()

	target := toUUID(clusterIDs[0])

	var moved int64

	for _, id := range clusterIDs[1:] {
		tag, err := tx.Exec(ctx, `
			UPDATE cluster_members
			SET cluster_id = $1, is_canonical = FALSE
			WHERE cluster_id = $2
		`, target, toUUID(id))
		if err != nil {
			return 0, fmt.Errorf("move cluster members: %w", err)
		}

		moved += tag.RowsAffected()

		if _, err := tx.Exec(ctx, `
			UPDATE clusters
			SET status = $2, updated_at = now()
			WHERE id = $1
		`, toUUID(id), ClusterStatusMerged); err != nil {
			return 0, fmt.Errorf("mark cluster merged: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit cluster merge: %w", err)
	}

	return moved, nil
}

// ArchiveOldClusters marks open clusters created before the cutoff as
// archived and returns how many were touched.
func (db *DB) ArchiveOldClusters(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE clusters
		SET status = $2, updated_at = now()
		WHERE created_at < $1 AND status = $3
	`, toTimestamptz(cutoff), ClusterStatusArchived, ClusterStatusOpen)
	if err != nil {
		return 0, fmt.Errorf("archive old clusters: %w", err)
	}

	return tag.RowsAffected(), nil
}
