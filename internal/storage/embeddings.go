package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// ItemEmbedding holds the dense vector for a raw item.
type ItemEmbedding struct {
	RawItemID string
	ModelID   string
	Dim       int
	Embedding []float32
}

// SemanticMatch is one nearest-neighbor candidate from the vector index.
type SemanticMatch struct {
	RawItemID  string
	Similarity float32
}

// SaveItemEmbedding stores the vector for an item. First write wins.
func (db *DB) SaveItemEmbedding(ctx context.Context, e *ItemEmbedding) error {
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO item_embeddings (raw_item_id, model_id, dim, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (raw_item_id) DO NOTHING
	`, toUUID(e.RawItemID), e.ModelID, e.Dim, pgvector.NewVector(e.Embedding)); err != nil {
		return fmt.Errorf("save item embedding: %w", err)
	}

	return nil
}

func (db *DB) GetItemEmbedding(ctx context.Context, rawItemID string) (*ItemEmbedding, error) {
	var (
		e   ItemEmbedding
		id  pgtype.UUID
		vec pgvector.Vector
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT raw_item_id, model_id, dim, embedding
		FROM item_embeddings
		WHERE raw_item_id = $1
	`, toUUID(rawItemID)).Scan(&id, &e.ModelID, &e.Dim, &vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates no embedding for item
		}

		return nil, fmt.Errorf("get item embedding: %w", err)
	}

	e.RawItemID = fromUUID(id)
	e.Embedding = vec.Slice()

	return &e, nil
}

// HasItemEmbedding reports whether a vector exists for the item.
func (db *DB) HasItemEmbedding(ctx context.Context, rawItemID string) (bool, error) {
	var exists bool

	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM item_embeddings WHERE raw_item_id = $1)
	`, toUUID(rawItemID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check item embedding exists: %w", err)
	}

	return exists, nil
}

// FindSemanticMatches returns recent items whose cosine similarity to the
// given vector meets the threshold, best first. pgvector's <=> operator is
// cosine distance, so similarity = 1 - distance; the >= comparison keeps a
// candidate sitting exactly on the threshold. Equal similarities order by
// oldest published_at, treating the earliest report as the origin.
func (db *DB) FindSemanticMatches(ctx context.Context, excludeID string, embedding []float32, threshold float32, cutoff time.Time, limit int) ([]SemanticMatch, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT ie.raw_item_id,
		       1 - (ie.embedding <=> $1::vector) AS similarity
		FROM item_embeddings ie
		JOIN raw_items ri ON ri.id = ie.raw_item_id
		WHERE ie.raw_item_id <> $2
		  AND ri.fetched_at >= $3
		  AND 1 - (ie.embedding <=> $1::vector) >= $4
		ORDER BY similarity DESC, ri.published_at ASC NULLS LAST
		LIMIT $5
	`, pgvector.NewVector(embedding), toUUID(excludeID), toTimestamptz(cutoff), threshold, safeIntToInt32(limit))
	if err != nil {
		return nil, fmt.Errorf("find semantic matches: %w", err)
	}
	defer rows.Close()

	matches := []SemanticMatch{}

	for rows.Next() {
		var (
			m  SemanticMatch
			id pgtype.UUID
		)

		if err := rows.Scan(&id, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan semantic match: %w", err)
		}

		m.RawItemID = fromUUID(id)
		matches = append(matches, m)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate semantic matches: %w", rows.Err())
	}

	return matches, nil
}
