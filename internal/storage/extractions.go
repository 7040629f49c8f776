package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ExtractedContent is the cleaned article body produced by the extract stage,
// one row per raw item.
type ExtractedContent struct {
	RawItemID string
	FinalURL  string
	Text      string
	WordCount int
	Method    string
	Quality   float64
}

type extractionMeta struct {
	Method  string  `json:"method"`
	Quality float64 `json:"quality"`
}

// SaveExtractedContent inserts the cleaned body for an item. First write
// wins: a second run over the same item is a no-op, which keeps the extract
// stage idempotent under retries.
func (db *DB) SaveExtractedContent(ctx context.Context, ec *ExtractedContent) error {
	metaJSON, err := json.Marshal(extractionMeta{Method: ec.Method, Quality: ec.Quality})
	if err != nil {
		return fmt.Errorf("marshal extraction meta: %w", err)
	}

	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO extracted_contents (raw_item_id, final_url, text, word_count, extraction_meta)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (raw_item_id) DO NOTHING
	`, toUUID(ec.RawItemID), toText(ec.FinalURL), SanitizeUTF8(ec.Text), ec.WordCount, metaJSON); err != nil {
		return fmt.Errorf("save extracted content: %w", err)
	}

	return nil
}

func (db *DB) GetExtractedContent(ctx context.Context, rawItemID string) (*ExtractedContent, error) {
	var (
		ec       ExtractedContent
		id       pgtype.UUID
		finalURL pgtype.Text
		metaJSON []byte
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT raw_item_id, final_url, text, word_count, extraction_meta
		FROM extracted_contents
		WHERE raw_item_id = $1
	`, toUUID(rawItemID)).Scan(&id, &finalURL, &ec.Text, &ec.WordCount, &metaJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates no extraction for item
		}

		return nil, fmt.Errorf("get extracted content: %w", err)
	}

	ec.RawItemID = fromUUID(id)
	ec.FinalURL = fromText(finalURL)

	if len(metaJSON) > 0 {
		var meta extractionMeta
		if err := json.Unmarshal(metaJSON, &meta); err == nil {
			ec.Method = meta.Method
			ec.Quality = meta.Quality
		}
	}

	return &ec, nil
}
