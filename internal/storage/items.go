package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// RawItem is one normalized entry harvested from a source. The status column
// is the authoritative record of its pipeline stage.
type RawItem struct {
	ID           string
	SourceID     string
	ExternalID   string
	URL          string
	CanonicalURL string
	Title        string
	Author       string
	Kind         string
	PublishedAt  *time.Time
	FetchedAt    time.Time
	RawText      string
	RawPayload   map[string]any
	ContentHash  string
	Status       string
}

// PayloadInt reads an integer field from the source-specific payload blob.
// JSON numbers decode as float64.
func (it *RawItem) PayloadInt(key string) (int64, bool) {
	switch v := it.RawPayload[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}

	return 0, false
}

// PayloadFloat reads a float field from the payload blob.
func (it *RawItem) PayloadFloat(key string) (float64, bool) {
	if v, ok := it.RawPayload[key].(float64); ok {
		return v, true
	}

	return 0, false
}

// PayloadBool reads a boolean field from the payload blob.
func (it *RawItem) PayloadBool(key string) bool {
	v, ok := it.RawPayload[key].(bool)

	return ok && v
}

const rawItemColumns = `id, source_id, external_id, url, canonical_url, title, author, kind,
	published_at, fetched_at, raw_text, raw_payload, content_hash, status`

// InsertRawItem persists a harvested item. When the source already has a row
// for the same external_id the insert is skipped and inserted=false is
// returned; that is what makes the ingest stage idempotent.
func (db *DB) InsertRawItem(ctx context.Context, item *RawItem) (bool, error) {
	payloadJSON, err := json.Marshal(item.RawPayload)
	if err != nil {
		return false, fmt.Errorf("marshal raw payload: %w", err)
	}

	if item.RawPayload == nil {
		payloadJSON = []byte(`{}`)
	}

	var id pgtype.UUID

	err = db.Pool.QueryRow(ctx, `
		INSERT INTO raw_items (source_id, external_id, url, canonical_url, title, author, kind,
		                       published_at, fetched_at, raw_text, raw_payload, content_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (source_id, external_id) WHERE external_id IS NOT NULL DO NOTHING
		RETURNING id
	`, toUUID(item.SourceID), toText(item.ExternalID), toText(item.URL), toText(item.CanonicalURL),
		SanitizeUTF8(item.Title), toText(item.Author), item.Kind,
		toTimestamptzPtr(item.PublishedAt), toTimestamptz(item.FetchedAt),
		SanitizeUTF8(item.RawText), payloadJSON, item.ContentHash, StatusNew).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("insert raw item: %w", err)
	}

	item.ID = fromUUID(id)

	return true, nil
}

// HasRawItem reports whether the source already holds the given external id.
func (db *DB) HasRawItem(ctx context.Context, sourceID, externalID string) (bool, error) {
	var exists bool

	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM raw_items WHERE source_id = $1 AND external_id = $2
		)
	`, toUUID(sourceID), externalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check raw item exists: %w", err)
	}

	return exists, nil
}

func (db *DB) GetRawItem(ctx context.Context, id string) (*RawItem, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+rawItemColumns+`
		FROM raw_items
		WHERE id = $1
	`, toUUID(id))

	item, err := scanRawItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates item not found
		}

		return nil, fmt.Errorf("get raw item: %w", err)
	}

	return item, nil
}

// GetItemsByStatus returns up to limit items sitting at the given pipeline
// stage, oldest fetch first. Stages call this on every tick; the limit is the
// backpressure bound.
func (db *DB) GetItemsByStatus(ctx context.Context, status string, limit int) ([]RawItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+rawItemColumns+`
		FROM raw_items
		WHERE status = $1
		ORDER BY fetched_at
		LIMIT $2
	`, status, safeIntToInt32(limit))
	if err != nil {
		return nil, fmt.Errorf("get items by status: %w", err)
	}
	defer rows.Close()

	return collectRawItems(rows)
}

// GetUnclusteredEmbedded returns embedded items that do not belong to any
// cluster yet. Items already clustered by the exact pass are skipped here and
// advanced directly.
func (db *DB) GetUnclusteredEmbedded(ctx context.Context, limit int) ([]RawItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+prefixedRawItemColumns("ri")+`
		FROM raw_items ri
		JOIN item_embeddings ie ON ie.raw_item_id = ri.id
		LEFT JOIN cluster_members cm ON cm.raw_item_id = ri.id
		WHERE ri.status = $1
		  AND cm.raw_item_id IS NULL
		ORDER BY ri.fetched_at
		LIMIT $2
	`, StatusEmbedded, safeIntToInt32(limit))
	if err != nil {
		return nil, fmt.Errorf("get unclustered embedded items: %w", err)
	}
	defer rows.Close()

	return collectRawItems(rows)
}

// AdvanceStatus moves an item from one stage to the next. The from guard
// keeps the transition monotonic under concurrent workers.
func (db *DB) AdvanceStatus(ctx context.Context, id, from, to string) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE raw_items SET status = $3 WHERE id = $1 AND status = $2
	`, toUUID(id), from, to); err != nil {
		return fmt.Errorf("advance item status: %w", err)
	}

	return nil
}

// SetStatus overrides an item's stage. Administrative use only.
func (db *DB) SetStatus(ctx context.Context, id, status string) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE raw_items SET status = $2 WHERE id = $1
	`, toUUID(id), status); err != nil {
		return fmt.Errorf("set item status: %w", err)
	}

	return nil
}

// FindItemByURL returns the oldest other item sharing the same URL, for the
// exact deduplication pass. No time window: a story keeps its URL forever.
func (db *DB) FindItemByURL(ctx context.Context, url, excludeID string) (*RawItem, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+rawItemColumns+`
		FROM raw_items
		WHERE url = $1 AND id <> $2
		ORDER BY fetched_at
		LIMIT 1
	`, url, toUUID(excludeID))

	item, err := scanRawItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates no URL match
		}

		return nil, fmt.Errorf("find item by url: %w", err)
	}

	return item, nil
}

// FindItemByTitle returns the oldest other item with an identical title
// fetched after the cutoff, for the exact deduplication pass.
func (db *DB) FindItemByTitle(ctx context.Context, title string, cutoff time.Time, excludeID string) (*RawItem, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+rawItemColumns+`
		FROM raw_items
		WHERE title = $1 AND id <> $2 AND fetched_at >= $3
		ORDER BY fetched_at
		LIMIT 1
	`, SanitizeUTF8(title), toUUID(excludeID), toTimestamptz(cutoff))

	item, err := scanRawItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates no title match
		}

		return nil, fmt.Errorf("find item by title: %w", err)
	}

	return item, nil
}

func (db *DB) CountItemsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT status, COUNT(*)::bigint
		FROM raw_items
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count items by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var (
			status string
			count  int64
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}

		counts[status] = int(count)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate status counts: %w", rows.Err())
	}

	return counts, nil
}

func prefixedRawItemColumns(alias string) string {
	return alias + `.id, ` + alias + `.source_id, ` + alias + `.external_id, ` + alias + `.url, ` +
		alias + `.canonical_url, ` + alias + `.title, ` + alias + `.author, ` + alias + `.kind, ` +
		alias + `.published_at, ` + alias + `.fetched_at, ` + alias + `.raw_text, ` +
		alias + `.raw_payload, ` + alias + `.content_hash, ` + alias + `.status`
}

type rawItemRowScanner interface {
	Scan(dest ...any) error
}

func scanRawItem(row rawItemRowScanner) (*RawItem, error) {
	var (
		item         RawItem
		id           pgtype.UUID
		sourceID     pgtype.UUID
		externalID   pgtype.Text
		url          pgtype.Text
		canonicalURL pgtype.Text
		author       pgtype.Text
		publishedAt  pgtype.Timestamptz
		fetchedAt    pgtype.Timestamptz
		payloadJSON  []byte
	)

	if err := row.Scan(&id, &sourceID, &externalID, &url, &canonicalURL, &item.Title, &author,
		&item.Kind, &publishedAt, &fetchedAt, &item.RawText, &payloadJSON,
		&item.ContentHash, &item.Status); err != nil {
		return nil, err
	}

	item.ID = fromUUID(id)
	item.SourceID = fromUUID(sourceID)
	item.ExternalID = fromText(externalID)
	item.URL = fromText(url)
	item.CanonicalURL = fromText(canonicalURL)
	item.Author = fromText(author)
	item.PublishedAt = fromTimestamptzPtr(publishedAt)
	item.FetchedAt = fromTimestamptz(fetchedAt)

	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &item.RawPayload); err != nil {
			return nil, fmt.Errorf("unmarshal raw payload: %w", err)
		}
	}

	return &item, nil
}

func collectRawItems(rows pgx.Rows) ([]RawItem, error) {
	items := []RawItem{}

	for rows.Next() {
		item, err := scanRawItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan raw item: %w", err)
		}

		items = append(items, *item)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate raw items: %w", rows.Err())
	}

	return items, nil
}
