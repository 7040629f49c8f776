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

// Briefing is a generated summary over a window of scored items. Scope is
// either "global" or "user:<uuid>". SentAt is nil until the briefing has
// been delivered by email.
type Briefing struct {
	ID          string
	Scope       string
	PeriodStart time.Time
	PeriodEnd   time.Time
	SummaryMD   string
	Meta        map[string]any
	CreatedAt   time.Time
	SentAt      *time.Time
}

// BriefingSource names one origin of a briefing item.
type BriefingSource struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// BriefingItem links a briefing to the raw items it covered. URL and
// SourceName are join outputs populated by reads and ignored on insert.
type BriefingItem struct {
	BriefingID   string
	Rank         int
	RawItemID    string
	ClusterID    string
	Title        string
	OneLiner     string
	WhyItMatters string
	Confidence   string
	SignalScore  float64
	Sources      []BriefingSource

	URL        string
	SourceName string
}

// InsertBriefing stores a briefing and its item links in one transaction.
// The briefing's ID and CreatedAt are filled in from the database.
func (db *DB) InsertBriefing(ctx context.Context, briefing *Briefing, items []BriefingItem) error {
	meta, err := json.Marshal(briefing.Meta)
	if err != nil {
		return fmt.Errorf("marshal briefing meta: %w", err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert briefing: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
	)

	err = tx.QueryRow(ctx, `
		INSERT INTO briefings (scope, period_start, period_end, summary_md, meta)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, briefing.Scope, toTimestamptz(briefing.PeriodStart), toTimestamptz(briefing.PeriodEnd),
		SanitizeUTF8(briefing.SummaryMD), meta).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("insert briefing: %w", err)
	}

	briefing.ID = fromUUID(id)
	briefing.CreatedAt = fromTimestamptz(createdAt)

	for _, item := range items {
		sources, err := json.Marshal(item.Sources)
		if err != nil {
			return fmt.Errorf("marshal briefing item sources: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO briefing_items (briefing_id, rank, raw_item_id, cluster_id, title, one_liner, why_it_matters, confidence, signal_score, sources)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, id, item.Rank, toUUID(item.RawItemID), toUUID(item.ClusterID),
			SanitizeUTF8(item.Title), SanitizeUTF8(item.OneLiner), SanitizeUTF8(item.WhyItMatters),
			item.Confidence, item.SignalScore, sources)
		if err != nil {
			return fmt.Errorf("insert briefing item %d: %w", item.Rank, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert briefing: %w", err)
	}

	return nil
}

// GetLatestBriefing returns the newest briefing for a scope, or nil when the
// scope has none.
//
//nolint:nilnil // nil means no briefing yet
func (db *DB) GetLatestBriefing(ctx context.Context, scope string) (*Briefing, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, scope, period_start, period_end, summary_md, meta, created_at, sent_at
		FROM briefings
		WHERE scope = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, scope)

	briefing, err := scanBriefing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get latest briefing: %w", err)
	}

	return briefing, nil
}

// GetBriefing returns a briefing by ID restricted to the given scope, or nil
// when no such briefing exists.
//
//nolint:nilnil // nil means no such briefing
func (db *DB) GetBriefing(ctx context.Context, briefingID, scope string) (*Briefing, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, scope, period_start, period_end, summary_md, meta, created_at, sent_at
		FROM briefings
		WHERE id = $1 AND scope = $2
	`, toUUID(briefingID), scope)

	briefing, err := scanBriefing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get briefing: %w", err)
	}

	return briefing, nil
}

// ListBriefings returns briefings for a scope, newest first.
func (db *DB) ListBriefings(ctx context.Context, scope string, limit, offset int) ([]Briefing, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, scope, period_start, period_end, summary_md, meta, created_at, sent_at
		FROM briefings
		WHERE scope = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, scope, safeIntToInt32(limit), safeIntToInt32(offset))
	if err != nil {
		return nil, fmt.Errorf("list briefings: %w", err)
	}
	defer rows.Close()

	briefings := []Briefing{}

	for rows.Next() {
		briefing, err := scanBriefing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan briefing: %w", err)
		}

		briefings = append(briefings, *briefing)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate briefings: %w", rows.Err())
	}

	return briefings, nil
}

// GetBriefingItems returns a briefing's item links in rank order, joined
// with each item's URL and source name.
func (db *DB) GetBriefingItems(ctx context.Context, briefingID string) ([]BriefingItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT bi.briefing_id, bi.rank, bi.raw_item_id, bi.cluster_id, bi.title, bi.one_liner,
		       bi.why_it_matters, bi.confidence, bi.signal_score, bi.sources,
		       COALESCE(ri.url, ''), s.name
		FROM briefing_items bi
		JOIN raw_items ri ON ri.id = bi.raw_item_id
		JOIN sources s ON s.id = ri.source_id
		WHERE bi.briefing_id = $1
		ORDER BY bi.rank
	`, toUUID(briefingID))
	if err != nil {
		return nil, fmt.Errorf("get briefing items: %w", err)
	}
	defer rows.Close()

	items := []BriefingItem{}

	for rows.Next() {
		var (
			item        BriefingItem
			bid         pgtype.UUID
			rawItemID   pgtype.UUID
			clusterID   pgtype.UUID
			sourcesJSON []byte
		)

		if err := rows.Scan(&bid, &item.Rank, &rawItemID, &clusterID, &item.Title, &item.OneLiner,
			&item.WhyItMatters, &item.Confidence, &item.SignalScore, &sourcesJSON,
			&item.URL, &item.SourceName); err != nil {
			return nil, fmt.Errorf("scan briefing item: %w", err)
		}

		item.BriefingID = fromUUID(bid)
		item.RawItemID = fromUUID(rawItemID)
		item.ClusterID = fromUUID(clusterID)

		if len(sourcesJSON) > 0 {
			if err := json.Unmarshal(sourcesJSON, &item.Sources); err != nil {
				return nil, fmt.Errorf("unmarshal briefing item sources: %w", err)
			}
		}

		items = append(items, item)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate briefing items: %w", rows.Err())
	}

	return items, nil
}

// MarkBriefingSent records the delivery time of a briefing. Returns false
// when the briefing does not exist.
func (db *DB) MarkBriefingSent(ctx context.Context, briefingID string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE briefings SET sent_at = now() WHERE id = $1
	`, toUUID(briefingID))
	if err != nil {
		return false, fmt.Errorf("mark briefing sent: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// HasBriefingSince reports whether a scope already has a briefing created at
// or after the given time.
func (db *DB) HasBriefingSince(ctx context.Context, scope string, since time.Time) (bool, error) {
	var exists bool

	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM briefings WHERE scope = $1 AND created_at >= $2
		)
	`, scope, toTimestamptz(since)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check briefing exists: %w", err)
	}

	return exists, nil
}

type briefingRowScanner interface {
	Scan(dest ...any) error
}

func scanBriefing(row briefingRowScanner) (*Briefing, error) {
	var (
		briefing  Briefing
		id        pgtype.UUID
		start     pgtype.Timestamptz
		end       pgtype.Timestamptz
		meta      []byte
		createdAt pgtype.Timestamptz
		sentAt    pgtype.Timestamptz
	)

	if err := row.Scan(&id, &briefing.Scope, &start, &end, &briefing.SummaryMD, &meta, &createdAt, &sentAt); err != nil {
		return nil, err
	}

	briefing.ID = fromUUID(id)
	briefing.PeriodStart = fromTimestamptz(start)
	briefing.PeriodEnd = fromTimestamptz(end)
	briefing.CreatedAt = fromTimestamptz(createdAt)
	briefing.SentAt = fromTimestamptzPtr(sentAt)

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &briefing.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal briefing meta: %w", err)
		}
	}

	return &briefing, nil
}
