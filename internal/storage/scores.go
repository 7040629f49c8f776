package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ItemScore is one scoring pass over a raw item. Scores are append-only:
// re-scoring inserts a new row and readers take the latest by computed_at.
type ItemScore struct {
	RawItemID   string
	ComputedAt  time.Time
	Relevance   float64
	Velocity    float64
	CrossSource float64
	Novelty     float64
	SignalScore float64
	ScoreMeta   map[string]any
}

// Signal is a scored item joined with its source, the shape list endpoints
// and briefing selection consume.
type Signal struct {
	ID          string
	SourceID    string
	ClusterID   string
	Title       string
	URL         string
	SourceName  string
	SourceType  string
	Category    string
	PublishedAt *time.Time
	FetchedAt   time.Time
	RawText     string
	SignalScore float64
	Relevance   float64
	Velocity    float64
	CrossSource float64
	Novelty     float64
}

// GetID implements dedup.Grouped.
func (s Signal) GetID() string { return s.ID }

// GetClusterID implements dedup.Grouped.
func (s Signal) GetClusterID() string { return s.ClusterID }

// SignalDetail extends Signal with the fields only the detail view needs.
type SignalDetail struct {
	Signal
	CanonicalURL string
	ScoreMeta    map[string]any
}

// SignalFilter bounds a signal listing.
type SignalFilter struct {
	MinScore   float64
	Category   string
	SourceType string
	Hours      int
	Limit      int
	Offset     int
}

// CategoryStat aggregates scored items per source category.
type CategoryStat struct {
	Category string
	Count    int
	AvgScore float64
}

// latestScoreJoin picks the newest score row per item. The alias sc is
// referenced by the surrounding query.
const latestScoreJoin = `
	JOIN LATERAL (
		SELECT relevance, velocity, cross_source, novelty, signal_score, score_meta
		FROM item_scores
		WHERE raw_item_id = ri.id
		ORDER BY computed_at DESC
		LIMIT 1
	) sc ON TRUE`

const signalColumns = `ri.id, ri.source_id, cm.cluster_id, ri.title, COALESCE(ri.url, ''), ri.published_at, ri.fetched_at, ri.raw_text,
		s.name, s.type, s.category,
		sc.signal_score, sc.relevance, sc.velocity, sc.cross_source, sc.novelty`

// clusterJoin resolves an item's cluster. Scored items always have one, but
// the join stays outer so administrative re-scores of unclustered items
// still list.
const clusterJoin = `LEFT JOIN cluster_members cm ON cm.raw_item_id = ri.id`

// InsertItemScore appends a score row. ComputedAt must be set by the caller
// so the stored row and its score_meta agree on the timestamp.
func (db *DB) InsertItemScore(ctx context.Context, score *ItemScore) error {
	meta, err := json.Marshal(score.ScoreMeta)
	if err != nil {
		return fmt.Errorf("marshal score meta: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO item_scores (raw_item_id, computed_at, relevance, velocity, cross_source, novelty, signal_score, score_meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, toUUID(score.RawItemID), toTimestamptz(score.ComputedAt),
		score.Relevance, score.Velocity, score.CrossSource, score.Novelty, score.SignalScore, meta)
	if err != nil {
		return fmt.Errorf("insert item score: %w", err)
	}

	return nil
}

// GetLatestScore returns the most recent score for an item, or nil when the
// item has never been scored.
//
//nolint:nilnil // nil means not scored yet
func (db *DB) GetLatestScore(ctx context.Context, rawItemID string) (*ItemScore, error) {
	var (
		score ItemScore
		id    pgtype.UUID
		at    pgtype.Timestamptz
		meta  []byte
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT raw_item_id, computed_at, relevance, velocity, cross_source, novelty, signal_score, score_meta
		FROM item_scores
		WHERE raw_item_id = $1
		ORDER BY computed_at DESC
		LIMIT 1
	`, toUUID(rawItemID)).Scan(&id, &at, &score.Relevance, &score.Velocity, &score.CrossSource, &score.Novelty, &score.SignalScore, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get latest score: %w", err)
	}

	score.RawItemID = fromUUID(id)
	score.ComputedAt = fromTimestamptz(at)

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &score.ScoreMeta); err != nil {
			return nil, fmt.Errorf("unmarshal score meta: %w", err)
		}
	}

	return &score, nil
}

// ListSignals returns scored items matching the filter ordered by signal
// score. It fetches one row past the limit so callers can tell whether more
// pages exist.
func (db *DB) ListSignals(ctx context.Context, filter SignalFilter) ([]Signal, bool, error) {
	hours := filter.Hours
	if hours <= 0 {
		hours = HoursPerDay
	}

	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	where := []string{"ri.fetched_at >= $1", "sc.signal_score >= $2"}
	args := []any{toTimestamptz(cutoff), filter.MinScore}

	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("s.category = $%d", len(args)))
	}

	if filter.SourceType != "" {
		args = append(args, filter.SourceType)
		where = append(where, fmt.Sprintf("s.type = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM raw_items ri
		%s
		JOIN sources s ON s.id = ri.source_id
		%s
		WHERE %s
		ORDER BY sc.signal_score DESC
		LIMIT %d OFFSET %d
	`, signalColumns, latestScoreJoin, clusterJoin, strings.Join(where, " AND "), filter.Limit+1, filter.Offset)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list signals: %w", err)
	}

	signals, err := collectSignals(rows)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(signals) > filter.Limit
	if hasMore {
		signals = signals[:filter.Limit]
	}

	return signals, hasMore, nil
}

// GetTopSignals returns the highest-scoring items from the last day.
func (db *DB) GetTopSignals(ctx context.Context, limit int, minScore float64) ([]Signal, error) {
	signals, _, err := db.ListSignals(ctx, SignalFilter{
		MinScore: minScore,
		Hours:    HoursPerDay,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}

	return signals, nil
}

// GetSignal returns the detail view for one scored item, or nil when the
// item does not exist or has no score yet.
//
//nolint:nilnil // nil means no such signal
func (db *DB) GetSignal(ctx context.Context, rawItemID string) (*SignalDetail, error) {
	query := fmt.Sprintf(`
		SELECT %s, COALESCE(ri.canonical_url, ''), sc.score_meta
		FROM raw_items ri
		%s
		JOIN sources s ON s.id = ri.source_id
		%s
		WHERE ri.id = $1
	`, signalColumns, latestScoreJoin, clusterJoin)

	var (
		detail SignalDetail
		meta   []byte
	)

	row := db.Pool.QueryRow(ctx, query, toUUID(rawItemID))
	err := scanSignal(row, &detail.Signal, &detail.CanonicalURL, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get signal: %w", err)
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &detail.ScoreMeta); err != nil {
			return nil, fmt.Errorf("unmarshal score meta: %w", err)
		}
	}

	return &detail, nil
}

// GetBriefingCandidates returns scored items since the cutoff at or above
// the threshold, best first. An empty topics slice means all categories.
func (db *DB) GetBriefingCandidates(ctx context.Context, since time.Time, minScore float64, topics []string, limit int) ([]Signal, error) {
	where := []string{"ri.fetched_at >= $1", "sc.signal_score >= $2"}
	args := []any{toTimestamptz(since), minScore}

	if len(topics) > 0 {
		args = append(args, topics)
		where = append(where, fmt.Sprintf("s.category = ANY($%d)", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM raw_items ri
		%s
		JOIN sources s ON s.id = ri.source_id
		%s
		WHERE %s
		ORDER BY sc.signal_score DESC
		LIMIT %d
	`, signalColumns, latestScoreJoin, clusterJoin, strings.Join(where, " AND "), limit)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get briefing candidates: %w", err)
	}

	return collectSignals(rows)
}

// GetCategoryStats aggregates scored-item counts and average signal score
// per source category over the window.
func (db *DB) GetCategoryStats(ctx context.Context, hours int) ([]CategoryStat, error) {
	if hours <= 0 {
		hours = HoursPerDay
	}

	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	rows, err := db.Pool.Query(ctx, `
		SELECT s.category, COUNT(ri.id), COALESCE(AVG(sc.signal_score), 0)
		FROM raw_items ri
		`+latestScoreJoin+`
		JOIN sources s ON s.id = ri.source_id
		WHERE ri.fetched_at >= $1
		GROUP BY s.category
		ORDER BY COUNT(ri.id) DESC
	`, toTimestamptz(cutoff))
	if err != nil {
		return nil, fmt.Errorf("get category stats: %w", err)
	}
	defer rows.Close()

	stats := []CategoryStat{}

	for rows.Next() {
		var stat CategoryStat

		if err := rows.Scan(&stat.Category, &stat.Count, &stat.AvgScore); err != nil {
			return nil, fmt.Errorf("scan category stat: %w", err)
		}

		if stat.Category == "" {
			stat.Category = "uncategorized"
		}

		stats = append(stats, stat)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate category stats: %w", rows.Err())
	}

	return stats, nil
}

type signalRowScanner interface {
	Scan(dest ...any) error
}

// scanSignal reads signalColumns into s, appending extra targets for
// queries that select additional columns.
func scanSignal(row signalRowScanner, s *Signal, extra ...any) error {
	var (
		id          pgtype.UUID
		sourceID    pgtype.UUID
		clusterID   pgtype.UUID
		publishedAt pgtype.Timestamptz
		fetchedAt   pgtype.Timestamptz
	)

	dest := []any{&id, &sourceID, &clusterID, &s.Title, &s.URL, &publishedAt, &fetchedAt, &s.RawText,
		&s.SourceName, &s.SourceType, &s.Category,
		&s.SignalScore, &s.Relevance, &s.Velocity, &s.CrossSource, &s.Novelty}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return err
	}

	s.ID = fromUUID(id)
	s.SourceID = fromUUID(sourceID)
	s.ClusterID = fromUUID(clusterID)
	s.PublishedAt = fromTimestamptzPtr(publishedAt)
	s.FetchedAt = fromTimestamptz(fetchedAt)

	return nil
}

func collectSignals(rows pgx.Rows) ([]Signal, error) {
	defer rows.Close()

	signals := []Signal{}

	for rows.Next() {
		var s Signal

		if err := scanSignal(rows, &s); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}

		signals = append(signals, s)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate signals: %w", rows.Err())
	}

	return signals, nil
}
