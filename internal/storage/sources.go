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

// Source is a registered content origin: a syndication feed, the HN API,
// or a subreddit listing. Per-source knobs live in the Config blob and are
// read through the typed accessors rather than hoisted into columns.
type Source struct {
	ID              string
	Name            string
	Type            string
	URL             string
	Category        string
	CredibilityTier int16
	Enabled         bool
	Config          map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ConfigString returns a string value from the source config blob.
func (s *Source) ConfigString(key, fallback string) string {
	if v, ok := s.Config[key].(string); ok && v != "" {
		return v
	}

	return fallback
}

// Subreddit returns the configured subreddit for reddit sources.
func (s *Source) Subreddit() string {
	return s.ConfigString("subreddit", "")
}

// ListingSort returns the reddit listing sort order.
func (s *Source) ListingSort() string {
	return s.ConfigString("sort", "hot")
}

// StoryType returns the HN listing kind (top, new or best).
func (s *Source) StoryType() string {
	return s.ConfigString("story_type", "top")
}

func (db *DB) CreateSource(ctx context.Context, src *Source) (string, error) {
	configJSON, err := json.Marshal(src.Config)
	if err != nil {
		return "", fmt.Errorf("marshal source config: %w", err)
	}

	if src.Config == nil {
		configJSON = []byte(`{}`)
	}

	var id pgtype.UUID

	err = db.Pool.QueryRow(ctx, `
		INSERT INTO sources (name, type, url, category, credibility_tier, enabled, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, src.Name, src.Type, src.URL, src.Category, src.CredibilityTier, src.Enabled, configJSON).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create source: %w", err)
	}

	return fromUUID(id), nil
}

func (db *DB) GetSource(ctx context.Context, id string) (*Source, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, name, type, url, category, credibility_tier, enabled, config, created_at, updated_at
		FROM sources
		WHERE id = $1
	`, toUUID(id))

	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates source not found
		}

		return nil, fmt.Errorf("get source: %w", err)
	}

	return src, nil
}

func (db *DB) ListSources(ctx context.Context) ([]Source, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, type, url, category, credibility_tier, enabled, config, created_at, updated_at
		FROM sources
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	return collectSources(rows)
}

// GetEnabledSources returns the sources the ingest stage should poll.
func (db *DB) GetEnabledSources(ctx context.Context) ([]Source, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, type, url, category, credibility_tier, enabled, config, created_at, updated_at
		FROM sources
		WHERE enabled
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("get enabled sources: %w", err)
	}
	defer rows.Close()

	return collectSources(rows)
}

func (db *DB) DeleteSource(ctx context.Context, id string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, toUUID(id))
	if err != nil {
		return false, fmt.Errorf("delete source: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (db *DB) SetSourceEnabled(ctx context.Context, id string, enabled bool) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE sources SET enabled = $2, updated_at = now() WHERE id = $1
	`, toUUID(id), enabled); err != nil {
		return fmt.Errorf("set source enabled: %w", err)
	}

	return nil
}

type sourceRowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row sourceRowScanner) (*Source, error) {
	var (
		src        Source
		id         pgtype.UUID
		configJSON []byte
		createdAt  pgtype.Timestamptz
		updatedAt  pgtype.Timestamptz
	)

	if err := row.Scan(&id, &src.Name, &src.Type, &src.URL, &src.Category,
		&src.CredibilityTier, &src.Enabled, &configJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	src.ID = fromUUID(id)
	src.CreatedAt = fromTimestamptz(createdAt)
	src.UpdatedAt = fromTimestamptz(updatedAt)

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &src.Config); err != nil {
			return nil, fmt.Errorf("unmarshal source config: %w", err)
		}
	}

	return &src, nil
}

func collectSources(rows pgx.Rows) ([]Source, error) {
	sources := []Source{}

	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}

		sources = append(sources, *src)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate sources: %w", rows.Err())
	}

	return sources, nil
}
