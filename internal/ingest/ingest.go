// Package ingest harvests content from registered sources: syndication
// feeds, the Hacker News API and subreddit listings. Each ingester
// normalizes its source's entries into a common item shape; persistence is
// shared and idempotent on (source_id, external_id), so re-running a
// harvest inserts nothing new.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/platform/config"
	"github.com/tidesignal/newsbrief/internal/platform/observability"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

const (
	// snippetMaxLength bounds the body text stored at harvest time. The
	// extract stage fetches the full article later.
	snippetMaxLength = 2000

	headerUserAgent     = "User-Agent"
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"

	wrapCreateRequest = "create request: %w"
	wrapHTTPStatusFmt = "%w: status %d"

	logKeySource = "source"
	logKeyType   = "type"
)

// Ingestion errors.
var (
	ErrSourceNotFound    = errors.New("source not found")
	ErrUnknownSourceType = errors.New("unknown source type")

	errHTTPStatus = errors.New("unexpected HTTP status")
)

// NormalizedItem is the common shape every ingester produces before
// persistence. Payload carries source-specific fields (votes, comment
// counts) that later stages read back for velocity scoring.
type NormalizedItem struct {
	ExternalID   string
	URL          string
	CanonicalURL string
	Title        string
	Author       string
	Kind         string
	RawText      string
	PublishedAt  *time.Time
	Payload      map[string]any
}

// Ingester fetches and normalizes items from one source type.
type Ingester interface {
	SourceType() string
	Fetch(ctx context.Context, src *db.Source) ([]NormalizedItem, error)
}

// Repository defines the storage operations required by the ingest service.
type Repository interface {
	GetEnabledSources(ctx context.Context) ([]db.Source, error)
	GetSource(ctx context.Context, id string) (*db.Source, error)
	InsertRawItem(ctx context.Context, item *db.RawItem) (bool, error)
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// Result summarizes one ingestion run.
type Result struct {
	SourcesProcessed int
	ItemsFetched     int
	ItemsInserted    int
	Errors           int
}

// Service routes sources to their ingester and owns the shared persistence
// path.
type Service struct {
	repo      Repository
	ingesters map[string]Ingester
	logger    *zerolog.Logger
}

// NewService builds the service with one ingester per supported source type.
func NewService(cfg config.IngestConfig, repo Repository, logger *zerolog.Logger) *Service {
	ingesters := []Ingester{
		NewFeedIngester(cfg.MaxItemsPerSource, logger),
		NewHNIngester(cfg.MaxItemsPerSource, logger),
		NewRedditIngester(cfg, logger),
	}

	byType := make(map[string]Ingester, len(ingesters))
	for _, ing := range ingesters {
		byType[ing.SourceType()] = ing
	}

	return &Service{
		repo:      repo,
		ingesters: byType,
		logger:    logger,
	}
}

// IngestAll harvests every enabled source. A failing source is logged and
// counted; the run continues with the remaining sources.
func (s *Service) IngestAll(ctx context.Context) (*Result, error) {
	sources, err := s.repo.GetEnabledSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("get enabled sources: %w", err)
	}

	total := &Result{}

	for i := range sources {
		src := &sources[i]

		res, err := s.ingestSource(ctx, src)
		if err != nil {
			total.Errors++

			s.logger.Error().Err(err).
				Str(logKeySource, src.Name).
				Str(logKeyType, src.Type).
				Msg("Source ingestion failed")

			continue
		}

		total.SourcesProcessed++
		total.ItemsFetched += res.ItemsFetched
		total.ItemsInserted += res.ItemsInserted
	}

	return total, nil
}

// IngestSource harvests a single source by id. Listing-level failures are
// returned so the caller can retry the run.
func (s *Service) IngestSource(ctx context.Context, id string) (*Result, error) {
	src, err := s.repo.GetSource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}

	if src == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}

	if !src.Enabled {
		s.logger.Info().Str(logKeySource, src.Name).Msg("Source disabled, skipping")

		return &Result{}, nil
	}

	return s.ingestSource(ctx, src)
}

func (s *Service) ingestSource(ctx context.Context, src *db.Source) (*Result, error) {
	ing, ok := s.ingesters[src.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSourceType, src.Type)
	}

	items, err := ing.Fetch(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
	}

	inserted := s.persistItems(ctx, src, items)

	s.logger.Info().
		Str(logKeySource, src.Name).
		Str(logKeyType, src.Type).
		Int("fetched", len(items)).
		Int("inserted", inserted).
		Msg("Source ingestion complete")

	return &Result{SourcesProcessed: 1, ItemsFetched: len(items), ItemsInserted: inserted}, nil
}

// persistItems writes normalized items, skipping ones the source already
// holds. Single-item failures are logged and the batch continues.
func (s *Service) persistItems(ctx context.Context, src *db.Source, items []NormalizedItem) int {
	inserted := 0

	for i := range items {
		item := &items[i]

		row := &db.RawItem{
			SourceID:     src.ID,
			ExternalID:   item.ExternalID,
			URL:          item.URL,
			CanonicalURL: item.CanonicalURL,
			Title:        item.Title,
			Author:       item.Author,
			Kind:         item.Kind,
			PublishedAt:  item.PublishedAt,
			FetchedAt:    time.Now().UTC(),
			RawText:      item.RawText,
			RawPayload:   item.Payload,
			ContentHash:  ContentHash(item.Title, item.RawText),
			Status:       db.StatusNew,
		}

		ok, err := s.repo.InsertRawItem(ctx, row)
		if err != nil {
			s.logger.Warn().Err(err).
				Str(logKeySource, src.Name).
				Str("external_id", item.ExternalID).
				Msg("Failed to insert item")

			continue
		}

		if ok {
			inserted++
		}
	}

	if inserted > 0 {
		observability.ItemsIngested.WithLabelValues(src.Type).Add(float64(inserted))
	}

	return inserted
}

// ContentHash fingerprints an item for exact duplicate detection: sha256
// over the trimmed title and body, hex encoded. Empty content hashes to the
// empty string so blank items never collide with each other.
func ContentHash(title, text string) string {
	content := strings.TrimSpace(title + "\n" + text)
	if content == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(content))

	return hex.EncodeToString(sum[:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}

	return ""
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
