package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/platform/observability"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

const (
	stageName = "extract"

	outcomeExtracted = "extracted"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"

	hnHost = "news.ycombinator.com"

	logKeyItemID = "item_id"
)

// skipDomains hold link targets that never yield article text: social
// threads and video pages. Items pointing there advance without content.
var skipDomains = []string{"twitter.com", "x.com", "youtube.com", "youtu.be", "reddit.com"}

// Repository defines the storage operations required by the extract stage.
type Repository interface {
	GetItemsByStatus(ctx context.Context, status string, limit int) ([]db.RawItem, error)
	SaveExtractedContent(ctx context.Context, ec *db.ExtractedContent) error
	AdvanceStatus(ctx context.Context, id, from, to string) error
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// URLExtractor pulls clean text for a URL.
type URLExtractor interface {
	ExtractURL(ctx context.Context, rawURL string) *Result
}

// Worker drains the new-item backlog one batch per tick.
type Worker struct {
	repo      Repository
	extractor URLExtractor
	batchSize int
	logger    *zerolog.Logger
}

func NewWorker(repo Repository, batchSize int, logger *zerolog.Logger) *Worker {
	return &Worker{
		repo:      repo,
		extractor: NewExtractor(logger),
		batchSize: batchSize,
		logger:    logger,
	}
}

// ProcessBatch extracts one batch of items at status new. Every reachable
// item advances to extracted; only storage failures leave an item behind
// for the next tick.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	start := time.Now()

	items, err := w.repo.GetItemsByStatus(ctx, db.StatusNew, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get new items: %w", err)
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

		w.logger.Info().Int("processed", processed).Msg("Extraction batch complete")
	}

	return processed, nil
}

func (w *Worker) processItem(ctx context.Context, item *db.RawItem) {
	outcome := outcomeSkipped

	if !shouldSkip(item) {
		outcome = outcomeFailed

		if res := w.extractor.ExtractURL(ctx, item.URL); res != nil {
			ec := &db.ExtractedContent{
				RawItemID: item.ID,
				FinalURL:  res.FinalURL,
				Text:      res.Text,
				WordCount: res.WordCount,
				Method:    res.Method,
				Quality:   res.Quality,
			}

			if err := w.repo.SaveExtractedContent(ctx, ec); err != nil {
				w.logger.Warn().Err(err).Str(logKeyItemID, item.ID).Msg("Failed to save extracted content")

				return
			}

			outcome = outcomeExtracted
		}
	}

	if err := w.repo.AdvanceStatus(ctx, item.ID, db.StatusNew, db.StatusExtracted); err != nil {
		w.logger.Warn().Err(err).Str(logKeyItemID, item.ID).Msg("Failed to advance item")

		return
	}

	observability.StageProcessed.WithLabelValues(stageName, outcome).Inc()
}

// shouldSkip reports whether an item's link can never yield article text:
// missing URLs, blacklisted social/video domains, and HN discussion pages
// (self posts carry their text already).
func shouldSkip(item *db.RawItem) bool {
	if item.URL == "" {
		return true
	}

	parsed, err := url.Parse(item.URL)
	if err != nil {
		return true
	}

	host := strings.ToLower(parsed.Hostname())
	if host == hnHost {
		return true
	}

	for _, domain := range skipDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}

	return false
}
