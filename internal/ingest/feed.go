package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	db "github.com/tidesignal/newsbrief/internal/storage"
)

const (
	feedTimeout      = 30 * time.Second
	feedUserAgent    = "newsbrief/1.0 (feed reader)"
	maxFeedRedirects = 10

	errFmtFetchFeed = "fetch feed: %w"
)

var errTooManyRedirects = errors.New("too many redirects")

// FeedIngester harvests RSS and Atom feeds.
type FeedIngester struct {
	parser   *gofeed.Parser
	maxItems int
	logger   *zerolog.Logger
}

// NewFeedIngester creates a feed ingester that follows redirects and gives
// up after feedTimeout.
func NewFeedIngester(maxItems int, logger *zerolog.Logger) *FeedIngester {
	client := &http.Client{
		Timeout: feedTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxFeedRedirects {
				return errTooManyRedirects
			}

			return nil
		},
	}

	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = feedUserAgent

	return &FeedIngester{
		parser:   parser,
		maxItems: maxItems,
		logger:   logger,
	}
}

func (f *FeedIngester) SourceType() string { return db.SourceTypeFeed }

// Fetch parses the source feed and normalizes its entries. Entries missing
// an id, link or title are skipped with a debug log; the rest of the feed
// is still used.
func (f *FeedIngester) Fetch(ctx context.Context, src *db.Source) ([]NormalizedItem, error) {
	feed, err := f.parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf(errFmtFetchFeed, err)
	}

	items := make([]NormalizedItem, 0, len(feed.Items))

	for _, entry := range feed.Items {
		if len(items) >= f.maxItems {
			break
		}

		item, ok := normalizeEntry(entry, feed.Title)
		if !ok {
			f.logger.Debug().
				Str(logKeySource, src.Name).
				Str("feed_url", src.URL).
				Msg("Skipping incomplete feed entry")

			continue
		}

		items = append(items, item)
	}

	return items, nil
}

func normalizeEntry(entry *gofeed.Item, feedTitle string) (NormalizedItem, bool) {
	if entry == nil {
		return NormalizedItem{}, false
	}

	externalID := firstNonEmpty(entry.GUID, entry.Link)
	if externalID == "" {
		return NormalizedItem{}, false
	}

	link := strings.TrimSpace(entry.Link)
	title := strings.TrimSpace(entry.Title)

	if link == "" || title == "" {
		return NormalizedItem{}, false
	}

	return NormalizedItem{
		ExternalID:   externalID,
		URL:          link,
		CanonicalURL: link,
		Title:        title,
		Author:       entryAuthor(entry),
		Kind:         db.ItemKindArticle,
		RawText:      truncate(firstNonEmpty(entry.Description, entry.Content), snippetMaxLength),
		PublishedAt:  entryPublishedAt(entry),
		Payload: map[string]any{
			"feed_title": feedTitle,
			"tags":       entry.Categories,
			"guid":       entry.GUID,
		},
	}, true
}

func entryAuthor(entry *gofeed.Item) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}

	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		return entry.Authors[0].Name
	}

	return ""
}

// entryPublishedAt picks the entry timestamp, preferring dates gofeed
// already parsed and falling back to dateparse on the raw strings.
func entryPublishedAt(entry *gofeed.Item) *time.Time {
	for _, parsed := range []*time.Time{entry.PublishedParsed, entry.UpdatedParsed} {
		if parsed != nil {
			ts := parsed.UTC()

			return &ts
		}
	}

	for _, raw := range []string{entry.Published, entry.Updated} {
		if raw == "" {
			continue
		}

		if ts, err := dateparse.ParseAny(raw); err == nil {
			ts = ts.UTC()

			return &ts
		}
	}

	return nil
}
