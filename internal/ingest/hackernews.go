package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	db "github.com/tidesignal/newsbrief/internal/storage"
)

const (
	hnBaseURL      = "https://hacker-news.firebaseio.com/v0"
	hnPermalinkFmt = "https://news.ycombinator.com/item?id=%d"
	hnTimeout      = 30 * time.Second
	hnItemType     = "story"

	// hnMaxKids bounds how many child comment ids are kept in the payload.
	hnMaxKids = 10
)

// hnStory is the Firebase item document. Missing items decode as null.
type hnStory struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	By          string  `json:"by"`
	Time        int64   `json:"time"`
	Text        string  `json:"text"`
	Dead        bool    `json:"dead"`
	Deleted     bool    `json:"deleted"`
	Kids        []int64 `json:"kids"`
	URL         string  `json:"url"`
	Score       int     `json:"score"`
	Title       string  `json:"title"`
	Descendants int     `json:"descendants"`
}

// HNIngester harvests Hacker News story listings via the Firebase API.
type HNIngester struct {
	baseURL    string
	httpClient *http.Client
	maxItems   int
	logger     *zerolog.Logger
}

func NewHNIngester(maxItems int, logger *zerolog.Logger) *HNIngester {
	return &HNIngester{
		baseURL: hnBaseURL,
		httpClient: &http.Client{
			Timeout: hnTimeout,
		},
		maxItems: maxItems,
		logger:   logger,
	}
}

func (h *HNIngester) SourceType() string { return db.SourceTypeHN }

// Fetch pulls the listing configured on the source (top, new or best) and
// resolves each story document. A story that fails to fetch is logged and
// skipped; a failing listing fails the whole run.
func (h *HNIngester) Fetch(ctx context.Context, src *db.Source) ([]NormalizedItem, error) {
	ids, err := h.fetchListing(ctx, src.StoryType())
	if err != nil {
		return nil, err
	}

	if len(ids) > h.maxItems {
		ids = ids[:h.maxItems]
	}

	items := make([]NormalizedItem, 0, len(ids))

	for _, id := range ids {
		story, err := h.fetchStory(ctx, id)
		if err != nil {
			h.logger.Warn().Err(err).Int64("story_id", id).Msg("Failed to fetch story")

			continue
		}

		item, ok := normalizeStory(story)
		if !ok {
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

func (h *HNIngester) fetchListing(ctx context.Context, storyType string) ([]int64, error) {
	listingURL := fmt.Sprintf("%s/%sstories.json", h.baseURL, storyType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf(wrapCreateRequest, err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(wrapHTTPStatusFmt, errHTTPStatus, resp.StatusCode)
	}

	var ids []int64

	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	return ids, nil
}

func (h *HNIngester) fetchStory(ctx context.Context, id int64) (*hnStory, error) {
	storyURL := fmt.Sprintf("%s/item/%d.json", h.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, storyURL, nil)
	if err != nil {
		return nil, fmt.Errorf(wrapCreateRequest, err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch story: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(wrapHTTPStatusFmt, errHTTPStatus, resp.StatusCode)
	}

	var story *hnStory

	if err := json.NewDecoder(resp.Body).Decode(&story); err != nil {
		return nil, fmt.Errorf("decode story: %w", err)
	}

	return story, nil
}

// normalizeStory filters out non-stories and dead or deleted entries. Text
// posts keep the HN permalink as their URL; link posts keep the submitted
// URL and record it as canonical.
func normalizeStory(story *hnStory) (NormalizedItem, bool) {
	if story == nil || story.Type != hnItemType || story.Deleted || story.Dead {
		return NormalizedItem{}, false
	}

	title := strings.TrimSpace(story.Title)
	if title == "" {
		return NormalizedItem{}, false
	}

	permalink := fmt.Sprintf(hnPermalinkFmt, story.ID)

	itemURL := story.URL
	if itemURL == "" {
		itemURL = permalink
	}

	kind := db.ItemKindArticle
	if isDiscussionTitle(title) {
		kind = db.ItemKindPost
	}

	kids := story.Kids
	if len(kids) > hnMaxKids {
		kids = kids[:hnMaxKids]
	}

	var publishedAt *time.Time

	if story.Time > 0 {
		ts := time.Unix(story.Time, 0).UTC()
		publishedAt = &ts
	}

	return NormalizedItem{
		ExternalID:   strconv.FormatInt(story.ID, 10),
		URL:          itemURL,
		CanonicalURL: story.URL,
		Title:        title,
		Author:       story.By,
		Kind:         kind,
		RawText:      story.Text,
		PublishedAt:  publishedAt,
		Payload: map[string]any{
			"hn_id":       story.ID,
			"score":       story.Score,
			"descendants": story.Descendants,
			"by":          story.By,
			"hn_url":      permalink,
			"kids":        kids,
		},
	}, true
}

func isDiscussionTitle(title string) bool {
	for _, prefix := range []string{"Ask HN:", "Show HN:", "Tell HN:"} {
		if strings.HasPrefix(title, prefix) {
			return true
		}
	}

	return false
}
