package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/tidesignal/newsbrief/internal/storage"
)

var errStorageDown = errors.New("storage down")

// mockRepository implements Repository for testing.
type mockRepository struct {
	items    []db.RawItem
	itemsErr error

	saved    []*db.ExtractedContent
	saveErr  error
	advanced map[string]string
}

func (m *mockRepository) GetItemsByStatus(_ context.Context, _ string, _ int) ([]db.RawItem, error) {
	return m.items, m.itemsErr
}

func (m *mockRepository) SaveExtractedContent(_ context.Context, ec *db.ExtractedContent) error {
	if m.saveErr != nil {
		return m.saveErr
	}

	m.saved = append(m.saved, ec)

	return nil
}

func (m *mockRepository) AdvanceStatus(_ context.Context, id, _, to string) error {
	if m.advanced == nil {
		m.advanced = make(map[string]string)
	}

	m.advanced[id] = to

	return nil
}

// stubExtractor returns a canned result per URL.
type stubExtractor struct {
	results map[string]*Result
}

func (s *stubExtractor) ExtractURL(_ context.Context, rawURL string) *Result {
	return s.results[rawURL]
}

func newTestWorker(repo Repository, ext URLExtractor) *Worker {
	return &Worker{repo: repo, extractor: ext, batchSize: 100, logger: testLogger()}
}

func TestProcessBatchSavesAndAdvances(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-1", URL: "https://example.com/a", Status: db.StatusNew},
		},
	}

	ext := &stubExtractor{results: map[string]*Result{
		"https://example.com/a": {
			Text:      "Enough words here.",
			WordCount: 120,
			Method:    methodTrafilatura,
			Quality:   qualityTrafilatura,
			FinalURL:  "https://example.com/a",
		},
	}}

	w := newTestWorker(repo, ext)

	processed, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	require.Len(t, repo.saved, 1)
	assert.Equal(t, "item-1", repo.saved[0].RawItemID)
	assert.Equal(t, 120, repo.saved[0].WordCount)
	assert.Equal(t, db.StatusExtracted, repo.advanced["item-1"])
}

func TestProcessBatchAdvancesOnExtractionFailure(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-1", URL: "https://example.com/broken", Status: db.StatusNew},
		},
	}

	w := newTestWorker(repo, &stubExtractor{})

	_, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)

	// Extraction failed but the item is not blocked.
	assert.Empty(t, repo.saved)
	assert.Equal(t, db.StatusExtracted, repo.advanced["item-1"])
}

func TestProcessBatchSkipsBlacklistedDomains(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-1", URL: "https://twitter.com/user/status/1", Status: db.StatusNew},
			{ID: "item-2", URL: "https://news.ycombinator.com/item?id=2", Status: db.StatusNew},
		},
	}

	ext := &stubExtractor{results: map[string]*Result{
		"https://twitter.com/user/status/1":      {Text: "never used", WordCount: 99},
		"https://news.ycombinator.com/item?id=2": {Text: "never used", WordCount: 99},
	}}

	w := newTestWorker(repo, ext)

	_, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, repo.saved)
	assert.Equal(t, db.StatusExtracted, repo.advanced["item-1"])
	assert.Equal(t, db.StatusExtracted, repo.advanced["item-2"])
}

func TestProcessBatchKeepsItemOnSaveFailure(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-1", URL: "https://example.com/a", Status: db.StatusNew},
		},
		saveErr: errStorageDown,
	}

	ext := &stubExtractor{results: map[string]*Result{
		"https://example.com/a": {Text: "body", WordCount: 80},
	}}

	w := newTestWorker(repo, ext)

	_, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)

	// Item stays at new so the next tick retries.
	assert.Empty(t, repo.advanced)
}

func TestProcessBatchPropagatesListError(t *testing.T) {
	repo := &mockRepository{itemsErr: errStorageDown}

	w := newTestWorker(repo, &stubExtractor{})

	_, err := w.ProcessBatch(context.Background())
	assert.ErrorIs(t, err, errStorageDown)
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name string
		item db.RawItem
		want bool
	}{
		{name: "empty url", item: db.RawItem{}, want: true},
		{name: "twitter", item: db.RawItem{URL: "https://twitter.com/a/status/1"}, want: true},
		{name: "x.com", item: db.RawItem{URL: "https://x.com/a/status/1"}, want: true},
		{name: "youtube", item: db.RawItem{URL: "https://www.youtube.com/watch?v=x"}, want: true},
		{name: "reddit subpage", item: db.RawItem{URL: "https://old.reddit.com/r/golang/comments/x/"}, want: true},
		{name: "hn self post", item: db.RawItem{URL: "https://news.ycombinator.com/item?id=42", Kind: db.ItemKindPost}, want: true},
		{name: "regular article", item: db.RawItem{URL: "https://example.com/story"}, want: false},
		{name: "domain suffix only in path", item: db.RawItem{URL: "https://example.com/twitter.com"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldSkip(&tt.item))
		})
	}
}
