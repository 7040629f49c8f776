package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidesignal/newsbrief/internal/platform/config"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

var errListingDown = errors.New("listing down")

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()

	return &logger
}

// mockRepository implements Repository for testing.
type mockRepository struct {
	sources    []db.Source
	sourcesErr error
	source     *db.Source
	sourceErr  error

	inserted  []*db.RawItem
	insertOK  bool
	insertErr error
}

func (m *mockRepository) GetEnabledSources(_ context.Context) ([]db.Source, error) {
	return m.sources, m.sourcesErr
}

func (m *mockRepository) GetSource(_ context.Context, _ string) (*db.Source, error) {
	return m.source, m.sourceErr
}

func (m *mockRepository) InsertRawItem(_ context.Context, item *db.RawItem) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}

	m.inserted = append(m.inserted, item)

	return m.insertOK, nil
}

// stubIngester returns canned items for a given source type.
type stubIngester struct {
	sourceType string
	items      []NormalizedItem
	err        error
}

func (s *stubIngester) SourceType() string { return s.sourceType }

func (s *stubIngester) Fetch(_ context.Context, _ *db.Source) ([]NormalizedItem, error) {
	return s.items, s.err
}

func newTestService(repo Repository, ingesters ...Ingester) *Service {
	byType := make(map[string]Ingester, len(ingesters))
	for _, ing := range ingesters {
		byType[ing.SourceType()] = ing
	}

	return &Service{repo: repo, ingesters: byType, logger: testLogger()}
}

func TestContentHash(t *testing.T) {
	hash := ContentHash("Title", "Body text")

	assert.Len(t, hash, 64)
	assert.Equal(t, hash, ContentHash("Title", "Body text"))
	assert.NotEqual(t, hash, ContentHash("Title", "Other body"))

	// Whitespace-only content must not produce a hash.
	assert.Empty(t, ContentHash("", "   "))
	assert.Empty(t, ContentHash("", ""))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short unchanged", input: "hello", maxLen: 10, want: "hello"},
		{name: "exact unchanged", input: "hello", maxLen: 5, want: "hello"},
		{name: "clipped", input: "hello world", maxLen: 5, want: "hello"},
		{name: "multibyte not split", input: "héllo", maxLen: 2, want: "h"},
		{name: "empty", input: "", maxLen: 5, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.input, tt.maxLen))
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", firstNonEmpty("a", "b"))
	assert.Equal(t, "b", firstNonEmpty("", "b"))
	assert.Equal(t, "b", firstNonEmpty("  ", "b"))
	assert.Empty(t, firstNonEmpty("", " "))
}

func TestIngestAllPersistsNewItems(t *testing.T) {
	published := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)

	repo := &mockRepository{
		sources: []db.Source{
			{ID: "11111111-1111-1111-1111-111111111111", Name: "Example Feed", Type: db.SourceTypeFeed, Enabled: true},
		},
		insertOK: true,
	}

	svc := newTestService(repo, &stubIngester{
		sourceType: db.SourceTypeFeed,
		items: []NormalizedItem{
			{
				ExternalID:  "guid-1",
				URL:         "https://example.com/a",
				Title:       "Article A",
				Kind:        db.ItemKindArticle,
				RawText:     "Body A",
				PublishedAt: &published,
			},
			{
				ExternalID: "guid-2",
				URL:        "https://example.com/b",
				Title:      "Article B",
				Kind:       db.ItemKindArticle,
			},
		},
	})

	res, err := svc.IngestAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.SourcesProcessed)
	assert.Equal(t, 2, res.ItemsFetched)
	assert.Equal(t, 2, res.ItemsInserted)
	assert.Zero(t, res.Errors)

	require.Len(t, repo.inserted, 2)
	first := repo.inserted[0]
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", first.SourceID)
	assert.Equal(t, db.StatusNew, first.Status)
	assert.Equal(t, ContentHash("Article A", "Body A"), first.ContentHash)
	assert.False(t, first.FetchedAt.IsZero())
}

func TestIngestAllSkipsExistingItems(t *testing.T) {
	repo := &mockRepository{
		sources:  []db.Source{{ID: "src", Name: "Feed", Type: db.SourceTypeFeed, Enabled: true}},
		insertOK: false, // conflict path: row already present
	}

	svc := newTestService(repo, &stubIngester{
		sourceType: db.SourceTypeFeed,
		items:      []NormalizedItem{{ExternalID: "guid-1", URL: "https://example.com/a", Title: "A"}},
	})

	res, err := svc.IngestAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.ItemsFetched)
	assert.Zero(t, res.ItemsInserted)
}

func TestIngestAllContinuesPastFailingSource(t *testing.T) {
	repo := &mockRepository{
		sources: []db.Source{
			{ID: "src-1", Name: "Broken", Type: db.SourceTypeHN, Enabled: true},
			{ID: "src-2", Name: "Working", Type: db.SourceTypeFeed, Enabled: true},
		},
		insertOK: true,
	}

	svc := newTestService(repo,
		&stubIngester{sourceType: db.SourceTypeHN, err: errListingDown},
		&stubIngester{
			sourceType: db.SourceTypeFeed,
			items:      []NormalizedItem{{ExternalID: "guid-1", URL: "https://example.com/a", Title: "A"}},
		},
	)

	res, err := svc.IngestAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.SourcesProcessed)
	assert.Equal(t, 1, res.ItemsInserted)
}

func TestIngestSourceNotFound(t *testing.T) {
	svc := newTestService(&mockRepository{})

	_, err := svc.IngestSource(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestIngestSourceDisabled(t *testing.T) {
	repo := &mockRepository{
		source: &db.Source{ID: "src", Name: "Disabled", Type: db.SourceTypeFeed, Enabled: false},
	}

	svc := newTestService(repo)

	res, err := svc.IngestSource(context.Background(), "src")
	require.NoError(t, err)
	assert.Zero(t, res.SourcesProcessed)
	assert.Empty(t, repo.inserted)
}

func TestIngestSourceUnknownType(t *testing.T) {
	repo := &mockRepository{
		source: &db.Source{ID: "src", Name: "Odd", Type: "newsletter", Enabled: true},
	}

	svc := newTestService(repo)

	_, err := svc.IngestSource(context.Background(), "src")
	assert.ErrorIs(t, err, ErrUnknownSourceType)
}

func TestNewServiceRegistersAllSourceTypes(t *testing.T) {
	svc := NewService(config.IngestConfig{MaxItemsPerSource: 100}, &mockRepository{}, testLogger())

	for _, sourceType := range []string{db.SourceTypeFeed, db.SourceTypeHN, db.SourceTypeReddit} {
		_, ok := svc.ingesters[sourceType]
		assert.True(t, ok, "missing ingester for %s", sourceType)
	}
}
