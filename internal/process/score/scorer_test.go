package score

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/tidesignal/newsbrief/internal/storage"
)

var errStorageDown = errors.New("storage down")

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()

	return &l
}

type mockRepository struct {
	items        []db.RawItem
	itemsErr     error
	sources      map[string]*db.Source
	clusterSizes map[string]int
	scores       []*db.ItemScore
	insertErr    error
	advanced     map[string]string
}

func (m *mockRepository) GetItemsByStatus(_ context.Context, _ string, limit int) ([]db.RawItem, error) {
	if m.itemsErr != nil {
		return nil, m.itemsErr
	}

	if len(m.items) > limit {
		return m.items[:limit], nil
	}

	return m.items, nil
}

func (m *mockRepository) GetSource(_ context.Context, id string) (*db.Source, error) {
	return m.sources[id], nil
}

func (m *mockRepository) GetClusterSize(_ context.Context, rawItemID string) (int, error) {
	return m.clusterSizes[rawItemID], nil
}

func (m *mockRepository) InsertItemScore(_ context.Context, score *db.ItemScore) error {
	if m.insertErr != nil {
		return m.insertErr
	}

	m.scores = append(m.scores, score)

	return nil
}

func (m *mockRepository) AdvanceStatus(_ context.Context, id, _, to string) error {
	if m.advanced == nil {
		m.advanced = make(map[string]string)
	}

	m.advanced[id] = to

	return nil
}

// stubRelevance returns a fixed relevance score.
type stubRelevance struct {
	score float64
}

func (s stubRelevance) Score(_ context.Context, _ *db.RawItem, _ *db.Source) float64 {
	return s.score
}

func newTestWorker(repo *mockRepository, relevance RelevanceScorer) *Worker {
	return NewWorker(repo, relevance, Options{
		BatchSize:           10,
		HighSignalThreshold: 0.6,
	}, testLogger())
}

func hoursAgo(h int) *time.Time {
	t := time.Now().UTC().Add(-time.Duration(h) * time.Hour)

	return &t
}

func TestProcessBatchScoresAndAdvances(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-1", SourceID: "src-1", Title: "Acme ships a new database engine", PublishedAt: hoursAgo(1)},
		},
		sources: map[string]*db.Source{
			"src-1": {ID: "src-1", Name: "Acme Blog", CredibilityTier: 4},
		},
		clusterSizes: map[string]int{"item-1": 2},
	}

	processed, err := newTestWorker(repo, stubRelevance{score: 0.8}).ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	require.Len(t, repo.scores, 1)
	score := repo.scores[0]
	assert.Equal(t, "item-1", score.RawItemID)
	assert.InDelta(t, 0.8, score.Relevance, 1e-9)
	assert.InDelta(t, 0.5, score.Velocity, 1e-9)
	assert.InDelta(t, 0.7, score.CrossSource, 1e-9)
	assert.InDelta(t, 0.9, score.Novelty, 1e-9)

	assert.Equal(t, db.StatusScored, repo.advanced["item-1"])
}

// relevance=0.8, velocity=0.5, cross_source=0.7, novelty=0.9 gives
// 0.32 + 0.10 + 0.14 + 0.18 = 0.74.
func TestSignalScoreMath(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-1", SourceID: "src-1", Title: "Acme ships a new database engine", PublishedAt: hoursAgo(1)},
		},
		sources: map[string]*db.Source{
			"src-1": {ID: "src-1", Name: "Acme Blog", CredibilityTier: 4},
		},
		clusterSizes: map[string]int{"item-1": 2},
	}

	_, err := newTestWorker(repo, stubRelevance{score: 0.8}).ProcessBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, repo.scores, 1)
	signal := repo.scores[0].SignalScore
	assert.GreaterOrEqual(t, signal, 0.739)
	assert.LessOrEqual(t, signal, 0.741)
}

func TestProcessBatchRecordsScoreMeta(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-1", SourceID: "src-1", Title: "Acme ships a new database engine", PublishedAt: hoursAgo(1)},
		},
		sources: map[string]*db.Source{
			"src-1": {ID: "src-1", Name: "Acme Blog", CredibilityTier: 4},
		},
	}

	_, err := newTestWorker(repo, stubRelevance{score: 0.8}).ProcessBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, repo.scores, 1)
	meta := repo.scores[0].ScoreMeta

	weights, ok := meta["weights"].(map[string]float64)
	require.True(t, ok)
	assert.InDelta(t, 0.40, weights["relevance"], 1e-9)
	assert.InDelta(t, 0.20, weights["velocity"], 1e-9)

	assert.Contains(t, meta, "components")
	assert.Contains(t, meta, "computed_at")
	assert.Equal(t, false, meta["ai_scored"])
}

func TestProcessBatchKeepsItemOnMissingSource(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-1", SourceID: "src-gone", Title: "Orphaned item"},
		},
	}

	_, err := newTestWorker(repo, stubRelevance{score: 0.5}).ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, repo.scores)
	assert.Empty(t, repo.advanced)
}

func TestProcessBatchKeepsItemOnInsertFailure(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-1", SourceID: "src-1", Title: "Acme ships a new database engine"},
		},
		sources: map[string]*db.Source{
			"src-1": {ID: "src-1", Name: "Acme Blog", CredibilityTier: 3},
		},
		insertErr: errStorageDown,
	}

	_, err := newTestWorker(repo, stubRelevance{score: 0.5}).ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, repo.advanced)
}

func TestProcessBatchPropagatesListError(t *testing.T) {
	repo := &mockRepository{itemsErr: errStorageDown}

	_, err := newTestWorker(repo, stubRelevance{score: 0.5}).ProcessBatch(context.Background())
	require.ErrorIs(t, err, errStorageDown)
}

func TestVelocityScore(t *testing.T) {
	tests := []struct {
		name string
		item db.RawItem
		want float64
	}{
		{
			name: "hn item normalized against 200",
			item: db.RawItem{RawPayload: map[string]any{"hn_id": float64(1), "score": float64(100)}},
			want: 0.5,
		},
		{
			name: "hn item saturates at 1",
			item: db.RawItem{RawPayload: map[string]any{"hn_id": float64(1), "score": float64(900)}},
			want: 1.0,
		},
		{
			name: "reddit item uses score and ratio",
			item: db.RawItem{RawPayload: map[string]any{"reddit_id": "abc", "score": float64(250), "upvote_ratio": 0.8}},
			want: 0.4,
		},
		{
			name: "reddit item missing ratio takes midpoint ratio",
			item: db.RawItem{RawPayload: map[string]any{"reddit_id": "abc", "score": float64(500)}},
			want: 0.5,
		},
		{
			name: "feed item takes default",
			item: db.RawItem{RawPayload: map[string]any{"feed_title": "Acme Blog"}},
			want: 0.5,
		},
		{
			name: "no payload takes default",
			item: db.RawItem{},
			want: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, velocityScore(&tt.item), 1e-9)
		})
	}
}

func TestCrossSourceScore(t *testing.T) {
	assert.InDelta(t, 0.3, crossSourceScore(0), 1e-9)
	assert.InDelta(t, 0.3, crossSourceScore(1), 1e-9)
	assert.InDelta(t, 0.7, crossSourceScore(2), 1e-9)
	assert.InDelta(t, 1.0, crossSourceScore(3), 1e-9)
	assert.InDelta(t, 1.0, crossSourceScore(7), 1e-9)
}

func TestNoveltyScoreBands(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name string
		item db.RawItem
		want float64
	}{
		{
			name: "published under six hours",
			item: db.RawItem{PublishedAt: hoursAgo(5)},
			want: 0.9,
		},
		{
			name: "published under a day",
			item: db.RawItem{PublishedAt: hoursAgo(12)},
			want: 0.7,
		},
		{
			name: "published under three days",
			item: db.RawItem{PublishedAt: hoursAgo(48)},
			want: 0.5,
		},
		{
			name: "published older",
			item: db.RawItem{PublishedAt: hoursAgo(100)},
			want: 0.3,
		},
		{
			name: "fetched fallback fresh",
			item: db.RawItem{FetchedAt: now.Add(-2 * time.Hour)},
			want: 0.8,
		},
		{
			name: "fetched fallback recent",
			item: db.RawItem{FetchedAt: now.Add(-10 * time.Hour)},
			want: 0.6,
		},
		{
			name: "fetched fallback stale",
			item: db.RawItem{FetchedAt: now.Add(-50 * time.Hour)},
			want: 0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, noveltyScore(&tt.item, now), 1e-9)
		})
	}
}

// Items exactly on the six hour boundary take the lower band; only strictly
// younger items get the higher one.
func TestNoveltyScoreSixHourBoundary(t *testing.T) {
	now := time.Now().UTC()

	justUnder := now.Add(-freshAge + time.Second)
	exactly := now.Add(-freshAge)

	assert.InDelta(t, 0.9, noveltyScore(&db.RawItem{PublishedAt: &justUnder}, now), 1e-9)
	assert.InDelta(t, 0.7, noveltyScore(&db.RawItem{PublishedAt: &exactly}, now), 1e-9)
}

func TestClamp01(t *testing.T) {
	assert.InDelta(t, 0.0, clamp01(-0.5), 1e-9)
	assert.InDelta(t, 0.5, clamp01(0.5), 1e-9)
	assert.InDelta(t, 1.0, clamp01(1.5), 1e-9)
}
