package dedup

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

type assignment struct {
	canonicalID string
	similarity  float32
}

type mockRepository struct {
	items       []db.RawItem
	itemsErr    error
	memberships map[string]*db.ClusterMember
	byURL       map[string]*db.RawItem
	byTitle     map[string]*db.RawItem
	embeddings  map[string]*db.ItemEmbedding
	matches     map[string][]db.SemanticMatch
	assignErr   error
	assigned    map[string]assignment
	singletons  []string
	advanced    map[string]string
	merged      [][]string
	mergeMoved  int64
	archived    int64
}

func (m *mockRepository) GetUnclusteredEmbedded(_ context.Context, limit int) ([]db.RawItem, error) {
	if m.itemsErr != nil {
		return nil, m.itemsErr
	}

	if len(m.items) > limit {
		return m.items[:limit], nil
	}

	return m.items, nil
}

func (m *mockRepository) GetClusterMembership(_ context.Context, rawItemID string) (*db.ClusterMember, error) {
	return m.memberships[rawItemID], nil
}

func (m *mockRepository) FindItemByURL(_ context.Context, url, _ string) (*db.RawItem, error) {
	return m.byURL[url], nil
}

func (m *mockRepository) FindItemByTitle(_ context.Context, title string, _ time.Time, _ string) (*db.RawItem, error) {
	return m.byTitle[title], nil
}

func (m *mockRepository) GetItemEmbedding(_ context.Context, rawItemID string) (*db.ItemEmbedding, error) {
	return m.embeddings[rawItemID], nil
}

func (m *mockRepository) FindSemanticMatches(_ context.Context, excludeID string, _ []float32, _ float32, _ time.Time, _ int) ([]db.SemanticMatch, error) {
	return m.matches[excludeID], nil
}

func (m *mockRepository) AssignToCluster(_ context.Context, rawItemID, canonicalItemID string, similarity float32) (string, error) {
	if m.assignErr != nil {
		return "", m.assignErr
	}

	if m.assigned == nil {
		m.assigned = make(map[string]assignment)
	}

	m.assigned[rawItemID] = assignment{canonicalID: canonicalItemID, similarity: similarity}

	return "cluster-" + canonicalItemID, nil
}

func (m *mockRepository) CreateSingletonCluster(_ context.Context, rawItemID string) (string, error) {
	m.singletons = append(m.singletons, rawItemID)

	return "cluster-" + rawItemID, nil
}

func (m *mockRepository) AdvanceStatus(_ context.Context, id, _, to string) error {
	if m.advanced == nil {
		m.advanced = make(map[string]string)
	}

	m.advanced[id] = to

	return nil
}

func (m *mockRepository) MergeClusters(_ context.Context, clusterIDs []string) (int64, error) {
	m.merged = append(m.merged, clusterIDs)

	return m.mergeMoved, nil
}

func (m *mockRepository) ArchiveOldClusters(_ context.Context, _ time.Time) (int64, error) {
	return m.archived, nil
}

func newTestWorker(repo *mockRepository) *Worker {
	return NewWorker(repo, 0.92, 10, testLogger())
}

func TestProcessBatchJoinsExactURLMatch(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-new", URL: "https://example.com/story", Title: "Acme ships X"},
		},
		byURL: map[string]*db.RawItem{
			"https://example.com/story": {ID: "item-old"},
		},
	}

	processed, err := newTestWorker(repo).ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	got, ok := repo.assigned["item-new"]
	require.True(t, ok)
	assert.Equal(t, "item-old", got.canonicalID)
	assert.InDelta(t, 1.0, got.similarity, 1e-6)

	assert.Equal(t, db.StatusClustered, repo.advanced["item-new"])
	assert.Empty(t, repo.singletons)
}

func TestProcessBatchJoinsExactTitleMatch(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-new", URL: "https://example.com/a", Title: "Acme ships X"},
		},
		byTitle: map[string]*db.RawItem{
			"Acme ships X": {ID: "item-old"},
		},
	}

	_, err := newTestWorker(repo).ProcessBatch(context.Background())
	require.NoError(t, err)

	got, ok := repo.assigned["item-new"]
	require.True(t, ok)
	assert.Equal(t, "item-old", got.canonicalID)
	assert.InDelta(t, 1.0, got.similarity, 1e-6)
}

func TestProcessBatchJoinsBestSemanticMatch(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-new", URL: "https://example.com/a", Title: "Acme releases X today"},
		},
		embeddings: map[string]*db.ItemEmbedding{
			"item-new": {RawItemID: "item-new", Embedding: []float32{0.1, 0.2}},
		},
		matches: map[string][]db.SemanticMatch{
			"item-new": {
				{RawItemID: "item-best", Similarity: 0.95},
				{RawItemID: "item-second", Similarity: 0.93},
			},
		},
	}

	_, err := newTestWorker(repo).ProcessBatch(context.Background())
	require.NoError(t, err)

	got, ok := repo.assigned["item-new"]
	require.True(t, ok)
	assert.Equal(t, "item-best", got.canonicalID)
	assert.InDelta(t, 0.95, got.similarity, 1e-6)
}

func TestProcessBatchOpensSingletonWhenNoMatch(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-new", URL: "https://example.com/a", Title: "Unique story"},
		},
		embeddings: map[string]*db.ItemEmbedding{
			"item-new": {RawItemID: "item-new", Embedding: []float32{0.1, 0.2}},
		},
	}

	_, err := newTestWorker(repo).ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"item-new"}, repo.singletons)
	assert.Empty(t, repo.assigned)
	assert.Equal(t, db.StatusClustered, repo.advanced["item-new"])
}

func TestProcessBatchSingletonWithoutEmbedding(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-new", URL: "https://example.com/a", Title: "Unique story"},
		},
	}

	_, err := newTestWorker(repo).ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"item-new"}, repo.singletons)
}

func TestProcessBatchAdvancesAlreadyClusteredItem(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-new", URL: "https://example.com/a", Title: "Already in"},
		},
		memberships: map[string]*db.ClusterMember{
			"item-new": {ClusterID: "cluster-1", RawItemID: "item-new"},
		},
	}

	_, err := newTestWorker(repo).ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, repo.assigned)
	assert.Empty(t, repo.singletons)
	assert.Equal(t, db.StatusClustered, repo.advanced["item-new"])
}

func TestProcessBatchKeepsItemOnAssignmentFailure(t *testing.T) {
	repo := &mockRepository{
		items: []db.RawItem{
			{ID: "item-new", URL: "https://example.com/story", Title: "Acme ships X"},
		},
		byURL: map[string]*db.RawItem{
			"https://example.com/story": {ID: "item-old"},
		},
		assignErr: errStorageDown,
	}

	_, err := newTestWorker(repo).ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, repo.advanced)
}

func TestProcessBatchPropagatesListError(t *testing.T) {
	repo := &mockRepository{itemsErr: errStorageDown}

	_, err := newTestWorker(repo).ProcessBatch(context.Background())
	require.ErrorIs(t, err, errStorageDown)
}

func TestMerge(t *testing.T) {
	repo := &mockRepository{mergeMoved: 3}

	moved, err := newTestWorker(repo).Merge(context.Background(), []string{"c1", "c2", "c3"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), moved)

	require.Len(t, repo.merged, 1)
	assert.Equal(t, []string{"c1", "c2", "c3"}, repo.merged[0])
}

func TestArchiveOld(t *testing.T) {
	repo := &mockRepository{archived: 2}

	archived, err := newTestWorker(repo).ArchiveOld(context.Background(), 30*db.HoursPerDay*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), archived)
}
