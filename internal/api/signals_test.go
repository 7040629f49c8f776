package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/tidesignal/newsbrief/internal/storage"
)

func sampleSignal(id string) db.Signal {
	published := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

	return db.Signal{
		ID:          id,
		Title:       "Vector database pricing shakeup",
		URL:         "https://example.com/story",
		SourceName:  "Example Wire",
		SourceType:  db.SourceTypeFeed,
		Category:    "ai",
		PublishedAt: &published,
		RawText:     strings.Repeat("body ", 80),
		SignalScore: 0.71875,
		Relevance:   0.8125,
		Velocity:    0.5,
		CrossSource: 0.25,
		Novelty:     0.875,
	}
}

func TestListSignalsDefaults(t *testing.T) {
	repo := &mockRepository{signals: []db.Signal{sampleSignal(uuid.NewString()), sampleSignal(uuid.NewString())}}
	srv := newTestServer(repo, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals", "", "")

	require.Equal(t, http.StatusOK, rec.Code)

	assert.InDelta(t, 0.5, repo.gotFilter.MinScore, 1e-9)
	assert.Equal(t, 24, repo.gotFilter.Hours)
	assert.Equal(t, 50, repo.gotFilter.Limit)
	assert.Equal(t, 0, repo.gotFilter.Offset)
	assert.Empty(t, repo.gotFilter.Category)
	assert.Empty(t, repo.gotFilter.SourceType)

	var payload signalListResponse
	decodeResponse(t, rec, &payload)
	require.Len(t, payload.Signals, 2)
	assert.Equal(t, 2, payload.Total)
	assert.False(t, payload.HasMore)
}

func TestListSignalsWireShape(t *testing.T) {
	repo := &mockRepository{signals: []db.Signal{sampleSignal(uuid.NewString())}}
	srv := newTestServer(repo, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals", "", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	decodeResponse(t, rec, &payload)
	require.Contains(t, payload, "signals")
	require.Contains(t, payload, "total")
	require.Contains(t, payload, "has_more")

	signals, ok := payload["signals"].([]any)
	require.True(t, ok)
	require.Len(t, signals, 1)

	first, ok := signals[0].(map[string]any)
	require.True(t, ok)

	for _, key := range []string{
		"id", "title", "url", "source_name", "source_type", "published_at",
		"signal_score", "relevance", "velocity", "cross_source", "novelty",
		"content_preview",
	} {
		assert.Contains(t, first, key)
	}

	assert.Equal(t, "2025-03-14T09:30:00Z", first["published_at"])
}

func TestListSignalsRoundsScores(t *testing.T) {
	repo := &mockRepository{signals: []db.Signal{sampleSignal(uuid.NewString())}}
	srv := newTestServer(repo, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals", "", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var payload signalListResponse
	decodeResponse(t, rec, &payload)
	require.Len(t, payload.Signals, 1)

	got := payload.Signals[0]
	assert.InDelta(t, 0.719, got.SignalScore, 1e-9)
	assert.InDelta(t, 0.813, got.Relevance, 1e-9)
	assert.InDelta(t, 0.5, got.Velocity, 1e-9)
	assert.InDelta(t, 0.25, got.CrossSource, 1e-9)
	assert.InDelta(t, 0.875, got.Novelty, 1e-9)
}

func TestListSignalsClipsPreview(t *testing.T) {
	repo := &mockRepository{signals: []db.Signal{sampleSignal(uuid.NewString())}}
	srv := newTestServer(repo, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals", "", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var payload signalListResponse
	decodeResponse(t, rec, &payload)
	require.Len(t, payload.Signals, 1)

	assert.Len(t, payload.Signals[0].ContentPreview, previewChars)
	assert.Equal(t, strings.Repeat("body ", 60), payload.Signals[0].ContentPreview)
}

// Total reports the page size plus one when another page exists, so clients
// can tell "exactly N" from "at least N" without a count query.
func TestListSignalsTotalSignalsMorePages(t *testing.T) {
	repo := &mockRepository{
		signals: []db.Signal{sampleSignal(uuid.NewString()), sampleSignal(uuid.NewString())},
		hasMore: true,
	}
	srv := newTestServer(repo, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals", "", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var payload signalListResponse
	decodeResponse(t, rec, &payload)
	assert.Equal(t, 3, payload.Total)
	assert.True(t, payload.HasMore)
}

func TestListSignalsCustomFilter(t *testing.T) {
	repo := &mockRepository{}
	srv := newTestServer(repo, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet,
		"/api/v1/signals?min_score=0.8&hours=48&limit=5&offset=10&category=dev&source_type=hn", "", "")

	require.Equal(t, http.StatusOK, rec.Code)

	assert.InDelta(t, 0.8, repo.gotFilter.MinScore, 1e-9)
	assert.Equal(t, 48, repo.gotFilter.Hours)
	assert.Equal(t, 5, repo.gotFilter.Limit)
	assert.Equal(t, 10, repo.gotFilter.Offset)
	assert.Equal(t, "dev", repo.gotFilter.Category)
	assert.Equal(t, db.SourceTypeHN, repo.gotFilter.SourceType)
}

func TestListSignalsRejectsBadParams(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		wantIn string
	}{
		{name: "min_score above one", query: "min_score=1.5", wantIn: "min_score"},
		{name: "min_score not a number", query: "min_score=abc", wantIn: "min_score"},
		{name: "hours zero", query: "hours=0", wantIn: "hours"},
		{name: "hours above a week", query: "hours=200", wantIn: "hours"},
		{name: "limit zero", query: "limit=0", wantIn: "limit"},
		{name: "limit above cap", query: "limit=101", wantIn: "limit"},
		{name: "offset negative", query: "offset=-1", wantIn: "offset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{}
			srv := newTestServer(repo, &stubGenerator{})

			rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals?"+tt.query, "", "")

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorMessage(t, rec), tt.wantIn)
		})
	}
}

func TestListSignalsStorageError(t *testing.T) {
	repo := &mockRepository{signalsErr: errStorageDown}
	srv := newTestServer(repo, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals", "", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, errMsgListSignals, errorMessage(t, rec))
}

func TestTopSignalsDefaults(t *testing.T) {
	repo := &mockRepository{top: []db.Signal{sampleSignal(uuid.NewString())}}
	srv := newTestServer(repo, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals/top", "", "")

	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, defaultTopLimit, repo.gotTopLimit)
	assert.InDelta(t, topSignalsMinScore, repo.gotTopScore, 1e-9)

	var payload []signalResponse
	decodeResponse(t, rec, &payload)
	require.Len(t, payload, 1)
}

func TestTopSignalsLimitBounds(t *testing.T) {
	repo := &mockRepository{}
	srv := newTestServer(repo, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals/top?limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, repo.gotTopLimit)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/signals/top?limit=0", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/signals/top?limit=51", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSignalInvalidID(t *testing.T) {
	srv := newTestServer(&mockRepository{}, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals/not-a-uuid", "", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errMsgInvalidSignalID, errorMessage(t, rec))
}

func TestGetSignalNotFound(t *testing.T) {
	srv := newTestServer(&mockRepository{}, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals/"+uuid.NewString(), "", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errMsgSignalNotFound, errorMessage(t, rec))
}

func TestGetSignalDetail(t *testing.T) {
	signalID := uuid.NewString()
	repo := &mockRepository{detail: &db.SignalDetail{
		Signal:       sampleSignal(signalID),
		CanonicalURL: "https://example.com/story?utm=x",
		ScoreMeta:    map[string]any{"relevance_reason": "core topic"},
	}}
	srv := newTestServer(repo, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals/"+signalID, "", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var payload signalDetailResponse
	decodeResponse(t, rec, &payload)
	assert.Equal(t, signalID, payload.ID)
	assert.Equal(t, strings.Repeat("body ", 80), payload.RawText)
	assert.Equal(t, "https://example.com/story?utm=x", payload.CanonicalURL)
	assert.Equal(t, "core topic", payload.ScoreExplanation["relevance_reason"])
}

func TestCategoryStats(t *testing.T) {
	repo := &mockRepository{stats: []db.CategoryStat{
		{Category: "ai", Count: 12, AvgScore: 0.65625},
		{Category: "dev", Count: 4, AvgScore: 0.5},
	}}
	srv := newTestServer(repo, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals/categories/stats?hours=72", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 72, repo.gotHours)

	var payload []categoryStatResponse
	decodeResponse(t, rec, &payload)
	require.Len(t, payload, 2)
	assert.Equal(t, "ai", payload[0].Category)
	assert.Equal(t, 12, payload[0].Count)
	assert.InDelta(t, 0.656, payload[0].AvgScore, 1e-9)
}

func TestCategoryStatsRejectsBadHours(t *testing.T) {
	srv := newTestServer(&mockRepository{}, &stubGenerator{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/signals/categories/stats?hours=0", "", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
