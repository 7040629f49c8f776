package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/tidesignal/newsbrief/internal/storage"
)

func newHNTestServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := responses[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		_, err := w.Write([]byte(body))
		if err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
}

func TestHNIngesterFetch(t *testing.T) {
	ts := newHNTestServer(t, map[string]string{
		"/topstories.json": `[1, 2, 3, 4]`,
		"/item/1.json": `{"id": 1, "type": "story", "by": "alice", "time": 1770000000,
			"url": "https://example.com/post", "score": 142, "title": "A Big Launch",
			"descendants": 87, "kids": [10, 11, 12]}`,
		"/item/2.json": `{"id": 2, "type": "story", "by": "bob", "time": 1770000100,
			"score": 15, "title": "Ask HN: How do you test?", "text": "Curious about setups.",
			"descendants": 9}`,
		"/item/3.json": `{"id": 3, "type": "story", "dead": true, "title": "Dead Story"}`,
		"/item/4.json": `null`,
	})
	defer ts.Close()

	ing := NewHNIngester(100, testLogger())
	ing.baseURL = ts.URL

	items, err := ing.Fetch(context.Background(), &db.Source{Name: "Hacker News", Type: db.SourceTypeHN})
	require.NoError(t, err)

	// Dead story and null document are dropped.
	require.Len(t, items, 2)

	link := items[0]
	assert.Equal(t, "1", link.ExternalID)
	assert.Equal(t, "https://example.com/post", link.URL)
	assert.Equal(t, "https://example.com/post", link.CanonicalURL)
	assert.Equal(t, db.ItemKindArticle, link.Kind)
	assert.Equal(t, "alice", link.Author)
	assert.Equal(t, int64(1), link.Payload["hn_id"])
	assert.Equal(t, 142, link.Payload["score"])
	assert.Equal(t, 87, link.Payload["descendants"])
	require.NotNil(t, link.PublishedAt)

	ask := items[1]
	assert.Equal(t, db.ItemKindPost, ask.Kind)
	assert.Equal(t, "https://news.ycombinator.com/item?id=2", ask.URL)
	assert.Empty(t, ask.CanonicalURL)
	assert.Equal(t, "Curious about setups.", ask.RawText)
}

func TestHNIngesterFetchRespectsMaxItems(t *testing.T) {
	ts := newHNTestServer(t, map[string]string{
		"/topstories.json": `[1, 2]`,
		"/item/1.json":     `{"id": 1, "type": "story", "title": "Only One"}`,
		"/item/2.json":     `{"id": 2, "type": "story", "title": "Never Fetched"}`,
	})
	defer ts.Close()

	ing := NewHNIngester(1, testLogger())
	ing.baseURL = ts.URL

	items, err := ing.Fetch(context.Background(), &db.Source{Type: db.SourceTypeHN})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Only One", items[0].Title)
}

func TestHNIngesterFetchListingError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	ing := NewHNIngester(100, testLogger())
	ing.baseURL = ts.URL

	_, err := ing.Fetch(context.Background(), &db.Source{Type: db.SourceTypeHN})
	require.Error(t, err)
	assert.ErrorIs(t, err, errHTTPStatus)
}

func TestHNIngesterFetchSkipsFailingStory(t *testing.T) {
	ts := newHNTestServer(t, map[string]string{
		"/topstories.json": `[1, 2]`,
		"/item/2.json":     `{"id": 2, "type": "story", "title": "Survivor"}`,
	})
	defer ts.Close()

	ing := NewHNIngester(100, testLogger())
	ing.baseURL = ts.URL

	items, err := ing.Fetch(context.Background(), &db.Source{Type: db.SourceTypeHN})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Survivor", items[0].Title)
}

func TestNormalizeStory(t *testing.T) {
	tests := []struct {
		name     string
		story    *hnStory
		wantOK   bool
		wantKind string
	}{
		{name: "nil story", story: nil, wantOK: false},
		{name: "comment type", story: &hnStory{ID: 1, Type: "comment", Title: "A"}, wantOK: false},
		{name: "deleted", story: &hnStory{ID: 1, Type: hnItemType, Title: "A", Deleted: true}, wantOK: false},
		{name: "dead", story: &hnStory{ID: 1, Type: hnItemType, Title: "A", Dead: true}, wantOK: false},
		{name: "empty title", story: &hnStory{ID: 1, Type: hnItemType, Title: "  "}, wantOK: false},
		{
			name:     "link story",
			story:    &hnStory{ID: 1, Type: hnItemType, Title: "Launch", URL: "https://example.com"},
			wantOK:   true,
			wantKind: db.ItemKindArticle,
		},
		{
			name:     "show hn",
			story:    &hnStory{ID: 1, Type: hnItemType, Title: "Show HN: My Tool"},
			wantOK:   true,
			wantKind: db.ItemKindPost,
		},
		{
			name:     "tell hn",
			story:    &hnStory{ID: 1, Type: hnItemType, Title: "Tell HN: News"},
			wantOK:   true,
			wantKind: db.ItemKindPost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, ok := normalizeStory(tt.story)
			require.Equal(t, tt.wantOK, ok)

			if tt.wantOK {
				assert.Equal(t, tt.wantKind, item.Kind)
			}
		})
	}
}

func TestNormalizeStoryTruncatesKids(t *testing.T) {
	kids := make([]int64, 25)
	for i := range kids {
		kids[i] = int64(i)
	}

	item, ok := normalizeStory(&hnStory{ID: 9, Type: hnItemType, Title: "Busy Thread", Kids: kids})
	require.True(t, ok)

	stored, isSlice := item.Payload["kids"].([]int64)
	require.True(t, isSlice)
	assert.Len(t, stored, hnMaxKids)
}
