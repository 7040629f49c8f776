package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testArticleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <title>Quiet Progress in Battery Recycling</title>
  <meta name="description" content="A look at new recycling plants.">
</head>
<body>
  <nav><a href="/">Home</a> <a href="/about">About</a></nav>
  <main>
    <article>
      <h1>Quiet Progress in Battery Recycling</h1>
      <p>Battery recycling plants have spent the last decade stuck between two
      problems: collection networks that deliver too few dead cells to justify
      capital costs, and chemistry that changes faster than the equipment built
      to take it apart. Both constraints loosened this year, according to plant
      operators in three countries interviewed for this story.</p>
      <p>The first shift is volume. Electric vehicles sold in the early boom
      years are now reaching end of life in meaningful numbers, and their packs
      arrive in predictable formats. Operators report intake volumes roughly
      double those of two years ago, enough to run shredding lines on full
      shifts instead of weekly batches.</p>
      <p>The second shift is process. Newer hydrometallurgical lines recover
      lithium as well as nickel and cobalt, which changes the economics of every
      ton processed. Recovery rates above ninety percent were considered
      optimistic five years ago and are now contractual commitments in several
      supply agreements signed this quarter.</p>
      <p>None of this makes recycling simple. Fire risk during storage remains
      the industry's largest insurance cost, and sorting mixed consumer
      electronics is still mostly manual work. But the direction is clear
      enough that two of the operators are already financing second plants.</p>
    </article>
  </main>
  <footer>Copyright 2026</footer>
</body>
</html>`

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()

	return &logger
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)

	return u
}

func TestExtractHTMLPrefersTrafilatura(t *testing.T) {
	pageURL := mustParseURL(t, "https://example.com/battery-recycling")

	res := ExtractHTML([]byte(testArticleHTML), pageURL)
	require.NotNil(t, res)

	assert.Equal(t, methodTrafilatura, res.Method)
	assert.InDelta(t, qualityTrafilatura, res.Quality, 1e-9)
	assert.Greater(t, res.WordCount, minWordCount)
	assert.Contains(t, res.Text, "hydrometallurgical")
}

func TestExtractHTMLRejectsThinPages(t *testing.T) {
	thin := `<html><body><p>Too short.</p></body></html>`

	res := ExtractHTML([]byte(thin), mustParseURL(t, "https://example.com/thin"))
	assert.Nil(t, res)
}

func TestExtractWithReadability(t *testing.T) {
	res := extractWithReadability([]byte(testArticleHTML), mustParseURL(t, "https://example.com/battery-recycling"))
	require.NotNil(t, res)

	assert.Equal(t, methodReadability, res.Method)
	assert.InDelta(t, qualityReadability, res.Quality, 1e-9)
	assert.Greater(t, res.WordCount, minWordCount)
}

func TestExtractURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		_, err := w.Write([]byte(testArticleHTML))
		if err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer ts.Close()

	e := NewExtractor(testLogger())

	res := e.ExtractURL(context.Background(), ts.URL+"/article")
	require.NotNil(t, res)
	assert.Equal(t, ts.URL+"/article", res.FinalURL)
	assert.Greater(t, res.WordCount, minWordCount)
}

func TestExtractURLFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, _ *http.Request) {
		_, err := w.Write([]byte(testArticleHTML))
		if err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	e := NewExtractor(testLogger())

	res := e.ExtractURL(context.Background(), ts.URL+"/moved")
	require.NotNil(t, res)
	assert.Equal(t, ts.URL+"/final", res.FinalURL)
}

func TestExtractURLHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	e := NewExtractor(testLogger())

	assert.Nil(t, e.ExtractURL(context.Background(), ts.URL))
}
