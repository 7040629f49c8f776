// Package extract pulls clean article text for harvested items. Two passes
// run over the fetched page: trafilatura first, readability as fallback; a
// result is accepted only when it yields more than minWordCount words. The
// stage never blocks the pipeline: items advance even when extraction comes
// up empty.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	trafilatura "github.com/markusmobius/go-trafilatura"
	"github.com/rs/zerolog"
)

const (
	fetchTimeout = 30 * time.Second
	maxBodySize  = 10 * 1024 * 1024 // 10MB
	maxRedirects = 10
	userAgent    = "Mozilla/5.0 (compatible; newsbrief/1.0)"

	// minWordCount is the acceptance floor: shorter results are treated as
	// boilerplate and discarded.
	minWordCount = 50

	methodTrafilatura = "trafilatura"
	methodReadability = "readability"

	qualityTrafilatura = 0.9
	qualityReadability = 0.7

	headerUserAgent   = "User-Agent"
	wrapHTTPStatusFmt = "%w: status %d"

	logKeyURL = "url"
)

var (
	errHTTPStatus       = errors.New("unexpected HTTP status")
	errTooManyRedirects = errors.New("too many redirects")
)

// Result is one accepted extraction pass.
type Result struct {
	Text      string
	WordCount int
	Method    string
	Quality   float64
	FinalURL  string
}

// Extractor fetches pages and runs the extraction passes.
type Extractor struct {
	httpClient *http.Client
	logger     *zerolog.Logger
}

func NewExtractor(logger *zerolog.Logger) *Extractor {
	return &Extractor{
		httpClient: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}

				return nil
			},
		},
		logger: logger,
	}
}

// ExtractURL fetches a page and extracts its body text. Fetch and
// extraction failures return nil; the caller decides how to advance.
func (e *Extractor) ExtractURL(ctx context.Context, rawURL string) *Result {
	body, finalURL, err := e.fetch(ctx, rawURL)
	if err != nil {
		e.logger.Debug().Err(err).Str(logKeyURL, rawURL).Msg("Page fetch failed")

		return nil
	}

	res := ExtractHTML(body, finalURL)
	if res == nil {
		e.logger.Debug().Str(logKeyURL, rawURL).Msg("No extractable content")

		return nil
	}

	res.FinalURL = finalURL.String()

	return res
}

// ExtractHTML runs the two passes over already-fetched HTML in quality
// order and returns the first acceptable result.
func ExtractHTML(body []byte, pageURL *url.URL) *Result {
	if res := extractWithTrafilatura(body, pageURL); res != nil && res.WordCount > minWordCount {
		return res
	}

	if res := extractWithReadability(body, pageURL); res != nil && res.WordCount > minWordCount {
		return res
	}

	return nil
}

func (e *Extractor) fetch(ctx context.Context, rawURL string) ([]byte, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set(headerUserAgent, userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, nil, fmt.Errorf(wrapHTTPStatusFmt, errHTTPStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}

	return body, resp.Request.URL, nil
}

func extractWithTrafilatura(body []byte, pageURL *url.URL) *Result {
	res, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{
		OriginalURL:     pageURL,
		EnableFallback:  true,
		Focus:           trafilatura.FavorPrecision,
		ExcludeComments: true,
		ExcludeTables:   true,
	})
	if err != nil || res == nil {
		return nil
	}

	text := strings.TrimSpace(res.ContentText)
	if text == "" {
		return nil
	}

	return &Result{
		Text:      text,
		WordCount: len(strings.Fields(text)),
		Method:    methodTrafilatura,
		Quality:   qualityTrafilatura,
	}
}

func extractWithReadability(body []byte, pageURL *url.URL) *Result {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return nil
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil
	}

	return &Result{
		Text:      text,
		WordCount: len(strings.Fields(text)),
		Method:    methodReadability,
		Quality:   qualityReadability,
	}
}
