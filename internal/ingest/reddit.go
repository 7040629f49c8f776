package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/platform/config"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

const (
	redditOAuthBaseURL  = "https://oauth.reddit.com"
	redditPublicBaseURL = "https://www.reddit.com"
	redditTokenURL      = "https://www.reddit.com/api/v1/access_token" //nolint:gosec // endpoint, not a credential
	redditLinkBaseURL   = "https://reddit.com"
	redditTimeout       = 30 * time.Second

	// redditPublicLimit is the item cap on the unauthenticated endpoint,
	// which rate limits aggressively.
	redditPublicLimit = 25

	// tokenExpirySlack refreshes the OAuth token a little before Reddit
	// actually expires it.
	tokenExpirySlack = time.Minute

	defaultListingWindow = "day"
	grantClientCreds     = "client_credentials"
	contentTypeForm      = "application/x-www-form-urlencoded"
)

// Reddit errors.
var (
	ErrRedditNotConfigured = errors.New("reddit api credentials not configured")
	ErrNoSubreddit         = errors.New("cannot determine subreddit")

	errEmptyToken = errors.New("empty access token")
)

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	URL               string  `json:"url"`
	Permalink         string  `json:"permalink"`
	Author            string  `json:"author"`
	Subreddit         string  `json:"subreddit"`
	Selftext          string  `json:"selftext"`
	IsSelf            bool    `json:"is_self"`
	CreatedUTC        float64 `json:"created_utc"`
	Score             int     `json:"score"`
	UpvoteRatio       float64 `json:"upvote_ratio"`
	NumComments       int     `json:"num_comments"`
	LinkFlairText     string  `json:"link_flair_text"`
	Over18            bool    `json:"over_18"`
	Spoiler           bool    `json:"spoiler"`
	RemovedByCategory string  `json:"removed_by_category"`
}

// RedditIngester harvests subreddit listings. It prefers the OAuth API via
// client-credentials and falls back to the public JSON endpoint when auth
// is unavailable.
type RedditIngester struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	userAgent    string
	maxItems     int
	logger       *zerolog.Logger

	oauthBaseURL  string
	publicBaseURL string
	tokenURL      string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewRedditIngester(cfg config.IngestConfig, logger *zerolog.Logger) *RedditIngester {
	return &RedditIngester{
		httpClient: &http.Client{
			Timeout: redditTimeout,
		},
		clientID:      cfg.RedditClientID,
		clientSecret:  cfg.RedditClientSecret,
		userAgent:     cfg.RedditUserAgent,
		maxItems:      cfg.MaxItemsPerSource,
		logger:        logger,
		oauthBaseURL:  redditOAuthBaseURL,
		publicBaseURL: redditPublicBaseURL,
		tokenURL:      redditTokenURL,
	}
}

func (r *RedditIngester) SourceType() string { return db.SourceTypeReddit }

// Fetch pulls the configured subreddit listing. When OAuth fails the public
// endpoint is used with a reduced item cap.
func (r *RedditIngester) Fetch(ctx context.Context, src *db.Source) ([]NormalizedItem, error) {
	subreddit := src.Subreddit()
	if subreddit == "" {
		subreddit = subredditFromURL(src.URL)
	}

	if subreddit == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSubreddit, src.URL)
	}

	sort := src.ListingSort()
	window := src.ConfigString("time", defaultListingWindow)

	token, err := r.token(ctx)
	if err != nil {
		r.logger.Warn().Err(err).
			Str("subreddit", subreddit).
			Msg("Reddit auth failed, using public endpoint")

		listingURL := fmt.Sprintf("%s/r/%s/%s.json", r.publicBaseURL, subreddit, sort)

		return r.fetchListing(ctx, listingURL, "", window, min(redditPublicLimit, r.maxItems))
	}

	listingURL := fmt.Sprintf("%s/r/%s/%s", r.oauthBaseURL, subreddit, sort)

	return r.fetchListing(ctx, listingURL, token, window, r.maxItems)
}

// token returns a cached application token, requesting a fresh one when
// missing or near expiry.
func (r *RedditIngester) token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessToken != "" && time.Now().Before(r.tokenExpiry) {
		return r.accessToken, nil
	}

	if r.clientID == "" || r.clientSecret == "" {
		return "", ErrRedditNotConfigured
	}

	form := url.Values{"grant_type": {grantClientCreds}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf(wrapCreateRequest, err)
	}

	req.SetBasicAuth(r.clientID, r.clientSecret)
	req.Header.Set(headerUserAgent, r.userAgent)
	req.Header.Set(headerContentType, contentTypeForm)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(wrapHTTPStatusFmt, errHTTPStatus, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}

	if payload.AccessToken == "" {
		return "", errEmptyToken
	}

	r.accessToken = payload.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second).Add(-tokenExpirySlack)

	return r.accessToken, nil
}

func (r *RedditIngester) fetchListing(ctx context.Context, listingURL, token, window string, limit int) ([]NormalizedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf(wrapCreateRequest, err)
	}

	q := req.URL.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("t", window)
	req.URL.RawQuery = q.Encode()

	req.Header.Set(headerUserAgent, r.userAgent)

	if token != "" {
		req.Header.Set(headerAuthorization, "Bearer "+token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(wrapHTTPStatusFmt, errHTTPStatus, resp.StatusCode)
	}

	var listing redditListing

	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	items := make([]NormalizedItem, 0, len(listing.Data.Children))

	// The limit is also sent to the server, but listings are not trusted to
	// honor it (limit=0 in particular returns a default page).
	for i := range listing.Data.Children {
		if len(items) >= limit {
			break
		}

		item, ok := normalizePost(&listing.Data.Children[i].Data)
		if !ok {
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

// normalizePost maps one listing entry. Link posts point at the external
// URL and record it as canonical; self posts point at the Reddit thread.
func normalizePost(post *redditPost) (NormalizedItem, bool) {
	if post.ID == "" || post.RemovedByCategory != "" {
		return NormalizedItem{}, false
	}

	title := strings.TrimSpace(post.Title)
	if title == "" {
		return NormalizedItem{}, false
	}

	permalink := redditLinkBaseURL + post.Permalink

	postURL := post.URL
	if postURL == "" || strings.HasPrefix(postURL, "/r/") {
		postURL = permalink
	}

	kind := db.ItemKindPost
	if !post.IsSelf && post.URL != "" {
		kind = db.ItemKindArticle
	}

	canonical := ""
	if !post.IsSelf {
		canonical = post.URL
	}

	var publishedAt *time.Time

	if post.CreatedUTC > 0 {
		ts := time.Unix(int64(post.CreatedUTC), 0).UTC()
		publishedAt = &ts
	}

	return NormalizedItem{
		ExternalID:   post.ID,
		URL:          postURL,
		CanonicalURL: canonical,
		Title:        title,
		Author:       post.Author,
		Kind:         kind,
		RawText:      truncate(post.Selftext, snippetMaxLength),
		PublishedAt:  publishedAt,
		Payload: map[string]any{
			"reddit_id":       post.ID,
			"subreddit":       post.Subreddit,
			"score":           post.Score,
			"upvote_ratio":    post.UpvoteRatio,
			"num_comments":    post.NumComments,
			"is_self":         post.IsSelf,
			"link_flair_text": post.LinkFlairText,
			"permalink":       permalink,
			"over_18":         post.Over18,
			"spoiler":         post.Spoiler,
		},
	}, true
}

func subredditFromURL(rawURL string) string {
	_, after, found := strings.Cut(rawURL, "/r/")
	if !found {
		return ""
	}

	sub, _, _ := strings.Cut(after, "/")

	return strings.TrimSpace(sub)
}
