package db

import "time"

// RawItem pipeline statuses. The status column is the authoritative record
// of stage progression; each stage advances items from its input status.
const (
	StatusNew       = "new"
	StatusExtracted = "extracted"
	StatusEmbedded  = "embedded"
	StatusClustered = "clustered"
	StatusScored    = "scored"
)

// Source types.
const (
	SourceTypeFeed   = "feed"
	SourceTypeHN     = "hn"
	SourceTypeReddit = "reddit"
)

// Item kinds.
const (
	ItemKindArticle = "article"
	ItemKindPost    = "post"
)

// Cluster statuses.
const (
	ClusterStatusOpen     = "open"
	ClusterStatusMerged   = "merged"
	ClusterStatusArchived = "archived"
)

// Feedback kinds.
const (
	FeedbackUp   = "up"
	FeedbackDown = "down"
	FeedbackSave = "save"
	FeedbackHide = "hide"
)

// Usage counter kinds.
const (
	UsageKindLLM       = "llm"
	UsageKindEmbedding = "embedding"
)

// Briefing scope for the non-personalized variant.
const ScopeGlobal = "global"

// UserScope returns the briefing and usage-counter scope key for one user.
func UserScope(userID string) string {
	return "user:" + userID
}

// Time constants
const (
	// HoursPerDay is the number of hours in a day
	HoursPerDay = 24
)

// Database connection constants
const (
	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 10
)

// Database pool default constants
const (
	defaultMaxConns          int32         = 25
	defaultMinConns          int32         = 5
	defaultMaxConnIdleTime   time.Duration = 30 * time.Minute
	defaultMaxConnLifetime   time.Duration = time.Hour
	defaultHealthCheckPeriod time.Duration = time.Minute
)
