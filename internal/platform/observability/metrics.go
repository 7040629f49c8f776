package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbrief_items_ingested_total",
		Help: "The total number of ingested items",
	}, []string{"source_type"})

	StageProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbrief_stage_processed_total",
		Help: "The total number of items handled per pipeline stage",
	}, []string{"stage", "status"})

	StageBatchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsbrief_stage_batch_duration_seconds",
		Help:    "Duration in seconds to process one stage batch",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"stage"})

	StageBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "newsbrief_stage_backlog_size",
		Help: "Number of items waiting in each pipeline status",
	}, []string{"status"})

	EmbeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbrief_embedding_requests_total",
		Help: "Total number of embedding provider requests",
	}, []string{"provider", "result"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbrief_llm_requests_total",
		Help: "Total number of chat model requests",
	}, []string{"provider", "tier", "result"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsbrief_llm_request_duration_seconds",
		Help:    "Duration of chat model requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "tier"})

	ProviderCircuitOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbrief_provider_cb_opens_total",
		Help: "Total number of times a provider circuit breaker opened",
	}, []string{"provider"})

	UsageCapHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbrief_usage_cap_hits_total",
		Help: "Total number of requests refused by a cost cap",
	}, []string{"kind"})

	ClusterAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbrief_cluster_assignments_total",
		Help: "Total number of cluster assignments by outcome",
	}, []string{"outcome"})

	ClustersMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsbrief_clusters_merged_total",
		Help: "Total number of clusters merged away",
	})

	ClustersArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsbrief_clusters_archived_total",
		Help: "Total number of clusters archived",
	})

	SignalScoreDistribution = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "newsbrief_signal_score",
		Help:    "Distribution of computed signal scores",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	HighSignalItems = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsbrief_high_signal_items_total",
		Help: "Total number of items scoring at or above the high-signal threshold",
	})

	BriefingsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbrief_briefings_generated_total",
		Help: "Total number of briefings generated",
	}, []string{"scope", "mode"})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbrief_emails_sent_total",
		Help: "Total number of briefing emails sent",
	}, []string{"status"})

	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbrief_job_runs_total",
		Help: "Total number of job executions per queue",
	}, []string{"queue", "status"})

	JobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsbrief_job_duration_seconds",
		Help:    "Duration of job executions per queue",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 180, 540, 600},
	}, []string{"queue"})

	JobRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsbrief_job_retries_total",
		Help: "Total number of job retries per queue",
	}, []string{"queue"})
)
