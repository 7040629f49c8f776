// Package app wires configuration, storage, and the domain services
// together and exposes the operational modes:
//
//   - Worker mode: the six-queue pipeline (ingest, extract, embed, score,
//     summarise, email) driven by the interval/daily job runner
//   - API mode: the HTTP API for signals, briefings, sources, and feedback
//   - Ingest mode: one ingestion pass over every enabled source
//   - Briefing mode: one briefing generation pass over all recipients
//
// Each mode can run in its own process or share one, depending on how the
// deployment slices the binary.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/api"
	"github.com/tidesignal/newsbrief/internal/core/embeddings"
	"github.com/tidesignal/newsbrief/internal/core/llm"
	"github.com/tidesignal/newsbrief/internal/ingest"
	"github.com/tidesignal/newsbrief/internal/output/briefing"
	"github.com/tidesignal/newsbrief/internal/output/email"
	"github.com/tidesignal/newsbrief/internal/platform/config"
	"github.com/tidesignal/newsbrief/internal/platform/jobs"
	"github.com/tidesignal/newsbrief/internal/platform/observability"
	"github.com/tidesignal/newsbrief/internal/platform/schedule"
	"github.com/tidesignal/newsbrief/internal/process/dedup"
	"github.com/tidesignal/newsbrief/internal/process/embed"
	"github.com/tidesignal/newsbrief/internal/process/extract"
	"github.com/tidesignal/newsbrief/internal/process/score"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

const llmAPIKeyMock = "mock"

// App holds the application dependencies and provides methods to run
// different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server: %w", err)
	}

	return nil
}

// RunWorker runs the pipeline worker: all six queues on a single runner.
func (a *App) RunWorker(ctx context.Context) error {
	a.logger.Info().Msg("Starting worker mode")

	runner := jobs.NewRunner(a.cfg.PipelineCfg(), a.database, a.logger)

	if err := a.registerJobs(runner); err != nil {
		return err
	}

	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("job runner: %w", err)
	}

	return nil
}

// RunAPI serves the HTTP API.
func (a *App) RunAPI(ctx context.Context) error {
	a.logger.Info().Msg("Starting API mode")

	generator := a.newBriefingService(a.newLLMClient())
	srv := api.NewServer(a.database, generator, a.cfg.ServerCfg(), a.cfg.LLMCfg().MaxCallsPerScope, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	return nil
}

// RunIngest performs a single ingestion pass over all enabled sources and
// exits.
func (a *App) RunIngest(ctx context.Context) error {
	a.logger.Info().Msg("Starting ingest mode")

	service := ingest.NewService(a.cfg.IngestCfg(), a.database, a.logger)

	result, err := service.IngestAll(ctx)
	if err != nil {
		return fmt.Errorf("ingest all: %w", err)
	}

	a.logIngestResult(result, "ingestion complete")

	return nil
}

// RunBriefing generates briefings for every recipient once and exits.
func (a *App) RunBriefing(ctx context.Context) error {
	a.logger.Info().Msg("Starting briefing mode")

	service := a.newBriefingService(a.newLLMClient())

	batch, err := service.GenerateAll(ctx)
	if err != nil {
		return fmt.Errorf("generate briefings: %w", err)
	}

	a.logBriefingBatch(batch)

	return nil
}

// registerJobs wires the six queues onto the runner. Interval queues drain
// their stage backlog on every firing; the daily queues run under leader
// election so exactly one replica generates and mails briefings.
func (a *App) registerJobs(runner *jobs.Runner) error {
	pipelineCfg := a.cfg.PipelineCfg()
	llmClient := a.newLLMClient()

	ingestCfg := a.cfg.IngestCfg()
	ingestService := ingest.NewService(ingestCfg, a.database, a.logger)
	runner.Register(jobs.Job{
		Queue:      jobs.QueueIngest,
		Interval:   time.Duration(ingestCfg.IntervalMinutes) * time.Minute,
		RunOnStart: true,
		Task:       a.ingestTask(ingestService),
	})

	extractWorker := extract.NewWorker(a.database, pipelineCfg.BatchSize, a.logger)
	runner.Register(jobs.Job{
		Queue:    jobs.QueueExtract,
		Interval: pipelineCfg.ExtractInterval,
		Task:     drain(extractWorker.ProcessBatch),
	})

	dedupCfg := a.cfg.DedupCfg()
	embedWorker := embed.NewWorker(a.database, a.newEmbeddingClient(), pipelineCfg.BatchSize, a.cfg.EmbeddingCfg().MaxPerHour, a.logger)
	dedupWorker := dedup.NewWorker(a.database, dedupCfg.SimilarityThreshold, pipelineCfg.BatchSize, a.logger)
	archiveAge := time.Duration(dedupCfg.ClusterArchiveDays) * db.HoursPerDay * time.Hour
	runner.Register(jobs.Job{
		Queue:    jobs.QueueEmbed,
		Interval: pipelineCfg.EmbedInterval,
		Task:     a.embedTask(embedWorker, dedupWorker, archiveAge),
	})

	scoreWorker := score.NewWorker(a.database, a.newRelevanceScorer(llmClient), score.Options{
		BatchSize:           pipelineCfg.ScoreBatchSize,
		HighSignalThreshold: a.cfg.BriefingCfg().HighSignalThreshold,
		ModelScoring:        a.cfg.LLMCfg().AIScoringEnabled,
	}, a.logger)
	runner.Register(jobs.Job{
		Queue:    jobs.QueueScore,
		Interval: pipelineCfg.ScoreInterval,
		Task:     drain(scoreWorker.ProcessBatch),
	})

	briefingClock, err := schedule.ParseClock(pipelineCfg.BriefingTimeUTC)
	if err != nil {
		return fmt.Errorf("parse briefing time: %w", err)
	}

	briefingService := a.newBriefingService(llmClient)
	runner.Register(jobs.Job{
		Queue:  jobs.QueueSummarise,
		Daily:  &briefingClock,
		Leader: true,
		Task:   a.summariseTask(briefingService),
	})

	emailClock, err := schedule.ParseClock(pipelineCfg.EmailTimeUTC)
	if err != nil {
		return fmt.Errorf("parse email time: %w", err)
	}

	emailService := email.NewService(a.database, email.NewSMTPSender(a.cfg.EmailCfg()), a.logger)
	runner.Register(jobs.Job{
		Queue:  jobs.QueueEmail,
		Daily:  &emailClock,
		Leader: true,
		Task:   a.emailTask(emailService),
	})

	return nil
}

func (a *App) ingestTask(service *ingest.Service) jobs.Task {
	return func(ctx context.Context) error {
		result, err := service.IngestAll(ctx)
		if err != nil {
			return fmt.Errorf("ingest all: %w", err)
		}

		a.logIngestResult(result, "ingestion pass complete")

		return nil
	}
}

// embedTask chains embedding, clustering, and cluster retirement: the
// cluster stage consumes exactly what the embed stage produces, so one
// queue keeps them in step.
func (a *App) embedTask(embedWorker *embed.Worker, dedupWorker *dedup.Worker, archiveAge time.Duration) jobs.Task {
	embedDrain := drain(embedWorker.ProcessBatch)
	clusterDrain := drain(dedupWorker.ProcessBatch)

	return func(ctx context.Context) error {
		if err := embedDrain(ctx); err != nil {
			return err
		}

		if err := clusterDrain(ctx); err != nil {
			return err
		}

		archived, err := dedupWorker.ArchiveOld(ctx, archiveAge)
		if err != nil {
			return fmt.Errorf("archive stale clusters: %w", err)
		}

		if archived > 0 {
			a.logger.Info().Int64("clusters", archived).Msg("stale clusters archived")
		}

		return nil
	}
}

func (a *App) summariseTask(service *briefing.Service) jobs.Task {
	return func(ctx context.Context) error {
		batch, err := service.GenerateAll(ctx)
		if err != nil {
			return fmt.Errorf("generate briefings: %w", err)
		}

		a.logBriefingBatch(batch)

		return nil
	}
}

func (a *App) emailTask(service *email.Service) jobs.Task {
	return func(ctx context.Context) error {
		batch, err := service.SendDaily(ctx)
		if err != nil {
			return fmt.Errorf("send daily briefings: %w", err)
		}

		a.logger.Info().
			Int("sent", batch.Sent).
			Int("skipped", batch.Skipped).
			Int("failed", batch.Failed).
			Msg("daily email run complete")

		return nil
	}
}

func (a *App) logIngestResult(result *ingest.Result, msg string) {
	a.logger.Info().
		Int("sources", result.SourcesProcessed).
		Int("fetched", result.ItemsFetched).
		Int("inserted", result.ItemsInserted).
		Int("errors", result.Errors).
		Msg(msg)
}

func (a *App) logBriefingBatch(batch briefing.BatchResult) {
	a.logger.Info().
		Int("users", batch.UsersProcessed).
		Int("generated", batch.Generated).
		Int("skipped", batch.Skipped).
		Int("failed", batch.Failed).
		Msg("briefing generation complete")
}

// drain wraps a batch processor into a task that keeps calling it until the
// stage backlog is empty.
func drain(process func(ctx context.Context) (int, error)) jobs.Task {
	return func(ctx context.Context) error {
		for {
			processed, err := process(ctx)
			if err != nil {
				return fmt.Errorf("process batch: %w", err)
			}

			if processed == 0 {
				return nil
			}
		}
	}
}

// newLLMClient creates the chat completion client with provider fallback.
// Spend is recorded per scope so the daily caps can read it back.
func (a *App) newLLMClient() llm.Client {
	llmCfg := a.cfg.LLMCfg()

	return llm.New(llm.Config{
		OpenAIAPIKey:    llmCfg.OpenAIAPIKey,
		AnthropicAPIKey: llmCfg.AnthropicAPIKey,
		CheapModel:      llmCfg.CheapModel,
		StrongModel:     llmCfg.StrongModel,
		CircuitBreakerConfig: embeddings.CircuitBreakerConfig{
			Threshold:  llmCfg.CircuitThreshold,
			ResetAfter: llmCfg.CircuitTimeout,
		},
	}, llm.NewUsageRecorder(a.database, a.logger), a.logger)
}

// newEmbeddingClient creates the embedding client.
func (a *App) newEmbeddingClient() *embeddings.Registry {
	embCfg := a.cfg.EmbeddingCfg()
	logger := a.logger.With().Str("component", "embeddings").Logger()

	return embeddings.NewClient(embeddings.Config{
		APIKey:     embCfg.APIKey,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		CircuitBreakerConfig: embeddings.CircuitBreakerConfig{
			Threshold:  embCfg.CircuitThreshold,
			ResetAfter: embCfg.CircuitTimeout,
		},
	}, &logger)
}

// newRelevanceScorer picks the relevance strategy: the cheap-tier model
// judge when AI scoring is enabled, plain heuristics otherwise.
func (a *App) newRelevanceScorer(client llm.Client) score.RelevanceScorer {
	llmCfg := a.cfg.LLMCfg()

	if llmCfg.AIScoringEnabled {
		return score.NewModelJudge(client, a.database, llmCfg.MaxCallsPerScope, a.logger)
	}

	return score.NewHeuristic()
}

func (a *App) newBriefingService(client llm.Client) *briefing.Service {
	return briefing.NewService(a.database, a.newComposer(client), a.cfg.BriefingCfg(), a.logger)
}

// newComposer picks the briefing composer: the strong-tier model when a
// chat provider is configured, the deterministic template otherwise.
func (a *App) newComposer(client llm.Client) briefing.Composer {
	if a.hasConfiguredLLMProvider() {
		return briefing.NewModel(client, a.logger)
	}

	return briefing.NewTemplate()
}

func (a *App) hasConfiguredLLMProvider() bool {
	if a.cfg.OpenAIAPIKey != "" && a.cfg.OpenAIAPIKey != llmAPIKeyMock {
		return true
	}

	return a.cfg.AnthropicAPIKey != ""
}
