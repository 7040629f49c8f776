// Package api serves the HTTP surface: signal listings, briefing reads and
// generation, source management, and feedback. Handlers translate storage
// rows into the JSON shapes clients consume. Authentication lives in the
// proxy in front; it forwards the caller's identity in the X-User-ID header.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/output/briefing"
	"github.com/tidesignal/newsbrief/internal/platform/config"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

const (
	routePrefix  = "/api/v1"
	headerUserID = "X-User-ID"
	appVersion   = "0.1.0"

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
	maxBodyBytes      = 1 << 20

	// usageWindow is the rolling window daily cost caps are counted over.
	usageWindow = db.HoursPerDay * time.Hour
)

// Query parameter bounds. Listings reject values outside these ranges.
const (
	defaultMinScore      = 0.5
	defaultHours         = 24
	maxHours             = 168
	defaultSignalLimit   = 50
	maxSignalLimit       = 100
	defaultTopLimit      = 10
	maxTopLimit          = 50
	topSignalsMinScore   = 0.6
	defaultBriefingLimit = 10
	maxBriefingLimit     = 50
	previewChars         = 300

	minCredibilityTier     = 1
	maxCredibilityTier     = 5
	defaultCredibilityTier = 3
)

// Error message constants.
const (
	errMsgAuthRequired     = "Authentication required"
	errMsgInvalidBody      = "Invalid request body"
	errMsgSignalNotFound   = "Signal not found"
	errMsgBriefingNotFound = "Briefing not found"
	errMsgSourceNotFound   = "Source not found"
	errMsgItemNotFound     = "Item not found"
	errMsgFeedbackNotFound = "Feedback not found"
	errMsgUserNotFound     = "User not found"
	errMsgCapReached       = "Daily briefing generation limit reached"

	errMsgInvalidSignalID   = "Invalid signal ID"
	errMsgInvalidBriefingID = "Invalid briefing ID"
	errMsgInvalidSourceID   = "Invalid source ID"
	errMsgInvalidItemID     = "Invalid item ID"
	errMsgInvalidKind       = "Invalid feedback kind"
	errMsgInvalidKindList   = "Invalid feedback kind. Must be one of: up, down, save, hide"
	errMsgInvalidSourceType = "Invalid source type. Must be one of: feed, hn, reddit"
	errMsgInvalidTier       = "credibility_tier must be between 1 and 5"
	errMsgSourceRequired    = "name and url are required"

	errMsgListSignals      = "Failed to list signals"
	errMsgLoadSignal       = "Failed to load signal"
	errMsgCategoryStats    = "Failed to load category stats"
	errMsgListBriefings    = "Failed to list briefings"
	errMsgLoadBriefing     = "Failed to load briefing"
	errMsgGenerateBriefing = "Failed to generate briefing"
	errMsgListSources      = "Failed to list sources"
	errMsgCreateSource     = "Failed to create source"
	errMsgDeleteSource     = "Failed to delete source"
	errMsgSaveFeedback     = "Failed to save feedback"
	errMsgListFeedback     = "Failed to list feedback"
	errMsgDeleteFeedback   = "Failed to delete feedback"
)

// Success message constants.
const (
	msgBriefingExists    = "Briefing already exists for today"
	msgBriefingGenerated = "Briefing generated successfully"
)

// Log field names.
const (
	logFieldMethod    = "method"
	logFieldPath      = "path"
	logFieldStatus    = "status"
	logFieldRequestID = "request_id"
)

// Repository is the storage surface the API reads and writes.
type Repository interface {
	ListSignals(ctx context.Context, filter db.SignalFilter) ([]db.Signal, bool, error)
	GetTopSignals(ctx context.Context, limit int, minScore float64) ([]db.Signal, error)
	GetSignal(ctx context.Context, rawItemID string) (*db.SignalDetail, error)
	GetCategoryStats(ctx context.Context, hours int) ([]db.CategoryStat, error)

	ListBriefings(ctx context.Context, scope string, limit, offset int) ([]db.Briefing, error)
	GetLatestBriefing(ctx context.Context, scope string) (*db.Briefing, error)
	GetBriefing(ctx context.Context, briefingID, scope string) (*db.Briefing, error)
	GetBriefingItems(ctx context.Context, briefingID string) ([]db.BriefingItem, error)

	ListSources(ctx context.Context) ([]db.Source, error)
	CreateSource(ctx context.Context, src *db.Source) (string, error)
	DeleteSource(ctx context.Context, id string) (bool, error)

	GetRawItem(ctx context.Context, id string) (*db.RawItem, error)
	UpsertFeedback(ctx context.Context, feedback *db.Feedback) error
	ListFeedback(ctx context.Context, userID, kind string) ([]db.Feedback, error)
	DeleteFeedback(ctx context.Context, userID, rawItemID string) (bool, error)

	CountUsageSince(ctx context.Context, kind, scope string, since time.Time) (int, error)
	Ping(ctx context.Context) error
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// Generator produces briefings on demand.
type Generator interface {
	GenerateForUser(ctx context.Context, userID string, force bool) (*briefing.Result, error)
}

// Compile-time assertion that *briefing.Service implements Generator.
var _ Generator = (*briefing.Service)(nil)

// Server is the HTTP API server.
type Server struct {
	repo         Repository
	generator    Generator
	cfg          config.ServerConfig
	maxLLMPerDay int
	logger       *zerolog.Logger
}

// NewServer wires an API server. maxLLMPerDay bounds per-user briefing
// generation; zero disables the cap.
func NewServer(repo Repository, generator Generator, cfg config.ServerConfig, maxLLMPerDay int, logger *zerolog.Logger) *Server {
	return &Server{
		repo:         repo,
		generator:    generator,
		cfg:          cfg,
		maxLLMPerDay: maxLLMPerDay,
		logger:       logger,
	}
}

// Routes builds the router. Everything mounts under /api/v1; the health
// endpoints answer at the root as well so probes need no prefix.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	s.mountHealth(r)

	r.Route(routePrefix, func(r chi.Router) {
		s.mountHealth(r)

		r.Route("/signals", func(r chi.Router) {
			r.Get("/", s.handleListSignals)
			r.Get("/top", s.handleTopSignals)
			r.Get("/categories/stats", s.handleCategoryStats)
			r.Get("/{signalID}", s.handleGetSignal)
		})

		r.Route("/briefings", func(r chi.Router) {
			r.Get("/", s.handleListBriefings)
			r.Get("/latest", s.handleLatestBriefing)
			r.Post("/generate", s.handleGenerateBriefing)
			r.Get("/{briefingID}", s.handleGetBriefing)
		})

		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.handleListSources)
			r.Post("/", s.handleCreateSource)
			r.Delete("/{sourceID}", s.handleDeleteSource)
		})

		r.Route("/feedback", func(r chi.Router) {
			r.Get("/", s.handleListFeedback)
			r.Post("/", s.handleSubmitFeedback)
			r.Get("/saved", s.handleSavedFeedback)
			r.Delete("/{itemID}", s.handleDeleteFeedback)
		})
	})

	return r
}

// Start serves the API until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.APIPort),
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		defer cancel()

		//nolint:errcheck,contextcheck // shutdown in signal handler is best-effort, non-inherited context intentional
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.cfg.APIPort).Msg("API server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

func (s *Server) mountHealth(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)
	r.Method(http.MethodGet, "/health/metrics", promhttp.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": appVersion,
	})
}

// handleReady reports dependency state. It always answers 200; a degraded
// status with per-check detail is the signal, not the HTTP code.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]any{"database": true}
	status := "ready"

	if err := s.repo.Ping(r.Context()); err != nil {
		checks["database"] = false
		checks["database_error"] = err.Error()
		status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// requireUser resolves the caller from the X-User-ID header set by the auth
// proxy. A missing or malformed header ends the request with 401.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(headerUserID)
	if _, err := uuid.Parse(userID); err != nil {
		s.writeError(w, http.StatusUnauthorized, errMsgAuthRequired)

		return "", false
	}

	return userID, true
}

// requestLogger logs one line per request and feeds the route metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}

		latencyHistogram.WithLabelValues(route).Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()

		s.logger.Info().
			Str(logFieldMethod, r.Method).
			Str(logFieldPath, r.URL.Path).
			Int(logFieldStatus, ww.Status()).
			Dur("duration", time.Since(start)).
			Str(logFieldRequestID, middleware.GetReqID(r.Context())).
			Msg("API request")
	})
}
