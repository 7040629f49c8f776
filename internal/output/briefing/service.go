package briefing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/platform/config"
	"github.com/tidesignal/newsbrief/internal/platform/observability"
	"github.com/tidesignal/newsbrief/internal/process/dedup"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

// candidatePoolMultiplier oversizes the candidate fetch so cluster collapse
// and preference filters still leave a full briefing.
const candidatePoolMultiplier = 2

const (
	candidateWindow     = db.HoursPerDay * time.Hour
	contentPreviewChars = 500
	oneLinerChars       = 200

	defaultWhyItMatters = "High signal item"
	defaultConfidence   = "med"

	logKeyScope      = "scope"
	logKeyUserID     = "user_id"
	logKeyBriefingID = "briefing_id"
)

// Generation outcomes surfaced to callers.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrNoCandidates = errors.New("no high-signal items available")
)

// Repository is the storage surface briefing generation depends on.
type Repository interface {
	GetUser(ctx context.Context, userID string) (*db.User, error)
	GetUserPreferences(ctx context.Context, userID string) (*db.UserPreferences, error)
	ListActiveUsers(ctx context.Context) ([]db.User, error)
	GetBriefingCandidates(ctx context.Context, since time.Time, minScore float64, topics []string, limit int) ([]db.Signal, error)
	GetLatestBriefing(ctx context.Context, scope string) (*db.Briefing, error)
	HasBriefingSince(ctx context.Context, scope string, since time.Time) (bool, error)
	InsertBriefing(ctx context.Context, briefing *db.Briefing, items []db.BriefingItem) error
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// Service generates and stores briefings.
type Service struct {
	repo     Repository
	composer Composer
	cfg      config.BriefingConfig
	logger   *zerolog.Logger
}

// NewService wires a briefing service.
func NewService(repo Repository, composer Composer, cfg config.BriefingConfig, logger *zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		composer: composer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Result reports one generation attempt. Generated false with a briefing ID
// means the scope was already briefed today and the existing ID is returned.
type Result struct {
	BriefingID string
	Generated  bool
	Mode       string
	ItemCount  int
}

// BatchResult aggregates a daily generation run.
type BatchResult struct {
	UsersProcessed int
	Generated      int
	Skipped        int
	Failed         int
}

// GenerateForUser composes and stores today's briefing for one user. Unless
// force is set, at most one briefing is generated per user per UTC day.
func (s *Service) GenerateForUser(ctx context.Context, userID string, force bool) (*Result, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user == nil {
		return nil, ErrUserNotFound
	}

	prefs, err := s.repo.GetUserPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user preferences: %w", err)
	}

	if prefs == nil {
		prefs = db.DefaultUserPreferences(userID)
	}

	return s.generate(ctx, db.UserScope(userID), prefs, force)
}

// GenerateGlobal composes and stores today's non-personalized briefing.
func (s *Service) GenerateGlobal(ctx context.Context, force bool) (*Result, error) {
	return s.generate(ctx, db.ScopeGlobal, nil, force)
}

// GenerateAll runs the daily batch: one briefing per active user not yet
// briefed today, plus the global briefing when enabled. Per-scope failures
// are absorbed so one bad user cannot stall the run.
func (s *Service) GenerateAll(ctx context.Context) (BatchResult, error) {
	var batch BatchResult

	midnight := utcMidnight(time.Now().UTC())

	users, err := s.repo.ListActiveUsers(ctx)
	if err != nil {
		return batch, fmt.Errorf("list active users: %w", err)
	}

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return batch, err //nolint:wrapcheck
		}

		briefed, err := s.repo.HasBriefingSince(ctx, db.UserScope(user.ID), midnight)
		if err != nil {
			return batch, fmt.Errorf("check briefing for user %s: %w", user.ID, err)
		}

		if briefed {
			batch.Skipped++

			continue
		}

		batch.UsersProcessed++
		s.recordOutcome(&batch, user.ID, s.runForUser(ctx, user.ID))
	}

	if s.cfg.GlobalEnabled {
		result, err := s.GenerateGlobal(ctx, false)
		s.recordOutcome(&batch, db.ScopeGlobal, outcome{result: result, err: err})
	}

	s.logger.Info().
		Int("users", batch.UsersProcessed).
		Int("generated", batch.Generated).
		Int("skipped", batch.Skipped).
		Int("failed", batch.Failed).
		Msg("Daily briefing run complete")

	return batch, nil
}

type outcome struct {
	result *Result
	err    error
}

func (s *Service) runForUser(ctx context.Context, userID string) outcome {
	result, err := s.GenerateForUser(ctx, userID, false)

	return outcome{result: result, err: err}
}

func (s *Service) recordOutcome(batch *BatchResult, scope string, out outcome) {
	switch {
	case errors.Is(out.err, ErrNoCandidates):
		batch.Skipped++

		s.logger.Debug().Str(logKeyScope, scope).Msg("No briefing candidates")
	case out.err != nil:
		batch.Failed++

		s.logger.Warn().Err(out.err).Str(logKeyScope, scope).Msg("Briefing generation failed")
	case out.result.Generated:
		batch.Generated++
	default:
		batch.Skipped++
	}
}

func (s *Service) generate(ctx context.Context, scope string, prefs *db.UserPreferences, force bool) (*Result, error) {
	now := time.Now().UTC()

	if !force {
		latest, err := s.repo.GetLatestBriefing(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("check existing briefing: %w", err)
		}

		if latest != nil && !latest.CreatedAt.Before(utcMidnight(now)) {
			return &Result{BriefingID: latest.ID, Generated: false}, nil
		}
	}

	candidates, err := s.collectCandidates(ctx, now, prefs)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	var topics []string
	if prefs != nil {
		topics = prefs.Topics
	}

	comp := s.composer.Compose(ctx, ComposeRequest{
		Scope:       scope,
		Candidates:  toCandidates(candidates),
		FocusTopics: topics,
		NumItems:    s.cfg.NumItems,
		TargetWords: s.cfg.TargetWords,
		Now:         now,
	})

	items := s.buildItems(comp.ItemsUsed, candidates)

	briefing := &db.Briefing{
		Scope:       scope,
		PeriodStart: now.Add(-candidateWindow),
		PeriodEnd:   now,
		SummaryMD:   comp.SummaryMD,
		Meta: map[string]any{
			"mode":       comp.Mode,
			"item_count": len(items),
			"threshold":  s.cfg.HighSignalThreshold,
		},
	}

	if err := s.repo.InsertBriefing(ctx, briefing, items); err != nil {
		return nil, fmt.Errorf("store briefing: %w", err)
	}

	observability.BriefingsGenerated.WithLabelValues(scopeKind(scope), comp.Mode).Inc()

	s.logger.Info().
		Str(logKeyScope, scope).
		Str(logKeyBriefingID, briefing.ID).
		Str("mode", comp.Mode).
		Int("items", len(items)).
		Msg("Briefing generated")

	return &Result{BriefingID: briefing.ID, Generated: true, Mode: comp.Mode, ItemCount: len(items)}, nil
}

// collectCandidates loads the scored-item pool and narrows it to the final
// briefing list: preference filters first, then same-cluster collapse, then
// the size cap.
func (s *Service) collectCandidates(ctx context.Context, now time.Time, prefs *db.UserPreferences) ([]db.Signal, error) {
	var topics []string
	if prefs != nil {
		topics = prefs.Topics
	}

	pool := s.cfg.NumItems * candidatePoolMultiplier

	signals, err := s.repo.GetBriefingCandidates(ctx, now.Add(-candidateWindow), s.cfg.HighSignalThreshold, topics, pool)
	if err != nil {
		return nil, fmt.Errorf("load briefing candidates: %w", err)
	}

	signals = filterByPreferences(signals, prefs)
	signals = dedup.CollapseByCluster(signals, s.logger)

	if len(signals) > s.cfg.NumItems {
		signals = signals[:s.cfg.NumItems]
	}

	return signals, nil
}

// buildItems links the composed briefing back to its items in rank order.
// IDs the model invented are skipped with a warning.
func (s *Service) buildItems(itemsUsed []string, candidates []db.Signal) []db.BriefingItem {
	byID := make(map[string]db.Signal, len(candidates))
	for _, sig := range candidates {
		byID[sig.ID] = sig
	}

	items := make([]db.BriefingItem, 0, len(itemsUsed))

	for _, id := range itemsUsed {
		sig, ok := byID[id]
		if !ok {
			s.logger.Warn().Str("item_id", id).Msg("Briefing references unknown item, skipping link")

			continue
		}

		items = append(items, db.BriefingItem{
			Rank:         len(items) + 1,
			RawItemID:    sig.ID,
			ClusterID:    sig.ClusterID,
			Title:        sig.Title,
			OneLiner:     clip(sig.RawText, oneLinerChars),
			WhyItMatters: defaultWhyItMatters,
			Confidence:   defaultConfidence,
			SignalScore:  sig.SignalScore,
			Sources:      []db.BriefingSource{{Name: sig.SourceName, URL: sig.URL}},
		})
	}

	return items
}

// filterByPreferences drops candidates the user filtered out. Blocked
// sources and exclude keywords always win; a non-empty include list keeps
// only items matching at least one keyword. Matching is a case-insensitive
// substring check over title and body.
func filterByPreferences(signals []db.Signal, prefs *db.UserPreferences) []db.Signal {
	if prefs == nil {
		return signals
	}

	if len(prefs.KeywordsInclude) == 0 && len(prefs.KeywordsExclude) == 0 && len(prefs.SourcesBlocked) == 0 {
		return signals
	}

	blocked := make(map[string]struct{}, len(prefs.SourcesBlocked))
	for _, id := range prefs.SourcesBlocked {
		blocked[id] = struct{}{}
	}

	kept := make([]db.Signal, 0, len(signals))

	for _, sig := range signals {
		if _, ok := blocked[sig.SourceID]; ok {
			continue
		}

		text := strings.ToLower(sig.Title + " " + sig.RawText)

		if matchesAny(text, prefs.KeywordsExclude) {
			continue
		}

		if len(prefs.KeywordsInclude) > 0 && !matchesAny(text, prefs.KeywordsInclude) {
			continue
		}

		kept = append(kept, sig)
	}

	return kept
}

func matchesAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}

		if strings.Contains(text, strings.ToLower(keyword)) {
			return true
		}
	}

	return false
}

func toCandidates(signals []db.Signal) []Candidate {
	candidates := make([]Candidate, len(signals))
	for i, sig := range signals {
		candidates[i] = newCandidate(sig)
	}

	return candidates
}

// newCandidate projects a stored signal into the composer's shape. The score
// is rounded to two decimals so the prompt and the rendered fallback agree.
func newCandidate(sig db.Signal) Candidate {
	candidate := Candidate{
		ID:          sig.ID,
		Title:       sig.Title,
		URL:         sig.URL,
		Source:      sig.SourceName,
		Category:    sig.Category,
		SignalScore: round2(sig.SignalScore),
		Content:     clip(sig.RawText, contentPreviewChars),
	}

	if sig.PublishedAt != nil {
		published := sig.PublishedAt.UTC().Format(time.RFC3339)
		candidate.PublishedAt = &published
	}

	return candidate
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// scopeKind collapses scopes to a bounded metric label.
func scopeKind(scope string) string {
	if scope == db.ScopeGlobal {
		return db.ScopeGlobal
	}

	return "user"
}

// utcMidnight returns the start of the UTC day containing t.
func utcMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
