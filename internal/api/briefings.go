package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tidesignal/newsbrief/internal/output/briefing"
	"github.com/tidesignal/newsbrief/internal/platform/observability"
	"github.com/tidesignal/newsbrief/internal/platform/schedule"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

type briefingResponse struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	SummaryMD string `json:"summary_md"`
}

type briefingItemResponse struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

type briefingDetailResponse struct {
	briefingResponse
	Items []briefingItemResponse `json:"items"`
}

type briefingListResponse struct {
	Briefings []briefingResponse `json:"briefings"`
	Total     int                `json:"total"`
}

type generateBriefingRequest struct {
	Force bool `json:"force"`
}

func (s *Server) handleListBriefings(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", defaultBriefingLimit, 1, maxBriefingLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	offset, err := queryInt(r, "offset", 0, 0, math.MaxInt)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	briefings, err := s.repo.ListBriefings(r.Context(), db.UserScope(userID), limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list briefings")
		s.writeError(w, http.StatusInternalServerError, errMsgListBriefings)

		return
	}

	resp := briefingListResponse{
		Briefings: make([]briefingResponse, 0, len(briefings)),
	}

	for _, b := range briefings {
		resp.Briefings = append(resp.Briefings, newBriefingResponse(b))
	}

	resp.Total = len(resp.Briefings)

	s.writeJSON(w, http.StatusOK, resp)
}

// handleLatestBriefing returns the caller's newest briefing with its items,
// or a JSON null when the user has never been briefed.
func (s *Server) handleLatestBriefing(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	latest, err := s.repo.GetLatestBriefing(r.Context(), db.UserScope(userID))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load latest briefing")
		s.writeError(w, http.StatusInternalServerError, errMsgLoadBriefing)

		return
	}

	if latest == nil {
		s.writeJSON(w, http.StatusOK, nil)

		return
	}

	detail, err := s.briefingDetail(r.Context(), latest)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load briefing items")
		s.writeError(w, http.StatusInternalServerError, errMsgLoadBriefing)

		return
	}

	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGetBriefing(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	briefingID := chi.URLParam(r, "briefingID")
	if _, err := uuid.Parse(briefingID); err != nil {
		s.writeError(w, http.StatusBadRequest, errMsgInvalidBriefingID)

		return
	}

	found, err := s.repo.GetBriefing(r.Context(), briefingID, db.UserScope(userID))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load briefing")
		s.writeError(w, http.StatusInternalServerError, errMsgLoadBriefing)

		return
	}

	if found == nil {
		s.writeError(w, http.StatusNotFound, errMsgBriefingNotFound)

		return
	}

	detail, err := s.briefingDetail(r.Context(), found)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load briefing items")
		s.writeError(w, http.StatusInternalServerError, errMsgLoadBriefing)

		return
	}

	s.writeJSON(w, http.StatusOK, detail)
}

// handleGenerateBriefing composes a briefing on demand. At most one briefing
// per user per UTC day unless force is set; generation also stops once the
// user's daily chat-model budget is spent.
func (s *Server) handleGenerateBriefing(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req generateBriefingRequest
	if err := s.decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, errMsgInvalidBody)

		return
	}

	ctx := r.Context()
	scope := db.UserScope(userID)

	if !req.Force {
		latest, err := s.repo.GetLatestBriefing(ctx, scope)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to check existing briefing")
			s.writeError(w, http.StatusInternalServerError, errMsgGenerateBriefing)

			return
		}

		if latest != nil && !latest.CreatedAt.Before(schedule.UTCMidnight(time.Now().UTC())) {
			s.writeJSON(w, http.StatusOK, map[string]any{
				"message":     msgBriefingExists,
				"briefing_id": latest.ID,
				"generated":   false,
			})

			return
		}
	}

	allowed, err := s.withinUsageCap(ctx, scope)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to check usage cap")
		s.writeError(w, http.StatusInternalServerError, errMsgGenerateBriefing)

		return
	}

	if !allowed {
		s.writeError(w, http.StatusTooManyRequests, errMsgCapReached)

		return
	}

	result, err := s.generator.GenerateForUser(ctx, userID, req.Force)

	switch {
	case errors.Is(err, briefing.ErrUserNotFound):
		s.writeError(w, http.StatusNotFound, errMsgUserNotFound)
	case errors.Is(err, briefing.ErrNoCandidates):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error().Err(err).Msg("Failed to generate briefing")
		s.writeError(w, http.StatusInternalServerError, errMsgGenerateBriefing)
	case !result.Generated:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"message":     msgBriefingExists,
			"briefing_id": result.BriefingID,
			"generated":   false,
		})
	default:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"message":        msgBriefingGenerated,
			"briefing_id":    result.BriefingID,
			"items_included": result.ItemCount,
			"generated":      true,
		})
	}
}

// withinUsageCap reports whether the scope's rolling daily chat-model budget
// still has room. A zero cap disables the check.
func (s *Server) withinUsageCap(ctx context.Context, scope string) (bool, error) {
	if s.maxLLMPerDay <= 0 {
		return true, nil
	}

	used, err := s.repo.CountUsageSince(ctx, db.UsageKindLLM, scope, time.Now().UTC().Add(-usageWindow))
	if err != nil {
		return false, fmt.Errorf("count llm usage: %w", err)
	}

	if used >= s.maxLLMPerDay {
		observability.UsageCapHits.WithLabelValues(db.UsageKindLLM).Inc()

		return false, nil
	}

	return true, nil
}

func (s *Server) briefingDetail(ctx context.Context, b *db.Briefing) (briefingDetailResponse, error) {
	items, err := s.repo.GetBriefingItems(ctx, b.ID)
	if err != nil {
		return briefingDetailResponse{}, fmt.Errorf("load briefing items: %w", err)
	}

	detail := briefingDetailResponse{
		briefingResponse: newBriefingResponse(*b),
		Items:            make([]briefingItemResponse, 0, len(items)),
	}

	for _, item := range items {
		detail.Items = append(detail.Items, briefingItemResponse{
			ID:     item.RawItemID,
			Title:  item.Title,
			URL:    item.URL,
			Source: item.SourceName,
		})
	}

	return detail, nil
}

func newBriefingResponse(b db.Briefing) briefingResponse {
	return briefingResponse{
		ID:        b.ID,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
		SummaryMD: b.SummaryMD,
	}
}
