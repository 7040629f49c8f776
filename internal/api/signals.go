package api

import (
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	db "github.com/tidesignal/newsbrief/internal/storage"
)

type signalResponse struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	SourceName     string  `json:"source_name"`
	SourceType     string  `json:"source_type"`
	PublishedAt    *string `json:"published_at"`
	SignalScore    float64 `json:"signal_score"`
	Relevance      float64 `json:"relevance"`
	Velocity       float64 `json:"velocity"`
	CrossSource    float64 `json:"cross_source"`
	Novelty        float64 `json:"novelty"`
	ContentPreview string  `json:"content_preview"`
}

type signalListResponse struct {
	Signals []signalResponse `json:"signals"`
	Total   int              `json:"total"`
	HasMore bool             `json:"has_more"`
}

type signalDetailResponse struct {
	signalResponse
	RawText          string         `json:"raw_text"`
	CanonicalURL     string         `json:"canonical_url"`
	ScoreExplanation map[string]any `json:"score_explanation"`
}

type categoryStatResponse struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	AvgScore float64 `json:"avg_score"`
}

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSignalFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	signals, hasMore, err := s.repo.ListSignals(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list signals")
		s.writeError(w, http.StatusInternalServerError, errMsgListSignals)

		return
	}

	resp := signalListResponse{
		Signals: make([]signalResponse, 0, len(signals)),
		HasMore: hasMore,
	}

	for _, sig := range signals {
		resp.Signals = append(resp.Signals, newSignalResponse(sig))
	}

	// Total counts the page plus one when more pages exist; a full table
	// count is not worth the scan for a feed endpoint.
	resp.Total = len(resp.Signals)
	if hasMore {
		resp.Total++
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTopSignals(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultTopLimit, 1, maxTopLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	signals, err := s.repo.GetTopSignals(r.Context(), limit, topSignalsMinScore)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load top signals")
		s.writeError(w, http.StatusInternalServerError, errMsgListSignals)

		return
	}

	resp := make([]signalResponse, 0, len(signals))
	for _, sig := range signals {
		resp = append(resp, newSignalResponse(sig))
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	signalID := chi.URLParam(r, "signalID")
	if _, err := uuid.Parse(signalID); err != nil {
		s.writeError(w, http.StatusBadRequest, errMsgInvalidSignalID)

		return
	}

	detail, err := s.repo.GetSignal(r.Context(), signalID)
	if err != nil {
		s.logger.Error().Err(err).Str("signal_id", signalID).Msg("Failed to load signal")
		s.writeError(w, http.StatusInternalServerError, errMsgLoadSignal)

		return
	}

	if detail == nil {
		s.writeError(w, http.StatusNotFound, errMsgSignalNotFound)

		return
	}

	s.writeJSON(w, http.StatusOK, signalDetailResponse{
		signalResponse:   newSignalResponse(detail.Signal),
		RawText:          detail.RawText,
		CanonicalURL:     detail.CanonicalURL,
		ScoreExplanation: detail.ScoreMeta,
	})
}

func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", defaultHours, 1, maxHours)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	stats, err := s.repo.GetCategoryStats(r.Context(), hours)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load category stats")
		s.writeError(w, http.StatusInternalServerError, errMsgCategoryStats)

		return
	}

	resp := make([]categoryStatResponse, 0, len(stats))
	for _, stat := range stats {
		resp = append(resp, categoryStatResponse{
			Category: stat.Category,
			Count:    stat.Count,
			AvgScore: round3(stat.AvgScore),
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func parseSignalFilter(r *http.Request) (db.SignalFilter, error) {
	minScore, err := queryFloat(r, "min_score", defaultMinScore, 0, 1)
	if err != nil {
		return db.SignalFilter{}, err
	}

	hours, err := queryInt(r, "hours", defaultHours, 1, maxHours)
	if err != nil {
		return db.SignalFilter{}, err
	}

	limit, err := queryInt(r, "limit", defaultSignalLimit, 1, maxSignalLimit)
	if err != nil {
		return db.SignalFilter{}, err
	}

	offset, err := queryInt(r, "offset", 0, 0, math.MaxInt)
	if err != nil {
		return db.SignalFilter{}, err
	}

	return db.SignalFilter{
		MinScore:   minScore,
		Category:   r.URL.Query().Get("category"),
		SourceType: r.URL.Query().Get("source_type"),
		Hours:      hours,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

func newSignalResponse(sig db.Signal) signalResponse {
	resp := signalResponse{
		ID:             sig.ID,
		Title:          sig.Title,
		URL:            sig.URL,
		SourceName:     sig.SourceName,
		SourceType:     sig.SourceType,
		SignalScore:    round3(sig.SignalScore),
		Relevance:      round3(sig.Relevance),
		Velocity:       round3(sig.Velocity),
		CrossSource:    round3(sig.CrossSource),
		Novelty:        round3(sig.Novelty),
		ContentPreview: preview(sig.RawText, previewChars),
	}

	if sig.PublishedAt != nil {
		published := sig.PublishedAt.UTC().Format(time.RFC3339)
		resp.PublishedAt = &published
	}

	return resp
}
