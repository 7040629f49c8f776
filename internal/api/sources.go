package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	db "github.com/tidesignal/newsbrief/internal/storage"
)

type sourceResponse struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	SourceType      string         `json:"source_type"`
	URL             string         `json:"url"`
	Category        string         `json:"category"`
	CredibilityTier int16          `json:"credibility_tier"`
	Enabled         bool           `json:"enabled"`
	Config          map[string]any `json:"config"`
}

type createSourceRequest struct {
	Name            string         `json:"name"`
	SourceType      string         `json:"source_type"`
	URL             string         `json:"url"`
	Category        string         `json:"category"`
	Enabled         *bool          `json:"enabled"`
	CredibilityTier int16          `json:"credibility_tier"`
	Config          map[string]any `json:"config"`
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	enabledOnly, err := queryBool(r, "enabled_only", true)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	sources, err := s.repo.ListSources(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sources")
		s.writeError(w, http.StatusInternalServerError, errMsgListSources)

		return
	}

	resp := make([]sourceResponse, 0, len(sources))

	for _, src := range sources {
		if category != "" && src.Category != category {
			continue
		}

		if enabledOnly && !src.Enabled {
			continue
		}

		resp = append(resp, newSourceResponse(src))
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errMsgInvalidBody)

		return
	}

	if req.Name == "" || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, errMsgSourceRequired)

		return
	}

	if !validSourceType(req.SourceType) {
		s.writeError(w, http.StatusBadRequest, errMsgInvalidSourceType)

		return
	}

	tier := req.CredibilityTier
	if tier == 0 {
		tier = defaultCredibilityTier
	}

	if tier < minCredibilityTier || tier > maxCredibilityTier {
		s.writeError(w, http.StatusBadRequest, errMsgInvalidTier)

		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	src := &db.Source{
		Name:            req.Name,
		Type:            req.SourceType,
		URL:             req.URL,
		Category:        req.Category,
		CredibilityTier: tier,
		Enabled:         enabled,
		Config:          req.Config,
	}

	id, err := s.repo.CreateSource(r.Context(), src)
	if err != nil {
		s.logger.Error().Err(err).Str("source_name", req.Name).Msg("Failed to create source")
		s.writeError(w, http.StatusInternalServerError, errMsgCreateSource)

		return
	}

	src.ID = id

	s.writeJSON(w, http.StatusOK, newSourceResponse(*src))
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	if _, err := uuid.Parse(sourceID); err != nil {
		s.writeError(w, http.StatusBadRequest, errMsgInvalidSourceID)

		return
	}

	deleted, err := s.repo.DeleteSource(r.Context(), sourceID)
	if err != nil {
		s.logger.Error().Err(err).Str("source_id", sourceID).Msg("Failed to delete source")
		s.writeError(w, http.StatusInternalServerError, errMsgDeleteSource)

		return
	}

	if !deleted {
		s.writeError(w, http.StatusNotFound, errMsgSourceNotFound)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "deleted",
		"id":     sourceID,
	})
}

func validSourceType(sourceType string) bool {
	switch sourceType {
	case db.SourceTypeFeed, db.SourceTypeHN, db.SourceTypeReddit:
		return true
	default:
		return false
	}
}

func newSourceResponse(src db.Source) sourceResponse {
	config := src.Config
	if config == nil {
		config = map[string]any{}
	}

	return sourceResponse{
		ID:              src.ID,
		Name:            src.Name,
		SourceType:      src.Type,
		URL:             src.URL,
		Category:        src.Category,
		CredibilityTier: src.CredibilityTier,
		Enabled:         src.Enabled,
		Config:          config,
	}
}
