package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	db "github.com/tidesignal/newsbrief/internal/storage"
)

type feedbackRequest struct {
	RawItemID string `json:"raw_item_id"`
	Kind      string `json:"kind"`
	Note      string `json:"note"`
}

type feedbackResponse struct {
	RawItemID string `json:"raw_item_id"`
	Kind      string `json:"kind"`
	Note      string `json:"note"`
	CreatedAt string `json:"created_at"`
}

type feedbackListResponse struct {
	Feedback []feedbackResponse `json:"feedback"`
	Total    int                `json:"total"`
}

// handleSubmitFeedback records the caller's verdict on an item, replacing
// any earlier verdict on the same item.
func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, errMsgInvalidBody)

		return
	}

	if !validFeedbackKind(req.Kind) {
		s.writeError(w, http.StatusBadRequest, errMsgInvalidKindList)

		return
	}

	if _, err := uuid.Parse(req.RawItemID); err != nil {
		s.writeError(w, http.StatusBadRequest, errMsgInvalidItemID)

		return
	}

	item, err := s.repo.GetRawItem(r.Context(), req.RawItemID)
	if err != nil {
		s.logger.Error().Err(err).Str("item_id", req.RawItemID).Msg("Failed to load item")
		s.writeError(w, http.StatusInternalServerError, errMsgSaveFeedback)

		return
	}

	if item == nil {
		s.writeError(w, http.StatusNotFound, errMsgItemNotFound)

		return
	}

	feedback := &db.Feedback{
		UserID:    userID,
		RawItemID: req.RawItemID,
		Kind:      req.Kind,
		Note:      req.Note,
	}

	if err := s.repo.UpsertFeedback(r.Context(), feedback); err != nil {
		s.logger.Error().Err(err).Str("item_id", req.RawItemID).Msg("Failed to save feedback")
		s.writeError(w, http.StatusInternalServerError, errMsgSaveFeedback)

		return
	}

	s.writeJSON(w, http.StatusOK, newFeedbackResponse(*feedback))
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	kind := r.URL.Query().Get("kind")
	if kind != "" && !validFeedbackKind(kind) {
		s.writeError(w, http.StatusBadRequest, errMsgInvalidKind)

		return
	}

	s.listFeedback(w, r, userID, kind)
}

// handleSavedFeedback lists the caller's saved items.
func (s *Server) handleSavedFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	s.listFeedback(w, r, userID, db.FeedbackSave)
}

func (s *Server) handleDeleteFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	itemID := chi.URLParam(r, "itemID")
	if _, err := uuid.Parse(itemID); err != nil {
		s.writeError(w, http.StatusBadRequest, errMsgInvalidItemID)

		return
	}

	deleted, err := s.repo.DeleteFeedback(r.Context(), userID, itemID)
	if err != nil {
		s.logger.Error().Err(err).Str("item_id", itemID).Msg("Failed to delete feedback")
		s.writeError(w, http.StatusInternalServerError, errMsgDeleteFeedback)

		return
	}

	if !deleted {
		s.writeError(w, http.StatusNotFound, errMsgFeedbackNotFound)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) listFeedback(w http.ResponseWriter, r *http.Request, userID, kind string) {
	feedbacks, err := s.repo.ListFeedback(r.Context(), userID, kind)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list feedback")
		s.writeError(w, http.StatusInternalServerError, errMsgListFeedback)

		return
	}

	resp := feedbackListResponse{
		Feedback: make([]feedbackResponse, 0, len(feedbacks)),
	}

	for _, f := range feedbacks {
		resp.Feedback = append(resp.Feedback, newFeedbackResponse(f))
	}

	resp.Total = len(resp.Feedback)

	s.writeJSON(w, http.StatusOK, resp)
}

func validFeedbackKind(kind string) bool {
	switch kind {
	case db.FeedbackUp, db.FeedbackDown, db.FeedbackSave, db.FeedbackHide:
		return true
	default:
		return false
	}
}

func newFeedbackResponse(f db.Feedback) feedbackResponse {
	return feedbackResponse{
		RawItemID: f.RawItemID,
		Kind:      f.Kind,
		Note:      f.Note,
		CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339),
	}
}
