package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/deskmove/pkg/model"
)

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.queue.Stats())
}

func (s *Server) handleSetConcurrency(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		Concurrency *int `json:"concurrency"`
	}
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if req.Concurrency == nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("missing required field",
			model.FieldError{Field: "concurrency", Message: "concurrency is required"}))
		return
	}
	if err := s.queue.SetConcurrency(*req.Concurrency); err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, s.queue.Stats())
}

func (s *Server) handleStartQueue(w http.ResponseWriter, r *http.Request) {
	s.queue.Start()
	respondOK(w, RequestIDFromContext(r.Context()), s.queue.Stats())
}

func (s *Server) handleStopQueue(w http.ResponseWriter, r *http.Request) {
	s.queue.Stop()
	respondOK(w, RequestIDFromContext(r.Context()), s.queue.Stats())
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	opts, apiErr := listOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if s.history == nil {
		respondList(w, reqID, []*model.JobSummary{}, 0, opts)
		return
	}

	sums, total, err := s.history.ListSummaries(r.Context(), opts)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if sums == nil {
		sums = []*model.JobSummary{}
	}
	respondList(w, reqID, sums, total, opts)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if s.history == nil {
		respondErr(w, reqID, model.NewNotFoundError("job summary", id))
		return
	}

	sum, err := s.history.GetSummary(r.Context(), id)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if sum == nil {
		respondErr(w, reqID, model.NewNotFoundError("job summary", id))
		return
	}
	respondOK(w, reqID, sum)
}
