package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/deskmove/internal/scheduler"
	"github.com/me/deskmove/pkg/model"
)

// handleCreateJobs accepts a single job request object or an array of them.
// Arrays are enqueued atomically.
func (s *Server) handleCreateJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("read body: "+err.Error()))
		return
	}
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []model.JobRequest
		if err := strictUnmarshal(trimmed, &reqs); err != nil {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("Invalid JSON body: "+err.Error()))
			return
		}
		jobs, err := s.queue.EnqueueBatch(reqs)
		if err != nil {
			respondErr(w, reqID, err)
			return
		}
		respondCreated(w, reqID, jobs)
		return
	}

	var req model.JobRequest
	if err := strictUnmarshal(trimmed, &req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("Invalid JSON body: "+err.Error()))
		return
	}
	job, err := s.queue.Enqueue(req)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondCreated(w, reqID, job)
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	opts, apiErr := listOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	matched := []*model.Job{}
	for _, j := range s.queue.Jobs() {
		if opts.MatchesJob(j) {
			matched = append(matched, j)
		}
	}
	start, end := opts.Window(len(matched))
	respondList(w, reqID, matched[start:end], len(matched), opts)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	job, err := s.queue.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, job)
}

func (s *Server) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := s.queue.Remove(id); err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"id": id, "removed": true})
}

func (s *Server) handleReorderJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req struct {
		Direction scheduler.Direction `json:"direction"`
	}
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if err := s.queue.Reorder(id, req.Direction); err != nil {
		respondErr(w, reqID, err)
		return
	}
	job, err := s.queue.Get(id)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, job)
}
