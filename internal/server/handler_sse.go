package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/me/deskmove/pkg/model"
)

// heartbeatInterval keeps idle streams open through proxies.
var heartbeatInterval = 15 * time.Second

// sseSubscribedHook runs after a stream subscribes and before it reads the
// snapshot. Tests replace it.
var sseSubscribedHook = func() {}

// handleSSEJobs streams job events via Server-Sent Events. The stream opens
// with a snapshot of every job. ?job=<id> limits it to one job.
// GET /api/v1/sse/jobs
func (s *Server) handleSSEJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.events == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("event stream", "jobs"))
		return
	}
	only := r.URL.Query().Get("job")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before reading the snapshot so no change falls in between.
	events, cancel := s.events.Subscribe()
	defer cancel()
	sseSubscribedHook()

	snapshot := s.queue.Jobs()
	if only != "" {
		job, err := s.queue.Get(only)
		if err != nil {
			respondErr(w, reqID, err)
			return
		}
		snapshot = []*model.Job{job}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := sendSSEEvent(w, flusher, "snapshot", snapshot); err != nil {
		s.logger.Debug("sse client disconnected", "error", err)
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if only != "" && e.JobID != only {
				continue
			}
			if err := sendSSEEvent(w, flusher, e.Type, e); err != nil {
				s.logger.Debug("sse client disconnected", "error", err)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	if err != nil {
		return err
	}

	flusher.Flush()
	return nil
}
