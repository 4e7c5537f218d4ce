package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/deskmove/pkg/model"
)

type healthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	GoVersion string           `json:"go_version"`
	Uptime    string           `json:"uptime"`
	Gateway   string           `json:"gateway"`
	History   string           `json:"history"`
	Queue     model.QueueStats `json:"queue"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	history := "disabled"
	if s.history != nil {
		history = "sqlite"
	}
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Gateway:   s.gateway,
		History:   history,
		Queue:     s.queue.Stats(),
	})
}
