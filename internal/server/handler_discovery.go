package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "deskmove API",
		Version:     "v1",
		Description: "Cloud PC migration queue: move users between provisioning groups",
		Endpoints: []endpointInfo{
			{"/api/v1/jobs", []string{"GET", "POST"}, "List jobs (?status=&user=) or enqueue one job or a JSON array of jobs"},
			{"/api/v1/jobs/{id}", []string{"GET", "DELETE"}, "Single job detail; DELETE removes a job that is not in flight"},
			{"/api/v1/jobs/{id}/reorder", []string{"POST"}, "Move a queued job up, down, top or bottom"},
			{"/api/v1/queue", []string{"GET"}, "Queue counts, concurrency and running state"},
			{"/api/v1/queue/concurrency", []string{"PUT"}, "Change the active job cap"},
			{"/api/v1/queue/start", []string{"POST"}, "Resume admission of queued jobs"},
			{"/api/v1/queue/stop", []string{"POST"}, "Pause admission; in-flight jobs continue"},
			{"/api/v1/history", []string{"GET"}, "Summaries of finished jobs (?status=&user=)"},
			{"/api/v1/history/{id}", []string{"GET"}, "Summary of one finished job"},
			{"/api/v1/sse/jobs", []string{"GET"}, "Server-Sent Events stream of job changes and log events"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
