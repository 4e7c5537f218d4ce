package model

import "time"

// JobSummary is the record emitted once per terminal job for export and
// history.
type JobSummary struct {
	JobID           string    `json:"job_id"`
	User            string    `json:"user"`
	SourceGroup     string    `json:"source_group"`
	OldResourceName string    `json:"old_resource_name"`
	TargetGroup     string    `json:"target_group"`
	NewResourceName string    `json:"new_resource_name"`
	Status          Status    `json:"status"`
	Stage           Stage     `json:"stage"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Message         string    `json:"message"`
	Anomalies       int       `json:"anomalies"`
}

// QueueStats provides an aggregate count of job statuses within a queue.
type QueueStats struct {
	Total               int  `json:"total"`
	Queued              int  `json:"queued"`
	Active              int  `json:"active"`
	Monitoring          int  `json:"monitoring"`
	Success             int  `json:"success"`
	SuccessWithWarnings int  `json:"success_with_warnings"`
	Warning             int  `json:"warning"`
	Failed              int  `json:"failed"`
	Concurrency         int  `json:"concurrency"`
	MaxConcurrency      int  `json:"max_concurrency"`
	Running             bool `json:"running"`
}

// ComputeQueueStats counts jobs by status. Concurrency fields are left for
// the caller to fill in.
func ComputeQueueStats(jobs []*Job) QueueStats {
	s := QueueStats{Total: len(jobs)}
	for _, j := range jobs {
		switch j.Status {
		case StatusQueued:
			s.Queued++
		case StatusActive:
			s.Active++
		case StatusMonitoring:
			s.Monitoring++
		case StatusSuccess:
			s.Success++
		case StatusSuccessWithWarnings:
			s.SuccessWithWarnings++
		case StatusWarning:
			s.Warning++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}
