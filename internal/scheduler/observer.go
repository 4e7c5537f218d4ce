package scheduler

import (
	"context"
	"log/slog"

	"github.com/me/deskmove/pkg/model"
)

// Observer receives queue events. Calls are synchronous and made while the
// queue is locked, so implementations must return quickly and must not call
// back into the Queue. Jobs passed in are copies.
type Observer interface {
	OnLog(level slog.Level, jobID, message string)
	OnJobChanged(job *model.Job)
	OnJobCompleted(summary model.JobSummary)
	OnJobRemoved(jobID string)
}

// Funcs adapts optional functions to an Observer. Nil fields are skipped.
type Funcs struct {
	Log       func(level slog.Level, jobID, message string)
	Changed   func(job *model.Job)
	Completed func(summary model.JobSummary)
	Removed   func(jobID string)
}

func (f Funcs) OnLog(level slog.Level, jobID, message string) {
	if f.Log != nil {
		f.Log(level, jobID, message)
	}
}

func (f Funcs) OnJobChanged(job *model.Job) {
	if f.Changed != nil {
		f.Changed(job)
	}
}

func (f Funcs) OnJobCompleted(summary model.JobSummary) {
	if f.Completed != nil {
		f.Completed(summary)
	}
}

func (f Funcs) OnJobRemoved(jobID string) {
	if f.Removed != nil {
		f.Removed(jobID)
	}
}

// Multi fans events out to several observers in order.
type Multi []Observer

func (m Multi) OnLog(level slog.Level, jobID, message string) {
	for _, o := range m {
		o.OnLog(level, jobID, message)
	}
}

func (m Multi) OnJobChanged(job *model.Job) {
	for _, o := range m {
		o.OnJobChanged(job)
	}
}

func (m Multi) OnJobCompleted(summary model.JobSummary) {
	for _, o := range m {
		o.OnJobCompleted(summary)
	}
}

func (m Multi) OnJobRemoved(jobID string) {
	for _, o := range m {
		o.OnJobRemoved(jobID)
	}
}

// LogObserver writes queue events to a structured logger.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger.With("component", "jobs")}
}

func (o *LogObserver) OnLog(level slog.Level, jobID, message string) {
	o.logger.Log(context.Background(), level, message, "job_id", jobID)
}

func (o *LogObserver) OnJobChanged(job *model.Job) {
	o.logger.Debug("job changed", "job_id", job.ID, "upn", job.UserLabel(), "stage", job.Stage, "status", job.Status)
}

func (o *LogObserver) OnJobCompleted(s model.JobSummary) {
	level := slog.LevelInfo
	if s.Status == model.StatusFailed || s.Status == model.StatusWarning {
		level = slog.LevelWarn
	}
	o.logger.Log(context.Background(), level, "job finished",
		"job_id", s.JobID,
		"upn", s.User,
		"status", s.Status,
		"stage", s.Stage,
		"old", s.OldResourceName,
		"new", s.NewResourceName,
		"duration", s.EndTime.Sub(s.StartTime),
		"message", s.Message,
	)
}

func (o *LogObserver) OnJobRemoved(jobID string) {
	o.logger.Info("job removed", "job_id", jobID)
}
