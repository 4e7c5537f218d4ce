package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/deskmove/pkg/model"
)

// Run calls Tick every TickInterval. Blocks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	interval := q.config.TickInterval
	if interval <= 0 {
		interval = DefaultConfig().TickInterval
	}
	q.logger.Info("scheduler started", "tick_interval", interval, "concurrency", q.Concurrency())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("scheduler stopping (context cancelled)")
			return ctx.Err()
		case <-ticker.C:
			if err := q.Tick(ctx); err != nil {
				q.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Tick runs a single scheduling iteration. An error from one job fails that
// job only. When ctx is done the remaining jobs are skipped, jobs already
// finished this tick are still reported, and Tick returns ctx's error.
func (q *Queue) Tick(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()

	// Phase 1: Admit Queued jobs into free slots.
	q.admit(now)

	// Phase 2: Run the current stage of every due in-flight job.
	var finished []*model.Job
	var interrupted error
	for _, job := range q.jobs {
		if err := ctx.Err(); err != nil {
			interrupted = fmt.Errorf("tick interrupted: %w", err)
			break
		}
		if !job.Status.InFlight() || !q.proc.IsDue(job, now) {
			continue
		}
		q.processOne(ctx, job, now)
		if job.Status.IsTerminal() {
			finished = append(finished, job)
		}
	}

	// Phase 3: Report jobs that became terminal this tick.
	for _, job := range finished {
		q.observer.OnJobCompleted(job.Summary())
	}
	return interrupted
}

// admit promotes the lowest-ordered Queued jobs while fewer than the cap
// are Active. Monitoring jobs do not count.
func (q *Queue) admit(now time.Time) {
	if !q.running {
		return
	}
	active := 0
	for _, j := range q.jobs {
		if j.Status == model.StatusActive {
			active++
		}
	}
	for _, job := range q.queued() {
		if active >= q.concurrency {
			break
		}
		job.Status = model.StatusActive
		job.StartTime = now
		job.StageStartTime = now
		active++
		q.logger.Info("job admitted", "job_id", job.ID, "upn", job.UserLabel(), "active", active, "concurrency", q.concurrency)
		q.observer.OnJobChanged(job.Clone())
	}
}

// processOne runs one stage of job, failing the job on error or panic. A
// stage cut short by ctx leaves the job where it is.
func (q *Queue) processOne(ctx context.Context, job *model.Job, now time.Time) {
	err := q.safeProcess(ctx, job, now)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		q.logger.Warn("stage interrupted", "job_id", job.ID, "stage", job.Stage, "error", err)
		return
	}
	if err == nil && !job.Status.IsTerminal() {
		err = job.Validate()
	}
	if err != nil {
		q.fail(job, err, now)
	}
	q.observer.OnJobChanged(job.Clone())
}

func (q *Queue) safeProcess(ctx context.Context, job *model.Job, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in stage %s: %v", job.Stage, r)
		}
	}()
	return q.proc.Process(ctx, job, now)
}

func (q *Queue) fail(job *model.Job, cause error, now time.Time) {
	if err := job.Finish(model.StatusFailed, cause.Error(), now); err != nil {
		q.logger.Error("fail job", "job_id", job.ID, "cause", cause, "error", err)
		return
	}
	q.observer.OnLog(slog.LevelError, job.ID, fmt.Sprintf("%s: failed: %v", job.UserLabel(), cause))
}
