package scheduler

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/me/deskmove/pkg/model"
)

// Queue owns the job collection. Every method takes the queue lock, so API
// calls never interleave with a tick.
type Queue struct {
	mu       sync.Mutex
	proc     Processor
	observer Observer
	config   Config
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	jobs        []*model.Job
	concurrency int
	running     bool
}

// NewQueue creates a queue that drives jobs through proc. A nil observer is
// allowed.
func NewQueue(proc Processor, cfg Config, observer Observer, logger *slog.Logger) *Queue {
	if observer == nil {
		observer = Funcs{}
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	conc := min(max(cfg.Concurrency, 1), cfg.MaxConcurrency)
	return &Queue{
		proc:        proc,
		observer:    observer,
		config:      cfg,
		logger:      logger.With("component", "scheduler"),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return "job_" + uuid.New().String() },
		concurrency: conc,
		running:     cfg.AutoStart,
	}
}

// SetClock replaces the time source. Used by tests.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Enqueue validates req and appends a Queued job at the end of the queue.
// A user may have only one job that is not yet terminal.
func (q *Queue) Enqueue(req model.JobRequest) (*model.Job, error) {
	jobs, err := q.EnqueueBatch([]model.JobRequest{req})
	if err != nil {
		return nil, err
	}
	return jobs[0], nil
}

// EnqueueBatch enqueues every request in order, or none of them if any is
// invalid or duplicates an unfinished job.
func (q *Queue) EnqueueBatch(reqs []model.JobRequest) ([]*model.Job, error) {
	if len(reqs) == 0 {
		return nil, model.NewValidationError("no jobs given")
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	var details []model.FieldError
	seen := make(map[string]bool)
	for i, req := range reqs {
		if apiErr := req.Validate(); apiErr != nil {
			for _, d := range apiErr.Details {
				details = append(details, model.FieldError{Field: fmt.Sprintf("[%d].%s", i, d.Field), Message: d.Message})
			}
			continue
		}
		key := userKey(req.UserPrincipalName, req.UserID)
		if seen[key] {
			details = append(details, model.FieldError{Field: fmt.Sprintf("[%d]", i), Message: "user appears twice in batch"})
			continue
		}
		seen[key] = true
		if j := q.unfinishedFor(req); j != nil {
			details = append(details, model.FieldError{
				Field:   fmt.Sprintf("[%d]", i),
				Message: fmt.Sprintf("user already has job %s (%s)", j.ID, j.Status),
			})
		}
	}
	if len(details) > 0 {
		if len(reqs) == 1 && strings.HasPrefix(details[0].Message, "user already has") {
			return nil, model.NewConflictError("%s", details[0].Message)
		}
		return nil, model.NewValidationError("invalid job request", details...)
	}

	now := q.now()
	order := q.maxOrder()
	out := make([]*model.Job, 0, len(reqs))
	for _, req := range reqs {
		order++
		job := model.NewJob(q.newID(), req, order, now)
		q.jobs = append(q.jobs, job)
		q.logger.Info("job enqueued", "job_id", job.ID, "upn", job.UserLabel(), "order", order)
		q.observer.OnJobChanged(job.Clone())
		out = append(out, job.Clone())
	}
	return out, nil
}

func userKey(upn, id string) string {
	if upn = strings.TrimSpace(upn); upn != "" {
		return "upn:" + strings.ToLower(upn)
	}
	return "id:" + strings.TrimSpace(id)
}

// unfinishedFor returns a non-terminal job for the same user as req.
func (q *Queue) unfinishedFor(req model.JobRequest) *model.Job {
	upn := strings.TrimSpace(req.UserPrincipalName)
	id := strings.TrimSpace(req.UserID)
	for _, j := range q.jobs {
		if j.Status.IsTerminal() {
			continue
		}
		if upn != "" && strings.EqualFold(j.UserPrincipalName, upn) {
			return j
		}
		if id != "" && j.UserID == id {
			return j
		}
	}
	return nil
}

func (q *Queue) maxOrder() int {
	m := 0
	for _, j := range q.jobs {
		m = max(m, j.QueueOrder)
	}
	return m
}

func (q *Queue) find(id string) (int, *model.Job) {
	for i, j := range q.jobs {
		if j.ID == id {
			return i, j
		}
	}
	return -1, nil
}

// Remove deletes a Queued or terminal job. In-flight jobs cannot be removed.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, job := q.find(id)
	if job == nil {
		return model.NewNotFoundError("job", id)
	}
	if job.Status.InFlight() {
		return model.NewConflictError("job %s is %s and cannot be removed", id, job.Status)
	}
	q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
	q.observer.OnJobRemoved(id)
	return nil
}

// queued returns the Queued jobs in admission order.
func (q *Queue) queued() []*model.Job {
	var out []*model.Job
	for _, j := range q.jobs {
		if j.Status == model.StatusQueued {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].QueueOrder < out[b].QueueOrder })
	return out
}

// Reorder moves a Queued job within the queued jobs. Moves past either end
// are no-ops. Only the QueueOrder of Queued jobs changes.
func (q *Queue) Reorder(id string, dir Direction) error {
	if !dir.IsValid() {
		return model.NewValidationError("invalid direction", model.FieldError{
			Field:   "direction",
			Message: "must be one of up, down, top, bottom",
		})
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	_, job := q.find(id)
	if job == nil {
		return model.NewNotFoundError("job", id)
	}
	if job.Status != model.StatusQueued {
		return model.NewConflictError("job %s is %s; only queued jobs can be reordered", id, job.Status)
	}

	queued := q.queued()
	from := -1
	for i, j := range queued {
		if j == job {
			from = i
		}
	}
	to := from
	switch dir {
	case DirectionUp:
		to = from - 1
	case DirectionDown:
		to = from + 1
	case DirectionTop:
		to = 0
	case DirectionBottom:
		to = len(queued) - 1
	}
	if to < 0 || to >= len(queued) || to == from {
		return nil
	}

	orders := make([]int, len(queued))
	for i, j := range queued {
		orders[i] = j.QueueOrder
	}
	moved := append(queued[:from:from], queued[from+1:]...)
	moved = append(moved[:to], append([]*model.Job{job}, moved[to:]...)...)
	for i, j := range moved {
		if j.QueueOrder != orders[i] {
			j.QueueOrder = orders[i]
			q.observer.OnJobChanged(j.Clone())
		}
	}
	q.logger.Info("job reordered", "job_id", id, "direction", dir, "position", to+1)
	return nil
}

// SetConcurrency changes the cap on Active jobs from the next tick on.
func (q *Queue) SetConcurrency(n int) error {
	if n < 1 || n > q.config.MaxConcurrency {
		return model.NewValidationError("invalid concurrency", model.FieldError{
			Field:   "concurrency",
			Message: fmt.Sprintf("must be between 1 and %d", q.config.MaxConcurrency),
		})
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.concurrency = n
	q.logger.Info("concurrency changed", "concurrency", n)
	return nil
}

// Concurrency returns the current cap.
func (q *Queue) Concurrency() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.concurrency
}

// Start opens admission of Queued jobs.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		q.running = true
		q.observer.OnLog(slog.LevelInfo, "", "queue started")
	}
}

// Stop halts admission. In-flight jobs keep running to a terminal state.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		q.running = false
		q.observer.OnLog(slog.LevelInfo, "", "queue stopped")
	}
}

// Jobs returns copies of every job ordered by QueueOrder.
func (q *Queue) Jobs() []*model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*model.Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].QueueOrder < out[b].QueueOrder })
	return out
}

// Get returns a copy of the job with the given id.
func (q *Queue) Get(id string) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, job := q.find(id)
	if job == nil {
		return nil, model.NewNotFoundError("job", id)
	}
	return job.Clone(), nil
}

// Stats returns job counts and the admission settings.
func (q *Queue) Stats() model.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := model.ComputeQueueStats(q.jobs)
	s.Concurrency = q.concurrency
	s.MaxConcurrency = q.config.MaxConcurrency
	s.Running = q.running
	return s
}

// Idle reports whether no job is Queued, Active or Monitoring.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if !j.Status.IsTerminal() {
			return false
		}
	}
	return true
}
