package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/me/deskmove/internal/logging"
	"github.com/me/deskmove/pkg/model"
)

// Event types carried on the job stream.
const (
	EventLog       = "log"
	EventJob       = "job"
	EventCompleted = "completed"
	EventRemoved   = "removed"
)

// Event is one message on the job stream.
type Event struct {
	Type    string            `json:"type"`
	Time    string            `json:"time"`
	JobID   string            `json:"job_id,omitempty"`
	Level   string            `json:"level,omitempty"`
	Message string            `json:"message,omitempty"`
	Job     *model.Job        `json:"job,omitempty"`
	Summary *model.JobSummary `json:"summary,omitempty"`
}

// Broadcaster fans queue events out to stream subscribers. It implements
// scheduler.Observer. Sends never block: a subscriber whose buffer is full
// misses the event.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	next    int
	buffer  int
	dropped int
	now     func() time.Time
	logger  *slog.Logger
}

// NewBroadcaster creates a Broadcaster whose subscribers buffer up to
// buffer events.
func NewBroadcaster(buffer int, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[int]chan Event),
		buffer: max(buffer, 1),
		now:    time.Now,
		logger: logger.With("component", "events"),
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it; it closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many events were not delivered to a full subscriber.
func (b *Broadcaster) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Broadcaster) publish(e Event) {
	e.Time = logging.Timestamp(b.now())
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped++
			b.logger.Debug("event dropped", "type", e.Type, "job_id", e.JobID)
		}
	}
}

// OnLog publishes an engine or queue message as a log event.
func (b *Broadcaster) OnLog(level slog.Level, jobID, message string) {
	b.publish(Event{Type: EventLog, JobID: jobID, Level: logging.LevelName(level), Message: message})
}

// OnJobChanged publishes the new state of a job.
func (b *Broadcaster) OnJobChanged(job *model.Job) {
	b.publish(Event{Type: EventJob, JobID: job.ID, Job: job})
}

// OnJobCompleted publishes the summary of a job that reached a terminal status.
func (b *Broadcaster) OnJobCompleted(summary model.JobSummary) {
	b.publish(Event{Type: EventCompleted, JobID: summary.JobID, Summary: &summary})
}

// OnJobRemoved tells subscribers that a job left the queue.
func (b *Broadcaster) OnJobRemoved(jobID string) {
	b.publish(Event{Type: EventRemoved, JobID: jobID})
}
