// Package scheduler holds the ordered job set, admits queued jobs up to a
// concurrency cap and drives in-flight jobs through the stage engine.
package scheduler

import (
	"context"
	"time"

	"github.com/me/deskmove/pkg/model"
)

// Processor runs one stage of a job. *engine.Engine implements it.
type Processor interface {
	IsDue(job *model.Job, now time.Time) bool
	Process(ctx context.Context, job *model.Job, now time.Time) error
}

// Controller is the queue control surface consumed by the API layer.
type Controller interface {
	Enqueue(req model.JobRequest) (*model.Job, error)
	EnqueueBatch(reqs []model.JobRequest) ([]*model.Job, error)
	Remove(id string) error
	Reorder(id string, dir Direction) error
	SetConcurrency(n int) error
	Start()
	Stop()
	Jobs() []*model.Job
	Get(id string) (*model.Job, error)
	Stats() model.QueueStats
}

// Config holds scheduler configuration.
type Config struct {
	TickInterval   time.Duration
	Concurrency    int
	MaxConcurrency int
	// AutoStart opens admission as soon as the queue is created.
	AutoStart bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:   5 * time.Second,
		Concurrency:    3,
		MaxConcurrency: 20,
		AutoStart:      true,
	}
}

// Direction is a reorder move within the queued jobs.
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionTop    Direction = "top"
	DirectionBottom Direction = "bottom"
)

// IsValid reports whether d is a known direction.
func (d Direction) IsValid() bool {
	switch d {
	case DirectionUp, DirectionDown, DirectionTop, DirectionBottom:
		return true
	}
	return false
}
