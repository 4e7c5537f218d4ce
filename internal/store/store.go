// Package store persists the completion records of finished migration jobs.
package store

import (
	"context"

	"github.com/me/deskmove/pkg/model"
)

// Store defines the persistence layer for job history.
type Store interface {
	// SaveSummary records a finished job. Saving the same job id again
	// replaces the earlier record.
	SaveSummary(ctx context.Context, s model.JobSummary) error
	// GetSummary returns the record of a job, or nil if there is none.
	GetSummary(ctx context.Context, jobID string) (*model.JobSummary, error)
	// ListSummaries returns records newest first, filtered by opts.Status
	// (job status) and opts.User, with the total before pagination.
	ListSummaries(ctx context.Context, opts model.ListOptions) ([]*model.JobSummary, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
