package engine

import (
	"time"

	"github.com/me/deskmove/pkg/model"
)

// Config holds poll intervals and stage timeouts.
type Config struct {
	// WaitInterval is the poll interval of every waiting stage except
	// WaitingForProvisioning.
	WaitInterval time.Duration
	// ProvisioningInterval is the poll interval of WaitingForProvisioning.
	ProvisioningInterval time.Duration

	GraceTimeout        time.Duration // T1, WaitingForGracePeriod
	EndGraceTimeout     time.Duration // T2, EndingGracePeriod
	DeprovisionTimeout  time.Duration // T3, WaitingForDeprovision
	ProvisioningTimeout time.Duration // T4, WaitingForProvisioning (soft)
}

// DefaultConfig returns the production intervals and timeouts.
func DefaultConfig() Config {
	return Config{
		WaitInterval:         60 * time.Second,
		ProvisioningInterval: 180 * time.Second,
		GraceTimeout:         15 * time.Minute,
		EndGraceTimeout:      30 * time.Minute,
		DeprovisionTimeout:   60 * time.Minute,
		ProvisioningTimeout:  90 * time.Minute,
	}
}

// Interval returns the poll interval of stage s. Immediate stages return 0.
func (c Config) Interval(s model.Stage) time.Duration {
	switch {
	case s.IsImmediate(), s == model.StageComplete:
		return 0
	case s == model.StageWaitingForProvisioning:
		return c.ProvisioningInterval
	}
	return c.WaitInterval
}

// Timeout returns the time limit of stage s, or 0 if it has none.
func (c Config) Timeout(s model.Stage) time.Duration {
	switch s {
	case model.StageWaitingForGracePeriod:
		return c.GraceTimeout
	case model.StageEndingGracePeriod:
		return c.EndGraceTimeout
	case model.StageWaitingForDeprovision:
		return c.DeprovisionTimeout
	case model.StageWaitingForProvisioning:
		return c.ProvisioningTimeout
	}
	return 0
}

// IsDue reports whether job should be processed at now. Only in-flight jobs
// are ever due; immediate stages always are, waiting stages once their
// interval has passed since the last poll.
func (c Config) IsDue(job *model.Job, now time.Time) bool {
	if !job.Status.InFlight() {
		return false
	}
	interval := c.Interval(job.Stage)
	if interval == 0 || job.LastPollTime.IsZero() {
		return true
	}
	return now.Sub(job.LastPollTime) >= interval
}

// StageElapsed returns how long job has been in its current stage.
func StageElapsed(job *model.Job, now time.Time) time.Duration {
	if job.StageStartTime.IsZero() {
		return 0
	}
	return now.Sub(job.StageStartTime)
}

// TimedOut reports whether job has exceeded the limit of its current stage.
func (c Config) TimedOut(job *model.Job, now time.Time) bool {
	limit := c.Timeout(job.Stage)
	return limit > 0 && StageElapsed(job, now) > limit
}
