package model

import (
	"fmt"
	"strings"
	"time"
)

// Job is one migration request: move a user's resources from the
// provisioning policies of SourceGroup to those of TargetGroup.
type Job struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id,omitempty"`
	UserPrincipalName string `json:"user_principal_name"`
	SourceGroupID     string `json:"source_group_id"`
	SourceGroupName   string `json:"source_group_name,omitempty"`
	TargetGroupID     string `json:"target_group_id"`
	TargetGroupName   string `json:"target_group_name,omitempty"`

	// Policy ids assigned to each group. Nil means not resolved yet.
	SourcePolicyIDs IDSet `json:"source_policy_ids"`
	TargetPolicyIDs IDSet `json:"target_policy_ids"`

	Stage          Stage     `json:"stage"`
	Status         Status    `json:"status"`
	QueueOrder     int       `json:"queue_order"`
	CreatedAt      time.Time `json:"created_at"`
	StageStartTime time.Time `json:"stage_start_time,omitzero"`
	LastPollTime   time.Time `json:"last_poll_time,omitzero"`
	StartTime      time.Time `json:"start_time,omitzero"`
	EndTime        time.Time `json:"end_time,omitzero"`

	TrackedResourceIDs    IDSet `json:"tracked_resource_ids"`
	SeenDeprovisioningIDs IDSet `json:"seen_deprovisioning_ids"`
	GraceEndedIDs         IDSet `json:"grace_ended_ids"`

	// RegressedIDs holds tracked ids whose return to inGracePeriod has been
	// reported. An id leaves the set when it is seen deprovisioning again.
	RegressedIDs IDSet `json:"regressed_ids"`

	OldResources []ResourceRef `json:"old_resources"`
	NewResources []ResourceRef `json:"new_resources"`
	AnomalyCount int           `json:"anomaly_count"`

	ErrorMessage string `json:"error_message,omitempty"`
	FinalMessage string `json:"final_message,omitempty"`
}

// JobRequest carries the caller-supplied fields of a new Job.
type JobRequest struct {
	UserID            string `json:"user_id,omitempty" yaml:"user_id"`
	UserPrincipalName string `json:"user_principal_name" yaml:"user_principal_name"`
	SourceGroupID     string `json:"source_group_id" yaml:"source_group_id"`
	SourceGroupName   string `json:"source_group_name,omitempty" yaml:"source_group_name"`
	TargetGroupID     string `json:"target_group_id" yaml:"target_group_id"`
	TargetGroupName   string `json:"target_group_name,omitempty" yaml:"target_group_name"`
}

// Validate checks the request for the errors that must block it before any
// side effect.
func (r JobRequest) Validate() *APIError {
	var details []FieldError
	if strings.TrimSpace(r.UserPrincipalName) == "" && strings.TrimSpace(r.UserID) == "" {
		details = append(details, FieldError{Field: "user_principal_name", Message: "user principal name or user id is required"})
	}
	if strings.TrimSpace(r.SourceGroupID) == "" {
		details = append(details, FieldError{Field: "source_group_id", Message: "required"})
	}
	if strings.TrimSpace(r.TargetGroupID) == "" {
		details = append(details, FieldError{Field: "target_group_id", Message: "required"})
	}
	if r.SourceGroupID != "" && strings.EqualFold(strings.TrimSpace(r.SourceGroupID), strings.TrimSpace(r.TargetGroupID)) {
		details = append(details, FieldError{Field: "target_group_id", Message: "source and target group must differ"})
	}
	if len(details) > 0 {
		return NewValidationError("invalid job request", details...)
	}
	return nil
}

// NewJob builds a Queued job from a validated request.
func NewJob(id string, req JobRequest, order int, now time.Time) *Job {
	return &Job{
		ID:                    id,
		UserID:                strings.TrimSpace(req.UserID),
		UserPrincipalName:     strings.TrimSpace(req.UserPrincipalName),
		SourceGroupID:         strings.TrimSpace(req.SourceGroupID),
		SourceGroupName:       req.SourceGroupName,
		TargetGroupID:         strings.TrimSpace(req.TargetGroupID),
		TargetGroupName:       req.TargetGroupName,
		Stage:                 StageGettingUserInfo,
		Status:                StatusQueued,
		QueueOrder:            order,
		CreatedAt:             now,
		TrackedResourceIDs:    IDSet{},
		SeenDeprovisioningIDs: IDSet{},
		GraceEndedIDs:         IDSet{},
		RegressedIDs:          IDSet{},
	}
}

// UserLabel returns the best human identifier for the job's user.
func (j *Job) UserLabel() string {
	if j.UserPrincipalName != "" {
		return j.UserPrincipalName
	}
	return j.UserID
}

// SourceLabel returns the source group name, falling back to its id.
func (j *Job) SourceLabel() string {
	if j.SourceGroupName != "" {
		return j.SourceGroupName
	}
	return j.SourceGroupID
}

// TargetLabel returns the target group name, falling back to its id.
func (j *Job) TargetLabel() string {
	if j.TargetGroupName != "" {
		return j.TargetGroupName
	}
	return j.TargetGroupID
}

// Message returns the terminal message, preferring the error.
func (j *Job) Message() string {
	if j.ErrorMessage != "" {
		return j.ErrorMessage
	}
	return j.FinalMessage
}

// Validate rejects illegal combinations of stage, status and tracking state.
func (j *Job) Validate() error {
	if j.Stage.Index() < 0 {
		return fmt.Errorf("job %s: unknown stage %q", j.ID, j.Stage)
	}
	if j.SourceGroupID != "" && j.SourceGroupID == j.TargetGroupID {
		return fmt.Errorf("job %s: source and target group are the same", j.ID)
	}
	switch j.Status {
	case StatusQueued:
		if j.Stage != StageGettingUserInfo {
			return fmt.Errorf("job %s: queued job in stage %s", j.ID, j.Stage)
		}
	case StatusActive:
		if !j.Stage.ConsumesSlot() {
			return fmt.Errorf("job %s: active job in stage %s", j.ID, j.Stage)
		}
	case StatusMonitoring:
		if j.Stage != StageWaitingForProvisioning {
			return fmt.Errorf("job %s: monitoring job in stage %s", j.ID, j.Stage)
		}
	case StatusSuccess, StatusSuccessWithWarnings, StatusWarning, StatusFailed:
		if j.EndTime.IsZero() {
			return fmt.Errorf("job %s: terminal job without end time", j.ID)
		}
		if j.Message() == "" {
			return fmt.Errorf("job %s: terminal job without message", j.ID)
		}
	default:
		return fmt.Errorf("job %s: unknown status %q", j.ID, j.Status)
	}
	if j.Status.InFlight() && j.Stage.TracksResources() && len(j.TrackedResourceIDs) == 0 {
		return fmt.Errorf("job %s: no tracked resources in stage %s", j.ID, j.Stage)
	}
	return nil
}

// Finish moves the job to a terminal status, recording the message as the
// error for Failed and as the final message otherwise. It fails if the job
// cannot reach status from where it is, which also makes a second call an
// error.
func (j *Job) Finish(status Status, message string, now time.Time) error {
	if !status.IsTerminal() || !j.Status.CanTransitionTo(status) {
		return &InvalidTransitionError{JobID: j.ID, From: string(j.Status), To: string(status)}
	}
	j.Status = status
	if status == StatusFailed {
		j.ErrorMessage = message
	} else {
		j.FinalMessage = message
	}
	j.EndTime = now
	return nil
}

// EnterStage moves the job to next, resetting the stage timer and deriving
// the in-flight status.
func (j *Job) EnterStage(next Stage, now time.Time) error {
	if !j.Stage.CanTransitionTo(next) {
		return &InvalidTransitionError{JobID: j.ID, From: string(j.Stage), To: string(next)}
	}
	j.Stage = next
	j.StageStartTime = now
	if next != StageComplete {
		j.Status = StatusForStage(next)
	}
	return nil
}

// Clone returns a deep copy safe to hand to observers.
func (j *Job) Clone() *Job {
	c := *j
	c.SourcePolicyIDs = j.SourcePolicyIDs.Clone()
	c.TargetPolicyIDs = j.TargetPolicyIDs.Clone()
	c.TrackedResourceIDs = j.TrackedResourceIDs.Clone()
	c.SeenDeprovisioningIDs = j.SeenDeprovisioningIDs.Clone()
	c.GraceEndedIDs = j.GraceEndedIDs.Clone()
	c.RegressedIDs = j.RegressedIDs.Clone()
	c.OldResources = append([]ResourceRef(nil), j.OldResources...)
	c.NewResources = append([]ResourceRef(nil), j.NewResources...)
	return &c
}

// Summary builds the completion record reported for a terminal job.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		JobID:           j.ID,
		User:            j.UserLabel(),
		SourceGroup:     j.SourceLabel(),
		OldResourceName: joinNames(j.OldResources),
		TargetGroup:     j.TargetLabel(),
		NewResourceName: joinNames(j.NewResources),
		Status:          j.Status,
		Stage:           j.Stage,
		StartTime:       j.StartTime,
		EndTime:         j.EndTime,
		Message:         j.Message(),
		Anomalies:       j.AnomalyCount,
	}
}

func joinNames(refs []ResourceRef) string {
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		n := r.Name
		if n == "" {
			n = r.ID
		}
		names = append(names, n)
	}
	return strings.Join(names, "; ")
}
