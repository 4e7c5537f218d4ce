package model

// Stage is a step of the migration lifecycle. Stages run in declaration order;
// the only permitted skips are the "already gone" and "already deprovisioning"
// shortcuts out of the grace-period stages.
type Stage string

const (
	StageGettingUserInfo        Stage = "GettingUserInfo"
	StageGettingCurrentResource Stage = "GettingCurrentResource"
	StageRemovingFromSource     Stage = "RemovingFromSource"
	StageWaitingForGracePeriod  Stage = "WaitingForGracePeriod"
	StageEndingGracePeriod      Stage = "EndingGracePeriod"
	StageWaitingForDeprovision  Stage = "WaitingForDeprovision"
	StageAddingToTarget         Stage = "AddingToTarget"
	StageWaitingForProvisioning Stage = "WaitingForProvisioning"
	StageComplete               Stage = "Complete"
)

// Stages lists every stage in lifecycle order.
var Stages = []Stage{
	StageGettingUserInfo,
	StageGettingCurrentResource,
	StageRemovingFromSource,
	StageWaitingForGracePeriod,
	StageEndingGracePeriod,
	StageWaitingForDeprovision,
	StageAddingToTarget,
	StageWaitingForProvisioning,
	StageComplete,
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// Index returns the position of the stage in lifecycle order, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// IsImmediate reports whether the stage performs a single action and is
// always due, as opposed to a waiting stage that polls on an interval.
func (s Stage) IsImmediate() bool {
	switch s {
	case StageGettingUserInfo, StageGettingCurrentResource, StageRemovingFromSource, StageAddingToTarget:
		return true
	}
	return false
}

// ConsumesSlot reports whether a job in this stage counts against the
// scheduler's concurrency cap.
func (s Stage) ConsumesSlot() bool {
	i := s.Index()
	return i >= StageGettingUserInfo.Index() && i <= StageAddingToTarget.Index()
}

// TracksResources reports whether the stage requires a non-empty set of
// tracked resource ids.
func (s Stage) TracksResources() bool {
	i := s.Index()
	return i >= StageRemovingFromSource.Index() && i <= StageWaitingForDeprovision.Index()
}

// ValidStageTransitions defines the lifecycle graph. Failure and soft
// timeout end a job without a stage transition.
var ValidStageTransitions = map[Stage][]Stage{
	StageGettingUserInfo:        {StageGettingCurrentResource},
	StageGettingCurrentResource: {StageRemovingFromSource},
	StageRemovingFromSource:     {StageWaitingForGracePeriod},
	StageWaitingForGracePeriod:  {StageEndingGracePeriod, StageWaitingForDeprovision, StageAddingToTarget},
	StageEndingGracePeriod:      {StageWaitingForDeprovision, StageAddingToTarget},
	StageWaitingForDeprovision:  {StageAddingToTarget},
	StageAddingToTarget:         {StageWaitingForProvisioning},
	StageWaitingForProvisioning: {StageComplete},
}

// CanTransitionTo returns true if moving from the current stage to next is valid.
func (s Stage) CanTransitionTo(next Stage) bool {
	for _, allowed := range ValidStageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Status is the scheduling state of a Job.
type Status string

const (
	StatusQueued              Status = "Queued"
	StatusActive              Status = "Active"
	StatusMonitoring          Status = "Monitoring"
	StatusSuccess             Status = "Success"
	StatusSuccessWithWarnings Status = "SuccessWithWarnings"
	StatusWarning             Status = "Warning"
	StatusFailed              Status = "Failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the job is in a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusSuccessWithWarnings, StatusWarning, StatusFailed:
		return true
	}
	return false
}

// InFlight returns true for jobs the scheduler is still driving.
func (s Status) InFlight() bool {
	return s == StatusActive || s == StatusMonitoring
}

// ValidStatusTransitions defines the allowed status transitions for Jobs.
var ValidStatusTransitions = map[Status][]Status{
	StatusQueued:     {StatusActive},
	StatusActive:     {StatusMonitoring, StatusFailed},
	StatusMonitoring: {StatusSuccess, StatusSuccessWithWarnings, StatusWarning, StatusFailed},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range ValidStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StatusForStage returns the in-flight status implied by a stage.
func StatusForStage(s Stage) Status {
	if s == StageWaitingForProvisioning {
		return StatusMonitoring
	}
	return StatusActive
}
