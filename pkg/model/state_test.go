package model

import "testing"

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusQueued, false},
		{StatusActive, false},
		{StatusMonitoring, false},
		{StatusSuccess, true},
		{StatusSuccessWithWarnings, true},
		{StatusWarning, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("Status(%q).IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  Status
		to    Status
		valid bool
	}{
		// Valid transitions
		{StatusQueued, StatusActive, true},
		{StatusActive, StatusMonitoring, true},
		{StatusActive, StatusFailed, true},
		{StatusMonitoring, StatusSuccess, true},
		{StatusMonitoring, StatusSuccessWithWarnings, true},
		{StatusMonitoring, StatusWarning, true},
		{StatusMonitoring, StatusFailed, true},

		// Invalid transitions
		{StatusQueued, StatusMonitoring, false},
		{StatusQueued, StatusFailed, false},
		{StatusActive, StatusSuccess, false},
		{StatusActive, StatusWarning, false},
		{StatusSuccess, StatusActive, false},
		{StatusFailed, StatusQueued, false},
		{StatusMonitoring, StatusActive, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("Status(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestStage_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  Stage
		to    Stage
		valid bool
	}{
		{StageGettingUserInfo, StageGettingCurrentResource, true},
		{StageWaitingForGracePeriod, StageEndingGracePeriod, true},
		{StageWaitingForGracePeriod, StageWaitingForDeprovision, true},
		{StageWaitingForGracePeriod, StageAddingToTarget, true},
		{StageEndingGracePeriod, StageAddingToTarget, true},
		{StageWaitingForProvisioning, StageComplete, true},

		{StageGettingUserInfo, StageRemovingFromSource, false},
		{StageRemovingFromSource, StageAddingToTarget, false},
		{StageWaitingForDeprovision, StageWaitingForGracePeriod, false},
		{StageEndingGracePeriod, StageWaitingForGracePeriod, false},
		{StageComplete, StageGettingUserInfo, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("Stage(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestStage_Classification(t *testing.T) {
	tests := []struct {
		stage     Stage
		immediate bool
		slot      bool
		tracks    bool
	}{
		{StageGettingUserInfo, true, true, false},
		{StageGettingCurrentResource, true, true, false},
		{StageRemovingFromSource, true, true, true},
		{StageWaitingForGracePeriod, false, true, true},
		{StageEndingGracePeriod, false, true, true},
		{StageWaitingForDeprovision, false, true, true},
		{StageAddingToTarget, true, true, false},
		{StageWaitingForProvisioning, false, false, false},
		{StageComplete, false, false, false},
	}
	for _, tt := range tests {
		if got := tt.stage.IsImmediate(); got != tt.immediate {
			t.Errorf("Stage(%q).IsImmediate() = %v, want %v", tt.stage, got, tt.immediate)
		}
		if got := tt.stage.ConsumesSlot(); got != tt.slot {
			t.Errorf("Stage(%q).ConsumesSlot() = %v, want %v", tt.stage, got, tt.slot)
		}
		if got := tt.stage.TracksResources(); got != tt.tracks {
			t.Errorf("Stage(%q).TracksResources() = %v, want %v", tt.stage, got, tt.tracks)
		}
	}
}

func TestStatusForStage(t *testing.T) {
	if got := StatusForStage(StageWaitingForProvisioning); got != StatusMonitoring {
		t.Errorf("StatusForStage(WaitingForProvisioning) = %q, want Monitoring", got)
	}
	if got := StatusForStage(StageWaitingForDeprovision); got != StatusActive {
		t.Errorf("StatusForStage(WaitingForDeprovision) = %q, want Active", got)
	}
}

func TestParseResourceStatus(t *testing.T) {
	tests := []struct {
		in   string
		want ResourceStatus
	}{
		{"provisioned", ResourceProvisioned},
		{"inGracePeriod", ResourceInGracePeriod},
		{"notProvisioned", ResourceNotProvisioned},
		{"restoring", ResourceOther},
		{"", ResourceOther},
	}
	for _, tt := range tests {
		if got := ParseResourceStatus(tt.in); got != tt.want {
			t.Errorf("ParseResourceStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
