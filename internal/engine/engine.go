// Package engine implements the per-job migration lifecycle: one stage of
// one job per call, driven by fresh gateway reads.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/deskmove/internal/gateway"
	"github.com/me/deskmove/pkg/model"
)

// Notifier receives human-readable job events such as membership changes,
// retried reads and anomalies.
type Notifier func(level slog.Level, jobID, message string)

// Engine advances jobs through the migration stages.
type Engine struct {
	gw     gateway.Gateway
	config Config
	logger *slog.Logger
	notify Notifier
}

// New creates an Engine.
func New(gw gateway.Gateway, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		gw:     gw,
		config: cfg,
		logger: logger.With("component", "engine"),
	}
}

// SetNotifier installs the event sink. It must be called before the first
// Process.
func (e *Engine) SetNotifier(n Notifier) {
	e.notify = n
}

// Config returns the engine's intervals and timeouts.
func (e *Engine) Config() Config {
	return e.config
}

// IsDue reports whether job should be processed at now.
func (e *Engine) IsDue(job *model.Job, now time.Time) bool {
	return e.config.IsDue(job, now)
}

// Process runs the current stage of job once. Transient gateway read
// failures leave the job unchanged apart from its poll time and are retried
// on the next due tick. A returned error means the caller must fail the job;
// lifecycle failures are *StageError values. The exception is an error
// wrapping ctx.Err(): the stage was cut short by ctx and the job is left in
// it to run again. Jobs that complete, or end on the soft provisioning
// timeout, are finished here.
func (e *Engine) Process(ctx context.Context, job *model.Job, now time.Time) error {
	if !job.Status.InFlight() {
		return fmt.Errorf("job %s is %s, not in flight", job.ID, job.Status)
	}
	job.LastPollTime = now
	if job.SeenDeprovisioningIDs == nil {
		job.SeenDeprovisioningIDs = model.IDSet{}
	}
	if job.GraceEndedIDs == nil {
		job.GraceEndedIDs = model.IDSet{}
	}
	if job.RegressedIDs == nil {
		job.RegressedIDs = model.IDSet{}
	}
	e.logger.Debug("processing", "job_id", job.ID, "stage", job.Stage)

	switch job.Stage {
	case model.StageGettingUserInfo:
		return e.getUserInfo(ctx, job, now)
	case model.StageGettingCurrentResource:
		return e.getCurrentResource(ctx, job, now)
	case model.StageRemovingFromSource:
		return e.removeFromSource(ctx, job, now)
	case model.StageWaitingForGracePeriod:
		return e.waitForGrace(ctx, job, now)
	case model.StageEndingGracePeriod:
		return e.endGrace(ctx, job, now)
	case model.StageWaitingForDeprovision:
		return e.waitForDeprovision(ctx, job, now)
	case model.StageAddingToTarget:
		return e.addToTarget(ctx, job, now)
	case model.StageWaitingForProvisioning:
		return e.waitForProvisioning(ctx, job, now)
	}
	return fmt.Errorf("job %s: no handler for stage %s", job.ID, job.Stage)
}

func (e *Engine) eventf(job *model.Job, level slog.Level, format string, args ...any) {
	if e.notify != nil {
		e.notify(level, job.ID, fmt.Sprintf(format, args...))
	}
}

// advance enters next and reports the move.
func (e *Engine) advance(job *model.Job, next model.Stage, now time.Time) error {
	if err := job.EnterStage(next, now); err != nil {
		return err
	}
	e.eventf(job, slog.LevelInfo, "%s: entered %s", job.UserLabel(), next)
	return nil
}

// transient records a failed read. The job stays where it is but a hard
// stage limit still applies. A read the backend rejected is fatal.
func (e *Engine) transient(ctx context.Context, job *model.Job, now time.Time, op string, err error) error {
	if ierr := interrupted(ctx, op); ierr != nil {
		return ierr
	}
	if errors.Is(err, gateway.ErrRejected) {
		return stageErr(KindRejected, job.Stage, "%s: %w", op, err)
	}
	e.eventf(job, slog.LevelWarn, "%s: %s failed, retrying on next poll: %v", job.UserLabel(), op, err)
	return e.checkTimeout(job, now)
}

// interrupted returns a non-nil error wrapping ctx.Err() once ctx is done.
func interrupted(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s interrupted: %w", op, err)
	}
	return nil
}

func (e *Engine) checkTimeout(job *model.Job, now time.Time) error {
	if job.Stage == model.StageWaitingForProvisioning || !e.config.TimedOut(job, now) {
		return nil
	}
	return stageErr(KindTimeout, job.Stage, "timed out after %s", e.config.Timeout(job.Stage))
}

func (e *Engine) user(job *model.Job) model.User {
	return model.User{ID: job.UserID, PrincipalName: job.UserPrincipalName}
}

func (e *Engine) getUserInfo(ctx context.Context, job *model.Job, now time.Time) error {
	if job.UserID == "" || job.UserPrincipalName == "" {
		key := job.UserPrincipalName
		if key == "" {
			key = job.UserID
		}
		u, err := e.gw.LookupUser(ctx, key)
		if errors.Is(err, gateway.ErrNotFound) {
			return stageErr(KindValidation, job.Stage, "user %s not found", key)
		}
		if err != nil {
			return e.transient(ctx, job, now, "user lookup", err)
		}
		job.UserID = u.ID
		if job.UserPrincipalName == "" {
			job.UserPrincipalName = u.PrincipalName
		}
	}
	return e.advance(job, model.StageGettingCurrentResource, now)
}

func (e *Engine) getCurrentResource(ctx context.Context, job *model.Job, now time.Time) error {
	if job.SourcePolicyIDs == nil {
		ids, err := e.gw.ListPoliciesForGroup(ctx, job.SourceGroupID)
		if err != nil {
			return e.transient(ctx, job, now, "source policy lookup", err)
		}
		job.SourcePolicyIDs = model.NewIDSet(ids.Sorted()...)
	}

	resources, err := e.gw.ListResourcesForUser(ctx, e.user(job))
	if err != nil {
		return e.transient(ctx, job, now, "resource listing", err)
	}

	tracked := model.IDSet{}
	var old []model.ResourceRef
	for _, r := range resources {
		if !job.SourcePolicyIDs.Has(r.PolicyID) || r.Status == model.ResourceNotProvisioned {
			continue
		}
		if tracked.Add(r.ID) {
			old = append(old, r.Ref())
		}
	}
	if len(old) == 0 {
		return &StageError{
			Kind:  KindValidation,
			Stage: job.Stage,
			Err:   fmt.Errorf("%w: %s has no resource from source group %s", ErrNoMatchingResource, job.UserLabel(), job.SourceLabel()),
		}
	}
	job.TrackedResourceIDs = tracked
	job.OldResources = old
	e.eventf(job, slog.LevelInfo, "%s: tracking %d resource(s) from %s", job.UserLabel(), len(old), job.SourceLabel())
	return e.advance(job, model.StageRemovingFromSource, now)
}

func (e *Engine) removeFromSource(ctx context.Context, job *model.Job, now time.Time) error {
	res, err := e.gw.RemoveMembership(ctx, job.UserID, job.SourceGroupID)
	if err != nil {
		if ierr := interrupted(ctx, "remove from source"); ierr != nil {
			return ierr
		}
		return stageErr(KindMembership, job.Stage, "remove from %s: %w", job.SourceLabel(), err)
	}
	if res == gateway.MembershipAlreadyAbsent {
		e.eventf(job, slog.LevelInfo, "%s: was not a member of %s", job.UserLabel(), job.SourceLabel())
	} else {
		e.eventf(job, slog.LevelInfo, "%s: removed from %s", job.UserLabel(), job.SourceLabel())
	}
	return e.advance(job, model.StageWaitingForGracePeriod, now)
}

// observation is one read of the tracked resources.
type observation struct {
	present  []model.Resource
	leaving  bool // a tracked resource is deprovisioning or notProvisioned
	allGrace bool // every present tracked resource is inGracePeriod
}

func (o observation) gone() bool {
	return len(o.present) == 0
}

// observe lists the user's resources and extracts the tracked ones,
// remembering any seen deprovisioning.
func (e *Engine) observe(ctx context.Context, job *model.Job) (observation, error) {
	resources, err := e.gw.ListResourcesForUser(ctx, e.user(job))
	if err != nil {
		return observation{}, err
	}
	obs := observation{allGrace: true}
	for _, r := range resources {
		if !job.TrackedResourceIDs.Has(r.ID) {
			continue
		}
		obs.present = append(obs.present, r)
		if r.Status.IsLeaving() {
			obs.leaving = true
		}
		if r.Status == model.ResourceDeprovisioning {
			job.SeenDeprovisioningIDs.Add(r.ID)
			job.RegressedIDs.Remove(r.ID)
		}
		if r.Status != model.ResourceInGracePeriod {
			obs.allGrace = false
		}
	}
	if obs.gone() {
		obs.allGrace = false
	}
	return obs, nil
}

// resetTracking forgets the old instance ids once all are gone, so an
// instance that reappears with a reused id counts as new.
func (e *Engine) resetTracking(job *model.Job) {
	job.TrackedResourceIDs = model.IDSet{}
	e.eventf(job, slog.LevelInfo, "%s: old resource(s) gone", job.UserLabel())
}

func (e *Engine) waitForGrace(ctx context.Context, job *model.Job, now time.Time) error {
	obs, err := e.observe(ctx, job)
	if err != nil {
		return e.transient(ctx, job, now, "resource listing", err)
	}
	switch {
	case obs.gone():
		e.resetTracking(job)
		return e.advance(job, model.StageAddingToTarget, now)
	case obs.leaving:
		return e.advance(job, model.StageWaitingForDeprovision, now)
	case obs.allGrace:
		return e.advance(job, model.StageEndingGracePeriod, now)
	}
	return e.checkTimeout(job, now)
}

func (e *Engine) endGrace(ctx context.Context, job *model.Job, now time.Time) error {
	for _, id := range job.TrackedResourceIDs.Sorted() {
		if !job.GraceEndedIDs.Add(id) {
			continue
		}
		if err := e.gw.EndGracePeriod(ctx, id); err != nil {
			if ierr := interrupted(ctx, "end grace period"); ierr != nil {
				job.GraceEndedIDs.Remove(id)
				return ierr
			}
			e.eventf(job, slog.LevelWarn, "%s: ending grace period of %s failed: %v", job.UserLabel(), id, err)
			continue
		}
		e.eventf(job, slog.LevelInfo, "%s: ended grace period of %s", job.UserLabel(), id)
	}

	obs, err := e.observe(ctx, job)
	if err != nil {
		return e.transient(ctx, job, now, "resource listing", err)
	}
	switch {
	case obs.gone():
		e.resetTracking(job)
		return e.advance(job, model.StageAddingToTarget, now)
	case obs.leaving:
		return e.advance(job, model.StageWaitingForDeprovision, now)
	}
	return e.checkTimeout(job, now)
}

func (e *Engine) waitForDeprovision(ctx context.Context, job *model.Job, now time.Time) error {
	obs, err := e.observe(ctx, job)
	if err != nil {
		return e.transient(ctx, job, now, "resource listing", err)
	}
	done := true
	for _, r := range obs.present {
		if r.Status == model.ResourceNotProvisioned {
			continue
		}
		done = false
		// Stale read: it was already deprovisioning. Reported once until it
		// is seen deprovisioning again.
		if r.Status == model.ResourceInGracePeriod && job.SeenDeprovisioningIDs.Has(r.ID) && job.RegressedIDs.Add(r.ID) {
			job.AnomalyCount++
			e.eventf(job, slog.LevelWarn, "%s: status anomaly, %s reported inGracePeriod after deprovisioning", job.UserLabel(), r.ID)
		}
	}
	if done {
		e.resetTracking(job)
		return e.advance(job, model.StageAddingToTarget, now)
	}
	return e.checkTimeout(job, now)
}

func (e *Engine) addToTarget(ctx context.Context, job *model.Job, now time.Time) error {
	res, err := e.gw.AddMembership(ctx, job.UserID, job.TargetGroupID)
	if err != nil {
		if ierr := interrupted(ctx, "add to target"); ierr != nil {
			return ierr
		}
		return stageErr(KindMembership, job.Stage, "add to %s: %w", job.TargetLabel(), err)
	}
	if res == gateway.MembershipAlreadyPresent {
		e.eventf(job, slog.LevelInfo, "%s: already a member of %s", job.UserLabel(), job.TargetLabel())
	} else {
		e.eventf(job, slog.LevelInfo, "%s: added to %s", job.UserLabel(), job.TargetLabel())
	}
	return e.advance(job, model.StageWaitingForProvisioning, now)
}

func (e *Engine) waitForProvisioning(ctx context.Context, job *model.Job, now time.Time) error {
	if job.TargetPolicyIDs == nil {
		ids, err := e.gw.ListPoliciesForGroup(ctx, job.TargetGroupID)
		if err != nil {
			if ierr := interrupted(ctx, "target policy lookup"); ierr != nil {
				return ierr
			}
			e.eventf(job, slog.LevelWarn, "%s: target policy lookup failed, retrying on next poll: %v", job.UserLabel(), err)
			return e.softTimeout(job, now, nil)
		}
		job.TargetPolicyIDs = model.NewIDSet(ids.Sorted()...)
	}

	resources, err := e.gw.ListResourcesForUser(ctx, e.user(job))
	if err != nil {
		if ierr := interrupted(ctx, "resource listing"); ierr != nil {
			return ierr
		}
		e.eventf(job, slog.LevelWarn, "%s: resource listing failed, retrying on next poll: %v", job.UserLabel(), err)
		return e.softTimeout(job, now, nil)
	}

	var ready []model.Resource
	for _, r := range resources {
		if !job.TargetPolicyIDs.Has(r.PolicyID) {
			continue
		}
		if r.Status == model.ResourceFailed {
			return stageErr(KindProvisioning, job.Stage, "resource %s failed to provision", labelOf(r))
		}
		if r.Status.IsReady() {
			ready = append(ready, r)
		}
	}

	paired, complete := Pair(job.OldResources, ready)
	if !complete {
		return e.softTimeout(job, now, paired)
	}

	status := model.StatusSuccess
	for _, r := range paired {
		if r.Status == model.ResourceProvisionedWithWarnings {
			status = model.StatusSuccessWithWarnings
		}
	}
	job.NewResources = refs(paired)
	if err := e.advance(job, model.StageComplete, now); err != nil {
		return err
	}
	msg := fmt.Sprintf("migrated %d resource(s) to %s", len(paired), job.TargetLabel())
	if status == model.StatusSuccessWithWarnings {
		msg += " (provisioned with warnings)"
	}
	return job.Finish(status, msg, now)
}

// softTimeout ends a job that has waited past the provisioning limit in
// Warning, keeping whatever new resources were already paired.
func (e *Engine) softTimeout(job *model.Job, now time.Time, paired []model.Resource) error {
	if !e.config.TimedOut(job, now) {
		return nil
	}
	job.NewResources = refs(paired)
	msg := fmt.Sprintf("provisioning not confirmed after %s; %d of %d resource(s) ready, it may still complete",
		e.config.Timeout(job.Stage), len(paired), len(job.OldResources))
	e.eventf(job, slog.LevelWarn, "%s: %s", job.UserLabel(), msg)
	return job.Finish(model.StatusWarning, msg, now)
}

func refs(rs []model.Resource) []model.ResourceRef {
	out := make([]model.ResourceRef, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Ref())
	}
	return out
}

func labelOf(r model.Resource) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
