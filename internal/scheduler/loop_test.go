package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/deskmove/internal/engine"
	"github.com/me/deskmove/internal/gateway"
	"github.com/me/deskmove/pkg/model"
)

// tenant seeds users u-1..u-n, each a member of grp-src (pol-src) with one
// provisioned resource R<i> on plan1. grp-dst carries pol-dst.
func tenant(n int) *gateway.Memory {
	gw := gateway.NewMemory()
	gw.AssignPolicy("grp-src", "pol-src")
	gw.AssignPolicy("grp-dst", "pol-dst")
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("u-%d", i)
		gw.AddUser(model.User{ID: id, PrincipalName: fmt.Sprintf("user%d@example.com", i)})
		gw.AddMember("grp-src", id)
		gw.PutResource(id, model.Resource{
			ID:          fmt.Sprintf("R%d", i),
			Name:        fmt.Sprintf("CPC-R%d", i),
			Status:      model.ResourceProvisioned,
			ServicePlan: "plan1",
			PolicyID:    "pol-src",
		})
	}
	return gw
}

func engineQueue(t *testing.T, gw gateway.Gateway, concurrency int) (*Queue, *recorder, *fakeClock) {
	t.Helper()
	eng := engine.New(gw, engine.DefaultConfig(), testLogger())
	q, rec, clock := newTestQueue(t, eng, concurrency)
	eng.SetNotifier(rec.observer().OnLog)
	return q, rec, clock
}

func TestScheduler_EndToEnd(t *testing.T) {
	gw := tenant(1)
	q, rec, clock := engineQueue(t, gw, 1)
	job, err := q.Enqueue(request(1))
	require.NoError(t, err)
	ctx := context.Background()

	r2Added := false
	for i := 0; i < 100 && len(rec.completed) == 0; i++ {
		cur, err := q.Get(job.ID)
		require.NoError(t, err)
		switch cur.Stage {
		case model.StageWaitingForGracePeriod:
			gw.SetStatus("R1", model.ResourceInGracePeriod)
		case model.StageWaitingForDeprovision:
			gw.DeleteResource("R1")
		case model.StageWaitingForProvisioning:
			if !r2Added {
				gw.PutResource("u-1", model.Resource{ID: "R2", Name: "CPC-R2", Status: model.ResourceProvisioning, ServicePlan: "plan1", PolicyID: "pol-dst"})
				r2Added = true
			} else {
				gw.SetStatus("R2", model.ResourceProvisioned)
			}
		}
		require.NoError(t, q.Tick(ctx))
		clock.advance(time.Minute)
	}

	done, err := q.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, done.Status)
	assert.Equal(t, model.StageComplete, done.Stage)
	assert.Equal(t, "R1", done.OldResources[0].ID)
	assert.Equal(t, "R2", done.NewResources[0].ID)
	assert.False(t, gw.IsMember("grp-src", "u-1"))
	assert.True(t, gw.IsMember("grp-dst", "u-1"))

	require.Len(t, rec.completed, 1)
	s := rec.completed[0]
	assert.Equal(t, "user1@example.com", s.User)
	assert.Equal(t, "CPC-R1", s.OldResourceName)
	assert.Equal(t, "CPC-R2", s.NewResourceName)
	assert.Equal(t, "grp-src", s.SourceGroup)
	assert.Equal(t, "grp-dst", s.TargetGroup)
	assert.NotEmpty(t, s.Message)
	assert.True(t, q.Idle())
}

func TestScheduler_GraceTimeoutFailsWithoutRollback(t *testing.T) {
	gw := tenant(1)
	q, rec, clock := engineQueue(t, gw, 1)
	job, err := q.Enqueue(request(1))
	require.NoError(t, err)

	for i := 0; i < 40 && len(rec.completed) == 0; i++ {
		require.NoError(t, q.Tick(context.Background()))
		clock.advance(time.Minute)
	}

	done, err := q.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, done.Status)
	assert.Equal(t, model.StageWaitingForGracePeriod, done.Stage)
	assert.Contains(t, done.ErrorMessage, "timed out")
	assert.False(t, gw.IsMember("grp-src", "u-1"))
	assert.Equal(t, 0, gw.Calls(gateway.OpAddMembership))
	require.NoError(t, done.Validate())
}

func TestScheduler_ValidationFailureHasNoSideEffects(t *testing.T) {
	gw := tenant(0)
	q, rec, _ := engineQueue(t, gw, 1)
	_, err := q.Enqueue(request(7))
	require.NoError(t, err)

	require.NoError(t, q.Tick(context.Background()))
	require.Len(t, rec.completed, 1)
	assert.Equal(t, model.StatusFailed, rec.completed[0].Status)
	assert.Contains(t, rec.completed[0].Message, "not found")
	assert.Equal(t, 0, gw.Calls(gateway.OpRemoveMembership))
}

func TestScheduler_SimulatedBatch(t *testing.T) {
	const users = 5
	gw := tenant(users)
	gw.Simulate(gateway.SimulationConfig{GraceListings: 2, StepListings: 1})
	q, rec, clock := engineQueue(t, gw, 2)

	reqs := make([]model.JobRequest, 0, users)
	for i := 1; i <= users; i++ {
		reqs = append(reqs, request(i))
	}
	_, err := q.EnqueueBatch(reqs)
	require.NoError(t, err)

	for i := 0; i < 500 && !q.Idle(); i++ {
		require.NoError(t, q.Tick(context.Background()))
		assert.LessOrEqual(t, q.Stats().Active, 2)
		clock.advance(time.Minute)
	}

	require.True(t, q.Idle())
	require.Len(t, rec.completed, users)
	for _, s := range rec.completed {
		assert.Equal(t, model.StatusSuccess, s.Status, "%s: %s", s.User, s.Message)
	}
	for i := 1; i <= users; i++ {
		id := fmt.Sprintf("u-%d", i)
		res := gw.Resources(id)
		require.Len(t, res, 1)
		assert.Equal(t, "pol-dst", res[0].PolicyID)
		assert.True(t, gw.IsMember("grp-dst", id))
	}
}
