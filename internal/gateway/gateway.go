// Package gateway defines the remote control-plane operations the migration
// engine depends on, with a Graph-backed implementation and an in-memory one
// for tests and simulation.
package gateway

import (
	"context"
	"errors"

	"github.com/me/deskmove/pkg/model"
)

// ErrNotFound is returned when a looked-up object does not exist.
var ErrNotFound = errors.New("not found")

// ErrRejected is wrapped by read errors the backend will keep returning,
// such as a missing permission. Callers should not retry them.
var ErrRejected = errors.New("request rejected")

// MembershipResult reports the outcome of a membership change.
type MembershipResult string

const (
	MembershipChanged        MembershipResult = "ok"
	MembershipAlreadyAbsent  MembershipResult = "alreadyAbsent"
	MembershipAlreadyPresent MembershipResult = "alreadyPresent"
)

// Gateway is the only path from the orchestrator to the outside world.
// Every call is synchronous; implementations must be safe for use by a
// single caller at a time.
type Gateway interface {
	// LookupUser resolves a user principal name. Returns ErrNotFound if the
	// user does not exist.
	LookupUser(ctx context.Context, upn string) (model.User, error)

	// ListResourcesForUser returns every resource instance owned by user.
	ListResourcesForUser(ctx context.Context, user model.User) ([]model.Resource, error)

	// ListPoliciesForGroup returns the provisioning policy ids assigned to groupID.
	ListPoliciesForGroup(ctx context.Context, groupID string) (model.IDSet, error)

	// RemoveMembership removes the user from groupID.
	RemoveMembership(ctx context.Context, userID, groupID string) (MembershipResult, error)

	// AddMembership adds the user to groupID.
	AddMembership(ctx context.Context, userID, groupID string) (MembershipResult, error)

	// EndGracePeriod asks the backend to skip the grace period of a resource.
	EndGracePeriod(ctx context.Context, resourceID string) error
}
