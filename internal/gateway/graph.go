package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/me/deskmove/pkg/graph"
	"github.com/me/deskmove/pkg/model"
)

// GraphClient is the subset of *graph.Client used by Graph. It exists so
// tests can substitute a fake.
type GraphClient interface {
	GetUser(ctx context.Context, idOrUPN string) (*graph.User, error)
	ListCloudPCsForUser(ctx context.Context, upn string) ([]graph.CloudPC, error)
	PolicyIDsForGroup(ctx context.Context, groupID string) ([]string, error)
	RemoveGroupMember(ctx context.Context, groupID, memberID string) error
	AddGroupMember(ctx context.Context, groupID, memberID string) error
	EndGracePeriod(ctx context.Context, cloudPCID string) error
}

// Graph implements Gateway on top of the Microsoft Graph Cloud PC API.
type Graph struct {
	client GraphClient
	logger *slog.Logger
}

// NewGraph creates a Graph gateway using the given client.
func NewGraph(client GraphClient, logger *slog.Logger) *Graph {
	return &Graph{
		client: client,
		logger: logger.With("component", "graph-gateway"),
	}
}

// LookupUser calls GET /users/{upn}.
func (g *Graph) LookupUser(ctx context.Context, upn string) (model.User, error) {
	u, err := g.client.GetUser(ctx, upn)
	if err != nil {
		if graph.IsNotFound(err) {
			return model.User{}, fmt.Errorf("user %s: %w", upn, ErrNotFound)
		}
		return model.User{}, rejected(err)
	}
	return model.User{ID: u.ID, PrincipalName: u.UserPrincipalName, DisplayName: u.DisplayName}, nil
}

// ListResourcesForUser lists the user's Cloud PCs. The Cloud PC collection
// is filtered by principal name, so user.PrincipalName must be set.
func (g *Graph) ListResourcesForUser(ctx context.Context, user model.User) ([]model.Resource, error) {
	if user.PrincipalName == "" {
		return nil, fmt.Errorf("list resources: user %s has no principal name", user.ID)
	}
	pcs, err := g.client.ListCloudPCsForUser(ctx, user.PrincipalName)
	if err != nil {
		return nil, rejected(err)
	}
	out := make([]model.Resource, 0, len(pcs))
	for _, pc := range pcs {
		out = append(out, mapCloudPC(pc))
	}
	return out, nil
}

// ListPoliciesForGroup returns the ids of policies assigned to groupID.
func (g *Graph) ListPoliciesForGroup(ctx context.Context, groupID string) (model.IDSet, error) {
	ids, err := g.client.PolicyIDsForGroup(ctx, groupID)
	if err != nil {
		return nil, rejected(err)
	}
	return model.NewIDSet(ids...), nil
}

// RemoveMembership deletes the member reference. A 404 means the user was
// not a member.
func (g *Graph) RemoveMembership(ctx context.Context, userID, groupID string) (MembershipResult, error) {
	if err := g.client.RemoveGroupMember(ctx, groupID, userID); err != nil {
		if graph.IsNotFound(err) {
			g.logger.Debug("membership already absent", "user_id", userID, "group_id", groupID)
			return MembershipAlreadyAbsent, nil
		}
		return "", err
	}
	return MembershipChanged, nil
}

// AddMembership posts a member reference. Graph answers 400 with an
// "already exist" message when the user is a member.
func (g *Graph) AddMembership(ctx context.Context, userID, groupID string) (MembershipResult, error) {
	if err := g.client.AddGroupMember(ctx, groupID, userID); err != nil {
		if graph.IsAlreadyExists(err) {
			g.logger.Debug("membership already present", "user_id", userID, "group_id", groupID)
			return MembershipAlreadyPresent, nil
		}
		return "", err
	}
	return MembershipChanged, nil
}

// EndGracePeriod calls the Cloud PC endGracePeriod action.
func (g *Graph) EndGracePeriod(ctx context.Context, resourceID string) error {
	return g.client.EndGracePeriod(ctx, resourceID)
}

// rejected marks 4xx responses other than throttling with ErrRejected.
func rejected(err error) error {
	var httpErr *graph.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && !httpErr.IsRetryable() {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return err
}

// mapCloudPC converts a Graph Cloud PC to a Resource. The service plan id is
// the pairing key; the name is used only when the id is missing.
func mapCloudPC(pc graph.CloudPC) model.Resource {
	plan := pc.ServicePlanID
	if plan == "" {
		plan = pc.ServicePlanName
	}
	return model.Resource{
		ID:          pc.ID,
		Name:        pc.DisplayName,
		Status:      model.ParseResourceStatus(pc.Status),
		ServicePlan: plan,
		PolicyID:    pc.ProvisioningPolicyID,
	}
}
