package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/me/deskmove/pkg/model"
)

// Op names a Gateway operation for failure injection and call counting.
type Op string

const (
	OpLookupUser       Op = "LookupUser"
	OpListResources    Op = "ListResourcesForUser"
	OpListPolicies     Op = "ListPoliciesForGroup"
	OpRemoveMembership Op = "RemoveMembership"
	OpAddMembership    Op = "AddMembership"
	OpEndGracePeriod   Op = "EndGracePeriod"
)

// Memory is an in-memory Gateway. Tests script it directly; with a
// Simulation attached it also walks resources through the remote lifecycle
// on every resource listing.
type Memory struct {
	mu        sync.Mutex
	users     map[string]model.User // keyed by lower-cased principal name
	resources map[string][]*model.Resource
	policies  map[string]model.IDSet
	members   map[string]model.IDSet
	failures  map[Op][]error
	calls     map[Op]int
	sim       *simulation
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]model.User),
		resources: make(map[string][]*model.Resource),
		policies:  make(map[string]model.IDSet),
		members:   make(map[string]model.IDSet),
		failures:  make(map[Op][]error),
		calls:     make(map[Op]int),
	}
}

// AddUser registers a user.
func (m *Memory) AddUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[strings.ToLower(u.PrincipalName)] = u
}

// AssignPolicy assigns provisioning policies to a group.
func (m *Memory) AssignPolicy(groupID string, policyIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.policies[groupID]
	if !ok {
		set = model.IDSet{}
		m.policies[groupID] = set
	}
	for _, id := range policyIDs {
		set.Add(id)
	}
}

// AddMember makes userID a member of groupID without counting a call.
func (m *Memory) AddMember(groupID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberSet(groupID).Add(userID)
}

// IsMember reports whether userID is a member of groupID.
func (m *Memory) IsMember(groupID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[groupID].Has(userID)
}

// PutResource inserts or replaces (by id) a resource owned by userID.
func (m *Memory) PutResource(userID string, r model.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.resources[userID] {
		if existing.ID == r.ID {
			m.resources[userID][i] = &r
			return
		}
	}
	m.resources[userID] = append(m.resources[userID], &r)
}

// SetStatus changes the status of every resource with the given id.
func (m *Memory) SetStatus(resourceID string, status model.ResourceStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range m.resources {
		for _, r := range list {
			if r.ID == resourceID {
				r.Status = status
			}
		}
	}
}

// DeleteResource removes every resource with the given id.
func (m *Memory) DeleteResource(resourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for user, list := range m.resources {
		kept := list[:0]
		for _, r := range list {
			if r.ID != resourceID {
				kept = append(kept, r)
			}
		}
		m.resources[user] = kept
	}
}

// Resources returns a copy of the resources owned by userID.
func (m *Memory) Resources(userID string) []model.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyResources(userID)
}

// FailNext makes the next call of op return err. Calls queue in order.
func (m *Memory) FailNext(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// Calls returns how many times op has been invoked.
func (m *Memory) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// begin counts a call and pops an injected failure. Callers hold m.mu.
func (m *Memory) begin(op Op) error {
	m.calls[op]++
	if q := m.failures[op]; len(q) > 0 {
		m.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (m *Memory) memberSet(groupID string) model.IDSet {
	set, ok := m.members[groupID]
	if !ok {
		set = model.IDSet{}
		m.members[groupID] = set
	}
	return set
}

func (m *Memory) copyResources(userID string) []model.Resource {
	out := make([]model.Resource, 0, len(m.resources[userID]))
	for _, r := range m.resources[userID] {
		out = append(out, *r)
	}
	return out
}

// LookupUser resolves a principal name, or a user id when no principal
// name matches.
func (m *Memory) LookupUser(_ context.Context, upn string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpLookupUser); err != nil {
		return model.User{}, err
	}
	if u, ok := m.users[strings.ToLower(upn)]; ok {
		return u, nil
	}
	for _, u := range m.users {
		if u.ID == upn {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("user %s: %w", upn, ErrNotFound)
}

// ListResourcesForUser returns the user's resources, advancing the
// simulation first when one is attached.
func (m *Memory) ListResourcesForUser(_ context.Context, user model.User) ([]model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpListResources); err != nil {
		return nil, err
	}
	if m.sim != nil {
		m.sim.advance(m, user.ID)
	}
	return m.copyResources(user.ID), nil
}

// ListPoliciesForGroup returns the policies assigned to groupID.
func (m *Memory) ListPoliciesForGroup(_ context.Context, groupID string) (model.IDSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpListPolicies); err != nil {
		return nil, err
	}
	return m.policies[groupID].Clone(), nil
}

// RemoveMembership removes userID from groupID.
func (m *Memory) RemoveMembership(_ context.Context, userID, groupID string) (MembershipResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpRemoveMembership); err != nil {
		return "", err
	}
	set := m.members[groupID]
	if !set.Has(userID) {
		return MembershipAlreadyAbsent, nil
	}
	delete(set, userID)
	return MembershipChanged, nil
}

// AddMembership adds userID to groupID.
func (m *Memory) AddMembership(_ context.Context, userID, groupID string) (MembershipResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpAddMembership); err != nil {
		return "", err
	}
	if !m.memberSet(groupID).Add(userID) {
		return MembershipAlreadyPresent, nil
	}
	return MembershipChanged, nil
}

// EndGracePeriod moves a resource in its grace period to deprovisioning.
func (m *Memory) EndGracePeriod(_ context.Context, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpEndGracePeriod); err != nil {
		return err
	}
	for _, list := range m.resources {
		for _, r := range list {
			if r.ID != resourceID {
				continue
			}
			if r.Status != model.ResourceInGracePeriod {
				return fmt.Errorf("resource %s is %s, not in grace period", resourceID, r.Status)
			}
			r.Status = model.ResourceDeprovisioning
			if m.sim != nil {
				m.sim.reset(resourceID)
			}
			return nil
		}
	}
	return fmt.Errorf("resource %s: %w", resourceID, ErrNotFound)
}

// memberPolicies returns the union of policies assigned to groups userID
// belongs to. Callers hold m.mu.
func (m *Memory) memberPolicies(userID string) []string {
	set := model.IDSet{}
	for groupID, members := range m.members {
		if !members.Has(userID) {
			continue
		}
		for id := range m.policies[groupID] {
			set.Add(id)
		}
	}
	return set.Sorted()
}
