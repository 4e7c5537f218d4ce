package gateway

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/me/deskmove/pkg/model"
)

// SimulationConfig controls how quickly simulated resources move through
// their lifecycle. Step counts are measured in resource listings.
type SimulationConfig struct {
	// GraceListings is how many listings a resource stays in its grace
	// period before deprovisioning on its own.
	GraceListings int
	// StepListings is how many listings every other transient status lasts.
	StepListings int
	// ReuseIDs makes a reprovisioned resource take the id of the instance
	// whose license it inherits.
	ReuseIDs bool
}

// DefaultSimulationConfig returns a short lifecycle suitable for demos.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{GraceListings: 3, StepListings: 1}
}

type license struct {
	plan string
	id   string
}

type simulation struct {
	cfg     SimulationConfig
	age     map[string]int // listings spent in the current status, per resource
	free    map[string][]license
	created int
}

// Simulate attaches a lifecycle simulation. Each ListResourcesForUser call
// first advances that user's resources by one listing:
//
//	provisioned -> inGracePeriod -> deprovisioning -> notProvisioned -> gone
//
// for resources whose policy the user no longer holds through any group, and
// provisioning -> provisioned for new ones. A gone resource frees its service
// plan, which is reprovisioned under a policy the user holds.
func (m *Memory) Simulate(cfg SimulationConfig) {
	if cfg.GraceListings < 1 {
		cfg.GraceListings = 1
	}
	if cfg.StepListings < 1 {
		cfg.StepListings = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sim = &simulation{
		cfg:  cfg,
		age:  make(map[string]int),
		free: make(map[string][]license),
	}
}

func (s *simulation) reset(resourceID string) {
	delete(s.age, resourceID)
}

// tick ages a resource and reports whether it has spent n listings in its
// current status.
func (s *simulation) tick(resourceID string, n int) bool {
	s.age[resourceID]++
	if s.age[resourceID] >= n {
		delete(s.age, resourceID)
		return true
	}
	return false
}

func (s *simulation) advance(m *Memory, userID string) {
	held := model.NewIDSet(m.memberPolicies(userID)...)
	step := s.cfg.StepListings

	kept := m.resources[userID][:0]
	for _, r := range m.resources[userID] {
		switch r.Status {
		case model.ResourceProvisioned, model.ResourceProvisionedWithWarnings:
			if !held.Has(r.PolicyID) {
				r.Status = model.ResourceInGracePeriod
				s.reset(r.ID)
			}
		case model.ResourceInGracePeriod:
			if held.Has(r.PolicyID) {
				r.Status = model.ResourceProvisioned
				s.reset(r.ID)
			} else if s.tick(r.ID, s.cfg.GraceListings) {
				r.Status = model.ResourceDeprovisioning
			}
		case model.ResourceDeprovisioning:
			if s.tick(r.ID, step) {
				r.Status = model.ResourceNotProvisioned
			}
		case model.ResourceNotProvisioned:
			if s.tick(r.ID, step) {
				s.free[userID] = append(s.free[userID], license{plan: r.ServicePlan, id: r.ID})
				continue
			}
		case model.ResourceProvisioning:
			if s.tick(r.ID, step) {
				r.Status = model.ResourceProvisioned
			}
		}
		kept = append(kept, r)
	}
	m.resources[userID] = kept

	policies := m.memberPolicies(userID)
	if len(policies) == 0 {
		return
	}
	for _, lic := range s.free[userID] {
		s.created++
		id := fmt.Sprintf("sim-%04d", s.created)
		if s.cfg.ReuseIDs && lic.id != "" {
			id = lic.id
		}
		m.resources[userID] = append(m.resources[userID], &model.Resource{
			ID:          id,
			Name:        fmt.Sprintf("CPC-%s-%04d", userID, s.created),
			Status:      model.ResourceProvisioning,
			ServicePlan: lic.plan,
			PolicyID:    policies[0],
		})
	}
	delete(s.free, userID)
}

// Fixture is the YAML seed for a simulated tenant.
type Fixture struct {
	Users []struct {
		ID            string   `yaml:"id"`
		PrincipalName string   `yaml:"user_principal_name"`
		DisplayName   string   `yaml:"display_name"`
		Groups        []string `yaml:"groups"`
		Resources     []struct {
			ID          string `yaml:"id"`
			Name        string `yaml:"name"`
			Status      string `yaml:"status"`
			ServicePlan string `yaml:"service_plan"`
			PolicyID    string `yaml:"policy_id"`
		} `yaml:"resources"`
	} `yaml:"users"`
	Groups []struct {
		ID       string   `yaml:"id"`
		Policies []string `yaml:"policies"`
	} `yaml:"groups"`
}

// LoadFixture reads a Fixture from YAML and seeds m with it.
func (m *Memory) LoadFixture(r io.Reader) error {
	var f Fixture
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return fmt.Errorf("decode fixture: %w", err)
	}
	for _, g := range f.Groups {
		if g.ID == "" {
			return fmt.Errorf("fixture group without id")
		}
		m.AssignPolicy(g.ID, g.Policies...)
	}
	for _, u := range f.Users {
		if u.ID == "" || u.PrincipalName == "" {
			return fmt.Errorf("fixture user needs id and user_principal_name")
		}
		m.AddUser(model.User{ID: u.ID, PrincipalName: u.PrincipalName, DisplayName: u.DisplayName})
		for _, g := range u.Groups {
			m.AddMember(g, u.ID)
		}
		for _, res := range u.Resources {
			status := model.ResourceProvisioned
			if res.Status != "" {
				status = model.ParseResourceStatus(res.Status)
			}
			m.PutResource(u.ID, model.Resource{
				ID:          res.ID,
				Name:        res.Name,
				Status:      status,
				ServicePlan: res.ServicePlan,
				PolicyID:    res.PolicyID,
			})
		}
	}
	return nil
}

// DemoFixture seeds a small tenant used when simulation runs without a
// fixture file.
const DemoFixture = `
groups:
  - id: grp-standard
    policies: [pol-standard]
  - id: grp-gpu
    policies: [pol-gpu]
users:
  - id: u-alice
    user_principal_name: alice@example.com
    display_name: Alice
    groups: [grp-standard]
    resources:
      - {id: cpc-alice-1, name: CPC-alice-1, service_plan: plan-8vcpu, policy_id: pol-standard}
  - id: u-bob
    user_principal_name: bob@example.com
    display_name: Bob
    groups: [grp-standard]
    resources:
      - {id: cpc-bob-1, name: CPC-bob-1, service_plan: plan-4vcpu, policy_id: pol-standard}
      - {id: cpc-bob-2, name: CPC-bob-2, service_plan: plan-4vcpu, policy_id: pol-standard}
`
