package model

import (
	"encoding/json"
	"sort"
)

// ResourceStatus is the provisioning status reported by the control plane
// for a resource instance.
type ResourceStatus string

const (
	ResourceProvisioned             ResourceStatus = "provisioned"
	ResourceProvisionedWithWarnings ResourceStatus = "provisionedWithWarnings"
	ResourceProvisioning            ResourceStatus = "provisioning"
	ResourceInGracePeriod           ResourceStatus = "inGracePeriod"
	ResourceDeprovisioning          ResourceStatus = "deprovisioning"
	ResourceNotProvisioned          ResourceStatus = "notProvisioned"
	ResourceFailed                  ResourceStatus = "failed"
	ResourceOther                   ResourceStatus = "other"
)

// ParseResourceStatus maps a control-plane status string to a ResourceStatus.
// Unknown values map to ResourceOther.
func ParseResourceStatus(s string) ResourceStatus {
	switch ResourceStatus(s) {
	case ResourceProvisioned, ResourceProvisionedWithWarnings, ResourceProvisioning,
		ResourceInGracePeriod, ResourceDeprovisioning, ResourceNotProvisioned, ResourceFailed:
		return ResourceStatus(s)
	}
	return ResourceOther
}

// IsReady reports whether the resource is usable by its owner.
func (s ResourceStatus) IsReady() bool {
	return s == ResourceProvisioned || s == ResourceProvisionedWithWarnings
}

// IsLeaving reports whether the resource is past its grace period.
func (s ResourceStatus) IsLeaving() bool {
	return s == ResourceDeprovisioning || s == ResourceNotProvisioned
}

// Resource is a virtual desktop instance as listed by the gateway.
type Resource struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Status      ResourceStatus `json:"status"`
	ServicePlan string         `json:"service_plan"`
	PolicyID    string         `json:"policy_id"`
}

// Ref returns the reporting view of the resource.
func (r Resource) Ref() ResourceRef {
	return ResourceRef{ID: r.ID, Name: r.Name, ServicePlan: r.ServicePlan}
}

// ResourceRef is the subset of a Resource captured on a Job for reporting.
type ResourceRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ServicePlan string `json:"service_plan"`
}

// User identifies the owner of the resources being migrated.
type User struct {
	ID            string `json:"id"`
	PrincipalName string `json:"user_principal_name"`
	DisplayName   string `json:"display_name,omitempty"`
}

// IDSet is an unordered set of identifiers. It encodes as a sorted JSON array.
type IDSet map[string]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id and reports whether it was absent.
func (s IDSet) Add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether it was present.
func (s IDSet) Remove(id string) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

// Has reports whether id is in the set. A nil set holds nothing.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy. Cloning nil yields nil so that
// "unresolved" survives a copy.
func (s IDSet) Clone() IDSet {
	if s == nil {
		return nil
	}
	c := make(IDSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.Sorted())
}

func (s *IDSet) UnmarshalJSON(b []byte) error {
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	if ids == nil {
		*s = nil
		return nil
	}
	*s = NewIDSet(ids...)
	return nil
}
