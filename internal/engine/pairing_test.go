package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/me/deskmove/pkg/model"
)

func TestPair(t *testing.T) {
	ref := func(id, plan string) model.ResourceRef { return model.ResourceRef{ID: id, ServicePlan: plan} }
	res := func(id, plan string) model.Resource { return model.Resource{ID: id, ServicePlan: plan} }

	tests := []struct {
		name       string
		old        []model.ResourceRef
		candidates []model.Resource
		wantIDs    []string
		complete   bool
	}{
		{
			name:       "one of two same-plan partners",
			old:        []model.ResourceRef{ref("A", "plan1"), ref("B", "plan1")},
			candidates: []model.Resource{res("N1", "plan1")},
			wantIDs:    []string{"N1"},
		},
		{
			name:       "two same-plan partners",
			old:        []model.ResourceRef{ref("A", "plan1"), ref("B", "plan1")},
			candidates: []model.Resource{res("N1", "plan1"), res("N2", "plan1")},
			wantIDs:    []string{"N1", "N2"},
			complete:   true,
		},
		{
			name:       "wrong plan does not count",
			old:        []model.ResourceRef{ref("A", "plan1")},
			candidates: []model.Resource{res("N1", "plan2")},
		},
		{
			name:       "mixed plans pair positionally",
			old:        []model.ResourceRef{ref("A", "plan2"), ref("B", "plan1")},
			candidates: []model.Resource{res("N1", "plan1"), res("N2", "plan2"), res("N3", "plan1")},
			wantIDs:    []string{"N2", "N1"},
			complete:   true,
		},
		{
			name:       "reused id pairs by plan",
			old:        []model.ResourceRef{ref("A", "plan1")},
			candidates: []model.Resource{res("A", "plan1")},
			wantIDs:    []string{"A"},
			complete:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paired, complete := Pair(tt.old, tt.candidates)
			var ids []string
			for _, p := range paired {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.complete, complete)
		})
	}
}
