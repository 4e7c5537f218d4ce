package engine

import "github.com/me/deskmove/pkg/model"

// Pair matches old resources with ready candidates by service plan. Within a
// plan, the n-th old resource pairs with the n-th candidate in listing order;
// ids are never compared since the backend may reuse them. paired follows
// the order of old and omits unmatched entries. complete is true when every
// old resource found a partner.
func Pair(old []model.ResourceRef, candidates []model.Resource) (paired []model.Resource, complete bool) {
	byPlan := make(map[string][]model.Resource)
	for _, c := range candidates {
		byPlan[c.ServicePlan] = append(byPlan[c.ServicePlan], c)
	}

	complete = true
	for _, o := range old {
		queue := byPlan[o.ServicePlan]
		if len(queue) == 0 {
			complete = false
			continue
		}
		paired = append(paired, queue[0])
		byPlan[o.ServicePlan] = queue[1:]
	}
	return paired, complete
}
