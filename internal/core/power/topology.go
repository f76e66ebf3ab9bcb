package power

import (
	"slices"

	"github.com/berfenger/frostems/internal/core/domain"
)

// Topology knows which ess ids are clusters and expands them to their members.
type Topology struct {
	clusters map[string][]string
}

func NewTopology(clusters map[string][]string) Topology {
	c := make(map[string][]string, len(clusters))
	for id, members := range clusters {
		c[id] = slices.Clone(members)
	}
	return Topology{clusters: c}
}

// Members returns the leaf ess ids behind essId. A plain ess is its own member.
func (t Topology) Members(essId string) []string {
	var res []string
	seen := map[string]bool{}
	var walk func(id string)
	walk = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		members, ok := t.clusters[id]
		if !ok {
			res = append(res, id)
			return
		}
		for _, m := range members {
			walk(m)
		}
	}
	walk(essId)
	return res
}

// Targets expands a constraint target onto the matching inverters. PhaseAll
// selects every inverter of each member, a single phase selects only that
// phase's inverter. The result follows the order of inverters.
func (t Topology) Targets(essId string, phase domain.Phase, inverters []domain.Inverter) []domain.InverterId {
	members := t.Members(essId)
	var res []domain.InverterId
	for _, inv := range inverters {
		if !slices.Contains(members, inv.Id.EssId) {
			continue
		}
		if phase != domain.PhaseAll && inv.Id.Phase != phase {
			continue
		}
		res = append(res, inv.Id)
	}
	return res
}
