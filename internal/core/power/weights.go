package power

import (
	"cmp"
	"math"
	"slices"

	"github.com/berfenger/frostems/internal/core/domain"
)

// DefaultWeight is used for inverters without a known state of charge.
const DefaultWeight = 50

type Weighted struct {
	Id     domain.InverterId
	Weight int
}

func WeightOf(state domain.InverterState) int {
	if !state.SocKnown {
		return DefaultWeight
	}
	return int(math.Round(state.Soc))
}

// SortByWeight orders inverters by preference for the given direction:
// highest weight first when discharging or idle, lowest first when charging.
// Equal weights are ordered by id so the result never depends on input order.
func SortByWeight(states []domain.InverterState, direction domain.TargetDirection) []Weighted {
	res := make([]Weighted, len(states))
	for i, st := range states {
		res[i] = Weighted{Id: st.Id, Weight: WeightOf(st)}
	}
	slices.SortFunc(res, func(a, b Weighted) int {
		if a.Weight != b.Weight {
			if direction == domain.Charge {
				return cmp.Compare(a.Weight, b.Weight)
			}
			return cmp.Compare(b.Weight, a.Weight)
		}
		return domain.CompareInverterIds(a.Id, b.Id)
	})
	return res
}

// EssOrder collapses a weighted inverter order into an ess order, keeping the
// first position of every ess.
func EssOrder(sorted []Weighted) []string {
	var res []string
	for _, w := range sorted {
		if !slices.Contains(res, w.Id.EssId) {
			res = append(res, w.Id.EssId)
		}
	}
	return res
}
