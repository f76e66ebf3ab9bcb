package power

import (
	"slices"

	"github.com/berfenger/frostems/internal/core/domain"
)

type Reduction[T any] struct {
	Enabled  []T
	Disabled []T
	// Solution is the solution of the last accepted candidate, nil when
	// nothing was disabled.
	Solution *domain.Solution
}

// ReduceInverters disables units from the tail of sorted, one at a time,
// while validate keeps accepting the candidate. It never goes below required
// enabled units and stops at the first rejected candidate. A required count
// outside [1, len(sorted)] leaves every unit enabled.
func ReduceInverters[T any](sorted []T, required int, validate func(disabled []T) (domain.Solution, error)) Reduction[T] {
	n := len(sorted)
	res := Reduction[T]{Enabled: slices.Clone(sorted)}
	if required <= 0 || required > n {
		return res
	}
	keep := n
	for k := n - 1; k >= required; k-- {
		sol, err := validate(slices.Clone(sorted[k:]))
		if err != nil {
			break
		}
		keep = k
		res.Solution = &sol
	}
	res.Enabled = slices.Clone(sorted[:keep])
	res.Disabled = slices.Clone(sorted[keep:])
	return res
}
