package power

import (
	"errors"
	"testing"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry() *Registry {
	r := NewRegistry(NewTopology(map[string][]string{"cluster0": {"ess0", "ess1"}}), zap.NewNop())
	states := append([]domain.InverterState{
		symmetric("ess0", 50, -5000, 5000, -3000, 3000, 5000),
	}, asymmetric("ess1", 50, 3000)...)
	r.SetInverters(capabilities(states))
	return r
}

func TestRegistryRejectsAboveMaximum(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry()

	_, err := r.Submit("ess0", domain.PhaseAll, domain.PwrActive, domain.Equals, 6000, "fix")
	require.ErrorIs(err, domain.ErrInfeasibleConstraint)

	var infeasible *domain.InfeasibleConstraintError
	require.True(errors.As(err, &infeasible))
	require.Equal(-5000, infeasible.Min)
	require.Equal(5000, infeasible.Max)
	require.Equal("fix", infeasible.Constraint.Owner)
	require.Empty(r.Snapshot())
}

func TestRegistryRelationships(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry()

	_, err := r.Submit("ess0", domain.PhaseAll, domain.PwrActive, domain.GreaterOrEquals, 5001, "a")
	require.ErrorIs(err, domain.ErrInfeasibleConstraint)
	_, err = r.Submit("ess0", domain.PhaseAll, domain.PwrActive, domain.LessOrEquals, -5001, "a")
	require.ErrorIs(err, domain.ErrInfeasibleConstraint)

	c, err := r.Submit("ess0", domain.PhaseAll, domain.PwrActive, domain.LessOrEquals, 9000, "a")
	require.NoError(err)
	require.True(c.Validated)
	_, err = r.Submit("ess0", domain.PhaseAll, domain.PwrReactive, domain.GreaterOrEquals, -9000, "a")
	require.NoError(err)

	require.Len(r.Snapshot(), 2)
}

func TestRegistryBoundsExpandTargets(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry()

	min, max, err := r.Bounds("ess1", domain.PhaseAll, domain.PwrActive)
	require.NoError(err)
	require.Equal(-9000, min)
	require.Equal(9000, max)

	min, max, err = r.Bounds("ess1", domain.PhaseL2, domain.PwrActive)
	require.NoError(err)
	require.Equal(-3000, min)
	require.Equal(3000, max)

	min, max, err = r.Bounds("cluster0", domain.PhaseAll, domain.PwrActive)
	require.NoError(err)
	require.Equal(-14000, min)
	require.Equal(14000, max)

	// a symmetric member has no L1 inverter
	min, max, err = r.Bounds("cluster0", domain.PhaseL1, domain.PwrReactive)
	require.NoError(err)
	require.Equal(-3000, min)
	require.Equal(3000, max)
}

func TestRegistryUnknownTarget(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry()

	_, err := r.Submit("ess9", domain.PhaseAll, domain.PwrActive, domain.Equals, 0, "a")
	require.ErrorIs(err, domain.ErrNoInverter)
	_, err = r.Submit("ess0", domain.PhaseL1, domain.PwrActive, domain.Equals, 0, "a")
	require.ErrorIs(err, domain.ErrNoInverter)
	require.Empty(r.Snapshot())
}

func TestRegistryInvalidConstraint(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry()

	_, err := r.Submit("", domain.PhaseAll, domain.PwrActive, domain.Equals, 0, "a")
	require.Error(err)
	_, err = r.Submit("ess0", domain.Phase(7), domain.PwrActive, domain.Equals, 0, "a")
	require.Error(err)
}

func TestRegistryClearAndSnapshot(t *testing.T) {
	require := require.New(t)
	r := newTestRegistry()

	_, err := r.Submit("ess0", domain.PhaseAll, domain.PwrActive, domain.Equals, 1000, "a")
	require.NoError(err)
	_, err = r.Submit("ess1", domain.PhaseL3, domain.PwrActive, domain.Equals, 500, "b")
	require.NoError(err)

	snap := r.Snapshot()
	require.Len(snap, 2)
	require.Equal("a", snap[0].Owner)
	require.Equal("b", snap[1].Owner)

	snap[0].Value = 42
	require.Equal(1000, r.Snapshot()[0].Value)

	r.Clear()
	require.Empty(r.Snapshot())
	require.Len(snap, 2)
}
