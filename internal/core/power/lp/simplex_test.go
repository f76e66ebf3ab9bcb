package lp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSolveTwoVariableMaximum(t *testing.T) {
	require := require.New(t)

	p := NewProblem()
	x := p.AddVariable(0, math.Inf(1), -1)
	y := p.AddVariable(0, math.Inf(1), -1)
	p.AddConstraint(LessOrEqual, 4, Term{x, 1}, Term{y, 2})
	p.AddConstraint(LessOrEqual, 6, Term{x, 3}, Term{y, 1})

	res, err := p.Solve(0)
	require.NoError(err)
	require.InDelta(1.6, res[x], 1e-9)
	require.InDelta(1.2, res[y], 1e-9)
}

func TestSolveFreeVariable(t *testing.T) {
	require := require.New(t)

	p := NewProblem()
	x := p.AddVariable(math.Inf(-1), math.Inf(1), 1)
	p.AddConstraint(GreaterOrEqual, -2, Term{x, 1})

	res, err := p.Solve(0)
	require.NoError(err)
	require.InDelta(-2, res[x], 1e-9)
}

func TestSolveUpperBoundedOnly(t *testing.T) {
	require := require.New(t)

	p := NewProblem()
	x := p.AddVariable(math.Inf(-1), 10, -1)

	res, err := p.Solve(0)
	require.NoError(err)
	require.InDelta(10, res[x], 1e-9)
}

func TestSolveBoundedVariables(t *testing.T) {
	require := require.New(t)

	// minimize |x| with x in [-100, 100] and x + y = 30, y in [-20, 20]
	p := NewProblem()
	x := p.AddVariable(-100, 100, 0)
	y := p.AddVariable(-20, 20, 0)
	a := p.AddVariable(0, math.Inf(1), 1)
	p.AddConstraint(LessOrEqual, 0, Term{x, 1}, Term{a, -1})
	p.AddConstraint(LessOrEqual, 0, Term{x, -1}, Term{a, -1})
	p.AddConstraint(Equal, 30, Term{x, 1}, Term{y, 1})

	res, err := p.Solve(0)
	require.NoError(err)
	require.InDelta(10, res[x], 1e-9)
	require.InDelta(20, res[y], 1e-9)
}

func TestSolveRedundantEqualities(t *testing.T) {
	require := require.New(t)

	p := NewProblem()
	x := p.AddVariable(0, math.Inf(1), 1)
	y := p.AddVariable(0, math.Inf(1), 0)
	p.AddConstraint(Equal, 2, Term{x, 1}, Term{y, 1})
	p.AddConstraint(Equal, 4, Term{x, 2}, Term{y, 2})
	p.AddConstraint(Equal, 0, Term{x, 1}, Term{y, -1})

	res, err := p.Solve(0)
	require.NoError(err)
	require.InDelta(1, res[x], 1e-9)
	require.InDelta(1, res[y], 1e-9)
}

func TestSolveInfeasible(t *testing.T) {
	require := require.New(t)

	p := NewProblem()
	x := p.AddVariable(0, 1, 0)
	p.AddConstraint(GreaterOrEqual, 2, Term{x, 1})

	_, err := p.Solve(0)
	require.ErrorIs(err, ErrInfeasible)
}

func TestSolveInvertedBounds(t *testing.T) {
	require := require.New(t)

	p := NewProblem()
	p.AddVariable(5, 1, 0)

	_, err := p.Solve(0)
	require.ErrorIs(err, ErrInfeasible)
}

func TestSolveUnbounded(t *testing.T) {
	require := require.New(t)

	p := NewProblem()
	p.AddVariable(0, math.Inf(1), -1)

	_, err := p.Solve(0)
	require.ErrorIs(err, ErrUnbounded)
}

func TestSolveIterationLimit(t *testing.T) {
	require := require.New(t)

	p := NewProblem()
	x := p.AddVariable(0, math.Inf(1), -1)
	y := p.AddVariable(0, math.Inf(1), -1)
	p.AddConstraint(LessOrEqual, 4, Term{x, 1}, Term{y, 2})
	p.AddConstraint(LessOrEqual, 6, Term{x, 3}, Term{y, 1})

	_, err := p.Solve(1)
	require.ErrorIs(err, ErrIterationLimit)
}

func TestSolveIsDeterministic(t *testing.T) {
	require := require.New(t)

	build := func() *Problem {
		p := NewProblem()
		a := p.AddVariable(-5000, 5000, 0)
		b := p.AddVariable(-5000, 5000, 0)
		p.AddConstraint(Equal, 6000, Term{a, 1}, Term{b, 1})
		return p
	}

	first, err := build().Solve(0)
	require.NoError(err)
	for i := 0; i < 10; i++ {
		res, err := build().Solve(0)
		require.NoError(err)
		require.Equal(first, res)
	}
	require.InDelta(6000, first[0]+first[1], 1e-9)
}
