// Package lp solves the small linear programs built by the power solver with a
// dense two-phase simplex. Pivoting follows Bland's rule, so every solve
// terminates and the same problem always yields the same vertex.
package lp

import (
	"errors"
	"math"
)

var (
	ErrInfeasible     = errors.New("lp: infeasible")
	ErrUnbounded      = errors.New("lp: unbounded")
	ErrIterationLimit = errors.New("lp: iteration limit reached")
)

const (
	DefaultMaxIterations = 20000

	eps = 1e-9
)

type Relation int

const (
	LessOrEqual Relation = iota
	GreaterOrEqual
	Equal
)

type Term struct {
	Var   int
	Coeff float64
}

type constraint struct {
	terms []Term
	rel   Relation
	rhs   float64
}

// Problem is a minimization problem over bounded variables.
type Problem struct {
	cost        []float64
	lower       []float64
	upper       []float64
	constraints []constraint
}

func NewProblem() *Problem {
	return &Problem{}
}

// AddVariable registers a variable with bounds (use math.Inf for open sides)
// and objective coefficient, and returns its index.
func (p *Problem) AddVariable(lower, upper, cost float64) int {
	p.lower = append(p.lower, lower)
	p.upper = append(p.upper, upper)
	p.cost = append(p.cost, cost)
	return len(p.cost) - 1
}

func (p *Problem) AddConstraint(rel Relation, rhs float64, terms ...Term) {
	p.constraints = append(p.constraints, constraint{
		terms: append([]Term(nil), terms...),
		rel:   rel,
		rhs:   rhs,
	})
}

// substitution expresses an original variable through non-negative columns:
// x = offset + sum(signs[k] * y[cols[k]]).
type substitution struct {
	offset float64
	cols   []int
	signs  []float64
}

type row struct {
	coeffs map[int]float64
	rel    Relation
	rhs    float64
}

// Solve returns the optimal value of every variable. maxIterations bounds the
// total number of pivots of both phases; values <= 0 select DefaultMaxIterations.
func (p *Problem) Solve(maxIterations int) ([]float64, error) {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	subs := make([]substitution, len(p.cost))
	var rows []row
	cols := 0
	for j := range p.cost {
		l, u := p.lower[j], p.upper[j]
		switch {
		case !math.IsInf(l, -1):
			if u < l {
				return nil, ErrInfeasible
			}
			subs[j] = substitution{offset: l, cols: []int{cols}, signs: []float64{1}}
			if !math.IsInf(u, 1) {
				rows = append(rows, row{coeffs: map[int]float64{cols: 1}, rel: LessOrEqual, rhs: u - l})
			}
			cols++
		case !math.IsInf(u, 1):
			subs[j] = substitution{offset: u, cols: []int{cols}, signs: []float64{-1}}
			cols++
		default:
			subs[j] = substitution{cols: []int{cols, cols + 1}, signs: []float64{1, -1}}
			cols += 2
		}
	}

	for _, c := range p.constraints {
		r := row{coeffs: map[int]float64{}, rel: c.rel, rhs: c.rhs}
		for _, t := range c.terms {
			s := subs[t.Var]
			r.rhs -= t.Coeff * s.offset
			for k, col := range s.cols {
				r.coeffs[col] += t.Coeff * s.signs[k]
			}
		}
		rows = append(rows, r)
	}

	cost := make([]float64, cols)
	for j, c := range p.cost {
		for k, col := range subs[j].cols {
			cost[col] += c * subs[j].signs[k]
		}
	}

	t := newTableau(cols, rows)
	budget := maxIterations

	if t.artificials > 0 {
		obj := make([]float64, t.width)
		for j := t.artStart; j < t.artStart+t.artificials; j++ {
			obj[j] = 1
		}
		for i, b := range t.basis {
			if b >= t.artStart {
				for k := range obj {
					obj[k] -= t.rows[i][k]
				}
			}
		}
		if err := t.iterate(obj, t.width-1, &budget); err != nil {
			if errors.Is(err, ErrUnbounded) {
				// the phase one objective is bounded below by zero
				return nil, ErrInfeasible
			}
			return nil, err
		}
		if -obj[t.width-1] > feasibilityTolerance(rows) {
			return nil, ErrInfeasible
		}
		t.evictArtificials()
	}

	obj := make([]float64, t.width)
	copy(obj, cost)
	for i, b := range t.basis {
		if b < cols && cost[b] != 0 {
			cb := cost[b]
			for k := range obj {
				obj[k] -= cb * t.rows[i][k]
			}
		}
	}
	if err := t.iterate(obj, t.artStart, &budget); err != nil {
		return nil, err
	}

	y := make([]float64, cols)
	for i, b := range t.basis {
		if b < cols {
			y[b] = t.rows[i][t.width-1]
		}
	}
	x := make([]float64, len(p.cost))
	for j, s := range subs {
		v := s.offset
		for k, col := range s.cols {
			v += s.signs[k] * y[col]
		}
		x[j] = v
	}
	return x, nil
}

type tableau struct {
	rows        [][]float64
	basis       []int
	width       int
	artStart    int
	artificials int
}

func newTableau(cols int, rows []row) *tableau {
	slacks, artificials := 0, 0
	for i := range rows {
		if rows[i].rhs < 0 {
			for k, v := range rows[i].coeffs {
				rows[i].coeffs[k] = -v
			}
			rows[i].rhs = -rows[i].rhs
			switch rows[i].rel {
			case LessOrEqual:
				rows[i].rel = GreaterOrEqual
			case GreaterOrEqual:
				rows[i].rel = LessOrEqual
			}
		}
		switch rows[i].rel {
		case LessOrEqual:
			slacks++
		case GreaterOrEqual:
			slacks++
			artificials++
		case Equal:
			artificials++
		}
	}

	t := &tableau{
		rows:        make([][]float64, len(rows)),
		basis:       make([]int, len(rows)),
		width:       cols + slacks + artificials + 1,
		artStart:    cols + slacks,
		artificials: artificials,
	}
	sc, ac := cols, cols+slacks
	for i, r := range rows {
		line := make([]float64, t.width)
		for k, v := range r.coeffs {
			line[k] = v
		}
		line[t.width-1] = r.rhs
		switch r.rel {
		case LessOrEqual:
			line[sc] = 1
			t.basis[i] = sc
			sc++
		case GreaterOrEqual:
			line[sc] = -1
			sc++
			line[ac] = 1
			t.basis[i] = ac
			ac++
		case Equal:
			line[ac] = 1
			t.basis[i] = ac
			ac++
		}
		t.rows[i] = line
	}
	return t
}

// iterate pivots until no column below allowed has a negative reduced cost.
func (t *tableau) iterate(obj []float64, allowed int, budget *int) error {
	rhs := t.width - 1
	for {
		enter := -1
		for j := 0; j < allowed; j++ {
			if obj[j] < -eps {
				enter = j
				break
			}
		}
		if enter < 0 {
			return nil
		}

		leave := -1
		best := 0.0
		for i, line := range t.rows {
			a := line[enter]
			if a <= eps {
				continue
			}
			ratio := math.Max(line[rhs], 0) / a
			switch {
			case leave < 0 || ratio < best-eps:
				leave, best = i, ratio
			case ratio <= best+eps && t.basis[i] < t.basis[leave]:
				leave = i
			}
		}
		if leave < 0 {
			return ErrUnbounded
		}
		if *budget <= 0 {
			return ErrIterationLimit
		}
		*budget--
		t.pivot(obj, leave, enter)
	}
}

func (t *tableau) pivot(obj []float64, r, c int) {
	pr := t.rows[r]
	inv := 1 / pr[c]
	for k := range pr {
		pr[k] *= inv
	}
	pr[c] = 1
	for i, line := range t.rows {
		if i == r {
			continue
		}
		if f := line[c]; f != 0 {
			for k := range line {
				line[k] -= f * pr[k]
			}
			line[c] = 0
		}
	}
	if obj != nil {
		if f := obj[c]; f != 0 {
			for k := range obj {
				obj[k] -= f * pr[k]
			}
			obj[c] = 0
		}
	}
	t.basis[r] = c
}

// evictArtificials pivots zero-valued artificial variables out of the basis.
// Rows where that is impossible are redundant and keep their artificial at zero.
func (t *tableau) evictArtificials() {
	for i, b := range t.basis {
		if b < t.artStart {
			continue
		}
		for j := 0; j < t.artStart; j++ {
			if math.Abs(t.rows[i][j]) > eps {
				t.pivot(nil, i, j)
				break
			}
		}
	}
}

func feasibilityTolerance(rows []row) float64 {
	scale := 1.0
	for _, r := range rows {
		scale = math.Max(scale, math.Abs(r.rhs))
	}
	return 1e-7 * scale
}
