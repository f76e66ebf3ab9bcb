package power

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/core/power/lp"
	"go.uber.org/zap"
)

type Strategy string

const (
	// StrategyReduce concentrates the net power on as few ess as possible.
	StrategyReduce Strategy = "reduce"
	// StrategyKeepAll always distributes over every participating inverter.
	StrategyKeepAll Strategy = "keep_all"
)

const (
	DefaultApparentPowerEdges = 16

	envelopeRefinement = 4

	deviationWeight = 0.01
)

var ErrUnknownStrategy = errors.New("unknown solver strategy")

type SolverConfig struct {
	Strategy Strategy
	// ApparentPowerEdges is the number of edges of the polygon that
	// approximates the apparent power circle from inside.
	ApparentPowerEdges int
	MaxIterations      int
}

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyReduce, StrategyKeepAll:
		return Strategy(s), nil
	case "":
		return StrategyReduce, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Input is everything one solve depends on.
type Input struct {
	Inverters   []domain.InverterState
	Constraints []domain.PowerConstraint
	Topology    Topology
	// Previous is the last applied solution, used as tie-break target.
	Previous domain.Solution
}

type Solver struct {
	cfg    SolverConfig
	logger *zap.Logger
}

func NewSolver(cfg SolverConfig, logger *zap.Logger) *Solver {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyReduce
	}
	if cfg.ApparentPowerEdges < 4 {
		cfg.ApparentPowerEdges = DefaultApparentPowerEdges
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = lp.DefaultMaxIterations
	}
	return &Solver{cfg: cfg, logger: logger}
}

func (s *Solver) Config() SolverConfig {
	return s.cfg
}

// Solve distributes the accepted constraints over the inverters. Inverters no
// constraint targets are set to the point of their box closest to zero.
// When the constraints cannot be met together the error wraps ErrUnsolvable.
func (s *Solver) Solve(in Input) (domain.Solution, error) {
	m, err := newModel(s.cfg, in)
	if err != nil {
		return domain.Solution{}, fmt.Errorf("%w: %w", domain.ErrUnsolvable, err)
	}

	sol := domain.NewSolution()
	for _, st := range in.Inverters {
		sol.Setpoints[st.Id] = st.ClosestToZero()
	}
	if len(m.states) == 0 {
		sol.Direction = domain.KeepZero
		return sol, nil
	}

	base, err := m.solve(nil)
	if err != nil {
		return domain.Solution{}, fmt.Errorf("%w: %w", domain.ErrUnsolvable, err)
	}
	direction := domain.TargetDirectionOf(base.TotalActivePower())
	final := base

	if s.cfg.Strategy == StrategyReduce && direction != domain.KeepZero {
		order := EssOrder(SortByWeight(m.states, direction))
		if len(order) > 1 {
			required := m.requiredEss(order, direction, base.TotalActivePower())
			red := ReduceInverters(order, required, m.solve)
			if red.Solution != nil {
				final = *red.Solution
				s.logger.Debug("reduced active ess",
					zap.Strings("enabled", red.Enabled), zap.Strings("disabled", red.Disabled),
					zap.Int("required", required), zap.Stringer("direction", direction))
			}
		}
	}

	for id, sp := range final.Setpoints {
		sol.Setpoints[id] = sp
	}
	sol.Direction = direction
	sol.Disabled = final.Disabled
	return sol, nil
}

type term struct {
	inv   int
	pwr   domain.Pwr
	coeff float64
}

type linearRow struct {
	terms []term
	rel   lp.Relation
	rhs   float64
}

type model struct {
	cfg      SolverConfig
	states   []domain.InverterState
	rows     []linearRow
	splits   []linearRow
	previous domain.Solution
}

func newModel(cfg SolverConfig, in Input) (*model, error) {
	caps := make([]domain.Inverter, len(in.Inverters))
	for i := range in.Inverters {
		caps[i] = in.Inverters[i].Inverter
	}

	targets := make([][]domain.InverterId, len(in.Constraints))
	participating := map[domain.InverterId]bool{}
	for i, c := range in.Constraints {
		targets[i] = in.Topology.Targets(c.EssId, c.Phase, caps)
		if len(targets[i]) == 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrNoInverter, c)
		}
		for _, id := range targets[i] {
			participating[id] = true
		}
	}

	m := &model{cfg: cfg, previous: in.Previous}
	for _, st := range in.Inverters {
		if participating[st.Id] {
			m.states = append(m.states, st)
		}
	}
	slices.SortFunc(m.states, func(a, b domain.InverterState) int {
		return domain.CompareInverterIds(a.Id, b.Id)
	})
	index := make(map[domain.InverterId]int, len(m.states))
	for i, st := range m.states {
		index[st.Id] = i
	}

	for i, c := range in.Constraints {
		row := linearRow{rel: relation(c.Relationship), rhs: float64(c.Value)}
		for _, id := range targets[i] {
			row.terms = append(row.terms, term{inv: index[id], pwr: c.Pwr, coeff: 1})
		}
		m.rows = append(m.rows, row)
	}
	overridden := map[phaseOverride]bool{}
	for i, c := range in.Constraints {
		if c.Phase == domain.PhaseAll {
			continue
		}
		for _, id := range targets[i] {
			overridden[phaseOverride{id: id, pwr: c.Pwr}] = true
		}
	}
	m.splits = evenSplitRows(m.states, index, overridden)
	return m, nil
}

type phaseOverride struct {
	id  domain.InverterId
	pwr domain.Pwr
}

// evenSplitRows asks the phases of an asymmetric ess to share the load evenly.
// A phase addressed directly by some constraint leaves the split, the
// remaining phases keep sharing what is left.
func evenSplitRows(states []domain.InverterState, index map[domain.InverterId]int, overridden map[phaseOverride]bool) []linearRow {
	var rows []linearRow
	var essIds []string
	for _, st := range states {
		if st.Id.Phase != domain.PhaseAll && !slices.Contains(essIds, st.Id.EssId) {
			essIds = append(essIds, st.Id.EssId)
		}
	}
	for _, essId := range essIds {
		var phases []int
		for _, ph := range domain.ThreePhases {
			if i, ok := index[domain.InverterId{EssId: essId, Phase: ph}]; ok {
				phases = append(phases, i)
			}
		}
		for _, pwr := range []domain.Pwr{domain.PwrActive, domain.PwrReactive} {
			var free []int
			for _, i := range phases {
				if !overridden[phaseOverride{id: states[i].Id, pwr: pwr}] {
					free = append(free, i)
				}
			}
			for k := 0; k+1 < len(free); k++ {
				rows = append(rows, linearRow{
					terms: []term{{inv: free[k], pwr: pwr, coeff: 1}, {inv: free[k+1], pwr: pwr, coeff: -1}},
					rel:   lp.Equal,
				})
			}
		}
	}
	return rows
}

func relation(r domain.Relationship) lp.Relation {
	switch r {
	case domain.GreaterOrEquals:
		return lp.GreaterOrEqual
	case domain.LessOrEquals:
		return lp.LessOrEqual
	}
	return lp.Equal
}

// envelope is the polygon standing in for the apparent power circle.
type envelope struct {
	edges         int
	circumscribed bool
}

// envelopes lists the polygons to try in order. The configured inscribed
// polygon first, then a finer one, then a finer circumscribed one whose
// result is pulled back onto the circle.
func (m *model) envelopes() []envelope {
	res := []envelope{{edges: m.cfg.ApparentPowerEdges}}
	if !slices.ContainsFunc(m.states, func(st domain.InverterState) bool { return st.BoxExceedsEnvelope() }) {
		return res
	}
	fine := envelopeRefinement * m.cfg.ApparentPowerEdges
	return append(res, envelope{edges: fine}, envelope{edges: fine, circumscribed: true})
}

// solve runs the program with the inverters of the disabled ess forced to
// zero. The even phase split is dropped if no envelope makes the program
// feasible with it.
func (m *model) solve(disabled []string) (domain.Solution, error) {
	splits := []bool{true}
	if len(m.splits) > 0 {
		splits = append(splits, false)
	}
	var err error
	for _, split := range splits {
		for _, env := range m.envelopes() {
			var sol domain.Solution
			sol, err = m.solveWith(disabled, split, env)
			if err == nil {
				return sol, nil
			}
		}
	}
	return domain.Solution{}, err
}

func (m *model) solveWith(disabled []string, split bool, env envelope) (domain.Solution, error) {
	p := lp.NewProblem()
	pv := make([]int, len(m.states))
	qv := make([]int, len(m.states))
	inf := math.Inf(1)

	for i, st := range m.states {
		minP, maxP := float64(st.MinActivePower), float64(st.MaxActivePower)
		minQ, maxQ := float64(st.MinReactivePower), float64(st.MaxReactivePower)
		off := slices.Contains(disabled, st.Id.EssId)
		if off {
			if minP > 0 || maxP < 0 || minQ > 0 || maxQ < 0 {
				return domain.Solution{}, fmt.Errorf("%s cannot be disabled: %w", st.Id, lp.ErrInfeasible)
			}
			minP, maxP, minQ, maxQ = 0, 0, 0, 0
		}
		prev := m.previous.Get(st.Id)

		pv[i] = p.AddVariable(minP, maxP, 0)
		qv[i] = p.AddVariable(minQ, maxQ, 0)
		absP := p.AddVariable(0, inf, 1)
		absQ := p.AddVariable(0, inf, 1)
		devP := p.AddVariable(0, inf, deviationWeight)
		devQ := p.AddVariable(0, inf, deviationWeight)

		p.AddConstraint(lp.LessOrEqual, 0, lp.Term{Var: pv[i], Coeff: 1}, lp.Term{Var: absP, Coeff: -1})
		p.AddConstraint(lp.LessOrEqual, 0, lp.Term{Var: pv[i], Coeff: -1}, lp.Term{Var: absP, Coeff: -1})
		p.AddConstraint(lp.LessOrEqual, 0, lp.Term{Var: qv[i], Coeff: 1}, lp.Term{Var: absQ, Coeff: -1})
		p.AddConstraint(lp.LessOrEqual, 0, lp.Term{Var: qv[i], Coeff: -1}, lp.Term{Var: absQ, Coeff: -1})

		p.AddConstraint(lp.LessOrEqual, float64(prev.ActivePower), lp.Term{Var: pv[i], Coeff: 1}, lp.Term{Var: devP, Coeff: -1})
		p.AddConstraint(lp.LessOrEqual, -float64(prev.ActivePower), lp.Term{Var: pv[i], Coeff: -1}, lp.Term{Var: devP, Coeff: -1})
		p.AddConstraint(lp.LessOrEqual, float64(prev.ReactivePower), lp.Term{Var: qv[i], Coeff: 1}, lp.Term{Var: devQ, Coeff: -1})
		p.AddConstraint(lp.LessOrEqual, -float64(prev.ReactivePower), lp.Term{Var: qv[i], Coeff: -1}, lp.Term{Var: devQ, Coeff: -1})

		if !off && st.BoxExceedsEnvelope() {
			addEnvelope(p, pv[i], qv[i], st.MaxApparentPower, env)
		}
	}

	rows := m.rows
	if split {
		rows = append(slices.Clone(m.rows), m.splits...)
	}
	for _, row := range rows {
		terms := make([]lp.Term, len(row.terms))
		for k, t := range row.terms {
			v := pv[t.inv]
			if t.pwr == domain.PwrReactive {
				v = qv[t.inv]
			}
			terms[k] = lp.Term{Var: v, Coeff: t.coeff}
		}
		p.AddConstraint(row.rel, row.rhs, terms...)
	}

	x, err := p.Solve(m.cfg.MaxIterations)
	if err != nil {
		return domain.Solution{}, err
	}

	sol := domain.NewSolution()
	for i, st := range m.states {
		sp := domain.Setpoint{
			ActivePower:   int(math.Round(x[pv[i]])),
			ReactivePower: int(math.Round(x[qv[i]])),
		}
		sol.Setpoints[st.Id] = fitEnvelope(st.Inverter, sp)
		if slices.Contains(disabled, st.Id.EssId) {
			sol.Disabled = append(sol.Disabled, st.Id)
		}
	}
	if env.circumscribed {
		if err := m.check(sol); err != nil {
			return domain.Solution{}, err
		}
	}
	return sol, nil
}

// check verifies the constraint rows on the final setpoints. A point pulled
// back onto the circle may have left a row by more than rounding.
func (m *model) check(sol domain.Solution) error {
	for _, row := range m.rows {
		sum := 0.0
		for _, t := range row.terms {
			sp := sol.Get(m.states[t.inv].Id)
			v := sp.ActivePower
			if t.pwr == domain.PwrReactive {
				v = sp.ReactivePower
			}
			sum += t.coeff * float64(v)
		}
		tol := float64(len(row.terms))
		var ok bool
		switch row.rel {
		case lp.LessOrEqual:
			ok = sum <= row.rhs+tol
		case lp.GreaterOrEqual:
			ok = sum >= row.rhs-tol
		default:
			ok = math.Abs(sum-row.rhs) <= tol
		}
		if !ok {
			return fmt.Errorf("apparent power limit breaks constraint: %w", lp.ErrInfeasible)
		}
	}
	return nil
}

// addEnvelope bounds (P, Q) by a regular polygon with edges sides around the
// apparent power circle. An inscribed polygon has its vertices on the circle,
// a circumscribed one its edges tangent to it.
func addEnvelope(p *lp.Problem, pv, qv, maxApparentPower int, env envelope) {
	edges := env.edges
	half := math.Pi / float64(edges)
	r := float64(maxApparentPower)
	if !env.circumscribed {
		r *= math.Cos(half)
	}
	for k := 0; k < edges; k++ {
		theta := float64(2*k+1) * half
		p.AddConstraint(lp.LessOrEqual, r,
			lp.Term{Var: pv, Coeff: math.Cos(theta)},
			lp.Term{Var: qv, Coeff: math.Sin(theta)})
	}
}

// fitEnvelope repairs rounding: clamp into the box, pull the point onto the
// apparent power circle, then step toward zero until the limit holds.
func fitEnvelope(inv domain.Inverter, sp domain.Setpoint) domain.Setpoint {
	sp.ActivePower = clamp(sp.ActivePower, inv.MinActivePower, inv.MaxActivePower)
	sp.ReactivePower = clamp(sp.ReactivePower, inv.MinReactivePower, inv.MaxReactivePower)
	if !inv.WithinEnvelope(sp) {
		sp = pullOntoCircle(inv, sp)
	}
	for i := 0; i < 4 && !inv.WithinEnvelope(sp); i++ {
		p := towardZero(sp.ActivePower, inv.MinActivePower, inv.MaxActivePower)
		q := towardZero(sp.ReactivePower, inv.MinReactivePower, inv.MaxReactivePower)
		if abs(sp.ActivePower) >= abs(sp.ReactivePower) && p != sp.ActivePower {
			sp.ActivePower = p
		} else if q != sp.ReactivePower {
			sp.ReactivePower = q
		} else if p != sp.ActivePower {
			sp.ActivePower = p
		} else {
			break
		}
	}
	return sp
}

// pullOntoCircle keeps the active power and gives up reactive power first.
func pullOntoCircle(inv domain.Inverter, sp domain.Setpoint) domain.Setpoint {
	s := float64(inv.MaxApparentPower)
	p := float64(sp.ActivePower)
	if math.Abs(p) > s {
		p = math.Copysign(s, p)
	}
	room := int(math.Floor(math.Sqrt(s*s - p*p)))
	q := sp.ReactivePower
	if abs(q) > room {
		q = room
		if sp.ReactivePower < 0 {
			q = -room
		}
	}
	return domain.Setpoint{
		ActivePower:   clamp(int(p), inv.MinActivePower, inv.MaxActivePower),
		ReactivePower: clamp(q, inv.MinReactivePower, inv.MaxReactivePower),
	}
}

func towardZero(v, min, max int) int {
	switch {
	case v > 0 && v-1 >= min:
		return v - 1
	case v < 0 && v+1 <= max:
		return v + 1
	}
	return v
}

// requiredEss is the smallest number of preferred ess whose capacity in the
// given direction covers the net power.
func (m *model) requiredEss(order []string, direction domain.TargetDirection, net int) int {
	need := abs(net)
	covered := 0
	for k, essId := range order {
		for _, st := range m.states {
			if st.Id.EssId != essId {
				continue
			}
			min, max := st.EffectiveBounds(domain.PwrActive)
			if direction == domain.Discharge {
				covered += maxInt(max, 0)
			} else {
				covered += maxInt(-min, 0)
			}
		}
		if covered >= need {
			return k + 1
		}
	}
	return len(order)
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
