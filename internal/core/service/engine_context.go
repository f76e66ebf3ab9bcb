package service

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/core/port"
	"github.com/berfenger/frostems/internal/core/power"
	"github.com/berfenger/frostems/internal/core/scheduler"
	"go.uber.org/zap"
)

// Targeting is implemented by controllers bound to a single ess.
type Targeting interface {
	EssId() string
}

type Described interface {
	Kind() string
}

// EngineContext owns everything a cycle touches. It is created once at
// startup and passed to the cycle engine as its executor.
type EngineContext struct {
	registry  *power.Registry
	solver    *power.Solver
	scheduler *scheduler.Scheduler
	topology  power.Topology
	bridges   []port.DeviceBridge

	// every configured controller, enabled or not, in configuration order
	catalog []port.Controller

	mu       sync.RWMutex
	image    domain.Measurements
	solution domain.Solution
	fault    bool
	failures int

	logger *zap.Logger
}

func NewEngineContext(topology power.Topology, solver *power.Solver, bridges []port.DeviceBridge, logger *zap.Logger) *EngineContext {
	return &EngineContext{
		registry:  power.NewRegistry(topology, logger),
		solver:    solver,
		scheduler: scheduler.New(logger),
		topology:  topology,
		bridges:   bridges,
		solution:  domain.NewSolution(),
		logger:    logger.With(zap.String("component", "engine")),
	}
}

// Register adds a controller to the catalog and, when enabled, to the scheduler.
func (e *EngineContext) Register(ctrl port.Controller, enabled bool) {
	e.mu.Lock()
	e.catalog = slices.DeleteFunc(e.catalog, func(c port.Controller) bool { return c.Id() == ctrl.Id() })
	e.catalog = append(e.catalog, ctrl)
	e.mu.Unlock()
	if enabled {
		e.scheduler.Add(ctrl)
	} else {
		e.scheduler.Remove(ctrl.Id())
	}
}

// SetControllerEnabled adds or removes a registered controller at runtime.
// Re-enabled controllers run after the ones already active.
func (e *EngineContext) SetControllerEnabled(id string, enabled bool) (bool, error) {
	ctrl, ok := e.Controller(id)
	if !ok {
		return false, fmt.Errorf("unknown controller %q", id)
	}
	if e.scheduler.Has(id) == enabled {
		return false, nil
	}
	if enabled {
		e.scheduler.Add(ctrl)
	} else {
		e.scheduler.Remove(id)
	}
	e.logger.Info("engine@controllers toggled", zap.String("controller", id), zap.Bool("enabled", enabled))
	return true, nil
}

// SetControllerPower changes the requested power of a fixed power controller.
func (e *EngineContext) SetControllerPower(id string, power int) (int, error) {
	ctrl, ok := e.Controller(id)
	if !ok {
		return 0, fmt.Errorf("unknown controller %q", id)
	}
	fix, ok := ctrl.(*FixActivePower)
	if !ok {
		return 0, fmt.Errorf("controller %q has no adjustable power", id)
	}
	fix.SetPower(power)
	e.logger.Info("engine@controllers power changed", zap.String("controller", id), zap.Int("power", power))
	return fix.Power(), nil
}

func (e *EngineContext) Controller(id string) (port.Controller, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i := slices.IndexFunc(e.catalog, func(c port.Controller) bool { return c.Id() == id })
	if i < 0 {
		return nil, false
	}
	return e.catalog[i], true
}

func (e *EngineContext) Controllers() []domain.ControllerInfo {
	e.mu.RLock()
	catalog := slices.Clone(e.catalog)
	e.mu.RUnlock()
	res := make([]domain.ControllerInfo, 0, len(catalog))
	for _, c := range catalog {
		info := domain.ControllerInfo{Id: c.Id(), Enabled: e.scheduler.Has(c.Id())}
		if d, ok := c.(Described); ok {
			info.Kind = d.Kind()
		}
		res = append(res, info)
	}
	return res
}

func (e *EngineContext) Bridges() []port.Bridge {
	res := make([]port.Bridge, len(e.bridges))
	for i, b := range e.bridges {
		res[i] = b
	}
	return res
}

func (e *EngineContext) Registry() *power.Registry {
	return e.registry
}

func (e *EngineContext) Image() domain.Measurements {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.image
}

// Solution returns the setpoints written in the last cycle.
func (e *EngineContext) Solution() domain.Solution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.solution
}

// SolverFault is raised while the solver cannot satisfy the constraints.
func (e *EngineContext) SolverFault() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fault
}

func (e *EngineContext) ControllerFailures() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.failures
}

// Execute runs read, control, solve and write once. When the solver fails the
// previous solution is written again and the fault flag is raised.
func (e *EngineContext) Execute() error {

	// read
	snapshots := make([]domain.Measurements, 0, len(e.bridges))
	for _, b := range e.bridges {
		snapshots = append(snapshots, b.Snapshot())
	}
	image := domain.Merge(snapshots...)
	e.registry.SetInverters(image.Capabilities())

	e.mu.Lock()
	e.image = image
	previous := e.solution
	e.mu.Unlock()

	// control
	failures := e.scheduler.Execute(image, e.registry)
	if len(failures) > 0 && !previous.IsEmpty() {
		e.retainPrevious(failures, previous)
	}

	// solve
	solution, solveErr := e.solver.Solve(power.Input{
		Inverters:   image.Inverters,
		Constraints: e.registry.Snapshot(),
		Topology:    e.topology,
		Previous:    previous,
	})
	if solveErr != nil {
		e.logger.Error("engine@solve keeping previous solution", zap.Error(solveErr))
		solution = previous
	}

	e.mu.Lock()
	e.solution = solution
	e.fault = solveErr != nil
	e.failures = len(failures)
	e.mu.Unlock()

	// write
	if solution.IsEmpty() {
		return solveErr
	}
	var writeErrs []error
	for _, b := range e.bridges {
		setpoints := solution.ForEss(b.EssIds()...)
		if len(setpoints) == 0 {
			continue
		}
		if err := b.ApplySetpoints(setpoints); err != nil {
			writeErrs = append(writeErrs, fmt.Errorf("bridge %s: %w", b.Id(), err))
		}
	}
	return errors.Join(solveErr, errors.Join(writeErrs...))
}

// retainPrevious pins the inverters of failed controllers to last cycle's
// setpoints, unless another controller already constrains them.
func (e *EngineContext) retainPrevious(failures []error, previous domain.Solution) {
	inverters := e.registry.Inverters()
	constrained := map[domain.InverterId]bool{}
	for _, c := range e.registry.Snapshot() {
		for _, id := range e.topology.Targets(c.EssId, c.Phase, inverters) {
			constrained[id] = true
		}
	}
	for _, failure := range failures {
		var cf *domain.ControllerFailureError
		if !errors.As(failure, &cf) {
			continue
		}
		ctrl, ok := e.Controller(cf.ControllerId)
		if !ok {
			continue
		}
		t, ok := ctrl.(Targeting)
		if !ok {
			continue
		}
		owner := "retain:" + cf.ControllerId
		for _, id := range e.topology.Targets(t.EssId(), domain.PhaseAll, inverters) {
			if constrained[id] {
				continue
			}
			sp, ok := previous.Setpoints[id]
			if !ok {
				continue
			}
			constrained[id] = true
			if _, err := e.registry.Submit(id.EssId, id.Phase, domain.PwrActive, domain.Equals, sp.ActivePower, owner); err != nil {
				e.logger.Warn("engine@control cannot retain setpoint", zap.Stringer("inverter", id), zap.Error(err))
				continue
			}
			if _, err := e.registry.Submit(id.EssId, id.Phase, domain.PwrReactive, domain.Equals, sp.ReactivePower, owner); err != nil {
				e.logger.Warn("engine@control cannot retain setpoint", zap.Stringer("inverter", id), zap.Error(err))
			}
		}
	}
}
