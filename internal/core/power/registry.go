package power

import (
	"fmt"
	"slices"
	"sync"

	"github.com/berfenger/frostems/internal/core/domain"
	"go.uber.org/zap"
)

// Registry collects the power constraints submitted during one cycle and
// rejects those that cannot be met even in isolation.
type Registry struct {
	mu          sync.Mutex
	topology    Topology
	inverters   []domain.Inverter
	constraints []domain.PowerConstraint
	logger      *zap.Logger
}

func NewRegistry(topology Topology, logger *zap.Logger) *Registry {
	return &Registry{
		topology: topology,
		logger:   logger,
	}
}

// SetInverters replaces the capability set used to validate new constraints.
func (r *Registry) SetInverters(inverters []domain.Inverter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inverters = slices.Clone(inverters)
}

func (r *Registry) Inverters() []domain.Inverter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.inverters)
}

func (r *Registry) Topology() Topology {
	return r.topology
}

func (r *Registry) Submit(essId string, phase domain.Phase, pwr domain.Pwr, relationship domain.Relationship, value int, owner string) (domain.PowerConstraint, error) {
	c, err := domain.NewPowerConstraint(essId, phase, pwr, relationship, value, owner)
	if err != nil {
		return c, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	min, max, err := r.bounds(essId, phase, pwr)
	if err != nil {
		return c, err
	}
	if !relationship.Allows(value, min, max) {
		err := &domain.InfeasibleConstraintError{Constraint: c, Min: min, Max: max}
		r.logger.Warn("rejected power constraint", zap.Stringer("constraint", c), zap.Int("min", min), zap.Int("max", max))
		return c, err
	}
	c.Validated = true
	r.constraints = append(r.constraints, c)
	r.logger.Debug("accepted power constraint", zap.Stringer("constraint", c))
	return c, nil
}

// Bounds returns the summed effective range of every inverter behind the target.
func (r *Registry) Bounds(essId string, phase domain.Phase, pwr domain.Pwr) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bounds(essId, phase, pwr)
}

func (r *Registry) bounds(essId string, phase domain.Phase, pwr domain.Pwr) (int, int, error) {
	targets := r.topology.Targets(essId, phase, r.inverters)
	if len(targets) == 0 {
		return 0, 0, fmt.Errorf("%w: %s %s", domain.ErrNoInverter, essId, phase)
	}
	min, max := 0, 0
	for _, inv := range r.inverters {
		if !slices.Contains(targets, inv.Id) {
			continue
		}
		lo, hi := inv.EffectiveBounds(pwr)
		min += lo
		max += hi
	}
	return min, max, nil
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constraints = nil
}

// Snapshot returns a copy of the accepted constraints in submission order.
func (r *Registry) Snapshot() []domain.PowerConstraint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.constraints)
}
