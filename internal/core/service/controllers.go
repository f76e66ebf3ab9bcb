package service

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/core/port"
	"github.com/berfenger/frostems/internal/core/power"
)

// FixActivePower requests a constant active power on its target.
type FixActivePower struct {
	id    string
	essId string
	phase domain.Phase
	power atomic.Int64
}

func NewFixActivePower(id, essId string, phase domain.Phase, power int) *FixActivePower {
	c := &FixActivePower{id: id, essId: essId, phase: phase}
	c.power.Store(int64(power))
	return c
}

func (c *FixActivePower) Id() string    { return c.id }
func (c *FixActivePower) EssId() string { return c.essId }
func (c *FixActivePower) Kind() string  { return "fix_active_power" }

func (c *FixActivePower) Power() int {
	return int(c.power.Load())
}

// SetPower takes effect on the next cycle.
func (c *FixActivePower) SetPower(power int) {
	c.power.Store(int64(power))
}

func (c *FixActivePower) Run(_ domain.Measurements, sink port.ConstraintSink) error {
	_, err := sink.Submit(c.essId, c.phase, domain.PwrActive, domain.Equals, c.Power(), c.id)
	return err
}

// LimitActivePower keeps the active power of its target inside [min, max].
// Either side may be open.
type LimitActivePower struct {
	id       string
	essId    string
	phase    domain.Phase
	minPower *int
	maxPower *int
}

func NewLimitActivePower(id, essId string, phase domain.Phase, minPower, maxPower *int) *LimitActivePower {
	return &LimitActivePower{id: id, essId: essId, phase: phase, minPower: minPower, maxPower: maxPower}
}

func (c *LimitActivePower) Id() string    { return c.id }
func (c *LimitActivePower) EssId() string { return c.essId }
func (c *LimitActivePower) Kind() string  { return "limit_active_power" }

func (c *LimitActivePower) Run(_ domain.Measurements, sink port.ConstraintSink) error {
	var errs []error
	if c.minPower != nil {
		_, err := sink.Submit(c.essId, c.phase, domain.PwrActive, domain.GreaterOrEquals, *c.minPower, c.id)
		errs = append(errs, err)
	}
	if c.maxPower != nil {
		_, err := sink.Submit(c.essId, c.phase, domain.PwrActive, domain.LessOrEquals, *c.maxPower, c.id)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Balancing drives the grid meter towards zero with the ess output.
type Balancing struct {
	id       string
	essId    string
	meterId  string
	phase    domain.Phase
	topology power.Topology
}

func NewBalancing(id, essId, meterId string, phase domain.Phase, topology power.Topology) *Balancing {
	return &Balancing{id: id, essId: essId, meterId: meterId, phase: phase, topology: topology}
}

func (c *Balancing) Id() string    { return c.id }
func (c *Balancing) EssId() string { return c.essId }
func (c *Balancing) Kind() string  { return "balancing" }

func (c *Balancing) Run(image domain.Measurements, sink port.ConstraintSink) error {
	meter, ok := image.Meter(c.meterId)
	if !ok {
		return fmt.Errorf("meter %s: no measurement", c.meterId)
	}
	target := essActivePower(image, c.topology, c.essId, c.phase) + meter.ActivePower

	min, max, err := sink.Bounds(c.essId, c.phase, domain.PwrActive)
	if err != nil {
		return err
	}
	target = clamp(target, min, max)
	_, err = sink.Submit(c.essId, c.phase, domain.PwrActive, domain.Equals, target, c.id)
	return err
}

// essActivePower sums the measured active power of every inverter behind the target.
func essActivePower(image domain.Measurements, topology power.Topology, essId string, phase domain.Phase) int {
	total := 0
	targets := topology.Targets(essId, phase, image.Capabilities())
	for _, inv := range image.Inverters {
		for _, id := range targets {
			if inv.Id == id {
				total += inv.ActivePower
			}
		}
	}
	return total
}

// essSoc averages the known state of charge of every inverter behind the ess.
func essSoc(image domain.Measurements, topology power.Topology, essId string) (float64, bool) {
	sum, n := 0.0, 0
	targets := topology.Targets(essId, domain.PhaseAll, image.Capabilities())
	for _, inv := range image.Inverters {
		for _, id := range targets {
			if inv.Id == id && inv.SocKnown {
				sum += inv.Soc
				n++
			}
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
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
