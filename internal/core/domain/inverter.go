package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

type InverterId struct {
	EssId string
	Phase Phase
}

func (id InverterId) String() string {
	if id.Phase == PhaseAll {
		return id.EssId
	}
	return fmt.Sprintf("%s/%s", id.EssId, id.Phase)
}

// SensorKey is the id fragment used for MQTT sensors, e.g. "ess0" or "ess0_l1".
func (id InverterId) SensorKey() string {
	if id.Phase == PhaseAll {
		return id.EssId
	}
	return fmt.Sprintf("%s_%s", id.EssId, strings.ToLower(id.Phase.String()))
}

func (id InverterId) Less(other InverterId) bool {
	if id.EssId != other.EssId {
		return id.EssId < other.EssId
	}
	return id.Phase < other.Phase
}

// Inverter is the capability envelope of one controllable unit.
type Inverter struct {
	Id               InverterId
	MinActivePower   int
	MaxActivePower   int
	MinReactivePower int
	MaxReactivePower int
	MaxApparentPower int
}

func NewInverter(id InverterId, minP, maxP, minQ, maxQ, maxS int) (Inverter, error) {
	inv := Inverter{
		Id:               id,
		MinActivePower:   minP,
		MaxActivePower:   maxP,
		MinReactivePower: minQ,
		MaxReactivePower: maxQ,
		MaxApparentPower: maxS,
	}
	return inv, inv.Validate()
}

func (inv Inverter) Validate() error {
	if inv.Id.EssId == "" {
		return errors.New("inverter: empty ess id")
	}
	if !inv.Id.Phase.Valid() {
		return fmt.Errorf("inverter %s: invalid phase", inv.Id)
	}
	if inv.MinActivePower > inv.MaxActivePower {
		return fmt.Errorf("inverter %s: min active power %d > max active power %d", inv.Id, inv.MinActivePower, inv.MaxActivePower)
	}
	if inv.MinReactivePower > inv.MaxReactivePower {
		return fmt.Errorf("inverter %s: min reactive power %d > max reactive power %d", inv.Id, inv.MinReactivePower, inv.MaxReactivePower)
	}
	if inv.MaxApparentPower < 0 {
		return fmt.Errorf("inverter %s: negative max apparent power", inv.Id)
	}
	return nil
}

// EffectiveBounds returns the reachable range of one power type, taking the
// apparent power limit into account.
func (inv Inverter) EffectiveBounds(pwr Pwr) (int, int) {
	min, max := inv.MinActivePower, inv.MaxActivePower
	if pwr == PwrReactive {
		min, max = inv.MinReactivePower, inv.MaxReactivePower
	}
	s := inv.MaxApparentPower
	if min < -s {
		min = -s
	}
	if max > s {
		max = s
	}
	return min, max
}

// WithinEnvelope reports whether the setpoint respects box and apparent power limits.
func (inv Inverter) WithinEnvelope(sp Setpoint) bool {
	if sp.ActivePower < inv.MinActivePower || sp.ActivePower > inv.MaxActivePower {
		return false
	}
	if sp.ReactivePower < inv.MinReactivePower || sp.ReactivePower > inv.MaxReactivePower {
		return false
	}
	p, q, s := int64(sp.ActivePower), int64(sp.ReactivePower), int64(inv.MaxApparentPower)
	return p*p+q*q <= s*s
}

// ClosestToZero is the point of the box nearest to (0, 0).
func (inv Inverter) ClosestToZero() Setpoint {
	return Setpoint{
		ActivePower:   clamp(0, inv.MinActivePower, inv.MaxActivePower),
		ReactivePower: clamp(0, inv.MinReactivePower, inv.MaxReactivePower),
	}
}

// BoxExceedsEnvelope is true when some corner of the box lies outside the
// apparent power circle.
func (inv Inverter) BoxExceedsEnvelope() bool {
	s := float64(inv.MaxApparentPower)
	p := math.Max(math.Abs(float64(inv.MinActivePower)), math.Abs(float64(inv.MaxActivePower)))
	q := math.Max(math.Abs(float64(inv.MinReactivePower)), math.Abs(float64(inv.MaxReactivePower)))
	return p*p+q*q > s*s
}

// InverterState is one entry of the measurement snapshot.
type InverterState struct {
	Inverter
	Soc           float64
	SocKnown      bool
	ActivePower   int
	ReactivePower int
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
