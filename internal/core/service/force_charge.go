package service

import (
	"fmt"
	"math"
	"sync"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/core/port"
	"github.com/berfenger/frostems/internal/core/power"
	"go.uber.org/zap"
)

// ChargeIdle marks a force charge that is not running.
const ChargeIdle = -1

type ChargeInput struct {
	Soc float64
	// EssActivePower is the measured ess output, negative while charging.
	EssActivePower int
	// GridPower is positive when importing.
	GridPower int
	// MaxChargePower is the largest charge power the ess accepts, as a positive value.
	MaxChargePower int
}

type ChargeTick struct {
	// ChargePower is the charge power to request, or ChargeIdle.
	ChargePower int
	Exit        bool
}

// ForceChargeLogic ramps the charge power up while the grid import stays below
// MaxImportPower - PowerImportSafetyMargin and backs off when it does not.
type ForceChargeLogic struct {
	StartPowerThreshold     int
	MaxRatePowerIncrease    int
	PowerImportSafetyMargin int
	MaxImportPower          int
	Logger                  *zap.Logger
}

func (cfg *ForceChargeLogic) Loop(prevChargePower int, in ChargeInput, targetSoc float64) ChargeTick {

	if in.Soc >= targetSoc {
		// when the target SoC is reached, disable force charge
		cfg.Logger.Info("force_charge@charging charge targetSoC is met. Turning off charging control.")
		return ChargeTick{
			ChargePower: ChargeIdle,
			Exit:        true,
		}
	}

	importBudget := float64(cfg.MaxImportPower - cfg.PowerImportSafetyMargin)

	newPowerValue := float64(prevChargePower)
	if prevChargePower == ChargeIdle {
		// track house power consumption. The ess output is part of what the house draws.
		houseConsumption := float64(in.EssActivePower + in.GridPower)

		powerBudget := importBudget - houseConsumption
		if powerBudget > float64(cfg.StartPowerThreshold) {
			newPowerValue = math.Min(float64(cfg.MaxRatePowerIncrease), powerBudget)
		} else {
			newPowerValue = ChargeIdle
		}
	} else {
		// adjust charge power
		availablePower := importBudget - math.Max(0, float64(in.GridPower))
		newPowerValue += math.Min(float64(cfg.MaxRatePowerIncrease), availablePower)
	}

	// check bounds
	newPowerValue = math.Min(float64(in.MaxChargePower), newPowerValue)
	// if not positive, temp disable
	if newPowerValue <= 0 {
		newPowerValue = ChargeIdle
	}
	return ChargeTick{
		ChargePower: int(newPowerValue),
		Exit:        false,
	}
}

func (cfg *ForceChargeLogic) MaxGridImportPower() int {
	return cfg.MaxImportPower
}

// ForceCharge charges an ess from the grid up to a target SoC without pushing
// the grid import above the configured limit.
type ForceCharge struct {
	id        string
	essId     string
	meterId   string
	targetSoc float64
	topology  power.Topology
	logic     *ForceChargeLogic

	mu          sync.Mutex
	chargePower int
	done        bool
}

func NewForceCharge(id, essId, meterId string, targetSoc float64, topology power.Topology, logic *ForceChargeLogic) *ForceCharge {
	return &ForceCharge{
		id:          id,
		essId:       essId,
		meterId:     meterId,
		targetSoc:   targetSoc,
		topology:    topology,
		logic:       logic,
		chargePower: ChargeIdle,
	}
}

func (c *ForceCharge) Id() string    { return c.id }
func (c *ForceCharge) EssId() string { return c.essId }
func (c *ForceCharge) Kind() string  { return "force_charge" }

// Done reports whether the target SoC was reached.
func (c *ForceCharge) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *ForceCharge) ChargePower() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chargePower
}

func (c *ForceCharge) Run(image domain.Measurements, sink port.ConstraintSink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	soc, ok := essSoc(image, c.topology, c.essId)
	if !ok {
		return fmt.Errorf("ess %s: unknown state of charge", c.essId)
	}
	meter, ok := image.Meter(c.meterId)
	if !ok {
		return fmt.Errorf("meter %s: no measurement", c.meterId)
	}
	min, _, err := sink.Bounds(c.essId, domain.PhaseAll, domain.PwrActive)
	if err != nil {
		return err
	}

	tick := c.logic.Loop(c.chargePower, ChargeInput{
		Soc:            soc,
		EssActivePower: essActivePower(image, c.topology, c.essId, domain.PhaseAll),
		GridPower:      meter.ActivePower,
		MaxChargePower: max(0, -min),
	}, c.targetSoc)
	c.chargePower = tick.ChargePower
	c.done = tick.Exit
	if tick.ChargePower == ChargeIdle {
		return nil
	}
	_, err = sink.Submit(c.essId, domain.PhaseAll, domain.PwrActive, domain.Equals, -tick.ChargePower, c.id)
	return err
}
