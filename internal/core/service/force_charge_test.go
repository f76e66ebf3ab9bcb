package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	ESS_MAX_CHARGE = 5000
	MAX_LOOP_INTER = 100
)

func TestSequencesModerateLoad(t *testing.T) {

	require := require.New(t)

	// check power increments until there is no change
	c := runIncrements(require, ctrl, 2300, 5)
	assert.GreaterOrEqual(t, c, 1)

	// check power decrements until the ess stops charging
	// house power is increasing to force the charge power to decrease
	c = runDecrements(require, ctrl, 1700, 5, 100-float64(ctrl.PowerImportSafetyMargin))
	assert.GreaterOrEqual(t, c, 2)
}

func TestSequencesExport(t *testing.T) {

	require := require.New(t)

	// the house exports, the charge power grows up to what the ess accepts
	c := runIncrements(require, ctrl, -1500, 5)
	assert.GreaterOrEqual(t, c, 1)

	r := callControllerAndCheckPower(require, ctrl, ci(5, -1500, -ESS_MAX_CHARGE), ESS_MAX_CHARGE, 100)
	require.EqualValues(ESS_MAX_CHARGE, r.ChargePower)

	c = runDecrements(require, ctrl, 3000, 5, 100-float64(ctrl.PowerImportSafetyMargin))
	assert.GreaterOrEqual(t, c, 2)
}

func TestFirstTickRate(t *testing.T) {

	require := require.New(t)

	r := callControllerAndCheckPower(require, ctrl, ci(20, 2300, 0), ChargeIdle, 100)
	require.EqualValues(ctrl.MaxRatePowerIncrease, r.ChargePower)

	r = callControllerAndCheckPower(require, ctrl, ci(20, 3000, 0), ChargeIdle, 100)
	require.EqualValues(800, r.ChargePower)

	// budget below the rate
	r = callControllerAndCheckPower(require, ctrl, ci(20, 3300, 0), ChargeIdle, 100)
	require.EqualValues(500, r.ChargePower)
}

func TestStopWhenTargetSoCMet(t *testing.T) {

	require := require.New(t)

	r := callControllerAndCheckPower(require, ctrl, ci(100, 570, -4000), 4000, 100)
	require.True(r.Exit, "must exit when target SoC is met")
}

func TestDontStartWhenTargetSoCIsMet(t *testing.T) {

	require := require.New(t)

	r := callControllerAndCheckPower(require, ctrl, ci(100, 570, 0), ChargeIdle, 100)
	require.True(r.Exit, "must exit when target SoC is met")
}

func TestDontStartWhenNotEnoughPower(t *testing.T) {

	require := require.New(t)

	r := callControllerAndCheckPower(require, ctrl, ci(50, 3700, 0), ChargeIdle, 100)
	require.EqualValues(ChargeIdle, r.ChargePower)
	require.False(r.Exit)
}

func TestRespectMaxChargePower(t *testing.T) {

	require := require.New(t)

	in := ci(50, 0, 0)
	in.MaxChargePower = 300
	r := callControllerAndCheckPower(require, ctrl, in, ChargeIdle, 100)
	require.EqualValues(300, r.ChargePower)

	in.MaxChargePower = 0
	r = callControllerAndCheckPower(require, ctrl, in, 300, 100)
	require.EqualValues(ChargeIdle, r.ChargePower)
}

// Helper function to simulate multiple power computations assuming the house consumption
// is stable to let the controller achieve maximum charge power over time
func runIncrements(require *require.Assertions, ctrl *ForceChargeLogic, housePower, soc float64) int {
	powerValue := ChargeIdle
	essFlow := 0.0
	count := 0
	for {
		r := callControllerAndCheckPower(require, ctrl, ci(soc, housePower, essFlow), powerValue, 100)
		if r.Exit || r.ChargePower == powerValue || r.ChargePower < 0 {
			break
		}
		powerValue = r.ChargePower
		essFlow = -float64(r.ChargePower)
		count++
		// avoid infinite loop
		require.LessOrEqual(count, int(MAX_LOOP_INTER), "possible infinite loop avoided")
	}
	return count
}

// Helper function to simulate multiple power computations assuming the house consumption
// increases over time to force the charge power to go down
func runDecrements(require *require.Assertions, ctrl *ForceChargeLogic, startingChargePower int, soc, housePowerIncrease float64) int {
	powerValue := startingChargePower
	essFlow := -float64(startingChargePower)
	count := 0
	for {
		housePower := float64(ctrl.MaxGridImportPower()) + essFlow + housePowerIncrease
		r := callControllerAndCheckPower(require, ctrl, ci(soc, housePower, essFlow), powerValue, 100)
		if r.Exit || r.ChargePower == powerValue || r.ChargePower < 0 {
			break
		}
		powerValue = r.ChargePower
		essFlow = -float64(r.ChargePower)
		count++
		// avoid infinite loop
		require.LessOrEqual(count, int(MAX_LOOP_INTER), "possible infinite loop avoided")
	}
	return count
}

// Generic function to check if the calculated power values meet the import limit
// Does not check the rate of power increase/decrease or other behaviour that depends on controller implementation
func callControllerAndCheckPower(require *require.Assertions, ctrl *ForceChargeLogic,
	in ChargeInput, prevPowerValue int, targetSoC float64) ChargeTick {

	r := ctrl.Loop(prevPowerValue, in, targetSoC)

	fmt.Printf("Check control tick: %d => %d (soc = %.0f)\n", prevPowerValue, r.ChargePower, in.Soc)

	require.NotEqualValues(0, r.ChargePower, "ChargePower cannot be zero")

	if in.Soc >= targetSoC {
		// stop condition
		require.True(r.Exit, "must exit when targetSoC is met")
		require.EqualValues(ChargeIdle, r.ChargePower)
	} else {
		house := float64(in.GridPower + in.EssActivePower)
		budget := float64(ctrl.MaxGridImportPower() - ctrl.PowerImportSafetyMargin)
		chargePower := float64(r.ChargePower)

		if r.ChargePower > 0 {
			// check new value bounds
			require.LessOrEqual(house+chargePower, budget, "house + chargePower <= maxImport - margin")
			require.LessOrEqual(r.ChargePower, in.MaxChargePower, "chargePower <= max charge power")
		} else if prevPowerValue > 0 && in.MaxChargePower > 0 {
			// temporal pause when previously was running
			require.GreaterOrEqual(house, budget, "house >= maxImport - margin")
		}
	}
	return r
}

// genChargeInput derives the meter reading from the house load and the ess output.
func genChargeInput(soc, housePower, essFlow float64) ChargeInput {
	return ChargeInput{
		Soc:            soc,
		EssActivePower: int(essFlow),
		GridPower:      int(housePower - essFlow),
		MaxChargePower: ESS_MAX_CHARGE,
	}
}

var ctrl = &ForceChargeLogic{
	StartPowerThreshold:     200,
	MaxRatePowerIncrease:    800,
	PowerImportSafetyMargin: 200,
	MaxImportPower:          4000,
	Logger:                  zap.Must(zap.NewDevelopment()),
}

var ci = genChargeInput
