package service

import (
	"errors"
	"testing"

	"github.com/berfenger/frostems/internal/config"
	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/internal/core/power"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func essState(essId string, phase domain.Phase, soc float64, limit, activePower int) domain.InverterState {
	return domain.InverterState{
		Inverter: domain.Inverter{
			Id:               domain.InverterId{EssId: essId, Phase: phase},
			MinActivePower:   -limit,
			MaxActivePower:   limit,
			MinReactivePower: -limit,
			MaxReactivePower: limit,
			MaxApparentPower: limit,
		},
		Soc:         soc,
		SocKnown:    true,
		ActivePower: activePower,
	}
}

func testImage(essActivePower, gridPower int, soc float64) domain.Measurements {
	return domain.Measurements{
		Inverters: []domain.InverterState{essState("ess0", domain.PhaseAll, soc, 5000, essActivePower)},
		Meters:    []domain.MeterState{{Id: "grid", ActivePower: gridPower}},
	}
}

func testRegistry(image domain.Measurements) *power.Registry {
	r := power.NewRegistry(power.NewTopology(nil), zap.NewNop())
	r.SetInverters(image.Capabilities())
	return r
}

func intPtr(v int) *int {
	return &v
}

func TestFixActivePower(t *testing.T) {
	require := require.New(t)

	image := testImage(0, 0, 50)
	reg := testRegistry(image)

	c := NewFixActivePower("fix", "ess0", domain.PhaseAll, 1200)
	require.NoError(c.Run(image, reg))

	c.SetPower(-700)
	require.Equal(-700, c.Power())
	require.NoError(c.Run(image, reg))

	cs := reg.Snapshot()
	require.Len(cs, 2)
	require.Equal(1200, cs[0].Value)
	require.Equal(-700, cs[1].Value)
	require.Equal(domain.Equals, cs[1].Relationship)
	require.Equal("fix", cs[1].Owner)

	c.SetPower(9000)
	require.ErrorIs(c.Run(image, reg), domain.ErrInfeasibleConstraint)
}

func TestLimitActivePower(t *testing.T) {
	require := require.New(t)

	image := testImage(0, 0, 50)
	reg := testRegistry(image)

	require.NoError(NewLimitActivePower("lim", "ess0", domain.PhaseAll, intPtr(-1000), intPtr(2000)).Run(image, reg))
	cs := reg.Snapshot()
	require.Len(cs, 2)
	require.Equal(domain.GreaterOrEquals, cs[0].Relationship)
	require.Equal(-1000, cs[0].Value)
	require.Equal(domain.LessOrEquals, cs[1].Relationship)
	require.Equal(2000, cs[1].Value)

	reg.Clear()
	require.NoError(NewLimitActivePower("max_only", "ess0", domain.PhaseAll, nil, intPtr(0)).Run(image, reg))
	require.Len(reg.Snapshot(), 1)

	// a minimum above what the ess can reach is rejected, the maximum still goes in
	reg.Clear()
	err := NewLimitActivePower("lim", "ess0", domain.PhaseAll, intPtr(8000), intPtr(9000)).Run(image, reg)
	require.ErrorIs(err, domain.ErrInfeasibleConstraint)
	require.Len(reg.Snapshot(), 1)
}

func TestBalancing(t *testing.T) {
	require := require.New(t)

	topology := power.NewTopology(nil)
	c := NewBalancing("bal", "ess0", "grid", domain.PhaseAll, topology)

	// ess discharges 1000 W and the house still imports 500 W
	image := testImage(1000, 500, 50)
	reg := testRegistry(image)
	require.NoError(c.Run(image, reg))
	require.Equal(1500, reg.Snapshot()[0].Value)

	// exporting 800 W while charging 200 W
	image = testImage(-200, -800, 50)
	reg = testRegistry(image)
	require.NoError(c.Run(image, reg))
	require.Equal(-1000, reg.Snapshot()[0].Value)

	// clamped to the ess range
	image = testImage(0, 12000, 50)
	reg = testRegistry(image)
	require.NoError(c.Run(image, reg))
	require.Equal(5000, reg.Snapshot()[0].Value)

	// missing meter
	image.Meters = nil
	require.Error(c.Run(image, reg))
}

func TestBalancingCluster(t *testing.T) {
	require := require.New(t)

	topology := power.NewTopology(map[string][]string{"all": {"ess0", "ess1"}})
	image := domain.Measurements{
		Inverters: []domain.InverterState{
			essState("ess0", domain.PhaseAll, 50, 3000, 400),
			essState("ess1", domain.PhaseAll, 50, 3000, 600),
		},
		Meters: []domain.MeterState{{Id: "grid", ActivePower: 250}},
	}
	reg := power.NewRegistry(topology, zap.NewNop())
	reg.SetInverters(image.Capabilities())

	require.NoError(NewBalancing("bal", "all", "grid", domain.PhaseAll, topology).Run(image, reg))
	require.Equal(1250, reg.Snapshot()[0].Value)
	require.Equal("all", reg.Snapshot()[0].EssId)
}

func TestForceChargeController(t *testing.T) {
	require := require.New(t)

	topology := power.NewTopology(nil)
	c := NewForceCharge("charge", "ess0", "grid", 90, topology, ctrl)
	require.Equal(ChargeIdle, c.ChargePower())

	image := testImage(0, 2300, 40)
	reg := testRegistry(image)
	require.NoError(c.Run(image, reg))
	cs := reg.Snapshot()
	require.Len(cs, 1)
	require.Equal(-800, cs[0].Value)
	require.Equal(800, c.ChargePower())
	require.False(c.Done())

	// the ess now charges 800 W, grid import grew accordingly
	image = testImage(-800, 3100, 40)
	reg = testRegistry(image)
	require.NoError(c.Run(image, reg))
	require.Equal(-1500, reg.Snapshot()[0].Value)

	// target reached
	image = testImage(-1500, 3800, 90)
	reg = testRegistry(image)
	require.NoError(c.Run(image, reg))
	require.Empty(reg.Snapshot())
	require.True(c.Done())
	require.Equal(ChargeIdle, c.ChargePower())
}

func TestForceChargeUnknownSoc(t *testing.T) {
	require := require.New(t)

	image := testImage(0, 0, 40)
	image.Inverters[0].SocKnown = false
	reg := testRegistry(image)

	c := NewForceCharge("charge", "ess0", "grid", 90, power.NewTopology(nil), ctrl)
	require.Error(c.Run(image, reg))
	require.Empty(reg.Snapshot())
}

func TestNewController(t *testing.T) {
	require := require.New(t)

	topology := power.NewTopology(nil)
	cases := []struct {
		cfg  config.ControllerConfig
		kind string
	}{
		{config.ControllerConfig{Id: "a", Type: config.ControllerFixActivePower, Ess: "ess0", Power: 100}, "fix_active_power"},
		{config.ControllerConfig{Id: "b", Type: config.ControllerLimitActivePower, Ess: "ess0", Phase: "L2", MaxPower: intPtr(10)}, "limit_active_power"},
		{config.ControllerConfig{Id: "c", Type: config.ControllerBalancing, Ess: "ess0", Meter: "grid"}, "balancing"},
		{config.ControllerConfig{Id: "d", Type: config.ControllerForceCharge, Ess: "ess0", Meter: "grid", TargetSoc: 80,
			MaxRatePowerIncrease: 500, MaxImportPower: 4000, SafetyMarginPower: 200}, "force_charge"},
	}
	for _, tc := range cases {
		c, err := NewController(tc.cfg, topology, zap.NewNop())
		require.NoError(err)
		require.Equal(tc.cfg.Id, c.Id())
		require.Equal(tc.kind, c.(Described).Kind())
		require.Equal("ess0", c.(Targeting).EssId())
	}

	_, err := NewController(config.ControllerConfig{Id: "x", Type: "unknown", Ess: "ess0"}, topology, zap.NewNop())
	require.Error(err)

	_, err = NewController(config.ControllerConfig{Id: "x", Type: config.ControllerFixActivePower, Ess: "ess0", Phase: "L4"}, topology, zap.NewNop())
	require.Error(err)
}

func TestNewSolverFromConfig(t *testing.T) {
	require := require.New(t)

	s, err := NewSolverFromConfig(config.SolverConfig{Strategy: "keep_all", ApparentPowerEdges: 8, MaxIterations: 100}, zap.NewNop())
	require.NoError(err)
	require.Equal(power.StrategyKeepAll, s.Config().Strategy)
	require.Equal(8, s.Config().ApparentPowerEdges)

	_, err = NewSolverFromConfig(config.SolverConfig{Strategy: "greedy"}, zap.NewNop())
	require.True(errors.Is(err, power.ErrUnknownStrategy))
}
