package bridge

import (
	"testing"
	"time"

	"github.com/berfenger/frostems/internal/config"
	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func simEss(kind string, soc float64) config.EssConfig {
	return config.EssConfig{
		Id:     "ess0",
		Kind:   kind,
		Driver: config.DriverSimulator,
		Simulator: config.SimulatorEssConfig{
			Soc:               soc,
			CapacityWh:        10000,
			MaxApparentPower:  5000,
			MaxChargePower:    5000,
			MaxDischargePower: 5000,
			MaxReactivePower:  2000,
		},
	}
}

func TestSimulatedEssIntegratesSoc(t *testing.T) {
	require := require.New(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sim := NewSimulatedEss(simEss(config.EssKindSymmetric, 60), nil, func() time.Time { return now })
	require.NoError(sim.Open())

	id := domain.InverterId{EssId: "ess0", Phase: domain.PhaseAll}
	require.NoError(sim.Write(map[domain.InverterId]domain.Setpoint{id: {ActivePower: 1000}}))

	now = now.Add(time.Hour)
	m, err := sim.Read()
	require.NoError(err)
	require.Len(m.Inverters, 1)
	require.InDelta(50.0, m.Inverters[0].Soc, 0.001)
	require.True(m.Inverters[0].SocKnown)
	require.Equal(1000, m.Inverters[0].ActivePower)
	require.Equal(now, m.Timestamp)

	// charging brings it back
	require.NoError(sim.Write(map[domain.InverterId]domain.Setpoint{id: {ActivePower: -2000}}))
	now = now.Add(30 * time.Minute)
	_, err = sim.Read()
	require.NoError(err)
	require.InDelta(60.0, sim.Soc(), 0.001)
}

func TestSimulatedEssDeratesNearLimits(t *testing.T) {
	require := require.New(t)

	empty := NewSimulatedEss(simEss(config.EssKindSymmetric, 5), nil, nil)
	m, err := empty.Read()
	require.NoError(err)
	inv := m.Inverters[0]
	require.Equal(2500, inv.MaxActivePower)
	require.Equal(-5000, inv.MinActivePower)
	require.Equal(-2000, inv.MinReactivePower)
	require.Equal(2000, inv.MaxReactivePower)
	require.Equal(5000, inv.MaxApparentPower)

	full := NewSimulatedEss(simEss(config.EssKindSymmetric, 100), nil, nil)
	m, err = full.Read()
	require.NoError(err)
	require.Equal(0, m.Inverters[0].MinActivePower)
	require.Equal(5000, m.Inverters[0].MaxActivePower)
	require.NoError(m.Inverters[0].Validate())
}

func TestSimulatedEssClampsSetpoints(t *testing.T) {
	require := require.New(t)

	sim := NewSimulatedEss(simEss(config.EssKindSymmetric, 50), nil, nil)
	id := domain.InverterId{EssId: "ess0", Phase: domain.PhaseAll}
	require.NoError(sim.Write(map[domain.InverterId]domain.Setpoint{id: {ActivePower: 9000, ReactivePower: 0}}))

	m, err := sim.Read()
	require.NoError(err)
	require.Equal(5000, m.Inverters[0].ActivePower)

	require.NoError(sim.Write(map[domain.InverterId]domain.Setpoint{id: {ActivePower: 5000, ReactivePower: 2000}}))
	m, err = sim.Read()
	require.NoError(err)
	sp := domain.Setpoint{ActivePower: m.Inverters[0].ActivePower, ReactivePower: m.Inverters[0].ReactivePower}
	require.True(m.Inverters[0].WithinEnvelope(sp))
}

func TestSimulatedAsymmetricEss(t *testing.T) {
	require := require.New(t)

	sim := NewSimulatedEss(simEss(config.EssKindAsymmetric, 50), nil, nil)
	m, err := sim.Read()
	require.NoError(err)
	require.Len(m.Inverters, 3)
	for i, p := range domain.ThreePhases {
		require.Equal(domain.InverterId{EssId: "ess0", Phase: p}, m.Inverters[i].Id)
	}

	err = sim.Write(map[domain.InverterId]domain.Setpoint{{EssId: "ess0", Phase: domain.PhaseAll}: {ActivePower: 100}})
	require.Error(err)
	err = sim.Write(map[domain.InverterId]domain.Setpoint{{EssId: "ess1", Phase: domain.PhaseL1}: {ActivePower: 100}})
	require.Error(err)
}

func TestSimulatedMeterFollowsSite(t *testing.T) {
	require := require.New(t)

	site := NewSite()
	sim := NewSimulatedEss(simEss(config.EssKindSymmetric, 60), site, nil)
	meter := NewSimulatedMeter(config.MeterConfig{
		Id:        "grid",
		Driver:    config.DriverSimulator,
		Simulator: config.SimulatorMeterConfig{ActivePower: 1200},
	}, site)

	m, err := meter.Read()
	require.NoError(err)
	require.Equal([]domain.MeterState{{Id: "grid", ActivePower: 1200}}, m.Meters)

	id := domain.InverterId{EssId: "ess0", Phase: domain.PhaseAll}
	require.NoError(sim.Write(map[domain.InverterId]domain.Setpoint{id: {ActivePower: 1000}}))
	m, err = meter.Read()
	require.NoError(err)
	require.Equal(200, m.Meters[0].ActivePower)

	meter.SetHouseLoad(-500)
	m, err = meter.Read()
	require.NoError(err)
	require.Equal(-1500, m.Meters[0].ActivePower)

	require.NoError(meter.Write(nil))
	require.Error(meter.Write(map[domain.InverterId]domain.Setpoint{id: {}}))
}
