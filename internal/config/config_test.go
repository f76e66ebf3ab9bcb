package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const testYaml = `
log_level: debug
cycle:
  cycle_time_millis: 500
solver:
  strategy: keep_all
ess:
  - id: ess0
    kind: symmetric
    driver: simulator
    simulator:
      soc: 40
      capacity_wh: 10000
      max_apparent_power: 5000
      max_charge_power: 5000
      max_discharge_power: 5000
  - id: ess1
    kind: asymmetric
    driver: simulator
    simulator:
      soc: 60
      capacity_wh: 3000
      max_apparent_power: 2000
      max_charge_power: 2000
      max_discharge_power: 2000
  - id: cluster0
    kind: cluster
    members: [ess0, ess1]
meters:
  - id: grid
    driver: simulator
    simulator:
      active_power: 1200
controllers:
  - id: balance
    type: balancing
    ess: cluster0
    meter: grid
  - id: cap
    type: limit_active_power
    ess: ess1
    phase: L2
    max_power: 1000
    enabled: false
mqtt:
  host: broker
  base_topic: MyEms
`

func validConfig() Config {
	max := 3000
	return Config{
		Cycle:  CycleConfig{CycleTimeMillis: 1000},
		Solver: SolverConfig{Strategy: "reduce", ApparentPowerEdges: 16, MaxIterations: 20000},
		Bridge: BridgeConfig{PollIntervalMillis: 1000, TimeoutMillis: 2000, RevertTimeSeconds: 60},
		Ess: []EssConfig{
			{Id: "ess0", Kind: EssKindSymmetric, Driver: DriverSimulator, Simulator: SimulatorEssConfig{
				Soc: 50, CapacityWh: 10000, MaxApparentPower: 5000, MaxChargePower: 5000, MaxDischargePower: 5000}},
			{Id: "ess1", Kind: EssKindSymmetric, Driver: DriverSunSpec, Modbus: ModbusConfig{Host: "10.0.0.2", Port: 502}},
			{Id: "site", Kind: EssKindCluster, Members: []string{"ess0", "ess1"}},
		},
		Meters: []MeterConfig{{Id: "grid", Driver: DriverSimulator}},
		Controllers: []ControllerConfig{
			{Id: "limit", Type: ControllerLimitActivePower, Ess: "site", MaxPower: &max},
			{Id: "charge", Type: ControllerForceCharge, Ess: "ess0", Meter: "grid", TargetSoc: 80,
				MaxRatePowerIncrease: 800, MaxImportPower: 4000, SafetyMarginPower: 200},
		},
		MQTT: MQTTConfig{Host: "localhost", Port: 1883, BaseTopic: "frostems", HADiscoveryTopic: "homeassistant"},
	}
}

func TestLoadFromYaml(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(os.WriteFile(path, []byte(testYaml), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("FROSTEMS_PORT", "")
	t.Setenv("PORT", "9090")

	cfg, err := Load(viper.New())
	require.NoError(err)

	require.Equal(zapcore.DebugLevel, cfg.LogLevel)
	require.EqualValues(9090, cfg.Port)
	require.EqualValues(500, cfg.Cycle.CycleTimeMillis)
	require.Equal("keep_all", cfg.Solver.Strategy)
	require.Equal(16, cfg.Solver.ApparentPowerEdges)
	require.EqualValues(1000, cfg.Bridge.PollIntervalMillis)
	require.Len(cfg.Ess, 3)
	require.Equal(40.0, cfg.Ess[0].Simulator.Soc)
	require.Equal(map[string][]string{"cluster0": {"ess0", "ess1"}}, cfg.Clusters())
	require.Equal(1200, cfg.Meters[0].Simulator.ActivePower)
	require.True(cfg.Controllers[0].IsEnabled())
	require.False(cfg.Controllers[1].IsEnabled())
	require.Nil(cfg.Controllers[1].MinPower)
	require.Equal(1000, *cfg.Controllers[1].MaxPower)
	require.Equal("myems", cfg.MQTT.BaseTopic)
	require.Equal("homeassistant", cfg.MQTT.HADiscoveryTopic)
	require.Equal(1883, cfg.MQTT.Port)
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"cycle time too short":    func(c *Config) { c.Cycle.CycleTimeMillis = 50 },
		"cycle time too long":     func(c *Config) { c.Cycle.CycleTimeMillis = 120000 },
		"unknown strategy":        func(c *Config) { c.Solver.Strategy = "greedy" },
		"odd polygon":             func(c *Config) { c.Solver.ApparentPowerEdges = 6 },
		"no ess":                  func(c *Config) { c.Ess = nil },
		"bad ess id":              func(c *Config) { c.Ess[0].Id = "Ess-0" },
		"duplicated ess":          func(c *Config) { c.Ess[1].Id = "ess0" },
		"unknown kind":            func(c *Config) { c.Ess[0].Kind = "hybrid" },
		"unknown driver":          func(c *Config) { c.Ess[0].Driver = "gpio" },
		"sunspec without host":    func(c *Config) { c.Ess[1].Modbus.Host = "" },
		"sunspec asymmetric":      func(c *Config) { c.Ess[1].Kind = EssKindAsymmetric },
		"simulator soc":           func(c *Config) { c.Ess[0].Simulator.Soc = 101 },
		"unknown cluster member":  func(c *Config) { c.Ess[2].Members = []string{"ess0", "ess9"} },
		"nested cluster":          func(c *Config) { c.Ess[2].Members = []string{"site"} },
		"duplicated meter":        func(c *Config) { c.Meters = append(c.Meters, c.Meters[0]) },
		"controller unknown ess":  func(c *Config) { c.Controllers[0].Ess = "ess9" },
		"controller bad phase":    func(c *Config) { c.Controllers[0].Phase = "L4" },
		"controller unknown type": func(c *Config) { c.Controllers[0].Type = "peak_shaving" },
		"limit without bounds":    func(c *Config) { c.Controllers[0].MaxPower = nil },
		"charge unknown meter":    func(c *Config) { c.Controllers[1].Meter = "house" },
		"charge target soc":       func(c *Config) { c.Controllers[1].TargetSoc = 0 },
		"charge margin":           func(c *Config) { c.Controllers[1].SafetyMarginPower = 4000 },
		"duplicated controller":   func(c *Config) { c.Controllers[1].Id = "limit" },
		"bad base topic":          func(c *Config) { c.MQTT.BaseTopic = "frost/ems" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestCheckMQTTTopic(t *testing.T) {
	require := require.New(t)

	topic, err := CheckMQTTTopic("FrostEMS_1")
	require.NoError(err)
	require.Equal("frostems_1", topic)

	_, err = CheckMQTTTopic("frost ems")
	require.Error(err)
	_, err = CheckMQTTTopic("")
	require.Error(err)
}

func TestRedacted(t *testing.T) {
	require := require.New(t)

	cfg := validConfig()
	cfg.MQTT.Username = "user"
	cfg.MQTT.Password = "secret"
	red := cfg.Redacted()
	require.Equal("*redacted*", red.MQTT.Password)
	require.Equal("secret", cfg.MQTT.Password)
}
