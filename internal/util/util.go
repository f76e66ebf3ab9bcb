package util

import (
	"github.com/berfenger/frostems/internal/config"

	"go.uber.org/zap"
)

// LoadTestConfig is a complete configuration backed by simulator drivers: a
// symmetric and an asymmetric ess grouped in a cluster, a simulated grid meter
// and one controller of every kind.
func LoadTestConfig() config.Config {
	disabled := false
	minPower := -3000
	return config.Config{
		LogLevel: zap.DebugLevel,
		Port:     8080,
		Cycle: config.CycleConfig{
			CycleTimeMillis: 200,
		},
		Solver: config.SolverConfig{
			Strategy:           "reduce",
			ApparentPowerEdges: 16,
			MaxIterations:      20000,
		},
		Bridge: config.BridgeConfig{
			PollIntervalMillis: 100,
			TimeoutMillis:      1000,
			RevertTimeSeconds:  60,
		},
		Ess: []config.EssConfig{
			{
				Id:     "ess0",
				Kind:   config.EssKindSymmetric,
				Driver: config.DriverSimulator,
				Simulator: config.SimulatorEssConfig{
					Soc:               60,
					CapacityWh:        10000,
					MaxApparentPower:  5000,
					MaxChargePower:    5000,
					MaxDischargePower: 5000,
					MaxReactivePower:  2000,
				},
			},
			{
				Id:     "ess1",
				Kind:   config.EssKindAsymmetric,
				Driver: config.DriverSimulator,
				Simulator: config.SimulatorEssConfig{
					Soc:               40,
					CapacityWh:        6000,
					MaxApparentPower:  2000,
					MaxChargePower:    2000,
					MaxDischargePower: 2000,
					MaxReactivePower:  1000,
				},
			},
			{
				Id:      "site",
				Kind:    config.EssKindCluster,
				Members: []string{"ess0", "ess1"},
			},
		},
		Meters: []config.MeterConfig{
			{
				Id:     "grid",
				Driver: config.DriverSimulator,
				Simulator: config.SimulatorMeterConfig{
					ActivePower: 1200,
				},
			},
		},
		Controllers: []config.ControllerConfig{
			{
				Id:       "limit",
				Type:     config.ControllerLimitActivePower,
				Ess:      "site",
				MinPower: &minPower,
			},
			{
				Id:    "balancing",
				Type:  config.ControllerBalancing,
				Ess:   "site",
				Meter: "grid",
			},
			{
				Id:      "fix",
				Type:    config.ControllerFixActivePower,
				Enabled: &disabled,
				Ess:     "ess0",
				Power:   1000,
			},
			{
				Id:                   "charge",
				Type:                 config.ControllerForceCharge,
				Enabled:              &disabled,
				Ess:                  "ess1",
				Meter:                "grid",
				TargetSoc:            80,
				MaxRatePowerIncrease: 800,
				MaxImportPower:       4000,
				SafetyMarginPower:    200,
				StartPowerThreshold:  500,
			},
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "frostems",
			HADiscoveryTopic: "homeassistant",
		},
	}
}
