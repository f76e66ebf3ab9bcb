package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap/zapcore"
)

const (
	EssKindSymmetric  = "symmetric"
	EssKindAsymmetric = "asymmetric"
	EssKindCluster    = "cluster"

	DriverSimulator = "simulator"
	DriverSunSpec   = "sunspec"

	ControllerFixActivePower   = "fix_active_power"
	ControllerLimitActivePower = "limit_active_power"
	ControllerBalancing        = "balancing"
	ControllerForceCharge      = "force_charge"

	MinCycleTimeMillis = 100
	MaxCycleTimeMillis = 60000
)

var idRegexp = regexp.MustCompile("^[a-z0-9_]+$")

type Config struct {
	LogLevel    zapcore.Level
	Port        uint               `mapstructure:"port"`
	HttpLog     bool               `mapstructure:"http_log"`
	Cycle       CycleConfig        `mapstructure:"cycle"`
	Solver      SolverConfig       `mapstructure:"solver"`
	Bridge      BridgeConfig       `mapstructure:"bridge"`
	Ess         []EssConfig        `mapstructure:"ess"`
	Meters      []MeterConfig      `mapstructure:"meters"`
	Controllers []ControllerConfig `mapstructure:"controllers"`
	MQTT        MQTTConfig         `mapstructure:"mqtt"`
}

type CycleConfig struct {
	CycleTimeMillis uint32 `mapstructure:"cycle_time_millis"`
}

type SolverConfig struct {
	Strategy           string `mapstructure:"strategy"`
	ApparentPowerEdges int    `mapstructure:"apparent_power_edges"`
	MaxIterations      int    `mapstructure:"max_iterations"`
}

type BridgeConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	TimeoutMillis      uint32 `mapstructure:"timeout_millis"`
	RevertTimeSeconds  uint32 `mapstructure:"revert_time_seconds"`
}

type ModbusConfig struct {
	Host          string
	Port          uint
	UnitId        uint8 `mapstructure:"unit_id"`
	IgnoreFronius bool  `mapstructure:"ignore_fronius"`
}

// SimulatorEssConfig limits apply to every inverter of the ess, so an
// asymmetric ess gets them once per phase.
type SimulatorEssConfig struct {
	Soc               float64
	CapacityWh        int `mapstructure:"capacity_wh"`
	MaxApparentPower  int `mapstructure:"max_apparent_power"`
	MaxChargePower    int `mapstructure:"max_charge_power"`
	MaxDischargePower int `mapstructure:"max_discharge_power"`
	MaxReactivePower  int `mapstructure:"max_reactive_power"`
	LatencyMillis     int `mapstructure:"latency_millis"`
}

type EssConfig struct {
	Id        string
	Kind      string
	Members   []string
	Driver    string
	Modbus    ModbusConfig
	Simulator SimulatorEssConfig
}

type SimulatorMeterConfig struct {
	// ActivePower is the simulated house load seen at the grid connection.
	ActivePower int `mapstructure:"active_power"`
}

type MeterConfig struct {
	Id        string
	Driver    string
	Modbus    ModbusConfig
	Simulator SimulatorMeterConfig
}

type ControllerConfig struct {
	Id                   string
	Type                 string
	Enabled              *bool
	Ess                  string
	Meter                string
	Phase                string
	Power                int
	MinPower             *int    `mapstructure:"min_power"`
	MaxPower             *int    `mapstructure:"max_power"`
	TargetSoc            float64 `mapstructure:"target_soc"`
	MaxRatePowerIncrease int     `mapstructure:"max_rate_power_increase"`
	MaxImportPower       int     `mapstructure:"max_import_power"`
	SafetyMarginPower    int     `mapstructure:"safety_margin_power"`
	StartPowerThreshold  int     `mapstructure:"start_power_threshold"`
}

func (c ControllerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (cfg *Config) FindEss(id string) (EssConfig, bool) {
	i := slices.IndexFunc(cfg.Ess, func(e EssConfig) bool { return e.Id == id })
	if i < 0 {
		return EssConfig{}, false
	}
	return cfg.Ess[i], true
}

// Clusters maps every cluster ess to its members.
func (cfg *Config) Clusters() map[string][]string {
	res := map[string][]string{}
	for _, e := range cfg.Ess {
		if e.Kind == EssKindCluster {
			res[e.Id] = slices.Clone(e.Members)
		}
	}
	return res
}

// Validate checks the configuration and normalizes MQTT topics in place.
func (cfg *Config) Validate() error {

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.Cycle.CycleTimeMillis < MinCycleTimeMillis || cfg.Cycle.CycleTimeMillis > MaxCycleTimeMillis {
		return fmt.Errorf("config param cycle.cycle_time_millis should be in [%d, %d]", MinCycleTimeMillis, MaxCycleTimeMillis)
	}
	switch cfg.Solver.Strategy {
	case "reduce", "keep_all":
	default:
		return fmt.Errorf("config param solver.strategy: unknown strategy %q", cfg.Solver.Strategy)
	}
	if cfg.Solver.ApparentPowerEdges < 4 || cfg.Solver.ApparentPowerEdges%4 != 0 {
		return errors.New("config param solver.apparent_power_edges should be a multiple of 4 and >= 4")
	}
	if cfg.Solver.MaxIterations <= 0 {
		return errors.New("config param solver.max_iterations should be > 0")
	}
	if cfg.Bridge.PollIntervalMillis < 100 {
		return errors.New("config param bridge.poll_interval_millis should be >= 100")
	}
	if cfg.Bridge.TimeoutMillis == 0 {
		return errors.New("config param bridge.timeout_millis should be > 0")
	}

	if err := cfg.validateEss(); err != nil {
		return err
	}
	if err := cfg.validateMeters(); err != nil {
		return err
	}
	return cfg.validateControllers()
}

func (cfg *Config) validateEss() error {
	if len(cfg.Ess) == 0 {
		return errors.New("config: at least one ess is required")
	}
	seen := map[string]bool{}
	for _, e := range cfg.Ess {
		if err := checkId("ess", e.Id, seen); err != nil {
			return err
		}
	}
	for _, e := range cfg.Ess {
		switch e.Kind {
		case EssKindSymmetric, EssKindAsymmetric:
			if err := checkDriver("ess "+e.Id, e.Driver, e.Modbus); err != nil {
				return err
			}
			if e.Driver == DriverSunSpec && e.Kind == EssKindAsymmetric {
				return fmt.Errorf("ess %s: driver %s only supports symmetric ess", e.Id, DriverSunSpec)
			}
			if e.Driver == DriverSimulator {
				if err := checkSimulatorEss(e); err != nil {
					return err
				}
			}
		case EssKindCluster:
			if len(e.Members) == 0 {
				return fmt.Errorf("cluster %s: no members", e.Id)
			}
			for _, m := range e.Members {
				member, ok := cfg.FindEss(m)
				if !ok {
					return fmt.Errorf("cluster %s: unknown member %q", e.Id, m)
				}
				if member.Kind == EssKindCluster {
					return fmt.Errorf("cluster %s: member %s is a cluster", e.Id, m)
				}
			}
		default:
			return fmt.Errorf("ess %s: unknown kind %q", e.Id, e.Kind)
		}
	}
	return nil
}

func checkSimulatorEss(e EssConfig) error {
	s := e.Simulator
	switch {
	case s.Soc < 0 || s.Soc > 100:
		return fmt.Errorf("ess %s: simulator.soc should be in [0, 100]", e.Id)
	case s.CapacityWh <= 0:
		return fmt.Errorf("ess %s: simulator.capacity_wh should be > 0", e.Id)
	case s.MaxApparentPower <= 0:
		return fmt.Errorf("ess %s: simulator.max_apparent_power should be > 0", e.Id)
	case s.MaxChargePower < 0 || s.MaxDischargePower < 0 || s.MaxReactivePower < 0:
		return fmt.Errorf("ess %s: simulator power limits should be >= 0", e.Id)
	case s.LatencyMillis < 0:
		return fmt.Errorf("ess %s: simulator.latency_millis should be >= 0", e.Id)
	}
	return nil
}

func (cfg *Config) validateMeters() error {
	seen := map[string]bool{}
	for _, m := range cfg.Meters {
		if err := checkId("meter", m.Id, seen); err != nil {
			return err
		}
		if err := checkDriver("meter "+m.Id, m.Driver, m.Modbus); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) validateControllers() error {
	seen := map[string]bool{}
	hasMeter := func(id string) bool {
		return slices.ContainsFunc(cfg.Meters, func(m MeterConfig) bool { return m.Id == id })
	}
	for _, c := range cfg.Controllers {
		if err := checkId("controller", c.Id, seen); err != nil {
			return err
		}
		if _, ok := cfg.FindEss(c.Ess); !ok {
			return fmt.Errorf("controller %s: unknown ess %q", c.Id, c.Ess)
		}
		if !slices.Contains([]string{"", "ALL", "L1", "L2", "L3", "all", "l1", "l2", "l3"}, c.Phase) {
			return fmt.Errorf("controller %s: unknown phase %q", c.Id, c.Phase)
		}
		switch c.Type {
		case ControllerFixActivePower:
		case ControllerLimitActivePower:
			if c.MinPower == nil && c.MaxPower == nil {
				return fmt.Errorf("controller %s: min_power or max_power is required", c.Id)
			}
			if c.MinPower != nil && c.MaxPower != nil && *c.MinPower > *c.MaxPower {
				return fmt.Errorf("controller %s: min_power > max_power", c.Id)
			}
		case ControllerBalancing:
			if !hasMeter(c.Meter) {
				return fmt.Errorf("controller %s: unknown meter %q", c.Id, c.Meter)
			}
		case ControllerForceCharge:
			if !hasMeter(c.Meter) {
				return fmt.Errorf("controller %s: unknown meter %q", c.Id, c.Meter)
			}
			if c.TargetSoc <= 0 || c.TargetSoc > 100 {
				return fmt.Errorf("controller %s: target_soc should be in (0, 100]", c.Id)
			}
			if c.MaxRatePowerIncrease <= 0 {
				return fmt.Errorf("controller %s: max_rate_power_increase should be > 0", c.Id)
			}
			if c.MaxImportPower <= 0 || c.SafetyMarginPower >= c.MaxImportPower {
				return fmt.Errorf("controller %s: safety_margin_power must be < max_import_power", c.Id)
			}
		default:
			return fmt.Errorf("controller %s: unknown type %q", c.Id, c.Type)
		}
	}
	return nil
}

func checkId(kind, id string, seen map[string]bool) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid %s id %q. can only contain lowercase letters, numbers and underscores", kind, id)
	}
	if seen[id] {
		return fmt.Errorf("duplicated %s id %q", kind, id)
	}
	seen[id] = true
	return nil
}

func checkDriver(owner, driver string, modbus ModbusConfig) error {
	switch driver {
	case DriverSimulator:
		return nil
	case DriverSunSpec:
		if modbus.Host == "" || modbus.Port == 0 {
			return fmt.Errorf("%s: modbus.host and modbus.port are required", owner)
		}
		return nil
	}
	return fmt.Errorf("%s: unknown driver %q", owner, driver)
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn":
		return zapcore.WarnLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
