package bridge

import (
	"fmt"
	"time"

	"github.com/berfenger/frostems/internal/config"
	"github.com/berfenger/frostems/internal/core/port"
	"github.com/berfenger/frostems/pkg/sunspec_modbus"
	"go.uber.org/zap"
)

// NewBridges creates one bridge per physical ess and per meter. Simulated
// devices share a single site.
func NewBridges(cfg *config.Config, logger *zap.Logger) ([]port.DeviceBridge, error) {
	opts := Options{
		PollInterval: time.Duration(cfg.Bridge.PollIntervalMillis) * time.Millisecond,
		Timeout:      time.Duration(cfg.Bridge.TimeoutMillis) * time.Millisecond,
	}
	revert := time.Duration(cfg.Bridge.RevertTimeSeconds) * time.Second
	site := NewSite()

	var bridges []port.DeviceBridge
	for _, ess := range cfg.Ess {
		if ess.Kind == config.EssKindCluster {
			continue
		}
		var device Device
		switch ess.Driver {
		case config.DriverSimulator:
			device = NewSimulatedEss(ess, site, nil)
		case config.DriverSunSpec:
			reader, err := sunspec_modbus.CreateInverterIntSFModbusReader(ess.Modbus.Host, ess.Modbus.Port, ess.Modbus.UnitId,
				opts.Timeout, ess.Modbus.IgnoreFronius, logger, nil)
			if err != nil {
				return nil, fmt.Errorf("ess %s: %w", ess.Id, err)
			}
			device = NewSunSpecEss(ess.Id, reader, revert, logger)
		default:
			return nil, fmt.Errorf("ess %s: unknown driver %q", ess.Id, ess.Driver)
		}
		bridges = append(bridges, New(ess.Id, []string{ess.Id}, device, opts, logger))
	}

	for _, meter := range cfg.Meters {
		var device Device
		switch meter.Driver {
		case config.DriverSimulator:
			device = NewSimulatedMeter(meter, site)
		case config.DriverSunSpec:
			reader, err := sunspec_modbus.CreateACMeterIntSFModbusReader(meter.Modbus.Host, meter.Modbus.Port, meter.Modbus.UnitId,
				opts.Timeout, meter.Modbus.IgnoreFronius, logger, nil)
			if err != nil {
				return nil, fmt.Errorf("meter %s: %w", meter.Id, err)
			}
			device = NewSunSpecMeter(meter.Id, reader, logger)
		default:
			return nil, fmt.Errorf("meter %s: unknown driver %q", meter.Id, meter.Driver)
		}
		bridges = append(bridges, New("meter_"+meter.Id, nil, device, opts, logger))
	}
	return bridges, nil
}
