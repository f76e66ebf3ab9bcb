package bridge

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/berfenger/frostems/internal/core/domain"
	"github.com/berfenger/frostems/pkg/sunspec_modbus"
	"go.uber.org/zap"
)

// SunSpecEss drives a hybrid inverter with storage over SunSpec Modbus TCP.
// The whole inverter is a single symmetric unit.
type SunSpecEss struct {
	id         string
	reader     sunspec_modbus.InverterModbusReader
	revertTime time.Duration
	info       *sunspec_modbus.InverterInfo

	logger *zap.Logger
}

func NewSunSpecEss(id string, reader sunspec_modbus.InverterModbusReader, revertTime time.Duration, logger *zap.Logger) *SunSpecEss {
	return &SunSpecEss{
		id:         id,
		reader:     reader,
		revertTime: revertTime,
		logger:     logger.With(zap.String("ess", id)),
	}
}

func (ess *SunSpecEss) Open() error {
	if err := ess.reader.Open(); err != nil {
		return err
	}
	if err := ess.reader.Validate(); err != nil {
		return errors.Join(err, ess.reader.Close())
	}
	hasStorage, err := ess.reader.HasStorage()
	if err != nil {
		return errors.Join(err, ess.reader.Close())
	}
	if !hasStorage {
		return errors.Join(fmt.Errorf("ess %s: %w", ess.id, sunspec_modbus.ErrStorageNotSupported), ess.reader.Close())
	}
	info, err := ess.reader.GetInfo()
	if err != nil {
		return errors.Join(err, ess.reader.Close())
	}
	ess.info = info
	ess.logger.Info("sunspec ess connected",
		zap.String("manufacturer", info.Manufacturer),
		zap.String("model", info.Model),
		zap.Uint32("maxRatedPower", info.MaxRatedPowerWatt))
	return nil
}

func (ess *SunSpecEss) Read() (domain.Measurements, error) {
	if ess.info == nil {
		return domain.Measurements{}, fmt.Errorf("ess %s: not connected", ess.id)
	}
	flow, err := ess.reader.GetPowerFlow()
	if err != nil {
		return domain.Measurements{}, err
	}
	storage, err := ess.reader.GetStorageState()
	if err != nil {
		return domain.Measurements{}, err
	}
	rated := int(ess.info.MaxRatedPowerWatt)
	inv := domain.Inverter{
		Id:               domain.InverterId{EssId: ess.id, Phase: domain.PhaseAll},
		MinActivePower:   -min(int(storage.MaxChargePowerWatt), rated),
		MaxActivePower:   rated,
		MaxApparentPower: rated,
	}
	return domain.Measurements{
		Inverters: []domain.InverterState{{
			Inverter:      inv,
			Soc:           storage.StateOfCharge,
			SocKnown:      true,
			ActivePower:   int(math.Round(flow.BatteryDCPowerFlowWatt)),
			ReactivePower: int(math.Round(flow.ReactivePowerVar)),
		}},
		Timestamp: time.Now(),
	}, nil
}

func (ess *SunSpecEss) Write(setpoints map[domain.InverterId]domain.Setpoint) error {
	sp, ok := setpoints[domain.InverterId{EssId: ess.id, Phase: domain.PhaseAll}]
	if !ok {
		return nil
	}
	if sp.ReactivePower != 0 {
		ess.logger.Debug("sunspec ess ignores reactive setpoint", zap.Int("reactive", sp.ReactivePower))
	}
	return ess.reader.SetStoragePower(int32(sp.ActivePower), uint32(ess.revertTime.Seconds()))
}

// Close hands the battery back to the inverter before disconnecting.
func (ess *SunSpecEss) Close() error {
	if ess.info == nil {
		return ess.reader.Close()
	}
	ess.info = nil
	return errors.Join(ess.reader.DisableStorageControl(), ess.reader.Close())
}

type SunSpecMeter struct {
	id     string
	reader sunspec_modbus.ACMeterModbusReader

	logger *zap.Logger
}

func NewSunSpecMeter(id string, reader sunspec_modbus.ACMeterModbusReader, logger *zap.Logger) *SunSpecMeter {
	return &SunSpecMeter{
		id:     id,
		reader: reader,
		logger: logger.With(zap.String("meter", id)),
	}
}

func (meter *SunSpecMeter) Open() error {
	if err := meter.reader.Open(); err != nil {
		return err
	}
	if err := meter.reader.Validate(); err != nil {
		return errors.Join(err, meter.reader.Close())
	}
	info, err := meter.reader.GetInfo()
	if err != nil {
		return errors.Join(err, meter.reader.Close())
	}
	meter.logger.Info("sunspec meter connected", zap.String("manufacturer", info.Manufacturer), zap.String("model", info.Model))
	return nil
}

func (meter *SunSpecMeter) Read() (domain.Measurements, error) {
	watts, err := meter.reader.GetCurrentPowerFlowWatt()
	if err != nil {
		return domain.Measurements{}, err
	}
	return domain.Measurements{
		Meters:    []domain.MeterState{{Id: meter.id, ActivePower: int(math.Round(watts))}},
		Timestamp: time.Now(),
	}, nil
}

func (meter *SunSpecMeter) Write(setpoints map[domain.InverterId]domain.Setpoint) error {
	if len(setpoints) > 0 {
		return fmt.Errorf("meter %s: setpoints not supported", meter.id)
	}
	return nil
}

func (meter *SunSpecMeter) Close() error {
	return meter.reader.Close()
}
