package sunspec_modbus

import (
	"errors"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type InverterIntSFModbusReader struct {
	ModbusClient

	logger        *zap.Logger
	blocks        inverterIntSFModbusBlocks
	ignoreFronius bool
}

func CreateInverterIntSFModbusReader(host string, port uint, inverterAddress uint8, timeout time.Duration,
	ignoreFronius bool, logger *zap.Logger, instrumentation *ModbusInstrument) (InverterModbusReader, error) {
	logger = logger.With(zap.String("target", "inverter"), zap.Uint8("inverter", inverterAddress))
	client, err := newModbusClient(host, port, inverterAddress, timeout, logger, instrumentation)
	if err != nil {
		return nil, err
	}
	return &InverterIntSFModbusReader{
		ModbusClient:  client,
		logger:        logger,
		ignoreFronius: ignoreFronius,
	}, nil
}

func (inv *InverterIntSFModbusReader) Open() error {
	if err := inv.client.Open(); err != nil {
		return err
	}
	if err := inv.survey(); err != nil {
		return err
	}
	inv.logger.Debug("sunspec inverter surveyed", zap.Any("blocks", inv.blocks))
	return nil
}

func (inv *InverterIntSFModbusReader) Close() error {
	return inv.client.Close()
}

func (inv *InverterIntSFModbusReader) Validate() error {
	// check manufacturer
	if !inv.ignoreFronius {
		str, err := inv.readString(inv.blocks.common+2, 32)
		if err != nil {
			return err
		}
		if str != "Fronius" {
			return errors.New("could not find a Fronius inverter")
		}
	}
	return nil
}

func (inv *InverterIntSFModbusReader) GetInfo() (*InverterInfo, error) {
	manufacturer, err := inv.readString(inv.blocks.common+2, 32)
	if err != nil {
		return nil, err
	}
	model, err := inv.readString(inv.blocks.common+18, 32)
	if err != nil {
		return nil, err
	}
	version, err := inv.readString(inv.blocks.common+42, 16)
	if err != nil {
		return nil, err
	}
	serial, err := inv.readString(inv.blocks.common+50, 32)
	if err != nil {
		return nil, err
	}

	// WRtg and WRtg_SF of the nameplate block follow the inverter block
	pow, err := inv.readRegister(inv.blocks.inverter+82, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	powSF, err := inv.readRegister(inv.blocks.inverter+102, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	hasStorage, err := inv.HasStorage()
	if err != nil {
		return nil, err
	}

	return &InverterInfo{
		Manufacturer:      manufacturer,
		Model:             model,
		Version:           version,
		Serial:            serial,
		MaxRatedPowerWatt: uint32(applySF(pow, powSF)),
		HasStorage:        hasStorage,
	}, nil
}

func (inv *InverterIntSFModbusReader) GetPowerFlow() (*InverterPowerFlow, error) {
	// W, W_SF
	acpower, err := inv.readRegisters(inv.blocks.inverter+14, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	// VAr, VAr_SF
	reactive, err := inv.readRegisters(inv.blocks.inverter+20, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	// dc power sf
	dcPowerSF, err := inv.readRegister(inv.blocks.mppt+4, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	var chargeDCPower float64 = 0
	var dischargeDCPower float64 = 0
	nMods, err := inv.readRegister(inv.blocks.mppt+8, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	if nMods == 3 || nMods == 4 { // 1 or 2 MPPT + Battery
		chargeDCPowerRaw, err := inv.readMPPTPower(uint8(nMods - 2))
		if err != nil {
			return nil, err
		}
		chargeDCPower = applySF(chargeDCPowerRaw, dcPowerSF)
		dischargeDCPowerRaw, err := inv.readMPPTPower(uint8(nMods - 1))
		if err != nil {
			return nil, err
		}
		dischargeDCPower = applySF(dischargeDCPowerRaw, dcPowerSF)
	}

	return &InverterPowerFlow{
		ACPowerWatt:               applySFint16(int16(acpower[0]), acpower[1]),
		ReactivePowerVar:          applySFint16(int16(reactive[0]), reactive[1]),
		BatteryChargePowerWatt:    chargeDCPower,
		BatteryDischargePowerWatt: dischargeDCPower,
		BatteryDCPowerFlowWatt:    dischargeDCPower - chargeDCPower,
	}, nil
}

func (inv *InverterIntSFModbusReader) readMPPTPower(index uint8) (uint16, error) {
	baseAddr := uint16(inv.blocks.mppt + 10 + 20*uint16(index))
	// dc power
	dcpower, err := inv.readRegister(baseAddr+11, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	if int16(dcpower) == -1 {
		dcpower = 0
	}
	return dcpower, nil
}
