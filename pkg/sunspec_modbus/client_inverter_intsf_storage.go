package sunspec_modbus

import (
	"errors"

	"github.com/simonvetter/modbus"
)

var ErrStorageNotSupported = errors.New("sunspec: storage block not supported")

func (inv *InverterIntSFModbusReader) HasStorage() (bool, error) {
	storageConn, err := inv.readRegister(inv.blocks.status+3, modbus.HOLDING_REGISTER)
	if err != nil {
		return false, err
	}
	// check storage connected
	if storageConn&0x0001 == 0 {
		return false, nil
	}
	// check valid sunspec storage
	return inv.blocks.storage > 0, nil
}

func (inv *InverterIntSFModbusReader) setStorageChargeControl(outWRte float64, inWRte float64, controlOut bool, controlIn bool, rvrtTimeSeconds int32) error {

	if inv.blocks.storage == 0 {
		return ErrStorageNotSupported
	}

	inoutSF, err := inv.readRegister(inv.blocks.storage+25, modbus.HOLDING_REGISTER)
	if err != nil {
		return err
	}
	control := uint16(0)
	if controlOut {
		control = control | 0x02
	}
	if controlIn {
		control = control | 0x01
	}

	out := int16(applySFfloat64Inv(outWRte, inoutSF))
	in := int16(applySFfloat64Inv(inWRte, inoutSF))

	err = inv.writeRegisters(inv.blocks.storage+12, []uint16{uint16(out), uint16(in)})
	if err != nil {
		return err
	}
	err = inv.writeRegister(inv.blocks.storage+5, control)
	if err != nil {
		return err
	}
	if rvrtTimeSeconds >= 0 {
		err = inv.writeRegister(inv.blocks.storage+15, uint16(rvrtTimeSeconds))
		if err != nil {
			return err
		}
	}
	return nil
}

func (inv *InverterIntSFModbusReader) SetStorageControl(params StorageControlParams) error {
	maxCharge, err := inv.getMaxChargePower()
	if err != nil {
		return err
	}
	outWRte, inWRte, controlOut, controlIn, err := storageControlRates(params, float64(maxCharge))
	if err != nil {
		return err
	}
	return inv.setStorageChargeControl(outWRte, inWRte, controlOut, controlIn, int32(params.RevertTimeSeconds))
}

func (inv *InverterIntSFModbusReader) SetStoragePower(watts int32, revertTimeSeconds uint32) error {
	return inv.SetStorageControl(StoragePowerParams(watts, revertTimeSeconds))
}

func (inv *InverterIntSFModbusReader) DisableStorageControl() error {
	return inv.setStorageChargeControl(100, 100, false, false, -1)
}

func (inv *InverterIntSFModbusReader) GetStorageState() (*StorageState, error) {
	if inv.blocks.storage == 0 {
		return nil, ErrStorageNotSupported
	}
	regs, err := inv.readRegisters(inv.blocks.storage+2, 24, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	soc := applySF(regs[6], regs[20])
	// if state == off, soc = 0
	if regs[9] == StorageChargeStatusOff {
		soc = 0
	}

	return &StorageState{
		StateOfCharge:      soc,
		MaxChargePowerWatt: uint32(applySF(regs[0], regs[16])),
		ChargeStatus:       regs[9],
		ChargeStatusStr:    StorageChargeStatusToString(regs[9]),
	}, nil
}

func (inv *InverterIntSFModbusReader) getMaxChargePower() (int, error) {

	if inv.blocks.storage == 0 {
		return 0, ErrStorageNotSupported
	}

	wChaMax, err := inv.readRegister(inv.blocks.storage+2, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	wChaMaxSF, err := inv.readRegister(inv.blocks.storage+18, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	return int(applySF(wChaMax, wChaMaxSF)), nil
}

// StoragePowerParams pins the battery power to watts by setting both bounds of
// the active direction. Zero holds the battery idle.
func StoragePowerParams(watts int32, revertTimeSeconds uint32) StorageControlParams {
	params := StorageControlParams{
		MinChargePowerWatt:    -1,
		MaxChargePowerWatt:    -1,
		MinDischargePowerWatt: -1,
		MaxDischargePowerWatt: -1,
		RevertTimeSeconds:     revertTimeSeconds,
	}
	switch {
	case watts > 0:
		params.MinDischargePowerWatt = watts
		params.MaxDischargePowerWatt = watts
	case watts < 0:
		params.MinChargePowerWatt = -watts
		params.MaxChargePowerWatt = -watts
	default:
		params.MaxChargePowerWatt = 0
		params.MaxDischargePowerWatt = 0
	}
	return params
}

// storageControlRates maps power bounds to the OutWRte / InWRte registers, in
// percent of WChaMax. A minimum in one direction is a negative rate of the
// opposite register.
func storageControlRates(params StorageControlParams, maxChargePower float64) (outWRte, inWRte float64, controlOut, controlIn bool, err error) {
	if maxChargePower <= 0 {
		return 0, 0, false, false, errors.New("sunspec: unknown storage max charge power")
	}
	outWRte, inWRte = 100, 100
	pct := func(watts int32) float64 {
		return clampRate(float64(watts) / maxChargePower * 100)
	}
	if params.MinChargePowerWatt >= 0 {
		outWRte = -pct(params.MinChargePowerWatt)
		controlOut = true
	}
	if params.MaxChargePowerWatt >= 0 {
		inWRte = pct(params.MaxChargePowerWatt)
		controlIn = true
	}
	if params.MinDischargePowerWatt >= 0 {
		inWRte = -pct(params.MinDischargePowerWatt)
		controlIn = true
	}
	if params.MaxDischargePowerWatt >= 0 {
		outWRte = pct(params.MaxDischargePowerWatt)
		controlOut = true
	}
	return outWRte, inWRte, controlOut, controlIn, nil
}

func clampRate(pct float64) float64 {
	return min(max(pct, 0), 100)
}
