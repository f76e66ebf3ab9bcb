package sunspec_modbus

import (
	"sync"
)

func CreateTestACMeterModbusReader() (ACMeterModbusReader, error) {
	return &TestACMeterModbusReader{PowerFlowWatt: -1250}, nil
}

func CreateTestInverterModbusReader() (InverterModbusReader, error) {
	return &TestInverterModbusReader{}, nil
}

// ACMeter

type TestACMeterModbusReader struct {
	PowerFlowWatt float64
}

func (reader *TestACMeterModbusReader) Open() error {
	return nil
}

func (reader *TestACMeterModbusReader) Close() error {
	return nil
}

func (reader *TestACMeterModbusReader) Validate() error {
	return nil
}

func (reader *TestACMeterModbusReader) GetInfo() (*ACMeterInfo, error) {
	return &ACMeterInfo{
		Manufacturer: "Fronius",
		Model:        "Smart Meter TS 65A-3",
		Version:      "1.3",
	}, nil
}

func (reader *TestACMeterModbusReader) GetCurrentPowerFlowWatt() (float64, error) {
	return reader.PowerFlowWatt, nil
}

// Inverter

// TestInverterModbusReader answers with fixed values and records every
// storage control write.
type TestInverterModbusReader struct {
	mu       sync.Mutex
	writes   []StorageControlParams
	disabled int
	opened   bool
}

func (inv *TestInverterModbusReader) Open() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.opened = true
	return nil
}

func (inv *TestInverterModbusReader) Close() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.opened = false
	return nil
}

func (inv *TestInverterModbusReader) Validate() error {
	return nil
}

func (inv *TestInverterModbusReader) GetInfo() (*InverterInfo, error) {
	return &InverterInfo{
		Manufacturer:      "Fronius",
		Model:             "Primo GEN24 4.0",
		Version:           "1.30.7-1",
		MaxRatedPowerWatt: 4000,
		HasStorage:        true,
	}, nil
}

func (inv *TestInverterModbusReader) GetPowerFlow() (*InverterPowerFlow, error) {
	return &InverterPowerFlow{
		ACPowerWatt:               320.2,
		ReactivePowerVar:          12.4,
		BatteryChargePowerWatt:    572.45,
		BatteryDischargePowerWatt: 0,
		BatteryDCPowerFlowWatt:    -572.45,
	}, nil
}

func (inv *TestInverterModbusReader) HasStorage() (bool, error) {
	return true, nil
}

func (inv *TestInverterModbusReader) SetStorageControl(params StorageControlParams) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.writes = append(inv.writes, params)
	return nil
}

func (inv *TestInverterModbusReader) SetStoragePower(watts int32, revertTimeSeconds uint32) error {
	return inv.SetStorageControl(StoragePowerParams(watts, revertTimeSeconds))
}

func (inv *TestInverterModbusReader) DisableStorageControl() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.disabled++
	return nil
}

func (inv *TestInverterModbusReader) GetStorageState() (*StorageState, error) {
	return &StorageState{
		StateOfCharge:      23.5,
		MaxChargePowerWatt: 5260,
		ChargeStatus:       StorageChargeStatusCharging,
		ChargeStatusStr:    StorageChargeStatusToString(StorageChargeStatusCharging),
	}, nil
}

func (inv *TestInverterModbusReader) Writes() []StorageControlParams {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return append([]StorageControlParams(nil), inv.writes...)
}

func (inv *TestInverterModbusReader) Disabled() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.disabled
}

func (inv *TestInverterModbusReader) IsOpen() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.opened
}
