package sunspec_modbus

import (
	"fmt"
)

// storage states
const (
	StorageChargeStatusOff         = 1
	StorageChargeStatusEmpty       = 2
	StorageChargeStatusDischarging = 3
	StorageChargeStatusCharging    = 4
	StorageChargeStatusFull        = 5
	StorageChargeStatusHolding     = 6
	StorageChargeStatusTest        = 7
)

// storage state strings
const (
	StorageChargeStatusOffStr         = "off"
	StorageChargeStatusEmptyStr       = "empty"
	StorageChargeStatusDischargingStr = "discharging"
	StorageChargeStatusChargingStr    = "charging"
	StorageChargeStatusFullStr        = "full"
	StorageChargeStatusHoldingStr     = "holding"
	StorageChargeStatusTestStr        = "test"
	StorageChargeStatusUnknownStr     = "unknown"
)

func StorageChargeStatusToString(storage uint16) string {
	switch storage {
	case StorageChargeStatusOff:
		return StorageChargeStatusOffStr
	case StorageChargeStatusEmpty:
		return StorageChargeStatusEmptyStr
	case StorageChargeStatusDischarging:
		return StorageChargeStatusDischargingStr
	case StorageChargeStatusCharging:
		return StorageChargeStatusChargingStr
	case StorageChargeStatusFull:
		return StorageChargeStatusFullStr
	case StorageChargeStatusHolding:
		return StorageChargeStatusHoldingStr
	case StorageChargeStatusTest:
		return StorageChargeStatusTestStr
	default:
		return fmt.Sprintf("%s(%d)", StorageChargeStatusUnknownStr, storage)
	}
}

type InverterInfo struct {
	Manufacturer      string
	Model             string
	Version           string
	Serial            string
	MaxRatedPowerWatt uint32
	HasStorage        bool
}

// InverterPowerFlow signs battery flow positive when discharging.
type InverterPowerFlow struct {
	ACPowerWatt               float64
	ReactivePowerVar          float64
	BatteryChargePowerWatt    float64
	BatteryDischargePowerWatt float64
	BatteryDCPowerFlowWatt    float64
}

type StorageState struct {
	StateOfCharge      float64
	MaxChargePowerWatt uint32
	ChargeStatus       uint16
	ChargeStatusStr    string
}

// StorageControlParams bounds the battery power. A negative value leaves the
// bound uncontrolled.
type StorageControlParams struct {
	MinChargePowerWatt    int32
	MaxChargePowerWatt    int32
	MinDischargePowerWatt int32
	MaxDischargePowerWatt int32
	RevertTimeSeconds     uint32
}

type InverterModbusReader interface {
	Open() error
	Close() error
	Validate() error
	GetInfo() (*InverterInfo, error)
	GetPowerFlow() (*InverterPowerFlow, error)

	HasStorage() (bool, error)
	GetStorageState() (*StorageState, error)
	SetStorageControl(params StorageControlParams) error
	// SetStoragePower holds the battery at watts, positive to discharge and
	// negative to charge, until revertTimeSeconds elapse without a new write.
	SetStoragePower(watts int32, revertTimeSeconds uint32) error
	DisableStorageControl() error
}
