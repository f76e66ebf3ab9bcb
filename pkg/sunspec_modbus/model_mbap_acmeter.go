package sunspec_modbus

type ACMeterInfo struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
}

type ACMeterModbusReader interface {
	Open() error
	Close() error
	Validate() error
	GetInfo() (*ACMeterInfo, error)
	// GetCurrentPowerFlowWatt is positive when importing from the grid.
	GetCurrentPowerFlowWatt() (float64, error)
}
