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
	// GetCurrentPowerFlowWatt returns the signed grid power. Positive = import. Negative = export
	GetCurrentPowerFlowWatt() (float64, error)
}
