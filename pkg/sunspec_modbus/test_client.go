package sunspec_modbus

import "sync"

func CreateTestACMeterModbusReader() (*TestACMeterModbusReader, error) {
	return &TestACMeterModbusReader{
		PowerFlowWatt: 300,
	}, nil
}

func CreateTestInverterModbusReader() (*TestInverterModbusReader, error) {
	return &TestInverterModbusReader{
		Info: InverterInfo{
			Manufacturer:      "Fronius",
			Model:             "Primo GEN24 3.0 Plus",
			Version:           "1.30.7-1",
			Serial:            "34119102",
			MaxRatedPowerWatt: 3000,
			HasStorage:        true,
		},
		PowerFlow: InverterPowerFlow{
			ACPowerWatt: 0,
			PVPowerWatt: 0,
		},
		Storage: StorageState{
			StateOfCharge:   50,
			MaxCapacityWatt: 7680,
			ChargeStatus:    StorageChargeStatusHolding,
			ChargeStatusStr: StorageChargeStatusToString(StorageChargeStatusHolding),
		},
	}, nil
}

// ACMeter

// TestACMeterModbusReader returns fixed values. Err, when set, is returned by every read.
type TestACMeterModbusReader struct {
	mu            sync.Mutex
	PowerFlowWatt float64
	Err           error
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
		Serial:       "41370102",
	}, nil
}

func (reader *TestACMeterModbusReader) GetCurrentPowerFlowWatt() (float64, error) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	if reader.Err != nil {
		return 0, reader.Err
	}
	return reader.PowerFlowWatt, nil
}

func (reader *TestACMeterModbusReader) Set(powerFlowWatt float64, err error) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.PowerFlowWatt = powerFlowWatt
	reader.Err = err
}

// Inverter

// TestInverterModbusReader returns fixed values and records the storage control writes.
type TestInverterModbusReader struct {
	mu        sync.Mutex
	Info      InverterInfo
	PowerFlow InverterPowerFlow
	Storage   StorageState
	Err       error

	storageControl *StorageControlParams
	writes         int
}

func (inv *TestInverterModbusReader) Open() error {
	return nil
}

func (inv *TestInverterModbusReader) Close() error {
	return nil
}

func (inv *TestInverterModbusReader) Validate() error {
	return nil
}

func (inv *TestInverterModbusReader) GetInfo() (*InverterInfo, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	info := inv.Info
	return &info, nil
}

func (inv *TestInverterModbusReader) GetPowerFlow() (*InverterPowerFlow, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.Err != nil {
		return nil, inv.Err
	}
	pf := inv.PowerFlow
	return &pf, nil
}

func (inv *TestInverterModbusReader) HasStorage() (bool, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.Info.HasStorage, nil
}

func (inv *TestInverterModbusReader) SetStorageControl(params StorageControlParams) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.Err != nil {
		return inv.Err
	}
	inv.storageControl = &params
	inv.writes++
	return nil
}

func (inv *TestInverterModbusReader) DisableStorageControl() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.storageControl = nil
	inv.writes++
	return nil
}

func (inv *TestInverterModbusReader) GetStorageState() (*StorageState, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.Err != nil {
		return nil, inv.Err
	}
	st := inv.Storage
	return &st, nil
}

// StorageControl returns the last written storage control (nil when none or disabled) and the number of writes.
func (inv *TestInverterModbusReader) StorageControl() (*StorageControlParams, int) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.storageControl, inv.writes
}

func (inv *TestInverterModbusReader) SetPowerFlow(pf InverterPowerFlow) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.PowerFlow = pf
}

func (inv *TestInverterModbusReader) SetStateOfCharge(soc float64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.Storage.StateOfCharge = soc
}

func (inv *TestInverterModbusReader) SetErr(err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.Err = err
}

// ensure interface compliance
var _ InverterModbusReader = (*TestInverterModbusReader)(nil)
var _ ACMeterModbusReader = (*TestACMeterModbusReader)(nil)
var _ InverterModbusReader = (*InverterIntSFModbusReader)(nil)
var _ ACMeterModbusReader = (*ACMeterIntSFModbusReader)(nil)
