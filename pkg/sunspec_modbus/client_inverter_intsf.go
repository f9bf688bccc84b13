package sunspec_modbus

import (
	"errors"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// InverterIntSFModbusReader talks to a SunSpec inverter using the integer + scale factor models.
// Both the primary and the aux inverter use it. Only the aux one is ever written to.
type InverterIntSFModbusReader struct {
	ModbusClient

	logger        *zap.Logger
	blocks        inverterIntSFModbusBlocks
	ignoreFronius bool
}

func CreateInverterIntSFModbusReader(ip string, port uint, inverterAddress uint8, timeout time.Duration,
	ignoreFronius bool, logger *zap.Logger, instrumentation *ModbusInstrument) (InverterModbusReader, error) {
	client, err := dialModbus(ip, port, inverterAddress, timeout, logger, "inverter", instrumentation)
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
	return inv.survey()
}

func (inv InverterIntSFModbusReader) Close() error {
	return inv.client.Close()
}

func (inv InverterIntSFModbusReader) Validate() error {
	if inv.ignoreFronius {
		return nil
	}
	manufacturer, err := inv.readString(inv.blocks.common+2, 32)
	if err != nil {
		return err
	}
	if manufacturer != "Fronius" {
		return errors.New("could not find a Fronius inverter")
	}
	return nil
}

func (inv InverterIntSFModbusReader) GetInfo() (*InverterInfo, error) {
	common, err := inv.readCommonInfo(inv.blocks.common)
	if err != nil {
		return nil, err
	}
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
		Manufacturer:      common.manufacturer,
		Model:             common.model,
		Version:           common.version,
		Serial:            common.serial,
		MaxRatedPowerWatt: uint32(inv.applySF(pow, powSF)),
		HasStorage:        hasStorage,
	}, nil
}

// GetPowerFlow reads AC output and the DC side of the MPPT model.
// With 3 or 4 modules the last two are battery charge and discharge.
func (inv InverterIntSFModbusReader) GetPowerFlow() (*InverterPowerFlow, error) {
	acpower, err := inv.readRegisters(inv.blocks.inverter+14, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	dcPowerSF, err := inv.readRegister(inv.blocks.mppt+4, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	nMods, err := inv.readRegister(inv.blocks.mppt+8, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}

	var pvModules []uint8
	switch nMods {
	case 1, 3:
		pvModules = []uint8{0}
	case 2, 4:
		pvModules = []uint8{0, 1}
	}
	var pvPower float64
	for _, idx := range pvModules {
		p, err := inv.readMPPTPower(idx, dcPowerSF)
		if err != nil {
			return nil, err
		}
		pvPower += p
	}

	var chargePower, dischargePower float64
	if nMods == 3 || nMods == 4 {
		if chargePower, err = inv.readMPPTPower(uint8(nMods-2), dcPowerSF); err != nil {
			return nil, err
		}
		if dischargePower, err = inv.readMPPTPower(uint8(nMods-1), dcPowerSF); err != nil {
			return nil, err
		}
	}

	return &InverterPowerFlow{
		ACPowerWatt:               inv.applySFint16(int16(acpower[0]), acpower[1]),
		PVPowerWatt:               pvPower,
		BatteryChargePowerWatt:    chargePower,
		BatteryDischargePowerWatt: dischargePower,
		BatteryDCPowerFlowWatt:    dischargePower - chargePower,
	}, nil
}

// readMPPTPower returns the scaled DC power of one module. 0xFFFF (not implemented) reads as 0.
func (inv InverterIntSFModbusReader) readMPPTPower(index uint8, sf uint16) (float64, error) {
	addr := inv.blocks.mppt + 10 + 20*uint16(index) + 11
	raw, err := inv.readRegister(addr, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	if int16(raw) == -1 {
		return 0, nil
	}
	return inv.applySF(raw, sf), nil
}
