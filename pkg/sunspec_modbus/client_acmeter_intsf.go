package sunspec_modbus

import (
	"errors"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type acMeterIntSFModbusBlocks struct {
	common  uint16
	acMeter uint16
}

func (blk *acMeterIntSFModbusBlocks) identify(block modbusBlock) bool {
	switch {
	case block.id == SUNSPEC_WK_COMMON:
		blk.common = block.baseAddr
	case block.id >= SUNSPEC_WK_METERS_MIN && block.id <= SUNSPEC_WK_METERS_MAX:
		blk.acMeter = block.baseAddr
	}
	return blk.common > 0 && blk.acMeter > 0
}

// ACMeterIntSFModbusReader reads the grid meter reachable through the primary inverter gateway.
type ACMeterIntSFModbusReader struct {
	ModbusClient
	blocks        acMeterIntSFModbusBlocks
	ignoreFronius bool
}

func CreateACMeterIntSFModbusReader(ip string, port uint, acMeterAddress uint8, timeout time.Duration,
	ignoreFronius bool, logger *zap.Logger, instrumentation *ModbusInstrument) (ACMeterModbusReader, error) {
	client, err := dialModbus(ip, port, acMeterAddress, timeout, logger, "acMeter", instrumentation)
	if err != nil {
		return nil, err
	}
	return &ACMeterIntSFModbusReader{
		ModbusClient:  client,
		ignoreFronius: ignoreFronius,
	}, nil
}

func (reader *ACMeterIntSFModbusReader) Open() error {
	if err := reader.client.Open(); err != nil {
		return err
	}
	return reader.survey()
}

func (reader ACMeterIntSFModbusReader) Close() error {
	return reader.client.Close()
}

func (reader ACMeterIntSFModbusReader) Validate() error {
	marker, err := reader.readString(sunspecMarkerAddr, 4)
	if err != nil {
		return err
	}
	if marker != "SunS" {
		return errors.New("could not find a SunSpec smart meter")
	}
	if reader.ignoreFronius {
		return nil
	}
	manufacturer, err := reader.readString(sunspecMarkerAddr+4, 32)
	if err != nil {
		return err
	}
	if manufacturer != "Fronius" {
		return errors.New("could not find a Fronius smart meter")
	}
	return nil
}

func (reader ACMeterIntSFModbusReader) GetInfo() (*ACMeterInfo, error) {
	common, err := reader.readCommonInfo(reader.blocks.common)
	if err != nil {
		return nil, err
	}
	return &ACMeterInfo{
		Manufacturer: common.manufacturer,
		Model:        common.model,
		Version:      common.version,
		Serial:       common.serial,
	}, nil
}

func (reader ACMeterIntSFModbusReader) GetCurrentPowerFlowWatt() (float64, error) {
	regs, err := reader.readRegisters(reader.blocks.acMeter+18, 5, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	// W at +18, W_SF at +22
	return reader.applySFint16(int16(regs[0]), regs[4]), nil
}

func (reader *ACMeterIntSFModbusReader) survey() error {
	blocks := acMeterIntSFModbusBlocks{}
	if err := reader.walkBlocks(10, blocks.identify); err != nil {
		return err
	}
	if blocks.common == 0 || blocks.acMeter == 0 {
		return errors.New("could not find all required sunspec blocks (common, ac_meter)")
	}
	reader.blocks = blocks
	return nil
}
