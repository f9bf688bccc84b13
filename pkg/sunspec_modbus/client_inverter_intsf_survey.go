package sunspec_modbus

import (
	"errors"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

const (
	SUNSPEC_WK_COMMON        = 1
	SUNSPEC_WK_INVERTERS_MIN = 101
	SUNSPEC_WK_INVERTERS_MAX = 103
	SUNSPEC_WK_STATUS        = 122
	SUNSPEC_WK_STORAGE       = 124
	SUNSPEC_WK_MPPT          = 160
	SUNSPEC_WK_METERS_MIN    = 201
	SUNSPEC_WK_METERS_MAX    = 204

	sunspecMarkerAddr   = 40000
	sunspecFirstBlock   = 40002
	sunspecEndOfModelId = 0xFFFF
)

var errNotSunSpec = errors.New("sunspec: marker not found at 40000")

type inverterIntSFModbusBlocks struct {
	common   uint16
	inverter uint16
	status   uint16
	mppt     uint16
	storage  uint16
}

// required blocks. storage is optional: a plain PV inverter has none.
func (blk *inverterIntSFModbusBlocks) complete() bool {
	return blk.common > 0 && blk.inverter > 0 && blk.status > 0 && blk.mppt > 0
}

// identify records a block and reports whether nothing else is left to find.
func (blk *inverterIntSFModbusBlocks) identify(block modbusBlock) bool {
	switch {
	case block.id >= SUNSPEC_WK_INVERTERS_MIN && block.id <= SUNSPEC_WK_INVERTERS_MAX:
		blk.inverter = block.baseAddr
	case block.id == SUNSPEC_WK_COMMON:
		blk.common = block.baseAddr
	case block.id == SUNSPEC_WK_STATUS:
		blk.status = block.baseAddr
	case block.id == SUNSPEC_WK_STORAGE:
		blk.storage = block.baseAddr
	case block.id == SUNSPEC_WK_MPPT:
		blk.mppt = block.baseAddr
	}
	return blk.complete() && blk.storage > 0
}

func (inv *InverterIntSFModbusReader) survey() error {
	blocks := inverterIntSFModbusBlocks{}
	if err := inv.walkBlocks(20, blocks.identify); err != nil {
		return err
	}
	if !blocks.complete() {
		return errors.New("could not find all required sunspec blocks (common, inverter, status, mppt)")
	}
	inv.blocks = blocks
	if inv.logger != nil {
		inv.logger.Debug("sunspec blocks found", zap.Uint16("inverter", blocks.inverter),
			zap.Uint16("mppt", blocks.mppt), zap.Uint16("storage", blocks.storage))
	}
	return nil
}

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

// walkBlocks checks the SunSpec marker and visits model headers until visit returns true,
// the end model is reached or maxBlocks headers were read.
func (reader ModbusClient) walkBlocks(maxBlocks int, visit func(modbusBlock) bool) error {
	marker, err := reader.readString(sunspecMarkerAddr, 4)
	if err != nil {
		return err
	}
	if marker != "SunS" {
		return errNotSunSpec
	}

	baseAddr := uint16(sunspecFirstBlock)
	for n := 0; n <= maxBlocks; n++ {
		header, err := reader.readRegisters(baseAddr, 2, modbus.HOLDING_REGISTER)
		if err != nil {
			return err
		}
		block := modbusBlock{id: header[0], length: header[1], baseAddr: baseAddr}
		if block.id == sunspecEndOfModelId || visit(block) {
			return nil
		}
		baseAddr += block.length + 2
	}
	return nil
}
