package sunspec_modbus

import (
	"errors"
	"math"

	"github.com/simonvetter/modbus"
)

// offsets inside the storage model (124)
const (
	storageWChaMax    = 2
	storageStorCtlMod = 5
	storageOutWRte    = 12
	storageRvrtTms    = 15
	storageWChaMaxSF  = 18
	storageInOutWRSF  = 25
)

var errNoStorageBlock = errors.New("sunspec: storage block not supported")

// storageRates are the OutWRte/InWRte percentages plus the StorCtl_Mod bits to write.
// A negative OutWRte forces charging and a negative InWRte forces discharging.
type storageRates struct {
	outPercent  float64
	inPercent   float64
	controlOut  bool
	controlIn   bool
	revertTimeS int32
}

func (r storageRates) controlMode() uint16 {
	mode := uint16(0)
	if r.controlIn {
		mode |= 0x01
	}
	if r.controlOut {
		mode |= 0x02
	}
	return mode
}

// storageRatesFor converts watt bounds to percentages of WChaMax.
func storageRatesFor(params StorageControlParams, capacityWatt float64) storageRates {
	rates := storageRates{outPercent: 100, inPercent: 100, revertTimeS: int32(params.RevertTimeSeconds)}
	percent := func(w int32) float64 {
		return float64(w) / capacityWatt * 100
	}
	if params.MinChargePowerWatt >= 0 {
		rates.outPercent = -percent(params.MinChargePowerWatt)
		rates.controlOut = true
	}
	if params.MaxChargePowerWatt >= 0 {
		rates.inPercent = percent(params.MaxChargePowerWatt)
		rates.controlIn = true
	}
	if params.MinDischargePowerWatt >= 0 {
		rates.inPercent = -percent(params.MinDischargePowerWatt)
		rates.controlIn = true
	}
	if params.MaxDischargePowerWatt >= 0 {
		rates.outPercent = percent(params.MaxDischargePowerWatt)
		rates.controlOut = true
	}
	return rates
}

func (inv InverterIntSFModbusReader) HasStorage() (bool, error) {
	storageConn, err := inv.readRegister(inv.blocks.status+3, modbus.HOLDING_REGISTER)
	if err != nil {
		return false, err
	}
	if storageConn&0x0001 == 0 {
		return false, nil
	}
	return inv.blocks.storage > 0, nil
}

func (inv InverterIntSFModbusReader) SetStorageControl(params StorageControlParams) error {
	capacity, err := inv.getStorageCapacity()
	if err != nil {
		return err
	}
	if capacity <= 0 {
		return errors.New("sunspec: storage reports no charge capacity")
	}
	return inv.writeStorageRates(storageRatesFor(params, capacity))
}

// DisableStorageControl hands the battery back to the inverter's own logic.
func (inv InverterIntSFModbusReader) DisableStorageControl() error {
	return inv.writeStorageRates(storageRates{outPercent: 100, inPercent: 100, revertTimeS: -1})
}

func (inv InverterIntSFModbusReader) writeStorageRates(rates storageRates) error {
	if inv.blocks.storage == 0 {
		return errNoStorageBlock
	}
	sf, err := inv.readRegister(inv.blocks.storage+storageInOutWRSF, modbus.HOLDING_REGISTER)
	if err != nil {
		return err
	}
	outWRte := int16(inv.applySFfloat64Inv(rates.outPercent, sf))
	inWRte := int16(inv.applySFfloat64Inv(rates.inPercent, sf))

	// rates first, so the mode never enables stale limits
	if err := inv.writeRegisters(inv.blocks.storage+storageOutWRte, []uint16{uint16(outWRte), uint16(inWRte)}); err != nil {
		return err
	}
	if err := inv.writeRegister(inv.blocks.storage+storageStorCtlMod, rates.controlMode()); err != nil {
		return err
	}
	if rates.revertTimeS >= 0 {
		return inv.writeRegister(inv.blocks.storage+storageRvrtTms, uint16(rates.revertTimeS))
	}
	return nil
}

func (inv InverterIntSFModbusReader) GetStorageState() (*StorageState, error) {
	if inv.blocks.storage == 0 {
		return nil, errNoStorageBlock
	}
	regs, err := inv.readRegisters(inv.blocks.storage+2, 24, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	status := regs[9]
	soc := inv.applySF(regs[6], regs[20])
	if status == StorageChargeStatusOff {
		soc = 0
	}
	maxCap := inv.applySF(regs[0], regs[17])

	return &StorageState{
		StateOfCharge:       soc,
		MaxCapacityWatt:     uint32(math.Round(maxCap)),
		CurrentCapacityWatt: uint32(math.Round(soc / 100 * maxCap)),
		ChargeStatus:        status,
		ChargeStatusStr:     StorageChargeStatusToString(status),
	}, nil
}

func (inv InverterIntSFModbusReader) getStorageCapacity() (float64, error) {
	if inv.blocks.storage == 0 {
		return 0, errNoStorageBlock
	}
	regs, err := inv.readRegisters(inv.blocks.storage+storageWChaMax, storageWChaMaxSF-storageWChaMax+1, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	return math.Trunc(inv.applySF(regs[0], regs[storageWChaMaxSF-storageWChaMax])), nil
}
