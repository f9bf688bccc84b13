package sunspec_modbus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	USE_MOCKED_READER = true
)

func TestInfoInverter(t *testing.T) {

	require := require.New(t)

	reader := InverterReader()

	require.NoError(reader.Open())
	require.NoError(reader.Validate())

	nfo, err := reader.GetInfo()
	require.NoError(err)
	fmt.Printf("Inverter Info: %+v\n", nfo)

	st, err := reader.HasStorage()
	require.NoError(err)
	require.True(st)
}

func TestStorageState(t *testing.T) {

	require := require.New(t)

	reader := InverterReader()

	require.NoError(reader.Open())
	require.NoError(reader.Validate())

	stState, err := reader.GetStorageState()
	require.NoError(err)
	fmt.Printf("Storage State: %+v\n", stState)
	require.GreaterOrEqual(stState.StateOfCharge, 0.0)
	require.LessOrEqual(stState.StateOfCharge, 100.0)

	flow, err := reader.GetPowerFlow()
	require.NoError(err)
	fmt.Printf("Inverter Power Flow: %+v\n", flow)
}

func TestMeter(t *testing.T) {

	require := require.New(t)

	reader := ACMeterReader()

	require.NoError(reader.Open())
	require.NoError(reader.Validate())

	info, err := reader.GetInfo()
	require.NoError(err)
	fmt.Printf("Meter info: %+v\n", info)

	power, err := reader.GetCurrentPowerFlowWatt()
	require.NoError(err)
	fmt.Printf("Meter power flow: %f\n", power)
}

func TestStorageSetpointParams(t *testing.T) {

	assert := assert.New(t)

	charge := StorageSetpointParams(600, 60)
	assert.EqualValues(600, charge.MinChargePowerWatt)
	assert.EqualValues(600, charge.MaxChargePowerWatt)
	assert.EqualValues(-1, charge.MinDischargePowerWatt)
	assert.EqualValues(-1, charge.MaxDischargePowerWatt)
	assert.EqualValues(60, charge.RevertTimeSeconds)

	discharge := StorageSetpointParams(-350, 60)
	assert.EqualValues(-1, discharge.MinChargePowerWatt)
	assert.EqualValues(-1, discharge.MaxChargePowerWatt)
	assert.EqualValues(350, discharge.MinDischargePowerWatt)
	assert.EqualValues(350, discharge.MaxDischargePowerWatt)

	hold := StorageSetpointParams(0, 60)
	assert.EqualValues(-1, hold.MinChargePowerWatt)
	assert.EqualValues(0, hold.MaxChargePowerWatt)
	assert.EqualValues(-1, hold.MinDischargePowerWatt)
	assert.EqualValues(0, hold.MaxDischargePowerWatt)
}

func TestApplyScaleFactor(t *testing.T) {

	assert := assert.New(t)

	var c ModbusClient
	assert.InDelta(123.4, c.applySF(1234, uint16(0xFFFF)), 1e-9) // sf = -1
	assert.InDelta(-250, c.applySFint16(-25, 1), 1e-9)
	assert.InDelta(5000, c.applySFfloat64Inv(50, uint16(0xFFFE)), 1e-9) // sf = -2
}

func TestIdentifyInverterBlocks(t *testing.T) {

	assert := assert.New(t)

	blk := inverterIntSFModbusBlocks{}
	assert.False(blk.identify(modbusBlock{id: SUNSPEC_WK_COMMON, baseAddr: 40002, length: 66}))
	assert.False(blk.identify(modbusBlock{id: 103, baseAddr: 40070, length: 50}))
	assert.False(blk.identify(modbusBlock{id: SUNSPEC_WK_STATUS, baseAddr: 40184, length: 44}))
	assert.False(blk.identify(modbusBlock{id: SUNSPEC_WK_MPPT, baseAddr: 40254, length: 88}))
	assert.True(blk.complete(), "storage is optional")
	assert.True(blk.identify(modbusBlock{id: SUNSPEC_WK_STORAGE, baseAddr: 40344, length: 24}))
	assert.EqualValues(40070, blk.inverter)
	assert.EqualValues(40344, blk.storage)
}

func TestIdentifyMeterBlocks(t *testing.T) {

	blk := acMeterIntSFModbusBlocks{}
	assert.False(t, blk.identify(modbusBlock{id: SUNSPEC_WK_COMMON, baseAddr: 40002}))
	assert.False(t, blk.identify(modbusBlock{id: 160, baseAddr: 40070}))
	assert.False(t, blk.identify(modbusBlock{id: 213, baseAddr: 40070}), "float meter models are not supported")
	assert.True(t, blk.identify(modbusBlock{id: 203, baseAddr: 40070}))
	assert.EqualValues(t, 40070, blk.acMeter)
}

func TestStorageRatesFor(t *testing.T) {

	assert := assert.New(t)

	discharge := storageRatesFor(StorageSetpointParams(-500, 60), 5000)
	assert.InDelta(10, discharge.outPercent, 1e-9)
	assert.InDelta(-10, discharge.inPercent, 1e-9)
	assert.EqualValues(0x03, discharge.controlMode())
	assert.EqualValues(60, discharge.revertTimeS)

	charge := storageRatesFor(StorageSetpointParams(1000, 30), 5000)
	assert.InDelta(-20, charge.outPercent, 1e-9)
	assert.InDelta(20, charge.inPercent, 1e-9)

	hold := storageRatesFor(StorageSetpointParams(0, 30), 5000)
	assert.Zero(hold.outPercent)
	assert.Zero(hold.inPercent)
	assert.EqualValues(0x03, hold.controlMode())
}

func TestRecordTimer(t *testing.T) {

	assert := assert.New(t)

	var calls []string
	inst := []ModbusInstrument{{
		RecordTime: func(fnName string, readTime time.Duration) {
			calls = append(calls, fnName)
		},
	}}
	RecordTimer("ReadRegister", inst)()
	RecordTimer("ReadRegister", nil)()
	assert.Equal([]string{"ReadRegister"}, calls)
}

func TestTestReaderRecordsWrites(t *testing.T) {

	require := require.New(t)

	reader, err := CreateTestInverterModbusReader()
	require.NoError(err)

	require.NoError(reader.SetStorageControl(StorageSetpointParams(-200, 30)))
	params, writes := reader.StorageControl()
	require.Equal(1, writes)
	require.EqualValues(200, params.MaxDischargePowerWatt)

	require.NoError(reader.DisableStorageControl())
	params, writes = reader.StorageControl()
	require.Equal(2, writes)
	require.Nil(params)

	reader.SetErr(fmt.Errorf("timeout"))
	_, err = reader.GetPowerFlow()
	require.Error(err)
}

func RealInverterReader() InverterModbusReader {
	logger := zap.Must(zap.NewDevelopment())
	reader, err := CreateInverterIntSFModbusReader("-.-.-.-", 502, 1, 1*time.Second, false, logger, nil)
	if err != nil {
		panic(err)
	}
	return reader
}

func MockedInverterReader() InverterModbusReader {
	reader, err := CreateTestInverterModbusReader()
	if err != nil {
		panic(err)
	}
	return reader
}

func RealACMeterReader() ACMeterModbusReader {
	logger := zap.Must(zap.NewDevelopment())
	reader, err := CreateACMeterIntSFModbusReader("-.-.-.-", 502, 200, 1*time.Second, false, logger, nil)
	if err != nil {
		panic(err)
	}
	return reader
}

func MockedACMeterReader() ACMeterModbusReader {
	reader, err := CreateTestACMeterModbusReader()
	if err != nil {
		panic(err)
	}
	return reader
}

func InverterReader() InverterModbusReader {
	if USE_MOCKED_READER {
		return MockedInverterReader()
	} else {
		return RealInverterReader()
	}
}

func ACMeterReader() ACMeterModbusReader {
	if USE_MOCKED_READER {
		return MockedACMeterReader()
	} else {
		return RealACMeterReader()
	}
}
