package sunspec_modbus

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// ModbusClient wraps a simonvetter client with scale factor helpers and per call instrumentation.
type ModbusClient struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

// ModbusInstrument is notified of the duration of every modbus call.
type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

// commonInfo is the identification found in the SunSpec common model (id 1).
type commonInfo struct {
	manufacturer string
	model        string
	version      string
	serial       string
}

// dialModbus builds a client for one unit behind a TCP gateway. The connection is opened later by Open.
// unitId 0 keeps the library default.
func dialModbus(ip string, port uint, unitId uint8, timeout time.Duration, logger *zap.Logger, target string,
	instrumentation *ModbusInstrument) (ModbusClient, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", ip, port),
		Timeout: timeout,
	})
	if err != nil {
		return ModbusClient{}, err
	}
	if unitId > 0 {
		if err := client.SetUnitId(unitId); err != nil {
			return ModbusClient{}, err
		}
	}

	inst := []ModbusInstrument{traceLoggerInstrumentation(logger.With(zap.String("target", target), zap.Uint8("unit", unitId)))}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}
	return ModbusClient{client: client, instrument: inst}, nil
}

func traceLoggerInstrumentation(logger *zap.Logger) ModbusInstrument {
	return ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus call", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}

func (reader ModbusClient) readCommonInfo(common uint16) (*commonInfo, error) {
	var info commonInfo
	fields := []struct {
		dst    *string
		offset uint16
		size   uint16
	}{
		{&info.manufacturer, 2, 32},
		{&info.model, 18, 32},
		{&info.version, 42, 16},
		{&info.serial, 50, 32},
	}
	for _, f := range fields {
		str, err := reader.readString(common+f.offset, f.size)
		if err != nil {
			return nil, err
		}
		*f.dst = str
	}
	return &info, nil
}

func (reader ModbusClient) readString(address uint16, size uint16) (string, error) {
	bytes, err := reader.readRawBytes(address, size, modbus.HOLDING_REGISTER)
	if err != nil {
		return "", err
	}
	if f := slices.Index(bytes, 0x00); f >= 0 {
		return string(bytes[:f]), nil
	}
	return string(bytes), nil
}

// scale factors are signed powers of ten stored as uint16

func (reader ModbusClient) applySF(number uint16, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func (reader ModbusClient) applySFint16(number int16, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func (reader ModbusClient) applySFfloat64Inv(number float64, sf uint16) float64 {
	return number / math.Pow(10, float64(int16(sf)))
}

func (reader ModbusClient) readRegister(addr uint16, regType modbus.RegType) (uint16, error) {
	defer RecordTimer("ReadRegister", reader.instrument)()
	return reader.client.ReadRegister(addr, regType)
}

func (reader ModbusClient) readRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	defer RecordTimer("ReadRegisters", reader.instrument)()
	return reader.client.ReadRegisters(addr, quantity, regType)
}

func (reader ModbusClient) readRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error) {
	defer RecordTimer("ReadRawBytes", reader.instrument)()
	return reader.client.ReadRawBytes(addr, quantity, regType)
}

func (reader ModbusClient) writeRegister(addr uint16, value uint16) error {
	defer RecordTimer("WriteRegister", reader.instrument)()
	return reader.client.WriteRegister(addr, value)
}

func (reader ModbusClient) writeRegisters(addr uint16, values []uint16) error {
	defer RecordTimer("WriteRegisters", reader.instrument)()
	return reader.client.WriteRegisters(addr, values)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if len(instrument) == 0 {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}
