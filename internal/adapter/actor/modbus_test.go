package actor

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
	"github.com/berfenger/auxbatt2mqtt/internal/util"
	"github.com/berfenger/auxbatt2mqtt/internal/util/actorutil"
	"github.com/berfenger/auxbatt2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testReaders struct {
	primary *sunspec_modbus.TestInverterModbusReader
	aux     *sunspec_modbus.TestInverterModbusReader
	meter   *sunspec_modbus.TestACMeterModbusReader
}

func newTestReaders(t *testing.T) testReaders {
	primary, err := sunspec_modbus.CreateTestInverterModbusReader()
	require.NoError(t, err)
	aux, err := sunspec_modbus.CreateTestInverterModbusReader()
	require.NoError(t, err)
	meter, err := sunspec_modbus.CreateTestACMeterModbusReader()
	require.NoError(t, err)
	return testReaders{primary: primary, aux: aux, meter: meter}
}

func spawnModbusActor(t *testing.T, readers testReaders) (*actor.ActorSystem, *actor.PID) {
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewModbusActor(readers.primary, readers.aux, readers.meter, &cfg, logger)
	})
	return as, as.Root.Spawn(props)
}

func TestGetDevicesInfoModbusActor(t *testing.T) {

	assert := assert.New(t)

	as, pid := spawnModbusActor(t, newTestReaders(t))
	defer as.Shutdown()

	result, err := as.Root.RequestFuture(pid, domain.GetDevicesInfoRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.GetDevicesInfoResponse)
	require.True(t, ok)

	assert.False(resp.HasResponseError())
	assert.Equal("Fronius", resp.PrimaryInverter.Manufacturer, "primary manufacturer")
	assert.Equal("Primo GEN24 3.0 Plus", resp.AuxInverter.Model, "aux model")
	assert.True(resp.AuxInverter.HasStorage)
	assert.NotNil(resp.ACMeter)
}

func TestGetMeasurementsModbusActor(t *testing.T) {

	assert := assert.New(t)

	readers := newTestReaders(t)
	readers.meter.Set(-250, nil)
	readers.primary.SetPowerFlow(sunspec_modbus.InverterPowerFlow{ACPowerWatt: 800, BatteryDischargePowerWatt: 600})
	readers.primary.SetStateOfCharge(64)
	readers.aux.SetPowerFlow(sunspec_modbus.InverterPowerFlow{ACPowerWatt: -300, BatteryChargePowerWatt: 310})
	readers.aux.SetStateOfCharge(40)

	as, pid := spawnModbusActor(t, readers)
	defer as.Shutdown()

	result, err := as.Root.RequestFuture(pid, domain.GetMeasurementsRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.GetMeasurementsResponse)

	assert.False(resp.HasResponseError())
	m := resp.Measurements
	assert.Equal(-250.0, m.GridPowerWatt)
	assert.Equal(600.0, m.PrimaryDischargePowerWatt)
	assert.Equal(310.0, m.AuxChargePowerWatt)
	assert.Equal(64.0, m.PrimarySoC)
	assert.Equal(40.0, m.AuxSoC)
	// house = grid + primary AC + aux AC
	assert.True(m.HouseLoadWatt.Valid)
	assert.Equal(250.0, m.HouseLoadWatt.Value)
}

func TestGetMeasurementsPartialFailure(t *testing.T) {

	assert := assert.New(t)

	readers := newTestReaders(t)
	readers.aux.SetErr(errors.New("timeout"))

	as, pid := spawnModbusActor(t, readers)
	defer as.Shutdown()

	result, err := as.Root.RequestFuture(pid, domain.GetMeasurementsRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.GetMeasurementsResponse)

	assert.True(resp.HasResponseError())
	assert.Equal(300.0, resp.Measurements.GridPowerWatt)
	assert.Equal(50.0, resp.Measurements.PrimarySoC)
	assert.True(math.IsNaN(resp.Measurements.AuxSoC), "failed device reads as NaN")
	assert.False(resp.Measurements.HouseLoadWatt.Valid)
}

func TestSetAuxSetpointModbusActor(t *testing.T) {

	assert := assert.New(t)

	readers := newTestReaders(t)
	as, pid := spawnModbusActor(t, readers)
	defer as.Shutdown()

	result, err := as.Root.RequestFuture(pid, domain.SetAuxSetpointRequest{SetpointWatt: -400, RevertTimeSeconds: 60}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.SetAuxSetpointResponse)
	assert.False(resp.HasResponseError())

	params, writes := readers.aux.StorageControl()
	require.NotNil(t, params)
	assert.Equal(1, writes)
	assert.EqualValues(400, params.MaxDischargePowerWatt)
	assert.EqualValues(400, params.MinDischargePowerWatt)
	assert.EqualValues(-1, params.MaxChargePowerWatt)
	assert.EqualValues(60, params.RevertTimeSeconds)

	_, primaryWrites := readers.primary.StorageControl()
	assert.Equal(0, primaryWrites, "primary inverter is never written")
}
