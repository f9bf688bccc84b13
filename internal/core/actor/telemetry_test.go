package actor

import (
	"errors"
	"math"
	"testing"
	"time"

	adactor "github.com/berfenger/auxbatt2mqtt/internal/adapter/actor"
	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
	"github.com/berfenger/auxbatt2mqtt/internal/util"
	"github.com/berfenger/auxbatt2mqtt/internal/util/actorutil"
	"github.com/berfenger/auxbatt2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTelemetryForwardsSnapshots(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.ControlConfig.Interval = 100 * time.Millisecond
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	primary, err := sunspec_modbus.CreateTestInverterModbusReader()
	require.NoError(t, err)
	aux, err := sunspec_modbus.CreateTestInverterModbusReader()
	require.NoError(t, err)
	meter, err := sunspec_modbus.CreateTestACMeterModbusReader()
	require.NoError(t, err)
	aux.SetStateOfCharge(42)

	modbusPID := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewModbusActor(primary, aux, meter, &cfg, logger)
	}))

	snapshots := make(chan domain.MeasurementsSnapshot, 32)
	controlPID := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if msg, ok := ctx.Message().(domain.MeasurementsSnapshot); ok {
			snapshots <- msg
		}
	}))

	recorder := &eventRecorder{}
	es := &eventstream.EventStream{}
	es.Subscribe(recorder.record)

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewTelemetryActor(&cfg, modbusPID, controlPID, es, logger)
	}))

	next := func() domain.MeasurementsSnapshot {
		select {
		case s := <-snapshots:
			return s
		case <-time.After(2 * time.Second):
			require.FailNow(t, "no snapshot received")
		}
		return domain.MeasurementsSnapshot{}
	}

	s := next()
	assert.False(s.Measurements.Timestamp.IsZero())
	assert.Equal(300.0, s.Measurements.GridPowerWatt)
	assert.Equal(42.0, s.Measurements.AuxSoC)

	recorder.mu.Lock()
	assert.NotEmpty(recorder.events, "sensor updates published")
	recorder.mu.Unlock()

	// a failed read still produces a tick with the failed values unknown
	meter.Set(0, errors.New("timeout"))
	var failed domain.MeasurementsSnapshot
	for i := 0; i < 10; i++ {
		failed = next()
		if math.IsNaN(failed.Measurements.GridPowerWatt) {
			break
		}
	}
	assert.True(math.IsNaN(failed.Measurements.GridPowerWatt))
	assert.Equal(42.0, failed.Measurements.AuxSoC)

	hcr, err := healthCheck(as.Root, pid)
	require.NoError(t, err)
	assert.True(hcr.Healthy)
	assert.Equal(domain.ACTOR_ID_TELEMETRY, hcr.Id)
}
