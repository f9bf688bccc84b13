package actor

import (
	"testing"
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
	"github.com/berfenger/auxbatt2mqtt/internal/mqtt"
	"github.com/berfenger/auxbatt2mqtt/internal/util"
	"github.com/berfenger/auxbatt2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, &es, logger) })
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)

	es.Publish(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_GRID_POWER,
		},
		Value: 245,
	})
	es.Publish(domain.TextSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			Id: domain.SENSOR_ID_AUX_CONTROL_STATE,
		},
		Value: "IDLE",
	})

	result, err = context.RequestFuture(pid, domain.PublishMessageRequest{
		Topic:   "auxbatt/aux/setpoint",
		Payload: "-80",
	}, 2*time.Second).Result()
	require.NoError(t, err)
	_, ok = result.(domain.PublishMessageResponse)
	assert.True(t, ok)

	context.Stop(pid)

	time.Sleep(200 * time.Millisecond)

	as.Shutdown()
}

func TestEvent2MQTTMessage(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	state := &MQTTActor{
		config: &cfg,
		client: mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil),
	}

	raw := state.event2MQTTMessage(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SENSOR_ID_AUX_CONTROL_SETPOINT},
		Value:                  -160,
	})
	assert.Equal("auxbatt/sensor/"+domain.SENSOR_ID_AUX_CONTROL_SETPOINT+"/state", raw.topic)
	assert.Equal("-160", raw.message)
	assert.False(raw.retain)

	raw = state.event2MQTTMessage(domain.SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SWITCH_ID_AUX_AUTO_CHARGE},
		Value:                  true,
	})
	assert.Equal("auxbatt/switch/"+domain.SWITCH_ID_AUX_AUTO_CHARGE+"/state", raw.topic)
	assert.Equal(mqtt.MQTT_PAYLOAD_ON, raw.message)
	assert.True(raw.retain, "switch states are retained")

	raw = state.event2MQTTMessage(domain.InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.INPUT_NUMBER_ID_AUX_MIN_DISCHARGE_SOC},
		Value:                  7.5,
		Decimals:               1,
	})
	assert.Equal("auxbatt/number/"+domain.INPUT_NUMBER_ID_AUX_MIN_DISCHARGE_SOC+"/state", raw.topic)
	assert.Equal("7.5", raw.message)

	assert.Nil(state.event2MQTTMessage("not an event"))
}
