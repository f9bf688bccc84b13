package actorutil

import (
	"errors"
	"math"
	"testing"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
	"github.com/berfenger/auxbatt2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsedMQTTCommandToCommand(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	cmd, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: domain.SWITCH_ID_AUX_AUTO_CHARGE, Payload: "on"})
	require.NoError(err)
	assert.Equal(domain.AuxAutoChargeRequest{Enable: true}, cmd)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: domain.SWITCH_ID_AUX_AUTO_DISCHARGE, Payload: "off"})
	require.NoError(err)
	assert.Equal(domain.AuxAutoDischargeRequest{Enable: false}, cmd)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: domain.SWITCH_ID_AUX_LIMIT_NEAR_FULL, Payload: "on"})
	require.NoError(err)
	assert.Equal(domain.AuxLimitNearFullRequest{Enable: true}, cmd)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: domain.INPUT_NUMBER_ID_AUX_MIN_DISCHARGE_SOC, Payload: "12.5"})
	require.NoError(err)
	assert.Equal(domain.AuxMinDischargeSoCRequest{SoC: 12.5}, cmd)

	_, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: domain.INPUT_NUMBER_ID_AUX_MIN_DISCHARGE_SOC, Payload: "120"})
	assert.Error(err)

	_, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: domain.INPUT_NUMBER_ID_AUX_MIN_DISCHARGE_SOC, Payload: "abc"})
	assert.Error(err)

	cmd, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: "unknown", Payload: "on"})
	assert.NoError(err)
	assert.Nil(cmd)
}

func TestParseCellVoltage(t *testing.T) {

	assert := assert.New(t)

	assert.Equal(3.45, ParseCellVoltage("3.45").Volts)
	assert.True(math.IsNaN(ParseCellVoltage("n/a").Volts))
}

func TestBackgroundTaskRecover(t *testing.T) {

	assert := assert.New(t)

	var got int
	NewBackgroundTask(nil, func() (*int, error) {
		return nil, errors.New("read failed")
	}).Recover(func(err error) int {
		return -1
	}).OnSuccess(func(v int) {
		got = v
	}).Run()
	assert.Equal(-1, got, "recovered value is delivered")

	NewBackgroundTaskNoError(nil, func() *int {
		v := 7
		return &v
	}).OnSuccess(func(v int) {
		got = v
	}).Run()
	assert.Equal(7, got)

	var failed error
	NewBackgroundTask(nil, func() (*int, error) {
		return nil, nil
	}).OnError(func(err error) {
		failed = err
	}).Run()
	assert.Error(failed, "nil result is reported as an error")
}

func TestActorWithStatesTracksStackedNames(t *testing.T) {

	assert := assert.New(t)

	s := ActorWithStates{Behavior: actor.NewBehavior()}
	assert.Equal("", s.StateName())
	s.Become(namedState("running"))
	assert.Equal("running", s.StateName())
	s.BecomeStacked(namedState("await"))
	assert.Equal("await", s.StateName())
	s.UnbecomeStacked()
	assert.Equal("running", s.StateName())
}

type namedState string

func (n namedState) Name() string { return string(n) }

func (n namedState) Receive(actor.Context) {}
