package domain

import "fmt"

// SensorUpdateEvent is published on the actor event stream whenever a value
// exposed over MQTT changes. The MQTT actor maps each kind to a state payload.
type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

type SensorUpdateEventMixIn struct {
	Id string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

// FloatSensorUpdateEvent carries a measurement. Unknown (NaN) readings never become events.
type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// TextSensorUpdateEvent carries the control state label and similar strings.
type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

// SwitchSensorUpdateEvent reflects an operator toggle (auto charge, auto discharge, limit near full).
type SwitchSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// InputNumberSensorUpdateEvent reflects an operator number such as the minimum discharge SoC.
type InputNumberSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}
