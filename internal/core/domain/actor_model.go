package domain

import "github.com/berfenger/auxbatt2mqtt/pkg/sunspec_modbus"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_TELEMETRY    = "telemetry"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_AUX_CONTROL  = "aux_control"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type GetDevicesInfoRequest struct {
	ActorRequestMixIn
}

type GetDevicesInfoResponse struct {
	ActorResponseMixIn
	PrimaryInverter *sunspec_modbus.InverterInfo
	AuxInverter     *sunspec_modbus.InverterInfo
	ACMeter         *sunspec_modbus.ACMeterInfo
}

type GetMeasurementsRequest struct {
	ActorRequestMixIn
}

type GetMeasurementsResponse struct {
	ActorResponseMixIn
	Measurements Measurements
}

// SetAuxSetpointRequest writes the setpoint to the aux inverter storage control.
// Positive = charge, negative = discharge, 0 = hold.
type SetAuxSetpointRequest struct {
	ActorRequestMixIn
	SetpointWatt      int
	RevertTimeSeconds uint32
}

type SetAuxSetpointResponse struct {
	ActorResponseMixIn
}

// MeasurementsSnapshot is sent by the telemetry actor on every tick.
type MeasurementsSnapshot struct {
	Measurements Measurements
}

type GetControlStatusRequest struct {
	ActorRequestMixIn
}

type GetControlStatusResponse struct {
	ActorResponseMixIn `json:"-"`
	State    string            `json:"state"`
	Setpoint int               `json:"setpoint"`
	Status   Status            `json:"status"`
	Debug    *DebugSnapshot    `json:"debug,omitempty"`
	Operator OperatorStatusDTO `json:"operator"`
}

type OperatorStatusDTO struct {
	AutoChargeEnabled    bool        `json:"auto_charge"`
	AutoDischargeEnabled bool        `json:"auto_discharge"`
	LimitNearFullEnabled bool        `json:"limit_near_full"`
	AuxMinDischargeSoC   NullFloat64 `json:"aux_min_discharge_soc"`
	AuxMaxCellVoltage    NullFloat64 `json:"aux_max_cell_voltage"`
}

func OperatorStatus(s OperatorSettings) OperatorStatusDTO {
	return OperatorStatusDTO{
		AutoChargeEnabled:    s.AutoChargeEnabled,
		AutoDischargeEnabled: s.AutoDischargeEnabled,
		LimitNearFullEnabled: s.LimitNearFullEnabled,
		AuxMinDischargeSoC:   s.AuxMinDischargeSoC,
		AuxMaxCellVoltage:    s.AuxMaxCellVoltage,
	}
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
