package domain

import (
	"encoding/json"
	"math"
	"time"
)

type ControlStateName string

const (
	ControlStateIdle          ControlStateName = "IDLE"
	ControlStateChargeSurplus ControlStateName = "CHG_SURPLUS"
	ControlStateDischargeBase ControlStateName = "DIS_BASE"
	ControlStateFreeze        ControlStateName = "FREEZE"
)

type DischargeMode string

const (
	DischargeModeGrid    DischargeMode = "GRID"
	DischargeModeSupport DischargeMode = "SUPPORT"
)

// failsafe reasons, in check order
const (
	FailsafeReasonGridPower  = "P_grid invalid"
	FailsafeReasonPrimarySoC = "SoC_main invalid"
	FailsafeReasonAuxSoC     = "SoC_aux invalid"
)

// NullFloat64 is an optional measurement. The zero value is "unknown".
type NullFloat64 struct {
	Value float64
	Valid bool
}

// NewNullFloat64 returns a valid value only when v is finite.
func NewNullFloat64(v float64) NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NullFloat64{}
	}
	return NullFloat64{Value: v, Valid: true}
}

func (n NullFloat64) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *NullFloat64) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat64{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = NewNullFloat64(v)
	return nil
}

// Measurements is one acquisition of the hardware values used by the control loop.
// Grid power and SoC values are NaN when they could not be read.
type Measurements struct {
	Timestamp time.Time
	// signed, +import / -export
	GridPowerWatt float64
	HouseLoadWatt NullFloat64

	PrimaryChargePowerWatt    float64
	PrimaryDischargePowerWatt float64
	AuxChargePowerWatt        float64
	AuxDischargePowerWatt     float64

	PrimarySoC float64
	AuxSoC     float64
}

// InvalidMeasurements is forwarded when the acquisition failed.
func InvalidMeasurements(ts time.Time) Measurements {
	return Measurements{
		Timestamp:     ts,
		GridPowerWatt: math.NaN(),
		PrimarySoC:    math.NaN(),
		AuxSoC:        math.NaN(),
	}
}

// OperatorSettings are the values controlled from outside the loop (MQTT switches, numbers and topics).
type OperatorSettings struct {
	AutoChargeEnabled    bool
	AutoDischargeEnabled bool
	LimitNearFullEnabled bool
	AuxMinDischargeSoC   NullFloat64
	AuxMaxCellVoltage    NullFloat64
}

// Telemetry is the full input of one control tick.
type Telemetry struct {
	Measurements
	OperatorSettings
}

// ControlState is the state carried from one tick to the next.
// Zero timestamps mean "not set".
type ControlState struct {
	State         ControlStateName
	DischargeMode DischargeMode
	LastStateTs   time.Time
	// post-ramp setpoint. +charge / -discharge
	LastSetpoint int

	ImportHighSince time.Time
	ExportHighSince time.Time
	ImportStopSince time.Time
	WasImportHigh   bool
	WasExportHigh   bool
	WasImportStop   bool

	LastRampTs        time.Time
	LastSupportTarget float64

	HasEmittedSetpoint  bool
	LastEmittedSetpoint int
	LastDebug           *DebugSnapshot
}

func NewControlState() *ControlState {
	return &ControlState{
		State:         ControlStateIdle,
		DischargeMode: DischargeModeGrid,
	}
}

// Label collapses state and discharge mode into a single name.
func (s ControlState) Label() string {
	return ControlStateLabel(s.State, s.DischargeMode)
}

func ControlStateLabel(state ControlStateName, mode DischargeMode) string {
	if state == ControlStateDischargeBase {
		if mode == DischargeModeSupport {
			return "DIS_SUPPORT"
		}
		return "DIS_GRID"
	}
	return string(state)
}

// DebugSnapshot is the diagnostic record of a tick. It is comparable with ==.
type DebugSnapshot struct {
	State          string           `json:"state"`
	StateBase      ControlStateName `json:"stateBase"`
	DischargeMode  DischargeMode    `json:"disMode"`
	FailsafeReason string           `json:"failsafeReason,omitempty"`

	GridPowerWatt float64     `json:"P_grid"`
	HouseLoadWatt NullFloat64 `json:"P_house"`
	PrimarySoC    NullFloat64 `json:"SoC_main"`
	AuxSoC        NullFloat64 `json:"SoC_aux"`

	AuxMinDischargeSoC float64 `json:"socAuxMinDischarge"`

	PrimaryChargePowerWatt    float64 `json:"P_main_chg"`
	PrimaryDischargePowerWatt float64 `json:"P_main_dis"`
	AuxChargePowerWatt        float64 `json:"P_aux_chg"`
	AuxDischargePowerWatt     float64 `json:"P_aux_dis"`

	AutoChargeEnabled    bool `json:"auxChargeEnable"`
	AutoDischargeEnabled bool `json:"auxDischargeEnable"`

	GridImportHighSeconds float64 `json:"tGridImportHigh"`
	GridExportHighSeconds float64 `json:"tGridExportHigh"`
	ImportStopSeconds     float64 `json:"tImportStop"`
	StateHoldSeconds      float64 `json:"tStateHold"`

	SetpointWatt          int     `json:"P_set_aux"`
	LastSupportTargetWatt float64 `json:"lastSupportTarget"`

	ChargeLimitActive      bool        `json:"chargeLimitActive"`
	LimitNearFullEnabled   bool        `json:"auxLimitFullEnable"`
	AuxMaxCellVoltage      NullFloat64 `json:"auxCellMaxV"`
	EffectiveMaxChargeWatt float64     `json:"effectiveMaxChargeW"`
}

type StatusColor string

const (
	StatusColorGrey   StatusColor = "grey"
	StatusColorGreen  StatusColor = "green"
	StatusColorYellow StatusColor = "yellow"
	StatusColorOrange StatusColor = "orange"
	StatusColorRed    StatusColor = "red"
)

type StatusSeverity string

const (
	StatusSeverityNeutral StatusSeverity = "neutral"
	StatusSeverityActive  StatusSeverity = "active"
	StatusSeverityError   StatusSeverity = "error"
)

type Status struct {
	Label    string         `json:"label"`
	Severity StatusSeverity `json:"severity"`
	Color    StatusColor    `json:"color"`
	Text     string         `json:"text"`
}

type ControlTransition struct {
	From string
	To   string
}

// ControlTickResult holds the outputs of one tick. Setpoint and Debug are only
// meant to be sent when their Emit flag is set. Status is always current.
type ControlTickResult struct {
	Setpoint       int
	EmitSetpoint   bool
	Debug          DebugSnapshot
	EmitDebug      bool
	Status         Status
	FailsafeReason string
	Transition     *ControlTransition
}
