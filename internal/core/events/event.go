package events

import (
	"math"

	. "github.com/berfenger/auxbatt2mqtt/internal/core/domain"
)

// MeasurementsToUpdateEvents skips the values that could not be read.
func MeasurementsToUpdateEvents(m Measurements) []any {
	var events []any

	events = appendFloatEvent(events, SENSOR_ID_GRID_POWER, m.GridPowerWatt, 2)
	if m.HouseLoadWatt.Valid {
		events = appendFloatEvent(events, SENSOR_ID_HOUSE_POWER, m.HouseLoadWatt.Value, 2)
	}
	// Primary battery
	events = appendFloatEvent(events, SENSOR_ID_PRIMARY_BATTERY_SOC, m.PrimarySoC, 2)
	events = appendFloatEvent(events, SENSOR_ID_PRIMARY_BATTERY_CHARGE_POWER, m.PrimaryChargePowerWatt, 2)
	events = appendFloatEvent(events, SENSOR_ID_PRIMARY_BATTERY_DISCHARGE_POWER, m.PrimaryDischargePowerWatt, 2)
	// Aux battery
	events = appendFloatEvent(events, SENSOR_ID_AUX_BATTERY_SOC, m.AuxSoC, 2)
	events = appendFloatEvent(events, SENSOR_ID_AUX_BATTERY_CHARGE_POWER, m.AuxChargePowerWatt, 2)
	events = appendFloatEvent(events, SENSOR_ID_AUX_BATTERY_DISCHARGE_POWER, m.AuxDischargePowerWatt, 2)

	return events
}

func ControlStatusUpdateEvents(r ControlTickResult) []any {
	var events []any

	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_AUX_CONTROL_STATE,
		},
		Value: r.Status.Label,
	})
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_AUX_CONTROL_STATUS,
		},
		Value: r.Status.Text,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_AUX_CONTROL_SETPOINT,
		},
		Value: float64(r.Setpoint),
	})
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_AUX_CONTROL_FAILSAFE,
		},
		Value: r.FailsafeReason != "",
	})
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_AUX_CHARGE_LIMITED,
		},
		Value: r.Debug.ChargeLimitActive,
	})

	return events
}

func OperatorSettingsUpdateEvents(s OperatorSettings) []any {
	var events []any
	events = append(events, SwitchUpdateEvent(SWITCH_ID_AUX_AUTO_CHARGE, s.AutoChargeEnabled))
	events = append(events, SwitchUpdateEvent(SWITCH_ID_AUX_AUTO_DISCHARGE, s.AutoDischargeEnabled))
	events = append(events, SwitchUpdateEvent(SWITCH_ID_AUX_LIMIT_NEAR_FULL, s.LimitNearFullEnabled))
	if s.AuxMinDischargeSoC.Valid {
		events = append(events, MinDischargeSoCUpdateEvent(s.AuxMinDischargeSoC.Value))
	}
	if s.AuxMaxCellVoltage.Valid {
		events = append(events, CellVoltageUpdateEvent(s.AuxMaxCellVoltage.Value))
	}
	return events
}

func SwitchUpdateEvent(id string, value bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: id,
		},
		Value: value,
	}
}

func MinDischargeSoCUpdateEvent(value float64) any {
	return InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: INPUT_NUMBER_ID_AUX_MIN_DISCHARGE_SOC,
		},
		Value: value,
	}
}

func CellVoltageUpdateEvent(value float64) any {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_AUX_MAX_CELL_VOLTAGE,
		},
		Value:    value,
		Decimals: 3,
	}
}

func appendFloatEvent(events []any, id string, value float64, decimals uint) []any {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return events
	}
	return append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: id,
		},
		Value:    value,
		Decimals: decimals,
	})
}
