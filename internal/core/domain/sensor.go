package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/auxbatt2mqtt/pkg/sunspec_modbus"
	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE                    = "bridge"
	SENSOR_ID_GRID_POWER                      = "grid_power"
	SENSOR_ID_HOUSE_POWER                     = "house_power"
	SENSOR_ID_PRIMARY_BATTERY_SOC             = "primary_battery_soc"
	SENSOR_ID_PRIMARY_BATTERY_CHARGE_POWER    = "primary_battery_charge_power"
	SENSOR_ID_PRIMARY_BATTERY_DISCHARGE_POWER = "primary_battery_discharge_power"
	SENSOR_ID_AUX_BATTERY_SOC                 = "aux_battery_soc"
	SENSOR_ID_AUX_BATTERY_CHARGE_POWER        = "aux_battery_charge_power"
	SENSOR_ID_AUX_BATTERY_DISCHARGE_POWER     = "aux_battery_discharge_power"
	SENSOR_ID_AUX_CONTROL_STATE               = "aux_control_state"
	SENSOR_ID_AUX_CONTROL_STATUS              = "aux_control_status"
	SENSOR_ID_AUX_CONTROL_SETPOINT            = "aux_control_setpoint"
	SENSOR_ID_AUX_CONTROL_FAILSAFE            = "aux_control_failsafe"
	SENSOR_ID_AUX_CHARGE_LIMITED              = "aux_charge_limited"
	SENSOR_ID_AUX_MAX_CELL_VOLTAGE            = "aux_max_cell_voltage"
	SWITCH_ID_AUX_AUTO_CHARGE                 = "aux_auto_charge"
	SWITCH_ID_AUX_AUTO_DISCHARGE              = "aux_auto_discharge"
	SWITCH_ID_AUX_LIMIT_NEAR_FULL             = "aux_limit_near_full"
	INPUT_NUMBER_ID_AUX_MIN_DISCHARGE_SOC     = "aux_min_discharge_soc"
	STATE_CLASS_MEASUREMENT                   = "measurement"
	DEVICE_CLASS_BATTERY                      = "battery"
	DEVICE_CLASS_POWER                        = "power"
	DEVICE_CLASS_VOLTAGE                      = "voltage"
	DEVICE_CLASS_CONNECTIVITY                 = "connectivity"
	DEVICE_CLASS_PROBLEM                      = "problem"
	ENTITY_CLASS_DIAGNOSTIC                   = "diagnostic"
	ENTITY_CLASS_CONFIG                       = "config"
	SENSOR_TYPE_SENSOR                        = "sensor"
	SENSOR_TYPE_BINARY                        = "binary_sensor"
	INPUT_NUMBER_MODE_BOX                     = "box"
	INPUT_NUMBER_MODE_SLIDER                  = "slider"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("auxbatt_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Auxbatt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Auxbatt %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(info *sunspec_modbus.InverterInfo) Device {
	return Device{
		Id:           fmt.Sprintf("inverter_%s", md5HashShort(info.Serial)),
		Version:      info.Version,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Name:         fmt.Sprintf("%s %s %s", info.Manufacturer, info.Model, md5HashShort(info.Serial)),
	}
}

func ACMeterDevice(info *sunspec_modbus.ACMeterInfo) Device {
	return Device{
		Id:           fmt.Sprintf("acmeter_%s", md5HashShort(info.Serial)),
		Version:      info.Version,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Name:         fmt.Sprintf("%s %s %s", info.Manufacturer, info.Model, md5HashShort(info.Serial)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{
		{
			Device:         bridgeDevice,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Connection state",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
		},
	}
}

func ACMeterSensors(acmeterDevice Device) []GenericSensor {
	return []GenericSensor{
		powerSensor(acmeterDevice, SENSOR_ID_GRID_POWER, "Grid power", "mdi:transmission-tower"),
	}
}

// PrimaryInverterSensors also carries the house power sensor when tracked.
func PrimaryInverterSensors(inverterDevice Device, trackHousePower bool) []GenericSensor {
	var sensors []GenericSensor

	sensors = append(sensors, socSensor(inverterDevice, SENSOR_ID_PRIMARY_BATTERY_SOC, "Primary battery SoC"))
	sensors = append(sensors, powerSensor(inverterDevice, SENSOR_ID_PRIMARY_BATTERY_CHARGE_POWER, "Primary battery charge power", ""))
	sensors = append(sensors, powerSensor(inverterDevice, SENSOR_ID_PRIMARY_BATTERY_DISCHARGE_POWER, "Primary battery discharge power", ""))

	if trackHousePower {
		sensors = append(sensors, powerSensor(inverterDevice, SENSOR_ID_HOUSE_POWER, "House power", "mdi:home-lightning-bolt"))
	}
	return sensors
}

func AuxInverterSensors(inverterDevice Device) []GenericSensor {
	var sensors []GenericSensor

	sensors = append(sensors, socSensor(inverterDevice, SENSOR_ID_AUX_BATTERY_SOC, "Aux battery SoC"))
	sensors = append(sensors, powerSensor(inverterDevice, SENSOR_ID_AUX_BATTERY_CHARGE_POWER, "Aux battery charge power", ""))
	sensors = append(sensors, powerSensor(inverterDevice, SENSOR_ID_AUX_BATTERY_DISCHARGE_POWER, "Aux battery discharge power", ""))

	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_AUX_MAX_CELL_VOLTAGE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Aux battery max cell voltage",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_VOLTAGE,
		UnitOfMeasurement: "V",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_AUX_MAX_CELL_VOLTAGE),
	})
	return sensors
}

func AuxControlSensors(inverterDevice Device) []GenericSensor {
	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:     inverterDevice,
		Id:         SENSOR_ID_AUX_CONTROL_STATE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Aux control state",
		Icon:       "mdi:state-machine",
		UniqueId:   uniqueId(inverterDevice.Id, SENSOR_ID_AUX_CONTROL_STATE),
	})
	sensors = append(sensors, GenericSensor{
		Device:           inverterDevice,
		Id:               SENSOR_ID_AUX_CONTROL_STATUS,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Aux control status",
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(inverterDevice.Id, SENSOR_ID_AUX_CONTROL_STATUS),
	})
	sensors = append(sensors, powerSensor(inverterDevice, SENSOR_ID_AUX_CONTROL_SETPOINT, "Aux control setpoint", "mdi:target"))
	sensors = append(sensors, GenericSensor{
		Device:      inverterDevice,
		Id:          SENSOR_ID_AUX_CONTROL_FAILSAFE,
		SensorType:  SENSOR_TYPE_BINARY,
		Name:        "Aux control failsafe",
		DeviceClass: DEVICE_CLASS_PROBLEM,
		UniqueId:    uniqueId(inverterDevice.Id, SENSOR_ID_AUX_CONTROL_FAILSAFE),
	})
	sensors = append(sensors, GenericSensor{
		Device:     inverterDevice,
		Id:         SENSOR_ID_AUX_CHARGE_LIMITED,
		SensorType: SENSOR_TYPE_BINARY,
		Name:       "Aux charge limited",
		Icon:       "mdi:battery-alert",
		UniqueId:   uniqueId(inverterDevice.Id, SENSOR_ID_AUX_CHARGE_LIMITED),
	})
	return sensors
}

func AuxControlSwitches(inverterDevice Device) []GenericSwitch {

	var switches []GenericSwitch

	switches = append(switches, GenericSwitch{
		Device:   inverterDevice,
		Id:       SWITCH_ID_AUX_AUTO_CHARGE,
		Name:     "Aux auto charge",
		UniqueId: uniqueId(inverterDevice.Id, SWITCH_ID_AUX_AUTO_CHARGE),
		Icon:     "mdi:battery-plus",
	})
	switches = append(switches, GenericSwitch{
		Device:   inverterDevice,
		Id:       SWITCH_ID_AUX_AUTO_DISCHARGE,
		Name:     "Aux auto discharge",
		UniqueId: uniqueId(inverterDevice.Id, SWITCH_ID_AUX_AUTO_DISCHARGE),
		Icon:     "mdi:battery-minus",
	})
	switches = append(switches, GenericSwitch{
		Device:   inverterDevice,
		Id:       SWITCH_ID_AUX_LIMIT_NEAR_FULL,
		Name:     "Aux limit charge near full",
		UniqueId: uniqueId(inverterDevice.Id, SWITCH_ID_AUX_LIMIT_NEAR_FULL),
		Icon:     "mdi:battery-lock",
	})

	return switches
}

func AuxControlInputNumbers(inverterDevice Device, initialMinSoC float64) []GenericInputNumber {
	return []GenericInputNumber{
		{
			Device:       inverterDevice,
			Id:           INPUT_NUMBER_ID_AUX_MIN_DISCHARGE_SOC,
			Name:         "Aux min discharge SoC",
			UniqueId:     uniqueId(inverterDevice.Id, INPUT_NUMBER_ID_AUX_MIN_DISCHARGE_SOC),
			Icon:         "mdi:battery-arrow-down-outline",
			Max:          100,
			Min:          0,
			Step:         1,
			Mode:         INPUT_NUMBER_MODE_BOX,
			InitialValue: initialMinSoC,
		},
	}
}

func powerSensor(device Device, id, name, icon string) GenericSensor {
	return GenericSensor{
		Device:            device,
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              icon,
		UniqueId:          uniqueId(device.Id, id),
	}
}

func socSensor(device Device, id, name string) GenericSensor {
	return GenericSensor{
		Device:            device,
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(device.Id, id),
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
