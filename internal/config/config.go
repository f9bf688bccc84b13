package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel                 zapcore.Level
	PrimaryInverterModbusTcp InverterModbusTCPConfig `mapstructure:"primary_inverter_modbus_tcp"`
	AuxInverterModbusTcp     InverterModbusTCPConfig `mapstructure:"aux_inverter_modbus_tcp"`
	MQTT                     MQTTConfig              `mapstructure:"mqtt"`

	ControlConfig  ControlConfig  `mapstructure:"control"`
	OperatorConfig OperatorConfig `mapstructure:"operator"`
	MonitorConfig  MonitorConfig  `mapstructure:"monitor"`
	StateConfig    StateConfig    `mapstructure:"state"`
	Port           uint           `mapstructure:"port"`
	HttpLog        bool           `mapstructure:"http_log"`
}

type InverterModbusTCPConfig struct {
	Host                  string
	Port                  uint
	MeterId               uint   `mapstructure:"meter_id"`
	InverterId            uint   `mapstructure:"inverter_id"`
	IgnoreFronius         bool   `mapstructure:"ignore_fronius"`
	WriteSetpoint         bool   `mapstructure:"write_setpoint"`
	RevertTimeoutSeconds  uint32 `mapstructure:"revert_timeout_seconds"`
	RequestTimeoutSeconds uint32 `mapstructure:"request_timeout_seconds"`
}

type MonitorConfig struct {
	TrackHousePower bool `mapstructure:"track_house_power"`
}

type StateConfig struct {
	// empty path disables persistence
	DBPath string `mapstructure:"db_path"`
}

// OperatorConfig holds the boot values of the operator controlled switches.
// They can be changed at runtime through MQTT.
type OperatorConfig struct {
	AutoChargeEnabled    bool    `mapstructure:"auto_charge_enabled"`
	AutoDischargeEnabled bool    `mapstructure:"auto_discharge_enabled"`
	LimitNearFullEnabled bool    `mapstructure:"limit_near_full_enabled"`
	AuxMinDischargeSoC   float64 `mapstructure:"aux_min_discharge_soc"`
}

type RampConfig struct {
	MaxDeltaWatt float64       `mapstructure:"max_delta_watt"`
	MinHold      time.Duration `mapstructure:"min_hold"`
}

// ControlConfig holds every tunable of the aux battery control loop.
// Power values are in W, SoC values in %, cell voltage in V.
type ControlConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	FailsafeEnabled bool          `mapstructure:"failsafe_enabled"`

	SetpointDeadbandWatt float64 `mapstructure:"setpoint_deadband_watt"`
	RampDeadZoneWatt     float64 `mapstructure:"ramp_dead_zone_watt"`

	AuxBatteryMaxWatt    float64 `mapstructure:"aux_battery_max_watt"`
	AuxInverterACMaxWatt float64 `mapstructure:"aux_inverter_ac_max_watt"`
	BaseloadTargetWatt   float64 `mapstructure:"baseload_target_watt"`

	GridImportMinWatt float64 `mapstructure:"grid_import_min_watt"`
	GridExportMinWatt float64 `mapstructure:"grid_export_min_watt"`
	GridToleranceWatt float64 `mapstructure:"grid_tolerance_watt"`

	DischargeStartDelay   time.Duration `mapstructure:"discharge_start_delay"`
	ChargeStartDelay      time.Duration `mapstructure:"charge_start_delay"`
	MinStateHoldTime      time.Duration `mapstructure:"min_state_hold_time"`
	ChargeStopImportDelay time.Duration `mapstructure:"charge_stop_import_delay"`

	PrimaryMinSoCForAuxCharge float64 `mapstructure:"primary_min_soc_for_aux_charge"`
	AuxMinDischargeSoCDefault float64 `mapstructure:"aux_min_discharge_soc_default"`

	PrimaryDischargeWeakWatt   float64 `mapstructure:"primary_discharge_weak_watt"`
	PrimaryDischargeStrongWatt float64 `mapstructure:"primary_discharge_strong_watt"`

	SupportEntryWatt          float64 `mapstructure:"support_entry_watt"`
	SupportExitWatt           float64 `mapstructure:"support_exit_watt"`
	PrimaryToAuxCapacityRatio float64 `mapstructure:"primary_to_aux_capacity_ratio"`
	SupportStepWatt           float64 `mapstructure:"support_step_watt"`
	SupportHysteresisWatt     float64 `mapstructure:"support_hysteresis_watt"`

	AuxNearFullCellVoltage float64 `mapstructure:"aux_near_full_cell_voltage"`
	AuxNearFullChargeWatt  float64 `mapstructure:"aux_near_full_charge_watt"`
	AuxMaxChargeWatt       float64 `mapstructure:"aux_max_charge_watt"`

	ChargeRamp    RampConfig `mapstructure:"charge_ramp"`
	DischargeRamp RampConfig `mapstructure:"discharge_ramp"`
}

func DefaultControlConfig() ControlConfig {
	return ControlConfig{
		Interval:                   3 * time.Second,
		FailsafeEnabled:            true,
		SetpointDeadbandWatt:       20,
		RampDeadZoneWatt:           10,
		AuxBatteryMaxWatt:          7680,
		AuxInverterACMaxWatt:       3000,
		BaseloadTargetWatt:         400,
		GridImportMinWatt:          150,
		GridExportMinWatt:          150,
		GridToleranceWatt:          50,
		DischargeStartDelay:        40 * time.Second,
		ChargeStartDelay:           20 * time.Second,
		MinStateHoldTime:           15 * time.Second,
		ChargeStopImportDelay:      25 * time.Second,
		PrimaryMinSoCForAuxCharge:  15,
		AuxMinDischargeSoCDefault:  5,
		PrimaryDischargeWeakWatt:   200,
		PrimaryDischargeStrongWatt: 500,
		SupportEntryWatt:           400,
		SupportExitWatt:            100,
		PrimaryToAuxCapacityRatio:  1.662,
		SupportStepWatt:            70,
		SupportHysteresisWatt:      100,
		AuxNearFullCellVoltage:     3.440,
		AuxNearFullChargeWatt:      384,
		AuxMaxChargeWatt:           1536,
		ChargeRamp: RampConfig{
			MaxDeltaWatt: 200,
			MinHold:      10 * time.Second,
		},
		DischargeRamp: RampConfig{
			MaxDeltaWatt: 80,
			MinHold:      30 * time.Second,
		},
	}
}

// Validate checks the params the service can not run without. Both inverters are
// required: without the primary one the control loop never leaves FREEZE.
func (c Config) Validate() error {
	if err := c.ControlConfig.Validate(); err != nil {
		return err
	}
	if c.PrimaryInverterModbusTcp.Host == "" {
		return errors.New("config param primary_inverter_modbus_tcp.host is required")
	}
	if c.AuxInverterModbusTcp.Host == "" {
		return errors.New("config param aux_inverter_modbus_tcp.host is required")
	}
	if c.MQTT.CellVoltageTopic != "" && strings.ContainsAny(c.MQTT.CellVoltageTopic, "#+") {
		return errors.New("config param mqtt.cell_voltage_topic can not contain wildcards")
	}
	return nil
}

// Validate checks the few bounds the control loop relies on. Everything else is trusted.
func (c ControlConfig) Validate() error {
	if c.Interval < time.Second {
		return errors.New("config param control.interval should be >= 1s")
	}
	if c.AuxInverterACMaxWatt <= 0 {
		return errors.New("config param control.aux_inverter_ac_max_watt should be > 0")
	}
	if c.ChargeRamp.MaxDeltaWatt <= 0 || c.DischargeRamp.MaxDeltaWatt <= 0 {
		return errors.New("config params control.charge_ramp.max_delta_watt and control.discharge_ramp.max_delta_watt should be > 0")
	}
	if c.SupportStepWatt < 0 {
		return errors.New("config param control.support_step_watt should be >= 0")
	}
	if c.PrimaryToAuxCapacityRatio < 0 {
		return errors.New("config param control.primary_to_aux_capacity_ratio should be >= 0")
	}
	if c.AuxMaxChargeWatt > c.AuxInverterACMaxWatt {
		return errors.New("config param control.aux_max_charge_watt must be <= control.aux_inverter_ac_max_watt")
	}
	return nil
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
	CellVoltageTopic  string `mapstructure:"cell_voltage_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
