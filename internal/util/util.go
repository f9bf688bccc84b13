package util

import (
	"github.com/berfenger/auxbatt2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		PrimaryInverterModbusTcp: config.InverterModbusTCPConfig{
			Host:       "-.-.-.-",
			Port:       502,
			MeterId:    200,
			InverterId: 1,
		},
		AuxInverterModbusTcp: config.InverterModbusTCPConfig{
			Host:                 "-.-.-.-",
			Port:                 502,
			InverterId:           1,
			WriteSetpoint:        true,
			RevertTimeoutSeconds: 60,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "auxbatt",
		},
		ControlConfig: config.DefaultControlConfig(),
		OperatorConfig: config.OperatorConfig{
			AutoChargeEnabled:    true,
			AutoDischargeEnabled: true,
			AuxMinDischargeSoC:   5,
		},
		MonitorConfig: config.MonitorConfig{
			TrackHousePower: true,
		},
		Port: 8080,
	}
}
