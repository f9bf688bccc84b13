package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/auxbatt2mqtt/internal/adapter/actor"
	"github.com/berfenger/auxbatt2mqtt/internal/adapter/store"
	"github.com/berfenger/auxbatt2mqtt/internal/config"
	"github.com/berfenger/auxbatt2mqtt/internal/core/actor"
	"github.com/berfenger/auxbatt2mqtt/internal/core/port"
	"github.com/berfenger/auxbatt2mqtt/internal/metrics"
	"github.com/berfenger/auxbatt2mqtt/internal/server"
	"github.com/berfenger/auxbatt2mqtt/internal/util/actorutil"
	"github.com/berfenger/auxbatt2mqtt/pkg/sunspec_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// init Modbus actor provider
	modbusProv, err := modbusActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	// control state persistence
	var stateStore port.ControlStateStore
	if cfg.StateConfig.DBPath != "" {
		sqliteStore, err := store.NewSQLiteControlStateStore(cfg.StateConfig.DBPath)
		if err != nil {
			panic(err)
		}
		stateStore = sqliteStore
		defer func() {
			if err := sqliteStore.Close(); err != nil {
				logger.Error("close state store", zap.Error(err))
			}
		}()
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, modbusProv, mqttActorProvider(cfg, logger), stateStore, logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Error("spawn master actor", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	// let the actors release the aux inverter control and persist state before closing the store
	if err := ctx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("stop master actor", zap.Error(err))
	}
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => AUXBATT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("AUXBATT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("auxbatt")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check required params and bounds
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func modbusActorProvider(cfg *config.Config, logger *zap.Logger) (actor.ModbusActorProvider, error) {

	primaryCfg := cfg.PrimaryInverterModbusTcp
	primary, err := sunspec_modbus.CreateInverterIntSFModbusReader(primaryCfg.Host,
		primaryCfg.Port, uint8(primaryCfg.InverterId), requestTimeout(primaryCfg),
		primaryCfg.IgnoreFronius, logger, metrics.ModbusInstrumentation("primary"))
	if err != nil {
		return nil, err
	}

	// the meter hangs from the primary inverter
	acMeter, err := sunspec_modbus.CreateACMeterIntSFModbusReader(primaryCfg.Host,
		primaryCfg.Port, uint8(primaryCfg.MeterId), requestTimeout(primaryCfg),
		primaryCfg.IgnoreFronius, logger, metrics.ModbusInstrumentation("meter"))
	if err != nil {
		return nil, err
	}

	auxCfg := cfg.AuxInverterModbusTcp
	aux, err := sunspec_modbus.CreateInverterIntSFModbusReader(auxCfg.Host,
		auxCfg.Port, uint8(auxCfg.InverterId), requestTimeout(auxCfg),
		auxCfg.IgnoreFronius, logger, metrics.ModbusInstrumentation("aux"))
	if err != nil {
		return nil, err
	}

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(primary, aux, acMeter, cfg, logger)
	}, nil
}

func requestTimeout(cfg config.InverterModbusTCPConfig) time.Duration {
	if cfg.RequestTimeoutSeconds == 0 {
		return 1 * time.Second
	}
	return time.Duration(cfg.RequestTimeoutSeconds) * time.Second
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)

	for _, prefix := range []string{"primary_inverter_modbus_tcp", "aux_inverter_modbus_tcp"} {
		viper.SetDefault(prefix+".host", "")
		viper.SetDefault(prefix+".port", 502)
		viper.SetDefault(prefix+".inverter_id", 1)
		viper.SetDefault(prefix+".meter_id", 200)
		viper.SetDefault(prefix+".ignore_fronius", false)
		viper.SetDefault(prefix+".request_timeout_seconds", 1)
	}
	viper.SetDefault("aux_inverter_modbus_tcp.write_setpoint", false)
	viper.SetDefault("aux_inverter_modbus_tcp.revert_timeout_seconds", 60)

	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "auxbatt")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("mqtt.cell_voltage_topic", "")

	viper.SetDefault("monitor.track_house_power", false)
	viper.SetDefault("state.db_path", "")

	d := config.DefaultControlConfig()
	viper.SetDefault("operator.auto_charge_enabled", true)
	viper.SetDefault("operator.auto_discharge_enabled", true)
	viper.SetDefault("operator.limit_near_full_enabled", false)
	viper.SetDefault("operator.aux_min_discharge_soc", d.AuxMinDischargeSoCDefault)

	viper.SetDefault("control.interval", d.Interval)
	viper.SetDefault("control.failsafe_enabled", d.FailsafeEnabled)
	viper.SetDefault("control.setpoint_deadband_watt", d.SetpointDeadbandWatt)
	viper.SetDefault("control.ramp_dead_zone_watt", d.RampDeadZoneWatt)
	viper.SetDefault("control.aux_battery_max_watt", d.AuxBatteryMaxWatt)
	viper.SetDefault("control.aux_inverter_ac_max_watt", d.AuxInverterACMaxWatt)
	viper.SetDefault("control.baseload_target_watt", d.BaseloadTargetWatt)
	viper.SetDefault("control.grid_import_min_watt", d.GridImportMinWatt)
	viper.SetDefault("control.grid_export_min_watt", d.GridExportMinWatt)
	viper.SetDefault("control.grid_tolerance_watt", d.GridToleranceWatt)
	viper.SetDefault("control.discharge_start_delay", d.DischargeStartDelay)
	viper.SetDefault("control.charge_start_delay", d.ChargeStartDelay)
	viper.SetDefault("control.min_state_hold_time", d.MinStateHoldTime)
	viper.SetDefault("control.charge_stop_import_delay", d.ChargeStopImportDelay)
	viper.SetDefault("control.primary_min_soc_for_aux_charge", d.PrimaryMinSoCForAuxCharge)
	viper.SetDefault("control.aux_min_discharge_soc_default", d.AuxMinDischargeSoCDefault)
	viper.SetDefault("control.primary_discharge_weak_watt", d.PrimaryDischargeWeakWatt)
	viper.SetDefault("control.primary_discharge_strong_watt", d.PrimaryDischargeStrongWatt)
	viper.SetDefault("control.support_entry_watt", d.SupportEntryWatt)
	viper.SetDefault("control.support_exit_watt", d.SupportExitWatt)
	viper.SetDefault("control.primary_to_aux_capacity_ratio", d.PrimaryToAuxCapacityRatio)
	viper.SetDefault("control.support_step_watt", d.SupportStepWatt)
	viper.SetDefault("control.support_hysteresis_watt", d.SupportHysteresisWatt)
	viper.SetDefault("control.aux_near_full_cell_voltage", d.AuxNearFullCellVoltage)
	viper.SetDefault("control.aux_near_full_charge_watt", d.AuxNearFullChargeWatt)
	viper.SetDefault("control.aux_max_charge_watt", d.AuxMaxChargeWatt)
	viper.SetDefault("control.charge_ramp.max_delta_watt", d.ChargeRamp.MaxDeltaWatt)
	viper.SetDefault("control.charge_ramp.min_hold", d.ChargeRamp.MinHold)
	viper.SetDefault("control.discharge_ramp.max_delta_watt", d.DischargeRamp.MaxDeltaWatt)
	viper.SetDefault("control.discharge_ramp.min_hold", d.DischargeRamp.MinHold)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
