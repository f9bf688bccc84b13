package actorutil

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
	"github.com/berfenger/auxbatt2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps a command received on a switch or number topic to an aux control request.
// Unknown ids yield nil, nil.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.AuxControlRequest, error) {
	switch cmd.DeviceId {
	case domain.SWITCH_ID_AUX_AUTO_CHARGE:
		return domain.AuxAutoChargeRequest{
			Enable: cmd.Payload == mqtt.MQTT_PAYLOAD_ON,
		}, nil
	case domain.SWITCH_ID_AUX_AUTO_DISCHARGE:
		return domain.AuxAutoDischargeRequest{
			Enable: cmd.Payload == mqtt.MQTT_PAYLOAD_ON,
		}, nil
	case domain.SWITCH_ID_AUX_LIMIT_NEAR_FULL:
		return domain.AuxLimitNearFullRequest{
			Enable: cmd.Payload == mqtt.MQTT_PAYLOAD_ON,
		}, nil
	case domain.INPUT_NUMBER_ID_AUX_MIN_DISCHARGE_SOC:
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(value) || value < 0 || value > 100 {
			return nil, fmt.Errorf("min discharge SoC out of range: %s", cmd.Payload)
		}
		return domain.AuxMinDischargeSoCRequest{
			SoC: value,
		}, nil
	}
	return nil, nil
}

// ParseCellVoltage parses the payload of the cell voltage topic. Invalid payloads are reported as NaN
// so the control loop treats the voltage as unknown.
func ParseCellVoltage(payload string) domain.AuxCellVoltageUpdate {
	value, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		value = math.NaN()
	}
	return domain.AuxCellVoltageUpdate{Volts: value}
}
