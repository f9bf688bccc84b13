package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/config"
	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
	"github.com/berfenger/auxbatt2mqtt/internal/core/events"
	. "github.com/berfenger/auxbatt2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// TelemetryActor polls the modbus actor every control interval and forwards each
// acquisition to the control actor. A new read is only scheduled once the previous one resolved.
type TelemetryActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	modbusActor  *actor.PID
	controlActor *actor.PID
	config       *config.Config
	eventStream  *eventstream.EventStream
	ticks        uint64

	logger *zap.Logger
}

type telemetryTick struct {
}

func NewTelemetryActor(config *config.Config, modbusActor *actor.PID, controlActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *TelemetryActor {
	act := &TelemetryActor{
		config:       config,
		modbusActor:  modbusActor,
		controlActor: controlActor,
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		logger:       ActorLogger(domain.ACTOR_ID_TELEMETRY, logger),
		eventStream:  eventStream,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *TelemetryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *TelemetryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("telemetry@starting started", zap.Duration("interval", state.config.ControlConfig.Interval))

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.scheduler.RequestOnce(state.config.ControlConfig.Interval, ctx.Self(), telemetryTick{})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("telemetry@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TelemetryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("telemetry@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_TELEMETRY,
			Healthy: true,
			State:   "idle",
		})
	case telemetryTick:
		state.logger.Debug("telemetry@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetMeasurementsRequest{}, 3*time.Second), func(err error) any {
			return domain.GetMeasurementsResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
				Measurements: domain.InvalidMeasurements(time.Now()),
			}
		})
		state.behavior.BecomeStacked(state.WaitingMeasurementsReceive)
	default:
		state.logger.Debug("telemetry@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *TelemetryActor) WaitingMeasurementsReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetMeasurementsResponse:
		m := msg.Measurements
		if m.Timestamp.IsZero() {
			m = domain.InvalidMeasurements(time.Now())
		}
		if msg.HasResponseError() {
			state.logger.Warn("telemetry@waiting GetMeasurementsResponse error", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Debug("telemetry@waiting GetMeasurementsResponse", zap.Float64("grid", m.GridPowerWatt))
		}
		state.ticks++

		for _, ev := range events.MeasurementsToUpdateEvents(m) {
			state.eventStream.Publish(ev)
		}
		if state.controlActor != nil {
			ctx.Send(state.controlActor, domain.MeasurementsSnapshot{Measurements: m})
		}

		// schedule next tick
		state.scheduler.RequestOnce(state.config.ControlConfig.Interval, ctx.Self(), telemetryTick{})
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("telemetry@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}
