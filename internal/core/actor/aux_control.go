package actor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/config"
	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
	"github.com/berfenger/auxbatt2mqtt/internal/core/events"
	"github.com/berfenger/auxbatt2mqtt/internal/core/port"
	"github.com/berfenger/auxbatt2mqtt/internal/metrics"
	"github.com/berfenger/auxbatt2mqtt/internal/mqtt"
	. "github.com/berfenger/auxbatt2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const (
	SETPOINT_WRITE_TIMEOUT = 2500 * time.Millisecond
	SETPOINT_AWAIT_TIMEOUT = 3 * time.Second
)

// AuxControlActor owns the control state. It runs one control tick per measurement snapshot
// and pushes the outputs to MQTT, the event stream and (optionally) the aux inverter.
type AuxControlActor struct {
	ActorWithStates
	stash       *Stash
	modbusActor *actor.PID
	mqttActor   *actor.PID
	config      *config.Config
	eventStream *eventstream.EventStream
	logic       port.AuxControlLogic
	store       port.ControlStateStore

	st          *domain.ControlState
	operator    domain.OperatorSettings
	lastResult  *domain.ControlTickResult
	lastWriteTs time.Time

	logger *zap.Logger
}

// NewAuxControlActor creates the control actor. store may be nil to run without persistence.
func NewAuxControlActor(config *config.Config, logic port.AuxControlLogic, store port.ControlStateStore,
	modbusActor *actor.PID, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *AuxControlActor {
	act := &AuxControlActor{
		config:      config,
		logic:       logic,
		store:       store,
		modbusActor: modbusActor,
		mqttActor:   mqttActor,
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_AUX_CONTROL, logger),
		eventStream: eventStream,
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(ACStartingState{
		actor: act,
	})
	return act
}

func (state *AuxControlActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type ACStartingState struct {
	ActorState
	actor *AuxControlActor
}

func (state ACStartingState) Name() string {
	return "starting"
}

func (state ACStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("aux_control@starting started")

		state.actor.st = state.actor.loadState()
		state.actor.operator = state.actor.loadOperatorSettings()
		state.actor.publishEvents(events.OperatorSettingsUpdateEvents(state.actor.operator))

		state.actor.Become(ACRunningState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("aux_control@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Running state

type ACRunningState struct {
	ActorState
	actor *AuxControlActor
}

func (state ACRunningState) Name() string {
	return "running"
}

func (state ACRunningState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("aux_control@running ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_AUX_CONTROL,
			Healthy: true,
			State:   state.actor.StateName(),
		})
	case domain.MeasurementsSnapshot:
		result := state.actor.tick(ctx, msg.Measurements)
		if setpoint, ok := state.actor.setpointToWrite(msg.Measurements.Timestamp, result); ok {
			state.actor.BecomeStacked(ACAwaitSetpointResponseState{
				actor: state.actor,
			}.OnEnterAction(ctx, setpoint, msg.Measurements.Timestamp))
		}
	case domain.AuxControlRequest:
		state.actor.applyCommand(msg)
	case domain.GetControlStatusRequest:
		state.actor.logger.Debug("aux_control@running GetControlStatusRequest")
		ForRequest(msg).Respond(ctx, state.actor.controlStatus())
	case domain.SetAuxSetpointResponse:
		// late response after a receive timeout
		if msg.HasResponseError() {
			state.actor.logger.Warn("aux_control@running late SetAuxSetpointResponse error", zap.Error(msg.GetResponseError()))
		}
	case *actor.Stopping:
		state.actor.saveState()
	default:
		state.actor.logger.Debug("aux_control@running recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Await setpoint write state

type ACAwaitSetpointResponseState struct {
	ActorState
	actor    *AuxControlActor
	setpoint int
}

func (state ACAwaitSetpointResponseState) Name() string {
	return "awaitSetpointResponse"
}

func (state ACAwaitSetpointResponseState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_AUX_CONTROL,
			Healthy: true,
			State:   state.actor.StateName(),
		})
	case domain.SetAuxSetpointResponse:
		ctx.SetReceiveTimeout(0)
		if msg.HasResponseError() {
			state.actor.logger.Error("aux_control@awaitSetpointResponse SetAuxSetpointResponse error",
				zap.Int("setpoint", state.setpoint), zap.Error(msg.GetResponseError()))
			// force a rewrite on the next tick
			state.actor.lastWriteTs = time.Time{}
		} else {
			state.actor.logger.Debug("aux_control@awaitSetpointResponse SetAuxSetpointResponse", zap.Int("setpoint", state.setpoint))
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Warn("aux_control@awaitSetpointResponse ReceiveTimeout", zap.Int("setpoint", state.setpoint))
		metrics.ModbusErrors.WithLabelValues("setpoint").Inc()
		state.actor.lastWriteTs = time.Time{}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.actor.saveState()
	default:
		state.actor.logger.Debug("aux_control@awaitSetpointResponse stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state ACAwaitSetpointResponseState) OnEnterAction(ctx actor.Context, setpoint int, now time.Time) ACAwaitSetpointResponseState {
	state.setpoint = setpoint
	if now.IsZero() {
		now = time.Now()
	}
	state.actor.lastWriteTs = now
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.modbusActor,
		domain.SetAuxSetpointRequest{
			SetpointWatt:      setpoint,
			RevertTimeSeconds: state.actor.config.AuxInverterModbusTcp.RevertTimeoutSeconds,
		}, SETPOINT_WRITE_TIMEOUT),
		func(err error) any {
			return domain.SetAuxSetpointResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
	ctx.SetReceiveTimeout(SETPOINT_AWAIT_TIMEOUT)
	return state
}

// Other actor function helpers

func (state *AuxControlActor) tick(ctx actor.Context, m domain.Measurements) domain.ControlTickResult {
	now := m.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	result := state.logic.Tick(now, domain.Telemetry{
		Measurements:     m,
		OperatorSettings: state.operator,
	}, state.st)
	state.lastResult = &result
	metrics.ObserveTick(*state.st, result)

	base := state.config.MQTT.BaseTopic
	if result.EmitSetpoint {
		state.logger.Debug("aux_control: setpoint", zap.Int("setpoint", result.Setpoint))
		state.publish(ctx, mqtt.AuxSetpointTopic(base), strconv.Itoa(result.Setpoint), false)
	}
	if result.EmitDebug {
		payload, err := json.Marshal(result.Debug)
		if err != nil {
			state.logger.Error("aux_control: marshal debug snapshot", zap.Error(err))
		} else {
			state.publish(ctx, mqtt.AuxDebugTopic(base), string(payload), false)
		}
	}
	state.publishEvents(events.ControlStatusUpdateEvents(result))
	state.saveState()
	return result
}

// setpointToWrite tells whether the current setpoint has to be written to the aux inverter.
// Unchanged setpoints are rewritten at half the inverter revert timeout.
func (state *AuxControlActor) setpointToWrite(now time.Time, result domain.ControlTickResult) (int, bool) {
	cfg := state.config.AuxInverterModbusTcp
	if !cfg.WriteSetpoint || state.modbusActor == nil || !state.st.HasEmittedSetpoint {
		return 0, false
	}
	if result.EmitSetpoint || state.lastWriteTs.IsZero() {
		return state.st.LastEmittedSetpoint, true
	}
	refresh := time.Duration(cfg.RevertTimeoutSeconds) * time.Second / 2
	if refresh > 0 && now.Sub(state.lastWriteTs) >= refresh {
		return state.st.LastEmittedSetpoint, true
	}
	return 0, false
}

func (state *AuxControlActor) applyCommand(cmd domain.AuxControlRequest) {
	switch c := cmd.(type) {
	case domain.AuxAutoChargeRequest:
		state.logger.Sugar().Infof("aux_control: cmd auto charge %t", c.Enable)
		state.operator.AutoChargeEnabled = c.Enable
		state.publishEvents([]any{events.SwitchUpdateEvent(domain.SWITCH_ID_AUX_AUTO_CHARGE, c.Enable)})
	case domain.AuxAutoDischargeRequest:
		state.logger.Sugar().Infof("aux_control: cmd auto discharge %t", c.Enable)
		state.operator.AutoDischargeEnabled = c.Enable
		state.publishEvents([]any{events.SwitchUpdateEvent(domain.SWITCH_ID_AUX_AUTO_DISCHARGE, c.Enable)})
	case domain.AuxLimitNearFullRequest:
		state.logger.Sugar().Infof("aux_control: cmd limit near full %t", c.Enable)
		state.operator.LimitNearFullEnabled = c.Enable
		state.publishEvents([]any{events.SwitchUpdateEvent(domain.SWITCH_ID_AUX_LIMIT_NEAR_FULL, c.Enable)})
	case domain.AuxMinDischargeSoCRequest:
		state.logger.Sugar().Infof("aux_control: cmd min discharge SoC %.1f", c.SoC)
		state.operator.AuxMinDischargeSoC = domain.NewNullFloat64(c.SoC)
		state.publishEvents([]any{events.MinDischargeSoCUpdateEvent(c.SoC)})
	case domain.AuxCellVoltageUpdate:
		state.operator.AuxMaxCellVoltage = domain.NewNullFloat64(c.Volts)
		if state.operator.AuxMaxCellVoltage.Valid {
			state.publishEvents([]any{events.CellVoltageUpdateEvent(c.Volts)})
		}
	default:
		state.logger.Warn("aux_control: unknown command", zap.String("type", cmd.AuxControlCommand()))
		return
	}
	if _, reading := cmd.(domain.AuxCellVoltageUpdate); !reading {
		state.saveOperatorSettings()
	}
}

func (state *AuxControlActor) controlStatus() domain.GetControlStatusResponse {
	resp := domain.GetControlStatusResponse{
		State:    state.st.Label(),
		Setpoint: state.st.LastSetpoint,
		Operator: domain.OperatorStatus(state.operator),
	}
	if state.lastResult != nil {
		resp.Status = state.lastResult.Status
		debug := state.lastResult.Debug
		resp.Debug = &debug
	} else {
		resp.Status = domain.Status{
			Label:    state.st.Label(),
			Severity: domain.StatusSeverityNeutral,
			Color:    domain.StatusColorGrey,
			Text:     "waiting for telemetry",
		}
	}
	return resp
}

func (state *AuxControlActor) loadState() *domain.ControlState {
	if state.store == nil {
		return domain.NewControlState()
	}
	st, err := state.store.Load()
	if err != nil {
		state.logger.Error("aux_control: load persisted state", zap.Error(err))
		return domain.NewControlState()
	}
	if st == nil {
		return domain.NewControlState()
	}
	state.logger.Info("aux_control: restored state", zap.String("state", st.Label()), zap.Int("setpoint", st.LastSetpoint))
	return st
}

// loadOperatorSettings restores the operator choices made over MQTT, falling back to the config defaults.
func (state *AuxControlActor) loadOperatorSettings() domain.OperatorSettings {
	op := state.config.OperatorConfig
	defaults := domain.OperatorSettings{
		AutoChargeEnabled:    op.AutoChargeEnabled,
		AutoDischargeEnabled: op.AutoDischargeEnabled,
		LimitNearFullEnabled: op.LimitNearFullEnabled,
		AuxMinDischargeSoC:   domain.NewNullFloat64(op.AuxMinDischargeSoC),
	}
	if state.store == nil {
		return defaults
	}
	saved, err := state.store.LoadOperatorSettings()
	if err != nil {
		state.logger.Error("aux_control: load operator settings", zap.Error(err))
		return defaults
	}
	if saved == nil {
		return defaults
	}
	if !saved.AuxMinDischargeSoC.Valid {
		saved.AuxMinDischargeSoC = defaults.AuxMinDischargeSoC
	}
	saved.AuxMaxCellVoltage = domain.NullFloat64{}
	state.logger.Info("aux_control: restored operator settings",
		zap.Bool("auto_charge", saved.AutoChargeEnabled),
		zap.Bool("auto_discharge", saved.AutoDischargeEnabled),
		zap.Bool("limit_near_full", saved.LimitNearFullEnabled))
	return *saved
}

func (state *AuxControlActor) saveOperatorSettings() {
	if state.store == nil {
		return
	}
	op := state.operator
	// the cell voltage is a reading, not an operator choice
	op.AuxMaxCellVoltage = domain.NullFloat64{}
	if err := state.store.SaveOperatorSettings(op); err != nil {
		state.logger.Error("aux_control: save operator settings", zap.Error(err))
	}
}

func (state *AuxControlActor) saveState() {
	if state.store == nil || state.st == nil {
		return
	}
	if err := state.store.Save(*state.st); err != nil {
		state.logger.Error("aux_control: save state", zap.Error(err))
	}
}

func (state *AuxControlActor) publish(ctx actor.Context, topic, payload string, retain bool) {
	if state.mqttActor == nil {
		return
	}
	ctx.Send(state.mqttActor, domain.PublishMessageRequest{
		Topic:   topic,
		Payload: payload,
		Retain:  retain,
	})
}

func (state *AuxControlActor) publishEvents(evs []any) {
	for _, ev := range evs {
		state.eventStream.Publish(ev)
	}
}
