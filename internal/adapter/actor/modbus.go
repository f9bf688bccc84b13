package actor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/config"
	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
	"github.com/berfenger/auxbatt2mqtt/internal/metrics"
	"github.com/berfenger/auxbatt2mqtt/internal/util/actorutil"
	"github.com/berfenger/auxbatt2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	MODBUS_TASK_TIMEOUT = 2 * time.Second
)

type ModbusActor struct {
	config   *config.Config
	behavior actor.Behavior
	stash    *actorutil.Stash
	primary  sunspec_modbus.InverterModbusReader
	aux      sunspec_modbus.InverterModbusReader
	acMeter  sunspec_modbus.ACMeterModbusReader
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(primary sunspec_modbus.InverterModbusReader, aux sunspec_modbus.InverterModbusReader,
	acMeter sunspec_modbus.ACMeterModbusReader, config *config.Config, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		config:   config,
		primary:  primary,
		aux:      aux,
		acMeter:  acMeter,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		if state.primary != nil {
			if err := state.primary.Open(); err != nil {
				panic(fmt.Errorf("open primary inverter: %w", err))
			}
		}
		if state.aux != nil {
			if err := state.aux.Open(); err != nil {
				panic(fmt.Errorf("open aux inverter: %w", err))
			}
		}
		if state.acMeter != nil {
			if err := state.acMeter.Open(); err != nil {
				panic(fmt.Errorf("open ac meter: %w", err))
			}
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.close()
	default:
		state.logger.Debug("modbus@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetDevicesInfoRequest:
		state.logger.Debug("modbus@default GetDevicesInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getDevicesInfo),
			mapTaskResult[domain.GetDevicesInfoResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetDevicesInfoResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(MODBUS_TASK_TIMEOUT).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.GetMeasurementsRequest:
		state.logger.Debug("modbus@default GetMeasurementsRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, state.getMeasurements),
			mapTaskResult[domain.GetMeasurementsResponse](sender)).Recover(func(err error) backgroundTaskResult {
			metrics.ModbusErrors.WithLabelValues("measurements").Inc()
			return backgroundTaskResult{
				message: domain.GetMeasurementsResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Measurements: domain.InvalidMeasurements(time.Now()),
				},
				replyTo: sender,
			}
		}).WithTimeout(MODBUS_TASK_TIMEOUT).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.SetAuxSetpointRequest:
		state.logger.Debug("modbus@default SetAuxSetpointRequest", zap.Int("setpoint", msg.SetpointWatt))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.SetAuxSetpointResponse {
			a := state.setAuxSetpoint(msg.SetpointWatt, msg.RevertTimeSeconds)
			return &a
		}),
			mapTaskResult[domain.SetAuxSetpointResponse](sender)).Recover(func(err error) backgroundTaskResult {
			metrics.ModbusErrors.WithLabelValues("setpoint").Inc()
			return backgroundTaskResult{
				message: domain.SetAuxSetpointResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(MODBUS_TASK_TIMEOUT).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.release()
		state.close()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@waitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.release()
		state.close()
	default:
		state.logger.Debug("modbus@waitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *ModbusActor) getDevicesInfo() (*domain.GetDevicesInfoResponse, error) {
	var resp domain.GetDevicesInfoResponse
	var err error

	if a.primary != nil {
		resp.PrimaryInverter, err = a.primary.GetInfo()
		if err != nil {
			a.logger.Error("modbus: primary inverter info", zap.Error(err))
			return nil, err
		}
	}
	if a.aux != nil {
		resp.AuxInverter, err = a.aux.GetInfo()
		if err != nil {
			a.logger.Error("modbus: aux inverter info", zap.Error(err))
			return nil, err
		}
	}
	if a.acMeter != nil {
		resp.ACMeter, err = a.acMeter.GetInfo()
		if err != nil {
			a.logger.Error("modbus: ac meter info", zap.Error(err))
			return nil, err
		}
	}
	return &resp, nil
}

// getMeasurements reads every device once. A failed device leaves its values as NaN and the
// error is reported along with the partial measurements.
func (a *ModbusActor) getMeasurements() *domain.GetMeasurementsResponse {
	m := domain.InvalidMeasurements(time.Now())
	var errs []error

	if a.acMeter != nil {
		grid, err := a.acMeter.GetCurrentPowerFlowWatt()
		if err != nil {
			errs = append(errs, fmt.Errorf("ac meter power flow: %w", err))
		} else {
			m.GridPowerWatt = grid
		}
	}

	primaryAC, err := a.readInverter(a.primary, "primary", &m.PrimaryChargePowerWatt, &m.PrimaryDischargePowerWatt, &m.PrimarySoC)
	if err != nil {
		errs = append(errs, err)
	}
	auxAC, err := a.readInverter(a.aux, "aux", &m.AuxChargePowerWatt, &m.AuxDischargePowerWatt, &m.AuxSoC)
	if err != nil {
		errs = append(errs, err)
	}

	if a.config.MonitorConfig.TrackHousePower {
		m.HouseLoadWatt = domain.NewNullFloat64(m.GridPowerWatt + primaryAC + auxAC)
	}

	for range errs {
		metrics.ModbusErrors.WithLabelValues("measurements").Inc()
	}
	err = errors.Join(errs...)
	if err != nil {
		a.logger.Warn("modbus: measurements incomplete", zap.Error(err))
	}
	return &domain.GetMeasurementsResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{
			ResponseError: err,
		},
		Measurements: m,
	}
}

// readInverter fills the battery powers and SoC of one inverter and returns its AC power.
// The AC power is NaN when it could not be read.
func (a *ModbusActor) readInverter(reader sunspec_modbus.InverterModbusReader, name string,
	charge, discharge, soc *float64) (float64, error) {
	if reader == nil {
		return math.NaN(), nil
	}
	pf, err := reader.GetPowerFlow()
	if err != nil {
		return math.NaN(), fmt.Errorf("%s inverter power flow: %w", name, err)
	}
	*charge = pf.BatteryChargePowerWatt
	*discharge = pf.BatteryDischargePowerWatt

	storage, err := reader.GetStorageState()
	if err != nil {
		return pf.ACPowerWatt, fmt.Errorf("%s inverter storage: %w", name, err)
	}
	*soc = storage.StateOfCharge
	return pf.ACPowerWatt, nil
}

func (a *ModbusActor) setAuxSetpoint(setpointWatt int, revertTimeSeconds uint32) domain.SetAuxSetpointResponse {
	if a.aux == nil {
		return domain.SetAuxSetpointResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: errors.New("aux inverter not configured"),
			},
		}
	}
	params := sunspec_modbus.StorageSetpointParams(int32(setpointWatt), revertTimeSeconds)
	if err := a.aux.SetStorageControl(params); err != nil {
		a.logger.Error("modbus: set aux storage control", zap.Error(err))
		metrics.ModbusErrors.WithLabelValues("setpoint").Inc()
		return domain.SetAuxSetpointResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	}
	return domain.SetAuxSetpointResponse{}
}

// release hands the aux battery back to the inverter when this process was writing setpoints.
func (a *ModbusActor) release() {
	if a.aux == nil || a.config == nil || !a.config.AuxInverterModbusTcp.WriteSetpoint {
		return
	}
	if err := a.aux.DisableStorageControl(); err != nil {
		a.logger.Error("modbus: disable aux storage control", zap.Error(err))
	}
}

func (a *ModbusActor) close() {
	if a.primary != nil {
		a.primary.Close()
	}
	if a.aux != nil {
		a.aux.Close()
	}
	if a.acMeter != nil {
		a.acMeter.Close()
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
