package service

import (
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/config"
	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
	"github.com/berfenger/auxbatt2mqtt/internal/core/port"

	"go.uber.org/zap"
)

type DefaultAuxBatteryControlLogic struct {
	Config config.ControlConfig
	Logger *zap.Logger
}

func NewDefaultAuxBatteryControlLogic(cfg config.ControlConfig, logger *zap.Logger) *DefaultAuxBatteryControlLogic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultAuxBatteryControlLogic{
		Config: cfg,
		Logger: logger,
	}
}

// tickContext is everything the decision steps of a tick look at.
type tickContext struct {
	in        controlInputs
	timers    debounceTimers
	reason    string
	stateHold time.Duration
	st        *domain.ControlState
}

func (ctrl *DefaultAuxBatteryControlLogic) Tick(now time.Time, telemetry domain.Telemetry, st *domain.ControlState) domain.ControlTickResult {

	// cold start counts as a fresh state entry and a fresh ramp change
	if st.LastStateTs.IsZero() {
		st.LastStateTs = now
	}
	if st.LastRampTs.IsZero() {
		st.LastRampTs = now
	}
	if st.State == "" {
		st.State = domain.ControlStateIdle
	}
	if st.DischargeMode == "" {
		st.DischargeMode = domain.DischargeModeGrid
	}

	tc := tickContext{
		in:     ctrl.ingest(telemetry),
		reason: ctrl.failsafeReason(telemetry),
		st:     st,
	}
	tc.timers = ctrl.trackTimers(now, tc.in.gridPower, st)
	tc.stateHold = now.Sub(st.LastStateTs)

	transition := ctrl.transition(now, tc)
	if transition != nil {
		if transition.To == string(domain.ControlStateFreeze) {
			ctrl.Logger.Warn("aux_control@tick entering FREEZE", zap.String("from", transition.From), zap.String("reason", tc.reason))
		} else {
			ctrl.Logger.Info("aux_control@tick state transition", zap.String("from", transition.From), zap.String("to", transition.To))
		}
	}

	target := ctrl.targetSetpoint(tc)
	setpoint := ctrl.ramp(now, target, st)

	debug := ctrl.debugSnapshot(tc, setpoint)
	result := domain.ControlTickResult{
		Setpoint:       setpoint,
		EmitSetpoint:   gateSetpoint(setpoint, ctrl.Config.SetpointDeadbandWatt, st),
		Debug:          debug,
		EmitDebug:      gateDebug(debug, st),
		Status:         ctrl.status(tc, setpoint),
		FailsafeReason: tc.reason,
		Transition:     transition,
	}

	ctrl.Logger.Debug("aux_control@tick",
		zap.String("state", st.Label()),
		zap.Float64("target", target),
		zap.Int("setpoint", setpoint),
		zap.Bool("emit", result.EmitSetpoint),
		zap.Duration("state_hold", tc.stateHold))

	return result
}

// ensure interface compliance
var _ port.AuxControlLogic = (*DefaultAuxBatteryControlLogic)(nil)
