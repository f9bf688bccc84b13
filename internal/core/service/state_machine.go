package service

import (
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/config"
	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
)

// transitionRule is one row of the hold-gated transition table. Rows are evaluated in order
// and the first row whose match holds is selected. A selected row only fires when ready
// holds as well; rows after a selected one are never looked at in the same tick.
type transitionRule struct {
	from  domain.ControlStateName
	to    domain.ControlStateName
	mode  domain.DischargeMode
	match func(cfg config.ControlConfig, tc tickContext) bool
	ready func(cfg config.ControlConfig, tc tickContext) bool
}

var transitionRules = []transitionRule{
	{
		from: domain.ControlStateIdle,
		to:   domain.ControlStateChargeSurplus,
		match: func(cfg config.ControlConfig, tc tickContext) bool {
			in := tc.in
			return in.chargeEnabled &&
				in.primarySoC >= cfg.PrimaryMinSoCForAuxCharge &&
				in.primaryDischarge <= cfg.PrimaryDischargeWeakWatt &&
				tc.timers.exportHigh &&
				in.primaryDischarge <= cfg.PrimaryDischargeStrongWatt
		},
		ready: func(cfg config.ControlConfig, tc tickContext) bool {
			// already charging last tick skips the start delay
			return tc.st.LastSetpoint > 0 || tc.timers.exportHighFor >= cfg.ChargeStartDelay
		},
	},
	{
		from: domain.ControlStateIdle,
		to:   domain.ControlStateDischargeBase,
		mode: domain.DischargeModeGrid,
		match: func(cfg config.ControlConfig, tc tickContext) bool {
			return canDischarge(tc.in) &&
				tc.timers.importHigh &&
				tc.timers.importHighFor >= cfg.DischargeStartDelay
		},
	},
	{
		from: domain.ControlStateIdle,
		to:   domain.ControlStateDischargeBase,
		mode: domain.DischargeModeSupport,
		match: func(cfg config.ControlConfig, tc tickContext) bool {
			return canDischarge(tc.in) && tc.in.primaryDischarge >= cfg.SupportEntryWatt
		},
	},
	{
		from: domain.ControlStateChargeSurplus,
		to:   domain.ControlStateIdle,
		match: func(cfg config.ControlConfig, tc tickContext) bool {
			in := tc.in
			stopped := in.gridPower >= 0 &&
				tc.timers.importStopFor >= cfg.ChargeStopImportDelay &&
				tc.st.LastSetpoint == 0
			return !in.chargeEnabled ||
				in.primarySoC < cfg.PrimaryMinSoCForAuxCharge ||
				stopped ||
				in.primaryDischarge > cfg.PrimaryDischargeStrongWatt
		},
	},
	{
		from: domain.ControlStateDischargeBase,
		to:   domain.ControlStateIdle,
		match: func(cfg config.ControlConfig, tc tickContext) bool {
			in := tc.in
			if !in.dischargeEnabled || in.auxSoC <= in.auxMinDischargeSoC {
				return true
			}
			switch tc.st.DischargeMode {
			case domain.DischargeModeGrid:
				return in.gridPower <= 0
			case domain.DischargeModeSupport:
				return in.primaryDischarge < cfg.SupportExitWatt
			}
			return false
		},
	},
}

func canDischarge(in controlInputs) bool {
	return in.dischargeEnabled && in.auxSoC > in.auxMinDischargeSoC
}

// transition moves st to the state of this tick and reports the change, if any.
// FREEZE entry ignores the hold time. Every other transition requires it.
func (ctrl *DefaultAuxBatteryControlLogic) transition(now time.Time, tc tickContext) *domain.ControlTransition {
	st := tc.st
	minHold := ctrl.Config.MinStateHoldTime

	if tc.reason != "" {
		if st.State == domain.ControlStateFreeze {
			return nil
		}
		// discharge mode is kept as is
		return enterState(now, st, domain.ControlStateFreeze, st.DischargeMode)
	}

	if st.State == domain.ControlStateFreeze {
		if tc.stateHold >= minHold {
			return enterState(now, st, domain.ControlStateIdle, st.DischargeMode)
		}
		return nil
	}

	if tc.stateHold < minHold {
		return nil
	}

	for _, rule := range transitionRules {
		if rule.from != st.State || !rule.match(ctrl.Config, tc) {
			continue
		}
		if rule.ready != nil && !rule.ready(ctrl.Config, tc) {
			return nil
		}
		mode := st.DischargeMode
		if rule.to == domain.ControlStateDischargeBase {
			mode = rule.mode
		}
		if rule.from == domain.ControlStateDischargeBase {
			mode = domain.DischargeModeGrid
			st.LastSupportTarget = 0
		}
		return enterState(now, st, rule.to, mode)
	}
	return nil
}

func enterState(now time.Time, st *domain.ControlState, to domain.ControlStateName, mode domain.DischargeMode) *domain.ControlTransition {
	from := st.Label()
	st.State = to
	st.DischargeMode = mode
	st.LastStateTs = now
	return &domain.ControlTransition{
		From: from,
		To:   st.Label(),
	}
}
