package service

import (
	"math"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
)

// targetSetpoint is the pre-ramp setpoint for the current state. +charge / -discharge
func (ctrl *DefaultAuxBatteryControlLogic) targetSetpoint(tc tickContext) float64 {
	st := tc.st
	switch {
	case st.State == domain.ControlStateChargeSurplus && tc.reason == "":
		return ctrl.surplusChargeTarget(tc.in)
	case st.State == domain.ControlStateDischargeBase && tc.reason == "":
		switch st.DischargeMode {
		case domain.DischargeModeGrid:
			return ctrl.baseloadDischargeTarget(tc.in)
		case domain.DischargeModeSupport:
			return ctrl.supportDischargeTarget(tc.in, st)
		}
		return 0
	default:
		st.LastSupportTarget = 0
		return 0
	}
}

// surplusChargeTarget follows the grid: more export charges more, import charges less.
func (ctrl *DefaultAuxBatteryControlLogic) surplusChargeTarget(in controlInputs) float64 {
	cfg := ctrl.Config

	correction := 0.0
	if in.gridPower < -cfg.GridToleranceWatt || in.gridPower > cfg.GridToleranceWatt {
		correction = -in.gridPower
	}
	target := math.Max(0, in.auxCharge+correction)
	return math.Min(target, math.Min(cfg.AuxInverterACMaxWatt, in.effectiveMaxCharge))
}

func (ctrl *DefaultAuxBatteryControlLogic) baseloadDischargeTarget(in controlInputs) float64 {
	cfg := ctrl.Config

	var need float64
	if in.houseLoad.Valid && in.houseLoad.Value > 0 {
		need = math.Min(in.houseLoad.Value, cfg.BaseloadTargetWatt)
	} else {
		need = math.Min(math.Max(in.gridPower, 0), cfg.BaseloadTargetWatt)
	}
	target := math.Min(need, math.Min(cfg.BaseloadTargetWatt, cfg.AuxInverterACMaxWatt))
	return -math.Max(0, roundHalfUp(target))
}

// supportDischargeTarget shares the primary battery discharge by capacity ratio,
// quantized to the support step with hysteresis against the last nonzero target.
func (ctrl *DefaultAuxBatteryControlLogic) supportDischargeTarget(in controlInputs, st *domain.ControlState) float64 {
	cfg := ctrl.Config

	raw := 0.0
	if cfg.PrimaryToAuxCapacityRatio > 0 {
		raw = math.Max(0, in.primaryDischarge) / cfg.PrimaryToAuxCapacityRatio
	}
	target := math.Min(raw, cfg.AuxInverterACMaxWatt)
	if cfg.SupportStepWatt > 0 {
		target = roundHalfUp(target/cfg.SupportStepWatt) * cfg.SupportStepWatt
	}

	if st.LastSupportTarget > 0 && target > 0 &&
		math.Abs(target-st.LastSupportTarget) < cfg.SupportHysteresisWatt {
		target = st.LastSupportTarget
	}

	if target < cfg.SupportStepWatt {
		st.LastSupportTarget = 0
		return 0
	}
	st.LastSupportTarget = target
	return -target
}

// roundHalfUp rounds .5 towards +Inf.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
