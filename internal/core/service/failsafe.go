package service

import "github.com/berfenger/auxbatt2mqtt/internal/core/domain"

// failsafeReason inspects the raw values, before any coercion. The first failing check wins.
func (ctrl *DefaultAuxBatteryControlLogic) failsafeReason(t domain.Telemetry) string {
	if !ctrl.Config.FailsafeEnabled {
		return ""
	}
	switch {
	case !isFinite(t.GridPowerWatt):
		return domain.FailsafeReasonGridPower
	case !isFinite(t.PrimarySoC):
		return domain.FailsafeReasonPrimarySoC
	case !isFinite(t.AuxSoC):
		return domain.FailsafeReasonAuxSoC
	}
	return ""
}
