package service

import (
	"fmt"
	"math"
	"strconv"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
)

func (ctrl *DefaultAuxBatteryControlLogic) status(tc tickContext, setpoint int) domain.Status {
	st := tc.st
	in := tc.in
	flags := enableFlags(in.chargeEnabled, in.dischargeEnabled)

	status := domain.Status{
		Label:    st.Label(),
		Severity: domain.StatusSeverityActive,
	}
	switch st.State {
	case domain.ControlStateIdle:
		status.Severity = domain.StatusSeverityNeutral
		status.Color = domain.StatusColorGrey
		status.Text = fmt.Sprintf("IDLE %s P=%dW Pg=%sW", flags, setpoint, watts(in.gridPower))
	case domain.ControlStateChargeSurplus:
		lim := ""
		if in.chargeLimitActive {
			lim = " (LIM)"
		}
		status.Color = domain.StatusColorGreen
		status.Text = fmt.Sprintf("CHG%s %s P=%dW Pg=%sW SoC_main=%s%%", lim, flags, setpoint, watts(in.gridPower), percent(in.primarySoC))
	case domain.ControlStateDischargeBase:
		status.Color = domain.StatusColorYellow
		if st.DischargeMode == domain.DischargeModeSupport {
			status.Color = domain.StatusColorOrange
		}
		status.Text = fmt.Sprintf("%s %s P=%dW Pg=%sW SoC_aux=%s%%", st.Label(), flags, setpoint, watts(in.gridPower), percent(in.auxSoC))
	case domain.ControlStateFreeze:
		status.Severity = domain.StatusSeverityError
		status.Color = domain.StatusColorRed
		status.Text = fmt.Sprintf("FREEZE %s %s", flags, tc.reason)
	}
	return status
}

func (ctrl *DefaultAuxBatteryControlLogic) debugSnapshot(tc tickContext, setpoint int) domain.DebugSnapshot {
	st := tc.st
	in := tc.in
	return domain.DebugSnapshot{
		State:                     st.Label(),
		StateBase:                 st.State,
		DischargeMode:             st.DischargeMode,
		FailsafeReason:            tc.reason,
		GridPowerWatt:             in.gridPower,
		HouseLoadWatt:             in.houseLoad,
		PrimarySoC:                domain.NewNullFloat64(in.primarySoC),
		AuxSoC:                    domain.NewNullFloat64(in.auxSoC),
		AuxMinDischargeSoC:        in.auxMinDischargeSoC,
		PrimaryChargePowerWatt:    in.primaryCharge,
		PrimaryDischargePowerWatt: in.primaryDischarge,
		AuxChargePowerWatt:        in.auxCharge,
		AuxDischargePowerWatt:     in.auxDischarge,
		AutoChargeEnabled:         in.chargeEnabled,
		AutoDischargeEnabled:      in.dischargeEnabled,
		GridImportHighSeconds:     tc.timers.importHighFor.Seconds(),
		GridExportHighSeconds:     tc.timers.exportHighFor.Seconds(),
		ImportStopSeconds:         tc.timers.importStopFor.Seconds(),
		StateHoldSeconds:          tc.stateHold.Seconds(),
		SetpointWatt:              setpoint,
		LastSupportTargetWatt:     st.LastSupportTarget,
		ChargeLimitActive:         in.chargeLimitActive,
		LimitNearFullEnabled:      in.limitNearFull,
		AuxMaxCellVoltage:         in.cellVoltage,
		EffectiveMaxChargeWatt:    in.effectiveMaxCharge,
	}
}

// enableFlags renders the auto charge (L) and auto discharge (D) switches.
func enableFlags(charge, discharge bool) string {
	switch {
	case charge && discharge:
		return "F:LD"
	case charge:
		return "F:L"
	case discharge:
		return "F:D"
	}
	return "F:-"
}

// watts rounds half away from zero. strconv alone would round ties to even.
func watts(v float64) string {
	return strconv.FormatFloat(math.Round(v), 'f', 0, 64)
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
