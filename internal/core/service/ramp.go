package service

import (
	"math"
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
)

// ramp limits how fast the setpoint follows the target. The profile is picked by the sign of
// the target. Magnitude increases wait for the profile min hold since the last effective
// change; in SUPPORT discharge any magnitude change waits.
// FREEZE skips the ramp: the setpoint drops to 0 on the tick FREEZE is entered.
func (ctrl *DefaultAuxBatteryControlLogic) ramp(now time.Time, target float64, st *domain.ControlState) int {
	cfg := ctrl.Config

	if st.State == domain.ControlStateFreeze {
		if st.LastSetpoint != 0 {
			st.LastRampTs = now
		}
		st.LastSetpoint = 0
		return 0
	}

	profile := cfg.DischargeRamp
	if target > 0 {
		profile = cfg.ChargeRamp
	}

	last := float64(st.LastSetpoint)
	elapsed := now.Sub(st.LastRampTs)
	magOld := math.Abs(last)
	magNew := math.Abs(target)

	var hold bool
	if target < 0 && st.State == domain.ControlStateDischargeBase && st.DischargeMode == domain.DischargeModeSupport {
		hold = target != 0 && magNew != magOld && elapsed < profile.MinHold
	} else {
		hold = magNew > magOld && elapsed < profile.MinHold
	}

	out := last
	if !hold {
		delta := target - last
		if math.Abs(delta) > profile.MaxDeltaWatt {
			out = last + math.Copysign(profile.MaxDeltaWatt, delta)
		} else {
			out = target
		}
		if out != last {
			st.LastRampTs = now
		}
	}

	out = math.Max(-cfg.AuxInverterACMaxWatt, math.Min(cfg.AuxInverterACMaxWatt, out))
	if math.Abs(out) < cfg.RampDeadZoneWatt {
		out = 0
	}
	setpoint := int(roundHalfUp(out))
	st.LastSetpoint = setpoint
	return setpoint
}
