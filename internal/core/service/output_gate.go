package service

import "github.com/berfenger/auxbatt2mqtt/internal/core/domain"

// gateSetpoint reports whether the setpoint has to be sent and records it when so.
func gateSetpoint(setpoint int, deadband float64, st *domain.ControlState) bool {
	emit := !st.HasEmittedSetpoint
	if !emit {
		last := st.LastEmittedSetpoint
		diff := setpoint - last
		if diff < 0 {
			diff = -diff
		}
		emit = float64(diff) >= deadband ||
			(setpoint == 0 && last != 0) ||
			sign(setpoint) != sign(last)
	}
	if emit {
		st.HasEmittedSetpoint = true
		st.LastEmittedSetpoint = setpoint
	}
	return emit
}

func gateDebug(snapshot domain.DebugSnapshot, st *domain.ControlState) bool {
	if st.LastDebug != nil && *st.LastDebug == snapshot {
		return false
	}
	st.LastDebug = &snapshot
	return true
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
