package metrics

import (
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
	"github.com/berfenger/auxbatt2mqtt/pkg/sunspec_modbus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Control loop
	ControlTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auxbatt",
		Subsystem: "control",
		Name:      "ticks_total",
		Help:      "Total control ticks evaluated",
	})

	ControlSetpoint = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "auxbatt",
		Subsystem: "control",
		Name:      "setpoint_watts",
		Help:      "Current post-ramp aux setpoint. +charge / -discharge",
	})

	ControlSetpointEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auxbatt",
		Subsystem: "control",
		Name:      "setpoint_emitted_total",
		Help:      "Total setpoints that passed the output gate",
	})

	ControlState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "auxbatt",
		Subsystem: "control",
		Name:      "state",
		Help:      "1 for the active control state, 0 otherwise",
	}, []string{"state"})

	ControlTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auxbatt",
		Subsystem: "control",
		Name:      "transitions_total",
		Help:      "Total control state transitions",
	}, []string{"from", "to"})

	ControlFailsafe = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auxbatt",
		Subsystem: "control",
		Name:      "failsafe_total",
		Help:      "Total ticks with an invalid input",
	}, []string{"reason"})

	// Modbus
	ModbusCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "auxbatt",
		Subsystem: "modbus",
		Name:      "read_duration_seconds",
		Help:      "Modbus call duration",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"target", "fn"})

	ModbusErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auxbatt",
		Subsystem: "modbus",
		Name:      "errors_total",
		Help:      "Total failed modbus operations",
	}, []string{"op"})
)

var stateLabels = []string{
	domain.ControlStateLabel(domain.ControlStateIdle, domain.DischargeModeGrid),
	domain.ControlStateLabel(domain.ControlStateChargeSurplus, domain.DischargeModeGrid),
	domain.ControlStateLabel(domain.ControlStateDischargeBase, domain.DischargeModeGrid),
	domain.ControlStateLabel(domain.ControlStateDischargeBase, domain.DischargeModeSupport),
	domain.ControlStateLabel(domain.ControlStateFreeze, domain.DischargeModeGrid),
}

// ObserveTick records the outcome of one control tick.
func ObserveTick(st domain.ControlState, result domain.ControlTickResult) {
	ControlTicksTotal.Inc()
	ControlSetpoint.Set(float64(result.Setpoint))
	if result.EmitSetpoint {
		ControlSetpointEmitted.Inc()
	}
	if result.FailsafeReason != "" {
		ControlFailsafe.WithLabelValues(result.FailsafeReason).Inc()
	}
	if result.Transition != nil {
		ControlTransitions.WithLabelValues(result.Transition.From, result.Transition.To).Inc()
	}
	active := st.Label()
	for _, label := range stateLabels {
		if label == active {
			ControlState.WithLabelValues(label).Set(1)
		} else {
			ControlState.WithLabelValues(label).Set(0)
		}
	}
}

// ModbusInstrumentation feeds the modbus call timings of one device into ModbusCallDuration.
func ModbusInstrumentation(target string) *sunspec_modbus.ModbusInstrument {
	return &sunspec_modbus.ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			ModbusCallDuration.WithLabelValues(target, fnName).Observe(readTime.Seconds())
		},
	}
}
