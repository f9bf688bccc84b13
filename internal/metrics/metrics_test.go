package metrics

import (
	"testing"
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTick(t *testing.T) {

	assert := assert.New(t)

	ticks := testutil.ToFloat64(ControlTicksTotal)
	emitted := testutil.ToFloat64(ControlSetpointEmitted)

	st := domain.ControlState{State: domain.ControlStateDischargeBase, DischargeMode: domain.DischargeModeSupport}
	ObserveTick(st, domain.ControlTickResult{
		Setpoint:     -240,
		EmitSetpoint: true,
		Transition:   &domain.ControlTransition{From: "DIS_GRID", To: "DIS_SUPPORT"},
	})

	assert.Equal(ticks+1, testutil.ToFloat64(ControlTicksTotal))
	assert.Equal(emitted+1, testutil.ToFloat64(ControlSetpointEmitted))
	assert.Equal(-240.0, testutil.ToFloat64(ControlSetpoint))
	assert.Equal(1.0, testutil.ToFloat64(ControlState.WithLabelValues("DIS_SUPPORT")))
	assert.Equal(0.0, testutil.ToFloat64(ControlState.WithLabelValues("DIS_GRID")))
	assert.Equal(1.0, testutil.ToFloat64(ControlTransitions.WithLabelValues("DIS_GRID", "DIS_SUPPORT")))

	freeze := domain.ControlState{State: domain.ControlStateFreeze, DischargeMode: domain.DischargeModeSupport}
	ObserveTick(freeze, domain.ControlTickResult{FailsafeReason: domain.FailsafeReasonGridPower})
	assert.Equal(1.0, testutil.ToFloat64(ControlState.WithLabelValues("FREEZE")))
	assert.Equal(0.0, testutil.ToFloat64(ControlState.WithLabelValues("DIS_SUPPORT")))
	assert.Equal(1.0, testutil.ToFloat64(ControlFailsafe.WithLabelValues(domain.FailsafeReasonGridPower)))
}

func TestModbusInstrumentation(t *testing.T) {

	inst := ModbusInstrumentation("aux")
	inst.RecordTime("ReadRegisters", 20*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(ModbusCallDuration))
}
