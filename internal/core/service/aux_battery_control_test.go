package service

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/config"
	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
	"github.com/berfenger/auxbatt2mqtt/internal/core/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var t0 = time.Unix(1_700_000_000, 0)

func at(second int) time.Time {
	return t0.Add(time.Duration(second) * time.Second)
}

func newTestControl() *DefaultAuxBatteryControlLogic {
	return NewDefaultAuxBatteryControlLogic(config.DefaultControlConfig(), zap.Must(zap.NewDevelopment()))
}

func genTelemetry(gridPower, primaryDischarge float64) domain.Telemetry {
	return domain.Telemetry{
		Measurements: domain.Measurements{
			GridPowerWatt:             gridPower,
			PrimaryDischargePowerWatt: primaryDischarge,
			PrimarySoC:                50,
			AuxSoC:                    50,
		},
		OperatorSettings: domain.OperatorSettings{
			AutoChargeEnabled:    true,
			AutoDischargeEnabled: true,
		},
	}
}

// runTicks ticks every step seconds from `from` to `to` (both included) with the same telemetry
func runTicks(ctrl port.AuxControlLogic, st *domain.ControlState, tel domain.Telemetry, from, to, step int) map[int]domain.ControlTickResult {
	results := make(map[int]domain.ControlTickResult)
	for s := from; s <= to; s += step {
		results[s] = ctrl.Tick(at(s), tel, st)
	}
	return results
}

func TestColdStart(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := &domain.ControlState{}
	r := ctrl.Tick(at(0), genTelemetry(0, 0), st)

	require.Equal(domain.ControlStateIdle, st.State)
	require.Equal(domain.DischargeModeGrid, st.DischargeMode)
	require.Equal(at(0), st.LastStateTs)
	require.Equal(at(0), st.LastRampTs)
	require.Equal(0, r.Setpoint)
	require.True(r.EmitSetpoint, "first tick always emits")
	require.True(r.EmitDebug)
	require.Nil(r.Transition)
	require.Equal("IDLE F:LD P=0W Pg=0W", r.Status.Text)
	require.Equal(domain.StatusColorGrey, r.Status.Color)
	require.Equal(domain.StatusSeverityNeutral, r.Status.Severity)
}

func TestGridBaseloadDischarge(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	r := runTicks(ctrl, st, genTelemetry(300, 0), 0, 200, 5)

	require.Equal("IDLE", r[35].Debug.State, "import delay not elapsed yet")
	require.NotNil(r[40].Transition)
	require.Equal(domain.ControlTransition{From: "IDLE", To: "DIS_GRID"}, *r[40].Transition)

	expected := map[int]int{
		35: 0, 40: -80, 45: -80, 65: -80, 70: -160, 100: -240, 130: -300, 160: -300, 200: -300,
	}
	for s, sp := range expected {
		require.Equal(sp, r[s].Setpoint, "setpoint at %ds", s)
	}
	require.True(r[40].EmitSetpoint)
	require.False(r[45].EmitSetpoint)

	require.Equal(domain.StatusColorYellow, r[130].Status.Color)
	require.Equal(domain.StatusSeverityActive, r[130].Status.Severity)
	require.Equal("DIS_GRID F:LD P=-300W Pg=300W SoC_aux=50%", r[130].Status.Text)
}

func TestGridBaseloadDischargeUsesHouseLoad(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	tel := genTelemetry(300, 0)
	tel.HouseLoadWatt = domain.NewNullFloat64(500)
	r := runTicks(ctrl, st, tel, 0, 220, 5)

	require.Equal(-320, r[130].Setpoint)
	require.Equal(-400, r[160].Setpoint, "capped at the baseload target")
	require.Equal(-400, r[220].Setpoint)
}

func TestSurplusCharge(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	r := runTicks(ctrl, st, genTelemetry(-600, 0), 0, 80, 5)

	require.Equal("IDLE", r[15].Debug.State, "charge delay not elapsed yet")
	require.Equal(domain.ControlTransition{From: "IDLE", To: "CHG_SURPLUS"}, *r[20].Transition)

	expected := map[int]int{
		15: 0, 20: 200, 25: 200, 30: 400, 35: 400, 40: 600, 60: 600, 80: 600,
	}
	for s, sp := range expected {
		require.Equal(sp, r[s].Setpoint, "setpoint at %ds", s)
	}

	require.Equal(domain.StatusColorGreen, r[40].Status.Color)
	require.Equal("CHG F:LD P=600W Pg=-600W SoC_main=50%", r[40].Status.Text)
	require.False(r[40].Debug.ChargeLimitActive)
	require.EqualValues(1536, r[40].Debug.EffectiveMaxChargeWatt)
}

func TestNearFullChargeCap(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	tel := genTelemetry(-600, 0)
	tel.LimitNearFullEnabled = true
	tel.AuxMaxCellVoltage = domain.NewNullFloat64(3.445)
	r := runTicks(ctrl, st, tel, 0, 60, 5)

	require.Equal(200, r[20].Setpoint)
	require.Equal(384, r[30].Setpoint)
	require.Equal(384, r[60].Setpoint)
	require.True(r[60].Debug.ChargeLimitActive)
	require.EqualValues(384, r[60].Debug.EffectiveMaxChargeWatt)
	require.Equal("CHG (LIM) F:LD P=384W Pg=-600W SoC_main=50%", r[60].Status.Text)
}

func TestNearFullCapNeedsFlagAndVoltage(t *testing.T) {

	assert := assert.New(t)

	ctrl := newTestControl()

	tel := genTelemetry(0, 0)
	tel.LimitNearFullEnabled = true
	tel.AuxMaxCellVoltage = domain.NewNullFloat64(3.43)
	in := ctrl.ingest(tel)
	assert.False(in.chargeLimitActive)
	assert.EqualValues(1536, in.effectiveMaxCharge)

	tel.LimitNearFullEnabled = false
	tel.AuxMaxCellVoltage = domain.NewNullFloat64(3.5)
	assert.False(ctrl.ingest(tel).chargeLimitActive)

	// non positive voltage is unknown
	tel.LimitNearFullEnabled = true
	tel.AuxMaxCellVoltage = domain.NullFloat64{Value: 0, Valid: true}
	in = ctrl.ingest(tel)
	assert.False(in.cellVoltage.Valid)
	assert.False(in.chargeLimitActive)
}

func TestIngestFallbacks(t *testing.T) {

	assert := assert.New(t)

	ctrl := newTestControl()

	tel := genTelemetry(math.NaN(), math.Inf(1))
	tel.HouseLoadWatt = domain.NullFloat64{Value: math.NaN(), Valid: true}
	tel.AuxMinDischargeSoC = domain.NullFloat64{Value: math.NaN(), Valid: true}
	in := ctrl.ingest(tel)

	assert.EqualValues(0, in.gridPower)
	assert.EqualValues(0, in.primaryDischarge)
	assert.False(in.houseLoad.Valid)
	assert.EqualValues(5, in.auxMinDischargeSoC)

	tel.AuxMinDischargeSoC = domain.NewNullFloat64(20)
	assert.EqualValues(20, ctrl.ingest(tel).auxMinDischargeSoC)
}

func TestInvalidInputFreezesImmediately(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	r := ctrl.Tick(at(0), genTelemetry(math.NaN(), 0), st)

	require.Equal(domain.ControlStateFreeze, st.State)
	require.Equal(domain.FailsafeReasonGridPower, r.FailsafeReason)
	require.Equal(domain.ControlTransition{From: "IDLE", To: "FREEZE"}, *r.Transition)
	require.Equal(0, r.Setpoint)
	require.Equal(domain.StatusColorRed, r.Status.Color)
	require.Equal(domain.StatusSeverityError, r.Status.Severity)
	require.Equal("FREEZE F:LD P_grid invalid", r.Status.Text)
}

func TestInvalidInputMidOperation(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	valid := genTelemetry(300, 0)
	r := runTicks(ctrl, st, valid, 0, 100, 5)
	require.Equal(-240, r[100].Setpoint)

	// hold time since DIS_GRID entry is irrelevant
	invalid := genTelemetry(300, 0)
	invalid.AuxSoC = math.NaN()
	r101 := ctrl.Tick(at(101), invalid, st)
	require.Equal(domain.ControlStateFreeze, st.State)
	require.Equal(domain.FailsafeReasonAuxSoC, r101.FailsafeReason)
	require.Equal(domain.ControlTransition{From: "DIS_GRID", To: "FREEZE"}, *r101.Transition)
	// forced to 0 on the same tick, no ramp
	require.Equal(0, r101.Setpoint)
	require.True(r101.EmitSetpoint)
	require.Equal(0, st.LastSetpoint)
	require.Equal(at(101), st.LastRampTs)

	r106 := ctrl.Tick(at(106), invalid, st)
	require.Nil(r106.Transition)
	require.Equal(0, r106.Setpoint)
	require.False(r106.EmitSetpoint)

	// valid again, but FREEZE holds until the min hold time since entry has elapsed
	r111 := ctrl.Tick(at(111), valid, st)
	require.Equal(domain.ControlStateFreeze, st.State)
	require.Equal(0, r111.Setpoint)

	r116 := ctrl.Tick(at(116), valid, st)
	require.Equal(domain.ControlTransition{From: "FREEZE", To: "IDLE"}, *r116.Transition)
	require.Equal(0, r116.Setpoint)
}

func TestFailsafeCheckOrder(t *testing.T) {

	assert := assert.New(t)

	ctrl := newTestControl()

	tel := genTelemetry(math.NaN(), 0)
	tel.PrimarySoC = math.NaN()
	assert.Equal(domain.FailsafeReasonGridPower, ctrl.failsafeReason(tel))

	tel.GridPowerWatt = 0
	assert.Equal(domain.FailsafeReasonPrimarySoC, ctrl.failsafeReason(tel))

	tel.PrimarySoC = 50
	tel.AuxSoC = math.Inf(-1)
	assert.Equal(domain.FailsafeReasonAuxSoC, ctrl.failsafeReason(tel))

	tel.AuxSoC = 50
	assert.Empty(ctrl.failsafeReason(tel))
}

func TestFailsafeDisabled(t *testing.T) {

	require := require.New(t)

	cfg := config.DefaultControlConfig()
	cfg.FailsafeEnabled = false
	ctrl := NewDefaultAuxBatteryControlLogic(cfg, nil)
	st := domain.NewControlState()

	r := runTicks(ctrl, st, genTelemetry(math.NaN(), 0), 0, 60, 5)
	require.Equal(domain.ControlStateIdle, st.State)
	require.Empty(r[60].FailsafeReason)
	require.EqualValues(0, r[60].Debug.GridPowerWatt)
}

func TestSupportDischarge(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	r := runTicks(ctrl, st, genTelemetry(0, 600), 0, 150, 5)

	require.Equal(domain.ControlTransition{From: "IDLE", To: "DIS_SUPPORT"}, *r[15].Transition)
	require.EqualValues(350, r[15].Debug.LastSupportTargetWatt)
	require.Equal(domain.StatusColorOrange, r[15].Status.Color)

	expected := map[int]int{
		10: 0, 15: 0, 25: 0, 30: -80, 55: -80, 60: -160, 90: -240, 120: -320, 150: -350,
	}
	for s, sp := range expected {
		require.Equal(sp, r[s].Setpoint, "setpoint at %ds", s)
	}

	// any magnitude change is held in support mode, decreases included
	r = runTicks(ctrl, st, genTelemetry(0, 300), 155, 180, 5)
	require.EqualValues(210, r[155].Debug.LastSupportTargetWatt)
	require.Equal(-350, r[155].Setpoint)
	require.Equal(-350, r[175].Setpoint)
	require.Equal(-270, r[180].Setpoint)
}

func TestSupportHysteresis(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	runTicks(ctrl, st, genTelemetry(0, 600), 0, 20, 5)
	require.EqualValues(350, st.LastSupportTarget)

	// 420 is within the band around 350
	r := ctrl.Tick(at(25), genTelemetry(0, 650), st)
	require.EqualValues(350, r.Debug.LastSupportTargetWatt)

	// 490 is not
	r = ctrl.Tick(at(30), genTelemetry(0, 800), st)
	require.EqualValues(490, r.Debug.LastSupportTargetWatt)
}

func TestSupportExit(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	runTicks(ctrl, st, genTelemetry(0, 600), 0, 150, 5)

	r := ctrl.Tick(at(155), genTelemetry(0, 50), st)
	require.Equal(domain.ControlTransition{From: "DIS_SUPPORT", To: "IDLE"}, *r.Transition)
	require.Equal(domain.DischargeModeGrid, st.DischargeMode)
	require.EqualValues(0, st.LastSupportTarget)
	require.Equal(-270, r.Setpoint)
}

func TestDischargeExitOnMinSoC(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	runTicks(ctrl, st, genTelemetry(300, 0), 0, 60, 5)
	require.Equal(domain.ControlStateDischargeBase, st.State)

	tel := genTelemetry(300, 0)
	tel.AuxMinDischargeSoC = domain.NewNullFloat64(50)
	r := ctrl.Tick(at(65), tel, st)
	require.Equal(domain.ControlTransition{From: "DIS_GRID", To: "IDLE"}, *r.Transition)
}

func TestChargeExitWaitsForZeroSetpoint(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	runTicks(ctrl, st, genTelemetry(-600, 0), 0, 45, 5)
	require.Equal(600, st.LastSetpoint)

	// importing with nothing to charge: the target drops to 0
	r := runTicks(ctrl, st, genTelemetry(300, 0), 50, 95, 5)

	expected := map[int]int{
		50: 520, 55: 440, 60: 360, 65: 280, 70: 200, 75: 120, 80: 40, 85: 0,
	}
	for s, sp := range expected {
		require.Equal(sp, r[s].Setpoint, "setpoint at %ds", s)
	}
	// import stop delay elapsed at 75s but the setpoint was not 0 yet
	require.Equal("CHG_SURPLUS", r[75].Debug.State)
	require.Equal("CHG_SURPLUS", r[85].Debug.State)
	require.Equal(domain.ControlTransition{From: "CHG_SURPLUS", To: "IDLE"}, *r[90].Transition)
}

func TestHoldTimeGatesTransitions(t *testing.T) {

	require := require.New(t)

	cfg := config.DefaultControlConfig()
	cfg.DischargeStartDelay = 0
	ctrl := NewDefaultAuxBatteryControlLogic(cfg, nil)
	st := domain.NewControlState()

	r := runTicks(ctrl, st, genTelemetry(300, 0), 0, 15, 1)
	for s := 0; s < 15; s++ {
		require.Nil(r[s].Transition, "no transition before the min hold time (%ds)", s)
	}
	require.NotNil(r[15].Transition)
}

func TestDebugGate(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	tel := genTelemetry(100, 0)

	r := ctrl.Tick(at(0), tel, st)
	require.True(r.EmitDebug)

	r = ctrl.Tick(at(0), tel, st)
	require.False(r.EmitDebug, "same snapshot")
	require.False(r.EmitSetpoint)

	tel.GridPowerWatt = 120
	r = ctrl.Tick(at(0), tel, st)
	require.True(r.EmitDebug)
	require.NotNil(st.LastDebug)
	require.EqualValues(120, st.LastDebug.GridPowerWatt)
}

func TestSetpointGate(t *testing.T) {

	assert := assert.New(t)

	st := domain.NewControlState()

	assert.True(gateSetpoint(-300, 20, st), "first run")
	assert.False(gateSetpoint(-300, 20, st), "identical")
	assert.False(gateSetpoint(-319, 20, st), "below deadband")
	assert.True(gateSetpoint(-320, 20, st), "at deadband")
	assert.Equal(-320, st.LastEmittedSetpoint)
	assert.False(gateSetpoint(-301, 20, st), "below deadband")

	st.LastEmittedSetpoint = -5
	assert.True(gateSetpoint(0, 20, st), "going to zero")

	st.LastEmittedSetpoint = 5
	assert.True(gateSetpoint(-5, 20, st), "sign change")
	assert.Equal(-5, st.LastEmittedSetpoint)
}

func TestEnableFlags(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("F:LD", enableFlags(true, true))
	assert.Equal("F:L", enableFlags(true, false))
	assert.Equal("F:D", enableFlags(false, true))
	assert.Equal("F:-", enableFlags(false, false))
}

func TestRoundHalfUp(t *testing.T) {

	assert := assert.New(t)

	assert.EqualValues(3, roundHalfUp(2.5))
	assert.EqualValues(-2, roundHalfUp(-2.5))
	assert.EqualValues(-3, roundHalfUp(-2.6))
}

// Random telemetry with jittered ticks must never break the output bounds,
// the per tick slew limit or the min hold time.
func TestStatusWattsRoundsHalfAwayFromZero(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("1", watts(0.5))
	assert.Equal("3", watts(2.5))
	assert.Equal("-3", watts(-2.5))
	assert.Equal("2", watts(2.4))
	assert.Equal("-120", watts(-119.5))

	ctrl := newTestControl()
	st := domain.NewControlState()
	r := ctrl.Tick(at(0), genTelemetry(2.5, 0), st)
	assert.Equal("IDLE F:LD P=0W Pg=3W", r.Status.Text)
}

func TestTransitionsLoggedOnce(t *testing.T) {

	assert := assert.New(t)

	core, logs := observer.New(zap.InfoLevel)
	ctrl := NewDefaultAuxBatteryControlLogic(config.DefaultControlConfig(), zap.New(core))
	st := domain.NewControlState()

	runTicks(ctrl, st, genTelemetry(math.NaN(), 0), 0, 30, 3)
	assert.Equal(1, logs.FilterLevelExact(zap.WarnLevel).Len(), "warn only when entering FREEZE")

	// FREEZE -> IDLE -> DIS_GRID
	runTicks(ctrl, st, genTelemetry(300, 0), 33, 120, 3)
	infos := logs.FilterLevelExact(zap.InfoLevel).All()
	if assert.Len(infos, 2) {
		assert.Equal("FREEZE", infos[0].ContextMap()["from"])
		assert.Equal("IDLE", infos[0].ContextMap()["to"])
		assert.Equal("DIS_GRID", infos[1].ContextMap()["to"])
	}
}

func TestRandomTelemetryKeepsBounds(t *testing.T) {

	require := require.New(t)

	cfg := config.DefaultControlConfig()
	ctrl := NewDefaultAuxBatteryControlLogic(cfg, nil)
	st := domain.NewControlState()
	rnd := rand.New(rand.NewSource(1))

	maxStep := math.Max(cfg.ChargeRamp.MaxDeltaWatt, cfg.DischargeRamp.MaxDeltaWatt) + cfg.RampDeadZoneWatt
	now := t0
	tel := genTelemetry(0, 0)

	for i := 0; i < 5000; i++ {
		now = now.Add(time.Duration(1000+rnd.Intn(4000)) * time.Millisecond)

		// drift rather than jump, so states are actually reached
		tel.GridPowerWatt = math.Max(-2500, math.Min(2500, finiteOr(tel.GridPowerWatt, 0)+rnd.NormFloat64()*150))
		tel.PrimaryDischargePowerWatt = math.Max(0, math.Min(2000, tel.PrimaryDischargePowerWatt+rnd.NormFloat64()*100))
		tel.AuxChargePowerWatt = math.Max(0, float64(st.LastSetpoint))
		tel.AuxSoC = 5 + rnd.Float64()*95
		if rnd.Intn(100) == 0 {
			tel.GridPowerWatt = math.NaN()
		}
		if rnd.Intn(200) == 0 {
			tel.AutoChargeEnabled = !tel.AutoChargeEnabled
		}

		prevSetpoint := st.LastSetpoint
		prevStateTs := st.LastStateTs

		r := ctrl.Tick(now, tel, st)

		require.LessOrEqual(r.Setpoint, int(cfg.AuxInverterACMaxWatt))
		require.GreaterOrEqual(r.Setpoint, -int(cfg.AuxInverterACMaxWatt))
		if st.State == domain.ControlStateFreeze {
			require.Equal(0, r.Setpoint, "tick %d: FREEZE output", i)
		} else {
			require.LessOrEqual(math.Abs(float64(r.Setpoint-prevSetpoint)), maxStep, "tick %d", i)
		}
		if r.Transition != nil && r.Transition.To != string(domain.ControlStateFreeze) && i > 0 {
			require.GreaterOrEqual(now.Sub(prevStateTs), cfg.MinStateHoldTime, "tick %d: %v", i, *r.Transition)
		}
		if r.FailsafeReason != "" {
			require.Equal(domain.ControlStateFreeze, st.State)
		}
	}
}

func TestStableTelemetryReachesFixedPoint(t *testing.T) {

	require := require.New(t)

	ctrl := newTestControl()
	st := domain.NewControlState()
	r := runTicks(ctrl, st, genTelemetry(-600, 0), 0, 300, 3)

	for s := 201; s <= 300; s += 3 {
		require.False(r[s].EmitSetpoint, "no output change at %ds", s)
		require.Equal(r[198].Setpoint, r[s].Setpoint)
	}
}
