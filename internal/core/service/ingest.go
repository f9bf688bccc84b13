package service

import (
	"math"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
)

// controlInputs are the per tick values after fallbacks were applied.
type controlInputs struct {
	// non finite grid power is coerced to 0
	gridPower float64
	houseLoad domain.NullFloat64

	primaryCharge    float64
	primaryDischarge float64
	auxCharge        float64
	auxDischarge     float64

	// raw, NaN when unknown
	primarySoC float64
	auxSoC     float64

	auxMinDischargeSoC float64
	chargeEnabled      bool
	dischargeEnabled   bool
	limitNearFull      bool

	cellVoltage        domain.NullFloat64
	effectiveMaxCharge float64
	chargeLimitActive  bool
}

func (ctrl *DefaultAuxBatteryControlLogic) ingest(t domain.Telemetry) controlInputs {
	cfg := ctrl.Config

	in := controlInputs{
		gridPower:          finiteOr(t.GridPowerWatt, 0),
		primaryCharge:      finiteOr(t.PrimaryChargePowerWatt, 0),
		primaryDischarge:   finiteOr(t.PrimaryDischargePowerWatt, 0),
		auxCharge:          finiteOr(t.AuxChargePowerWatt, 0),
		auxDischarge:       finiteOr(t.AuxDischargePowerWatt, 0),
		primarySoC:         t.PrimarySoC,
		auxSoC:             t.AuxSoC,
		auxMinDischargeSoC: cfg.AuxMinDischargeSoCDefault,
		chargeEnabled:      t.AutoChargeEnabled,
		dischargeEnabled:   t.AutoDischargeEnabled,
		limitNearFull:      t.LimitNearFullEnabled,
		effectiveMaxCharge: cfg.AuxMaxChargeWatt,
	}

	if t.HouseLoadWatt.Valid {
		in.houseLoad = domain.NewNullFloat64(t.HouseLoadWatt.Value)
	}
	if t.AuxMinDischargeSoC.Valid && isFinite(t.AuxMinDischargeSoC.Value) {
		in.auxMinDischargeSoC = t.AuxMinDischargeSoC.Value
	}
	if t.AuxMaxCellVoltage.Valid && isFinite(t.AuxMaxCellVoltage.Value) && t.AuxMaxCellVoltage.Value > 0 {
		in.cellVoltage = t.AuxMaxCellVoltage
	}

	if in.limitNearFull && in.cellVoltage.Valid && in.cellVoltage.Value >= cfg.AuxNearFullCellVoltage {
		in.effectiveMaxCharge = math.Min(cfg.AuxMaxChargeWatt, cfg.AuxNearFullChargeWatt)
		in.chargeLimitActive = true
	}
	return in
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOr(v, fallback float64) float64 {
	if isFinite(v) {
		return v
	}
	return fallback
}
