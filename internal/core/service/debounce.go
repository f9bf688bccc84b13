package service

import (
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
)

type debounceTimers struct {
	importHigh    bool
	exportHigh    bool
	importStop    bool
	importHighFor time.Duration
	exportHighFor time.Duration
	importStopFor time.Duration
}

func (ctrl *DefaultAuxBatteryControlLogic) trackTimers(now time.Time, gridPower float64, st *domain.ControlState) debounceTimers {
	cfg := ctrl.Config

	t := debounceTimers{
		importHigh: gridPower > cfg.GridImportMinWatt+cfg.GridToleranceWatt,
		exportHigh: gridPower < -(cfg.GridExportMinWatt + cfg.GridToleranceWatt),
		importStop: gridPower >= 0,
	}
	t.importHighFor = trackEdge(now, t.importHigh, &st.ImportHighSince, &st.WasImportHigh)
	t.exportHighFor = trackEdge(now, t.exportHigh, &st.ExportHighSince, &st.WasExportHigh)
	t.importStopFor = trackEdge(now, t.importStop, &st.ImportStopSince, &st.WasImportStop)
	return t
}

// trackEdge latches the rising edge of a condition and returns for how long it has held.
func trackEdge(now time.Time, asserted bool, since *time.Time, was *bool) time.Duration {
	if asserted {
		if !*was {
			*since = now
			*was = true
		}
	} else {
		*since = time.Time{}
		*was = false
	}
	if since.IsZero() {
		return 0
	}
	return now.Sub(*since)
}
