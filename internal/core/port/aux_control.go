package port

import (
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
)

// AuxControlLogic runs one control tick. It mutates st in place and never reads the wall clock.
type AuxControlLogic interface {
	Tick(now time.Time, telemetry domain.Telemetry, st *domain.ControlState) domain.ControlTickResult
}

type ControlStateStore interface {
	// Load returns nil, nil when nothing was saved yet.
	Load() (*domain.ControlState, error)
	Save(st domain.ControlState) error
	// LoadOperatorSettings returns nil, nil when the operator never changed a setting.
	LoadOperatorSettings() (*domain.OperatorSettings, error)
	SaveOperatorSettings(op domain.OperatorSettings) error
	Close() error
}
