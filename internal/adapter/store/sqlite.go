package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"
	"github.com/berfenger/auxbatt2mqtt/internal/core/port"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	controlStateRowId     = 1
	operatorSettingsRowId = 1
)

// StoredControlState is the single persisted row of the control loop state.
// Timestamps are unix milliseconds, 0 meaning unset.
type StoredControlState struct {
	ID            uint `gorm:"primaryKey"`
	State         string
	DischargeMode string
	LastStateTs   int64
	LastSetpoint  int

	ImportHighSince int64
	ExportHighSince int64
	ImportStopSince int64
	WasImportHigh   bool
	WasExportHigh   bool
	WasImportStop   bool

	LastRampTs        int64
	LastSupportTarget float64

	HasEmittedSetpoint  bool
	LastEmittedSetpoint int
	LastDebug           *domain.DebugSnapshot `gorm:"serializer:json"`

	UpdatedAt time.Time
}

// StoredOperatorSettings is the single persisted row of the operator choices made over MQTT.
// The cell voltage is a reading, not a choice, and is not kept.
type StoredOperatorSettings struct {
	ID                   uint `gorm:"primaryKey"`
	AutoChargeEnabled    bool
	AutoDischargeEnabled bool
	LimitNearFullEnabled bool
	AuxMinDischargeSoC   sql.NullFloat64

	UpdatedAt time.Time
}

type SQLiteControlStateStore struct {
	db *gorm.DB
}

func NewSQLiteControlStateStore(path string) (*SQLiteControlStateStore, error) {

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Migrate the schema
	err = db.AutoMigrate(&StoredControlState{}, &StoredOperatorSettings{})
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &SQLiteControlStateStore{
		db: db,
	}, nil
}

func (s *SQLiteControlStateStore) Load() (*domain.ControlState, error) {
	var rows []StoredControlState
	result := s.db.Where("id = ?", controlStateRowId).Limit(1).Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	if len(rows) == 0 {
		return nil, nil
	}
	st := rows[0].toDomain()
	return &st, nil
}

func (s *SQLiteControlStateStore) Save(st domain.ControlState) error {
	row := newStoredControlState(st)
	result := s.db.Save(&row)
	return result.Error
}

func (s *SQLiteControlStateStore) LoadOperatorSettings() (*domain.OperatorSettings, error) {
	var rows []StoredOperatorSettings
	result := s.db.Where("id = ?", operatorSettingsRowId).Limit(1).Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0]
	op := domain.OperatorSettings{
		AutoChargeEnabled:    r.AutoChargeEnabled,
		AutoDischargeEnabled: r.AutoDischargeEnabled,
		LimitNearFullEnabled: r.LimitNearFullEnabled,
	}
	if r.AuxMinDischargeSoC.Valid {
		op.AuxMinDischargeSoC = domain.NewNullFloat64(r.AuxMinDischargeSoC.Float64)
	}
	return &op, nil
}

func (s *SQLiteControlStateStore) SaveOperatorSettings(op domain.OperatorSettings) error {
	row := StoredOperatorSettings{
		ID:                   operatorSettingsRowId,
		AutoChargeEnabled:    op.AutoChargeEnabled,
		AutoDischargeEnabled: op.AutoDischargeEnabled,
		LimitNearFullEnabled: op.LimitNearFullEnabled,
		AuxMinDischargeSoC: sql.NullFloat64{
			Float64: op.AuxMinDischargeSoC.Value,
			Valid:   op.AuxMinDischargeSoC.Valid,
		},
	}
	return s.db.Save(&row).Error
}

func (s *SQLiteControlStateStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newStoredControlState(st domain.ControlState) StoredControlState {
	return StoredControlState{
		ID:                  controlStateRowId,
		State:               string(st.State),
		DischargeMode:       string(st.DischargeMode),
		LastStateTs:         toMillis(st.LastStateTs),
		LastSetpoint:        st.LastSetpoint,
		ImportHighSince:     toMillis(st.ImportHighSince),
		ExportHighSince:     toMillis(st.ExportHighSince),
		ImportStopSince:     toMillis(st.ImportStopSince),
		WasImportHigh:       st.WasImportHigh,
		WasExportHigh:       st.WasExportHigh,
		WasImportStop:       st.WasImportStop,
		LastRampTs:          toMillis(st.LastRampTs),
		LastSupportTarget:   st.LastSupportTarget,
		HasEmittedSetpoint:  st.HasEmittedSetpoint,
		LastEmittedSetpoint: st.LastEmittedSetpoint,
		LastDebug:           st.LastDebug,
	}
}

func (r StoredControlState) toDomain() domain.ControlState {
	st := domain.ControlState{
		State:               domain.ControlStateName(r.State),
		DischargeMode:       domain.DischargeMode(r.DischargeMode),
		LastStateTs:         fromMillis(r.LastStateTs),
		LastSetpoint:        r.LastSetpoint,
		ImportHighSince:     fromMillis(r.ImportHighSince),
		ExportHighSince:     fromMillis(r.ExportHighSince),
		ImportStopSince:     fromMillis(r.ImportStopSince),
		WasImportHigh:       r.WasImportHigh,
		WasExportHigh:       r.WasExportHigh,
		WasImportStop:       r.WasImportStop,
		LastRampTs:          fromMillis(r.LastRampTs),
		LastSupportTarget:   r.LastSupportTarget,
		HasEmittedSetpoint:  r.HasEmittedSetpoint,
		LastEmittedSetpoint: r.LastEmittedSetpoint,
		LastDebug:           r.LastDebug,
	}
	// unknown values fall back to the boot defaults
	switch st.State {
	case domain.ControlStateIdle, domain.ControlStateChargeSurplus, domain.ControlStateDischargeBase, domain.ControlStateFreeze:
	default:
		st.State = domain.ControlStateIdle
	}
	if st.DischargeMode != domain.DischargeModeSupport {
		st.DischargeMode = domain.DischargeModeGrid
	}
	return st
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ensure interface compliance
var _ port.ControlStateStore = (*SQLiteControlStateStore)(nil)
