package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/berfenger/auxbatt2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyStore(t *testing.T) {

	s, err := NewSQLiteControlStateStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()

	st, err := s.Load()
	assert.NoError(t, err)
	assert.Nil(t, st, "no state saved yet")
}

func TestSaveAndLoadControlState(t *testing.T) {

	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "state.db")
	s, err := NewSQLiteControlStateStore(path)
	require.NoError(t, err)

	t0 := time.UnixMilli(1_700_000_000_123)
	debug := &domain.DebugSnapshot{
		State:             "DIS_SUPPORT",
		StateBase:         domain.ControlStateDischargeBase,
		DischargeMode:     domain.DischargeModeSupport,
		GridPowerWatt:     120,
		HouseLoadWatt:     domain.NewNullFloat64(900),
		PrimarySoC:        domain.NewNullFloat64(60),
		AuxSoC:            domain.NewNullFloat64(45.5),
		SetpointWatt:      -240,
		AuxMaxCellVoltage: domain.NullFloat64{},
	}
	st := domain.ControlState{
		State:               domain.ControlStateDischargeBase,
		DischargeMode:       domain.DischargeModeSupport,
		LastStateTs:         t0,
		LastSetpoint:        -240,
		ImportHighSince:     t0.Add(-40 * time.Second),
		WasImportHigh:       true,
		LastRampTs:          t0.Add(3 * time.Second),
		LastSupportTarget:   350,
		HasEmittedSetpoint:  true,
		LastEmittedSetpoint: -240,
		LastDebug:           debug,
	}
	require.NoError(t, s.Save(st))

	// overwrite keeps a single row
	st.LastSetpoint = -320
	require.NoError(t, s.Save(st))
	require.NoError(t, s.Close())

	s, err = NewSQLiteControlStateStore(path)
	require.NoError(t, err)
	defer s.Close()

	loaded, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(domain.ControlStateDischargeBase, loaded.State)
	assert.Equal(domain.DischargeModeSupport, loaded.DischargeMode)
	assert.Equal(-320, loaded.LastSetpoint)
	assert.True(t0.Equal(loaded.LastStateTs))
	assert.True(t0.Add(-40 * time.Second).Equal(loaded.ImportHighSince))
	assert.True(loaded.ExportHighSince.IsZero(), "unset timestamps stay zero")
	assert.True(loaded.WasImportHigh)
	assert.Equal(350.0, loaded.LastSupportTarget)
	assert.Equal(-240, loaded.LastEmittedSetpoint)
	require.NotNil(t, loaded.LastDebug)
	assert.Equal(*debug, *loaded.LastDebug)

	var count int64
	s.db.Model(&StoredControlState{}).Count(&count)
	assert.EqualValues(1, count)
}

func TestUnknownStateFallsBackToIdle(t *testing.T) {

	row := StoredControlState{State: "BOGUS", DischargeMode: ""}
	st := row.toDomain()
	assert.Equal(t, domain.ControlStateIdle, st.State)
	assert.Equal(t, domain.DischargeModeGrid, st.DischargeMode)
}

func TestSaveAndLoadOperatorSettings(t *testing.T) {

	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "state.db")
	s, err := NewSQLiteControlStateStore(path)
	require.NoError(t, err)

	op, err := s.LoadOperatorSettings()
	require.NoError(t, err)
	assert.Nil(op, "no operator settings saved yet")

	require.NoError(t, s.SaveOperatorSettings(domain.OperatorSettings{
		AutoChargeEnabled:    true,
		AutoDischargeEnabled: true,
		AuxMinDischargeSoC:   domain.NewNullFloat64(25),
		AuxMaxCellVoltage:    domain.NewNullFloat64(3.41),
	}))
	// disabling a switch must overwrite the stored true
	require.NoError(t, s.SaveOperatorSettings(domain.OperatorSettings{
		AutoChargeEnabled:    true,
		AutoDischargeEnabled: false,
		LimitNearFullEnabled: true,
		AuxMinDischargeSoC:   domain.NewNullFloat64(30),
	}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteControlStateStore(path)
	require.NoError(t, err)
	defer s.Close()

	op, err = s.LoadOperatorSettings()
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.True(op.AutoChargeEnabled)
	assert.False(op.AutoDischargeEnabled)
	assert.True(op.LimitNearFullEnabled)
	assert.Equal(domain.NewNullFloat64(30), op.AuxMinDischargeSoC)
	assert.False(op.AuxMaxCellVoltage.Valid)

	var count int64
	s.db.Model(&StoredOperatorSettings{}).Count(&count)
	assert.EqualValues(1, count)

	// the control state row is independent
	st, err := s.Load()
	assert.NoError(err)
	assert.Nil(st)
}
