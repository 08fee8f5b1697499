package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/pedalmetry/pedalmetry/internal/config"
	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/infra/store"
)

// setupMockStore builds an ObservationStore backed by a sqlmock connection.
func setupMockStore(t *testing.T) (*store.ObservationStore, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	t.Cleanup(func() {
		mock.ExpectClose()
		sqlDB.Close()
	})

	return store.NewObservationStore(gormDB), mock, gormDB
}

func TestObservationStore_Upsert(t *testing.T) {
	s, mock, _ := setupMockStore(t)

	hour := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	observations := []entity.StationHourObservation{
		{StationID: 101, StationName: "A", HourTS: hour, RideCount: 4},
		{StationID: 101, StationName: "A", HourTS: hour.Add(time.Hour), RideCount: 0},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `station_hour_observations`").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.Upsert(context.Background(), observations, 100)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationStore_UpsertEmptyIsNoop(t *testing.T) {
	s, mock, _ := setupMockStore(t)

	require.NoError(t, s.Upsert(context.Background(), nil, 100))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationStore_LoadRange(t *testing.T) {
	s, mock, _ := setupMockStore(t)

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)

	rows := sqlmock.NewRows([]string{"station_id", "station_name", "hour_ts", "ride_count"}).
		AddRow(101, "A", from, 3).
		AddRow(101, "A", from.Add(time.Hour), 0)
	mock.ExpectQuery("SELECT \\* FROM `station_hour_observations`").
		WillReturnRows(rows)

	observations, err := s.LoadRange(context.Background(), from, to, []int{101})
	require.NoError(t, err)
	require.Len(t, observations, 2)
	assert.Equal(t, 101, observations[0].StationID)
	assert.Equal(t, 3, observations[0].RideCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationStore_Count(t *testing.T) {
	s, mock, _ := setupMockStore(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `station_hour_observations`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
}

func TestNewDialector_UnknownDriver(t *testing.T) {
	_, err := store.NewDialector(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestNewDialector_SQLiteRequiresPath(t *testing.T) {
	_, err := store.NewDialector(&config.DatabaseConfig{Driver: "sqlite"})
	assert.Error(t, err)
}
