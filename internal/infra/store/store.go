// Package store persists hourly station observations through GORM. It backs
// both the observation writer and the feature stages that re-read history.
package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pedalmetry/pedalmetry/internal/config"
	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const moduleName = "store"

// NewDialector builds the GORM dialector for the configured driver.
func NewDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		if cfg.Path == "" {
			return nil, exception.NewBatchError(moduleName, "sqlite requires a database path", nil, false, false)
		}
		return sqlite.Open(cfg.Path), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
		return mysql.Open(dsn), nil
	default:
		return nil, exception.NewBatchErrorf(moduleName, "unsupported database driver '%s'", cfg.Driver)
	}
}

// NewDB opens a GORM connection for the configured driver. GORM's own query
// logging stays silent; the application logger reports at the store level.
func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := NewDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to open database connection", err, false, true)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to get underlying sql.DB", err, false, false)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logger.Infof("Opened %s observation store.", cfg.Driver)
	return db, nil
}

// ObservationStore reads and writes station_hour_observations.
type ObservationStore struct {
	db *gorm.DB
}

// NewObservationStore creates an ObservationStore on an open connection.
func NewObservationStore(db *gorm.DB) *ObservationStore {
	return &ObservationStore{db: db}
}

// Upsert writes observations in batches of chunkSize. Rows that already exist
// for a (station_id, hour_ts) pair are overwritten, which makes re-running a
// month idempotent.
func (s *ObservationStore) Upsert(ctx context.Context, observations []entity.StationHourObservation, chunkSize int) error {
	if len(observations) == 0 {
		return nil
	}
	if chunkSize < 1 {
		chunkSize = len(observations)
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "station_id"}, {Name: "hour_ts"}},
			DoUpdates: clause.AssignmentColumns([]string{"station_name", "ride_count"}),
		}).
		CreateInBatches(observations, chunkSize).Error
	if err != nil {
		return exception.NewBatchError(moduleName, "failed to upsert observations", err, false, true)
	}

	logger.Debugf("Upserted %d observations.", len(observations))
	return nil
}

// LoadRange returns the observations in [from, to] for the given stations,
// ordered by station then hour. A nil station set loads every station; zero
// boundary times leave that side of the range open.
func (s *ObservationStore) LoadRange(ctx context.Context, from, to time.Time, stationIDs []int) ([]entity.StationHourObservation, error) {
	query := s.db.WithContext(ctx).Model(&entity.StationHourObservation{})
	if !from.IsZero() {
		query = query.Where("hour_ts >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("hour_ts <= ?", to)
	}
	if len(stationIDs) > 0 {
		query = query.Where("station_id IN ?", stationIDs)
	}

	var observations []entity.StationHourObservation
	if err := query.Order("station_id, hour_ts").Find(&observations).Error; err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load observations", err, false, true)
	}
	return observations, nil
}

// Count returns the number of stored observations.
func (s *ObservationStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&entity.StationHourObservation{}).Count(&count).Error; err != nil {
		return 0, exception.NewBatchError(moduleName, "failed to count observations", err, false, true)
	}
	return count, nil
}

// Close closes the underlying database connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
