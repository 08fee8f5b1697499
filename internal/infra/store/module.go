package store

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/pedalmetry/pedalmetry/internal/config"
)

// Module provides the observation store components to Fx.
var Module = fx.Options(
	fx.Provide(NewDB),
	fx.Provide(NewObservationStore),
	fx.Provide(func(cfg *config.DatabaseConfig, db *gorm.DB) *Migrator {
		return NewMigrator(db, cfg.Driver)
	}),
)
