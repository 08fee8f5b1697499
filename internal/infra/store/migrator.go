package store

import (
	"context"
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationsTable = "schema_migrations"

// Migrator applies the embedded schema migrations to the observation store.
type Migrator struct {
	db     *gorm.DB
	driver string
}

// NewMigrator creates a Migrator for the given connection and driver name.
func NewMigrator(db *gorm.DB, driver string) *Migrator {
	return &Migrator{db: db, driver: driver}
}

func (m *Migrator) databaseDriver(sqlDB *sql.DB) (database.Driver, error) {
	switch m.driver {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: migrationsTable})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: migrationsTable})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: migrationsTable})
	default:
		return nil, exception.NewBatchErrorf(moduleName, "unsupported database driver for migration: '%s'", m.driver)
	}
}

func (m *Migrator) instance() (*migrate.Migrate, error) {
	sqlDB, err := m.db.DB()
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to get underlying sql.DB", err, false, false)
	}

	sourceDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to create iofs source driver", err, false, false)
	}

	dbDriver, err := m.databaseDriver(sqlDB)
	if err != nil {
		return nil, err
	}

	return migrate.NewWithInstance("iofs", sourceDriver, m.driver, dbDriver)
}

// Up applies all pending migrations. An already current schema is not an
// error.
func (m *Migrator) Up(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	logger.Infof("Applying schema migrations (driver: %s).", m.driver)

	instance, err := m.instance()
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && err != migrate.ErrNoChange {
		return exception.NewBatchError(moduleName, "schema migration failed", err, false, false)
	}
	logger.Infof("Schema migrations up to date.")
	return nil
}

// Down rolls back all applied migrations.
func (m *Migrator) Down(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	instance, err := m.instance()
	if err != nil {
		return err
	}
	if err := instance.Down(); err != nil && err != migrate.ErrNoChange {
		return exception.NewBatchError(moduleName, "schema rollback failed", err, false, false)
	}
	return nil
}
