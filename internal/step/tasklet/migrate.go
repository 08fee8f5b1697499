package tasklet

import (
	"context"

	"github.com/pedalmetry/pedalmetry/internal/infra/store"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const migrateModule = "migrate"

// MigrateTasklet brings the observation schema up to date before the job
// touches the database.
type MigrateTasklet struct {
	migrator *store.Migrator
}

func NewMigrateTasklet(migrator *store.Migrator) *MigrateTasklet {
	return &MigrateTasklet{migrator: migrator}
}

func (t *MigrateTasklet) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.migrator.Up(ctx); err != nil {
		return exception.NewBatchError(migrateModule, "failed to apply schema migrations", err, false, true)
	}
	logger.Infof("Schema migrations applied.")
	return nil
}
