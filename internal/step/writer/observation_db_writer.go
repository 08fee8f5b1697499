// Package writer persists pipeline output: hourly observations into the
// database and finished feature tables into Parquet files.
package writer

import (
	"context"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/infra/store"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const ModuleObservationDBWriter = "observation_db_writer"

// ObservationDBWriter upserts observation chunks into the observation store.
// Re-running the same month overwrites rather than duplicates.
type ObservationDBWriter struct {
	store     *store.ObservationStore
	chunkSize int
	written   int
}

// NewObservationDBWriter creates a writer on an open store.
func NewObservationDBWriter(s *store.ObservationStore, chunkSize int) *ObservationDBWriter {
	return &ObservationDBWriter{store: s, chunkSize: chunkSize}
}

// Open resets the written counter.
func (w *ObservationDBWriter) Open(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	w.written = 0
	return nil
}

// Write upserts one chunk of observations.
func (w *ObservationDBWriter) Write(ctx context.Context, items []entity.StationHourObservation) error {
	if err := w.store.Upsert(ctx, items, w.chunkSize); err != nil {
		return err
	}
	w.written += len(items)
	return nil
}

// Close logs the total written.
func (w *ObservationDBWriter) Close(ctx context.Context) error {
	logger.Infof("Persisted %d hourly observations.", w.written)
	return nil
}
