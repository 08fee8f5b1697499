// Package job orchestrates the demand feature pipeline: trip ingestion,
// station selection, sanitizing, hourly aggregation, calendar and lag feature
// computation, the chronological split, and the parquet export.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pedalmetry/pedalmetry/internal/config"
	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/infra/metrics"
	"github.com/pedalmetry/pedalmetry/internal/infra/storage"
	"github.com/pedalmetry/pedalmetry/internal/infra/store"
	"github.com/pedalmetry/pedalmetry/internal/pipeline"
	"github.com/pedalmetry/pedalmetry/internal/pipeline/aggregate"
	"github.com/pedalmetry/pedalmetry/internal/pipeline/calendar"
	"github.com/pedalmetry/pedalmetry/internal/pipeline/lag"
	"github.com/pedalmetry/pedalmetry/internal/pipeline/sanitize"
	"github.com/pedalmetry/pedalmetry/internal/pipeline/split"
	"github.com/pedalmetry/pedalmetry/internal/pipeline/stations"
	"github.com/pedalmetry/pedalmetry/internal/step"
	"github.com/pedalmetry/pedalmetry/internal/step/reader"
	"github.com/pedalmetry/pedalmetry/internal/step/tasklet"
	"github.com/pedalmetry/pedalmetry/internal/step/writer"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const moduleName = "job"

// cutoffLayouts are accepted SplitCutoff formats, tried in order. The
// date-only form is interpreted as midnight in the civil timezone.
var cutoffLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// DemandFeatureJob runs the full feature pipeline once per Execute call.
type DemandFeatureJob struct {
	jobCfg      config.JobConfig
	obsStore    *store.ObservationStore
	objectStore storage.ObjectStore
	migrator    *store.Migrator
	recorder    metrics.Recorder
	tracer      trace.Tracer
}

// NewDemandFeatureJob wires a job from its collaborators.
func NewDemandFeatureJob(
	jobCfg *config.JobConfig,
	obsStore *store.ObservationStore,
	objectStore storage.ObjectStore,
	migrator *store.Migrator,
	recorder metrics.Recorder,
	tp *metrics.TracerProvider,
) *DemandFeatureJob {
	return &DemandFeatureJob{
		jobCfg:      *jobCfg,
		obsStore:    obsStore,
		objectStore: objectStore,
		migrator:    migrator,
		recorder:    recorder,
		tracer:      tp.Tracer("pedalmetry/job"),
	}
}

// Execute runs the pipeline end to end. A batch that empties out along the way
// (every trip rejected, every feature row dropped) completes the run without
// output instead of failing it.
func (j *DemandFeatureJob) Execute(ctx context.Context) (err error) {
	runID := uuid.NewString()
	started := time.Now()

	ctx, span := j.tracer.Start(ctx, "job.execute", trace.WithAttributes(
		attribute.String("job.name", j.jobCfg.Name),
		attribute.String("job.run_id", runID),
	))
	defer span.End()

	j.recorder.RecordJobStart(ctx, j.jobCfg.Name)
	logger.Infof("Job '%s' run '%s' started.", j.jobCfg.Name, runID)

	status := "completed"
	defer func() {
		if err != nil {
			status = "failed"
		}
		j.recorder.RecordJobEnd(ctx, j.jobCfg.Name, status, time.Since(started))
		logger.Infof("Job '%s' run '%s' finished with status '%s' in %s.",
			j.jobCfg.Name, runID, status, time.Since(started).Round(time.Millisecond))
	}()

	cutoff, err := j.parseCutoff()
	if err != nil {
		return err
	}

	if err = tasklet.NewMigrateTasklet(j.migrator).Execute(ctx); err != nil {
		return err
	}

	trips, err := j.readTrips(ctx)
	if err != nil {
		return err
	}
	if len(trips) == 0 {
		status = "completed_empty"
		logger.Warnf("No trips ingested, nothing to do.")
		return nil
	}

	selector, err := stations.NewSelector(j.jobCfg.StageProperties("stations"))
	if err != nil {
		return err
	}
	stationIDs, ranked, err := selector.SelectFromTrips(ctx, trips)
	if err != nil {
		return err
	}
	logger.Infof("Selected %d stations (busiest: %d).", len(stationIDs), ranked[0].StationID)

	sanitizer, err := sanitize.NewSanitizer(j.jobCfg.StageProperties("sanitize"))
	if err != nil {
		return err
	}
	clean, empty, err := runStage(ctx, j, "sanitize", func(ctx context.Context) ([]entity.TripEvent, pipeline.Report, error) {
		return sanitizer.Sanitize(ctx, trips, stationIDs)
	})
	if empty || err != nil {
		if empty {
			status = "completed_empty"
		}
		return err
	}

	observations, empty, err := runStage(ctx, j, "aggregate", func(ctx context.Context) ([]entity.StationHourObservation, pipeline.Report, error) {
		return aggregate.NewAggregator().Aggregate(ctx, clean)
	})
	if empty || err != nil {
		if empty {
			status = "completed_empty"
		}
		return err
	}

	if err = j.storeObservations(ctx, observations); err != nil {
		return err
	}

	withCalendar, empty, err := runStage(ctx, j, "calendar", func(ctx context.Context) ([]entity.FeatureRow, pipeline.Report, error) {
		return calendar.NewGenerator().Apply(ctx, observations)
	})
	if empty || err != nil {
		if empty {
			status = "completed_empty"
		}
		return err
	}

	lagBuilder, err := lag.NewBuilder(j.jobCfg.StageProperties("lag"))
	if err != nil {
		return err
	}
	features, empty, err := runStage(ctx, j, "lag", func(ctx context.Context) ([]entity.FeatureRow, pipeline.Report, error) {
		return lagBuilder.Build(ctx, withCalendar)
	})
	if empty || err != nil {
		if empty {
			status = "completed_empty"
		}
		return err
	}

	result, err := split.NewSplitter().Split(ctx, features, cutoff)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyBatch) {
			status = "completed_empty"
			logger.Warnf("Nothing left to split, skipping export.")
			return nil
		}
		return err
	}
	logger.Infof("Split: %d train rows, %d test rows at cutoff %s.",
		len(result.TrainFeatures), len(result.TestFeatures), cutoff.Format(time.RFC3339))

	return j.export(ctx, result, lagBuilder.LagDepth())
}

// runStage wraps one stage call with tracing and metrics. The returned bool
// reports a drained batch: the stage rejected every row, which ends the run
// gracefully rather than as a failure.
func runStage[T any](ctx context.Context, j *DemandFeatureJob, stage string, fn func(context.Context) ([]T, pipeline.Report, error)) ([]T, bool, error) {
	ctx, span := j.tracer.Start(ctx, "stage."+stage)
	defer span.End()

	start := time.Now()
	out, report, err := fn(ctx)
	j.recorder.RecordStage(ctx, j.jobCfg.Name, report, time.Since(start))
	report.Log()

	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyBatch) {
			logger.Warnf("Stage '%s' drained the batch: %s", stage, exception.ExtractErrorMessage(err))
			return nil, true, nil
		}
		return nil, false, err
	}
	return out, false, nil
}

// readTrips ingests every file matched by the input glob. Malformed rows are
// skipped and counted; a file whose header or schema is unusable is skipped
// whole. Only an empty glob match is a hard error.
func (j *DemandFeatureJob) readTrips(ctx context.Context) ([]entity.TripEvent, error) {
	paths, err := filepath.Glob(j.jobCfg.InputGlob)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("invalid input glob '%s'", j.jobCfg.InputGlob), err, false, false)
	}
	if len(paths) == 0 {
		return nil, exception.NewBatchErrorf(moduleName, "input glob '%s' matched no files", j.jobCfg.InputGlob)
	}

	var trips []entity.TripEvent
	var skippedRows int
	for _, path := range paths {
		fileTrips, fileSkipped, err := j.readTripFile(ctx, path)
		if err != nil {
			if exception.IsSkippable(err) {
				logger.Warnf("Skipping unreadable trip file '%s': %s", path, exception.ExtractErrorMessage(err))
				j.recorder.RecordSkippedFile(ctx, j.jobCfg.Name)
				continue
			}
			return nil, err
		}
		trips = append(trips, fileTrips...)
		skippedRows += fileSkipped
	}

	logger.Infof("Ingested %d trips from %d files (%d malformed rows skipped).", len(trips), len(paths), skippedRows)
	return trips, nil
}

func (j *DemandFeatureJob) newTripReader(path string) (step.ItemReader[*entity.TripEvent], error) {
	switch j.jobCfg.InputFormat {
	case "csv":
		return reader.NewTripCSVReader(path, pipeline.CivilLocation()), nil
	case "parquet":
		return reader.NewTripParquetReader(path), nil
	default:
		return nil, exception.NewBatchErrorf(moduleName, "unsupported input format '%s'", j.jobCfg.InputFormat)
	}
}

func (j *DemandFeatureJob) readTripFile(ctx context.Context, path string) ([]entity.TripEvent, int, error) {
	r, err := j.newTripReader(path)
	if err != nil {
		return nil, 0, err
	}
	if err := r.Open(ctx); err != nil {
		return nil, 0, exception.NewBatchError(moduleName, fmt.Sprintf("failed to open trip file '%s'", path), err, true, false)
	}
	defer func() {
		if closeErr := r.Close(ctx); closeErr != nil {
			logger.Warnf("Failed to close trip file '%s': %v", path, closeErr)
		}
	}()

	var trips []entity.TripEvent
	var skipped int
	for {
		event, err := r.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return trips, skipped, nil
			}
			if exception.IsSkippable(err) {
				skipped++
				logger.Debugf("Skipping malformed trip row in '%s': %s", path, exception.ExtractErrorMessage(err))
				continue
			}
			return nil, skipped, err
		}
		trips = append(trips, *event)
	}
}

func (j *DemandFeatureJob) storeObservations(ctx context.Context, observations []entity.StationHourObservation) error {
	ctx, span := j.tracer.Start(ctx, "stage.store")
	defer span.End()

	w := writer.NewObservationDBWriter(j.obsStore, j.jobCfg.ChunkSize)
	if err := w.Open(ctx); err != nil {
		return err
	}
	if err := w.Write(ctx, observations); err != nil {
		_ = w.Close(ctx)
		return err
	}
	return w.Close(ctx)
}

func (j *DemandFeatureJob) export(ctx context.Context, result *split.Result, lagDepth int) error {
	ctx, span := j.tracer.Start(ctx, "stage.export")
	defer span.End()

	trainWriter := writer.NewFeatureParquetWriter(j.objectStore, j.jobCfg.OutputDir, "train", lagDepth)
	testWriter := writer.NewFeatureParquetWriter(j.objectStore, j.jobCfg.OutputDir, "test", lagDepth)

	export := tasklet.NewFeatureExportTasklet(result, trainWriter, testWriter, j.jobCfg.ChunkSize)
	if err := export.Execute(ctx); err != nil {
		return exception.NewBatchError(moduleName, "feature export failed", err, false, true)
	}
	return nil
}

// parseCutoff parses the configured split cutoff, trying each accepted layout.
// Layouts without a zone are anchored to the civil timezone.
func (j *DemandFeatureJob) parseCutoff() (time.Time, error) {
	raw := j.jobCfg.SplitCutoff
	if raw == "" {
		return time.Time{}, exception.NewBatchErrorf(moduleName, "split cutoff is not configured")
	}
	loc := pipeline.CivilLocation()
	for _, layout := range cutoffLayouts {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, exception.NewBatchErrorf(moduleName, "unparseable split cutoff '%s'", raw)
}
