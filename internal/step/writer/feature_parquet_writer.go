package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/infra/storage"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const ModuleFeatureParquetWriter = "feature_parquet_writer"

// FeatureMetadata builds the Parquet column metadata for a feature table with
// the given lag depth. The lag column count varies per run, so the schema is
// assembled dynamically instead of being reflected from a struct.
func FeatureMetadata(lagDepth int) []string {
	md := []string{
		"name=station_id, type=INT32",
		"name=station_name, type=BYTE_ARRAY, convertedtype=UTF8",
		"name=hour_ts, type=INT64, convertedtype=TIMESTAMP_MILLIS",
		"name=ride_count, type=INT32",
		"name=hour, type=INT32",
		"name=hour_sin, type=DOUBLE",
		"name=hour_cos, type=DOUBLE",
		"name=day_of_week, type=INT32",
		"name=month, type=INT32",
		"name=day_of_year, type=INT32",
		"name=is_holiday_or_weekend, type=BOOLEAN",
		"name=is_peak_hour, type=BOOLEAN",
		"name=time_of_day, type=BYTE_ARRAY, convertedtype=UTF8",
	}
	for i := 1; i <= lagDepth; i++ {
		md = append(md, fmt.Sprintf("name=ride_count_lag_%d, type=DOUBLE", i))
	}
	md = append(md,
		"name=ride_count_roll3, type=DOUBLE",
		"name=target_ride_count, type=DOUBLE",
	)
	return md
}

// featureValues flattens one row into the column order of FeatureMetadata.
func featureValues(row entity.FeatureRow) []interface{} {
	values := []interface{}{
		int32(row.StationID),
		row.StationName,
		row.HourTS.UnixMilli(),
		int32(row.RideCount),
		int32(row.Hour),
		row.HourSin,
		row.HourCos,
		int32(row.DayOfWeek),
		int32(row.Month),
		int32(row.DayOfYear),
		row.IsHolidayOrWeekend,
		row.IsPeakHour,
		string(row.TimeOfDay),
	}
	for _, lag := range row.Lags {
		values = append(values, lag)
	}
	return append(values, row.Roll3, row.Target)
}

// FeatureParquetWriter buffers feature rows partitioned by civil date and, on
// Close, writes one Parquet file per partition under a Hive-style
// dt=YYYY-MM-DD layout in the backing object store.
type FeatureParquetWriter struct {
	store     storage.ObjectStore
	baseDir   string
	subset    string
	lagDepth  int
	partition map[string][]entity.FeatureRow
	buffered  int
}

// NewFeatureParquetWriter creates a writer. subset names the table half being
// exported ("train" or "test"); lagDepth fixes the column schema and every
// written row must carry exactly that many lags.
func NewFeatureParquetWriter(store storage.ObjectStore, baseDir, subset string, lagDepth int) *FeatureParquetWriter {
	return &FeatureParquetWriter{
		store:    store,
		baseDir:  baseDir,
		subset:   subset,
		lagDepth: lagDepth,
	}
}

// Open clears the partition buffers.
func (w *FeatureParquetWriter) Open(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	w.partition = make(map[string][]entity.FeatureRow)
	w.buffered = 0
	return nil
}

// Write buffers one chunk of rows by their civil date. Rows whose lag count
// does not match the writer's schema are rejected.
func (w *FeatureParquetWriter) Write(ctx context.Context, items []entity.FeatureRow) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	for _, row := range items {
		if row.LagDepth() != w.lagDepth {
			return exception.NewBatchErrorf(ModuleFeatureParquetWriter,
				"row for station %d carries %d lags, schema expects %d",
				row.StationID, row.LagDepth(), w.lagDepth)
		}
		key := fmt.Sprintf("dt=%s", row.HourTS.Format("2006-01-02"))
		w.partition[key] = append(w.partition[key], row)
		w.buffered++
	}
	return nil
}

// Close flushes every buffered partition to the object store. Partitions fail
// independently; all failures are aggregated into one error.
func (w *FeatureParquetWriter) Close(ctx context.Context) error {
	if w.buffered == 0 {
		logger.Infof("FeatureParquetWriter (%s): no rows buffered, nothing to export.", w.subset)
		return nil
	}

	md := FeatureMetadata(w.lagDepth)

	keys := make([]string, 0, len(w.partition))
	for key := range w.partition {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var multiErr error
	for _, key := range keys {
		if err := w.flushPartition(ctx, md, key, w.partition[key]); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
	}
	if multiErr != nil {
		return exception.NewBatchError(ModuleFeatureParquetWriter, "feature export failed", multiErr, false, false)
	}

	logger.Infof("Exported %d feature rows (%s) across %d partitions.", w.buffered, w.subset, len(keys))
	return nil
}

func (w *FeatureParquetWriter) flushPartition(ctx context.Context, md []string, key string, rows []entity.FeatureRow) error {
	buf := new(bytes.Buffer)
	pw, err := writer.NewCSVWriterFromWriter(md, buf, 4)
	if err != nil {
		return exception.NewBatchErrorf(ModuleFeatureParquetWriter,
			"failed to create Parquet writer for partition '%s'", key, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(featureValues(row)); err != nil {
			return exception.NewBatchErrorf(ModuleFeatureParquetWriter,
				"failed to write row for partition '%s'", key, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return exception.NewBatchErrorf(ModuleFeatureParquetWriter,
			"failed to finalize Parquet file for partition '%s'", key, err)
	}

	objectKey := path.Join(w.baseDir, w.subset, key, fmt.Sprintf("part-%s.parquet", uuid.NewString()))
	if err := w.store.Upload(ctx, objectKey, buf, "application/octet-stream"); err != nil {
		return err
	}
	logger.Debugf("Exported partition '%s' (%d rows) to '%s'.", key, len(rows), objectKey)
	return nil
}
