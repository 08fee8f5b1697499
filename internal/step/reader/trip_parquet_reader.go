package reader

import (
	"context"
	"io"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const ModuleTripParquetReader = "trip_parquet_reader"

// parquetBatchSize is the number of records pulled from the file per library
// call.
const parquetBatchSize = 1024

// TripParquetReader streams TripEvents from one Parquet trip file. Records
// arrive buffered in batches; rows with unusable station ids surface as
// skippable errors.
type TripParquetReader struct {
	path string

	file      source.ParquetFile
	reader    *reader.ParquetReader
	remaining int64
	batch     []entity.TripRecord
	batchPos  int
}

// NewTripParquetReader creates a reader for the given file path.
func NewTripParquetReader(path string) *TripParquetReader {
	return &TripParquetReader{path: path}
}

// Open opens the file and validates it against the trip record schema.
func (r *TripParquetReader) Open(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	file, err := local.NewLocalFileReader(r.path)
	if err != nil {
		return exception.NewBatchError(ModuleTripParquetReader, "failed to open trip file", err, false, false)
	}

	pr, err := reader.NewParquetReader(file, new(entity.TripRecord), 4)
	if err != nil {
		file.Close()
		return exception.NewBatchErrorf(ModuleTripParquetReader,
			"trip file %s does not match the trip schema", r.path, err)
	}

	r.file = file
	r.reader = pr
	r.remaining = pr.GetNumRows()
	r.batch = nil
	r.batchPos = 0

	logger.Debugf("Opened trip file %s (%d rows).", r.path, r.remaining)
	return nil
}

// Read returns the next trip event or io.EOF after the last row.
func (r *TripParquetReader) Read(ctx context.Context) (*entity.TripEvent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if r.batchPos >= len(r.batch) {
		if r.remaining == 0 {
			return nil, io.EOF
		}
		size := int64(parquetBatchSize)
		if r.remaining < size {
			size = r.remaining
		}
		batch := make([]entity.TripRecord, size)
		if err := r.reader.Read(&batch); err != nil {
			return nil, exception.NewBatchError(ModuleTripParquetReader, "failed to read trip records", err, false, false)
		}
		r.remaining -= size
		r.batch = batch
		r.batchPos = 0
	}

	rec := &r.batch[r.batchPos]
	r.batchPos++

	event, err := recordToEvent(ModuleTripParquetReader, rec)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Close stops the reader and closes the underlying file.
func (r *TripParquetReader) Close(ctx context.Context) error {
	if r.reader != nil {
		r.reader.ReadStop()
		r.reader = nil
	}
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
