package reader

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"time"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const ModuleTripCSVReader = "trip_csv_reader"

// requiredColumns are the trip file columns the pipeline cannot run without.
var requiredColumns = []string{
	"ride_id",
	"started_at",
	"ended_at",
	"start_station_name",
	"start_station_id",
	"end_station_name",
	"end_station_id",
	"start_lat",
	"start_lng",
	"end_lat",
	"end_lng",
}

// TripCSVReader streams TripEvents from one monthly trip CSV file. A file
// whose header is missing required columns fails Open with a non-skippable
// error; individual malformed rows surface as skippable errors so the job can
// count and skip them.
type TripCSVReader struct {
	path     string
	location *time.Location

	file    *os.File
	csv     *csv.Reader
	columns map[string]int
	rowNum  int
}

// NewTripCSVReader creates a reader for the given file path. Timestamps in the
// file are wall-clock times in the supplied location.
func NewTripCSVReader(path string, location *time.Location) *TripCSVReader {
	return &TripCSVReader{path: path, location: location}
}

// Open opens the file and validates the header.
func (r *TripCSVReader) Open(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	file, err := os.Open(r.path)
	if err != nil {
		return exception.NewBatchError(ModuleTripCSVReader, "failed to open trip file", err, false, false)
	}
	r.file = file
	r.csv = csv.NewReader(file)
	r.csv.ReuseRecord = true

	header, err := r.csv.Read()
	if err != nil {
		file.Close()
		return exception.NewBatchError(ModuleTripCSVReader, "failed to read trip file header", err, false, false)
	}

	r.columns = make(map[string]int, len(header))
	for i, name := range header {
		r.columns[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := r.columns[name]; !ok {
			file.Close()
			return exception.NewBatchErrorf(ModuleTripCSVReader,
				"trip file %s is missing required column '%s'", r.path, name)
		}
	}

	r.rowNum = 1
	logger.Debugf("Opened trip file %s.", r.path)
	return nil
}

// Read returns the next trip event, io.EOF at end of file, or a skippable
// error for a malformed row.
func (r *TripCSVReader) Read(ctx context.Context) (*entity.TripEvent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	record, err := r.csv.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	r.rowNum++
	if err != nil {
		return nil, exception.NewBatchErrorf(ModuleTripCSVReader,
			"row %d of %s is malformed", r.rowNum, r.path, true, false, err)
	}

	field := func(name string) string { return record[r.columns[name]] }

	startID, ok := parseStationID(field("start_station_id"))
	if !ok {
		return nil, exception.NewBatchErrorf(ModuleTripCSVReader,
			"row %d of %s has unparsable start station id '%s'", r.rowNum, r.path, field("start_station_id"), true, false)
	}

	startedAt, err := time.ParseInLocation(tripTimeLayout, field("started_at"), r.location)
	if err != nil {
		return nil, exception.NewBatchErrorf(ModuleTripCSVReader,
			"row %d of %s has unparsable started_at", r.rowNum, r.path, true, false, err)
	}
	endedAt, err := time.ParseInLocation(tripTimeLayout, field("ended_at"), r.location)
	if err != nil {
		return nil, exception.NewBatchErrorf(ModuleTripCSVReader,
			"row %d of %s has unparsable ended_at", r.rowNum, r.path, true, false, err)
	}

	event := &entity.TripEvent{
		RideID:           field("ride_id"),
		StartStationID:   startID,
		StartStationName: field("start_station_name"),
		StartLat:         parseFloat(field("start_lat")),
		StartLng:         parseFloat(field("start_lng")),
		EndStationName:   field("end_station_name"),
		EndLat:           parseFloat(field("end_lat")),
		EndLng:           parseFloat(field("end_lng")),
		StartedAt:        startedAt,
		EndedAt:          endedAt,
	}
	if endID, ok := parseStationID(field("end_station_id")); ok {
		event.EndStationID = &endID
	}
	return event, nil
}

// Close closes the underlying file.
func (r *TripCSVReader) Close(ctx context.Context) error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
