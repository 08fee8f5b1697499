// Package reader ingests raw trip files (CSV or Parquet) as TripEvent streams.
package reader

import (
	"strconv"
	"strings"
	"time"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
)

// tripTimeLayout is the wall-clock timestamp format used by the monthly trip
// files.
const tripTimeLayout = "2006-01-02 15:04:05"

// parseStationID normalizes a source station id. The files occasionally carry
// a decimal suffix ("5329.03"); the integer part identifies the station.
func parseStationID(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if dot := strings.IndexByte(raw, '.'); dot >= 0 {
		raw = raw[:dot]
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// parseFloat parses an optional coordinate value; empty strings stay nil.
func parseFloat(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

// recordToEvent converts a raw Parquet trip record into a TripEvent. A start
// station id that cannot be parsed makes the record unusable.
func recordToEvent(moduleName string, rec *entity.TripRecord) (entity.TripEvent, error) {
	startID, ok := parseStationID(rec.StartStationID)
	if !ok {
		return entity.TripEvent{}, exception.NewBatchErrorf(moduleName,
			"ride %s has unparsable start station id '%s'", rec.RideID, rec.StartStationID, true, false)
	}

	event := entity.TripEvent{
		RideID:           rec.RideID,
		StartStationID:   startID,
		StartStationName: rec.StartStationName,
		StartLat:         rec.StartLat,
		StartLng:         rec.StartLng,
		EndStationName:   rec.EndStationName,
		EndLat:           rec.EndLat,
		EndLng:           rec.EndLng,
		StartedAt:        time.UnixMilli(rec.StartedAt).UTC(),
		EndedAt:          time.UnixMilli(rec.EndedAt).UTC(),
	}
	if endID, ok := parseStationID(rec.EndStationID); ok {
		event.EndStationID = &endID
	}
	return event, nil
}
