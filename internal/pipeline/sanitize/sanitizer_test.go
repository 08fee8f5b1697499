package sanitize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/pipeline"
)

func ptr(v float64) *float64 { return &v }
func intPtr(v int) *int      { return &v }

// validTrip returns a trip that passes every sanitizer rule.
func validTrip(stationID int, startedAt time.Time, durationMin int) entity.TripEvent {
	return entity.TripEvent{
		StartStationID:   stationID,
		StartStationName: "W 21 St & 6 Ave",
		StartLat:         ptr(40.7418),
		StartLng:         ptr(-73.9936),
		EndStationID:     intPtr(99),
		EndStationName:   "E 14 St & 1 Ave",
		EndLat:           ptr(40.7312),
		EndLng:           ptr(-73.9817),
		StartedAt:        startedAt,
		EndedAt:          startedAt.Add(time.Duration(durationMin) * time.Minute),
	}
}

func newTestSanitizer(t *testing.T) *Sanitizer {
	t.Helper()
	s, err := NewSanitizer(nil)
	require.NoError(t, err)
	return s
}

func TestSanitizer_StationFilter(t *testing.T) {
	s := newTestSanitizer(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	trips := []entity.TripEvent{
		validTrip(1, base, 10),
		validTrip(2, base.Add(time.Minute), 10),
		validTrip(3, base.Add(2*time.Minute), 10),
	}

	out, report, err := s.Sanitize(context.Background(), trips, map[int]struct{}{1: {}, 3: {}})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 3, report.RowsIn)
	assert.Equal(t, 2, report.RowsOut)
	assert.Equal(t, 1, out[0].StartStationID)
	assert.Equal(t, 3, out[1].StartStationID)
}

func TestSanitizer_DurationBounds(t *testing.T) {
	s := newTestSanitizer(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	trips := []entity.TripEvent{
		validTrip(1, base, 0),   // below minimum
		validTrip(1, base, 1),   // exactly minimum
		validTrip(1, base, 240), // exactly maximum
		validTrip(1, base, 241), // above maximum
	}

	out, _, err := s.Sanitize(context.Background(), trips, nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestSanitizer_MissingEndFields(t *testing.T) {
	s := newTestSanitizer(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	noEndStation := validTrip(1, base, 10)
	noEndStation.EndStationID = nil

	noEndCoords := validTrip(1, base, 10)
	noEndCoords.EndLat = nil

	out, _, err := s.Sanitize(context.Background(), []entity.TripEvent{noEndStation, noEndCoords, validTrip(1, base, 10)}, nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestSanitizer_BoundingBox(t *testing.T) {
	s := newTestSanitizer(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	philadelphia := validTrip(1, base, 10)
	philadelphia.StartLat = ptr(39.9526)
	philadelphia.StartLng = ptr(-75.1652)

	out, _, err := s.Sanitize(context.Background(), []entity.TripEvent{philadelphia, validTrip(1, base, 10)}, nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestSanitizer_DropsFallBackHour(t *testing.T) {
	s := newTestSanitizer(t)

	// US clocks fell back at 2024-11-03 02:00 EDT (06:00 UTC); the local hour
	// 01:00-01:59 occurred twice.
	firstPass := time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC)  // 01:30 EDT
	secondPass := time.Date(2024, 11, 3, 6, 30, 0, 0, time.UTC) // 01:30 EST
	before := time.Date(2024, 11, 3, 4, 30, 0, 0, time.UTC)     // 00:30 EDT
	after := time.Date(2024, 11, 3, 7, 30, 0, 0, time.UTC)      // 02:30 EST

	trips := []entity.TripEvent{
		validTrip(1, firstPass, 10),
		validTrip(1, secondPass, 10),
		validTrip(1, before, 10),
		validTrip(1, after, 10),
	}

	out, report, err := s.Sanitize(context.Background(), trips, nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 2, report.Dropped())
	for _, trip := range out {
		assert.NotEqual(t, 1, trip.StartedAt.Hour())
	}
}

func TestSanitizer_ConvertsToCivilTimezoneAndSorts(t *testing.T) {
	s := newTestSanitizer(t)

	later := validTrip(1, time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC), 10)
	earlier := validTrip(1, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), 10)

	out, _, err := s.Sanitize(context.Background(), []entity.TripEvent{later, earlier}, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.True(t, out[0].StartedAt.Before(out[1].StartedAt))
	assert.Equal(t, pipeline.CivilTimezone, out[0].StartedAt.Location().String())
	// 12:00 UTC on June 1st is 08:00 EDT.
	assert.Equal(t, 8, out[0].StartedAt.Hour())
}

func TestSanitizer_EmptyResultSignal(t *testing.T) {
	s := newTestSanitizer(t)

	out, _, err := s.Sanitize(context.Background(), []entity.TripEvent{validTrip(7, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), 10)}, map[int]struct{}{1: {}})
	assert.Empty(t, out)
	assert.True(t, errors.Is(err, pipeline.ErrEmptyBatch))
}
