package reader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
)

func TestParseStationID(t *testing.T) {
	cases := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"6140", 6140, true},
		{"6140.05", 6140, true},
		{" 6140 ", 6140, true},
		{"", 0, false},
		{"SYS-01", 0, false},
		{".5", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseStationID(tc.raw)
		assert.Equal(t, tc.ok, ok, "input %q", tc.raw)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %q", tc.raw)
		}
	}
}

func TestParseFloat(t *testing.T) {
	v := parseFloat("40.7418")
	require.NotNil(t, v)
	assert.InDelta(t, 40.7418, *v, 1e-9)

	assert.Nil(t, parseFloat(""))
	assert.Nil(t, parseFloat("n/a"))
}

func TestRecordToEvent(t *testing.T) {
	lat := 40.7418
	startMillis := time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC).UnixMilli()

	rec := &entity.TripRecord{
		RideID:           "A1",
		StartStationID:   "6140.05",
		StartStationName: "W 21 St",
		StartLat:         &lat,
		EndStationID:     "5329",
		StartedAt:        startMillis,
		EndedAt:          startMillis + 10*60*1000,
	}

	event, err := recordToEvent("test", rec)
	require.NoError(t, err)
	assert.Equal(t, 6140, event.StartStationID)
	require.NotNil(t, event.EndStationID)
	assert.Equal(t, 5329, *event.EndStationID)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC), event.StartedAt)
	assert.InDelta(t, 10, event.Duration(), 1e-9)
}

func TestRecordToEvent_BadStartStation(t *testing.T) {
	_, err := recordToEvent("test", &entity.TripRecord{RideID: "A1", StartStationID: "???"})
	assert.Error(t, err)
}
