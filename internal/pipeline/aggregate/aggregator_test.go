package aggregate

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

func trip(stationID int, name string, startedAt time.Time) entity.TripEvent {
	return entity.TripEvent{
		StartStationID:   stationID,
		StartStationName: name,
		StartedAt:        startedAt,
		EndedAt:          startedAt.Add(10 * time.Minute),
	}
}

func TestAggregator_GridCompletion(t *testing.T) {
	a := NewAggregator()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// Station 101 rides at hours 3 (once) and 7 (twice); station 202 pins the
	// observed span to hours 0..9.
	trips := []entity.TripEvent{
		trip(101, "A", base.Add(3*time.Hour+15*time.Minute)),
		trip(101, "A", base.Add(7*time.Hour+5*time.Minute)),
		trip(101, "A", base.Add(7*time.Hour+40*time.Minute)),
		trip(202, "B", base),
		trip(202, "B", base.Add(9*time.Hour)),
	}

	out, report, err := a.Aggregate(context.Background(), trips)
	require.NoError(t, err)

	// 2 stations x 10 hours, zero rows included.
	require.Len(t, out, 20)
	assert.Equal(t, 5, report.RowsIn)
	assert.Equal(t, 20, report.RowsOut)

	counts := make(map[int]map[time.Time]int)
	for _, obs := range out {
		if counts[obs.StationID] == nil {
			counts[obs.StationID] = make(map[time.Time]int)
		}
		_, seen := counts[obs.StationID][obs.HourTS]
		require.False(t, seen, "duplicate (station, hour) row")
		counts[obs.StationID][obs.HourTS] = obs.RideCount
	}

	for hour := 0; hour < 10; hour++ {
		ts := base.Add(time.Duration(hour) * time.Hour)
		want := 0
		switch hour {
		case 3:
			want = 1
		case 7:
			want = 2
		}
		assert.Equal(t, want, counts[101][ts], "station 101 hour %d", hour)
	}
	assert.Equal(t, 1, counts[202][base])
	assert.Equal(t, 1, counts[202][base.Add(9*time.Hour)])
}

func TestAggregator_OutputOrdering(t *testing.T) {
	a := NewAggregator()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	trips := []entity.TripEvent{
		trip(202, "B", base.Add(2*time.Hour)),
		trip(101, "A", base),
	}

	out, _, err := a.Aggregate(context.Background(), trips)
	require.NoError(t, err)
	require.Len(t, out, 6)

	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		if prev.StationID == cur.StationID {
			assert.Equal(t, time.Hour, cur.HourTS.Sub(prev.HourTS))
		} else {
			assert.Less(t, prev.StationID, cur.StationID)
		}
	}
}

func TestAggregator_FloorsToHour(t *testing.T) {
	a := NewAggregator()
	started := time.Date(2024, 6, 1, 14, 59, 59, 0, time.UTC)

	out, _, err := a.Aggregate(context.Background(), []entity.TripEvent{trip(1, "A", started)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC), out[0].HourTS)
	assert.Equal(t, 1, out[0].RideCount)
}

func TestAggregator_EmptyInput(t *testing.T) {
	a := NewAggregator()
	out, _, err := a.Aggregate(context.Background(), nil)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, pipeline.ErrEmptyBatch))
}
