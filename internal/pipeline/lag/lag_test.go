package lag

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/pipeline"
)

var seriesStart = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// series builds a gap-free hourly series for one station with the given
// per-hour ride counts.
func series(stationID int, counts []int) []entity.FeatureRow {
	rows := make([]entity.FeatureRow, len(counts))
	for i, c := range counts {
		rows[i] = entity.FeatureRow{
			StationID: stationID,
			HourTS:    seriesStart.Add(time.Duration(i) * time.Hour),
			RideCount: c,
		}
	}
	return rows
}

func newTestBuilder(t *testing.T, properties map[string]string) *Builder {
	t.Helper()
	b, err := NewBuilder(properties)
	require.NoError(t, err)
	return b
}

func TestNewBuilder_Defaults(t *testing.T) {
	training := newTestBuilder(t, nil)
	assert.Equal(t, DefaultLagDepth, training.LagDepth())

	inference := newTestBuilder(t, map[string]string{"mode": "inference"})
	assert.Equal(t, 1, inference.LagDepth())
}

func TestNewBuilder_RejectsUnknownMode(t *testing.T) {
	_, err := NewBuilder(map[string]string{"mode": "streaming"})
	assert.Error(t, err)
}

func TestBuilder_Lag1Inference(t *testing.T) {
	b := newTestBuilder(t, map[string]string{"mode": "inference"})

	counts := make([]int, 18)
	counts[3] = 1
	counts[7] = 2

	out, _, err := b.Build(context.Background(), series(101, counts))
	require.NoError(t, err)
	// Rows 1..9 survive: one prior hour required, 8-hour target required.
	require.Len(t, out, 9)

	for _, row := range out {
		hour := int(row.HourTS.Sub(seriesStart) / time.Hour)
		want := 0.0
		switch hour {
		case 4:
			want = 1
		case 8:
			want = 2
		}
		assert.Equal(t, want, row.Lag(1), "lag_1 at hour %d", hour)
		assert.Equal(t, float64(counts[hour+pipeline.ForecastHorizonHours]), row.Target, "target at hour %d", hour)
	}
}

func TestBuilder_TrainingWindows(t *testing.T) {
	b := newTestBuilder(t, map[string]string{"lagDepth": "3"})

	// counts[i] = i makes every lag value identifiable.
	counts := make([]int, 20)
	for i := range counts {
		counts[i] = i
	}

	out, report, err := b.Build(context.Background(), series(101, counts))
	require.NoError(t, err)
	// Rows 3..11: the first lagDepth hours and the last 8 hours are dropped.
	require.Len(t, out, 9)
	assert.Equal(t, 20, report.RowsIn)
	assert.Equal(t, 9, report.RowsOut)

	for _, row := range out {
		i := int(row.HourTS.Sub(seriesStart) / time.Hour)
		require.Equal(t, 3, row.LagDepth())
		assert.Equal(t, float64(i-1), row.Lag(1))
		assert.Equal(t, float64(i-2), row.Lag(2))
		assert.Equal(t, float64(i-3), row.Lag(3))
		// Mean of the three preceding hours, never the row's own count.
		assert.InDelta(t, float64(i-2), row.Roll3, 1e-12)
		assert.Equal(t, float64(i+8), row.Target)
	}
}

func TestBuilder_TrainingDropCount(t *testing.T) {
	b := newTestBuilder(t, map[string]string{"lagDepth": "5"})

	out, _, err := b.Build(context.Background(), series(101, make([]int, 20)))
	require.NoError(t, err)
	// Usable rows: 20 - 5 (history) - 8 (horizon) = 7.
	assert.Len(t, out, 7)
}

func TestBuilder_InferenceZeroFill(t *testing.T) {
	b := newTestBuilder(t, map[string]string{"mode": "inference", "lagDepth": "3"})

	counts := make([]int, 12)
	counts[0] = 6

	out, _, err := b.Build(context.Background(), series(101, counts))
	require.NoError(t, err)
	require.NotEmpty(t, out)

	first := out[0]
	assert.Equal(t, seriesStart.Add(time.Hour), first.HourTS)
	assert.Equal(t, 6.0, first.Lag(1))
	// Lags reaching before the series start are filled with zero.
	assert.Equal(t, 0.0, first.Lag(2))
	assert.Equal(t, 0.0, first.Lag(3))
	// The rolling mean is seeded from the single available prior hour.
	assert.InDelta(t, 6.0, first.Roll3, 1e-12)
}

func TestBuilder_PerStationIsolation(t *testing.T) {
	b := newTestBuilder(t, map[string]string{"mode": "inference", "workers": "2"})

	busyCounts := make([]int, 12)
	quietCounts := make([]int, 12)
	for i := range busyCounts {
		busyCounts[i] = 100 + i
		quietCounts[i] = i
	}

	// Interleave the two stations to prove partitioning, not input order,
	// drives the windows.
	var rows []entity.FeatureRow
	busy := series(7, busyCounts)
	quiet := series(3, quietCounts)
	for i := range busy {
		rows = append(rows, busy[i], quiet[i])
	}

	out, _, err := b.Build(context.Background(), rows)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, out[i-1].StationID, out[i].StationID)
	}
	for _, row := range out {
		i := int(row.HourTS.Sub(seriesStart) / time.Hour)
		if row.StationID == 7 {
			assert.Equal(t, float64(100+i-1), row.Lag(1))
		} else {
			assert.Equal(t, float64(i-1), row.Lag(1))
		}
	}
}

func TestBuilder_RejectsHourlyGap(t *testing.T) {
	b := newTestBuilder(t, map[string]string{"mode": "inference"})

	rows := series(101, make([]int, 12))
	rows = append(rows[:5], rows[6:]...)

	_, _, err := b.Build(context.Background(), rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not hourly")
}

func TestBuilder_RejectsMissingHourTS(t *testing.T) {
	b := newTestBuilder(t, nil)

	rows := series(101, make([]int, 12))
	rows[4].HourTS = time.Time{}

	_, _, err := b.Build(context.Background(), rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing hour_ts")
}

func TestBuilder_EmptyResults(t *testing.T) {
	b := newTestBuilder(t, nil)

	_, _, err := b.Build(context.Background(), nil)
	assert.True(t, errors.Is(err, pipeline.ErrEmptyBatch))

	// A series shorter than lag depth + horizon drops every row.
	short, _, err := b.Build(context.Background(), series(101, make([]int, 10)))
	assert.Empty(t, short)
	assert.True(t, errors.Is(err, pipeline.ErrEmptyBatch))
}

func TestBuilder_WorkerCountDoesNotChangeOutput(t *testing.T) {
	counts := make([]int, 30)
	for i := range counts {
		counts[i] = i * i % 7
	}
	var rows []entity.FeatureRow
	for station := 1; station <= 4; station++ {
		rows = append(rows, series(station, counts)...)
	}

	var outputs [][]entity.FeatureRow
	for _, workers := range []int{1, 4} {
		b := newTestBuilder(t, map[string]string{"lagDepth": "3", "workers": strconv.Itoa(workers)})
		out, _, err := b.Build(context.Background(), rows)
		require.NoError(t, err)
		outputs = append(outputs, out)
	}
	assert.Equal(t, outputs[0], outputs[1])
}
