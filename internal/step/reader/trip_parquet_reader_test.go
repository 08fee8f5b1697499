package reader

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
)

func writeParquetTripFile(t *testing.T, records []entity.TripRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "202406-tripdata.parquet")

	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	pw, err := writer.NewParquetWriter(fw, new(entity.TripRecord), 1)
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, pw.Write(rec))
	}
	require.NoError(t, pw.WriteStop())
	require.NoError(t, fw.Close())
	return path
}

func TestTripParquetReader_ReadsTrips(t *testing.T) {
	lat := 40.7418
	lng := -73.9936
	start := time.Date(2024, 6, 1, 8, 5, 0, 0, time.UTC)

	path := writeParquetTripFile(t, []entity.TripRecord{
		{
			RideID:           "A1",
			StartStationID:   "6140.05",
			StartStationName: "W 21 St",
			StartLat:         &lat,
			StartLng:         &lng,
			EndStationID:     "5329",
			EndStationName:   "E 14 St",
			EndLat:           &lat,
			EndLng:           &lng,
			StartedAt:        start.UnixMilli(),
			EndedAt:          start.Add(10 * time.Minute).UnixMilli(),
		},
		{
			RideID:         "A2",
			StartStationID: "6140",
			StartedAt:      start.Add(time.Hour).UnixMilli(),
			EndedAt:        start.Add(time.Hour + 5*time.Minute).UnixMilli(),
		},
	})

	r := NewTripParquetReader(path)
	ctx := context.Background()
	require.NoError(t, r.Open(ctx))
	defer r.Close(ctx)

	first, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A1", first.RideID)
	assert.Equal(t, 6140, first.StartStationID)
	require.NotNil(t, first.EndStationID)
	assert.Equal(t, 5329, *first.EndStationID)
	assert.True(t, first.StartedAt.Equal(start))

	second, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A2", second.RideID)
	assert.Nil(t, second.EndStationID)

	_, err = r.Read(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestTripParquetReader_BadStationIDIsSkippable(t *testing.T) {
	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	path := writeParquetTripFile(t, []entity.TripRecord{
		{RideID: "A1", StartStationID: "???", StartedAt: start.UnixMilli(), EndedAt: start.UnixMilli()},
	})

	r := NewTripParquetReader(path)
	ctx := context.Background()
	require.NoError(t, r.Open(ctx))
	defer r.Close(ctx)

	_, err := r.Read(ctx)
	require.Error(t, err)
	assert.True(t, exception.IsSkippable(err))
}

func TestTripParquetReader_MissingFileFailsOpen(t *testing.T) {
	r := NewTripParquetReader("/nonexistent/file.parquet")
	assert.Error(t, r.Open(context.Background()))
}
