// Package aggregate buckets sanitized trips into hourly per-station ride
// counts and completes the (station, hour) grid so that downstream lag
// features see a regular, gap-free hourly cadence.
package aggregate

import (
	"context"
	"sort"
	"time"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/pipeline"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
)

const moduleName = "aggregate"

// Aggregator groups trip events by (station, hour) and materializes zero
// observations for every hour a station saw no rides. Pure; no cross-call
// state.
type Aggregator struct{}

// NewAggregator creates an Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

type stationKey struct {
	id   int
	name string
}

// Aggregate counts trips per (station, hour floor of the start time) and then
// completes the grid: for every station present in the batch and every hour in
// [min hour, max hour] at one-hour steps, a row exists; combinations absent
// from the raw trips get RideCount 0. Output is ordered by station id, then
// hour.
//
// An empty input yields pipeline.ErrEmptyBatch.
func (a *Aggregator) Aggregate(ctx context.Context, trips []entity.TripEvent) ([]entity.StationHourObservation, pipeline.Report, error) {
	report := pipeline.Report{Stage: moduleName, RowsIn: len(trips)}

	select {
	case <-ctx.Done():
		return nil, report, ctx.Err()
	default:
	}

	if len(trips) == 0 {
		return nil, report, exception.NewBatchError(moduleName, "no trips to aggregate", pipeline.ErrEmptyBatch, true, false)
	}

	type bucket struct {
		station stationKey
		hour    time.Time
	}

	counts := make(map[bucket]int)
	stations := make(map[stationKey]struct{})
	var minHour, maxHour time.Time

	for _, trip := range trips {
		hour := trip.StartedAt.Truncate(time.Hour)
		key := stationKey{id: trip.StartStationID, name: trip.StartStationName}
		counts[bucket{station: key, hour: hour}]++
		stations[key] = struct{}{}

		if minHour.IsZero() || hour.Before(minHour) {
			minHour = hour
		}
		if maxHour.IsZero() || hour.After(maxHour) {
			maxHour = hour
		}
	}

	// Left-join the sparse counts against the full hours x stations product.
	// Existing buckets keep their count; everything else becomes a zero row.
	hours := int(maxHour.Sub(minHour)/time.Hour) + 1
	out := make([]entity.StationHourObservation, 0, hours*len(stations))
	for station := range stations {
		for hour := minHour; !hour.After(maxHour); hour = hour.Add(time.Hour) {
			out = append(out, entity.StationHourObservation{
				StationID:   station.id,
				StationName: station.name,
				HourTS:      hour,
				RideCount:   counts[bucket{station: station, hour: hour}],
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StationID != out[j].StationID {
			return out[i].StationID < out[j].StationID
		}
		return out[i].HourTS.Before(out[j].HourTS)
	})

	report.RowsOut = len(out)
	report.Log()
	return out, report, nil
}
