// Package stations ranks stations by ride volume and selects the busiest
// subset the rest of the pipeline is scoped to.
package stations

import (
	"context"
	"sort"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/pipeline"
	"github.com/pedalmetry/pedalmetry/internal/support/configbinder"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const moduleName = "stations"

// Config holds the selector settings.
type Config struct {
	TopN int `yaml:"topN"`
}

// Ranked is one station with its total ride volume.
type Ranked struct {
	StationID   int
	StationName string
	RideTotal   int
}

// Selector picks the top-N busiest start stations from a batch.
type Selector struct {
	topN int
}

// NewSelector creates a Selector; TopN defaults to 5.
func NewSelector(properties map[string]string) (*Selector, error) {
	cfg := Config{TopN: 5}
	if err := configbinder.BindProperties(properties, &cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "Failed to bind properties", err, false, false)
	}
	if cfg.TopN < 1 {
		return nil, exception.NewBatchErrorf(moduleName, "topN must be positive, got %d", cfg.TopN)
	}
	return &Selector{topN: cfg.TopN}, nil
}

// SelectFromTrips ranks stations by the number of trips starting there and
// returns the top-N set plus the full ranking. Ties break on station id so the
// selection is deterministic.
func (s *Selector) SelectFromTrips(ctx context.Context, trips []entity.TripEvent) (map[int]struct{}, []Ranked, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	if len(trips) == 0 {
		return nil, nil, exception.NewBatchError(moduleName, "no trips to rank", pipeline.ErrEmptyBatch, true, false)
	}

	totals := make(map[int]*Ranked)
	for _, trip := range trips {
		r, ok := totals[trip.StartStationID]
		if !ok {
			r = &Ranked{StationID: trip.StartStationID, StationName: trip.StartStationName}
			totals[trip.StartStationID] = r
		}
		r.RideTotal++
	}

	return s.rank(totals)
}

// SelectFromObservations ranks stations by summed ride counts. Used when the
// selection runs against already aggregated data.
func (s *Selector) SelectFromObservations(ctx context.Context, observations []entity.StationHourObservation) (map[int]struct{}, []Ranked, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	if len(observations) == 0 {
		return nil, nil, exception.NewBatchError(moduleName, "no observations to rank", pipeline.ErrEmptyBatch, true, false)
	}

	totals := make(map[int]*Ranked)
	for _, obs := range observations {
		r, ok := totals[obs.StationID]
		if !ok {
			r = &Ranked{StationID: obs.StationID, StationName: obs.StationName}
			totals[obs.StationID] = r
		}
		r.RideTotal += obs.RideCount
	}

	return s.rank(totals)
}

func (s *Selector) rank(totals map[int]*Ranked) (map[int]struct{}, []Ranked, error) {
	ranking := make([]Ranked, 0, len(totals))
	for _, r := range totals {
		ranking = append(ranking, *r)
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].RideTotal != ranking[j].RideTotal {
			return ranking[i].RideTotal > ranking[j].RideTotal
		}
		return ranking[i].StationID < ranking[j].StationID
	})

	n := s.topN
	if n > len(ranking) {
		n = len(ranking)
	}
	selected := make(map[int]struct{}, n)
	for _, r := range ranking[:n] {
		selected[r.StationID] = struct{}{}
		logger.Infof("Selected station %d (%s) with %d rides.", r.StationID, r.StationName, r.RideTotal)
	}

	return selected, ranking, nil
}
