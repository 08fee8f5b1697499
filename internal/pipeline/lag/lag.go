// Package lag produces the lag features, the trailing rolling mean, and the
// forward-shifted prediction target, independently per station.
package lag

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/pipeline"
	"github.com/pedalmetry/pedalmetry/internal/support/configbinder"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
)

const moduleName = "lag"

// DefaultLagDepth is the canonical training lag depth: 28 days of hourly lags.
const DefaultLagDepth = 672

// rollWindow is the size of the trailing rolling-mean window.
const rollWindow = 3

// Mode selects the incomplete-window policy.
type Mode string

const (
	// ModeTraining drops every row lacking a complete lag set, rolling value
	// or target. The usable range shrinks by the lag depth at the start and by
	// the forecast horizon at the end of each station's series.
	ModeTraining Mode = "training"
	// ModeInference tolerates partial windows: missing lags are filled with 0
	// and the rolling mean is seeded from a single prior observation. Rows
	// without any prior hour, or without a target, are still dropped.
	ModeInference Mode = "inference"
)

// Config holds the lag builder settings.
type Config struct {
	LagDepth int    `yaml:"lagDepth"`
	Mode     string `yaml:"mode"`
	Workers  int    `yaml:"workers"`
}

// Builder computes lag, rolling and target columns for a feature batch.
// Station series are processed independently; values never cross a station
// boundary.
type Builder struct {
	lagDepth int
	mode     Mode
	workers  int
}

// NewBuilder creates a Builder from the supplied properties. LagDepth defaults
// to DefaultLagDepth for training and 1 for inference; Workers defaults to 1.
func NewBuilder(properties map[string]string) (*Builder, error) {
	cfg := Config{Mode: string(ModeTraining)}
	if err := configbinder.BindProperties(properties, &cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "Failed to bind properties", err, false, false)
	}

	mode := Mode(cfg.Mode)
	switch mode {
	case ModeTraining, ModeInference:
	default:
		return nil, exception.NewBatchErrorf(moduleName, "unknown mode '%s'", cfg.Mode)
	}

	depth := cfg.LagDepth
	if depth == 0 {
		if mode == ModeInference {
			depth = 1
		} else {
			depth = DefaultLagDepth
		}
	}
	if depth < 1 {
		return nil, exception.NewBatchErrorf(moduleName, "lag depth must be positive, got %d", depth)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	return &Builder{lagDepth: depth, mode: mode, workers: workers}, nil
}

// LagDepth returns the configured lag depth K.
func (b *Builder) LagDepth() int {
	return b.lagDepth
}

// Build attaches ride_count_lag_1..K, ride_count_roll3 and target_ride_count
// to each row. Rows are partitioned by station, each partition sorted by hour,
// transformed, and concatenated back ordered by station id then hour.
//
// A zero HourTS on any row is a schema violation and fails the whole call;
// silently defaulting it would corrupt the lag math without visible symptoms.
// When every row is dropped by the incomplete-window policy, the returned
// error wraps pipeline.ErrEmptyBatch.
func (b *Builder) Build(ctx context.Context, rows []entity.FeatureRow) ([]entity.FeatureRow, pipeline.Report, error) {
	report := pipeline.Report{Stage: moduleName, RowsIn: len(rows)}

	select {
	case <-ctx.Done():
		return nil, report, ctx.Err()
	default:
	}

	if len(rows) == 0 {
		return nil, report, exception.NewBatchError(moduleName, "no feature rows", pipeline.ErrEmptyBatch, true, false)
	}

	partitions := make(map[int][]entity.FeatureRow)
	for _, row := range rows {
		if row.HourTS.IsZero() {
			return nil, report, exception.NewBatchErrorf(moduleName, "row for station %d is missing hour_ts", row.StationID)
		}
		partitions[row.StationID] = append(partitions[row.StationID], row)
	}

	stationIDs := make([]int, 0, len(partitions))
	for id := range partitions {
		stationIDs = append(stationIDs, id)
	}
	sort.Ints(stationIDs)

	results := make(map[int][]entity.FeatureRow, len(partitions))
	errs := make(map[int]error, len(partitions))
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, b.workers)
	for _, id := range stationIDs {
		wg.Add(1)
		go func(stationID int, partition []entity.FeatureRow) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			built, err := b.buildPartition(partition)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[stationID] = err
				return
			}
			results[stationID] = built
		}(id, partitions[id])
	}
	wg.Wait()

	for _, id := range stationIDs {
		if err := errs[id]; err != nil {
			return nil, report, err
		}
	}

	out := make([]entity.FeatureRow, 0, len(rows))
	for _, id := range stationIDs {
		out = append(out, results[id]...)
	}

	report.RowsOut = len(out)
	report.Log()

	if len(out) == 0 {
		return out, report, exception.NewBatchErrorf(moduleName,
			"all rows dropped: lag depth %d exceeds the available history",
			b.lagDepth, true, false, pipeline.ErrEmptyBatch)
	}
	return out, report, nil
}

// buildPartition transforms one station's series. The partition is sorted by
// hour and validated for a strict one-hour cadence before any window math.
func (b *Builder) buildPartition(partition []entity.FeatureRow) ([]entity.FeatureRow, error) {
	sort.Slice(partition, func(i, j int) bool {
		return partition[i].HourTS.Before(partition[j].HourTS)
	})

	counts := make([]float64, len(partition))
	for i, row := range partition {
		counts[i] = float64(row.RideCount)
		if i > 0 {
			if gap := row.HourTS.Sub(partition[i-1].HourTS); gap != time.Hour {
				return nil, exception.NewBatchErrorf(moduleName,
					"station %d series is not hourly at %s (gap %s); run grid completion first",
					row.StationID, row.HourTS.Format(time.RFC3339), gap)
			}
		}
	}

	n := len(partition)
	out := make([]entity.FeatureRow, 0, n)
	for i := 0; i < n; i++ {
		// The last rows of the series have no 8-hour-ahead target in either mode.
		if i+pipeline.ForecastHorizonHours >= n {
			break
		}

		if b.mode == ModeTraining {
			if i < b.lagDepth || i < rollWindow {
				continue
			}
		} else if i < 1 {
			// Inference still needs one prior hour to seed lag_1 and the
			// rolling mean.
			continue
		}

		row := partition[i]
		row.Lags = make([]float64, b.lagDepth)
		for j := 1; j <= b.lagDepth; j++ {
			if i-j >= 0 {
				row.Lags[j-1] = counts[i-j]
			}
		}

		windowStart := i - rollWindow
		if windowStart < 0 {
			windowStart = 0
		}
		var sum float64
		for _, v := range counts[windowStart:i] {
			sum += v
		}
		row.Roll3 = sum / float64(i-windowStart)

		row.Target = counts[i+pipeline.ForecastHorizonHours]
		out = append(out, row)
	}

	return out, nil
}
