// Package split partitions a feature table into train and test sets at a
// cutoff instant. The split is chronological, never random: shuffling would
// leak future observations into training.
package split

import (
	"context"
	"time"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/pipeline"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
)

const moduleName = "split"

// Result is the four-way train/test partition of a feature batch.
// Targets[i] corresponds to Features[i] in each half.
type Result struct {
	TrainFeatures []entity.FeatureRow
	TrainTargets  []float64
	TestFeatures  []entity.FeatureRow
	TestTargets   []float64
}

// Splitter performs cutoff-based chronological splits.
type Splitter struct {
	location *time.Location
}

// NewSplitter creates a Splitter bound to the civil timezone.
func NewSplitter() *Splitter {
	return &Splitter{location: pipeline.CivilLocation()}
}

// Split partitions rows into train (hour_ts < cutoff) and test
// (hour_ts >= cutoff). The boundary is test-inclusive: a row whose hour equals
// the cutoff lands in the test set.
//
// The cutoff is normalized to the civil timezone before comparison; a naive
// wall-clock cutoff built with time.Date and a nil location cannot occur in
// Go, but a zero cutoff is rejected as a configuration error, as is a batch
// containing a row without an hour timestamp.
func (s *Splitter) Split(ctx context.Context, rows []entity.FeatureRow, cutoff time.Time) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if cutoff.IsZero() {
		return nil, exception.NewBatchError(moduleName, "cutoff timestamp is not set", nil, false, false)
	}
	if len(rows) == 0 {
		return nil, exception.NewBatchError(moduleName, "no rows to split", pipeline.ErrEmptyBatch, true, false)
	}

	cutoff = cutoff.In(s.location)

	result := &Result{}
	for _, row := range rows {
		if row.HourTS.IsZero() {
			return nil, exception.NewBatchErrorf(moduleName, "row for station %d is missing hour_ts", row.StationID)
		}
		if row.HourTS.Before(cutoff) {
			result.TrainFeatures = append(result.TrainFeatures, row)
			result.TrainTargets = append(result.TrainTargets, row.Target)
		} else {
			result.TestFeatures = append(result.TestFeatures, row)
			result.TestTargets = append(result.TestTargets, row.Target)
		}
	}

	return result, nil
}
