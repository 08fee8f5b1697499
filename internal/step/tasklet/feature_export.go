// Package tasklet holds the job's one-shot work units: exporting the split
// feature sets to parquet and running schema migrations.
package tasklet

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/pipeline/split"
	"github.com/pedalmetry/pedalmetry/internal/step"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const exportModule = "feature_export"

// FeatureExportTasklet writes a train/test split to its two parquet sinks in
// chunks. Each subset goes through its own writer so the train and test trees
// stay separate on storage.
type FeatureExportTasklet struct {
	result      *split.Result
	trainWriter step.ItemWriter[entity.FeatureRow]
	testWriter  step.ItemWriter[entity.FeatureRow]
	chunkSize   int
}

// NewFeatureExportTasklet creates a tasklet for one split result.
func NewFeatureExportTasklet(
	result *split.Result,
	trainWriter, testWriter step.ItemWriter[entity.FeatureRow],
	chunkSize int,
) *FeatureExportTasklet {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &FeatureExportTasklet{
		result:      result,
		trainWriter: trainWriter,
		testWriter:  testWriter,
		chunkSize:   chunkSize,
	}
}

// Execute writes both subsets. The test writer still runs when the train
// writer fails so partial output is as complete as possible; errors from both
// subsets are aggregated.
func (t *FeatureExportTasklet) Execute(ctx context.Context) error {
	if t.result == nil {
		return exception.NewBatchError(exportModule, "no split result to export", nil, false, false)
	}

	var errs *multierror.Error
	if err := t.writeSubset(ctx, "train", t.trainWriter, t.result.TrainFeatures); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := t.writeSubset(ctx, "test", t.testWriter, t.result.TestFeatures); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

func (t *FeatureExportTasklet) writeSubset(ctx context.Context, subset string, w step.ItemWriter[entity.FeatureRow], rows []entity.FeatureRow) error {
	if err := w.Open(ctx); err != nil {
		return exception.NewBatchError(exportModule, fmt.Sprintf("failed to open %s writer", subset), err, false, true)
	}

	for start := 0; start < len(rows); start += t.chunkSize {
		end := start + t.chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := w.Write(ctx, rows[start:end]); err != nil {
			_ = w.Close(ctx)
			return exception.NewBatchError(exportModule, fmt.Sprintf("failed to write %s chunk", subset), err, false, true)
		}
	}

	if err := w.Close(ctx); err != nil {
		return exception.NewBatchError(exportModule, fmt.Sprintf("failed to close %s writer", subset), err, false, true)
	}

	logger.Infof("Exported %d '%s' feature rows.", len(rows), subset)
	return nil
}
