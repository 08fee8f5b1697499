// Package pipeline holds the shared contract of the transform stages: the
// civil timezone, the fixed forecast horizon, per-stage row accounting, and
// the sentinel for legitimately empty results.
package pipeline

import (
	"errors"
	"time"

	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

// ForecastHorizonHours is the fixed offset between a feature row's hour and
// the target it predicts. It is a system-wide invariant, never a parameter.
const ForecastHorizonHours = 8

// CivilTimezone is the wall-clock timezone all calendar features derive from.
const CivilTimezone = "America/New_York"

var civilLocation *time.Location

func init() {
	var err error
	civilLocation, err = time.LoadLocation(CivilTimezone)
	if err != nil {
		civilLocation = time.UTC
		logger.Warnf("Failed to load timezone '%s'. Falling back to UTC: %v", CivilTimezone, err)
	}
}

// CivilLocation returns the civil timezone used by every stage.
func CivilLocation() *time.Location {
	return civilLocation
}

// ErrEmptyBatch signals that a stage legitimately produced zero rows, for
// example when all rows were dropped because the window is shorter than the
// lag depth. Callers detect it with errors.Is and exit gracefully instead of
// treating it as a failure.
var ErrEmptyBatch = errors.New("pipeline: empty batch")

// Report accounts for the rows a stage consumed and produced, so callers can
// detect unexpectedly aggressive drops.
type Report struct {
	Stage   string
	RowsIn  int
	RowsOut int
}

// Dropped returns the number of rows removed by the stage. Grid completion may
// produce more rows than it consumed, in which case Dropped is negative.
func (r Report) Dropped() int {
	return r.RowsIn - r.RowsOut
}

// Log writes the report at INFO level.
func (r Report) Log() {
	logger.Infof("Stage '%s': %d rows in, %d rows out (%d dropped).", r.Stage, r.RowsIn, r.RowsOut, r.Dropped())
}
