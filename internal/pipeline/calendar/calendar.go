// Package calendar derives deterministic calendar features from the hourly
// timestamp: hour-of-day (plus cyclic encodings), day-of-week, month,
// day-of-year, peak-hour and holiday/weekend flags, and the time-of-day
// bucket.
package calendar

import (
	"context"
	"math"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/pipeline"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
)

const moduleName = "calendar"

// peakHours are the commute hours flagged as is_peak_hour.
var peakHours = map[int]struct{}{
	7: {}, 8: {}, 9: {}, 16: {}, 17: {}, 18: {}, 19: {},
}

// Generator computes calendar features. It is a pure function of the
// timestamp: two calls with the same hour yield identical results.
type Generator struct {
	holidays *cal.Calendar
}

// NewGenerator creates a Generator backed by the US federal holiday calendar.
// Holiday observance is evaluated against the actual year of each timestamp,
// so cross-year batches are handled correctly.
func NewGenerator() *Generator {
	c := &cal.Calendar{Name: "US federal holidays"}
	c.AddHoliday(
		us.NewYear,
		us.MlkDay,
		us.PresidentsDay,
		us.MemorialDay,
		us.Juneteenth,
		us.IndependenceDay,
		us.LaborDay,
		us.ColumbusDay,
		us.VeteransDay,
		us.ThanksgivingDay,
		us.ChristmasDay,
	)
	return &Generator{holidays: c}
}

// Features holds the calendar-derived columns for one hour.
type Features struct {
	Hour               int
	HourSin            float64
	HourCos            float64
	DayOfWeek          int // 0=Monday .. 6=Sunday
	Month              int
	DayOfYear          int
	IsHolidayOrWeekend bool
	IsPeakHour         bool
	TimeOfDay          entity.TimeOfDay
}

// Compute derives the calendar features for one hourly timestamp.
func (g *Generator) Compute(hourTS time.Time) Features {
	hour := hourTS.Hour()
	dayOfWeek := (int(hourTS.Weekday()) + 6) % 7 // ISO: Monday=0

	_, isPeak := peakHours[hour]
	isWeekend := dayOfWeek >= 5
	actual, observed, _ := g.holidays.IsHoliday(hourTS)

	return Features{
		Hour:               hour,
		HourSin:            math.Sin(2 * math.Pi * float64(hour) / 24),
		HourCos:            math.Cos(2 * math.Pi * float64(hour) / 24),
		DayOfWeek:          dayOfWeek,
		Month:              int(hourTS.Month()),
		DayOfYear:          hourTS.YearDay(),
		IsHolidayOrWeekend: isWeekend || actual || observed,
		IsPeakHour:         isPeak,
		TimeOfDay:          entity.TimeOfDayFor(hour),
	}
}

// Apply extends each observation into a FeatureRow carrying the calendar
// columns. Lag columns are left for the lag stage. An empty input yields
// pipeline.ErrEmptyBatch.
func (g *Generator) Apply(ctx context.Context, observations []entity.StationHourObservation) ([]entity.FeatureRow, pipeline.Report, error) {
	report := pipeline.Report{Stage: moduleName, RowsIn: len(observations)}

	select {
	case <-ctx.Done():
		return nil, report, ctx.Err()
	default:
	}

	if len(observations) == 0 {
		return nil, report, exception.NewBatchError(moduleName, "no observations", pipeline.ErrEmptyBatch, true, false)
	}

	rows := make([]entity.FeatureRow, 0, len(observations))
	for _, obs := range observations {
		f := g.Compute(obs.HourTS)
		rows = append(rows, entity.FeatureRow{
			StationID:          obs.StationID,
			StationName:        obs.StationName,
			HourTS:             obs.HourTS,
			RideCount:          obs.RideCount,
			Hour:               f.Hour,
			HourSin:            f.HourSin,
			HourCos:            f.HourCos,
			DayOfWeek:          f.DayOfWeek,
			Month:              f.Month,
			DayOfYear:          f.DayOfYear,
			IsHolidayOrWeekend: f.IsHolidayOrWeekend,
			IsPeakHour:         f.IsPeakHour,
			TimeOfDay:          f.TimeOfDay,
		})
	}

	report.RowsOut = len(rows)
	report.Log()
	return rows, report, nil
}
