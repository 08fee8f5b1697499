package entity

import "time"

// TimeOfDay is the fixed four-way bucketing of the civil hour.
type TimeOfDay string

const (
	TimeOfDayNight     TimeOfDay = "Night"     // hours 0-5
	TimeOfDayMorning   TimeOfDay = "Morning"   // hours 6-11
	TimeOfDayAfternoon TimeOfDay = "Afternoon" // hours 12-17
	TimeOfDayEvening   TimeOfDay = "Evening"   // hours 18-23
)

// TimeOfDayFor maps a civil hour (0-23) to its bucket.
func TimeOfDayFor(hour int) TimeOfDay {
	switch {
	case hour <= 5:
		return TimeOfDayNight
	case hour <= 11:
		return TimeOfDayMorning
	case hour <= 17:
		return TimeOfDayAfternoon
	default:
		return TimeOfDayEvening
	}
}

// FeatureRow is a StationHourObservation extended with calendar features, lag
// features, the trailing rolling mean, and the 8-hour-ahead target.
//
// Lags[i-1] holds ride_count_lag_i, the count observed i hours earlier at the
// same station. Roll3 is the mean of the 3 hours immediately preceding HourTS.
// Target is the count 8 hours after HourTS. None of these values ever
// incorporates the row's own RideCount or another station's series.
type FeatureRow struct {
	StationID   int
	StationName string
	HourTS      time.Time
	RideCount   int

	Hour               int
	HourSin            float64
	HourCos            float64
	DayOfWeek          int // 0=Monday .. 6=Sunday
	Month              int
	DayOfYear          int
	IsHolidayOrWeekend bool
	IsPeakHour         bool
	TimeOfDay          TimeOfDay

	Lags   []float64
	Roll3  float64
	Target float64
}

// LagDepth returns the number of lag features carried by the row.
func (r FeatureRow) LagDepth() int {
	return len(r.Lags)
}

// Lag returns ride_count_lag_i for i in [1, LagDepth].
func (r FeatureRow) Lag(i int) float64 {
	return r.Lags[i-1]
}
