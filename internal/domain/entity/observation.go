package entity

import "time"

// StationHourObservation is the canonical unit of the pipeline after
// aggregation: the number of rides starting at one station during one civil
// hour. For a processing run, the set of (StationID, HourTS) pairs forms a
// complete hourly grid with no gaps; an hour with zero rides is a real
// observation, not missing data.
type StationHourObservation struct {
	StationID   int       `gorm:"column:station_id;primaryKey"`
	StationName string    `gorm:"column:station_name"`
	HourTS      time.Time `gorm:"column:hour_ts;primaryKey"`
	RideCount   int       `gorm:"column:ride_count"`
}

// TableName specifies the table name for StationHourObservation.
func (StationHourObservation) TableName() string {
	return "station_hour_observations"
}

// ObservationRecord is the Parquet projection of a StationHourObservation.
type ObservationRecord struct {
	StationID   int32  `parquet:"name=station_id, type=INT32"`
	StationName string `parquet:"name=station_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	HourTS      int64  `parquet:"name=hour_ts, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	RideCount   int32  `parquet:"name=ride_count, type=INT32"`
}
