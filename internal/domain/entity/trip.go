// Package entity defines the domain types flowing through the demand feature
// pipeline: raw trip events, hourly station observations, and feature rows.
package entity

import "time"

// TripEvent represents one raw bike-share ride as ingested from the monthly
// trip files. Coordinate and end-station fields are pointers so that missing
// source values survive parsing and can be rejected by the sanitizer instead
// of being silently zeroed.
type TripEvent struct {
	RideID           string
	StartStationID   int
	StartStationName string
	StartLat         *float64
	StartLng         *float64
	EndStationID     *int
	EndStationName   string
	EndLat           *float64
	EndLng           *float64
	StartedAt        time.Time
	EndedAt          time.Time
}

// Duration returns the ride duration in minutes.
func (t TripEvent) Duration() float64 {
	return t.EndedAt.Sub(t.StartedAt).Minutes()
}

// TripRecord is the raw Parquet projection of a trip event. String-typed
// station ids mirror the source files, where ids occasionally carry a decimal
// suffix and must be normalized during conversion to TripEvent.
type TripRecord struct {
	RideID           string   `parquet:"name=ride_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartStationID   string   `parquet:"name=start_station_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartStationName string   `parquet:"name=start_station_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartLat         *float64 `parquet:"name=start_lat, type=DOUBLE"`
	StartLng         *float64 `parquet:"name=start_lng, type=DOUBLE"`
	EndStationID     string   `parquet:"name=end_station_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	EndStationName   string   `parquet:"name=end_station_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	EndLat           *float64 `parquet:"name=end_lat, type=DOUBLE"`
	EndLng           *float64 `parquet:"name=end_lng, type=DOUBLE"`
	StartedAt        int64    `parquet:"name=started_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	EndedAt          int64    `parquet:"name=ended_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}
