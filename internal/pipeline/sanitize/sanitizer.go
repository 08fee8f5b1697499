// Package sanitize filters raw trip events down to plausible rides at the
// stations under study, with timestamps normalized to the civil timezone.
package sanitize

import (
	"context"
	"sort"
	"time"

	"github.com/pedalmetry/pedalmetry/internal/domain/entity"
	"github.com/pedalmetry/pedalmetry/internal/pipeline"
	"github.com/pedalmetry/pedalmetry/internal/support/configbinder"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const moduleName = "sanitize"

// Config holds the plausibility bounds applied by the Sanitizer.
// The defaults reproduce the canonical NYC cleaning rules.
type Config struct {
	MinDurationMin float64 `yaml:"minDurationMin"`
	MaxDurationMin float64 `yaml:"maxDurationMin"`
	MinLat         float64 `yaml:"minLat"`
	MaxLat         float64 `yaml:"maxLat"`
	MinLng         float64 `yaml:"minLng"`
	MaxLng         float64 `yaml:"maxLng"`
}

// DefaultConfig returns the NYC bounding box and the 1-240 minute duration
// window.
func DefaultConfig() Config {
	return Config{
		MinDurationMin: 1,
		MaxDurationMin: 240,
		MinLat:         40.4774,
		MaxLat:         40.9176,
		MinLng:         -74.2591,
		MaxLng:         -73.7004,
	}
}

// Sanitizer is a pure transform over trip event batches. It holds no
// cross-call state.
type Sanitizer struct {
	config   Config
	location *time.Location
}

// NewSanitizer creates a Sanitizer with defaults overridden by the supplied
// properties.
func NewSanitizer(properties map[string]string) (*Sanitizer, error) {
	cfg := DefaultConfig()
	if err := configbinder.BindProperties(properties, &cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "Failed to bind properties", err, false, false)
	}
	if cfg.MinDurationMin >= cfg.MaxDurationMin {
		return nil, exception.NewBatchErrorf(moduleName, "invalid duration window [%v, %v]", cfg.MinDurationMin, cfg.MaxDurationMin)
	}
	return &Sanitizer{config: cfg, location: pipeline.CivilLocation()}, nil
}

// Sanitize returns the events whose start station is in stationIDs, with
// timestamps converted to the civil timezone, sorted by start time. Events are
// dropped when the duration falls outside the configured window, the end
// station or end coordinates are missing, the start coordinates fall outside
// the bounding box, or the localized start time lands in a Daylight-Saving
// fall-back hour (the repeated local hour cannot be attributed to a single
// hourly bucket, so those rides are discarded rather than double-counted).
//
// A nil stationIDs set disables station filtering. When every event is
// filtered out, the returned error wraps pipeline.ErrEmptyBatch.
func (s *Sanitizer) Sanitize(ctx context.Context, trips []entity.TripEvent, stationIDs map[int]struct{}) ([]entity.TripEvent, pipeline.Report, error) {
	report := pipeline.Report{Stage: moduleName, RowsIn: len(trips)}

	select {
	case <-ctx.Done():
		return nil, report, ctx.Err()
	default:
	}

	out := make([]entity.TripEvent, 0, len(trips))
	var droppedAmbiguous int
	for _, trip := range trips {
		if stationIDs != nil {
			if _, ok := stationIDs[trip.StartStationID]; !ok {
				continue
			}
		}
		if trip.StartedAt.IsZero() || trip.EndedAt.IsZero() {
			continue
		}

		trip.StartedAt = trip.StartedAt.In(s.location)
		trip.EndedAt = trip.EndedAt.In(s.location)

		if s.inFallBackHour(trip.StartedAt) {
			droppedAmbiguous++
			continue
		}

		duration := trip.Duration()
		if duration < s.config.MinDurationMin || duration > s.config.MaxDurationMin {
			continue
		}
		if trip.EndStationID == nil || trip.EndLat == nil || trip.EndLng == nil {
			continue
		}
		if trip.StartLat == nil || trip.StartLng == nil {
			continue
		}
		if *trip.StartLat < s.config.MinLat || *trip.StartLat > s.config.MaxLat ||
			*trip.StartLng < s.config.MinLng || *trip.StartLng > s.config.MaxLng {
			continue
		}

		out = append(out, trip)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})

	if droppedAmbiguous > 0 {
		logger.Warnf("Sanitizer dropped %d trips in the DST fall-back hour.", droppedAmbiguous)
	}

	report.RowsOut = len(out)
	report.Log()

	if len(out) == 0 {
		return out, report, exception.NewBatchError(moduleName, "all trips filtered out", pipeline.ErrEmptyBatch, true, false)
	}
	return out, report, nil
}

// inFallBackHour reports whether t falls in a repeated local hour created by a
// Daylight-Saving fall-back transition. An instant is in the repeated window
// when the zone offset one hour later is smaller (first pass) or the offset
// one hour earlier is larger (second pass).
func (s *Sanitizer) inFallBackHour(t time.Time) bool {
	_, off := t.Zone()
	_, offNext := t.Add(time.Hour).In(s.location).Zone()
	_, offPrev := t.Add(-time.Hour).In(s.location).Zone()
	return offNext < off || offPrev > off
}
