package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/pedalmetry/pedalmetry/internal/config"
)

// Module provides the metrics recorder and the tracer provider.
var Module = fx.Options(
	fx.Provide(
		NewPrometheusRecorder,
		NewRecorderProvider,
		func(lc fx.Lifecycle, cfg *config.Config) (*TracerProvider, error) {
			tp, err := NewTracerProvider(context.Background(), &cfg.Pedalmetry.Tracing)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return tp.Shutdown(ctx)
				},
			})
			return tp, nil
		},
	),
)

// NewRecorderProvider selects the active Recorder. When metrics are disabled
// the Prometheus recorder still exists but nothing is recorded into it.
func NewRecorderProvider(cfg *config.Config, prom *PrometheusRecorder) Recorder {
	if !cfg.Pedalmetry.Metrics.Enabled {
		return NoopRecorder{}
	}
	return prom
}
