// Package app assembles the Fx application: configuration, storage, metrics,
// and the demand feature job, plus the lifecycle glue that runs the job once
// and shuts the container down when it finishes.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/pedalmetry/pedalmetry/internal/config"
	"github.com/pedalmetry/pedalmetry/internal/infra/metrics"
	"github.com/pedalmetry/pedalmetry/internal/infra/storage"
	"github.com/pedalmetry/pedalmetry/internal/infra/store"
	"github.com/pedalmetry/pedalmetry/internal/job"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

// RunApplication builds and runs the Fx container. It returns when the job
// has finished and the container has stopped.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig) {
	fxApp := fx.New(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
			fx.Annotate(appCtx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`)),
		),

		logger.Module,
		config.Module,
		store.Module,
		storage.Module,
		metrics.Module,
		job.Module,

		fx.Invoke(startMetricsServer),
		fx.Invoke(fx.Annotate(startJobExecution, fx.ParamTags(
			"",              // lc fx.Lifecycle
			"",              // shutdowner fx.Shutdowner
			"",              // j *job.DemandFeatureJob
			`name:"appCtx"`, // appCtx context.Context
		))),
	)

	fxApp.Run()

	if err := fxApp.Err(); err != nil {
		logger.Fatalf("Application run failed: %v", err)
	}
}

// startMetricsServer exposes the Prometheus endpoint for the lifetime of the
// container when metrics are enabled.
func startMetricsServer(lc fx.Lifecycle, cfg *config.Config, recorder *metrics.PrometheusRecorder) {
	if !cfg.Pedalmetry.Metrics.Enabled {
		logger.Debugf("Metrics endpoint disabled.")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	server := &http.Server{
		Addr:              cfg.Pedalmetry.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Infof("Metrics endpoint listening on %s.", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("Metrics endpoint failed: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

// startJobExecution runs the job in a goroutine once the container is up and
// requests shutdown when it completes. A job failure is logged, not fatal to
// the container teardown.
func startJobExecution(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	j *job.DemandFeatureJob,
	appCtx context.Context,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in job execution: %v", r)
					}
					if err := shutdowner.Shutdown(); err != nil {
						logger.Errorf("Failed to shut down application: %v", err)
					}
				}()

				if err := j.Execute(appCtx); err != nil {
					logger.Errorf("Job execution failed: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Infof("Application stopping.")
			return nil
		},
	})
}
