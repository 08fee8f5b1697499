package job

import "go.uber.org/fx"

// Module provides the demand feature job.
var Module = fx.Options(
	fx.Provide(NewDemandFeatureJob),
)
