package service

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(NewExperimentService),
	fx.Provide(fx.Annotated{
		Group:  "routines",
		Target: NewRequestRoutine,
	}),
	fx.Provide(fx.Annotated{
		Group:  "routines",
		Target: NewDispatchRoutine,
	}),
	fx.Provide(fx.Annotated{
		Group:  "routines",
		Target: NewCoverageRoutine,
	}),
	fx.Provide(fx.Annotated{
		Group:  "routines",
		Target: NewFinishRoutine,
	}),
)
