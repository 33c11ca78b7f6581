package factory

import "go.uber.org/fx"

var Module = fx.Module("billing.factory",
	fx.Provide(New),
)
