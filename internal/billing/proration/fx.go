package proration

import "go.uber.org/fx"

var Module = fx.Module("billing.proration",
	fx.Provide(NewEngine),
)
