package subscription

import "go.uber.org/fx"

var Module = fx.Module("billing.subscription",
	fx.Provide(NewService),
)
