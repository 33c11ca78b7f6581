package invoice

import "go.uber.org/fx"

var Module = fx.Module("billing.invoice",
	fx.Provide(NewService),
)
