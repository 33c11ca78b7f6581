package event

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/config"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/ids"
)

var Module = fx.Module("event",
	fx.Provide(NewDispatcher),
	fx.Provide(func(log *zap.Logger, st *store.Store, clk clock.Clock, genID *ids.Generator, d *Dispatcher, cfg config.Config) *Service {
		return NewService(log, st, clk, genID, d, cfg.APIVersion)
	}),
	fx.Invoke(func(lc fx.Lifecycle, d *Dispatcher) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				d.Start()
				return nil
			},
			OnStop: d.Stop,
		})
	}),
)
