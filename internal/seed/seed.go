// Package seed installs the configured fixture catalog at startup: plans,
// coupons and webhook targets per identity, so client test suites find
// their fixtures already in place.
package seed

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/paymocklabs/paymock/internal/billing/factory"
	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/config"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/identity"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/ids"
)

type Seeder struct {
	log     *zap.Logger
	store   *store.Store
	factory *factory.Factory
	clock   clock.Clock
	genID   *ids.Generator
}

func New(log *zap.Logger, st *store.Store, f *factory.Factory, clk clock.Clock, genID *ids.Generator) *Seeder {
	return &Seeder{
		log:     log.Named("seed"),
		store:   st,
		factory: f,
		clock:   clk,
		genID:   genID,
	}
}

// Install creates every configured fixture that does not already exist.
// Reinstalling over a live store is safe; existing ids are left alone.
func (s *Seeder) Install(ctx context.Context, cfg config.Config) error {
	for _, seed := range cfg.Plans {
		rc := identity.RequestContext{Identity: seed.Identity, Admin: true}

		if seed.ID != "" {
			existing, err := s.store.Plans.Get(ctx, seed.Identity, seed.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
		}

		params := factory.PlanParams{
			ID:            seed.ID,
			Amount:        seed.Amount,
			Currency:      orDefault(seed.Currency, "usd"),
			Interval:      orDefault(seed.Interval, "month"),
			IntervalCount: seed.IntervalCount,
			Name:          seed.Name,
		}
		if seed.TrialPeriodDays > 0 {
			days := seed.TrialPeriodDays
			params.TrialPeriodDays = &days
		}
		plan, err := s.factory.Plan(ctx, rc, params)
		if err != nil {
			return err
		}
		s.log.Info("seeded plan", zap.String("identity", seed.Identity), zap.String("id", plan.ID))
	}

	for _, seed := range cfg.Coupons {
		rc := identity.RequestContext{Identity: seed.Identity, Admin: true}

		if seed.ID != "" {
			existing, err := s.store.Coupons.Get(ctx, seed.Identity, seed.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
		}

		params := factory.CouponParams{
			ID:       seed.ID,
			Duration: orDefault(seed.Duration, domain.DurationOnce),
		}
		if seed.AmountOff > 0 {
			v := seed.AmountOff
			params.AmountOff = &v
			currency := orDefault(seed.Currency, "usd")
			params.Currency = &currency
		} else if seed.PercentOff > 0 {
			v := seed.PercentOff
			params.PercentOff = &v
		}
		if seed.DurationInMonths > 0 {
			v := seed.DurationInMonths
			params.DurationInMonths = &v
		}
		if seed.MaxRedemptions > 0 {
			v := seed.MaxRedemptions
			params.MaxRedemptions = &v
		}
		if seed.RedeemBy > 0 {
			v := seed.RedeemBy
			params.RedeemBy = &v
		}
		coupon, err := s.factory.Coupon(ctx, rc, params)
		if err != nil {
			return err
		}
		s.log.Info("seeded coupon", zap.String("identity", seed.Identity), zap.String("id", coupon.ID))
	}

	for _, seed := range cfg.Webhooks {
		existing, err := s.store.Webhooks.Find(ctx, seed.Identity, map[string]any{"url": seed.URL})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}

		secret := seed.SharedSecret
		if secret == "" {
			secret = uuid.NewString()
		}
		events := seed.Events
		if len(events) == 0 {
			events = []string{"*"}
		}
		wh := domain.Webhook{
			ID:           s.genID.New(ids.PrefixWebhook),
			Identity:     seed.Identity,
			Created:      s.clock.Now(ctx).Unix(),
			URL:          seed.URL,
			SharedSecret: secret,
			Events:       datatypes.JSONSlice[string](events),
		}
		if err := s.store.Webhooks.Add(ctx, &wh); err != nil {
			return err
		}
		s.log.Info("seeded webhook", zap.String("identity", seed.Identity), zap.String("url", seed.URL))
	}

	return nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

var Module = fx.Module("seed",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, seeder *Seeder, cfg config.Config) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return seeder.Install(ctx, cfg)
			},
		})
	}),
)
