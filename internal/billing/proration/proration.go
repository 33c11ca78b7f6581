// Package proration produces compensating invoice items when a subscription
// item's plan or quantity changes before the current billing period ends.
package proration

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/paymocklabs/paymock/internal/billing/factory"
	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/identity"
)

// Change captures one subscription item moving from its stored plan/quantity
// to new values, or being removed outright.
type Change struct {
	ItemID      string
	OldPlan     domain.Plan
	OldQuantity int64
	NewPlan     domain.Plan
	NewQuantity int64
	Deleted     bool
}

// Changed reports whether the change actually alters billing. Removals
// always count.
func (c Change) Changed() bool {
	return c.Deleted || c.OldPlan.ID != c.NewPlan.ID || c.OldQuantity != c.NewQuantity
}

type Engine struct {
	log     *zap.Logger
	factory *factory.Factory
	clock   clock.Clock
}

func NewEngine(log *zap.Logger, f *factory.Factory, clk clock.Clock) *Engine {
	return &Engine{
		log:     log.Named("billing.proration"),
		factory: f,
		clock:   clk,
	}
}

// PercentUnused is the whole-number percentage of the period still ahead:
// 100 - floor(100 * elapsed / length). Whole-period granularity, so small
// rounding drift against a sub-cent engine is expected.
func PercentUnused(now, periodStart, periodEnd int64) int64 {
	if periodEnd <= periodStart {
		return 0
	}
	return 100 - (100*(now-periodStart))/(periodEnd-periodStart)
}

// Apply emits the compensating invoice items for one change: a credit for
// the unused share of the old plan/quantity, and unless the item is being
// removed, a charge for the same share of the new values. Quantity-only
// changes still go through the full credit-and-recharge pair.
func (e *Engine) Apply(ctx context.Context, rc identity.RequestContext, sub *domain.Subscription, ch Change) ([]domain.EventDraft, error) {
	now := e.clock.Now(ctx).Unix()
	percent := PercentUnused(now, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)

	var drafts []domain.EventDraft

	credit := prorate(ch.OldPlan.Amount*ch.OldQuantity, percent)
	creditDesc := fmt.Sprintf("Unused time on %d x %s", ch.OldQuantity, ch.OldPlan.Name)
	_, draft, err := e.factory.InvoiceItem(ctx, rc, factory.InvoiceItemParams{
		Customer:         sub.Customer,
		Amount:           -credit,
		Currency:         ch.OldPlan.Currency,
		Description:      &creditDesc,
		Subscription:     &sub.ID,
		Plan:             &ch.OldPlan.ID,
		Quantity:         ch.OldQuantity,
		SubscriptionItem: &ch.ItemID,
		Proration:        true,
		PeriodStart:      sub.CurrentPeriodStart,
		PeriodEnd:        sub.CurrentPeriodEnd,
	})
	if err != nil {
		return nil, err
	}
	drafts = append(drafts, draft)

	if ch.Deleted {
		e.log.Debug("prorated removal",
			zap.String("subscription", sub.ID),
			zap.Int64("percent_unused", percent),
			zap.Int64("credit", credit))
		return drafts, nil
	}

	recharge := prorate(ch.NewPlan.Amount*ch.NewQuantity, percent)
	rechargeDesc := fmt.Sprintf("Remaining time on %d x %s", ch.NewQuantity, ch.NewPlan.Name)
	_, draft, err = e.factory.InvoiceItem(ctx, rc, factory.InvoiceItemParams{
		Customer:         sub.Customer,
		Amount:           recharge,
		Currency:         ch.NewPlan.Currency,
		Description:      &rechargeDesc,
		Subscription:     &sub.ID,
		Plan:             &ch.NewPlan.ID,
		Quantity:         ch.NewQuantity,
		SubscriptionItem: &ch.ItemID,
		Proration:        true,
		PeriodStart:      sub.CurrentPeriodStart,
		PeriodEnd:        sub.CurrentPeriodEnd,
	})
	if err != nil {
		return nil, err
	}
	drafts = append(drafts, draft)

	e.log.Debug("prorated change",
		zap.String("subscription", sub.ID),
		zap.Int64("percent_unused", percent),
		zap.Int64("credit", credit),
		zap.Int64("recharge", recharge))
	return drafts, nil
}

func prorate(amountPerCycle, percent int64) int64 {
	return int64(math.Round(float64(amountPerCycle) * float64(percent) / 100))
}
