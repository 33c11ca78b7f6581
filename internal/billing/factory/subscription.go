package factory

import (
	"context"

	"gorm.io/datatypes"

	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/identity"
	"github.com/paymocklabs/paymock/pkg/ids"
)

// PlanQuantity is a validated plan/quantity pair destined for one
// subscription item.
type PlanQuantity struct {
	Plan     domain.Plan
	Quantity int64
}

type SubscriptionParams struct {
	Customer        string
	Items           []PlanQuantity
	Metadata        datatypes.JSONMap
	TaxPercent      *float64
	TrialEnd        *domain.TrialEnd
	TrialPeriodDays *int64
}

// Subscription builds the subscription and its items. An explicit trial_end
// wins over any trial_period_days, and "now" or a past timestamp suppresses
// the trial entirely so the first period bills immediately. The top-level
// plan and quantity mirror the last item.
func (f *Factory) Subscription(ctx context.Context, rc identity.RequestContext, params SubscriptionParams) (*domain.Subscription, error) {
	now := f.clock.Now(ctx).Unix()

	var trialEnd int64
	switch {
	case params.TrialEnd != nil:
		if !params.TrialEnd.Now && params.TrialEnd.Timestamp > now {
			trialEnd = params.TrialEnd.Timestamp
		}
	case params.TrialPeriodDays != nil:
		trialEnd = now + *params.TrialPeriodDays*domain.DaySeconds
	default:
		last := params.Items[len(params.Items)-1].Plan
		if last.TrialPeriodDays != nil {
			trialEnd = now + *last.TrialPeriodDays*domain.DaySeconds
		}
	}

	lastItem := params.Items[len(params.Items)-1]

	sub := domain.Subscription{
		ID:                 f.genID.New(ids.PrefixSubscription),
		Identity:           rc.Identity,
		Object:             "subscription",
		Created:            now,
		CurrentPeriodStart: now,
		Customer:           params.Customer,
		Livemode:           rc.Livemode,
		Metadata:           orEmpty(params.Metadata),
		Plan:               lastItem.Plan.ID,
		Quantity:           lastItem.Quantity,
		Start:              now,
		TaxPercent:         params.TaxPercent,
	}
	if lastItem.Quantity <= 0 {
		sub.Quantity = 1
	}

	if trialEnd > 0 {
		sub.Status = domain.SubscriptionStatusTrialing
		sub.TrialStart = &now
		sub.TrialEnd = &trialEnd
		sub.CurrentPeriodEnd = trialEnd
	} else {
		sub.Status = domain.SubscriptionStatusActive
		sub.CurrentPeriodEnd = now + lastItem.Plan.PeriodSeconds()
	}

	if err := f.store.Subscriptions.Add(ctx, &sub); err != nil {
		return nil, err
	}

	for _, pq := range params.Items {
		item, err := f.SubscriptionItem(ctx, rc, sub.ID, pq.Plan.ID, pq.Quantity)
		if err != nil {
			return nil, err
		}
		sub.Items = append(sub.Items, *item)
	}

	return &sub, nil
}
