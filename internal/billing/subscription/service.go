// Package subscription drives the trialing, active and canceled states:
// creation with trial detection, updates that prorate plan or quantity
// changes, and immediate or period-end cancellation.
package subscription

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/paymocklabs/paymock/internal/billing/factory"
	"github.com/paymocklabs/paymock/internal/billing/invoice"
	"github.com/paymocklabs/paymock/internal/billing/proration"
	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/event"
	"github.com/paymocklabs/paymock/internal/identity"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/pagination"
)

type Service struct {
	log       *zap.Logger
	store     *store.Store
	factory   *factory.Factory
	proration *proration.Engine
	invoices  *invoice.Service
	clock     clock.Clock
	events    *event.Service
}

func NewService(log *zap.Logger, st *store.Store, f *factory.Factory, pr *proration.Engine, inv *invoice.Service, clk clock.Clock, events *event.Service) *Service {
	return &Service{
		log:       log.Named("billing.subscription"),
		store:     st,
		factory:   f,
		proration: pr,
		invoices:  inv,
		clock:     clk,
		events:    events,
	}
}

// ItemParams is one requested plan/quantity pair.
type ItemParams struct {
	Plan     string `json:"plan"`
	Quantity int64  `json:"quantity"`
}

type CreateParams struct {
	Customer              string
	Items                 []ItemParams
	Plan                  string
	Quantity              int64
	Coupon                string
	Metadata              datatypes.JSONMap
	TaxPercent            *float64
	ApplicationFeePercent *float64
	TrialEnd              *domain.TrialEnd
	TrialPeriodDays       *int64
}

// Create builds a subscription and, unless it starts inside a trial window,
// immediately assembles and settles its first-period invoice.
func (s *Service) Create(ctx context.Context, rc identity.RequestContext, params CreateParams) (*domain.SubscriptionView, error) {
	unlock := s.store.LockIdentity(rc.Identity)
	defer unlock()

	items := params.Items
	if params.Plan != "" {
		items = append(items, ItemParams{Plan: params.Plan, Quantity: params.Quantity})
	}

	if params.Customer == "" {
		return nil, domain.InvalidRequest("customer", "no customer specified")
	}
	if len(items) == 0 {
		return nil, domain.InvalidRequest("plan", "no plan specified")
	}

	customer, err := s.store.Customers.Get(ctx, rc.Identity, params.Customer)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, domain.InvalidRequest("customer", "no such customer: %s", params.Customer)
	}

	planItems := make([]factory.PlanQuantity, 0, len(items))
	for _, item := range items {
		plan, err := s.store.Plans.Get(ctx, rc.Identity, item.Plan)
		if err != nil {
			return nil, err
		}
		if plan == nil || plan.Deleted {
			return nil, domain.InvalidRequest("plan", "no such plan: %s", item.Plan)
		}
		planItems = append(planItems, factory.PlanQuantity{Plan: *plan, Quantity: item.Quantity})
	}

	sub, err := s.factory.Subscription(ctx, rc, factory.SubscriptionParams{
		Customer:        customer.ID,
		Items:           planItems,
		Metadata:        params.Metadata,
		TaxPercent:      params.TaxPercent,
		TrialEnd:        params.TrialEnd,
		TrialPeriodDays: params.TrialPeriodDays,
	})
	if err != nil {
		return nil, err
	}

	// An unknown coupon id is silently skipped rather than rejected.
	if params.Coupon != "" {
		coupon, err := s.store.Coupons.Get(ctx, rc.Identity, params.Coupon)
		if err != nil {
			return nil, err
		}
		discount, err := s.factory.Discount(ctx, rc, coupon, customer.ID, &sub.ID)
		if err != nil {
			return nil, err
		}
		sub.Discount = discount
	}

	view, err := s.Populate(ctx, rc.Identity, *sub)
	if err != nil {
		return nil, err
	}
	if _, err := s.events.Emit(ctx, rc, domain.EventDraft{
		Type:   domain.EventCustomerSubscriptionCreated,
		Object: view,
	}); err != nil {
		return nil, err
	}

	if !sub.Trialing() {
		if _, err := s.invoices.Assemble(ctx, rc, invoice.AssembleParams{
			Customer:     customer,
			Subscription: sub,
			Pay:          true,
		}); err != nil {
			return nil, err
		}
	}

	return view, nil
}

// Retrieve loads one subscription with items, plans and discount expanded.
func (s *Service) Retrieve(ctx context.Context, rc identity.RequestContext, subscriptionID string) (*domain.SubscriptionView, error) {
	sub, err := s.Load(ctx, rc.Identity, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.InvalidRequest("subscription", "no such subscription: %s", subscriptionID)
	}
	return s.Populate(ctx, rc.Identity, *sub)
}

// UpdateItem is one requested change to an existing subscription item.
type UpdateItem struct {
	ID       string `json:"id"`
	Plan     string `json:"plan"`
	Quantity *int64 `json:"quantity"`
	Deleted  bool   `json:"deleted"`
}

type UpdateParams struct {
	Items []UpdateItem

	// Top-level plan/quantity shorthand targeting the first item.
	Plan     string
	Quantity *int64

	// Coupon is tri-state: absent leaves the discount alone, a value
	// attaches a new one, an explicit null clears it.
	Coupon    *string
	CouponSet bool

	Patch domain.SubscriptionPatch
}

// Update applies item, coupon and field changes. Any item whose effective
// plan or quantity differs from what is stored runs through the proration
// engine before the merge, and the emitted customer.subscription.updated
// event carries the pre-mutation values of the fields that changed.
func (s *Service) Update(ctx context.Context, rc identity.RequestContext, subscriptionID string, params UpdateParams) (*domain.SubscriptionView, error) {
	unlock := s.store.LockIdentity(rc.Identity)
	defer unlock()

	sub, err := s.Load(ctx, rc.Identity, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.InvalidRequest("subscription", "no such subscription: %s", subscriptionID)
	}

	previous := map[string]any{}
	var drafts []domain.EventDraft

	if params.CouponSet {
		if params.Coupon != nil && *params.Coupon != "" {
			coupon, err := s.store.Coupons.Get(ctx, rc.Identity, *params.Coupon)
			if err != nil {
				return nil, err
			}
			discount, err := s.factory.Discount(ctx, rc, coupon, sub.Customer, &sub.ID)
			if err != nil {
				return nil, err
			}
			if discount != nil {
				previous["discount"] = sub.Discount
				sub.Discount = discount
			}
		} else {
			existing, err := s.store.Discounts.Find(ctx, rc.Identity, map[string]any{"customer": sub.Customer})
			if err != nil {
				return nil, err
			}
			for _, d := range existing {
				if _, err := s.store.Discounts.SoftDelete(ctx, rc.Identity, d.ID); err != nil {
					return nil, err
				}
			}
			previous["discount"] = sub.Discount
			sub.Discount = nil
		}
	}

	changes := params.Items
	if (params.Plan != "" || params.Quantity != nil) && len(sub.Items) > 0 {
		first := sub.Items[0]
		change := UpdateItem{ID: first.ID, Plan: first.Plan, Quantity: &first.Quantity}
		if params.Plan != "" {
			change.Plan = params.Plan
		}
		if params.Quantity != nil {
			change.Quantity = params.Quantity
		}
		changes = append(changes, change)
	}

	for _, change := range changes {
		stored := findItem(sub.Items, change.ID)
		if stored == nil {
			return nil, domain.InvalidRequest("items", "no such subscription_item: %s", change.ID)
		}

		newPlanID := change.Plan
		if newPlanID == "" {
			newPlanID = stored.Plan
		}
		newPlan, err := s.store.Plans.Get(ctx, rc.Identity, newPlanID)
		if err != nil {
			return nil, err
		}
		if newPlan == nil {
			return nil, domain.InvalidRequest("items", "no such plan: %s", newPlanID)
		}
		oldPlan, err := s.store.Plans.Get(ctx, rc.Identity, stored.Plan)
		if err != nil {
			return nil, err
		}
		if oldPlan == nil {
			return nil, domain.InvalidRequest("items", "no such plan: %s", stored.Plan)
		}

		newQuantity := stored.Quantity
		if change.Quantity != nil {
			newQuantity = *change.Quantity
		}
		if newQuantity <= 0 {
			newQuantity = 1
		}

		prChange := proration.Change{
			ItemID:      stored.ID,
			OldPlan:     *oldPlan,
			OldQuantity: stored.Quantity,
			NewPlan:     *newPlan,
			NewQuantity: newQuantity,
			Deleted:     change.Deleted,
		}
		if !prChange.Changed() {
			continue
		}

		itemDrafts, err := s.proration.Apply(ctx, rc, sub, prChange)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, itemDrafts...)

		if sub.Plan != newPlan.ID {
			previous["plan"] = sub.Plan
		}
		if sub.Quantity != newQuantity {
			previous["quantity"] = sub.Quantity
		}

		stored.Plan = newPlan.ID
		stored.Quantity = newQuantity
		if err := s.store.SubscriptionItems.Update(ctx, stored); err != nil {
			return nil, err
		}

		sub.Plan = newPlan.ID
		sub.Quantity = newQuantity
	}

	for k, v := range params.Patch.Apply(sub) {
		previous[k] = v
	}

	if err := s.store.Subscriptions.Update(ctx, sub); err != nil {
		return nil, err
	}

	view, err := s.Populate(ctx, rc.Identity, *sub)
	if err != nil {
		return nil, err
	}

	drafts = append(drafts, domain.EventDraft{
		Type:     domain.EventCustomerSubscriptionUpdated,
		Object:   view,
		Previous: previous,
	})
	if _, err := s.events.Emit(ctx, rc, drafts...); err != nil {
		return nil, err
	}

	return view, nil
}

// Cancel ends the subscription now or flags it to end at the period
// boundary. There is no un-cancel.
func (s *Service) Cancel(ctx context.Context, rc identity.RequestContext, subscriptionID string, atPeriodEnd bool) (*domain.SubscriptionView, error) {
	unlock := s.store.LockIdentity(rc.Identity)
	defer unlock()

	sub, err := s.Load(ctx, rc.Identity, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.InvalidRequest("subscription", "no such subscription: %s", subscriptionID)
	}

	now := s.clock.Now(ctx).Unix()
	sub.CanceledAt = &now
	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
	} else {
		sub.Status = domain.SubscriptionStatusCanceled
		sub.EndedAt = &now
	}

	if err := s.store.Subscriptions.Update(ctx, sub); err != nil {
		return nil, err
	}
	return s.Populate(ctx, rc.Identity, *sub)
}

// List pages through subscriptions, hiding canceled ones unless the status
// filter asks for them.
func (s *Service) List(ctx context.Context, rc identity.RequestContext, customerID string, params pagination.Params) (domain.List[domain.SubscriptionView], error) {
	var subs []domain.Subscription
	var err error
	if customerID != "" {
		subs, err = s.store.Subscriptions.Find(ctx, rc.Identity, map[string]any{"customer": customerID})
	} else {
		subs, err = s.store.Subscriptions.All(ctx, rc.Identity)
	}
	if err != nil {
		return domain.List[domain.SubscriptionView]{}, err
	}

	page, hasMore := pagination.Apply(subs, params)
	views := make([]domain.SubscriptionView, 0, len(page))
	for _, sub := range page {
		loaded, err := s.Load(ctx, rc.Identity, sub.ID)
		if err != nil {
			return domain.List[domain.SubscriptionView]{}, err
		}
		view, err := s.Populate(ctx, rc.Identity, *loaded)
		if err != nil {
			return domain.List[domain.SubscriptionView]{}, err
		}
		views = append(views, *view)
	}

	list := domain.NewList(views, "/v1/subscriptions")
	list.HasMore = hasMore
	return list, nil
}

// Load fetches a subscription with items and discount attached, or nil when
// it does not exist.
func (s *Service) Load(ctx context.Context, identity, subscriptionID string) (*domain.Subscription, error) {
	sub, err := s.store.Subscriptions.Get(ctx, identity, subscriptionID)
	if err != nil || sub == nil {
		return nil, err
	}

	items, err := s.store.SubscriptionItems.Find(ctx, identity, map[string]any{"subscription_id": sub.ID})
	if err != nil {
		return nil, err
	}
	// Find returns newest first; items read in creation order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	sub.Items = items

	discounts, err := s.store.Discounts.Find(ctx, identity, map[string]any{"subscription": sub.ID})
	if err != nil {
		return nil, err
	}
	if len(discounts) > 0 {
		sub.Discount = &discounts[0]
	}
	return sub, nil
}

// Populate expands plan and coupon ids into full objects. Running it twice
// on the same stored record yields identical output; the stored record
// keeps ids only.
func (s *Service) Populate(ctx context.Context, identity string, sub domain.Subscription) (*domain.SubscriptionView, error) {
	view := domain.SubscriptionView{Subscription: sub}

	itemViews := make([]domain.SubscriptionItemView, 0, len(sub.Items))
	for _, item := range sub.Items {
		plan, err := s.store.Plans.Get(ctx, identity, item.Plan)
		if err != nil {
			return nil, err
		}
		iv := domain.SubscriptionItemView{SubscriptionItem: item}
		if plan != nil {
			iv.Plan = *plan
		}
		itemViews = append(itemViews, iv)
	}
	view.Items = domain.NewList(itemViews, "/v1/subscription_items?subscription="+sub.ID)

	plan, err := s.store.Plans.Get(ctx, identity, sub.Plan)
	if err != nil {
		return nil, err
	}
	view.Plan = plan

	if sub.Discount != nil {
		coupon, err := s.store.Coupons.Get(ctx, identity, sub.Discount.Coupon)
		if err != nil {
			return nil, err
		}
		if coupon != nil {
			view.Discount = &domain.DiscountView{Discount: *sub.Discount, Coupon: *coupon}
		}
	}

	return &view, nil
}

func findItem(items []domain.SubscriptionItem, id string) *domain.SubscriptionItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}
