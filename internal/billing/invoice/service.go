// Package invoice assembles invoices from a subscription's recurring charge
// or a customer's pending invoice items, and settles them against a charge
// or the customer's balance.
package invoice

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/paymocklabs/paymock/internal/billing/factory"
	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/event"
	"github.com/paymocklabs/paymock/internal/identity"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/ids"
	"github.com/paymocklabs/paymock/pkg/pagination"
)

type Service struct {
	log     *zap.Logger
	store   *store.Store
	factory *factory.Factory
	clock   clock.Clock
	genID   *ids.Generator
	events  *event.Service
}

func NewService(log *zap.Logger, st *store.Store, f *factory.Factory, clk clock.Clock, genID *ids.Generator, events *event.Service) *Service {
	return &Service{
		log:     log.Named("billing.invoice"),
		store:   st,
		factory: f,
		clock:   clk,
		genID:   genID,
		events:  events,
	}
}

// AssembleParams selects the invoice source. Subscription and pending
// invoice items are mutually exclusive: when Subscription is set its items
// become the lines and loose invoice items are never swept.
type AssembleParams struct {
	Customer            *domain.Customer
	Subscription        *domain.Subscription
	ApplicationFee      *int64
	Description         *string
	Metadata            datatypes.JSONMap
	StatementDescriptor *string
	TaxPercent          *float64
	Upcoming            bool
	Pay                 bool
}

// Assemble builds an invoice and optionally settles it. Upcoming previews
// compute the same numbers one period ahead but persist nothing and mutate
// nothing: no item attachment, no balance reset, no events.
func (s *Service) Assemble(ctx context.Context, rc identity.RequestContext, params AssembleParams) (*domain.Invoice, error) {
	now := s.clock.Now(ctx).Unix()
	id := s.genID.New(ids.PrefixInvoice)
	customer := params.Customer

	var lines []domain.LineItem
	var discount *domain.Discount
	var subscriptionID *string

	periodStart := now
	periodEnd := int64(0)
	subtotal := int64(0)

	if sub := params.Subscription; sub != nil {
		subscriptionID = &sub.ID

		var coupon *domain.Coupon
		if sub.Discount != nil {
			discount = sub.Discount
			var err error
			coupon, err = s.store.Coupons.Get(ctx, rc.Identity, sub.Discount.Coupon)
			if err != nil {
				return nil, err
			}
		}

		for _, item := range sub.Items {
			plan, err := s.store.Plans.Get(ctx, rc.Identity, item.Plan)
			if err != nil {
				return nil, err
			}
			if plan == nil {
				return nil, domain.InvalidRequest("plan", "no such plan: %s", item.Plan)
			}

			line := buildLine(lineParams{
				id:               sub.ID,
				identity:         rc.Identity,
				invoiceID:        id,
				amount:           plan.Amount * item.Quantity,
				currency:         plan.Currency,
				metadata:         sub.Metadata,
				start:            sub.CurrentPeriodStart,
				end:              sub.CurrentPeriodEnd,
				plan:             &plan.ID,
				quantity:         item.Quantity,
				subscription:     &sub.ID,
				subscriptionItem: &item.ID,
				lineType:         domain.LineItemTypeSubscription,
				livemode:         rc.Livemode,
				coupon:           coupon,
				upcoming:         params.Upcoming,
			})

			lines = append(lines, line)
			subtotal += line.Amount
			periodStart = line.Period.Start
			periodEnd = line.Period.End
		}
	} else {
		pending, err := s.store.InvoiceItems.Find(ctx, rc.Identity, map[string]any{
			"customer": customer.ID,
			"invoice":  nil,
		})
		if err != nil {
			return nil, err
		}

		for _, item := range pending {
			line := buildLine(lineParams{
				id:               item.ID,
				identity:         rc.Identity,
				invoiceID:        id,
				amount:           item.Amount,
				currency:         item.Currency,
				description:      item.Description,
				metadata:         item.Metadata,
				start:            item.Period.Start,
				end:              item.Period.End,
				plan:             item.Plan,
				quantity:         item.Quantity,
				subscription:     item.Subscription,
				subscriptionItem: item.SubscriptionItem,
				proration:        item.Proration,
				lineType:         domain.LineItemTypeInvoiceItem,
				livemode:         rc.Livemode,
				upcoming:         params.Upcoming,
			})

			lines = append(lines, line)
			subscriptionID = item.Subscription
			subtotal += line.Amount
			periodStart = line.Period.Start
			periodEnd = line.Period.End

			if !params.Upcoming {
				if err := s.store.InvoiceItems.Patch(ctx, rc.Identity, item.ID, map[string]any{"invoice": id}); err != nil {
					return nil, err
				}
			}
		}
	}

	var tax *int64
	total := subtotal
	if params.TaxPercent != nil {
		t := int64(math.Round(float64(subtotal) * *params.TaxPercent / 100))
		tax = &t
		total += t
	}

	startingBalance := customer.AccountBalance
	total += startingBalance
	endingBalance := int64(0)

	var charge *domain.Charge
	var drafts []domain.EventDraft
	paid := false
	closed := false
	attempted := params.Pay && !params.Upcoming
	attemptCount := int64(0)

	if params.Pay {
		if total > 0 {
			var chargeDrafts []domain.EventDraft
			var err error
			charge, chargeDrafts, err = s.factory.Charge(ctx, rc, factory.ChargeParams{
				Amount:   total,
				Customer: customer,
				Invoice:  &id,
				Upcoming: params.Upcoming,
			})
			if err != nil {
				return nil, err
			}
			drafts = append(drafts, chargeDrafts...)
			paid = charge.Paid
			closed = charge.Paid
			attemptCount = 1

			if !params.Upcoming {
				if err := s.store.Customers.Patch(ctx, rc.Identity, customer.ID, map[string]any{"account_balance": 0}); err != nil {
					return nil, err
				}
			}
		} else {
			paid = true
			closed = true
			attemptCount = 1
			endingBalance = total

			if !params.Upcoming {
				if err := s.store.Customers.Patch(ctx, rc.Identity, customer.ID, map[string]any{"account_balance": total}); err != nil {
					return nil, err
				}
			}
		}
	}

	inv := domain.Invoice{
		ID:                  id,
		Identity:            rc.Identity,
		Object:              "invoice",
		AmountDue:           total,
		ApplicationFee:      params.ApplicationFee,
		AttemptCount:        attemptCount,
		Attempted:           attempted,
		Closed:              closed,
		Currency:            "usd",
		Customer:            customer.ID,
		Date:                now,
		Description:         params.Description,
		Discount:            discount,
		EndingBalance:       endingBalance,
		Lines:               lines,
		Livemode:            rc.Livemode,
		Metadata:            orEmpty(params.Metadata),
		Paid:                paid,
		PeriodEnd:           periodEnd,
		PeriodStart:         periodStart,
		StartingBalance:     startingBalance,
		StatementDescriptor: params.StatementDescriptor,
		Subscription:        subscriptionID,
		Subtotal:            subtotal,
		Tax:                 tax,
		TaxPercent:          params.TaxPercent,
		Total:               total,
	}
	if charge != nil {
		inv.Charge = &charge.ID
	}
	if discount != nil {
		inv.DiscountID = &discount.ID
	}

	if params.Upcoming {
		diff := inv.PeriodEnd - inv.PeriodStart
		inv.PeriodStart = inv.PeriodEnd
		inv.PeriodEnd += diff
		return &inv, nil
	}

	if err := s.store.Invoices.Add(ctx, &inv); err != nil {
		return nil, err
	}
	for i := range lines {
		if err := s.store.LineItems.Add(ctx, &lines[i]); err != nil {
			return nil, err
		}
	}

	view, err := s.Populate(ctx, rc.Identity, inv)
	if err != nil {
		return nil, err
	}
	drafts = append(drafts, domain.EventDraft{Type: domain.EventInvoiceCreated, Object: view})
	if inv.Paid {
		drafts = append(drafts, domain.EventDraft{Type: domain.EventInvoicePaymentSucceeded, Object: view})
	}
	if _, err := s.events.Emit(ctx, rc, drafts...); err != nil {
		return nil, err
	}

	return &inv, nil
}

// Pay settles a previously assembled invoice. Already-paid invoices come
// back unchanged.
func (s *Service) Pay(ctx context.Context, rc identity.RequestContext, invoiceID string) (*domain.InvoiceView, error) {
	unlock := s.store.LockIdentity(rc.Identity)
	defer unlock()

	inv, err := s.load(ctx, rc.Identity, invoiceID)
	if err != nil {
		return nil, err
	}

	if !inv.Paid {
		customer, err := s.store.Customers.Get(ctx, rc.Identity, inv.Customer)
		if err != nil {
			return nil, err
		}
		if customer == nil {
			return nil, domain.InvalidRequest("customer", "no such customer: %s", inv.Customer)
		}

		var drafts []domain.EventDraft
		if inv.Total > 0 {
			charge, chargeDrafts, err := s.factory.Charge(ctx, rc, factory.ChargeParams{
				Amount:   inv.Total,
				Customer: customer,
				Invoice:  &inv.ID,
			})
			if err != nil {
				return nil, err
			}
			drafts = append(drafts, chargeDrafts...)
			inv.Charge = &charge.ID
			inv.Closed = charge.Paid
			inv.Paid = charge.Paid
		} else {
			if err := s.store.Customers.Patch(ctx, rc.Identity, customer.ID, map[string]any{"account_balance": inv.Total}); err != nil {
				return nil, err
			}
			inv.EndingBalance = inv.Total
			inv.Closed = true
			inv.Paid = true
		}

		if err := s.store.Invoices.Update(ctx, inv); err != nil {
			return nil, err
		}

		if inv.Paid {
			view, err := s.Populate(ctx, rc.Identity, *inv)
			if err != nil {
				return nil, err
			}
			drafts = append(drafts, domain.EventDraft{Type: domain.EventInvoicePaymentSucceeded, Object: view})
		}
		if _, err := s.events.Emit(ctx, rc, drafts...); err != nil {
			return nil, err
		}
	}

	return s.Populate(ctx, rc.Identity, *inv)
}

// CreateFromItems sweeps the customer's pending invoice items into a new
// unsettled invoice, or bills the given subscription's current period when
// one is named.
func (s *Service) CreateFromItems(ctx context.Context, rc identity.RequestContext, customerID string, subscriptionID *string, params AssembleParams) (*domain.InvoiceView, error) {
	unlock := s.store.LockIdentity(rc.Identity)
	defer unlock()

	customer, err := s.store.Customers.Get(ctx, rc.Identity, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, domain.InvalidRequest("customer", "no such customer: %s", customerID)
	}

	var sub *domain.Subscription
	if subscriptionID != nil {
		sub, err = s.loadSubscription(ctx, rc.Identity, *subscriptionID)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, domain.InvalidRequest("subscription", "no such subscription: %s", *subscriptionID)
		}
	}

	pending, err := s.store.InvoiceItems.Find(ctx, rc.Identity, map[string]any{
		"customer": customer.ID,
		"invoice":  nil,
	})
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, domain.InvalidRequest("customer", "no pending invoice items")
	}

	params.Customer = customer
	params.Subscription = sub
	params.Upcoming = false
	params.Pay = false

	inv, err := s.Assemble(ctx, rc, params)
	if err != nil {
		return nil, err
	}
	return s.Populate(ctx, rc.Identity, *inv)
}

// Upcoming previews the customer's next invoice. The customer must already
// have at least one invoice and one subscription, otherwise there is
// nothing upcoming to preview.
func (s *Service) Upcoming(ctx context.Context, rc identity.RequestContext, customerID string, subscriptionID *string) (*domain.InvoiceView, error) {
	customer, err := s.store.Customers.Get(ctx, rc.Identity, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, domain.InvalidRequest("customer", "no such customer: %s", customerID)
	}

	var sub *domain.Subscription
	invoiceConds := map[string]any{"customer": customerID}
	if subscriptionID != nil {
		sub, err = s.loadSubscription(ctx, rc.Identity, *subscriptionID)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, domain.InvalidRequest("id", "no such subscription: %s", *subscriptionID)
		}
		invoiceConds["subscription"] = *subscriptionID
	}

	invoices, err := s.store.Invoices.Find(ctx, rc.Identity, invoiceConds)
	if err != nil {
		return nil, err
	}
	subscriptions, err := s.store.Subscriptions.Find(ctx, rc.Identity, map[string]any{"customer": customerID})
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 || len(subscriptions) == 0 {
		return nil, domain.NotFound("customer", "no upcoming invoices for customer: %s", customerID)
	}

	if sub == nil {
		sub, err = s.loadSubscription(ctx, rc.Identity, subscriptions[0].ID)
		if err != nil {
			return nil, err
		}
	}

	inv, err := s.Assemble(ctx, rc, AssembleParams{
		Customer:     customer,
		Subscription: sub,
		Upcoming:     true,
		Pay:          true,
	})
	if err != nil {
		return nil, err
	}
	return s.Populate(ctx, rc.Identity, *inv)
}

// Retrieve fetches one invoice with its lines attached.
func (s *Service) Retrieve(ctx context.Context, rc identity.RequestContext, invoiceID string) (*domain.InvoiceView, error) {
	inv, err := s.load(ctx, rc.Identity, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.Populate(ctx, rc.Identity, *inv)
}

// List pages through the identity's invoices, optionally filtered by
// customer.
func (s *Service) List(ctx context.Context, rc identity.RequestContext, customerID string, params pagination.Params) (domain.List[domain.InvoiceView], error) {
	var invoices []domain.Invoice
	var err error
	if customerID != "" {
		invoices, err = s.store.Invoices.Find(ctx, rc.Identity, map[string]any{"customer": customerID})
	} else {
		invoices, err = s.store.Invoices.All(ctx, rc.Identity)
	}
	if err != nil {
		return domain.List[domain.InvoiceView]{}, err
	}

	page, hasMore := pagination.Apply(invoices, params)
	views := make([]domain.InvoiceView, 0, len(page))
	for _, inv := range page {
		withLines, err := s.load(ctx, rc.Identity, inv.ID)
		if err != nil {
			return domain.List[domain.InvoiceView]{}, err
		}
		view, err := s.Populate(ctx, rc.Identity, *withLines)
		if err != nil {
			return domain.List[domain.InvoiceView]{}, err
		}
		views = append(views, *view)
	}

	list := domain.NewList(views, "/v1/invoices")
	list.HasMore = hasMore
	return list, nil
}

// Populate expands line plan ids and the discount's coupon into full
// objects without touching the stored records.
func (s *Service) Populate(ctx context.Context, identity string, inv domain.Invoice) (*domain.InvoiceView, error) {
	view := domain.InvoiceView{Invoice: inv}

	lineViews := make([]domain.LineItemView, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		lv := domain.LineItemView{LineItem: line}
		if line.Plan != nil {
			plan, err := s.store.Plans.Get(ctx, identity, *line.Plan)
			if err != nil {
				return nil, err
			}
			lv.Plan = plan
		}
		lineViews = append(lineViews, lv)
	}
	view.Lines = domain.NewList(lineViews, "/v1/invoices/"+inv.ID+"/lines")

	discount := inv.Discount
	if discount == nil && inv.DiscountID != nil {
		var err error
		discount, err = s.store.Discounts.Get(ctx, identity, *inv.DiscountID)
		if err != nil {
			return nil, err
		}
	}
	if discount != nil {
		coupon, err := s.store.Coupons.Get(ctx, identity, discount.Coupon)
		if err != nil {
			return nil, err
		}
		if coupon != nil {
			view.Discount = &domain.DiscountView{Discount: *discount, Coupon: *coupon}
		}
	}

	return &view, nil
}

// load fetches an invoice and reattaches its stored lines in insertion
// order.
func (s *Service) load(ctx context.Context, identity, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.store.Invoices.Get(ctx, identity, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.InvalidRequest("invoice", "no such invoice: %s", invoiceID)
	}

	lines, err := s.store.LineItems.Find(ctx, identity, map[string]any{"invoice_id": invoiceID})
	if err != nil {
		return nil, err
	}
	// Find returns newest first; lines read in insertion order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	inv.Lines = lines
	return inv, nil
}

// loadSubscription fetches a subscription with items and discount attached.
func (s *Service) loadSubscription(ctx context.Context, identity, subscriptionID string) (*domain.Subscription, error) {
	sub, err := s.store.Subscriptions.Get(ctx, identity, subscriptionID)
	if err != nil || sub == nil {
		return nil, err
	}

	items, err := s.store.SubscriptionItems.Find(ctx, identity, map[string]any{"subscription_id": sub.ID})
	if err != nil {
		return nil, err
	}
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

type lineParams struct {
	id               string
	identity         string
	invoiceID        string
	amount           int64
	currency         string
	description      *string
	metadata         datatypes.JSONMap
	start            int64
	end              int64
	plan             *string
	quantity         int64
	subscription     *string
	subscriptionItem *string
	proration        bool
	lineType         string
	livemode         bool
	coupon           *domain.Coupon
	upcoming         bool
}

// buildLine constructs one invoice line. A coupon discounts the line
// in place: amount_off comes straight off, percent_off rounds up. Upcoming
// previews shift the period window forward by its own length.
func buildLine(p lineParams) domain.LineItem {
	quantity := p.quantity
	if quantity <= 0 {
		quantity = 1
	}
	currency := p.currency
	if currency == "" {
		currency = "usd"
	}

	line := domain.LineItem{
		Identity:         p.identity,
		InvoiceID:        p.invoiceID,
		ID:               p.id,
		Object:           "line_item",
		Amount:           p.amount,
		Currency:         currency,
		Description:      p.description,
		Discountable:     true,
		Livemode:         p.livemode,
		Metadata:         orEmpty(p.metadata),
		Period:           domain.Period{Start: p.start, End: p.end},
		Plan:             p.plan,
		Proration:        p.proration,
		Quantity:         quantity,
		Subscription:     p.subscription,
		SubscriptionItem: p.subscriptionItem,
		Type:             p.lineType,
	}

	if p.coupon != nil {
		if p.coupon.AmountOff != nil {
			line.Amount -= *p.coupon.AmountOff
		} else if p.coupon.PercentOff != nil {
			line.Amount -= int64(math.Ceil(float64(line.Amount) * float64(*p.coupon.PercentOff) / 100))
		}
	}

	if p.upcoming {
		diff := line.Period.End - line.Period.Start
		line.Period.Start = line.Period.End
		line.Period.End += diff
	}

	return line
}

func orEmpty(m datatypes.JSONMap) datatypes.JSONMap {
	if m == nil {
		return datatypes.JSONMap{}
	}
	return m
}
