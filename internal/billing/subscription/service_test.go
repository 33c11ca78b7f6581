package subscription

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/paymocklabs/paymock/internal/billing/factory"
	"github.com/paymocklabs/paymock/internal/billing/invoice"
	"github.com/paymocklabs/paymock/internal/billing/proration"
	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/event"
	"github.com/paymocklabs/paymock/internal/identity"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/ids"
	"github.com/paymocklabs/paymock/pkg/pagination"
)

const testNow int64 = 1700000000

type fixture struct {
	svc   *Service
	store *store.Store
	rc    identity.RequestContext
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	st := store.New(db)

	clk := clock.FixedUnix(testNow)
	gen := ids.NewGenerator()
	f := factory.New(zap.NewNop(), st, clk, gen)
	events := event.NewService(zap.NewNop(), st, clk, gen, event.NewDispatcher(zap.NewNop()), "2017-08-15")
	inv := invoice.NewService(zap.NewNop(), st, f, clk, gen, events)
	pr := proration.NewEngine(zap.NewNop(), f, clk)

	return &fixture{
		svc:   NewService(zap.NewNop(), st, f, pr, inv, clk, events),
		store: st,
		rc:    identity.RequestContext{Identity: "acct_a", RequestID: "req_1"},
		ctx:   context.Background(),
	}
}

func (fx *fixture) seedCustomer(t *testing.T) {
	t.Helper()
	source := "card_1"
	require.NoError(t, fx.store.Customers.Add(fx.ctx, &domain.Customer{
		ID: "cus_1", Identity: "acct_a", Object: "customer", Currency: "usd", DefaultSource: &source,
	}))
}

func (fx *fixture) seedPlan(t *testing.T, id string, amount int64, trialDays *int64) {
	t.Helper()
	require.NoError(t, fx.store.Plans.Add(fx.ctx, &domain.Plan{
		ID: id, Identity: "acct_a", Object: "plan", Amount: amount, Currency: "usd",
		Interval: "month", IntervalCount: 1, TrialPeriodDays: trialDays,
	}))
}

func TestCreateActiveBillsFirstPeriod(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	fx.seedPlan(t, "gold", 1000, nil)

	view, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold", Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, domain.SubscriptionStatusActive, view.Status)
	require.Equal(t, testNow+domain.MonthSeconds, view.CurrentPeriodEnd)
	require.Equal(t, 1, view.Items.TotalCount)
	require.NotNil(t, view.Plan)
	require.Equal(t, "gold", view.Plan.ID)

	invoices, err := fx.store.Invoices.All(fx.ctx, "acct_a")
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.Equal(t, int64(2000), invoices[0].Total)
	require.True(t, invoices[0].Paid)

	var types []string
	events, err := fx.store.Events.All(fx.ctx, "acct_a")
	require.NoError(t, err)
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	require.Contains(t, types, domain.EventCustomerSubscriptionCreated)
	require.Contains(t, types, domain.EventInvoiceCreated)
	require.Contains(t, types, domain.EventInvoicePaymentSucceeded)
}

func TestCreateTrialingSkipsFirstInvoice(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	days := int64(14)
	fx.seedPlan(t, "gold", 1000, &days)

	view, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold"})
	require.NoError(t, err)
	require.Equal(t, domain.SubscriptionStatusTrialing, view.Status)
	require.Equal(t, testNow+14*domain.DaySeconds, view.CurrentPeriodEnd)

	invoices, err := fx.store.Invoices.All(fx.ctx, "acct_a")
	require.NoError(t, err)
	require.Empty(t, invoices)

	charges, err := fx.store.Charges.All(fx.ctx, "acct_a")
	require.NoError(t, err)
	require.Empty(t, charges)
}

func TestCreateValidationOrder(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{})
	require.Equal(t, "customer", domain.AsError(err).Param)

	_, err = fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1"})
	require.Equal(t, "plan", domain.AsError(err).Param)

	_, err = fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_missing", Plan: "gold"})
	require.Equal(t, "customer", domain.AsError(err).Param)

	fx.seedCustomer(t)
	_, err = fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "missing"})
	require.Equal(t, "plan", domain.AsError(err).Param)
}

func TestCreateSkipsUnknownCoupon(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	fx.seedPlan(t, "gold", 1000, nil)

	view, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold", Coupon: "NOPE"})
	require.NoError(t, err)
	require.Nil(t, view.Discount)
}

func TestCreateAttachesCoupon(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	fx.seedPlan(t, "gold", 1000, nil)
	pct := int64(50)
	require.NoError(t, fx.store.Coupons.Add(fx.ctx, &domain.Coupon{
		ID: "HALF", Identity: "acct_a", Object: "coupon", Duration: domain.DurationForever, PercentOff: &pct,
	}))

	view, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold", Coupon: "HALF"})
	require.NoError(t, err)
	require.NotNil(t, view.Discount)
	require.Equal(t, "HALF", view.Discount.Coupon.ID)

	// The discounted first invoice nets to half the plan amount.
	invoices, err := fx.store.Invoices.All(fx.ctx, "acct_a")
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.Equal(t, int64(500), invoices[0].Subtotal)
}

func TestUpdatePlanChangeProrates(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	fx.seedPlan(t, "gold", 1000, nil)
	fx.seedPlan(t, "platinum", 3000, nil)

	created, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold"})
	require.NoError(t, err)

	updated, err := fx.svc.Update(fx.ctx, fx.rc, created.ID, UpdateParams{Plan: "platinum"})
	require.NoError(t, err)
	require.Equal(t, "platinum", updated.Subscription.Plan)
	require.Equal(t, "platinum", updated.Items.Data[0].SubscriptionItem.Plan)

	// Period just started, so the pair credits the old plan in full and
	// charges the new one in full.
	pending, err := fx.store.InvoiceItems.Find(fx.ctx, "acct_a", map[string]any{"customer": "cus_1", "invoice": nil})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	var sum int64
	for _, item := range pending {
		require.True(t, item.Proration)
		sum += item.Amount
	}
	require.Equal(t, int64(2000), sum)

	// The updated event carries the pre-change values.
	events, err := fx.store.Events.Find(fx.ctx, "acct_a", map[string]any{"type": domain.EventCustomerSubscriptionUpdated})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "gold", events[0].Data.PreviousAttributes["plan"])
}

func TestUpdateQuantityOnlyStillProrates(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	fx.seedPlan(t, "gold", 1000, nil)

	created, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold", Quantity: 1})
	require.NoError(t, err)

	qty := int64(3)
	updated, err := fx.svc.Update(fx.ctx, fx.rc, created.ID, UpdateParams{Quantity: &qty})
	require.NoError(t, err)
	require.Equal(t, int64(3), updated.Subscription.Quantity)

	pending, err := fx.store.InvoiceItems.Find(fx.ctx, "acct_a", map[string]any{"customer": "cus_1", "invoice": nil})
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestUpdateNoopChangeEmitsNoProration(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	fx.seedPlan(t, "gold", 1000, nil)

	created, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold", Quantity: 1})
	require.NoError(t, err)

	_, err = fx.svc.Update(fx.ctx, fx.rc, created.ID, UpdateParams{Plan: "gold"})
	require.NoError(t, err)

	pending, err := fx.store.InvoiceItems.Find(fx.ctx, "acct_a", map[string]any{"customer": "cus_1", "invoice": nil})
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestUpdateUnknownItemFails(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	fx.seedPlan(t, "gold", 1000, nil)

	created, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold"})
	require.NoError(t, err)

	_, err = fx.svc.Update(fx.ctx, fx.rc, created.ID, UpdateParams{Items: []UpdateItem{{ID: "si_bogus", Plan: "gold"}}})
	require.Error(t, err)
	require.Equal(t, "items", domain.AsError(err).Param)
}

func TestUpdateCouponNullClearsDiscount(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	fx.seedPlan(t, "gold", 1000, nil)
	pct := int64(50)
	require.NoError(t, fx.store.Coupons.Add(fx.ctx, &domain.Coupon{
		ID: "HALF", Identity: "acct_a", Object: "coupon", Duration: domain.DurationForever, PercentOff: &pct,
	}))

	created, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold", Coupon: "HALF"})
	require.NoError(t, err)
	require.NotNil(t, created.Discount)

	view, err := fx.svc.Update(fx.ctx, fx.rc, created.ID, UpdateParams{Coupon: nil, CouponSet: true})
	require.NoError(t, err)
	require.Nil(t, view.Discount)

	live, err := fx.store.Discounts.Find(fx.ctx, "acct_a", map[string]any{"customer": "cus_1"})
	require.NoError(t, err)
	require.Empty(t, live)
}

func TestCancelImmediately(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	fx.seedPlan(t, "gold", 1000, nil)

	created, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold"})
	require.NoError(t, err)
	eventsBefore, err := fx.store.Events.All(fx.ctx, "acct_a")
	require.NoError(t, err)

	view, err := fx.svc.Cancel(fx.ctx, fx.rc, created.ID, false)
	require.NoError(t, err)
	require.Equal(t, domain.SubscriptionStatusCanceled, view.Status)
	require.Equal(t, testNow, *view.CanceledAt)
	require.Equal(t, testNow, *view.EndedAt)
	require.False(t, view.CancelAtPeriodEnd)

	// Cancellation emits nothing.
	eventsAfter, err := fx.store.Events.All(fx.ctx, "acct_a")
	require.NoError(t, err)
	require.Len(t, eventsAfter, len(eventsBefore))
}

func TestCancelAtPeriodEnd(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	fx.seedPlan(t, "gold", 1000, nil)

	created, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold"})
	require.NoError(t, err)

	view, err := fx.svc.Cancel(fx.ctx, fx.rc, created.ID, true)
	require.NoError(t, err)
	require.Equal(t, domain.SubscriptionStatusActive, view.Status)
	require.True(t, view.CancelAtPeriodEnd)
	require.Equal(t, testNow, *view.CanceledAt)
	require.Nil(t, view.EndedAt)
}

func TestListHidesCanceled(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	fx.seedPlan(t, "gold", 1000, nil)

	first, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold"})
	require.NoError(t, err)
	_, err = fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold"})
	require.NoError(t, err)
	_, err = fx.svc.Cancel(fx.ctx, fx.rc, first.ID, false)
	require.NoError(t, err)

	list, err := fx.svc.List(fx.ctx, fx.rc, "cus_1", pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, list.TotalCount)

	list, err = fx.svc.List(fx.ctx, fx.rc, "cus_1", pagination.Params{Limit: 10, Status: "canceled"})
	require.NoError(t, err)
	require.Equal(t, 2, list.TotalCount)
}

func TestPopulateIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	fx.seedCustomer(t)
	fx.seedPlan(t, "gold", 1000, nil)

	created, err := fx.svc.Create(fx.ctx, fx.rc, CreateParams{Customer: "cus_1", Plan: "gold"})
	require.NoError(t, err)

	first, err := fx.svc.Retrieve(fx.ctx, fx.rc, created.ID)
	require.NoError(t, err)
	second, err := fx.svc.Retrieve(fx.ctx, fx.rc, created.ID)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	require.JSONEq(t, string(a), string(b))

	// The stored record keeps plan ids only.
	stored, err := fx.store.Subscriptions.Get(fx.ctx, "acct_a", created.ID)
	require.NoError(t, err)
	require.Equal(t, "gold", stored.Plan)
}

func TestRetrieveMissing(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Retrieve(fx.ctx, fx.rc, "sub_missing")
	require.Error(t, err)
	require.Equal(t, 400, domain.AsError(err).StatusCode)
}
