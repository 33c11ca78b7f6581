package factory

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/identity"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/ids"
)

const testNow int64 = 1700000000

func newTestFactory(t *testing.T) (*Factory, *store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	st := store.New(db)
	return New(zap.NewNop(), st, clock.FixedUnix(testNow), ids.NewGenerator()), st
}

func TestPlanIDFallsBackToSluggedName(t *testing.T) {
	f, _ := newTestFactory(t)
	rc := identity.RequestContext{Identity: "acct_a"}

	plan, err := f.Plan(context.Background(), rc, PlanParams{Name: "Gold Special", Amount: 5000, Currency: "usd", Interval: "month"})
	require.NoError(t, err)
	require.Equal(t, "gold-special", plan.ID)
	require.Equal(t, int64(1), plan.IntervalCount)
	require.NotNil(t, plan.Metadata)
}

func TestCardDerivesLast4AndChecks(t *testing.T) {
	f, _ := newTestFactory(t)
	rc := identity.RequestContext{Identity: "acct_a"}

	line1 := "1 Main St"
	card, err := f.Card(context.Background(), rc, CardParams{
		Number:       "4242424242424242",
		ExpMonth:     12,
		ExpYear:      2030,
		AddressLine1: &line1,
	}, CardType{Brand: "Visa", Country: "US", Funding: "credit"})
	require.NoError(t, err)
	require.Equal(t, "4242", card.Last4)
	require.Equal(t, "Visa", card.Brand)
	require.Len(t, card.Fingerprint, 16)
	require.Equal(t, "unchecked", card.CVCCheck)
	require.NotNil(t, card.AddressLine1Check)
	require.Nil(t, card.AddressZipCheck)
}

func TestDiscountStopsAtRedemptionCap(t *testing.T) {
	f, st := newTestFactory(t)
	ctx := context.Background()
	rc := identity.RequestContext{Identity: "acct_a"}

	cap := int64(2)
	coupon, err := f.Coupon(ctx, rc, CouponParams{ID: "SAVE25", Duration: domain.DurationOnce, MaxRedemptions: &cap})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		d, err := f.Discount(ctx, rc, coupon, "cus_1", nil)
		require.NoError(t, err)
		require.NotNil(t, d)
	}

	d, err := f.Discount(ctx, rc, coupon, "cus_1", nil)
	require.NoError(t, err)
	require.Nil(t, d)

	stored, err := st.Coupons.Get(ctx, "acct_a", "SAVE25")
	require.NoError(t, err)
	require.Equal(t, int64(2), stored.TimesRedeemed)
}

func TestDiscountSupersedesPriorForSameScope(t *testing.T) {
	f, st := newTestFactory(t)
	ctx := context.Background()
	rc := identity.RequestContext{Identity: "acct_a"}

	coupon, err := f.Coupon(ctx, rc, CouponParams{ID: "SAVE25", Duration: domain.DurationForever})
	require.NoError(t, err)

	first, err := f.Discount(ctx, rc, coupon, "cus_1", nil)
	require.NoError(t, err)
	second, err := f.Discount(ctx, rc, coupon, "cus_1", nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	live, err := st.Discounts.Find(ctx, "acct_a", map[string]any{"customer": "cus_1"})
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, second.ID, live[0].ID)
}

func TestDiscountScopesAreIndependent(t *testing.T) {
	f, st := newTestFactory(t)
	ctx := context.Background()
	rc := identity.RequestContext{Identity: "acct_a"}

	coupon, err := f.Coupon(ctx, rc, CouponParams{ID: "SAVE25", Duration: domain.DurationForever})
	require.NoError(t, err)

	subID := "sub_1"
	_, err = f.Discount(ctx, rc, coupon, "cus_1", nil)
	require.NoError(t, err)
	_, err = f.Discount(ctx, rc, coupon, "cus_1", &subID)
	require.NoError(t, err)

	live, err := st.Discounts.Find(ctx, "acct_a", map[string]any{"customer": "cus_1"})
	require.NoError(t, err)
	require.Len(t, live, 2)
}

func TestDiscountRepeatingComputesEnd(t *testing.T) {
	f, _ := newTestFactory(t)
	ctx := context.Background()
	rc := identity.RequestContext{Identity: "acct_a"}

	months := int64(3)
	coupon, err := f.Coupon(ctx, rc, CouponParams{ID: "SAVE25", Duration: domain.DurationRepeating, DurationInMonths: &months})
	require.NoError(t, err)

	d, err := f.Discount(ctx, rc, coupon, "cus_1", nil)
	require.NoError(t, err)
	require.NotNil(t, d.End)
	require.Equal(t, testNow+3*domain.MonthSeconds, *d.End)
}

func TestSubscriptionTrialFromPlan(t *testing.T) {
	f, _ := newTestFactory(t)
	rc := identity.RequestContext{Identity: "acct_a"}

	days := int64(14)
	plan := domain.Plan{ID: "gold", Amount: 1000, Interval: "month", TrialPeriodDays: &days}

	sub, err := f.Subscription(context.Background(), rc, SubscriptionParams{
		Customer: "cus_1",
		Items:    []PlanQuantity{{Plan: plan, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, domain.SubscriptionStatusTrialing, sub.Status)
	require.Equal(t, testNow, *sub.TrialStart)
	require.Equal(t, testNow+14*domain.DaySeconds, *sub.TrialEnd)
	require.Equal(t, *sub.TrialEnd, sub.CurrentPeriodEnd)
}

func TestSubscriptionExplicitTrialEndWinsOverPlan(t *testing.T) {
	f, _ := newTestFactory(t)
	rc := identity.RequestContext{Identity: "acct_a"}

	days := int64(14)
	plan := domain.Plan{ID: "gold", Amount: 1000, Interval: "month", TrialPeriodDays: &days}

	sub, err := f.Subscription(context.Background(), rc, SubscriptionParams{
		Customer: "cus_1",
		Items:    []PlanQuantity{{Plan: plan, Quantity: 1}},
		TrialEnd: &domain.TrialEnd{Now: true},
	})
	require.NoError(t, err)
	require.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	require.Nil(t, sub.TrialStart)
	require.Equal(t, testNow+domain.MonthSeconds, sub.CurrentPeriodEnd)
}

func TestSubscriptionPastTrialEndSuppressesTrial(t *testing.T) {
	f, _ := newTestFactory(t)
	rc := identity.RequestContext{Identity: "acct_a"}

	plan := domain.Plan{ID: "gold", Amount: 1000, Interval: "year"}
	sub, err := f.Subscription(context.Background(), rc, SubscriptionParams{
		Customer: "cus_1",
		Items:    []PlanQuantity{{Plan: plan, Quantity: 1}},
		TrialEnd: &domain.TrialEnd{Timestamp: testNow - 100},
	})
	require.NoError(t, err)
	require.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	require.Equal(t, testNow+domain.YearSeconds, sub.CurrentPeriodEnd)
}

func TestSubscriptionMirrorsLastItem(t *testing.T) {
	f, _ := newTestFactory(t)
	rc := identity.RequestContext{Identity: "acct_a"}

	gold := domain.Plan{ID: "gold", Amount: 1000, Interval: "month"}
	silver := domain.Plan{ID: "silver", Amount: 500, Interval: "month"}

	sub, err := f.Subscription(context.Background(), rc, SubscriptionParams{
		Customer: "cus_1",
		Items: []PlanQuantity{
			{Plan: gold, Quantity: 2},
			{Plan: silver, Quantity: 3},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "silver", sub.Plan)
	require.Equal(t, int64(3), sub.Quantity)
	require.Len(t, sub.Items, 2)
	require.Equal(t, "gold", sub.Items[0].Plan)
}

func TestChargeExplicitTokenWinsOverDefaultSource(t *testing.T) {
	f, st := newTestFactory(t)
	ctx := context.Background()
	rc := identity.RequestContext{Identity: "acct_a"}

	require.NoError(t, st.Tokens.Add(ctx, &domain.Token{ID: "tok_1", Identity: "acct_a", Card: "card_fromtok"}))

	defaultSource := "card_default"
	customer := &domain.Customer{ID: "cus_1", Identity: "acct_a", DefaultSource: &defaultSource}

	charge, drafts, err := f.Charge(ctx, rc, ChargeParams{Amount: 500, Customer: customer, SourceToken: "tok_1"})
	require.NoError(t, err)
	require.Equal(t, "card_fromtok", charge.Source)
	require.Equal(t, domain.ChargeStatusSucceeded, charge.Status)
	require.True(t, charge.Paid)
	require.Len(t, drafts, 1)
	require.Equal(t, domain.EventChargeSucceeded, drafts[0].Type)
}

func TestChargeWithoutSourceFails(t *testing.T) {
	f, _ := newTestFactory(t)
	rc := identity.RequestContext{Identity: "acct_a"}

	_, _, err := f.Charge(context.Background(), rc, ChargeParams{Amount: 500, Customer: &domain.Customer{ID: "cus_1"}})
	require.Error(t, err)
	apiErr := domain.AsError(err)
	require.Equal(t, domain.ErrorTypeInvalidRequest, apiErr.Type)
}

func TestChargeUpcomingIsNeverPersisted(t *testing.T) {
	f, st := newTestFactory(t)
	ctx := context.Background()
	rc := identity.RequestContext{Identity: "acct_a"}

	source := "card_1"
	customer := &domain.Customer{ID: "cus_1", DefaultSource: &source}

	charge, drafts, err := f.Charge(ctx, rc, ChargeParams{Amount: 500, Customer: customer, Upcoming: true})
	require.NoError(t, err)
	require.Equal(t, domain.ChargeStatusPending, charge.Status)
	require.False(t, charge.Paid)
	require.Empty(t, drafts)

	charges, err := st.Charges.All(ctx, "acct_a")
	require.NoError(t, err)
	require.Empty(t, charges)
}
