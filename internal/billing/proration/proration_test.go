package proration

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/paymocklabs/paymock/internal/billing/factory"
	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/identity"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/ids"
)

const testNow int64 = 1700000000

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	st := store.New(db)

	clk := clock.FixedUnix(testNow)
	f := factory.New(zap.NewNop(), st, clk, ids.NewGenerator())
	return NewEngine(zap.NewNop(), f, clk), st
}

func TestPercentUnused(t *testing.T) {
	// 25% of the period elapsed leaves 75% unused.
	require.Equal(t, int64(75), PercentUnused(1250, 1000, 2000))
	require.Equal(t, int64(100), PercentUnused(1000, 1000, 2000))
	require.Equal(t, int64(0), PercentUnused(2000, 1000, 2000))

	// Flooring the elapsed share rounds the unused share up.
	require.Equal(t, int64(67), PercentUnused(1001, 1000, 1003))

	// Degenerate periods prorate to nothing.
	require.Equal(t, int64(0), PercentUnused(1500, 2000, 2000))
	require.Equal(t, int64(0), PercentUnused(1500, 2000, 1000))
}

func TestApplyEmitsCreditAndRecharge(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	rc := identity.RequestContext{Identity: "acct_a"}

	oldPlan := domain.Plan{ID: "gold", Name: "Gold", Amount: 1000, Currency: "usd", Interval: "month"}
	newPlan := domain.Plan{ID: "platinum", Name: "Platinum", Amount: 3000, Currency: "usd", Interval: "month"}

	sub := &domain.Subscription{
		ID:                 "sub_1",
		Customer:           "cus_1",
		CurrentPeriodStart: testNow - 250,
		CurrentPeriodEnd:   testNow + 750,
	}

	drafts, err := eng.Apply(ctx, rc, sub, Change{
		ItemID:      "si_1",
		OldPlan:     oldPlan,
		OldQuantity: 2,
		NewPlan:     newPlan,
		NewQuantity: 1,
	})
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	credit := drafts[0].Object.(domain.InvoiceItem)
	require.Equal(t, domain.EventInvoiceItemCreated, drafts[0].Type)
	require.Equal(t, int64(-1500), credit.Amount) // -round(1000*2 * 75%)
	require.Equal(t, "Unused time on 2 x Gold", *credit.Description)
	require.True(t, credit.Proration)
	require.Equal(t, sub.CurrentPeriodStart, credit.Period.Start)
	require.Equal(t, sub.CurrentPeriodEnd, credit.Period.End)

	recharge := drafts[1].Object.(domain.InvoiceItem)
	require.Equal(t, int64(2250), recharge.Amount) // round(3000 * 75%)
	require.Equal(t, "Remaining time on 1 x Platinum", *recharge.Description)
	require.Equal(t, "platinum", *recharge.Plan)

	items, err := st.InvoiceItems.Find(ctx, "acct_a", map[string]any{"customer": "cus_1", "invoice": nil})
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestApplyConservation(t *testing.T) {
	// For a plan switch at percent p the pair must net to
	// round(new*p/100) - round(old*p/100).
	for _, tc := range []struct {
		oldAmount, newAmount, elapsed int64
	}{
		{999, 2499, 130},
		{1000, 3000, 250},
		{500, 700, 333},
		{1, 99999, 999},
	} {
		t.Run(fmt.Sprintf("%d_to_%d", tc.oldAmount, tc.newAmount), func(t *testing.T) {
			eng, _ := newTestEngine(t)
			ctx := context.Background()
			rc := identity.RequestContext{Identity: "acct_a"}

			sub := &domain.Subscription{
				ID:                 "sub_1",
				Customer:           "cus_1",
				CurrentPeriodStart: testNow - tc.elapsed,
				CurrentPeriodEnd:   testNow - tc.elapsed + 1000,
			}
			p := PercentUnused(testNow, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)

			drafts, err := eng.Apply(ctx, rc, sub, Change{
				ItemID:      "si_1",
				OldPlan:     domain.Plan{ID: "old", Name: "Old", Amount: tc.oldAmount, Currency: "usd"},
				OldQuantity: 1,
				NewPlan:     domain.Plan{ID: "new", Name: "New", Amount: tc.newAmount, Currency: "usd"},
				NewQuantity: 1,
			})
			require.NoError(t, err)
			require.Len(t, drafts, 2)

			sum := drafts[0].Object.(domain.InvoiceItem).Amount + drafts[1].Object.(domain.InvoiceItem).Amount
			want := int64(math.Round(float64(tc.newAmount)*float64(p)/100)) - int64(math.Round(float64(tc.oldAmount)*float64(p)/100))
			require.Equal(t, want, sum)
		})
	}
}

func TestApplyDeletedItemCreditsOnly(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	rc := identity.RequestContext{Identity: "acct_a"}

	sub := &domain.Subscription{
		ID:                 "sub_1",
		Customer:           "cus_1",
		CurrentPeriodStart: testNow - 500,
		CurrentPeriodEnd:   testNow + 500,
	}

	drafts, err := eng.Apply(ctx, rc, sub, Change{
		ItemID:      "si_1",
		OldPlan:     domain.Plan{ID: "gold", Name: "Gold", Amount: 1000, Currency: "usd"},
		OldQuantity: 1,
		NewPlan:     domain.Plan{ID: "gold", Name: "Gold", Amount: 1000, Currency: "usd"},
		NewQuantity: 1,
		Deleted:     true,
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, int64(-500), drafts[0].Object.(domain.InvoiceItem).Amount)
}

func TestChanged(t *testing.T) {
	gold := domain.Plan{ID: "gold"}
	silver := domain.Plan{ID: "silver"}

	require.False(t, Change{OldPlan: gold, NewPlan: gold, OldQuantity: 1, NewQuantity: 1}.Changed())
	require.True(t, Change{OldPlan: gold, NewPlan: silver, OldQuantity: 1, NewQuantity: 1}.Changed())
	require.True(t, Change{OldPlan: gold, NewPlan: gold, OldQuantity: 1, NewQuantity: 2}.Changed())
	require.True(t, Change{OldPlan: gold, NewPlan: gold, OldQuantity: 1, NewQuantity: 1, Deleted: true}.Changed())
}
