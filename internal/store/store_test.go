package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/paymocklabs/paymock/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return New(db)
}

func TestContainerGetScopedByIdentity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Plans.Add(ctx, &domain.Plan{ID: "gold", Identity: "acct_a", Object: "plan", Amount: 500}))
	require.NoError(t, st.Plans.Add(ctx, &domain.Plan{ID: "gold", Identity: "acct_b", Object: "plan", Amount: 900}))

	plan, err := st.Plans.Get(ctx, "acct_a", "gold")
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.Equal(t, int64(500), plan.Amount)

	plan, err = st.Plans.Get(ctx, "acct_c", "gold")
	require.NoError(t, err)
	require.Nil(t, plan)
}

func TestSoftDeleteTriState(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Plans.Add(ctx, &domain.Plan{ID: "gold", Identity: "acct_a", Object: "plan"}))

	res, err := st.Plans.SoftDelete(ctx, "acct_a", "gold")
	require.NoError(t, err)
	require.Equal(t, DeleteResultDeleted, res)

	res, err = st.Plans.SoftDelete(ctx, "acct_a", "gold")
	require.NoError(t, err)
	require.Equal(t, DeleteResultAlreadyDeleted, res)

	res, err = st.Plans.SoftDelete(ctx, "acct_a", "missing")
	require.NoError(t, err)
	require.Equal(t, DeleteResultNotFound, res)
}

func TestGetReturnsSoftDeletedRecords(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Plans.Add(ctx, &domain.Plan{ID: "gold", Identity: "acct_a", Object: "plan"}))
	_, err := st.Plans.SoftDelete(ctx, "acct_a", "gold")
	require.NoError(t, err)

	plan, err := st.Plans.Get(ctx, "acct_a", "gold")
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.True(t, plan.Deleted)
}

func TestFindExcludesSoftDeleted(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Plans.Add(ctx, &domain.Plan{ID: "gold", Identity: "acct_a", Object: "plan", Created: 1}))
	require.NoError(t, st.Plans.Add(ctx, &domain.Plan{ID: "silver", Identity: "acct_a", Object: "plan", Created: 2}))
	_, err := st.Plans.SoftDelete(ctx, "acct_a", "gold")
	require.NoError(t, err)

	plans, err := st.Plans.All(ctx, "acct_a")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	require.Equal(t, "silver", plans[0].ID)
}

func TestFindMatchesNullColumns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	attached := "in_123"
	require.NoError(t, st.InvoiceItems.Add(ctx, &domain.InvoiceItem{ID: "ii_1", Identity: "acct_a", Object: "invoiceitem", Customer: "cus_1"}))
	require.NoError(t, st.InvoiceItems.Add(ctx, &domain.InvoiceItem{ID: "ii_2", Identity: "acct_a", Object: "invoiceitem", Customer: "cus_1", Invoice: &attached}))

	pending, err := st.InvoiceItems.Find(ctx, "acct_a", map[string]any{"customer": "cus_1", "invoice": nil})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "ii_1", pending[0].ID)
}

func TestFindOrdersNewestFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Plans.Add(ctx, &domain.Plan{ID: "a", Identity: "acct_a", Object: "plan", Created: 100}))
	require.NoError(t, st.Plans.Add(ctx, &domain.Plan{ID: "b", Identity: "acct_a", Object: "plan", Created: 300}))
	require.NoError(t, st.Plans.Add(ctx, &domain.Plan{ID: "c", Identity: "acct_a", Object: "plan", Created: 200}))

	plans, err := st.Plans.All(ctx, "acct_a")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c", "a"}, []string{plans[0].ID, plans[1].ID, plans[2].ID})
}

func TestPatchUpdatesNamedColumnsOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Customers.Add(ctx, &domain.Customer{ID: "cus_1", Identity: "acct_a", Object: "customer", AccountBalance: 500, Currency: "usd"}))
	require.NoError(t, st.Customers.Patch(ctx, "acct_a", "cus_1", map[string]any{"account_balance": 0}))

	customer, err := st.Customers.Get(ctx, "acct_a", "cus_1")
	require.NoError(t, err)
	require.Equal(t, int64(0), customer.AccountBalance)
	require.Equal(t, "usd", customer.Currency)
}

func TestLockIdentityIsPerIdentity(t *testing.T) {
	st := newTestStore(t)

	unlockA := st.LockIdentity("acct_a")
	unlockB := st.LockIdentity("acct_b")
	unlockB()
	unlockA()

	done := make(chan struct{})
	unlock := st.LockIdentity("acct_a")
	go func() {
		inner := st.LockIdentity("acct_a")
		inner()
		close(done)
	}()
	unlock()
	<-done
}
