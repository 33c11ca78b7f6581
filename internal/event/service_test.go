package event

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/identity"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/ids"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	st := store.New(db)

	svc := NewService(zap.NewNop(), st, clock.FixedUnix(1700000000), ids.NewGenerator(), NewDispatcher(zap.NewNop()), "2017-08-15")
	return svc, st
}

func TestEmitPersistsEvent(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	rc := identity.RequestContext{Identity: "acct_a", RequestID: "req_1"}

	ev, err := svc.Emit(ctx, rc, domain.EventDraft{
		Type:   domain.EventInvoiceCreated,
		Object: map[string]any{"id": "in_1", "total": 500},
	})
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Equal(t, domain.EventInvoiceCreated, ev.Type)
	require.Equal(t, "req_1", ev.Request)
	require.Equal(t, "2017-08-15", ev.APIVersion)
	require.Equal(t, int64(1700000000), ev.Created)
	require.Equal(t, int64(0), ev.PendingWebhooks)

	stored, err := st.Events.Get(ctx, "acct_a", ev.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	var object map[string]any
	require.NoError(t, json.Unmarshal(stored.Data.Object, &object))
	require.Equal(t, "in_1", object["id"])
}

func TestEmitCountsMatchingWebhooks(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	rc := identity.RequestContext{Identity: "acct_a"}

	require.NoError(t, st.Webhooks.Add(ctx, &domain.Webhook{
		ID: "wh_1", Identity: "acct_a", URL: "http://127.0.0.1:1/a",
		Events: datatypes.JSONSlice[string]{"invoice.*"},
	}))
	require.NoError(t, st.Webhooks.Add(ctx, &domain.Webhook{
		ID: "wh_2", Identity: "acct_a", URL: "http://127.0.0.1:1/b",
		Events: datatypes.JSONSlice[string]{"charge.succeeded"},
	}))

	ev, err := svc.Emit(ctx, rc, domain.EventDraft{Type: domain.EventInvoiceCreated, Object: map[string]any{}})
	require.NoError(t, err)
	require.Equal(t, int64(1), ev.PendingWebhooks)
}

func TestEmitCarriesPreviousAttributes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	rc := identity.RequestContext{Identity: "acct_a"}

	ev, err := svc.Emit(ctx, rc, domain.EventDraft{
		Type:     domain.EventCustomerSubscriptionUpdated,
		Object:   map[string]any{"plan": "silver"},
		Previous: map[string]any{"plan": "gold"},
	})
	require.NoError(t, err)
	require.Equal(t, "gold", ev.Data.PreviousAttributes["plan"])
}

func TestEmitReturnsLastOfBatch(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	rc := identity.RequestContext{Identity: "acct_a"}

	ev, err := svc.Emit(ctx, rc,
		domain.EventDraft{Type: domain.EventInvoiceItemCreated, Object: map[string]any{}},
		domain.EventDraft{Type: domain.EventInvoiceCreated, Object: map[string]any{}},
	)
	require.NoError(t, err)
	require.Equal(t, domain.EventInvoiceCreated, ev.Type)

	events, err := st.Events.All(ctx, "acct_a")
	require.NoError(t, err)
	require.Len(t, events, 2)
}
