// Package factory constructs the billing entities: generated ids, computed
// defaults, store registration as a side effect of construction. Factories
// return event drafts instead of dispatching them, so they can be exercised
// without a live webhook target.
package factory

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/identity"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/ids"
)

type Factory struct {
	log   *zap.Logger
	store *store.Store
	clock clock.Clock
	genID *ids.Generator
}

func New(log *zap.Logger, st *store.Store, clk clock.Clock, genID *ids.Generator) *Factory {
	return &Factory{
		log:   log.Named("billing.factory"),
		store: st,
		clock: clk,
		genID: genID,
	}
}

type PlanParams struct {
	ID                  string
	Amount              int64
	Currency            string
	Interval            string
	IntervalCount       int64
	Metadata            datatypes.JSONMap
	Name                string
	StatementDescriptor *string
	TrialPeriodDays     *int64
}

func (f *Factory) Plan(ctx context.Context, rc identity.RequestContext, params PlanParams) (*domain.Plan, error) {
	id := params.ID
	if id == "" {
		id = slug.Make(params.Name)
	}

	intervalCount := params.IntervalCount
	if intervalCount <= 0 {
		intervalCount = 1
	}

	plan := domain.Plan{
		ID:                  id,
		Identity:            rc.Identity,
		Object:              "plan",
		Amount:              params.Amount,
		Created:             f.clock.Now(ctx).Unix(),
		Currency:            params.Currency,
		Interval:            params.Interval,
		IntervalCount:       intervalCount,
		Livemode:            rc.Livemode,
		Metadata:            orEmpty(params.Metadata),
		Name:                params.Name,
		StatementDescriptor: params.StatementDescriptor,
		TrialPeriodDays:     params.TrialPeriodDays,
	}

	if err := f.store.Plans.Add(ctx, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

type CouponParams struct {
	ID               string
	AmountOff        *int64
	Currency         *string
	Duration         string
	DurationInMonths *int64
	MaxRedemptions   *int64
	Metadata         datatypes.JSONMap
	PercentOff       *int64
	RedeemBy         *int64
}

func (f *Factory) Coupon(ctx context.Context, rc identity.RequestContext, params CouponParams) (*domain.Coupon, error) {
	id := params.ID
	if id == "" {
		id = f.genID.New(ids.PrefixCoupon)
	}

	coupon := domain.Coupon{
		ID:               id,
		Identity:         rc.Identity,
		Object:           "coupon",
		AmountOff:        params.AmountOff,
		Created:          f.clock.Now(ctx).Unix(),
		Currency:         params.Currency,
		Duration:         params.Duration,
		DurationInMonths: params.DurationInMonths,
		Livemode:         rc.Livemode,
		MaxRedemptions:   params.MaxRedemptions,
		Metadata:         orEmpty(params.Metadata),
		PercentOff:       params.PercentOff,
		RedeemBy:         params.RedeemBy,
		TimesRedeemed:    0,
		Valid:            true,
	}

	if err := f.store.Coupons.Add(ctx, &coupon); err != nil {
		return nil, err
	}
	return &coupon, nil
}

type CustomerParams struct {
	Description *string
	Email       *string
	Metadata    datatypes.JSONMap
	Shipping    datatypes.JSONMap
}

// Customer builds a customer with no payment source attached; attaching a
// card is the caller's move via default_source.
func (f *Factory) Customer(ctx context.Context, rc identity.RequestContext, params CustomerParams) (*domain.Customer, error) {
	customer := domain.Customer{
		ID:             f.genID.New(ids.PrefixCustomer),
		Identity:       rc.Identity,
		Object:         "customer",
		AccountBalance: 0,
		Created:        f.clock.Now(ctx).Unix(),
		Currency:       "usd",
		Delinquent:     false,
		Description:    params.Description,
		Email:          params.Email,
		Livemode:       rc.Livemode,
		Metadata:       orEmpty(params.Metadata),
		Shipping:       params.Shipping,
	}

	if err := f.store.Customers.Add(ctx, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

type CardParams struct {
	Number         string
	ExpMonth       int64
	ExpYear        int64
	Name           *string
	AddressLine1   *string
	AddressLine2   *string
	AddressCity    *string
	AddressState   *string
	AddressZip     *string
	AddressCountry *string
	Metadata       datatypes.JSONMap
}

func (f *Factory) Card(ctx context.Context, rc identity.RequestContext, params CardParams, cardType CardType) (*domain.Card, error) {
	card := domain.Card{
		ID:             f.genID.New(ids.PrefixCard),
		Identity:       rc.Identity,
		Object:         "card",
		AddressCity:    params.AddressCity,
		AddressCountry: params.AddressCountry,
		AddressLine1:   params.AddressLine1,
		AddressLine2:   params.AddressLine2,
		AddressState:   params.AddressState,
		AddressZip:     params.AddressZip,
		Brand:          cardType.Brand,
		Country:        cardType.Country,
		Created:        f.clock.Now(ctx).Unix(),
		CVCCheck:       "unchecked",
		ExpMonth:       params.ExpMonth,
		ExpYear:        params.ExpYear,
		Fingerprint:    randomHex(16),
		Funding:        cardType.Funding,
		Last4:          last4(params.Number),
		Metadata:       orEmpty(params.Metadata),
		Name:           params.Name,
	}
	if params.AddressLine1 != nil {
		card.AddressLine1Check = ptr("unchecked")
	}
	if params.AddressZip != nil {
		card.AddressZipCheck = ptr("unchecked")
	}

	if err := f.store.Cards.Add(ctx, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

func (f *Factory) Token(ctx context.Context, rc identity.RequestContext, cardID string, clientIP *string) (*domain.Token, error) {
	token := domain.Token{
		ID:       f.genID.New(ids.PrefixToken),
		Identity: rc.Identity,
		Object:   "token",
		Card:     cardID,
		ClientIP: clientIP,
		Created:  f.clock.Now(ctx).Unix(),
		Livemode: rc.Livemode,
		Type:     "card",
		Used:     false,
	}

	if err := f.store.Tokens.Add(ctx, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// SubscriptionItem builds one plan/quantity pair. A missing or zero
// quantity defaults to one.
func (f *Factory) SubscriptionItem(ctx context.Context, rc identity.RequestContext, subscriptionID, planID string, quantity int64) (*domain.SubscriptionItem, error) {
	if quantity <= 0 {
		quantity = 1
	}

	item := domain.SubscriptionItem{
		ID:             f.genID.New(ids.PrefixSubItem),
		Identity:       rc.Identity,
		SubscriptionID: subscriptionID,
		Object:         "subscription_item",
		Created:        f.clock.Now(ctx).Unix(),
		Metadata:       datatypes.JSONMap{},
		Plan:           planID,
		Quantity:       quantity,
	}

	if err := f.store.SubscriptionItems.Add(ctx, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Discount applies a coupon to a customer or one subscription. Returns nil
// without error when the coupon cannot be redeemed (deleted, at its cap, or
// expired). A new discount supersedes any prior one for the same scope.
func (f *Factory) Discount(ctx context.Context, rc identity.RequestContext, coupon *domain.Coupon, customerID string, subscriptionID *string) (*domain.Discount, error) {
	now := f.clock.Now(ctx).Unix()
	if coupon == nil || !coupon.Redeemable(now) {
		return nil, nil
	}

	scope := map[string]any{"customer": customerID, "subscription": nil}
	if subscriptionID != nil {
		scope["subscription"] = *subscriptionID
	}
	existing, err := f.store.Discounts.Find(ctx, rc.Identity, scope)
	if err != nil {
		return nil, err
	}
	for _, prior := range existing {
		if _, err := f.store.Discounts.SoftDelete(ctx, rc.Identity, prior.ID); err != nil {
			return nil, err
		}
	}

	coupon.TimesRedeemed++
	if err := f.store.Coupons.Update(ctx, coupon); err != nil {
		return nil, err
	}

	discount := domain.Discount{
		ID:           f.genID.New(ids.PrefixDiscount),
		Identity:     rc.Identity,
		Object:       "discount",
		Coupon:       coupon.ID,
		Customer:     customerID,
		Start:        now,
		Subscription: subscriptionID,
	}
	if coupon.Duration == domain.DurationRepeating && coupon.DurationInMonths != nil {
		end := discount.Start + *coupon.DurationInMonths*domain.MonthSeconds
		discount.End = &end
	}

	if err := f.store.Discounts.Add(ctx, &discount); err != nil {
		return nil, err
	}
	return &discount, nil
}

type InvoiceItemParams struct {
	Customer         string
	Amount           int64
	Currency         string
	Description      *string
	Invoice          *string
	Metadata         datatypes.JSONMap
	Subscription     *string
	Plan             *string
	Quantity         int64
	SubscriptionItem *string
	Proration        bool
	PeriodStart      int64
	PeriodEnd        int64
}

// InvoiceItem persists a pending (or pre-attached) invoice item and returns
// the invoiceitem.created draft for the caller to dispatch.
func (f *Factory) InvoiceItem(ctx context.Context, rc identity.RequestContext, params InvoiceItemParams) (*domain.InvoiceItem, domain.EventDraft, error) {
	now := f.clock.Now(ctx).Unix()

	quantity := params.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}
	start, end := params.PeriodStart, params.PeriodEnd
	if start == 0 {
		start = now
	}
	if end == 0 {
		end = now
	}

	item := domain.InvoiceItem{
		ID:               f.genID.New(ids.PrefixInvoiceItem),
		Identity:         rc.Identity,
		Object:           "invoiceitem",
		Amount:           params.Amount,
		Currency:         currency,
		Customer:         params.Customer,
		Date:             now,
		Description:      params.Description,
		Discountable:     true,
		Invoice:          params.Invoice,
		Livemode:         rc.Livemode,
		Metadata:         orEmpty(params.Metadata),
		Period:           domain.Period{Start: start, End: end},
		Plan:             params.Plan,
		Proration:        params.Proration,
		Quantity:         quantity,
		Subscription:     params.Subscription,
		SubscriptionItem: params.SubscriptionItem,
	}

	if err := f.store.InvoiceItems.Add(ctx, &item); err != nil {
		return nil, domain.EventDraft{}, err
	}

	draft := domain.EventDraft{Type: domain.EventInvoiceItemCreated, Object: item}
	return &item, draft, nil
}

type ChargeParams struct {
	Amount      int64
	Currency    string
	Customer    *domain.Customer
	SourceToken string
	Invoice     *string
	Description *string
	Upcoming    bool
}

// Charge resolves the payment source and persists a succeeded charge.
// Inside an upcoming preview the charge stays pending and is never written
// to the ledger, and no event draft is produced.
func (f *Factory) Charge(ctx context.Context, rc identity.RequestContext, params ChargeParams) (*domain.Charge, []domain.EventDraft, error) {
	var cardID string
	if params.Customer != nil && params.Customer.DefaultSource != nil {
		cardID = *params.Customer.DefaultSource
	}
	if params.SourceToken != "" {
		token, err := f.store.Tokens.Get(ctx, rc.Identity, params.SourceToken)
		if err != nil {
			return nil, nil, err
		}
		if token == nil {
			return nil, nil, domain.InvalidRequest("source", "no such token: %s", params.SourceToken)
		}
		cardID = token.Card
	}
	if cardID == "" {
		return nil, nil, domain.InvalidRequest("source", "no payment source available")
	}

	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}

	status := domain.ChargeStatusSucceeded
	paid := true
	if params.Upcoming {
		status = domain.ChargeStatusPending
		paid = false
	}

	var customerID *string
	if params.Customer != nil {
		customerID = &params.Customer.ID
	}

	id := f.genID.New(ids.PrefixCharge)
	charge := domain.Charge{
		ID:                 id,
		Identity:           rc.Identity,
		Object:             "charge",
		Amount:             params.Amount,
		BalanceTransaction: f.genID.New(ids.PrefixTransaction),
		Captured:           true,
		Created:            f.clock.Now(ctx).Unix(),
		Currency:           currency,
		Customer:           customerID,
		Description:        params.Description,
		FraudDetails:       datatypes.JSONMap{},
		Invoice:            params.Invoice,
		Livemode:           rc.Livemode,
		Metadata:           datatypes.JSONMap{},
		Outcome: datatypes.JSONMap{
			"network_status": "approved_by_network",
			"reason":         nil,
			"risk_level":     "normal",
			"seller_message": "Payment complete.",
			"type":           "authorized",
		},
		Paid:    paid,
		Refunds: domain.NewList[domain.LineItem](nil, "/v1/charges/"+id+"/refunds"),
		Source:  cardID,
		Status:  status,
	}

	if params.Upcoming {
		return &charge, nil, nil
	}

	if err := f.store.Charges.Add(ctx, &charge); err != nil {
		return nil, nil, err
	}

	drafts := []domain.EventDraft{{Type: domain.EventChargeSucceeded, Object: charge}}
	return &charge, drafts, nil
}

func orEmpty(m datatypes.JSONMap) datatypes.JSONMap {
	if m == nil {
		return datatypes.JSONMap{}
	}
	return m
}

func last4(number string) string {
	if len(number) < 4 {
		return number
	}
	return number[len(number)-4:]
}

func randomHex(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)[:n]
}

func ptr[T any](v T) *T { return &v }
