package domain

// Views are response-shaped copies of stored entities with id references
// expanded into full objects. Populating a view never mutates the canonical
// record: the stored subscription keeps plan ids even after its response
// carries plan objects.

type SubscriptionItemView struct {
	SubscriptionItem
	Plan Plan `json:"plan"`
}

type DiscountView struct {
	Discount
	Coupon Coupon `json:"coupon"`
}

type SubscriptionView struct {
	Subscription
	Plan     *Plan                      `json:"plan"`
	Discount *DiscountView              `json:"discount"`
	Items    List[SubscriptionItemView] `json:"items"`
}

type LineItemView struct {
	LineItem
	Plan *Plan `json:"plan"`
}

type InvoiceView struct {
	Invoice
	Discount *DiscountView      `json:"discount"`
	Lines    List[LineItemView] `json:"lines"`
}

type ChargeView struct {
	Charge
	Source *Card `json:"source"`
}

type TokenView struct {
	Token
	Card Card `json:"card"`
}

type CustomerView struct {
	Customer
	Discount      *DiscountView          `json:"discount"`
	Sources       List[Card]             `json:"sources"`
	Subscriptions List[SubscriptionView] `json:"subscriptions"`
}
