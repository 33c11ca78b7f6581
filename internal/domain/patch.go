package domain

import "gorm.io/datatypes"

// Patch types list exactly the fields eligible for update on each entity and
// carry explicit per-entity merge logic instead of a generic recursive merge.
// A nil field means "leave alone"; an empty string on a nullable field
// coerces to null. Every Apply returns the pre-mutation values of the fields
// it changed, keyed by their wire names, for the event's previous_attributes.

// PlanPatch covers the mutable plan surface; amount and interval are
// immutable after creation by convention.
type PlanPatch struct {
	Name                *string            `json:"name"`
	Metadata            *datatypes.JSONMap `json:"metadata"`
	StatementDescriptor *string            `json:"statement_descriptor"`
	TrialPeriodDays     *int64             `json:"trial_period_days"`
}

func (p PlanPatch) Apply(plan *Plan) map[string]any {
	previous := map[string]any{}
	if p.Name != nil && *p.Name != plan.Name {
		previous["name"] = plan.Name
		plan.Name = *p.Name
	}
	if p.Metadata != nil {
		previous["metadata"] = plan.Metadata
		plan.Metadata = *p.Metadata
	}
	if p.StatementDescriptor != nil {
		previous["statement_descriptor"] = plan.StatementDescriptor
		plan.StatementDescriptor = nullableString(*p.StatementDescriptor)
	}
	if p.TrialPeriodDays != nil {
		previous["trial_period_days"] = plan.TrialPeriodDays
		plan.TrialPeriodDays = p.TrialPeriodDays
	}
	return previous
}

// CouponPatch: only metadata is mutable once a coupon exists.
type CouponPatch struct {
	Metadata *datatypes.JSONMap `json:"metadata"`
}

func (p CouponPatch) Apply(coupon *Coupon) map[string]any {
	previous := map[string]any{}
	if p.Metadata != nil {
		previous["metadata"] = coupon.Metadata
		coupon.Metadata = *p.Metadata
	}
	return previous
}

// CustomerPatch covers the mutable customer surface.
type CustomerPatch struct {
	AccountBalance *int64             `json:"account_balance"`
	DefaultSource  *string            `json:"default_source"`
	Description    *string            `json:"description"`
	Email          *string            `json:"email"`
	Metadata       *datatypes.JSONMap `json:"metadata"`
	Shipping       *datatypes.JSONMap `json:"shipping"`
}

func (p CustomerPatch) Apply(customer *Customer) map[string]any {
	previous := map[string]any{}
	if p.AccountBalance != nil && *p.AccountBalance != customer.AccountBalance {
		previous["account_balance"] = customer.AccountBalance
		customer.AccountBalance = *p.AccountBalance
	}
	if p.DefaultSource != nil {
		previous["default_source"] = customer.DefaultSource
		customer.DefaultSource = nullableString(*p.DefaultSource)
	}
	if p.Description != nil {
		previous["description"] = customer.Description
		customer.Description = nullableString(*p.Description)
	}
	if p.Email != nil {
		previous["email"] = customer.Email
		customer.Email = nullableString(*p.Email)
	}
	if p.Metadata != nil {
		previous["metadata"] = customer.Metadata
		customer.Metadata = *p.Metadata
	}
	if p.Shipping != nil {
		previous["shipping"] = customer.Shipping
		customer.Shipping = *p.Shipping
	}
	return previous
}

// SubscriptionPatch covers the simple subscription fields. Plan, quantity,
// item and coupon changes run through the lifecycle service because they
// trigger proration and discount bookkeeping before the merge happens.
type SubscriptionPatch struct {
	Metadata              *datatypes.JSONMap `json:"metadata"`
	TaxPercent            *float64           `json:"tax_percent"`
	ApplicationFeePercent *float64           `json:"application_fee_percent"`
}

func (p SubscriptionPatch) Apply(sub *Subscription) map[string]any {
	previous := map[string]any{}
	if p.Metadata != nil {
		previous["metadata"] = sub.Metadata
		sub.Metadata = *p.Metadata
	}
	if p.TaxPercent != nil {
		previous["tax_percent"] = sub.TaxPercent
		sub.TaxPercent = p.TaxPercent
	}
	if p.ApplicationFeePercent != nil {
		previous["application_fee_percent"] = sub.ApplicationFeePercent
		sub.ApplicationFeePercent = p.ApplicationFeePercent
	}
	return previous
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
