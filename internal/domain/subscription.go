package domain

import "gorm.io/datatypes"

// Subscription statuses. These are the only three states; past_due and
// unpaid do not exist in this system.
const (
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
)

// SubscriptionItem is one plan/quantity pair on a subscription. Rows are
// stored in their own table keyed by subscription id; the Plan field holds
// the plan id in storage and is expanded to a full object only in views.
type SubscriptionItem struct {
	ID             string            `json:"id" gorm:"primaryKey"`
	Identity       string            `json:"-" gorm:"primaryKey"`
	SubscriptionID string            `json:"-" gorm:"index"`
	Object         string            `json:"object"`
	Created        int64             `json:"created"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	Plan           string            `json:"plan"`
	Quantity       int64             `json:"quantity"`
	Deleted        bool              `json:"deleted,omitempty"`
}

func (SubscriptionItem) TableName() string { return "subscription_items" }

func (s SubscriptionItem) ObjectID() string { return s.ID }
func (s SubscriptionItem) CreatedAt() int64 { return s.Created }

// Subscription drives the trialing -> active -> canceled state machine.
// CurrentPeriodEnd is always derived from CurrentPeriodStart plus the plan
// interval (or the trial window while trialing), never set ad hoc.
type Subscription struct {
	ID                    string             `json:"id" gorm:"primaryKey"`
	Identity              string             `json:"-" gorm:"primaryKey"`
	Object                string             `json:"object"`
	ApplicationFeePercent *float64           `json:"application_fee_percent"`
	CancelAtPeriodEnd     bool               `json:"cancel_at_period_end"`
	CanceledAt            *int64             `json:"canceled_at"`
	Created               int64              `json:"created"`
	CurrentPeriodEnd      int64              `json:"current_period_end"`
	CurrentPeriodStart    int64              `json:"current_period_start"`
	Customer              string             `json:"customer" gorm:"index"`
	Discount              *Discount          `json:"discount" gorm:"-"`
	EndedAt               *int64             `json:"ended_at"`
	Items                 []SubscriptionItem `json:"-" gorm:"-"`
	Livemode              bool               `json:"livemode"`
	Metadata              datatypes.JSONMap  `json:"metadata"`
	Plan                  string             `json:"plan"`
	Quantity              int64              `json:"quantity"`
	Start                 int64              `json:"start"`
	Status                string             `json:"status"`
	TaxPercent            *float64           `json:"tax_percent"`
	TrialEnd              *int64             `json:"trial_end"`
	TrialStart            *int64             `json:"trial_start"`
	Deleted               bool               `json:"deleted,omitempty"`
}

func (Subscription) TableName() string { return "subscriptions" }

func (s Subscription) ObjectID() string     { return s.ID }
func (s Subscription) CreatedAt() int64     { return s.Created }
func (s Subscription) ObjectStatus() string { return s.Status }

// Trialing reports whether the subscription started inside a trial window.
func (s Subscription) Trialing() bool { return s.TrialStart != nil }

// Discount is an active application of a coupon to a customer or, when
// Subscription is set, to one specific subscription. Coupon holds the coupon
// id in storage.
type Discount struct {
	ID           string  `json:"id" gorm:"primaryKey"`
	Identity     string  `json:"-" gorm:"primaryKey"`
	Object       string  `json:"object"`
	Coupon       string  `json:"coupon"`
	Customer     string  `json:"customer" gorm:"index"`
	End          *int64  `json:"end"`
	Start        int64   `json:"start"`
	Subscription *string `json:"subscription"`
	Deleted      bool    `json:"deleted,omitempty"`
}

func (Discount) TableName() string { return "discounts" }

func (d Discount) ObjectID() string { return d.ID }
func (d Discount) CreatedAt() int64 { return d.Start }
