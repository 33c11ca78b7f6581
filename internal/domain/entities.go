package domain

import (
	"gorm.io/datatypes"
)

// Interval lengths in seconds. Fixed approximations, not calendar-accurate;
// a "month" is always thirty days.
const (
	DaySeconds   int64 = 86400
	WeekSeconds  int64 = 604800
	MonthSeconds int64 = 2592000
	YearSeconds  int64 = 31536000
)

var IntervalSeconds = map[string]int64{
	"day":   DaySeconds,
	"week":  WeekSeconds,
	"month": MonthSeconds,
	"year":  YearSeconds,
}

// Coupon durations.
const (
	DurationOnce      = "once"
	DurationRepeating = "repeating"
	DurationForever   = "forever"
)

// Plan is the recurring price a subscription bills against. Amount and
// interval are immutable after creation by convention.
type Plan struct {
	ID                  string             `json:"id" gorm:"primaryKey"`
	Identity            string             `json:"-" gorm:"primaryKey"`
	Object              string             `json:"object"`
	Amount              int64              `json:"amount"`
	Created             int64              `json:"created"`
	Currency            string             `json:"currency"`
	Interval            string             `json:"interval"`
	IntervalCount       int64              `json:"interval_count"`
	Livemode            bool               `json:"livemode"`
	Metadata            datatypes.JSONMap  `json:"metadata"`
	Name                string             `json:"name"`
	StatementDescriptor *string            `json:"statement_descriptor"`
	TrialPeriodDays     *int64             `json:"trial_period_days"`
	Deleted             bool               `json:"deleted,omitempty"`
}

func (Plan) TableName() string { return "plans" }

func (p Plan) ObjectID() string  { return p.ID }
func (p Plan) CreatedAt() int64  { return p.Created }

// PeriodSeconds returns the billing period length for one cycle.
func (p Plan) PeriodSeconds() int64 { return IntervalSeconds[p.Interval] }

// Coupon carries either amount_off or percent_off, never both.
type Coupon struct {
	ID               string            `json:"id" gorm:"primaryKey"`
	Identity         string            `json:"-" gorm:"primaryKey"`
	Object           string            `json:"object"`
	AmountOff        *int64            `json:"amount_off"`
	Created          int64             `json:"created"`
	Currency         *string           `json:"currency"`
	Duration         string            `json:"duration"`
	DurationInMonths *int64            `json:"duration_in_months"`
	Livemode         bool              `json:"livemode"`
	MaxRedemptions   *int64            `json:"max_redemptions"`
	Metadata         datatypes.JSONMap `json:"metadata"`
	PercentOff       *int64            `json:"percent_off"`
	RedeemBy         *int64            `json:"redeem_by"`
	TimesRedeemed    int64             `json:"times_redeemed"`
	Valid            bool              `json:"valid"`
	Deleted          bool              `json:"deleted,omitempty"`
}

func (Coupon) TableName() string { return "coupons" }

func (c Coupon) ObjectID() string { return c.ID }
func (c Coupon) CreatedAt() int64 { return c.Created }

// Redeemable reports whether the coupon can still produce a discount at the
// given time: not deleted, under its redemption cap, and not expired.
func (c Coupon) Redeemable(now int64) bool {
	if c.Deleted {
		return false
	}
	if c.MaxRedemptions != nil && c.TimesRedeemed >= *c.MaxRedemptions {
		return false
	}
	if c.RedeemBy != nil && now > *c.RedeemBy {
		return false
	}
	return true
}

// Customer owns cards, subscriptions and at most one active discount.
// AccountBalance is signed: positive means the customer owes.
type Customer struct {
	ID             string            `json:"id" gorm:"primaryKey"`
	Identity       string            `json:"-" gorm:"primaryKey"`
	Object         string            `json:"object"`
	AccountBalance int64             `json:"account_balance"`
	Created        int64             `json:"created"`
	Currency       string            `json:"currency"`
	DefaultSource  *string           `json:"default_source"`
	Delinquent     bool              `json:"delinquent"`
	Description    *string           `json:"description"`
	Email          *string           `json:"email"`
	Livemode       bool              `json:"livemode"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	Shipping       datatypes.JSONMap `json:"shipping"`
	Deleted        bool              `json:"deleted,omitempty"`
}

func (Customer) TableName() string { return "customers" }

func (c Customer) ObjectID() string { return c.ID }
func (c Customer) CreatedAt() int64 { return c.Created }

// Card is the durable payment-method record. Customer is nil until a token
// carrying the card is attached.
type Card struct {
	ID                string            `json:"id" gorm:"primaryKey"`
	Identity          string            `json:"-" gorm:"primaryKey"`
	Object            string            `json:"object"`
	AddressCity       *string           `json:"address_city"`
	AddressCountry    *string           `json:"address_country"`
	AddressLine1      *string           `json:"address_line1"`
	AddressLine1Check *string           `json:"address_line1_check"`
	AddressLine2      *string           `json:"address_line2"`
	AddressState      *string           `json:"address_state"`
	AddressZip        *string           `json:"address_zip"`
	AddressZipCheck   *string           `json:"address_zip_check"`
	Brand             string            `json:"brand"`
	Country           string            `json:"country"`
	Created           int64             `json:"created"`
	Customer          *string           `json:"customer"`
	CVCCheck          string            `json:"cvc_check"`
	DynamicLast4      *string           `json:"dynamic_last4"`
	ExpMonth          int64             `json:"exp_month"`
	ExpYear           int64             `json:"exp_year"`
	Fingerprint       string            `json:"fingerprint"`
	Funding           string            `json:"funding"`
	Last4             string            `json:"last4"`
	Metadata          datatypes.JSONMap `json:"metadata"`
	Name              *string           `json:"name"`
	TokenizationMethod *string          `json:"tokenization_method"`
	Deleted           bool              `json:"deleted,omitempty"`
}

func (Card) TableName() string { return "cards" }

func (c Card) ObjectID() string { return c.ID }
func (c Card) CreatedAt() int64 { return c.Created }

// Token is a one-time-use wrapper around a card. Used flips on first attach
// and the token can never be consumed again.
type Token struct {
	ID       string  `json:"id" gorm:"primaryKey"`
	Identity string  `json:"-" gorm:"primaryKey"`
	Object   string  `json:"object"`
	Card     string  `json:"card"`
	ClientIP *string `json:"client_ip"`
	Created  int64   `json:"created"`
	Livemode bool    `json:"livemode"`
	Type     string  `json:"type"`
	Used     bool    `json:"used"`
	Deleted  bool    `json:"deleted,omitempty"`
}

func (Token) TableName() string { return "tokens" }

func (t Token) ObjectID() string { return t.ID }
func (t Token) CreatedAt() int64 { return t.Created }

// Webhook is a registered delivery target. Event patterns support a literal
// "*" and trailing-"*" prefixes.
type Webhook struct {
	ID           string                      `json:"id" gorm:"primaryKey"`
	Identity     string                      `json:"-" gorm:"primaryKey"`
	Created      int64                       `json:"created"`
	URL          string                      `json:"url"`
	SharedSecret string                      `json:"shared_secret"`
	Events       datatypes.JSONSlice[string] `json:"events"`
	Deleted      bool                        `json:"deleted,omitempty"`
}

func (Webhook) TableName() string { return "webhooks" }

func (w Webhook) ObjectID() string { return w.ID }
func (w Webhook) CreatedAt() int64 { return w.Created }

// Matches reports whether the webhook subscribes to the event type.
func (w Webhook) Matches(eventType string) bool {
	for _, pattern := range w.Events {
		if MatchEventType(pattern, eventType) {
			return true
		}
	}
	return false
}

// MatchEventType implements the webhook subscription pattern language:
// an exact type, the literal "*", or a trailing-"*" prefix match.
func MatchEventType(pattern, eventType string) bool {
	if pattern == eventType || pattern == "*" {
		return true
	}
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(eventType) >= len(prefix) && eventType[:len(prefix)] == prefix
	}
	return false
}
