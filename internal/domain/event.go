package domain

import "gorm.io/datatypes"

// Event types emitted by the core. Dot-delimited taxonomy matching the
// public API's webhook event names.
const (
	EventChargeSucceeded            = "charge.succeeded"
	EventCustomerDiscountDeleted    = "customer.discount.deleted"
	EventCustomerSubscriptionCreated = "customer.subscription.created"
	EventCustomerSubscriptionUpdated = "customer.subscription.updated"
	EventInvoiceCreated             = "invoice.created"
	EventInvoicePaymentSucceeded    = "invoice.payment_succeeded"
	EventInvoiceItemCreated         = "invoiceitem.created"
)

// EventData is the payload envelope: the entity snapshot plus, for updates,
// the pre-mutation values of the fields that changed.
type EventData struct {
	Object             datatypes.JSON    `json:"object" gorm:"column:data_object"`
	PreviousAttributes datatypes.JSONMap `json:"previous_attributes,omitempty" gorm:"column:data_previous_attributes"`
}

// Event is an append-only record of a mutation. Never updated after insert.
type Event struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	Identity        string    `json:"-" gorm:"primaryKey"`
	Object          string    `json:"object"`
	APIVersion      string    `json:"api_version"`
	Created         int64     `json:"created"`
	Data            EventData `json:"data" gorm:"embedded"`
	Livemode        bool      `json:"livemode"`
	PendingWebhooks int64     `json:"pending_webhooks"`
	Request         string    `json:"request"`
	Type            string    `json:"type"`
	Deleted         bool      `json:"deleted,omitempty"`
}

func (Event) TableName() string { return "events" }

func (e Event) ObjectID() string   { return e.ID }
func (e Event) CreatedAt() int64   { return e.Created }
func (e Event) ObjectType() string { return e.Type }

// EventDraft is an event waiting to be dispatched. Entity construction
// returns drafts; persisting them and fanning out to webhooks is the event
// service's job, so factories stay testable without a live dispatch target.
type EventDraft struct {
	Type     string
	Object   any
	Previous map[string]any
}
