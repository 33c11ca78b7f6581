package domain

import "gorm.io/datatypes"

// Charge statuses. Pending charges exist only inside upcoming-invoice
// previews and are never written to the charge ledger.
const (
	ChargeStatusPending   = "pending"
	ChargeStatusSucceeded = "succeeded"
)

// Line item types.
const (
	LineItemTypeInvoiceItem  = "invoiceitem"
	LineItemTypeSubscription = "subscription"
)

// Period is the time window a line item covers.
type Period struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// InvoiceItem is a standalone charge or credit waiting to be swept onto an
// invoice. Invoice stays nil while the item is pending; once set, the item's
// content is frozen.
type InvoiceItem struct {
	ID               string            `json:"id" gorm:"primaryKey"`
	Identity         string            `json:"-" gorm:"primaryKey"`
	Object           string            `json:"object"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Customer         string            `json:"customer" gorm:"index"`
	Date             int64             `json:"date"`
	Description      *string           `json:"description"`
	Discountable     bool              `json:"discountable"`
	Invoice          *string           `json:"invoice"`
	Livemode         bool              `json:"livemode"`
	Metadata         datatypes.JSONMap `json:"metadata"`
	Period           Period            `json:"period" gorm:"embedded;embeddedPrefix:period_"`
	Plan             *string           `json:"plan"`
	Proration        bool              `json:"proration"`
	Quantity         int64             `json:"quantity"`
	Subscription     *string           `json:"subscription"`
	SubscriptionItem *string           `json:"subscription_item"`
	Deleted          bool              `json:"deleted,omitempty"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

func (i InvoiceItem) ObjectID() string { return i.ID }
func (i InvoiceItem) CreatedAt() int64 { return i.Date }

// LineItem is one entry on an assembled invoice. Subscription-sourced lines
// reuse the subscription id as their id, so rows carry their own sequence
// key for storage.
type LineItem struct {
	Seq              uint64            `json:"-" gorm:"primaryKey;autoIncrement"`
	Identity         string            `json:"-" gorm:"index"`
	InvoiceID        string            `json:"-" gorm:"index"`
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Description      *string           `json:"description"`
	Discountable     bool              `json:"discountable"`
	Livemode         bool              `json:"livemode"`
	Metadata         datatypes.JSONMap `json:"metadata"`
	Period           Period            `json:"period" gorm:"embedded;embeddedPrefix:period_"`
	Plan             *string           `json:"plan"`
	Proration        bool              `json:"proration"`
	Quantity         int64             `json:"quantity"`
	Subscription     *string           `json:"subscription"`
	SubscriptionItem *string           `json:"subscription_item"`
	Type             string            `json:"type"`
	Deleted          bool              `json:"-"`
}

func (LineItem) TableName() string { return "invoice_line_items" }

// Invoice aggregates line items into a settleable total. Total always folds
// in the customer's account balance captured at creation time.
type Invoice struct {
	ID                  string            `json:"id" gorm:"primaryKey"`
	Identity            string            `json:"-" gorm:"primaryKey"`
	Object              string            `json:"object"`
	AmountDue           int64             `json:"amount_due"`
	ApplicationFee      *int64            `json:"application_fee"`
	AttemptCount        int64             `json:"attempt_count"`
	Attempted           bool              `json:"attempted"`
	Charge              *string           `json:"charge"`
	Closed              bool              `json:"closed"`
	Currency            string            `json:"currency"`
	Customer            string            `json:"customer" gorm:"index"`
	Date                int64             `json:"date"`
	Description         *string           `json:"description"`
	DiscountID          *string           `json:"-"`
	Discount            *Discount         `json:"discount" gorm:"-"`
	EndingBalance       int64             `json:"ending_balance"`
	Forgiven            bool              `json:"forgiven"`
	Lines               []LineItem        `json:"-" gorm:"-"`
	Livemode            bool              `json:"livemode"`
	Metadata            datatypes.JSONMap `json:"metadata"`
	NextPaymentAttempt  *int64            `json:"next_payment_attempt"`
	Paid                bool              `json:"paid"`
	PeriodEnd           int64             `json:"period_end"`
	PeriodStart         int64             `json:"period_start"`
	ReceiptNumber       *string           `json:"receipt_number"`
	StartingBalance     int64             `json:"starting_balance"`
	StatementDescriptor *string           `json:"statement_descriptor"`
	Subscription        *string           `json:"subscription"`
	Subtotal            int64             `json:"subtotal"`
	Tax                 *int64            `json:"tax"`
	TaxPercent          *float64          `json:"tax_percent"`
	Total               int64             `json:"total"`
	WebhooksDeliveredAt *int64            `json:"webhooks_delivered_at"`
	Deleted             bool              `json:"deleted,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

func (i Invoice) ObjectID() string { return i.ID }
func (i Invoice) CreatedAt() int64 { return i.Date }

// Charge is a settled (or, for previews, pending) payment. Source holds the
// resolved card id in storage.
type Charge struct {
	ID                  string            `json:"id" gorm:"primaryKey"`
	Identity            string            `json:"-" gorm:"primaryKey"`
	Object              string            `json:"object"`
	Amount              int64             `json:"amount"`
	AmountRefunded      int64             `json:"amount_refunded"`
	Application         *string           `json:"application"`
	ApplicationFee      *int64            `json:"application_fee"`
	BalanceTransaction  string            `json:"balance_transaction"`
	Captured            bool              `json:"captured"`
	Created             int64             `json:"created"`
	Currency            string            `json:"currency"`
	Customer            *string           `json:"customer"`
	Description         *string           `json:"description"`
	Destination         *string           `json:"destination"`
	Dispute             *string           `json:"dispute"`
	FailureCode         *string           `json:"failure_code"`
	FailureMessage      *string           `json:"failure_message"`
	FraudDetails        datatypes.JSONMap `json:"fraud_details"`
	Invoice             *string           `json:"invoice"`
	Livemode            bool              `json:"livemode"`
	Metadata            datatypes.JSONMap `json:"metadata"`
	OnBehalfOf          *string           `json:"on_behalf_of"`
	Order               *string           `json:"order"`
	Outcome             datatypes.JSONMap `json:"outcome"`
	Paid                bool              `json:"paid"`
	ReceiptEmail        *string           `json:"receipt_email"`
	ReceiptNumber       *string           `json:"receipt_number"`
	Refunded            bool              `json:"refunded"`
	Refunds             List[LineItem]    `json:"refunds" gorm:"-"`
	Review              *string           `json:"review"`
	Shipping            datatypes.JSONMap `json:"shipping"`
	Source              string            `json:"source"`
	SourceTransfer      *string           `json:"source_transfer"`
	StatementDescriptor *string           `json:"statement_descriptor"`
	Status              string            `json:"status"`
	TransferGroup       *string           `json:"transfer_group"`
	Deleted             bool              `json:"deleted,omitempty"`
}

func (Charge) TableName() string { return "charges" }

func (c Charge) ObjectID() string { return c.ID }
func (c Charge) CreatedAt() int64 { return c.Created }
