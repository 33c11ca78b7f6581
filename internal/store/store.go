// Package store is the identity-scoped record store. Every entity belongs to
// exactly one identity and no query crosses that partition. The store owns
// the canonical records; callers get copies and must go back through the
// store to mutate anything.
package store

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/paymocklabs/paymock/internal/domain"
)

// DeleteResult is the tri-state outcome of a soft delete.
type DeleteResult int

const (
	DeleteResultNotFound DeleteResult = iota
	DeleteResultAlreadyDeleted
	DeleteResultDeleted
)

// Container is one entity table scoped by identity.
type Container[T any] struct {
	db      *gorm.DB
	orderBy string
}

func NewContainer[T any](db *gorm.DB, orderBy string) *Container[T] {
	return &Container[T]{db: db, orderBy: orderBy}
}

// Add inserts a record. Construction is persistence; there is no separate
// build-then-save step above this.
func (c *Container[T]) Add(ctx context.Context, record *T) error {
	return c.db.WithContext(ctx).Create(record).Error
}

// Get fetches by id within the identity, returning nil when absent. Soft
// deleted records are still returned; callers that care check the flag.
func (c *Container[T]) Get(ctx context.Context, identity, id string) (*T, error) {
	var record T
	err := c.db.WithContext(ctx).Where("identity = ? AND id = ?", identity, id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Update writes the full record back.
func (c *Container[T]) Update(ctx context.Context, record *T) error {
	return c.db.WithContext(ctx).Save(record).Error
}

// Patch updates only the named columns.
func (c *Container[T]) Patch(ctx context.Context, identity, id string, cols map[string]any) error {
	var zero T
	return c.db.WithContext(ctx).Model(&zero).
		Where("identity = ? AND id = ?", identity, id).
		Updates(cols).Error
}

// SoftDelete flags the record deleted without removing it.
func (c *Container[T]) SoftDelete(ctx context.Context, identity, id string) (DeleteResult, error) {
	var state struct{ Deleted bool }
	var zero T
	err := c.db.WithContext(ctx).Model(&zero).
		Where("identity = ? AND id = ?", identity, id).
		Select("deleted").Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DeleteResultNotFound, nil
	}
	if err != nil {
		return DeleteResultNotFound, err
	}
	if state.Deleted {
		return DeleteResultAlreadyDeleted, nil
	}
	if err := c.Patch(ctx, identity, id, map[string]any{"deleted": true}); err != nil {
		return DeleteResultNotFound, err
	}
	return DeleteResultDeleted, nil
}

// Find returns live records matching the column conditions; a nil condition
// value matches NULL.
func (c *Container[T]) Find(ctx context.Context, identity string, conds map[string]any) ([]T, error) {
	var records []T
	q := c.db.WithContext(ctx).Where("identity = ? AND deleted = ?", identity, false)
	if len(conds) > 0 {
		q = q.Where(conds)
	}
	if err := q.Order(c.orderBy + " DESC, id DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// All returns every live record for the identity, newest first with ties
// broken by descending id.
func (c *Container[T]) All(ctx context.Context, identity string) ([]T, error) {
	return c.Find(ctx, identity, nil)
}

// Store bundles the containers and the per-identity write locks. Request
// processing is run-to-completion per identity: a mutation takes the
// identity's lock from validation through the final write, which is what
// keeps coupon redemption counting and invoice-item attachment atomic.
type Store struct {
	db *gorm.DB

	Plans             *Container[domain.Plan]
	Coupons           *Container[domain.Coupon]
	Customers         *Container[domain.Customer]
	Cards             *Container[domain.Card]
	Tokens            *Container[domain.Token]
	Subscriptions     *Container[domain.Subscription]
	SubscriptionItems *Container[domain.SubscriptionItem]
	Discounts         *Container[domain.Discount]
	InvoiceItems      *Container[domain.InvoiceItem]
	Invoices          *Container[domain.Invoice]
	LineItems         *Container[domain.LineItem]
	Charges           *Container[domain.Charge]
	Events            *Container[domain.Event]
	Webhooks          *Container[domain.Webhook]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:                db,
		Plans:             NewContainer[domain.Plan](db, "created"),
		Coupons:           NewContainer[domain.Coupon](db, "created"),
		Customers:         NewContainer[domain.Customer](db, "created"),
		Cards:             NewContainer[domain.Card](db, "created"),
		Tokens:            NewContainer[domain.Token](db, "created"),
		Subscriptions:     NewContainer[domain.Subscription](db, "created"),
		SubscriptionItems: NewContainer[domain.SubscriptionItem](db, "created"),
		Discounts:         NewContainer[domain.Discount](db, "start"),
		InvoiceItems:      NewContainer[domain.InvoiceItem](db, "date"),
		Invoices:          NewContainer[domain.Invoice](db, "date"),
		LineItems:         NewContainer[domain.LineItem](db, "seq"),
		Charges:           NewContainer[domain.Charge](db, "created"),
		Events:            NewContainer[domain.Event](db, "created"),
		Webhooks:          NewContainer[domain.Webhook](db, "created"),
		locks:             map[string]*sync.Mutex{},
	}
}

func (s *Store) DB() *gorm.DB { return s.db }

// LockIdentity serializes mutations within one tenant. Returns the unlock.
func (s *Store) LockIdentity(identity string) func() {
	s.mu.Lock()
	lock, ok := s.locks[identity]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[identity] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
