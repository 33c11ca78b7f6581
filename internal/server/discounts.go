package server

import (
	"github.com/gin-gonic/gin"

	"github.com/paymocklabs/paymock/internal/domain"
)

// DeleteCustomerDiscount removes the customer's active discount and emits
// customer.discount.deleted.
func (s *Server) DeleteCustomerDiscount(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	customer, err := s.store.Customers.Get(ctx, rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if customer == nil {
		AbortWithError(c, domain.InvalidRequest("customer", "no such customer: %s", c.Param("id")))
		return
	}

	s.deleteDiscount(c, map[string]any{"customer": customer.ID},
		domain.InvalidRequest("customer", "no discount for customer: %s", customer.ID))
}

// DeleteSubscriptionDiscount removes the discount scoped to one
// subscription.
func (s *Server) DeleteSubscriptionDiscount(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	sub, err := s.store.Subscriptions.Get(ctx, rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if sub == nil {
		AbortWithError(c, domain.InvalidRequest("subscription", "no such subscription: %s", c.Param("id")))
		return
	}

	s.deleteDiscount(c, map[string]any{"subscription": sub.ID},
		domain.InvalidRequest("subscription", "no discount for subscription: %s", sub.ID))
}

func (s *Server) deleteDiscount(c *gin.Context, scope map[string]any, missing error) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	discounts, err := s.store.Discounts.Find(ctx, rc.Identity, scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if len(discounts) == 0 {
		AbortWithError(c, missing)
		return
	}
	discount := discounts[0]

	if _, err := s.store.Discounts.SoftDelete(ctx, rc.Identity, discount.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	discount.Deleted = true
	if _, err := s.events.Emit(ctx, rc, domain.EventDraft{
		Type:   domain.EventCustomerDiscountDeleted,
		Object: discount,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	respondDeleted(c, discount.ID)
}
