package server

import (
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/paymocklabs/paymock/internal/billing/factory"
	"github.com/paymocklabs/paymock/internal/domain"
)

type createInvoiceItemRequest struct {
	Customer    string            `json:"customer"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description *string           `json:"description"`
	Invoice     *string           `json:"invoice"`
	Metadata    datatypes.JSONMap `json:"metadata"`
}

// CreateInvoiceItem adds a pending item that the next invoice assembly for
// the customer will sweep up.
func (s *Server) CreateInvoiceItem(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	var req createInvoiceItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, domain.InvalidRequest("invoiceitem", "invalid request body"))
		return
	}

	customer, err := s.store.Customers.Get(ctx, rc.Identity, req.Customer)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if customer == nil {
		AbortWithError(c, domain.InvalidRequest("customer", "no such customer: %s", req.Customer))
		return
	}
	if req.Amount == 0 {
		AbortWithError(c, domain.InvalidRequest("amount", "no amount provided"))
		return
	}

	item, draft, err := s.factory.InvoiceItem(ctx, rc, factory.InvoiceItemParams{
		Customer:    customer.ID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Invoice:     req.Invoice,
		Metadata:    req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if _, err := s.events.Emit(ctx, rc, draft); err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, item)
}
