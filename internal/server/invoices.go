package server

import (
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/paymocklabs/paymock/internal/billing/invoice"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/pkg/pagination"
)

func (s *Server) UpcomingInvoice(c *gin.Context) {
	rc := requestContext(c)

	customerID := c.Query("customer")
	if customerID == "" {
		AbortWithError(c, domain.InvalidRequest("customer", "no customer specified"))
		return
	}

	var subscriptionID *string
	if id := c.Query("subscription"); id != "" {
		subscriptionID = &id
	}

	view, err := s.inv.Upcoming(c.Request.Context(), rc, customerID, subscriptionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, view)
}

type createInvoiceRequest struct {
	Customer            string            `json:"customer"`
	Subscription        *string           `json:"subscription"`
	ApplicationFee      *int64            `json:"application_fee"`
	Description         *string           `json:"description"`
	Metadata            datatypes.JSONMap `json:"metadata"`
	StatementDescriptor *string           `json:"statement_descriptor"`
	TaxPercent          *float64          `json:"tax_percent"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	rc := requestContext(c)

	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, domain.InvalidRequest("invoice", "invalid request body"))
		return
	}
	if req.Customer == "" {
		AbortWithError(c, domain.InvalidRequest("customer", "no customer specified"))
		return
	}

	view, err := s.inv.CreateFromItems(c.Request.Context(), rc, req.Customer, req.Subscription, invoice.AssembleParams{
		ApplicationFee:      req.ApplicationFee,
		Description:         req.Description,
		Metadata:            req.Metadata,
		StatementDescriptor: req.StatementDescriptor,
		TaxPercent:          req.TaxPercent,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, view)
}

func (s *Server) RetrieveInvoice(c *gin.Context) {
	rc := requestContext(c)

	view, err := s.inv.Retrieve(c.Request.Context(), rc, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, view)
}

func (s *Server) PayInvoice(c *gin.Context) {
	rc := requestContext(c)

	view, err := s.inv.Pay(c.Request.Context(), rc, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, view)
}

func (s *Server) ListInvoices(c *gin.Context) {
	rc := requestContext(c)

	list, err := s.inv.List(c.Request.Context(), rc, c.Query("customer"), pagination.FromQuery(c.Request.URL.Query()))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, list)
}
