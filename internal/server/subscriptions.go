package server

import (
	"bytes"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/paymocklabs/paymock/internal/billing/subscription"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/pkg/pagination"
)

type createSubscriptionRequest struct {
	Customer              string                     `json:"customer"`
	Items                 []subscription.ItemParams  `json:"items"`
	Plan                  string                     `json:"plan"`
	Quantity              int64                      `json:"quantity"`
	Coupon                string                     `json:"coupon"`
	Metadata              datatypes.JSONMap          `json:"metadata"`
	TaxPercent            *float64                   `json:"tax_percent"`
	ApplicationFeePercent *float64                   `json:"application_fee_percent"`
	TrialEnd              *domain.TrialEnd           `json:"trial_end"`
	TrialPeriodDays       *int64                     `json:"trial_period_days"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	rc := requestContext(c)

	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, domain.InvalidRequest("subscription", "invalid request body"))
		return
	}

	customer := req.Customer
	if id := c.Param("id"); id != "" {
		customer = id
	}

	view, err := s.subs.Create(c.Request.Context(), rc, subscription.CreateParams{
		Customer:              customer,
		Items:                 req.Items,
		Plan:                  req.Plan,
		Quantity:              req.Quantity,
		Coupon:                req.Coupon,
		Metadata:              req.Metadata,
		TaxPercent:            req.TaxPercent,
		ApplicationFeePercent: req.ApplicationFeePercent,
		TrialEnd:              req.TrialEnd,
		TrialPeriodDays:       req.TrialPeriodDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, view)
}

func (s *Server) RetrieveSubscription(c *gin.Context) {
	rc := requestContext(c)

	view, err := s.subs.Retrieve(c.Request.Context(), rc, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, view)
}

type updateSubscriptionRequest struct {
	Items    []subscription.UpdateItem `json:"items"`
	Plan     string                    `json:"plan"`
	Quantity *int64                    `json:"quantity"`

	// RawMessage distinguishes an absent coupon from an explicit null.
	Coupon json.RawMessage `json:"coupon"`

	Metadata              *datatypes.JSONMap `json:"metadata"`
	TaxPercent            *float64           `json:"tax_percent"`
	ApplicationFeePercent *float64           `json:"application_fee_percent"`
}

func (s *Server) UpdateSubscription(c *gin.Context) {
	rc := requestContext(c)

	var req updateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, domain.InvalidRequest("subscription", "invalid request body"))
		return
	}

	params := subscription.UpdateParams{
		Items:    req.Items,
		Plan:     req.Plan,
		Quantity: req.Quantity,
		Patch: domain.SubscriptionPatch{
			Metadata:              req.Metadata,
			TaxPercent:            req.TaxPercent,
			ApplicationFeePercent: req.ApplicationFeePercent,
		},
	}

	if len(req.Coupon) > 0 {
		params.CouponSet = true
		if !bytes.Equal(bytes.TrimSpace(req.Coupon), []byte("null")) {
			var coupon string
			if err := json.Unmarshal(req.Coupon, &coupon); err != nil {
				AbortWithError(c, domain.InvalidRequest("coupon", "coupon must be a string or null"))
				return
			}
			params.Coupon = &coupon
		}
	}

	view, err := s.subs.Update(c.Request.Context(), rc, c.Param("id"), params)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, view)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	rc := requestContext(c)

	atPeriodEnd := c.Query("at_period_end") == "true"
	view, err := s.subs.Cancel(c.Request.Context(), rc, c.Param("id"), atPeriodEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, view)
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	rc := requestContext(c)

	list, err := s.subs.List(c.Request.Context(), rc, c.Query("customer"), pagination.FromQuery(c.Request.URL.Query()))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, list)
}
