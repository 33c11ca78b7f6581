package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/paymocklabs/paymock/internal/billing/factory"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/pagination"
)

type createCouponRequest struct {
	ID               string            `json:"id"`
	AmountOff        *int64            `json:"amount_off"`
	Currency         *string           `json:"currency"`
	Duration         string            `json:"duration"`
	DurationInMonths *int64            `json:"duration_in_months"`
	MaxRedemptions   *int64            `json:"max_redemptions"`
	Metadata         datatypes.JSONMap `json:"metadata"`
	PercentOff       *int64            `json:"percent_off"`
	RedeemBy         *int64            `json:"redeem_by"`
}

// valid enforces the amount_off XOR percent_off rule and the
// duration_in_months requirement for repeating coupons.
func (r createCouponRequest) valid() bool {
	if r.Duration == "" {
		return false
	}
	hasAmount := r.AmountOff != nil && r.Currency != nil
	hasPercent := r.PercentOff != nil
	if hasAmount == hasPercent {
		return false
	}
	if r.Duration == domain.DurationRepeating && r.DurationInMonths == nil {
		return false
	}
	return true
}

func (s *Server) CreateCoupon(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	var req createCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, domain.InvalidRequest("coupon", "invalid request body"))
		return
	}
	if !req.valid() {
		AbortWithError(c, domain.InvalidRequest("coupon", "invalid coupon parameters"))
		return
	}

	if req.ID != "" {
		existing, err := s.store.Coupons.Get(ctx, rc.Identity, req.ID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if existing != nil {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": &domain.Error{
				Type:    domain.ErrorTypeInvalidRequest,
				Param:   "id",
				Message: "coupon already exists: " + req.ID,
			}})
			return
		}
	}

	coupon, err := s.factory.Coupon(ctx, rc, factory.CouponParams{
		ID:               req.ID,
		AmountOff:        req.AmountOff,
		Currency:         req.Currency,
		Duration:         req.Duration,
		DurationInMonths: req.DurationInMonths,
		MaxRedemptions:   req.MaxRedemptions,
		Metadata:         req.Metadata,
		PercentOff:       req.PercentOff,
		RedeemBy:         req.RedeemBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, coupon)
}

func (s *Server) RetrieveCoupon(c *gin.Context) {
	rc := requestContext(c)

	coupon, err := s.store.Coupons.Get(c.Request.Context(), rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if coupon == nil {
		AbortWithError(c, domain.NotFound("coupon", "no such coupon: %s", c.Param("id")))
		return
	}
	respond(c, coupon)
}

func (s *Server) UpdateCoupon(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	coupon, err := s.store.Coupons.Get(ctx, rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if coupon == nil {
		AbortWithError(c, domain.NotFound("coupon", "no such coupon: %s", c.Param("id")))
		return
	}

	var patch domain.CouponPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, domain.InvalidRequest("coupon", "invalid request body"))
		return
	}

	patch.Apply(coupon)
	if err := s.store.Coupons.Update(ctx, coupon); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, coupon)
}

func (s *Server) DeleteCoupon(c *gin.Context) {
	rc := requestContext(c)

	result, err := s.store.Coupons.SoftDelete(c.Request.Context(), rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result != store.DeleteResultDeleted {
		AbortWithError(c, domain.NotFound("coupon", "no such coupon: %s", c.Param("id")))
		return
	}
	respondDeleted(c, c.Param("id"))
}

func (s *Server) ListCoupons(c *gin.Context) {
	rc := requestContext(c)

	coupons, err := s.store.Coupons.All(c.Request.Context(), rc.Identity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, hasMore := pagination.Apply(coupons, pagination.FromQuery(c.Request.URL.Query()))
	list := domain.NewList(page, "/v1/coupons")
	list.HasMore = hasMore
	respond(c, list)
}
