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

type createPlanRequest struct {
	ID                  string            `json:"id"`
	Amount              int64             `json:"amount"`
	Currency            string            `json:"currency"`
	Interval            string            `json:"interval"`
	IntervalCount       int64             `json:"interval_count"`
	Name                string            `json:"name"`
	Metadata            datatypes.JSONMap `json:"metadata"`
	StatementDescriptor *string           `json:"statement_descriptor"`
	TrialPeriodDays     *int64            `json:"trial_period_days"`
}

func (s *Server) CreatePlan(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, domain.InvalidRequest("plan", "invalid request body"))
		return
	}
	if req.Amount == 0 || req.Currency == "" || req.Interval == "" || req.Name == "" {
		AbortWithError(c, domain.InvalidRequest("plan", "missing required plan fields"))
		return
	}

	if req.ID != "" {
		existing, err := s.store.Plans.Get(ctx, rc.Identity, req.ID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if existing != nil {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": &domain.Error{
				Type:    domain.ErrorTypeInvalidRequest,
				Param:   "id",
				Message: "plan already exists: " + req.ID,
			}})
			return
		}
	}

	plan, err := s.factory.Plan(ctx, rc, factory.PlanParams{
		ID:                  req.ID,
		Amount:              req.Amount,
		Currency:            req.Currency,
		Interval:            req.Interval,
		IntervalCount:       req.IntervalCount,
		Metadata:            req.Metadata,
		Name:                req.Name,
		StatementDescriptor: req.StatementDescriptor,
		TrialPeriodDays:     req.TrialPeriodDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, plan)
}

func (s *Server) RetrievePlan(c *gin.Context) {
	rc := requestContext(c)

	plan, err := s.store.Plans.Get(c.Request.Context(), rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if plan == nil {
		AbortWithError(c, domain.NotFound("plan", "no such plan: %s", c.Param("id")))
		return
	}
	respond(c, plan)
}

func (s *Server) UpdatePlan(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	plan, err := s.store.Plans.Get(ctx, rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if plan == nil {
		AbortWithError(c, domain.NotFound("plan", "no such plan: %s", c.Param("id")))
		return
	}

	var patch domain.PlanPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, domain.InvalidRequest("plan", "invalid request body"))
		return
	}

	patch.Apply(plan)
	if err := s.store.Plans.Update(ctx, plan); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, plan)
}

func (s *Server) DeletePlan(c *gin.Context) {
	rc := requestContext(c)

	result, err := s.store.Plans.SoftDelete(c.Request.Context(), rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result != store.DeleteResultDeleted {
		AbortWithError(c, domain.NotFound("plan", "no such plan: %s", c.Param("id")))
		return
	}
	respondDeleted(c, c.Param("id"))
}

func (s *Server) ListPlans(c *gin.Context) {
	rc := requestContext(c)

	plans, err := s.store.Plans.All(c.Request.Context(), rc.Identity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, hasMore := pagination.Apply(plans, pagination.FromQuery(c.Request.URL.Query()))
	list := domain.NewList(page, "/v1/plans")
	list.HasMore = hasMore
	respond(c, list)
}
