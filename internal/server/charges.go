package server

import (
	"github.com/gin-gonic/gin"

	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/pkg/pagination"
)

func (s *Server) RetrieveCharge(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	charge, err := s.store.Charges.Get(ctx, rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if charge == nil {
		AbortWithError(c, domain.InvalidRequest("charge", "no such charge: %s", c.Param("id")))
		return
	}

	view, err := s.populateCharge(c, *charge)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, view)
}

func (s *Server) ListCharges(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	var charges []domain.Charge
	var err error
	if customerID := c.Query("customer"); customerID != "" {
		charges, err = s.store.Charges.Find(ctx, rc.Identity, map[string]any{"customer": customerID})
	} else {
		charges, err = s.store.Charges.All(ctx, rc.Identity)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, hasMore := pagination.Apply(charges, pagination.FromQuery(c.Request.URL.Query()))
	views := make([]domain.ChargeView, 0, len(page))
	for _, charge := range page {
		view, err := s.populateCharge(c, charge)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		views = append(views, *view)
	}

	list := domain.NewList(views, "/v1/charges")
	list.HasMore = hasMore
	respond(c, list)
}

// populateCharge expands the charge's source card id into the card object.
func (s *Server) populateCharge(c *gin.Context, charge domain.Charge) (*domain.ChargeView, error) {
	rc := requestContext(c)

	card, err := s.store.Cards.Get(c.Request.Context(), rc.Identity, charge.Source)
	if err != nil {
		return nil, err
	}
	return &domain.ChargeView{Charge: charge, Source: card}, nil
}
