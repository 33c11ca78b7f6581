package server

import (
	"github.com/gin-gonic/gin"

	"github.com/paymocklabs/paymock/internal/domain"
)

func (s *Server) RetrieveCard(c *gin.Context) {
	_, card, err := s.customerCard(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, card)
}

// DeleteCard detaches a card. Removing the default source clears the
// customer's default_source pointer.
func (s *Server) DeleteCard(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	customer, card, err := s.customerCard(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if customer.DefaultSource != nil && *customer.DefaultSource == card.ID {
		customer.DefaultSource = nil
		if err := s.store.Customers.Update(ctx, customer); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	if _, err := s.store.Cards.SoftDelete(ctx, rc.Identity, card.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	respondDeleted(c, card.ID)
}

func (s *Server) customerCard(c *gin.Context) (*domain.Customer, *domain.Card, error) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	customer, err := s.store.Customers.Get(ctx, rc.Identity, c.Param("id"))
	if err != nil {
		return nil, nil, err
	}
	if customer == nil {
		return nil, nil, domain.InvalidRequest("id", "no such customer: %s", c.Param("id"))
	}

	card, err := s.store.Cards.Get(ctx, rc.Identity, c.Param("card"))
	if err != nil {
		return nil, nil, err
	}
	if card == nil || card.Customer == nil || *card.Customer != customer.ID {
		return nil, nil, domain.NotFound("card", "no such card: %s", c.Param("card"))
	}

	return customer, card, nil
}
