package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/paymocklabs/paymock/internal/billing/factory"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/pagination"
)

type createCustomerRequest struct {
	Source      string            `json:"source"`
	Card        string            `json:"card"`
	Description *string           `json:"description"`
	Email       *string           `json:"email"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	Shipping    datatypes.JSONMap `json:"shipping"`
}

// CreateCustomer builds a customer and, when a token is supplied, consumes
// it: the card attaches to the customer, becomes the default source, and
// the token can never be used again.
func (s *Server) CreateCustomer(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, domain.InvalidRequest("customer", "invalid request body"))
		return
	}

	tokenID := req.Source
	if tokenID == "" {
		tokenID = req.Card
	}

	var token *domain.Token
	var card *domain.Card
	if tokenID != "" {
		var err error
		token, err = s.store.Tokens.Get(ctx, rc.Identity, tokenID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if token == nil {
			AbortWithError(c, domain.NotFound("card", "no such token: %s", tokenID))
			return
		}
		card, err = s.store.Cards.Get(ctx, rc.Identity, token.Card)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if card == nil {
			AbortWithError(c, domain.NotFound("card", "no such card: %s", token.Card))
			return
		}
	}

	customer, err := s.factory.Customer(ctx, rc, factory.CustomerParams{
		Description: req.Description,
		Email:       req.Email,
		Metadata:    req.Metadata,
		Shipping:    req.Shipping,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if card != nil {
		token.Used = true
		if err := s.store.Tokens.Update(ctx, token); err != nil {
			AbortWithError(c, err)
			return
		}
		card.Customer = &customer.ID
		if err := s.store.Cards.Update(ctx, card); err != nil {
			AbortWithError(c, err)
			return
		}
		customer.DefaultSource = &card.ID
		if err := s.store.Customers.Update(ctx, customer); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	view, err := s.populateCustomer(ctx, rc.Identity, *customer)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, view)
}

func (s *Server) RetrieveCustomer(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	customer, err := s.store.Customers.Get(ctx, rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if customer == nil {
		AbortWithError(c, domain.NotFound("customer", "no such customer: %s", c.Param("id")))
		return
	}

	view, err := s.populateCustomer(ctx, rc.Identity, *customer)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, view)
}

func (s *Server) UpdateCustomer(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	customer, err := s.store.Customers.Get(ctx, rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if customer == nil {
		AbortWithError(c, domain.NotFound("customer", "no such customer: %s", c.Param("id")))
		return
	}

	var patch domain.CustomerPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, domain.InvalidRequest("customer", "invalid request body"))
		return
	}

	patch.Apply(customer)
	if err := s.store.Customers.Update(ctx, customer); err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.populateCustomer(ctx, rc.Identity, *customer)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, view)
}

func (s *Server) DeleteCustomer(c *gin.Context) {
	rc := requestContext(c)

	result, err := s.store.Customers.SoftDelete(c.Request.Context(), rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result != store.DeleteResultDeleted {
		AbortWithError(c, domain.NotFound("customer", "no such customer: %s", c.Param("id")))
		return
	}
	respondDeleted(c, c.Param("id"))
}

func (s *Server) ListCustomers(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	customers, err := s.store.Customers.All(ctx, rc.Identity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, hasMore := pagination.Apply(customers, pagination.FromQuery(c.Request.URL.Query()))
	views := make([]domain.CustomerView, 0, len(page))
	for _, customer := range page {
		view, err := s.populateCustomer(ctx, rc.Identity, customer)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		views = append(views, *view)
	}

	list := domain.NewList(views, "/v1/customers")
	list.HasMore = hasMore
	respond(c, list)
}

// populateCustomer embeds the customer's cards, live subscriptions and
// discount into the response shape.
func (s *Server) populateCustomer(ctx context.Context, identity string, customer domain.Customer) (*domain.CustomerView, error) {
	view := domain.CustomerView{Customer: customer}

	cards, err := s.store.Cards.Find(ctx, identity, map[string]any{"customer": customer.ID})
	if err != nil {
		return nil, err
	}
	view.Sources = domain.NewList(cards, "/v1/customers/"+customer.ID+"/sources")

	subs, err := s.store.Subscriptions.Find(ctx, identity, map[string]any{"customer": customer.ID})
	if err != nil {
		return nil, err
	}
	subViews := make([]domain.SubscriptionView, 0, len(subs))
	for _, sub := range subs {
		if sub.Status == domain.SubscriptionStatusCanceled {
			continue
		}
		loaded, err := s.subs.Load(ctx, identity, sub.ID)
		if err != nil {
			return nil, err
		}
		sv, err := s.subs.Populate(ctx, identity, *loaded)
		if err != nil {
			return nil, err
		}
		subViews = append(subViews, *sv)
	}
	view.Subscriptions = domain.NewList(subViews, "/v1/customers/"+customer.ID+"/subscriptions")

	discounts, err := s.store.Discounts.Find(ctx, identity, map[string]any{"customer": customer.ID, "subscription": nil})
	if err != nil {
		return nil, err
	}
	if len(discounts) > 0 {
		coupon, err := s.store.Coupons.Get(ctx, identity, discounts[0].Coupon)
		if err != nil {
			return nil, err
		}
		if coupon != nil {
			view.Discount = &domain.DiscountView{Discount: discounts[0], Coupon: *coupon}
		}
	}

	return &view, nil
}
