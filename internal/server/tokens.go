package server

import (
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/paymocklabs/paymock/internal/billing/factory"
	"github.com/paymocklabs/paymock/internal/domain"
)

type createTokenRequest struct {
	Card struct {
		Number         string `json:"number"`
		ExpMonth       int64  `json:"exp_month"`
		ExpYear        int64  `json:"exp_year"`
		CVC            string `json:"cvc"`
		Name           *string `json:"name"`
		AddressLine1   *string `json:"address_line1"`
		AddressLine2   *string `json:"address_line2"`
		AddressCity    *string `json:"address_city"`
		AddressState   *string `json:"address_state"`
		AddressZip     *string `json:"address_zip"`
		AddressCountry *string `json:"address_country"`
	} `json:"card"`
	Metadata datatypes.JSONMap `json:"metadata"`
}

func (s *Server) CreateToken(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	var req createTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, domain.InvalidRequest("card", "invalid request body"))
		return
	}
	if req.Card.Number == "" || req.Card.ExpMonth == 0 || req.Card.ExpYear == 0 || req.Card.CVC == "" {
		AbortWithError(c, domain.InvalidRequest("card", "incomplete card details"))
		return
	}

	cardType, ok := factory.LookupCardType(req.Card.Number)
	if !ok {
		AbortWithError(c, domain.InvalidRequest("card", "invalid card number"))
		return
	}

	card, err := s.factory.Card(ctx, rc, factory.CardParams{
		Number:         req.Card.Number,
		ExpMonth:       req.Card.ExpMonth,
		ExpYear:        req.Card.ExpYear,
		Name:           req.Card.Name,
		AddressLine1:   req.Card.AddressLine1,
		AddressLine2:   req.Card.AddressLine2,
		AddressCity:    req.Card.AddressCity,
		AddressState:   req.Card.AddressState,
		AddressZip:     req.Card.AddressZip,
		AddressCountry: req.Card.AddressCountry,
		Metadata:       req.Metadata,
	}, cardType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	clientIP := c.ClientIP()
	token, err := s.factory.Token(ctx, rc, card.ID, &clientIP)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, domain.TokenView{Token: *token, Card: *card})
}

func (s *Server) RetrieveToken(c *gin.Context) {
	rc := requestContext(c)
	ctx := c.Request.Context()

	token, err := s.store.Tokens.Get(ctx, rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if token == nil {
		AbortWithError(c, domain.NotFound("token", "no such token: %s", c.Param("id")))
		return
	}

	card, err := s.store.Cards.Get(ctx, rc.Identity, token.Card)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if card == nil {
		AbortWithError(c, domain.NotFound("card", "no such card: %s", token.Card))
		return
	}

	respond(c, domain.TokenView{Token: *token, Card: *card})
}
