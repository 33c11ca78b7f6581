package server

import (
	"github.com/gin-gonic/gin"

	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/pkg/pagination"
)

func (s *Server) RetrieveEvent(c *gin.Context) {
	rc := requestContext(c)

	ev, err := s.store.Events.Get(c.Request.Context(), rc.Identity, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if ev == nil {
		AbortWithError(c, domain.InvalidRequest("event", "no such event: %s", c.Param("id")))
		return
	}
	respond(c, ev)
}

// ListEvents pages the append-only event log with created and type(s)
// filters.
func (s *Server) ListEvents(c *gin.Context) {
	rc := requestContext(c)

	events, err := s.store.Events.All(c.Request.Context(), rc.Identity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, hasMore := pagination.Apply(events, pagination.FromQuery(c.Request.URL.Query()))
	list := domain.NewList(page, "/v1/events")
	list.HasMore = hasMore
	respond(c, list)
}
