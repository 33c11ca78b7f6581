package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/identity"
)

// respond writes the entity as the raw response body. The public API does
// not wrap objects in an envelope.
func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// respondDeleted is the standard soft-delete acknowledgment.
func respondDeleted(c *gin.Context, id string) {
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": id})
}

// AbortWithError maps any error onto the API error envelope. Typed errors
// keep their status; everything else becomes an api_error.
func AbortWithError(c *gin.Context, err error) {
	apiErr := domain.AsError(err)
	c.AbortWithStatusJSON(apiErr.StatusCode, gin.H{"error": apiErr})
}

// requestContext returns the identity attached by the auth middleware.
func requestContext(c *gin.Context) identity.RequestContext {
	rc, _ := identity.FromContext(c.Request.Context())
	return rc
}
