package server

import (
	"encoding/base64"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/paymocklabs/paymock/internal/config"
	"github.com/paymocklabs/paymock/internal/domain"
	"github.com/paymocklabs/paymock/internal/identity"
)

// The fallback identity accepts any standard test-mode key.
var defaultIdentity = config.Identity{
	Name:           "default",
	SecretKey:      "sk_test_*",
	PublishableKey: "pk_test_*",
}

// RequestID stamps every request with a snowflake id carried into emitted
// events as their request reference.
func (s *Server) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := "req_" + s.node.Generate().String()
		c.Header("Request-Id", id)
		c.Set(contextRequestIDKey, id)
		c.Next()
	}
}

const contextRequestIDKey = "request_id"

// Authenticate resolves the API key from Basic (key as username) or Bearer
// credentials against the configured identities, falling back to the
// test-mode default. Secret keys grant admin; publishable keys do not.
func (s *Server) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey, ok := apiKeyFromHeader(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, domain.Authentication("invalid authorization header"))
			return
		}

		name, admin, ok := s.resolveKey(apiKey)
		if !ok {
			AbortWithError(c, domain.Authentication("invalid API key provided"))
			return
		}

		rc := identity.RequestContext{
			Identity:  name,
			Admin:     admin,
			RequestID: c.GetString(contextRequestIDKey),
			Livemode:  false,
		}
		c.Request = c.Request.WithContext(identity.NewContext(c.Request.Context(), rc))
		c.Next()
	}
}

// RequireAdmin gates mutating routes on a secret-key identity.
func (s *Server) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requestContext(c).Admin {
			AbortWithError(c, domain.Authentication("this key does not have access to this operation"))
			return
		}
		c.Next()
	}
}

func (s *Server) resolveKey(apiKey string) (name string, admin bool, ok bool) {
	for _, id := range s.live.Current().Identities {
		if keyMatch(id.SecretKey, apiKey) {
			return id.Name, true, true
		}
		if keyMatch(id.PublishableKey, apiKey) {
			return id.Name, false, true
		}
	}
	if keyMatch(defaultIdentity.SecretKey, apiKey) {
		return defaultIdentity.Name, true, true
	}
	if keyMatch(defaultIdentity.PublishableKey, apiKey) {
		return defaultIdentity.Name, false, true
	}
	return "", false, false
}

// keyMatch compares a configured key pattern against the presented key.
// A trailing * makes the pattern a prefix match.
func keyMatch(pattern, key string) bool {
	if pattern == "" {
		return false
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == key
}

func apiKeyFromHeader(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 {
		return "", false
	}
	switch parts[0] {
	case "Bearer":
		return parts[1], true
	case "Basic":
		decoded, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			return "", false
		}
		username, _, _ := strings.Cut(string(decoded), ":")
		if username == "" {
			return "", false
		}
		return username, true
	}
	return "", false
}
