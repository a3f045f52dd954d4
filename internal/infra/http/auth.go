package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"kioskguard/internal/domain"
)

const actorContextKey = "actor"

// bearerAuthenticator adapts a token authenticator to requests.
type bearerAuthenticator struct {
	inner domain.Authenticator
}

func (b bearerAuthenticator) Authenticate(c *gin.Context) (domain.Principal, error) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return b.inner.Authenticate(c.Request.Context(), token)
}

// requireAdmin authenticates the caller, checks the role claim and reloads the
// stored account so role and permission flags are always current.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authInitErr != nil {
			writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
			c.Abort()
			return
		}
		if s.authenticator == nil || s.admins == nil {
			writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin api disabled")
			c.Abort()
			return
		}
		principal, err := s.authenticator.Authenticate(c)
		if err != nil {
			writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
			c.Abort()
			return
		}
		if err := s.authorizer.Require(principal, domain.RoleSuperAdmin, domain.RoleAdmin); err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		actor, err := s.admins.ResolveActor(c.Request.Context(), principal)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(actorContextKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) domain.Actor {
	raw, ok := c.Get(actorContextKey)
	if !ok {
		return domain.Actor{}
	}
	actor, _ := raw.(domain.Actor)
	return actor
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if len(value) < len("bearer ") || !strings.EqualFold(value[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}
