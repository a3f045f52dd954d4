// Package header trusts identity headers set by an authenticating gateway in
// front of the service.
package header

import (
	"strings"

	"github.com/gin-gonic/gin"

	"kioskguard/internal/domain"
)

const (
	SubjectHeader = "X-Principal-Subject"
	RolesHeader   = "X-Principal-Roles"
)

type Authenticator struct{}

func NewAuthenticator() *Authenticator {
	return &Authenticator{}
}

func (h *Authenticator) Authenticate(c *gin.Context) (domain.Principal, error) {
	principal := domain.Principal{
		Subject: strings.TrimSpace(c.GetHeader(SubjectHeader)),
	}
	if principal.Subject == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	if roles := strings.TrimSpace(c.GetHeader(RolesHeader)); roles != "" {
		principal.Roles = splitCSV(roles)
	}
	return principal, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		out = append(out, strings.ToUpper(trimmed))
	}
	return out
}
