package header

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"kioskguard/internal/domain"
)

func newContext(headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/v1/licenses", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req
	return c
}

func TestAuthenticate(t *testing.T) {
	c := newContext(map[string]string{
		SubjectHeader: " ops@kiosk.test ",
		RolesHeader:   "admin, ,super_admin",
	})
	principal, err := NewAuthenticator().Authenticate(c)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.Subject != "ops@kiosk.test" {
		t.Fatalf("unexpected subject %q", principal.Subject)
	}
	if !principal.HasRole(domain.RoleAdmin) || !principal.HasRole(domain.RoleSuperAdmin) || len(principal.Roles) != 2 {
		t.Fatalf("unexpected roles %v", principal.Roles)
	}
}

func TestAuthenticate_MissingSubject(t *testing.T) {
	_, err := NewAuthenticator().Authenticate(newContext(map[string]string{RolesHeader: "ADMIN"}))
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
