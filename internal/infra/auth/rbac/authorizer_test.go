package rbac

import (
	"errors"
	"testing"

	"kioskguard/internal/domain"
)

func TestAuthorizer_MissingRole(t *testing.T) {
	authz := NewAuthorizer()
	principal := domain.Principal{Subject: "kiosk-operator", Roles: []string{"VIEWER"}}
	err := authz.Require(principal, domain.RoleSuperAdmin, domain.RoleAdmin)
	authzErr, ok := IsAuthzError(err)
	if !ok {
		t.Fatalf("expected authz error, got %v", err)
	}
	if authzErr.Code != CodeMissingRole {
		t.Fatalf("expected MISSING_ROLE, got %s", authzErr.Code)
	}
	if !errors.Is(err, domain.ErrInsufficientPermission) {
		t.Fatalf("expected insufficient permission, got %v", err)
	}
}

func TestAuthorizer_AnyRoleMatches(t *testing.T) {
	authz := NewAuthorizer()
	principal := domain.Principal{Subject: "ops@kiosk.test", Roles: []string{"ADMIN"}}
	if err := authz.Require(principal, domain.RoleSuperAdmin, domain.RoleAdmin); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if err := authz.Require(principal, domain.RoleSuperAdmin); err == nil {
		t.Fatal("expected super admin requirement to fail")
	}
}

func TestAuthorizer_NoSubject(t *testing.T) {
	authz := NewAuthorizer()
	if err := authz.Require(domain.Principal{Roles: []string{"SUPER_ADMIN"}}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := authz.Require(domain.Principal{Subject: "x"}); err != nil {
		t.Fatalf("expected allow without requirement, got %v", err)
	}
}
