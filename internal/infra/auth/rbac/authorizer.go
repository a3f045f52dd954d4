// Package rbac is the coarse route guard: it checks the role claims an
// authenticator vouched for before the stored account is loaded.
package rbac

import (
	"errors"

	"kioskguard/internal/domain"
)

const CodeMissingRole = "MISSING_ROLE"

type AuthzError struct {
	Code string
	Err  error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *AuthzError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var _ domain.Authorizer = (*Authorizer)(nil)

type Authorizer struct{}

func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// Require passes when the principal carries any of roles. No roles means any
// authenticated subject passes.
func (a *Authorizer) Require(principal domain.Principal, roles ...domain.Role) error {
	if principal.Subject == "" {
		return domain.ErrUnauthorized
	}
	if len(roles) == 0 {
		return nil
	}
	for _, role := range roles {
		if principal.HasRole(role) {
			return nil
		}
	}
	return &AuthzError{Code: CodeMissingRole, Err: domain.ErrInsufficientPermission}
}

func IsAuthzError(err error) (*AuthzError, bool) {
	var authz *AuthzError
	if errors.As(err, &authz) {
		return authz, true
	}
	return nil, false
}
