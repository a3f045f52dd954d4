package domain

import "context"

// Principal is what an authenticator vouches for. Role and permissions are
// always reloaded from the user store before any privileged operation.
type Principal struct {
	Subject   string
	Roles     []string
	RawClaims map[string]any
}

func (p Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Principal, error)
}

type Authorizer interface {
	Require(principal Principal, roles ...Role) error
}
