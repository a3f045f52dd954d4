// Package jwtauth issues and verifies the HS256 bearer tokens handed to
// administrators at login.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kioskguard/internal/domain"
)

var _ domain.Authenticator = (*Authenticator)(nil)

type claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
	ttl       time.Duration
	now       func() time.Time
}

type Config struct {
	Secret    string
	Issuer    string
	ClockSkew time.Duration
	TTL       time.Duration
	Now       func() time.Time
}

func New(cfg Config) (*Authenticator, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 8 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Authenticator{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		clockSkew: cfg.ClockSkew,
		ttl:       cfg.TTL,
		now:       cfg.Now,
	}, nil
}

// Issue signs a token for user. The subject is the user id; role travels as a
// hint for route guards and is re-read from storage on every request.
func (a *Authenticator) Issue(user domain.AdminUser) (string, time.Time, error) {
	now := a.now().UTC()
	expires := now.Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: user.Email,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (a *Authenticator) Authenticate(_ context.Context, bearerToken string) (domain.Principal, error) {
	if a == nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	raw := strings.TrimSpace(bearerToken)
	if raw == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.clockSkew),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	principal := domain.Principal{
		Subject: c.Subject,
		RawClaims: map[string]any{
			"sub":      c.Subject,
			"username": c.Username,
			"role":     c.Role,
		},
	}
	if c.Role != "" {
		principal.Roles = []string{c.Role}
	}
	return principal, nil
}
