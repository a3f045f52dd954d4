package usecase

import (
	"context"
	"errors"
	"testing"

	"kioskguard/internal/domain"
)

type stubPolicy struct {
	decision domain.PolicyDecision
	err      error
	last     domain.PolicyInput
}

func (p *stubPolicy) Decide(ctx context.Context, input domain.PolicyInput) (domain.PolicyDecision, error) {
	p.last = input
	return p.decision, p.err
}

func TestPermissionGate_DefaultTable(t *testing.T) {
	gate := NewPermissionGate(nil)
	ctx := context.Background()
	super := domain.Actor{ID: "root", Role: domain.RoleSuperAdmin}
	all := domain.Actor{ID: "ops", Role: domain.RoleAdmin, Permissions: domain.Permissions{
		CanRevokeLicense: true,
		CanManageDevices: true,
		CanViewAuditLog:  true,
	}}
	none := domain.Actor{ID: "viewer", Role: domain.RoleAdmin}

	tests := []struct {
		actor domain.Actor
		cap   domain.Capability
		allow bool
	}{
		{super, domain.CapLicenseRebind, true},
		{super, domain.CapAdminManage, true},
		{all, domain.CapLicenseCreate, true},
		{all, domain.CapLicenseAssign, true},
		{all, domain.CapLicenseRevoke, true},
		{all, domain.CapAuditRead, true},
		{all, domain.CapLicenseRebind, false},
		{all, domain.CapAdminManage, false},
		{none, domain.CapLicenseCreate, false},
		{none, domain.CapLicenseRevoke, false},
		{none, domain.CapAuditRead, false},
		{all, domain.Capability("license:delete"), false},
	}
	for _, tt := range tests {
		err := gate.Authorize(ctx, tt.actor, tt.cap)
		if tt.allow && err != nil {
			t.Fatalf("%s/%s: expected allow, got %v", tt.actor.ID, tt.cap, err)
		}
		if !tt.allow && !errors.Is(err, domain.ErrInsufficientPermission) {
			t.Fatalf("%s/%s: expected ErrInsufficientPermission, got %v", tt.actor.ID, tt.cap, err)
		}
	}
}

func TestPermissionGate_RejectsAnonymousActor(t *testing.T) {
	gate := NewPermissionGate(nil)
	err := gate.Authorize(context.Background(), domain.Actor{Role: domain.RoleSuperAdmin}, domain.CapAuditRead)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPermissionGate_UsesPolicyDecision(t *testing.T) {
	policy := &stubPolicy{decision: domain.PolicyDecision{Allow: false, Reason: "flag off"}}
	gate := NewPermissionGate(policy)
	actor := domain.Actor{ID: "ops", Role: domain.RoleAdmin, Permissions: domain.Permissions{CanViewAuditLog: true}}

	err := gate.Authorize(context.Background(), actor, domain.CapLicenseRevoke)
	var denied *domain.DeniedError
	if !errors.As(err, &denied) || denied.Reason != "flag off" {
		t.Fatalf("expected DeniedError with policy reason, got %v", err)
	}
	if policy.last.Capability != domain.CapLicenseRevoke || !policy.last.Actor.Permissions.CanViewAuditLog {
		t.Fatalf("policy received unexpected input %+v", policy.last)
	}

	policy.err = errors.New("policy offline")
	if err := gate.Authorize(context.Background(), actor, domain.CapLicenseRevoke); err == nil || errors.Is(err, domain.ErrInsufficientPermission) {
		t.Fatalf("evaluation failures must not look like a denial, got %v", err)
	}
}

func TestPermissionGate_TargetMutation(t *testing.T) {
	gate := NewPermissionGate(nil)
	if err := gate.AuthorizeTargetMutation(domain.AdminUser{Role: domain.RoleSuperAdmin}); !errors.Is(err, domain.ErrForbiddenModification) {
		t.Fatalf("expected ErrForbiddenModification, got %v", err)
	}
	if err := gate.AuthorizeTargetMutation(domain.AdminUser{Role: domain.RoleAdmin}); err != nil {
		t.Fatalf("admin target should be mutable, got %v", err)
	}
}
