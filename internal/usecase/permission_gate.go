package usecase

import (
	"context"
	"fmt"

	"kioskguard/internal/domain"
)

// PermissionGate is the single place administrative capabilities are checked.
// Decisions come from the policy evaluator; without one the built-in table is used.
type PermissionGate struct {
	Policy PolicyEvaluator
}

func NewPermissionGate(policy PolicyEvaluator) *PermissionGate {
	return &PermissionGate{Policy: policy}
}

func (g *PermissionGate) Authorize(ctx context.Context, actor domain.Actor, capability domain.Capability) error {
	if actor.ID == "" || !actor.Role.Valid() {
		return domain.ErrUnauthorized
	}
	var decision domain.PolicyDecision
	if g == nil || g.Policy == nil {
		decision = defaultDecision(actor, capability)
	} else {
		var err error
		decision, err = g.Policy.Decide(ctx, domain.NewPolicyInput(actor, capability))
		if err != nil {
			return fmt.Errorf("policy decision: %w", err)
		}
	}
	if !decision.Allow {
		return &domain.DeniedError{Capability: capability, Reason: decision.Reason}
	}
	return nil
}

// AuthorizeTargetMutation rejects permission or status changes aimed at a super admin.
func (g *PermissionGate) AuthorizeTargetMutation(target domain.AdminUser) error {
	if target.Role == domain.RoleSuperAdmin {
		return domain.ErrForbiddenModification
	}
	return nil
}

func defaultDecision(actor domain.Actor, capability domain.Capability) domain.PolicyDecision {
	if actor.IsSuperAdmin() {
		return domain.PolicyDecision{Allow: true}
	}
	var allowed bool
	switch capability {
	case domain.CapLicenseCreate, domain.CapLicenseAssign:
		allowed = actor.Permissions.CanManageDevices
	case domain.CapLicenseRevoke:
		allowed = actor.Permissions.CanRevokeLicense
	case domain.CapAuditRead:
		allowed = actor.Permissions.CanViewAuditLog
	case domain.CapLicenseRebind, domain.CapAdminManage:
		return domain.PolicyDecision{Reason: "super admin only"}
	default:
		return domain.PolicyDecision{Reason: "unknown capability"}
	}
	if !allowed {
		return domain.PolicyDecision{Reason: "permission flag not granted"}
	}
	return domain.PolicyDecision{Allow: true}
}
