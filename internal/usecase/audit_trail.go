package usecase

import (
	"context"
	"errors"
	"strings"

	"kioskguard/internal/domain"
)

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 500
)

type AuditTrail struct {
	Store Store
	Gate  *PermissionGate
}

func NewAuditTrail(store Store, gate *PermissionGate) *AuditTrail {
	return &AuditTrail{Store: store, Gate: gate}
}

// Append records entry inside the caller's unit of work.
func (AuditTrail) Append(ctx context.Context, audit AuditRepository, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if audit == nil {
		return domain.AuditEntry{}, errors.New("audit repository is required")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" || entry.ActorID == "" {
		return domain.AuditEntry{}, domain.ErrInvalidArgument
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	return audit.Append(ctx, entry)
}

// List returns non-archived entries newest first.
func (t *AuditTrail) List(ctx context.Context, actor domain.Actor, filter AuditFilter) ([]domain.AuditEntry, error) {
	if t == nil || t.Store == nil {
		return nil, errors.New("audit trail store is required")
	}
	if t.Gate == nil {
		return nil, errors.New("audit trail permission gate is required")
	}
	if err := t.Gate.Authorize(ctx, actor, domain.CapAuditRead); err != nil {
		return nil, err
	}
	filter.EntityID = strings.TrimSpace(filter.EntityID)
	filter.IncludeArchived = false
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultAuditLimit
	case filter.Limit > MaxAuditLimit:
		filter.Limit = MaxAuditLimit
	}
	return t.Store.Audit().List(ctx, filter)
}
