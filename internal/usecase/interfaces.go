package usecase

import (
	"context"
	"time"

	"kioskguard/internal/domain"
)

type Clock func() time.Time

type LicenseRepository interface {
	Create(ctx context.Context, license domain.License) (domain.License, error)
	GetByID(ctx context.Context, id string) (domain.License, error)
	// GetByKeyForUpdate and GetByIDForUpdate lock the row until the surrounding
	// transaction ends.
	GetByKeyForUpdate(ctx context.Context, key string) (domain.License, error)
	GetByIDForUpdate(ctx context.Context, id string) (domain.License, error)
	// Update persists status, binding and grace clock fields and bumps Version.
	Update(ctx context.Context, license domain.License) (domain.License, error)
	List(ctx context.Context, filter LicenseFilter) ([]domain.LicenseView, error)
}

type DeviceRepository interface {
	// GetOrCreate returns the device for fingerprint, inserting it with name when
	// absent. created reports whether this call inserted the row.
	GetOrCreate(ctx context.Context, fingerprint, name string) (device domain.Device, created bool, err error)
	GetByID(ctx context.Context, id string) (domain.Device, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)
	List(ctx context.Context, filter AuditFilter) ([]domain.AuditEntry, error)
}

type UserRepository interface {
	Create(ctx context.Context, user domain.AdminUser) (domain.AdminUser, error)
	GetByID(ctx context.Context, id string) (domain.AdminUser, error)
	GetByEmail(ctx context.Context, email string) (domain.AdminUser, error)
	FirstByRole(ctx context.Context, role domain.Role) (domain.AdminUser, error)
	ListByRole(ctx context.Context, role domain.Role) ([]domain.AdminUser, error)
	UpdatePermissions(ctx context.Context, userID string, perms domain.Permissions) (domain.AdminUser, error)
	UpdateStatus(ctx context.Context, userID string, active bool) (domain.AdminUser, error)
}

// Repositories is the set of repositories bound to one unit of work.
type Repositories interface {
	Licenses() LicenseRepository
	Devices() DeviceRepository
	Audit() AuditRepository
	Users() UserRepository
}

// Store hands out repositories. Reads outside WithTx see committed state only.
// WithTx commits when fn returns nil and rolls back otherwise. Lost races surface
// as domain.ErrConflict so callers can retry the whole unit.
type Store interface {
	Repositories
	WithTx(ctx context.Context, fn func(repos Repositories) error) error
}

type LicenseFilter struct {
	IssuerID        string
	IncludeArchived bool
}

type AuditFilter struct {
	EntityID        string
	Limit           int
	IncludeArchived bool
}

type PolicyEvaluator interface {
	Decide(ctx context.Context, input domain.PolicyInput) (domain.PolicyDecision, error)
}

// Observer receives engine outcomes for metrics.
type Observer interface {
	ObserveValidation(outcome string)
	ObserveRetry(op string)
}

type nopObserver struct{}

func (nopObserver) ObserveValidation(string) {}
func (nopObserver) ObserveRetry(string)      {}
