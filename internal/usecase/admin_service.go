package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kioskguard/internal/domain"
)

const MinPasswordLength = 8

type AdminService struct {
	Store       Store
	Gate        *PermissionGate
	Clock       Clock
	MaxAttempts int
	Observer    Observer
	Logger      *slog.Logger
	BcryptCost  int
}

func NewAdminService(store Store, gate *PermissionGate, clock Clock) *AdminService {
	return &AdminService{
		Store:       store,
		Gate:        gate,
		Clock:       clock,
		MaxAttempts: DefaultTxAttempts,
		BcryptCost:  bcrypt.DefaultCost,
	}
}

type CreateAdminInput struct {
	Email    string
	Name     string
	Password string
}

// CreateAdmin registers an active ADMIN with every permission flag off.
func (s *AdminService) CreateAdmin(ctx context.Context, actor domain.Actor, in CreateAdminInput) (domain.AdminUser, error) {
	if err := s.check(); err != nil {
		return domain.AdminUser{}, err
	}
	if err := s.Gate.Authorize(ctx, actor, domain.CapAdminManage); err != nil {
		return domain.AdminUser{}, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return domain.AdminUser{}, err
	}
	if len(in.Password) < MinPasswordLength {
		return domain.AdminUser{}, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidArgument, MinPasswordLength)
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return domain.AdminUser{}, err
	}
	var created domain.AdminUser
	err = runTx(ctx, s.Store, "create_admin", s.MaxAttempts, s.Observer, func(repos Repositories) error {
		if _, err := repos.Users().GetByEmail(ctx, email); err == nil {
			return fmt.Errorf("%w: email already in use", domain.ErrAlreadyExists)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		now := s.now().UTC()
		created, err = repos.Users().Create(ctx, domain.AdminUser{
			Email:        email,
			Name:         strings.TrimSpace(in.Name),
			PasswordHash: hash,
			Role:         domain.RoleAdmin,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}
		_, err = (AuditTrail{}).Append(ctx, repos.Audit(), domain.AuditEntry{
			Action:    domain.AuditAdminCreated,
			Entity:    domain.AuditEntityUser,
			EntityID:  created.ID,
			ActorID:   actor.ID,
			Details:   map[string]any{"email": created.Email, "name": created.Name},
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return domain.AdminUser{}, err
	}
	return created, nil
}

func (s *AdminService) UpdatePermissions(ctx context.Context, actor domain.Actor, targetID string, patch domain.PermissionsPatch) (domain.AdminUser, error) {
	if err := s.check(); err != nil {
		return domain.AdminUser{}, err
	}
	if err := s.Gate.Authorize(ctx, actor, domain.CapAdminManage); err != nil {
		return domain.AdminUser{}, err
	}
	var updated domain.AdminUser
	err := runTx(ctx, s.Store, "update_admin_permissions", s.MaxAttempts, s.Observer, func(repos Repositories) error {
		target, err := repos.Users().GetByID(ctx, targetID)
		if err != nil {
			return err
		}
		if err := s.Gate.AuthorizeTargetMutation(target); err != nil {
			return err
		}
		updated, err = repos.Users().UpdatePermissions(ctx, target.ID, target.Permissions.Apply(patch))
		if err != nil {
			return err
		}
		_, err = (AuditTrail{}).Append(ctx, repos.Audit(), domain.AuditEntry{
			Action:    domain.AuditAdminPermissionsUpdated,
			Entity:    domain.AuditEntityAdminPermission,
			EntityID:  target.ID,
			ActorID:   actor.ID,
			Details:   patchDetails(patch),
			CreatedAt: s.now().UTC(),
		})
		return err
	})
	if err != nil {
		return domain.AdminUser{}, err
	}
	return updated, nil
}

func (s *AdminService) UpdateStatus(ctx context.Context, actor domain.Actor, targetID string, active bool) (domain.AdminUser, error) {
	if err := s.check(); err != nil {
		return domain.AdminUser{}, err
	}
	if err := s.Gate.Authorize(ctx, actor, domain.CapAdminManage); err != nil {
		return domain.AdminUser{}, err
	}
	var updated domain.AdminUser
	err := runTx(ctx, s.Store, "update_admin_status", s.MaxAttempts, s.Observer, func(repos Repositories) error {
		target, err := repos.Users().GetByID(ctx, targetID)
		if err != nil {
			return err
		}
		if err := s.Gate.AuthorizeTargetMutation(target); err != nil {
			return err
		}
		updated, err = repos.Users().UpdateStatus(ctx, target.ID, active)
		if err != nil {
			return err
		}
		_, err = (AuditTrail{}).Append(ctx, repos.Audit(), domain.AuditEntry{
			Action:    domain.AuditAdminStatusChanged,
			Entity:    domain.AuditEntityUser,
			EntityID:  target.ID,
			ActorID:   actor.ID,
			Details:   map[string]any{"isActive": active},
			CreatedAt: s.now().UTC(),
		})
		return err
	})
	if err != nil {
		return domain.AdminUser{}, err
	}
	return updated, nil
}

// ListAdmins returns every ADMIN for a super admin and only the caller otherwise.
func (s *AdminService) ListAdmins(ctx context.Context, actor domain.Actor) ([]domain.AdminUser, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if actor.ID == "" || !actor.Role.Valid() {
		return nil, domain.ErrUnauthorized
	}
	if actor.IsSuperAdmin() {
		return s.Store.Users().ListByRole(ctx, domain.RoleAdmin)
	}
	self, err := s.Store.Users().GetByID(ctx, actor.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.AdminUser{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []domain.AdminUser{self}, nil
}

// BootstrapSuperAdmin creates the first SUPER_ADMIN when none exists. It
// reports false when one was already present.
func (s *AdminService) BootstrapSuperAdmin(ctx context.Context, email, password string) (domain.AdminUser, bool, error) {
	if err := s.check(); err != nil {
		return domain.AdminUser{}, false, err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.AdminUser{}, false, err
	}
	if len(password) < MinPasswordLength {
		return domain.AdminUser{}, false, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidArgument, MinPasswordLength)
	}
	hash, err := s.hash(password)
	if err != nil {
		return domain.AdminUser{}, false, err
	}
	var (
		user    domain.AdminUser
		created bool
	)
	err = runTx(ctx, s.Store, "bootstrap_super_admin", s.MaxAttempts, s.Observer, func(repos Repositories) error {
		created = false
		existing, err := repos.Users().FirstByRole(ctx, domain.RoleSuperAdmin)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		now := s.now().UTC()
		user, err = repos.Users().Create(ctx, domain.AdminUser{
			Email:        email,
			Name:         "Super Admin",
			PasswordHash: hash,
			Role:         domain.RoleSuperAdmin,
			IsActive:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}
		created = true
		_, err = (AuditTrail{}).Append(ctx, repos.Audit(), domain.AuditEntry{
			Action:    domain.AuditBootstrapSuperAdmin,
			Entity:    domain.AuditEntityUser,
			EntityID:  user.ID,
			ActorID:   user.ID,
			Details:   map[string]any{"email": user.Email},
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return domain.AdminUser{}, false, err
	}
	if created {
		s.logger().Info("bootstrapped super admin", "user_id", user.ID, "email", user.Email)
	}
	return user, created, nil
}

// ResolveActor loads the role and permission flags of an authenticated subject.
// The subject may be a user id or an email.
func (s *AdminService) ResolveActor(ctx context.Context, principal domain.Principal) (domain.Actor, error) {
	if err := s.check(); err != nil {
		return domain.Actor{}, err
	}
	subject := strings.TrimSpace(principal.Subject)
	if subject == "" {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	var (
		user domain.AdminUser
		err  error
	)
	if strings.Contains(subject, "@") {
		user, err = s.Store.Users().GetByEmail(ctx, strings.ToLower(subject))
	} else {
		user, err = s.Store.Users().GetByID(ctx, subject)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	if err != nil {
		return domain.Actor{}, err
	}
	if !user.IsActive {
		return domain.Actor{}, fmt.Errorf("%w: account disabled", domain.ErrUnauthorized)
	}
	return user.Actor(), nil
}

// Login checks email and password of an active account. Every failure reads as
// ErrUnauthorized so callers cannot probe for accounts.
func (s *AdminService) Login(ctx context.Context, email, password string) (domain.AdminUser, error) {
	if err := s.check(); err != nil {
		return domain.AdminUser{}, err
	}
	user, err := s.Store.Users().GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.AdminUser{}, domain.ErrUnauthorized
	}
	if err != nil {
		return domain.AdminUser{}, err
	}
	if !user.IsActive || !CheckPassword(user, password) {
		return domain.AdminUser{}, domain.ErrUnauthorized
	}
	return user, nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(user domain.AdminUser, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func (s *AdminService) hash(password string) (string, error) {
	cost := s.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(out), nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidArgument)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidArgument)
	}
	return email, nil
}

func patchDetails(patch domain.PermissionsPatch) map[string]any {
	details := map[string]any{}
	if patch.CanRevokeLicense != nil {
		details["canRevokeLicense"] = *patch.CanRevokeLicense
	}
	if patch.CanManageDevices != nil {
		details["canManageDevices"] = *patch.CanManageDevices
	}
	if patch.CanViewAuditLog != nil {
		details["canViewAuditLog"] = *patch.CanViewAuditLog
	}
	return details
}

func (s *AdminService) check() error {
	if s == nil || s.Store == nil {
		return errors.New("admin service store is required")
	}
	if s.Gate == nil {
		return errors.New("admin service permission gate is required")
	}
	return nil
}

func (s *AdminService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func (s *AdminService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
