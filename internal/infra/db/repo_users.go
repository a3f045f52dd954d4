package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kioskguard/internal/domain"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user and, for ADMIN accounts, its permission row.
func (r *UserRepository) Create(ctx context.Context, user domain.AdminUser) (domain.AdminUser, error) {
	if r.db == nil {
		return domain.AdminUser{}, errDBUnavailable
	}
	if user.Email == "" || user.PasswordHash == "" || !user.Role.Valid() {
		return domain.AdminUser{}, errors.New("user email, password hash and role are required")
	}
	if user.ID == "" {
		user.ID = newUUID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = utcNow()
	}
	user.CreatedAt = *utcPtr(&user.CreatedAt)
	user.UpdatedAt = user.CreatedAt

	model := UserModel{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		IsActive:     user.IsActive,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&model).Error; err != nil {
			return err
		}
		if user.Role != domain.RoleAdmin {
			return nil
		}
		perm := permissionModel(user.ID, user.Permissions, user.CreatedAt)
		return tx.Create(&perm).Error
	})
	if err != nil {
		return domain.AdminUser{}, classify("create user", err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (domain.AdminUser, error) {
	if !isUUID(id) {
		return domain.AdminUser{}, domain.ErrNotFound
	}
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (domain.AdminUser, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepository) FirstByRole(ctx context.Context, role domain.Role) (domain.AdminUser, error) {
	return r.first(ctx, "role = ?", string(role))
}

func (r *UserRepository) first(ctx context.Context, where string, arg string) (domain.AdminUser, error) {
	if r.db == nil {
		return domain.AdminUser{}, errDBUnavailable
	}
	var model UserModel
	err := r.db.WithContext(ctx).
		Preload("Permission").
		Where(where, arg).
		Order("created_at").
		Order("id").
		First(&model).Error
	if err != nil {
		return domain.AdminUser{}, classify("get user", err)
	}
	return userFromModel(model), nil
}

func (r *UserRepository) ListByRole(ctx context.Context, role domain.Role) ([]domain.AdminUser, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []UserModel
	err := r.db.WithContext(ctx).
		Preload("Permission").
		Where("role = ?", string(role)).
		Order("created_at").
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, classify("list users", err)
	}
	out := make([]domain.AdminUser, 0, len(models))
	for _, m := range models {
		out = append(out, userFromModel(m))
	}
	return out, nil
}

// UpdatePermissions upserts the permission row of an ADMIN.
func (r *UserRepository) UpdatePermissions(ctx context.Context, userID string, perms domain.Permissions) (domain.AdminUser, error) {
	if r.db == nil {
		return domain.AdminUser{}, errDBUnavailable
	}
	if _, err := r.GetByID(ctx, userID); err != nil {
		return domain.AdminUser{}, err
	}
	now := utcNow()
	perm := permissionModel(userID, perms, now)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"can_revoke_license", "can_manage_devices", "can_view_audit_log", "updated_at"}),
		}).
		Create(&perm).Error
	if err != nil {
		return domain.AdminUser{}, classify("update permissions", err)
	}
	if err := r.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", userID).Update("updated_at", now).Error; err != nil {
		return domain.AdminUser{}, classify("update permissions", err)
	}
	return r.GetByID(ctx, userID)
}

func (r *UserRepository) UpdateStatus(ctx context.Context, userID string, active bool) (domain.AdminUser, error) {
	if r.db == nil {
		return domain.AdminUser{}, errDBUnavailable
	}
	if !isUUID(userID) {
		return domain.AdminUser{}, domain.ErrNotFound
	}
	res := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]any{"is_active": active, "updated_at": utcNow()})
	if res.Error != nil {
		return domain.AdminUser{}, classify("update user status", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.AdminUser{}, domain.ErrNotFound
	}
	return r.GetByID(ctx, userID)
}

func permissionModel(userID string, perms domain.Permissions, at time.Time) AdminPermissionModel {
	return AdminPermissionModel{
		UserID:           userID,
		CanRevokeLicense: perms.CanRevokeLicense,
		CanManageDevices: perms.CanManageDevices,
		CanViewAuditLog:  perms.CanViewAuditLog,
		UpdatedAt:        at,
	}
}

func userFromModel(m UserModel) domain.AdminUser {
	user := domain.AdminUser{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Role:         domain.Role(m.Role),
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
	if m.Permission != nil {
		user.Permissions = domain.Permissions{
			CanRevokeLicense: m.Permission.CanRevokeLicense,
			CanManageDevices: m.Permission.CanManageDevices,
			CanViewAuditLog:  m.Permission.CanViewAuditLog,
		}
	}
	return user
}
