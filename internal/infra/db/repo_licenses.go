package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kioskguard/internal/domain"
	"kioskguard/internal/usecase"
)

type LicenseRepository struct {
	db *gorm.DB
}

func NewLicenseRepository(db *gorm.DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

func (r *LicenseRepository) Create(ctx context.Context, license domain.License) (domain.License, error) {
	if r.db == nil {
		return domain.License{}, errDBUnavailable
	}
	if license.Key == "" || license.IssuerID == "" {
		return domain.License{}, errors.New("license key and issuer are required")
	}
	if license.ID == "" {
		license.ID = newUUID()
	}
	if license.Status == "" {
		license.Status = domain.LicenseActive
	}
	if license.CreatedAt.IsZero() {
		license.CreatedAt = utcNow()
	}
	license.CreatedAt = license.CreatedAt.UTC().Truncate(time.Microsecond)
	license.UpdatedAt = license.CreatedAt
	license.ExpiresAt = utcPtr(license.ExpiresAt)
	license.Version = 1

	model := licenseModelFromDomain(license)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.License{}, classify("create license", err)
	}
	return licenseFromModel(model), nil
}

func (r *LicenseRepository) GetByID(ctx context.Context, id string) (domain.License, error) {
	if !isUUID(id) {
		return domain.License{}, domain.ErrNotFound
	}
	return r.first(ctx, r.db, "id = ?", id)
}

func (r *LicenseRepository) GetByIDForUpdate(ctx context.Context, id string) (domain.License, error) {
	if r.db == nil {
		return domain.License{}, errDBUnavailable
	}
	if !isUUID(id) {
		return domain.License{}, domain.ErrNotFound
	}
	return r.first(ctx, r.db.Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func (r *LicenseRepository) GetByKeyForUpdate(ctx context.Context, key string) (domain.License, error) {
	if r.db == nil {
		return domain.License{}, errDBUnavailable
	}
	return r.first(ctx, r.db.Clauses(clause.Locking{Strength: "UPDATE"}), "key = ?", key)
}

func (r *LicenseRepository) first(ctx context.Context, q *gorm.DB, where string, arg string) (domain.License, error) {
	if q == nil {
		return domain.License{}, errDBUnavailable
	}
	var model LicenseModel
	if err := q.WithContext(ctx).Where(where, arg).First(&model).Error; err != nil {
		return domain.License{}, classify("get license", err)
	}
	return licenseFromModel(model), nil
}

// Update writes the mutable columns guarded by the version the caller read.
func (r *LicenseRepository) Update(ctx context.Context, license domain.License) (domain.License, error) {
	if r.db == nil {
		return domain.License{}, errDBUnavailable
	}
	now := utcNow()
	res := r.db.WithContext(ctx).
		Model(&LicenseModel{}).
		Where("id = ? AND version = ?", license.ID, license.Version).
		Updates(map[string]any{
			"status":               string(license.Status),
			"device_id":            copyString(license.DeviceID),
			"mismatch_detected_at": utcPtr(license.MismatchDetectedAt),
			"version":              gorm.Expr("version + 1"),
			"updated_at":           now,
		})
	if res.Error != nil {
		return domain.License{}, classify("update license", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, license.ID); err != nil {
			return domain.License{}, err
		}
		return domain.License{}, domain.ErrConflict
	}
	license.Version++
	license.UpdatedAt = now
	license.DeviceID = copyString(license.DeviceID)
	license.MismatchDetectedAt = utcPtr(license.MismatchDetectedAt)
	return license, nil
}

func (r *LicenseRepository) List(ctx context.Context, filter usecase.LicenseFilter) ([]domain.LicenseView, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	q := r.db.WithContext(ctx).Preload("Device")
	if !filter.IncludeArchived {
		q = q.Where("is_archived = ?", false)
	}
	if filter.IssuerID != "" {
		q = q.Where("issuer_id = ?", filter.IssuerID)
	}
	var models []LicenseModel
	if err := q.Order("created_at DESC").Order("id").Find(&models).Error; err != nil {
		return nil, classify("list licenses", err)
	}
	out := make([]domain.LicenseView, 0, len(models))
	for _, m := range models {
		view := domain.LicenseView{License: licenseFromModel(m)}
		if m.Device != nil {
			d := deviceFromModel(*m.Device)
			view.Device = &d
		}
		out = append(out, view)
	}
	return out, nil
}

func licenseModelFromDomain(l domain.License) LicenseModel {
	return LicenseModel{
		ID:                 l.ID,
		Key:                l.Key,
		Status:             string(l.Status),
		ExpiresAt:          l.ExpiresAt,
		IssuerID:           l.IssuerID,
		DeviceID:           copyString(l.DeviceID),
		MismatchDetectedAt: l.MismatchDetectedAt,
		IsArchived:         l.IsArchived,
		Version:            l.Version,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
}

func licenseFromModel(m LicenseModel) domain.License {
	return domain.License{
		ID:                 m.ID,
		Key:                m.Key,
		Status:             domain.LicenseStatus(m.Status),
		ExpiresAt:          utcPtr(m.ExpiresAt),
		IssuerID:           m.IssuerID,
		DeviceID:           copyString(m.DeviceID),
		MismatchDetectedAt: utcPtr(m.MismatchDetectedAt),
		IsArchived:         m.IsArchived,
		Version:            m.Version,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
}
