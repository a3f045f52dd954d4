package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kioskguard/internal/domain"
)

type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// GetOrCreate inserts with ON CONFLICT DO NOTHING and re-reads, so concurrent
// callers for the same fingerprint end up with the same row.
func (r *DeviceRepository) GetOrCreate(ctx context.Context, fingerprint, name string) (domain.Device, bool, error) {
	if r.db == nil {
		return domain.Device{}, false, errDBUnavailable
	}
	if fingerprint == "" {
		return domain.Device{}, false, errors.New("fingerprint is required")
	}
	now := utcNow()
	model := DeviceModel{
		ID:          newUUID(),
		Fingerprint: fingerprint,
		Name:        name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "fingerprint"}}, DoNothing: true}).
		Create(&model)
	if res.Error != nil {
		return domain.Device{}, false, classify("create device", res.Error)
	}
	if res.RowsAffected == 1 {
		return deviceFromModel(model), true, nil
	}
	var existing DeviceModel
	if err := r.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&existing).Error; err != nil {
		return domain.Device{}, false, classify("get device", err)
	}
	return deviceFromModel(existing), false, nil
}

func (r *DeviceRepository) GetByID(ctx context.Context, id string) (domain.Device, error) {
	if r.db == nil {
		return domain.Device{}, errDBUnavailable
	}
	if !isUUID(id) {
		return domain.Device{}, domain.ErrNotFound
	}
	var model DeviceModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return domain.Device{}, classify("get device", err)
	}
	return deviceFromModel(model), nil
}

func deviceFromModel(m DeviceModel) domain.Device {
	return domain.Device{
		ID:          m.ID,
		Fingerprint: m.Fingerprint,
		Name:        m.Name,
		IsArchived:  m.IsArchived,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}
