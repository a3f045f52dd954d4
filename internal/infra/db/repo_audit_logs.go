package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"kioskguard/internal/domain"
	"kioskguard/internal/usecase"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Append inserts one row. Rows are never updated afterwards; the audit_logs_guard
// trigger rejects any change other than archiving.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if r.db == nil {
		return domain.AuditEntry{}, errDBUnavailable
	}
	if entry.Action == "" || entry.EntityID == "" || entry.ActorID == "" {
		return domain.AuditEntry{}, errors.New("audit action, entity id and actor are required")
	}
	if entry.ID == "" {
		entry.ID = newUUID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = utcNow()
	}
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("marshal audit details: %w", err)
	}
	model := AuditLogModel{
		ID:         entry.ID,
		Action:     string(entry.Action),
		Entity:     string(entry.Entity),
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID,
		Details:    details,
		IsArchived: entry.IsArchived,
		CreatedAt:  entry.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Omit("Seq").Create(&model).Error; err != nil {
		return domain.AuditEntry{}, classify("append audit log", err)
	}
	return entry, nil
}

type auditRow struct {
	AuditLogModel
	ActorEmail *string
}

// List returns entries newest first; seq breaks ties between rows written in
// the same microsecond.
func (r *AuditLogRepository) List(ctx context.Context, filter usecase.AuditFilter) ([]domain.AuditEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	q := r.db.WithContext(ctx).
		Table("audit_logs AS a").
		Select("a.*, u.email AS actor_email").
		Joins("LEFT JOIN users AS u ON u.id = a.actor_id")
	if !filter.IncludeArchived {
		q = q.Where("a.is_archived = ?", false)
	}
	if filter.EntityID != "" {
		q = q.Where("a.entity_id = ?", filter.EntityID)
	}
	q = q.Order("a.created_at DESC").Order("a.seq DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []auditRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, classify("list audit logs", err)
	}
	out := make([]domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := auditFromModel(row.AuditLogModel)
		if err != nil {
			return nil, err
		}
		if row.ActorEmail != nil {
			entry.ActorEmail = *row.ActorEmail
		}
		out = append(out, entry)
	}
	return out, nil
}

func auditFromModel(m AuditLogModel) (domain.AuditEntry, error) {
	details := map[string]any{}
	if len(m.Details) > 0 {
		if err := json.Unmarshal(m.Details, &details); err != nil {
			return domain.AuditEntry{}, &domain.StorageError{Op: "decode audit details", Err: err}
		}
	}
	return domain.AuditEntry{
		ID:         m.ID,
		Action:     domain.AuditAction(m.Action),
		Entity:     domain.AuditEntity(m.Entity),
		EntityID:   m.EntityID,
		ActorID:    m.ActorID,
		Details:    details,
		IsArchived: m.IsArchived,
		CreatedAt:  m.CreatedAt.UTC(),
	}, nil
}
