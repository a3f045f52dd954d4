package domain

import "time"

type AuditAction string

const (
	AuditLicenseCreated          AuditAction = "LICENSE_CREATED"
	AuditLicenseAssigned         AuditAction = "LICENSE_ASSIGNED"
	AuditLicenseRevoked          AuditAction = "LICENSE_REVOKED"
	AuditLicenseBound            AuditAction = "LICENSE_BOUND"
	AuditLicenseMismatchGrace    AuditAction = "LICENSE_MISMATCH_GRACE"
	AuditLicenseMismatchBlocked  AuditAction = "LICENSE_MISMATCH_BLOCKED"
	AuditLicenseDeviceRebound    AuditAction = "LICENSE_DEVICE_REBOUND"
	AuditAdminCreated            AuditAction = "ADMIN_CREATED"
	AuditAdminPermissionsUpdated AuditAction = "ADMIN_PERMISSIONS_UPDATED"
	AuditAdminStatusChanged      AuditAction = "ADMIN_STATUS_CHANGED"
	AuditBootstrapSuperAdmin     AuditAction = "BOOTSTRAP_SUPER_ADMIN"
)

type AuditEntity string

const (
	AuditEntityLicense         AuditEntity = "License"
	AuditEntityUser            AuditEntity = "User"
	AuditEntityAdminPermission AuditEntity = "AdminPermission"
)

type AuditEntry struct {
	ID         string
	Action     AuditAction
	Entity     AuditEntity
	EntityID   string
	ActorID    string
	ActorEmail string
	Details    map[string]any
	IsArchived bool
	CreatedAt  time.Time
}
