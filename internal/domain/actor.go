package domain

import "time"

type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

type Capability string

const (
	CapLicenseCreate Capability = "license:create"
	CapLicenseAssign Capability = "license:assign"
	CapLicenseRevoke Capability = "license:revoke"
	CapLicenseRebind Capability = "license:rebind"
	CapAuditRead     Capability = "audit:read"
	CapAdminManage   Capability = "admin:manage"
)

type Permissions struct {
	CanRevokeLicense bool `json:"canRevokeLicense"`
	CanManageDevices bool `json:"canManageDevices"`
	CanViewAuditLog  bool `json:"canViewAuditLog"`
}

// PermissionsPatch carries the flags an update touches; nil fields are left alone.
type PermissionsPatch struct {
	CanRevokeLicense *bool `json:"canRevokeLicense,omitempty"`
	CanManageDevices *bool `json:"canManageDevices,omitempty"`
	CanViewAuditLog  *bool `json:"canViewAuditLog,omitempty"`
}

func (p Permissions) Apply(patch PermissionsPatch) Permissions {
	if patch.CanRevokeLicense != nil {
		p.CanRevokeLicense = *patch.CanRevokeLicense
	}
	if patch.CanManageDevices != nil {
		p.CanManageDevices = *patch.CanManageDevices
	}
	if patch.CanViewAuditLog != nil {
		p.CanViewAuditLog = *patch.CanViewAuditLog
	}
	return p
}

// Actor is the authenticated caller of an administrative operation.
type Actor struct {
	ID          string
	Role        Role
	Permissions Permissions
}

func (a Actor) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}

type AdminUser struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	IsActive     bool
	Permissions  Permissions
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u AdminUser) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, Permissions: u.Permissions}
}
