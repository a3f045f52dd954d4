package db

import "time"

type UserModel struct {
	ID           string    `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	IsActive     bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`

	Permission *AdminPermissionModel `gorm:"foreignKey:UserID;references:ID"`
}

func (UserModel) TableName() string { return "users" }

type AdminPermissionModel struct {
	UserID           string    `gorm:"type:uuid;primaryKey"`
	CanRevokeLicense bool      `gorm:"not null"`
	CanManageDevices bool      `gorm:"not null"`
	CanViewAuditLog  bool      `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (AdminPermissionModel) TableName() string { return "admin_permissions" }

type DeviceModel struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	Fingerprint string    `gorm:"uniqueIndex;not null"`
	Name        string    `gorm:"not null"`
	IsArchived  bool      `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (DeviceModel) TableName() string { return "devices" }

type LicenseModel struct {
	ID                 string `gorm:"type:uuid;primaryKey"`
	Key                string `gorm:"uniqueIndex;not null"`
	Status             string `gorm:"not null"`
	ExpiresAt          *time.Time
	IssuerID           string  `gorm:"type:uuid;index;not null"`
	DeviceID           *string `gorm:"type:uuid;index"`
	MismatchDetectedAt *time.Time
	IsArchived         bool      `gorm:"not null"`
	Version            int64     `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`

	Device *DeviceModel `gorm:"foreignKey:DeviceID;references:ID"`
}

func (LicenseModel) TableName() string { return "licenses" }

type AuditLogModel struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	Seq        int64     `gorm:"->;autoIncrement"`
	Action     string    `gorm:"not null"`
	Entity     string    `gorm:"not null"`
	EntityID   string    `gorm:"index;not null"`
	ActorID    string    `gorm:"type:uuid;not null"`
	Details    []byte    `gorm:"type:jsonb;not null"`
	IsArchived bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (AuditLogModel) TableName() string { return "audit_logs" }
