package http

import (
	"time"

	"kioskguard/internal/domain"
)

type validateRequest struct {
	LicenseKey        string `json:"licenseKey" binding:"required,max=128"`
	DeviceFingerprint string `json:"deviceFingerprint" binding:"omitempty,fingerprint"`
	// DeviceID is the field name older kiosk builds send.
	DeviceID string `json:"deviceId" binding:"omitempty,fingerprint"`
}

func (r validateRequest) fingerprint() string {
	if r.DeviceFingerprint != "" {
		return r.DeviceFingerprint
	}
	return r.DeviceID
}

type validateResponse struct {
	Valid     bool       `json:"valid"`
	LicenseID string     `json:"licenseId"`
	ExpiresAt *time.Time `json:"expiresAt"`
	Bound     bool       `json:"bound,omitempty"`
	Warning   string     `json:"warning,omitempty"`
	GraceDay  int        `json:"graceDay,omitempty"`
}

type createLicenseRequest struct {
	ExpiresAt *time.Time `json:"expiresAt"`
}

type assignRequest struct {
	Fingerprint string `json:"fingerprint" binding:"omitempty,fingerprint"`
	DeviceID    string `json:"deviceId" binding:"omitempty,fingerprint"`
	DeviceName  string `json:"deviceName" binding:"omitempty,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,max=254"`
	Password string `json:"password" binding:"required,max=72"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type createAdminRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Name     string `json:"name" binding:"max=128"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type statusRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

type deviceResponse struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
}

type licenseResponse struct {
	ID                 string          `json:"id"`
	Key                string          `json:"key"`
	Status             string          `json:"status"`
	ExpiresAt          *time.Time      `json:"expiresAt"`
	IssuerID           string          `json:"issuerId"`
	DeviceID           *string         `json:"deviceId"`
	MismatchDetectedAt *time.Time      `json:"mismatchDetectedAt"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	Device             *deviceResponse `json:"device,omitempty"`
}

type adminResponse struct {
	ID          string             `json:"id"`
	Email       string             `json:"email"`
	Name        string             `json:"name"`
	Role        string             `json:"role"`
	IsActive    bool               `json:"isActive"`
	Permissions domain.Permissions `json:"permissions"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

type auditResponse struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entityId"`
	ActorID    string         `json:"actorId"`
	ActorEmail string         `json:"actorEmail,omitempty"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func buildValidateResponse(r domain.ValidationResult) validateResponse {
	return validateResponse{
		Valid:     r.Valid,
		LicenseID: r.LicenseID,
		ExpiresAt: r.ExpiresAt,
		Bound:     r.Bound,
		Warning:   r.Warning,
		GraceDay:  r.GraceDay,
	}
}

func buildLicenseResponse(l domain.License, device *domain.Device) licenseResponse {
	out := licenseResponse{
		ID:                 l.ID,
		Key:                l.Key,
		Status:             string(l.Status),
		ExpiresAt:          l.ExpiresAt,
		IssuerID:           l.IssuerID,
		DeviceID:           l.DeviceID,
		MismatchDetectedAt: l.MismatchDetectedAt,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
	if device != nil {
		out.Device = &deviceResponse{
			ID:          device.ID,
			Fingerprint: device.Fingerprint,
			Name:        device.Name,
			CreatedAt:   device.CreatedAt,
		}
	}
	return out
}

func buildAdminResponse(u domain.AdminUser) adminResponse {
	return adminResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        string(u.Role),
		IsActive:    u.IsActive,
		Permissions: u.Permissions,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func buildAuditResponse(e domain.AuditEntry) auditResponse {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return auditResponse{
		ID:         e.ID,
		Action:     string(e.Action),
		Entity:     string(e.Entity),
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		ActorEmail: e.ActorEmail,
		Details:    details,
		CreatedAt:  e.CreatedAt,
	}
}
