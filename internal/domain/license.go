package domain

import (
	"time"
)

type LicenseStatus string

const (
	LicenseActive  LicenseStatus = "ACTIVE"
	LicenseRevoked LicenseStatus = "REVOKED"
	LicenseExpired LicenseStatus = "EXPIRED"
)

func (s LicenseStatus) Valid() bool {
	switch s {
	case LicenseActive, LicenseRevoked, LicenseExpired:
		return true
	}
	return false
}

// GraceDays is how many started days a mismatched device may keep running.
const GraceDays = 7

// LicenseKeyBytes is the number of random bytes behind a license key.
const LicenseKeyBytes = 16

type License struct {
	ID                 string
	Key                string
	Status             LicenseStatus
	ExpiresAt          *time.Time
	IssuerID           string
	DeviceID           *string
	MismatchDetectedAt *time.Time
	IsArchived         bool
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (l License) IsBound() bool {
	return l.DeviceID != nil && *l.DeviceID != ""
}

func (l License) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// LicenseView is a license joined with its bound device for listings.
type LicenseView struct {
	License
	Device *Device
}

type Device struct {
	ID          string
	Fingerprint string
	Name        string
	IsArchived  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DefaultDeviceName derives the display label used when no hint is supplied.
func DefaultDeviceName(fingerprint string) string {
	prefix := fingerprint
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return "Device-" + prefix
}

// GraceDay returns the 1-based day of the grace window that now falls in.
// A mismatch detected at exactly now is day 1.
func GraceDay(detectedAt, now time.Time) int {
	elapsed := now.Sub(detectedAt)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	day := int(elapsed / (24 * time.Hour))
	if elapsed%(24*time.Hour) != 0 || day == 0 {
		day++
	}
	return day
}

type ValidationResult struct {
	Valid     bool
	LicenseID string
	ExpiresAt *time.Time
	Bound     bool
	Warning   string
	GraceDay  int
}
