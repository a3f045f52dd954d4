package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"time"

	"kioskguard/internal/domain"
)

type LicenseService struct {
	Store       Store
	Gate        *PermissionGate
	Devices     DeviceRegistry
	Clock       Clock
	MaxAttempts int
	Observer    Observer
	// Random feeds key generation; crypto/rand when nil.
	Random io.Reader
}

func NewLicenseService(store Store, gate *PermissionGate, clock Clock) *LicenseService {
	return &LicenseService{
		Store:       store,
		Gate:        gate,
		Clock:       clock,
		MaxAttempts: DefaultTxAttempts,
	}
}

// GenerateLicenseKey returns LicenseKeyBytes random bytes as uppercase hex.
func GenerateLicenseKey(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, domain.LicenseKeyBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// CreateLicense mints an ACTIVE, unbound license issued by actor. A key
// collision surfaces as a conflict and the whole unit is retried with a new key.
func (s *LicenseService) CreateLicense(ctx context.Context, actor domain.Actor, expiresAt *time.Time) (domain.License, error) {
	if err := s.check(); err != nil {
		return domain.License{}, err
	}
	if err := s.Gate.Authorize(ctx, actor, domain.CapLicenseCreate); err != nil {
		return domain.License{}, err
	}
	var created domain.License
	err := runTx(ctx, s.Store, "create_license", s.MaxAttempts, s.Observer, func(repos Repositories) error {
		key, err := GenerateLicenseKey(s.Random)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		var expiry *time.Time
		if expiresAt != nil {
			t := expiresAt.UTC()
			expiry = &t
		}
		created, err = repos.Licenses().Create(ctx, domain.License{
			Key:       key,
			Status:    domain.LicenseActive,
			ExpiresAt: expiry,
			IssuerID:  actor.ID,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		details := map[string]any{"key": created.Key, "expiresAt": nil}
		if created.ExpiresAt != nil {
			details["expiresAt"] = created.ExpiresAt.Format(time.RFC3339)
		}
		_, err = (AuditTrail{}).Append(ctx, repos.Audit(), domain.AuditEntry{
			Action:    domain.AuditLicenseCreated,
			Entity:    domain.AuditEntityLicense,
			EntityID:  created.ID,
			ActorID:   actor.ID,
			Details:   details,
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return domain.License{}, err
	}
	return created, nil
}

// AssignLicense binds an unbound ACTIVE license to the device with fingerprint.
func (s *LicenseService) AssignLicense(ctx context.Context, actor domain.Actor, licenseID, fingerprint, deviceName string) (domain.LicenseView, error) {
	if err := s.check(); err != nil {
		return domain.LicenseView{}, err
	}
	if err := s.Gate.Authorize(ctx, actor, domain.CapLicenseAssign); err != nil {
		return domain.LicenseView{}, err
	}
	if strings.TrimSpace(licenseID) == "" || strings.TrimSpace(fingerprint) == "" {
		return domain.LicenseView{}, domain.ErrInvalidArgument
	}
	var view domain.LicenseView
	err := runTx(ctx, s.Store, "assign_license", s.MaxAttempts, s.Observer, func(repos Repositories) error {
		license, err := repos.Licenses().GetByIDForUpdate(ctx, licenseID)
		if err != nil {
			return err
		}
		if license.Status != domain.LicenseActive {
			return domain.ErrLicenseInactive
		}
		if license.IsBound() {
			return domain.ErrAlreadyBound
		}
		device, err := s.Devices.GetOrCreate(ctx, repos.Devices(), fingerprint, deviceName)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		license.DeviceID = &device.ID
		license.MismatchDetectedAt = nil
		updated, err := repos.Licenses().Update(ctx, license)
		if err != nil {
			return err
		}
		if _, err := (AuditTrail{}).Append(ctx, repos.Audit(), domain.AuditEntry{
			Action:   domain.AuditLicenseAssigned,
			Entity:   domain.AuditEntityLicense,
			EntityID: license.ID,
			ActorID:  actor.ID,
			Details: map[string]any{
				"deviceId":    device.ID,
				"fingerprint": device.Fingerprint,
			},
			CreatedAt: now,
		}); err != nil {
			return err
		}
		view = domain.LicenseView{License: updated, Device: &device}
		return nil
	})
	if err != nil {
		return domain.LicenseView{}, err
	}
	return view, nil
}

// RevokeLicense marks the license REVOKED. Repeat calls succeed and are audited.
func (s *LicenseService) RevokeLicense(ctx context.Context, actor domain.Actor, licenseID string) (domain.License, error) {
	if err := s.check(); err != nil {
		return domain.License{}, err
	}
	if err := s.Gate.Authorize(ctx, actor, domain.CapLicenseRevoke); err != nil {
		return domain.License{}, err
	}
	var revoked domain.License
	err := runTx(ctx, s.Store, "revoke_license", s.MaxAttempts, s.Observer, func(repos Repositories) error {
		license, err := repos.Licenses().GetByIDForUpdate(ctx, licenseID)
		if err != nil {
			return err
		}
		previous := license.Status
		license.Status = domain.LicenseRevoked
		revoked, err = repos.Licenses().Update(ctx, license)
		if err != nil {
			return err
		}
		_, err = (AuditTrail{}).Append(ctx, repos.Audit(), domain.AuditEntry{
			Action:    domain.AuditLicenseRevoked,
			Entity:    domain.AuditEntityLicense,
			EntityID:  license.ID,
			ActorID:   actor.ID,
			Details:   map[string]any{"previousStatus": string(previous)},
			CreatedAt: s.now().UTC(),
		})
		return err
	})
	if err != nil {
		return domain.License{}, err
	}
	return revoked, nil
}

// RebindDevice clears the binding and the grace clock so the next validating
// device binds afresh.
func (s *LicenseService) RebindDevice(ctx context.Context, actor domain.Actor, licenseID string) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.Gate.Authorize(ctx, actor, domain.CapLicenseRebind); err != nil {
		return err
	}
	return runTx(ctx, s.Store, "rebind_license", s.MaxAttempts, s.Observer, func(repos Repositories) error {
		license, err := repos.Licenses().GetByIDForUpdate(ctx, licenseID)
		if err != nil {
			return err
		}
		var previous any
		if license.DeviceID != nil {
			previous = *license.DeviceID
		}
		license.DeviceID = nil
		license.MismatchDetectedAt = nil
		if _, err := repos.Licenses().Update(ctx, license); err != nil {
			return err
		}
		_, err = (AuditTrail{}).Append(ctx, repos.Audit(), domain.AuditEntry{
			Action:   domain.AuditLicenseDeviceRebound,
			Entity:   domain.AuditEntityLicense,
			EntityID: license.ID,
			ActorID:  actor.ID,
			Details: map[string]any{
				"previousDeviceId": previous,
				"message":          "Device binding cleared by admin",
			},
			CreatedAt: s.now().UTC(),
		})
		return err
	})
}

// FindAll lists non-archived licenses visible to actor: everything for a super
// admin, the actor's own issues otherwise.
func (s *LicenseService) FindAll(ctx context.Context, actor domain.Actor) ([]domain.LicenseView, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if actor.ID == "" || !actor.Role.Valid() {
		return nil, domain.ErrUnauthorized
	}
	filter := LicenseFilter{}
	if !actor.IsSuperAdmin() {
		filter.IssuerID = actor.ID
	}
	return s.Store.Licenses().List(ctx, filter)
}

func (s *LicenseService) GetLicense(ctx context.Context, actor domain.Actor, licenseID string) (domain.LicenseView, error) {
	if err := s.check(); err != nil {
		return domain.LicenseView{}, err
	}
	if actor.ID == "" || !actor.Role.Valid() {
		return domain.LicenseView{}, domain.ErrUnauthorized
	}
	license, err := s.Store.Licenses().GetByID(ctx, licenseID)
	if err != nil {
		return domain.LicenseView{}, err
	}
	// Hidden licenses read as missing rather than forbidden.
	if license.IsArchived || (!actor.IsSuperAdmin() && license.IssuerID != actor.ID) {
		return domain.LicenseView{}, domain.ErrNotFound
	}
	view := domain.LicenseView{License: license}
	if license.IsBound() {
		device, err := s.Store.Devices().GetByID(ctx, *license.DeviceID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.LicenseView{}, err
		}
		if err == nil {
			view.Device = &device
		}
	}
	return view, nil
}

func (s *LicenseService) check() error {
	if s == nil || s.Store == nil {
		return errors.New("license service store is required")
	}
	if s.Gate == nil {
		return errors.New("license service permission gate is required")
	}
	return nil
}

func (s *LicenseService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}
