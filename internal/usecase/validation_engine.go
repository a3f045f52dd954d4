package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"kioskguard/internal/domain"
)

const GraceWarning = "Device Mismatch - Grace Period"

// Validation outcomes reported to the Observer.
const (
	OutcomeValid        = "valid"
	OutcomeBound        = "bound"
	OutcomeGrace        = "grace"
	OutcomeBlocked      = "blocked"
	OutcomeNotFound     = "not_found"
	OutcomeInactive     = "inactive"
	OutcomeExpired      = "expired"
	OutcomeStorageError = "error"
)

type ValidationEngine struct {
	Store       Store
	Devices     DeviceRegistry
	Clock       Clock
	GraceDays   int
	MaxAttempts int
	Observer    Observer
	Logger      *slog.Logger
}

func NewValidationEngine(store Store, clock Clock) *ValidationEngine {
	return &ValidationEngine{
		Store:       store,
		Clock:       clock,
		GraceDays:   domain.GraceDays,
		MaxAttempts: DefaultTxAttempts,
	}
}

// Validate decides whether the device identified by fingerprint may run under
// licenseKey. The whole decision runs under a row lock on the license.
func (e *ValidationEngine) Validate(ctx context.Context, licenseKey, fingerprint string) (domain.ValidationResult, error) {
	if e == nil || e.Store == nil {
		return domain.ValidationResult{}, errors.New("validation engine store is required")
	}
	licenseKey = strings.TrimSpace(licenseKey)
	fingerprint = strings.TrimSpace(fingerprint)
	if licenseKey == "" || fingerprint == "" {
		return domain.ValidationResult{}, domain.ErrInvalidArgument
	}

	var (
		result  domain.ValidationResult
		outcome string
		denial  error
	)
	err := runTx(ctx, e.Store, "validate", e.MaxAttempts, e.Observer, func(repos Repositories) error {
		result, outcome, denial = domain.ValidationResult{}, "", nil
		now := e.now().UTC()

		license, err := repos.Licenses().GetByKeyForUpdate(ctx, licenseKey)
		if err != nil {
			return err
		}
		if license.Status != domain.LicenseActive {
			return domain.ErrLicenseInactive
		}
		if license.ExpiredAt(now) {
			return domain.ErrLicenseExpired
		}

		result = domain.ValidationResult{
			Valid:     true,
			LicenseID: license.ID,
			ExpiresAt: license.ExpiresAt,
		}

		if !license.IsBound() {
			device, err := e.Devices.GetOrCreate(ctx, repos.Devices(), fingerprint, "")
			if err != nil {
				return err
			}
			license.DeviceID = &device.ID
			license.MismatchDetectedAt = nil
			if _, err := repos.Licenses().Update(ctx, license); err != nil {
				return err
			}
			if _, err := (AuditTrail{}).Append(ctx, repos.Audit(), domain.AuditEntry{
				Action:   domain.AuditLicenseBound,
				Entity:   domain.AuditEntityLicense,
				EntityID: license.ID,
				ActorID:  license.IssuerID,
				Details: map[string]any{
					"deviceId":    device.ID,
					"fingerprint": device.Fingerprint,
				},
				CreatedAt: now,
			}); err != nil {
				return err
			}
			result.Bound = true
			outcome = OutcomeBound
			return nil
		}

		bound, err := repos.Devices().GetByID(ctx, *license.DeviceID)
		if err != nil {
			return err
		}
		if bound.Fingerprint == fingerprint {
			if license.MismatchDetectedAt != nil {
				license.MismatchDetectedAt = nil
				if _, err := repos.Licenses().Update(ctx, license); err != nil {
					return err
				}
			}
			outcome = OutcomeValid
			return nil
		}

		if license.MismatchDetectedAt == nil {
			detected := now
			license.MismatchDetectedAt = &detected
			if _, err := repos.Licenses().Update(ctx, license); err != nil {
				return err
			}
		}
		graceDay := domain.GraceDay(*license.MismatchDetectedAt, now)
		allowed := graceDay <= e.graceDays()
		action := domain.AuditLicenseMismatchGrace
		if !allowed {
			action = domain.AuditLicenseMismatchBlocked
		}
		if _, err := (AuditTrail{}).Append(ctx, repos.Audit(), domain.AuditEntry{
			Action:   action,
			Entity:   domain.AuditEntityLicense,
			EntityID: license.ID,
			ActorID:  license.IssuerID,
			Details: map[string]any{
				"expected": bound.Fingerprint,
				"received": fingerprint,
				"graceDay": graceDay,
				"allowed":  allowed,
			},
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if !allowed {
			// The blocked entry must commit, so the denial travels outside the tx.
			outcome = OutcomeBlocked
			result = domain.ValidationResult{}
			denial = &domain.MismatchError{
				LicenseID: license.ID,
				Expected:  bound.Fingerprint,
				Received:  fingerprint,
				GraceDay:  graceDay,
			}
			return nil
		}
		result.Warning = GraceWarning
		result.GraceDay = graceDay
		outcome = OutcomeGrace
		return nil
	})

	if err != nil {
		e.observer().ObserveValidation(failureOutcome(err))
		return domain.ValidationResult{}, err
	}
	e.observer().ObserveValidation(outcome)
	switch outcome {
	case OutcomeGrace:
		e.logger().Warn("license mismatch allowed",
			"license_id", result.LicenseID,
			"grace_day", result.GraceDay,
			"grace_days", e.graceDays())
	case OutcomeBlocked:
		e.logger().Warn("license mismatch blocked", "error", denial)
	}
	if denial != nil {
		return domain.ValidationResult{}, denial
	}
	return result, nil
}

func failureOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrLicenseInactive):
		return OutcomeInactive
	case errors.Is(err, domain.ErrLicenseExpired):
		return OutcomeExpired
	}
	return OutcomeStorageError
}

func (e *ValidationEngine) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

func (e *ValidationEngine) graceDays() int {
	if e.GraceDays <= 0 {
		return domain.GraceDays
	}
	return e.GraceDays
}

func (e *ValidationEngine) observer() Observer {
	if e.Observer == nil {
		return nopObserver{}
	}
	return e.Observer
}

func (e *ValidationEngine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
