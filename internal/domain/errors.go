package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrNotFound               = errors.New("not found")
	ErrLicenseInactive        = errors.New("license inactive")
	ErrLicenseExpired         = errors.New("license expired")
	ErrDeviceMismatch         = errors.New("device mismatch")
	ErrAlreadyBound           = errors.New("license already bound")
	ErrAlreadyExists          = errors.New("already exists")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrForbiddenModification  = errors.New("forbidden modification")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrConflict               = errors.New("conflict")
	ErrStorage                = errors.New("storage error")
)

// MismatchError is returned once the grace period for a swapped device has run out.
type MismatchError struct {
	LicenseID string
	Expected  string
	Received  string
	GraceDay  int
}

func (e *MismatchError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("device mismatch on license %s: grace day %d exceeded", e.LicenseID, e.GraceDay)
}

func (e *MismatchError) Unwrap() error {
	return ErrDeviceMismatch
}

// DeniedError carries the policy reason behind ErrInsufficientPermission.
type DeniedError struct {
	Capability Capability
	Reason     string
}

func (e *DeniedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason == "" {
		return fmt.Sprintf("insufficient permission for %s", e.Capability)
	}
	return fmt.Sprintf("insufficient permission for %s: %s", e.Capability, e.Reason)
}

func (e *DeniedError) Unwrap() error {
	return ErrInsufficientPermission
}

// StorageError marks a transactional failure. Callers may retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Op + ": storage error"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() []error {
	if e == nil {
		return nil
	}
	return []error{ErrStorage, e.Err}
}
