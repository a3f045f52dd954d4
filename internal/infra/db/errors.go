package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"kioskguard/internal/domain"
)

// Postgres codes that mean a concurrent writer won; the unit of work can be
// retried from the start.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

var passthrough = []error{
	domain.ErrNotFound,
	domain.ErrConflict,
	domain.ErrStorage,
	domain.ErrLicenseInactive,
	domain.ErrLicenseExpired,
	domain.ErrDeviceMismatch,
	domain.ErrAlreadyBound,
	domain.ErrAlreadyExists,
	domain.ErrInsufficientPermission,
	domain.ErrForbiddenModification,
	domain.ErrInvalidArgument,
	domain.ErrUnauthorized,
}

// classify maps driver errors onto domain errors. Domain errors pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range passthrough {
		if errors.Is(err, target) {
			return err
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrConflict, err)
		}
	}
	return &domain.StorageError{Op: op, Err: err}
}
