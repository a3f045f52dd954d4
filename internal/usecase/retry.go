package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kioskguard/internal/domain"
)

const DefaultTxAttempts = 3

var retryBackoff = 15 * time.Millisecond

// runTx runs fn in a transaction and re-runs the whole unit when the store
// reports a lost race. After maxAttempts conflicts the last one is returned as a
// storage error.
func runTx(ctx context.Context, store Store, op string, maxAttempts int, observer Observer, fn func(repos Repositories) error) error {
	if store == nil {
		return errors.New("store is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultTxAttempts
	}
	if observer == nil {
		observer = nopObserver{}
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		observer.ObserveRetry(op)
		select {
		case <-ctx.Done():
			return &domain.StorageError{Op: op, Err: ctx.Err()}
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return &domain.StorageError{Op: op, Err: fmt.Errorf("gave up after %d attempts: %v", maxAttempts, lastErr)}
}
