package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var errDBUnavailable = errors.New("db unavailable")

func newUUID() string {
	return uuid.NewString()
}

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := t.UTC().Truncate(time.Microsecond)
	return &out
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// isUUID guards uuid columns from malformed ids, which postgres would reject
// with an error instead of an empty result.
func isUUID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}
