// Package ratelimit provides fixed-window limiters for the validation endpoint.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrCapacity is returned by the memory limiter when it tracks too many keys.
var ErrCapacity = errors.New("rate limiter capacity exceeded")

const keyPrefix = "kioskguard:rl:"

// BucketKey derives the counter key for a scope and subject. Subjects are
// hashed so raw license keys never reach the backing store.
func BucketKey(scope, subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return keyPrefix + scope + ":" + hex.EncodeToString(sum[:12])
}
