package ratelimit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMemoryLimiter_WindowResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryConfig{Now: func() time.Time { return now }})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := limiter.Allow(ctx, "k", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !d.Allowed || d.Remaining != 2-i {
			t.Fatalf("hit %d: unexpected decision %+v", i, d)
		}
	}
	d, err := limiter.Allow(ctx, "k", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed || d.Remaining != 0 || !d.ResetAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected denial until window end, got %+v", d)
	}

	now = now.Add(time.Minute + time.Second)
	d, err = limiter.Allow(ctx, "k", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !d.Allowed || d.Remaining != 2 {
		t.Fatalf("expected fresh window, got %+v", d)
	}
}

func TestMemoryLimiter_DisabledLimit(t *testing.T) {
	limiter := NewMemoryLimiter(MemoryConfig{})
	d, err := limiter.Allow(context.Background(), "k", 0, time.Minute)
	if err != nil || !d.Allowed {
		t.Fatalf("expected zero limit to allow, got %+v %v", d, err)
	}
	if limiter.Len() != 0 {
		t.Fatal("zero limit should not track keys")
	}
}

func TestMemoryLimiter_Capacity(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryConfig{Now: func() time.Time { return now }, MaxKeys: 2})
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		if _, err := limiter.Allow(ctx, key, 1, time.Minute); err != nil {
			t.Fatalf("allow %s: %v", key, err)
		}
	}
	if _, err := limiter.Allow(ctx, "c", 1, time.Minute); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := limiter.Allow(ctx, "c", 1, time.Minute); err != nil {
		t.Fatalf("expected expired keys to be swept, got %v", err)
	}
	if limiter.Len() != 1 {
		t.Fatalf("expected one tracked key, got %d", limiter.Len())
	}
}

func TestBucketKey(t *testing.T) {
	key := BucketKey("validate", "0123456789ABCDEF0123456789ABCDEF")
	if !strings.HasPrefix(key, "kioskguard:rl:validate:") {
		t.Fatalf("unexpected key %q", key)
	}
	if strings.Contains(key, "0123456789ABCDEF") {
		t.Fatal("subject leaked into key")
	}
	if key != BucketKey("validate", "0123456789ABCDEF0123456789ABCDEF") {
		t.Fatal("key not stable")
	}
}
