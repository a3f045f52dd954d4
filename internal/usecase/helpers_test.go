package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kioskguard/internal/domain"
	"kioskguard/internal/infra/memstore"
	"kioskguard/internal/usecase"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// countingObserver is shared by the engine's concurrent callers.
type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
	retries  int
}

func (o *countingObserver) ObserveValidation(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[outcome]++
}

func (o *countingObserver) ObserveRetry(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries++
}

func (o *countingObserver) outcome(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcomes[name]
}

func (o *countingObserver) total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.outcomes {
		n += c
	}
	return n
}

func (o *countingObserver) retryCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.retries
}

type harness struct {
	ctx      context.Context
	clock    *fakeClock
	store    *memstore.Store
	gate     *usecase.PermissionGate
	engine   *usecase.ValidationEngine
	licenses *usecase.LicenseService
	admins   *usecase.AdminService
	audit    *usecase.AuditTrail
	observer *countingObserver
	super    domain.Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := memstore.New()
	store.Now = clock.Now
	gate := usecase.NewPermissionGate(nil)
	observer := &countingObserver{}

	engine := usecase.NewValidationEngine(store, clock.Now)
	engine.Observer = observer
	licenses := usecase.NewLicenseService(store, gate, clock.Now)
	admins := usecase.NewAdminService(store, gate, clock.Now)
	admins.BcryptCost = bcrypt.MinCost

	h := &harness{
		ctx:      context.Background(),
		clock:    clock,
		store:    store,
		gate:     gate,
		engine:   engine,
		licenses: licenses,
		admins:   admins,
		audit:    usecase.NewAuditTrail(store, gate),
		observer: observer,
	}
	root, created, err := admins.BootstrapSuperAdmin(h.ctx, "root@kiosk.test", "correct-horse")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !created {
		t.Fatalf("expected bootstrap to create the super admin")
	}
	h.super = root.Actor()
	return h
}

func (h *harness) createLicense(t *testing.T, expiresAt *time.Time) domain.License {
	t.Helper()
	license, err := h.licenses.CreateLicense(h.ctx, h.super, expiresAt)
	if err != nil {
		t.Fatalf("create license: %v", err)
	}
	return license
}

func (h *harness) createAdmin(t *testing.T, email string, perms domain.PermissionsPatch) domain.Actor {
	t.Helper()
	user, err := h.admins.CreateAdmin(h.ctx, h.super, usecase.CreateAdminInput{
		Email:    email,
		Name:     "Operator",
		Password: "operator-pass",
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	user, err = h.admins.UpdatePermissions(h.ctx, h.super, user.ID, perms)
	if err != nil {
		t.Fatalf("update permissions: %v", err)
	}
	return user.Actor()
}

func (h *harness) auditFor(t *testing.T, entityID string) []domain.AuditEntry {
	t.Helper()
	entries, err := h.store.Audit().List(h.ctx, usecase.AuditFilter{EntityID: entityID})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	return entries
}

func (h *harness) reload(t *testing.T, id string) domain.License {
	t.Helper()
	license, err := h.store.Licenses().GetByID(h.ctx, id)
	if err != nil {
		t.Fatalf("reload license: %v", err)
	}
	return license
}

func countAction(entries []domain.AuditEntry, action domain.AuditAction) int {
	n := 0
	for _, e := range entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func boolPtr(v bool) *bool { return &v }
