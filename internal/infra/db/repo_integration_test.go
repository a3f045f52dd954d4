//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"kioskguard/internal/domain"
	"kioskguard/internal/usecase"
)

func TestLicenseRepository_CreateGetUpdate(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	ctx := context.Background()

	issuer := insertUser(t, db, "issuer@kiosk.test", domain.RoleSuperAdmin)
	repo := NewLicenseRepository(db)
	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	created, err := repo.Create(ctx, domain.License{
		Key:       "0123456789ABCDEF0123456789ABCDEF",
		IssuerID:  issuer,
		ExpiresAt: &expires,
	})
	if err != nil {
		t.Fatalf("create license: %v", err)
	}
	if created.Status != domain.LicenseActive || created.Version != 1 {
		t.Fatalf("unexpected license: %+v", created)
	}

	locked, err := repo.GetByKeyForUpdate(ctx, created.Key)
	if err != nil {
		t.Fatalf("get by key: %v", err)
	}
	if locked.ID != created.ID || !locked.ExpiresAt.Equal(expires) {
		t.Fatal("license mismatch")
	}

	device, _, err := NewDeviceRepository(db).GetOrCreate(ctx, "fp-1", "Kiosk")
	if err != nil {
		t.Fatalf("create device: %v", err)
	}
	locked.DeviceID = &device.ID
	updated, err := repo.Update(ctx, locked)
	if err != nil {
		t.Fatalf("update license: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	if _, err := repo.Update(ctx, locked); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	views, err := repo.List(ctx, usecase.LicenseFilter{IssuerID: issuer})
	if err != nil {
		t.Fatalf("list licenses: %v", err)
	}
	if len(views) != 1 || views[0].Device == nil || views[0].Device.Fingerprint != "fp-1" {
		t.Fatalf("unexpected list: %+v", views)
	}
}

func TestLicenseRepository_DuplicateKeyIsConflict(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	ctx := context.Background()

	issuer := insertUser(t, db, "issuer@kiosk.test", domain.RoleSuperAdmin)
	repo := NewLicenseRepository(db)
	license := domain.License{Key: "FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF", IssuerID: issuer}
	if _, err := repo.Create(ctx, license); err != nil {
		t.Fatalf("create license: %v", err)
	}
	if _, err := repo.Create(ctx, license); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDeviceRepository_ConcurrentGetOrCreate(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	ctx := context.Background()

	repo := NewDeviceRepository(db)
	const workers = 8
	ids := make([]string, workers)
	created := make([]bool, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, c, err := repo.GetOrCreate(ctx, "shared-fp", "Kiosk")
			ids[i], created[i], errs[i] = d.ID, c, err
		}(i)
	}
	wg.Wait()

	inserted := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatal("devices diverged")
		}
		if created[i] {
			inserted++
		}
	}
	if inserted != 1 {
		t.Fatalf("expected exactly one insert, got %d", inserted)
	}
}

func TestStore_ConcurrentFirstValidationBindsOnce(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	ctx := context.Background()

	issuer := insertUser(t, db, "issuer@kiosk.test", domain.RoleSuperAdmin)
	store := NewStoreFromDB(db)
	license, err := store.Licenses().Create(ctx, domain.License{Key: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", IssuerID: issuer})
	if err != nil {
		t.Fatalf("create license: %v", err)
	}
	engine := usecase.NewValidationEngine(store, time.Now)

	fingerprints := []string{"kiosk-a", "kiosk-b", "kiosk-c", "kiosk-d"}
	results := make([]domain.ValidationResult, len(fingerprints))
	errs := make([]error, len(fingerprints))
	var wg sync.WaitGroup
	for i, fp := range fingerprints {
		wg.Add(1)
		go func(i int, fp string) {
			defer wg.Done()
			results[i], errs[i] = engine.Validate(ctx, license.Key, fp)
		}(i, fp)
	}
	wg.Wait()

	bound := 0
	for i := range fingerprints {
		if errs[i] != nil {
			t.Fatalf("validate %d: %v", i, errs[i])
		}
		if results[i].Bound {
			bound++
		}
	}
	if bound != 1 {
		t.Fatalf("expected one binding, got %d", bound)
	}
	entries, err := store.Audit().List(ctx, usecase.AuditFilter{EntityID: license.ID})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	bindings := 0
	for _, e := range entries {
		if e.Action == domain.AuditLicenseBound {
			bindings++
		}
	}
	if bindings != 1 {
		t.Fatalf("expected one LICENSE_BOUND entry, got %d", bindings)
	}
}

func TestAuditLogRepository_AppendOnly(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	ctx := context.Background()

	actor := insertUser(t, db, "auditor@kiosk.test", domain.RoleSuperAdmin)
	repo := NewAuditLogRepository(db)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	first, err := repo.Append(ctx, domain.AuditEntry{
		Action:    domain.AuditLicenseCreated,
		Entity:    domain.AuditEntityLicense,
		EntityID:  "lic-1",
		ActorID:   actor,
		Details:   map[string]any{"key": "ABC"},
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := repo.Append(ctx, domain.AuditEntry{
		Action:    domain.AuditLicenseRevoked,
		Entity:    domain.AuditEntityLicense,
		EntityID:  "lic-1",
		ActorID:   actor,
		CreatedAt: at,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := repo.List(ctx, usecase.AuditFilter{EntityID: "lic-1", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != domain.AuditLicenseRevoked {
		t.Fatalf("expected newest first, got %+v", entries)
	}
	if entries[1].ActorEmail != "auditor@kiosk.test" || entries[1].Details["key"] != "ABC" {
		t.Fatalf("unexpected entry: %+v", entries[1])
	}

	if err := db.Exec("UPDATE audit_logs SET action = 'TAMPERED' WHERE id = ?", first.ID).Error; err == nil {
		t.Fatal("expected update to be rejected")
	}
	if err := db.Exec("DELETE FROM audit_logs WHERE id = ?", first.ID).Error; err == nil {
		t.Fatal("expected delete to be rejected")
	}
	if err := db.Exec("UPDATE audit_logs SET is_archived = true WHERE id = ?", first.ID).Error; err != nil {
		t.Fatalf("archive: %v", err)
	}
	entries, err = repo.List(ctx, usecase.AuditFilter{EntityID: "lic-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected archived entry hidden, got %d", len(entries))
	}
}

func TestUserRepository_PermissionsAndStatus(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	ctx := context.Background()

	repo := NewUserRepository(db)
	user, err := repo.Create(ctx, domain.AdminUser{
		Email:        "ops@kiosk.test",
		Name:         "Ops",
		PasswordHash: "hash",
		Role:         domain.RoleAdmin,
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	updated, err := repo.UpdatePermissions(ctx, user.ID, domain.Permissions{CanViewAuditLog: true})
	if err != nil {
		t.Fatalf("update permissions: %v", err)
	}
	if !updated.Permissions.CanViewAuditLog || updated.Permissions.CanRevokeLicense {
		t.Fatalf("unexpected permissions: %+v", updated.Permissions)
	}
	disabled, err := repo.UpdateStatus(ctx, user.ID, false)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if disabled.IsActive {
		t.Fatal("expected user to be inactive")
	}
	byEmail, err := repo.GetByEmail(ctx, "ops@kiosk.test")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != user.ID || !byEmail.Permissions.CanViewAuditLog {
		t.Fatal("user mismatch")
	}
	if _, err := repo.UpdateStatus(ctx, mustUUID(t), true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	admins, err := repo.ListByRole(ctx, domain.RoleAdmin)
	if err != nil {
		t.Fatalf("list admins: %v", err)
	}
	if len(admins) != 1 {
		t.Fatalf("expected one admin, got %d", len(admins))
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	lockTestDB(t, db)
	applyMigrations(t, db)
	return db
}

func lockTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	conn, err := sqlDB.Conn(context.Background())
	if err != nil {
		t.Fatalf("open db conn: %v", err)
	}
	if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_lock(987654321)"); err != nil {
		_ = conn.Close()
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(987654321)")
		_ = conn.Close()
	})
}

func applyMigrations(t *testing.T, db *gorm.DB) {
	t.Helper()
	dir := filepath.Join("..", "..", "..", "migrations")
	if _, err := Migrate(context.Background(), db, os.DirFS(dir)); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
}

func resetDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`
		TRUNCATE audit_logs,
			licenses,
			devices,
			admin_permissions,
			users
		RESTART IDENTITY CASCADE`).Error; err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func insertUser(t *testing.T, db *gorm.DB, email string, role domain.Role) string {
	t.Helper()
	user, err := NewUserRepository(db).Create(context.Background(), domain.AdminUser{
		Email:        email,
		Name:         "Test",
		PasswordHash: "hash",
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return user.ID
}

func mustUUID(t *testing.T) string {
	t.Helper()
	id, err := uuid.NewRandom()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	return id.String()
}
