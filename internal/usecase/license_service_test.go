package usecase_test

import (
	"bytes"
	"encoding/hex"
	"regexp"
	"testing"
	"time"

	"kioskguard/internal/domain"
	"kioskguard/internal/usecase"
)

var keyPattern = regexp.MustCompile(`^[0-9A-F]{32}$`)

func TestGenerateLicenseKey(t *testing.T) {
	key, err := usecase.GenerateLicenseKey(nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !keyPattern.MatchString(key) {
		t.Fatalf("unexpected key format %q", key)
	}

	fixed, err := usecase.GenerateLicenseKey(bytes.NewReader(bytes.Repeat([]byte{0xab}, 16)))
	if err != nil {
		t.Fatalf("generate fixed: %v", err)
	}
	if fixed != "ABABABABABABABABABABABABABABABAB" {
		t.Fatalf("unexpected fixed key %q", fixed)
	}
}

func TestCreateLicense(t *testing.T) {
	h := newHarness(t)
	expiry := h.clock.now.Add(30 * 24 * time.Hour)
	license := h.createLicense(t, &expiry)

	if license.Status != domain.LicenseActive || license.IsBound() || license.IssuerID != h.super.ID {
		t.Fatalf("unexpected new license %+v", license)
	}
	if !keyPattern.MatchString(license.Key) {
		t.Fatalf("unexpected key %q", license.Key)
	}
	entries := h.auditFor(t, license.ID)
	if len(entries) != 1 || entries[0].Action != domain.AuditLicenseCreated {
		t.Fatalf("expected one LICENSE_CREATED entry, got %+v", entries)
	}
	if entries[0].Details["key"] != license.Key || entries[0].Details["expiresAt"] != expiry.Format(time.RFC3339) {
		t.Fatalf("unexpected create details %+v", entries[0].Details)
	}
}

func TestCreateLicense_RetriesKeyCollision(t *testing.T) {
	h := newHarness(t)
	first := h.createLicense(t, nil)

	// The first attempt replays the existing key, the retry reads fresh bytes.
	h.licenses.Random = &replayReader{first: keyBytes(t, first.Key)}
	second := h.createLicense(t, nil)
	if second.Key == first.Key {
		t.Fatalf("expected a fresh key after collision")
	}
}

func TestCreateLicense_RequiresManageDevices(t *testing.T) {
	h := newHarness(t)
	plain := h.createAdmin(t, "plain@kiosk.test", domain.PermissionsPatch{})
	_, err := h.licenses.CreateLicense(h.ctx, plain, nil)
	expectErr(t, err, domain.ErrInsufficientPermission)

	manager := h.createAdmin(t, "manager@kiosk.test", domain.PermissionsPatch{CanManageDevices: boolPtr(true)})
	license, err := h.licenses.CreateLicense(h.ctx, manager, nil)
	if err != nil {
		t.Fatalf("manager create: %v", err)
	}
	if license.IssuerID != manager.ID {
		t.Fatalf("expected issuer %s, got %s", manager.ID, license.IssuerID)
	}
}

func TestAssignLicense(t *testing.T) {
	h := newHarness(t)
	license := h.createLicense(t, nil)

	view, err := h.licenses.AssignLicense(h.ctx, h.super, license.ID, fpA, "Front Desk")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if view.Device == nil || view.Device.Name != "Front Desk" || view.Device.Fingerprint != fpA {
		t.Fatalf("unexpected assigned device %+v", view.Device)
	}

	_, err = h.licenses.AssignLicense(h.ctx, h.super, license.ID, fpB, "")
	expectErr(t, err, domain.ErrAlreadyBound)

	res, err := h.engine.Validate(h.ctx, license.Key, fpA)
	if err != nil || !res.Valid || res.Bound {
		t.Fatalf("assigned device should validate without binding: %+v %v", res, err)
	}
	if n := countAction(h.auditFor(t, license.ID), domain.AuditLicenseAssigned); n != 1 {
		t.Fatalf("expected one LICENSE_ASSIGNED entry, got %d", n)
	}
}

func TestAssignLicense_Failures(t *testing.T) {
	h := newHarness(t)
	_, err := h.licenses.AssignLicense(h.ctx, h.super, "missing", fpA, "")
	expectErr(t, err, domain.ErrNotFound)

	license := h.createLicense(t, nil)
	if _, err := h.licenses.RevokeLicense(h.ctx, h.super, license.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err = h.licenses.AssignLicense(h.ctx, h.super, license.ID, fpA, "")
	expectErr(t, err, domain.ErrLicenseInactive)

	auditor := h.createAdmin(t, "auditor@kiosk.test", domain.PermissionsPatch{CanViewAuditLog: boolPtr(true)})
	_, err = h.licenses.AssignLicense(h.ctx, auditor, license.ID, fpA, "")
	expectErr(t, err, domain.ErrInsufficientPermission)
}

func TestAssignLicense_SharesExistingDevice(t *testing.T) {
	h := newHarness(t)
	first := h.createLicense(t, nil)
	second := h.createLicense(t, nil)
	a, err := h.licenses.AssignLicense(h.ctx, h.super, first.ID, fpA, "")
	if err != nil {
		t.Fatalf("assign first: %v", err)
	}
	b, err := h.licenses.AssignLicense(h.ctx, h.super, second.ID, fpA, "ignored name")
	if err != nil {
		t.Fatalf("assign second: %v", err)
	}
	if a.Device.ID != b.Device.ID {
		t.Fatalf("device registry must return the same device per fingerprint")
	}
	if b.Device.Name != "Device-a1b2c3" {
		t.Fatalf("existing device keeps its name, got %q", b.Device.Name)
	}
}

func TestRevokeLicense_IsIdempotentAndAudited(t *testing.T) {
	h := newHarness(t)
	license := h.createLicense(t, nil)

	for i := 0; i < 2; i++ {
		revoked, err := h.licenses.RevokeLicense(h.ctx, h.super, license.ID)
		if err != nil {
			t.Fatalf("revoke %d: %v", i, err)
		}
		if revoked.Status != domain.LicenseRevoked {
			t.Fatalf("expected REVOKED, got %s", revoked.Status)
		}
	}

	entries := h.auditFor(t, license.ID)
	if countAction(entries, domain.AuditLicenseRevoked) != 2 {
		t.Fatalf("expected an entry per revoke call, got %+v", entries)
	}
	if entries[0].Details["previousStatus"] != string(domain.LicenseRevoked) {
		t.Fatalf("second revoke should record REVOKED as previous status, got %+v", entries[0].Details)
	}
	if entries[1].Details["previousStatus"] != string(domain.LicenseActive) {
		t.Fatalf("first revoke should record ACTIVE as previous status, got %+v", entries[1].Details)
	}
}

func TestRevokeLicense_Permissions(t *testing.T) {
	h := newHarness(t)
	license := h.createLicense(t, nil)
	manager := h.createAdmin(t, "manager@kiosk.test", domain.PermissionsPatch{CanManageDevices: boolPtr(true)})
	_, err := h.licenses.RevokeLicense(h.ctx, manager, license.ID)
	expectErr(t, err, domain.ErrInsufficientPermission)

	revoker := h.createAdmin(t, "revoker@kiosk.test", domain.PermissionsPatch{CanRevokeLicense: boolPtr(true)})
	if _, err := h.licenses.RevokeLicense(h.ctx, revoker, license.ID); err != nil {
		t.Fatalf("revoker should revoke: %v", err)
	}
	_, err = h.licenses.RevokeLicense(h.ctx, revoker, "missing")
	expectErr(t, err, domain.ErrNotFound)
}

func TestRebindDevice_SuperAdminOnly(t *testing.T) {
	h := newHarness(t)
	license := h.createLicense(t, nil)
	everything := h.createAdmin(t, "all@kiosk.test", domain.PermissionsPatch{
		CanRevokeLicense: boolPtr(true),
		CanManageDevices: boolPtr(true),
		CanViewAuditLog:  boolPtr(true),
	})
	err := h.licenses.RebindDevice(h.ctx, everything, license.ID)
	expectErr(t, err, domain.ErrInsufficientPermission)

	err = h.licenses.RebindDevice(h.ctx, h.super, "missing")
	expectErr(t, err, domain.ErrNotFound)
}

func TestFindAll_Visibility(t *testing.T) {
	h := newHarness(t)
	manager := h.createAdmin(t, "manager@kiosk.test", domain.PermissionsPatch{CanManageDevices: boolPtr(true)})
	h.createLicense(t, nil)
	own, err := h.licenses.CreateLicense(h.ctx, manager, nil)
	if err != nil {
		t.Fatalf("manager create: %v", err)
	}
	if _, err := h.licenses.AssignLicense(h.ctx, manager, own.ID, fpA, ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	archived := h.createLicense(t, nil)
	if err := h.store.ArchiveLicense(h.ctx, archived.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	all, err := h.licenses.FindAll(h.ctx, h.super)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("super admin should see both live licenses, got %d", len(all))
	}

	mine, err := h.licenses.FindAll(h.ctx, manager)
	if err != nil {
		t.Fatalf("find mine: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != own.ID {
		t.Fatalf("admin should only see own licenses, got %+v", mine)
	}
	if mine[0].Device == nil || mine[0].Device.Fingerprint != fpA {
		t.Fatalf("listing should include the bound device")
	}

	_, err = h.licenses.GetLicense(h.ctx, manager, archived.ID)
	expectErr(t, err, domain.ErrNotFound)
	view, err := h.licenses.GetLicense(h.ctx, manager, own.ID)
	if err != nil || view.Device == nil {
		t.Fatalf("get own license: %+v %v", view, err)
	}
}

type replayReader struct {
	first []byte
	used  bool
}

func (r *replayReader) Read(p []byte) (int, error) {
	if !r.used {
		r.used = true
		return copy(p, r.first), nil
	}
	for i := range p {
		p[i] = byte(i + 1)
	}
	return len(p), nil
}

func keyBytes(t *testing.T, key string) []byte {
	t.Helper()
	out, err := hex.DecodeString(key)
	if err != nil || len(out) != 16 {
		t.Fatalf("unexpected key %q: %v", key, err)
	}
	return out
}
