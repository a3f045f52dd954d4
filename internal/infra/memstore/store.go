// Package memstore is an in-process Store used when no database is configured
// and by unit tests. Transactions are fully serialized and work on a snapshot
// that replaces the committed state only when the unit of work succeeds.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kioskguard/internal/domain"
	"kioskguard/internal/usecase"
)

type state struct {
	licenses   map[string]domain.License
	licenseKey map[string]string
	devices    map[string]domain.Device
	deviceFP   map[string]string
	users      map[string]domain.AdminUser
	userEmail  map[string]string
	audit      []domain.AuditEntry
	auditAdded []domain.AuditEntry
	inTx       bool
}

func newState() *state {
	return &state{
		licenses:   map[string]domain.License{},
		licenseKey: map[string]string{},
		devices:    map[string]domain.Device{},
		deviceFP:   map[string]string{},
		users:      map[string]domain.AdminUser{},
		userEmail:  map[string]string{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.licenses {
		out.licenses[k] = v
	}
	for k, v := range s.licenseKey {
		out.licenseKey[k] = v
	}
	for k, v := range s.devices {
		out.devices[k] = v
	}
	for k, v := range s.deviceFP {
		out.deviceFP[k] = v
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.userEmail {
		out.userEmail[k] = v
	}
	// Audit rows are append-only. The snapshot shares the committed slice and
	// collects its own rows in auditAdded; only a commit appends to the array.
	out.audit = s.audit
	out.inTx = true
	return out
}

var _ usecase.Store = (*Store)(nil)

type Store struct {
	mu        sync.Mutex
	committed *state
	conflicts int
	Now       func() time.Time
}

func New() *Store {
	return &Store{committed: newState(), Now: time.Now}
}

// InjectConflicts makes the next n transactions fail with domain.ErrConflict
// after fn has run, discarding their writes.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

func (s *Store) WithTx(ctx context.Context, fn func(repos usecase.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.committed.clone()
	if err := fn(&txRepos{st: snapshot, now: s.now}); err != nil {
		return err
	}
	if s.conflicts > 0 {
		s.conflicts--
		return domain.ErrConflict
	}
	snapshot.audit = append(snapshot.audit, snapshot.auditAdded...)
	snapshot.auditAdded = nil
	snapshot.inTx = false
	s.committed = snapshot
	return nil
}

// ArchiveLicense flags a license as archived the way the maintenance sweep does.
func (s *Store) ArchiveLicense(ctx context.Context, id string) error {
	return s.autocommit(func(st *state, now time.Time) error {
		l, ok := st.licenses[id]
		if !ok {
			return domain.ErrNotFound
		}
		l.IsArchived = true
		l.UpdatedAt = now
		st.licenses[id] = l
		return nil
	})
}

func (s *Store) Licenses() usecase.LicenseRepository { return &licenseRepo{run: s.autocommit} }
func (s *Store) Devices() usecase.DeviceRepository   { return &deviceRepo{run: s.autocommit} }
func (s *Store) Audit() usecase.AuditRepository      { return &auditRepo{run: s.autocommit} }
func (s *Store) Users() usecase.UserRepository       { return &userRepo{run: s.autocommit} }

// autocommit runs a single statement against the committed state.
func (s *Store) autocommit(fn func(st *state, now time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.committed, s.now())
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

type txRepos struct {
	st  *state
	now func() time.Time
}

func (t *txRepos) run(fn func(st *state, now time.Time) error) error {
	return fn(t.st, t.now())
}

func (t *txRepos) Licenses() usecase.LicenseRepository { return &licenseRepo{run: t.run} }
func (t *txRepos) Devices() usecase.DeviceRepository   { return &deviceRepo{run: t.run} }
func (t *txRepos) Audit() usecase.AuditRepository      { return &auditRepo{run: t.run} }
func (t *txRepos) Users() usecase.UserRepository       { return &userRepo{run: t.run} }

type runner func(fn func(st *state, now time.Time) error) error

type licenseRepo struct{ run runner }

func (r *licenseRepo) Create(ctx context.Context, license domain.License) (domain.License, error) {
	err := r.run(func(st *state, now time.Time) error {
		if _, taken := st.licenseKey[license.Key]; taken {
			return domain.ErrConflict
		}
		if license.ID == "" {
			license.ID = uuid.NewString()
		}
		if license.CreatedAt.IsZero() {
			license.CreatedAt = now
		}
		license.UpdatedAt = license.CreatedAt
		license.Version = 1
		st.licenses[license.ID] = license
		st.licenseKey[license.Key] = license.ID
		return nil
	})
	return license, err
}

func (r *licenseRepo) GetByID(ctx context.Context, id string) (domain.License, error) {
	var out domain.License
	err := r.run(func(st *state, _ time.Time) error {
		l, ok := st.licenses[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = l
		return nil
	})
	return out, err
}

func (r *licenseRepo) GetByIDForUpdate(ctx context.Context, id string) (domain.License, error) {
	return r.GetByID(ctx, id)
}

func (r *licenseRepo) GetByKeyForUpdate(ctx context.Context, key string) (domain.License, error) {
	var out domain.License
	err := r.run(func(st *state, _ time.Time) error {
		id, ok := st.licenseKey[key]
		if !ok {
			return domain.ErrNotFound
		}
		out = st.licenses[id]
		return nil
	})
	return out, err
}

func (r *licenseRepo) Update(ctx context.Context, license domain.License) (domain.License, error) {
	var out domain.License
	err := r.run(func(st *state, now time.Time) error {
		current, ok := st.licenses[license.ID]
		if !ok {
			return domain.ErrNotFound
		}
		if current.Version != license.Version {
			return domain.ErrConflict
		}
		current.Status = license.Status
		current.DeviceID = copyString(license.DeviceID)
		current.MismatchDetectedAt = copyTime(license.MismatchDetectedAt)
		current.Version++
		current.UpdatedAt = now
		st.licenses[current.ID] = current
		out = current
		return nil
	})
	return out, err
}

func (r *licenseRepo) List(ctx context.Context, filter usecase.LicenseFilter) ([]domain.LicenseView, error) {
	out := []domain.LicenseView{}
	err := r.run(func(st *state, _ time.Time) error {
		for _, l := range st.licenses {
			if l.IsArchived && !filter.IncludeArchived {
				continue
			}
			if filter.IssuerID != "" && l.IssuerID != filter.IssuerID {
				continue
			}
			view := domain.LicenseView{License: l}
			if l.IsBound() {
				if d, ok := st.devices[*l.DeviceID]; ok {
					view.Device = &d
				}
			}
			out = append(out, view)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

type deviceRepo struct{ run runner }

func (r *deviceRepo) GetOrCreate(ctx context.Context, fingerprint, name string) (domain.Device, bool, error) {
	var (
		out     domain.Device
		created bool
	)
	err := r.run(func(st *state, now time.Time) error {
		if id, ok := st.deviceFP[fingerprint]; ok {
			out = st.devices[id]
			return nil
		}
		out = domain.Device{
			ID:          uuid.NewString(),
			Fingerprint: fingerprint,
			Name:        name,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		st.devices[out.ID] = out
		st.deviceFP[fingerprint] = out.ID
		created = true
		return nil
	})
	return out, created, err
}

func (r *deviceRepo) GetByID(ctx context.Context, id string) (domain.Device, error) {
	var out domain.Device
	err := r.run(func(st *state, _ time.Time) error {
		d, ok := st.devices[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = d
		return nil
	})
	return out, err
}

type auditRepo struct{ run runner }

func (r *auditRepo) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	err := r.run(func(st *state, now time.Time) error {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		entry.Details = copyDetails(entry.Details)
		if st.inTx {
			st.auditAdded = append(st.auditAdded, entry)
		} else {
			st.audit = append(st.audit, entry)
		}
		return nil
	})
	return entry, err
}

func (r *auditRepo) List(ctx context.Context, filter usecase.AuditFilter) ([]domain.AuditEntry, error) {
	out := []domain.AuditEntry{}
	err := r.run(func(st *state, _ time.Time) error {
		// Walk backwards so equal timestamps keep newest-append-first order.
		rows := len(st.auditAdded) + len(st.audit)
		for i := rows - 1; i >= 0; i-- {
			var e domain.AuditEntry
			if i >= len(st.audit) {
				e = st.auditAdded[i-len(st.audit)]
			} else {
				e = st.audit[i]
			}
			if e.IsArchived && !filter.IncludeArchived {
				continue
			}
			if filter.EntityID != "" && e.EntityID != filter.EntityID {
				continue
			}
			if u, ok := st.users[e.ActorID]; ok {
				e.ActorEmail = u.Email
			}
			e.Details = copyDetails(e.Details)
			out = append(out, e)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, err
}

type userRepo struct{ run runner }

func (r *userRepo) Create(ctx context.Context, user domain.AdminUser) (domain.AdminUser, error) {
	err := r.run(func(st *state, now time.Time) error {
		if _, taken := st.userEmail[user.Email]; taken {
			return domain.ErrConflict
		}
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = now
		}
		user.UpdatedAt = user.CreatedAt
		st.users[user.ID] = user
		st.userEmail[user.Email] = user.ID
		return nil
	})
	return user, err
}

func (r *userRepo) GetByID(ctx context.Context, id string) (domain.AdminUser, error) {
	var out domain.AdminUser
	err := r.run(func(st *state, _ time.Time) error {
		u, ok := st.users[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = u
		return nil
	})
	return out, err
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (domain.AdminUser, error) {
	var out domain.AdminUser
	err := r.run(func(st *state, _ time.Time) error {
		id, ok := st.userEmail[email]
		if !ok {
			return domain.ErrNotFound
		}
		out = st.users[id]
		return nil
	})
	return out, err
}

func (r *userRepo) FirstByRole(ctx context.Context, role domain.Role) (domain.AdminUser, error) {
	users, err := r.ListByRole(ctx, role)
	if err != nil {
		return domain.AdminUser{}, err
	}
	if len(users) == 0 {
		return domain.AdminUser{}, domain.ErrNotFound
	}
	return users[0], nil
}

func (r *userRepo) ListByRole(ctx context.Context, role domain.Role) ([]domain.AdminUser, error) {
	out := []domain.AdminUser{}
	err := r.run(func(st *state, _ time.Time) error {
		for _, u := range st.users {
			if u.Role == role {
				out = append(out, u)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (r *userRepo) UpdatePermissions(ctx context.Context, userID string, perms domain.Permissions) (domain.AdminUser, error) {
	return r.mutate(userID, func(u *domain.AdminUser) { u.Permissions = perms })
}

func (r *userRepo) UpdateStatus(ctx context.Context, userID string, active bool) (domain.AdminUser, error) {
	return r.mutate(userID, func(u *domain.AdminUser) { u.IsActive = active })
}

func (r *userRepo) mutate(userID string, apply func(u *domain.AdminUser)) (domain.AdminUser, error) {
	var out domain.AdminUser
	err := r.run(func(st *state, now time.Time) error {
		u, ok := st.users[userID]
		if !ok {
			return domain.ErrNotFound
		}
		apply(&u)
		u.UpdatedAt = now
		st.users[userID] = u
		out = u
		return nil
	})
	return out, err
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyDetails(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
