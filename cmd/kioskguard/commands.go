package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"kioskguard/internal/config"
	"kioskguard/internal/domain"
	"kioskguard/internal/infra/db"
	"kioskguard/internal/infra/policyopa"
	"kioskguard/internal/logging"
	"kioskguard/internal/usecase"
	"kioskguard/migrations"
)

type env struct {
	cfg    config.Config
	logger *slog.Logger
	store  *db.Store
	gate   *usecase.PermissionGate
}

// openEnv loads config and connects to postgres. Every command except keygen
// needs a database; the in-memory store would lose its state on exit.
func openEnv(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, "text", stderr)
	if cfg.PostgresDSN == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	store, err := db.NewStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	policy, err := policyopa.NewEngine(ctx)
	if cfg.PolicyDir != "" {
		policy, err = policyopa.NewEngineFromPath(ctx, cfg.PolicyDir)
	}
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, store: store, gate: usecase.NewPermissionGate(policy)}, nil
}

func (e *env) close() {
	_ = e.store.Close()
}

func (e *env) actorByEmail(ctx context.Context, email string) (domain.Actor, error) {
	admins := usecase.NewAdminService(e.store, e.gate, nil)
	return admins.ResolveActor(ctx, domain.Principal{Subject: email})
}

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func fail(stderr io.Writer, format string, args ...any) int {
	fmt.Fprintf(stderr, format+"\n", args...)
	return 1
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	count := fs.IntP("count", "n", 1, "number of keys to print")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *count < 1 {
		return fail(stderr, "--count must be positive")
	}
	for i := 0; i < *count; i++ {
		key, err := usecase.GenerateLicenseKey(rand.Reader)
		if err != nil {
			return fail(stderr, "generate key: %v", err)
		}
		fmt.Fprintln(stdout, key)
	}
	return 0
}

func runMigrate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("migrate", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ctx, cancel := commandContext()
	defer cancel()
	e, err := openEnv(ctx, stderr)
	if err != nil {
		return fail(stderr, "%v", err)
	}
	defer e.close()

	applied, err := db.Migrate(ctx, e.store.DB, migrations.FS)
	if err != nil {
		return fail(stderr, "migrate: %v", err)
	}
	for _, name := range applied {
		fmt.Fprintf(stdout, "applied=%s\n", name)
	}
	return 0
}

func runBootstrap(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("bootstrap", stderr)
	email := fs.String("email", "", "super admin email")
	password := fs.String("password", "", "super admin password (or SUPER_ADMIN_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *password == "" {
		*password = os.Getenv("SUPER_ADMIN_PASSWORD")
	}
	if *email == "" || *password == "" {
		return fail(stderr, "bootstrap requires --email and --password")
	}
	ctx, cancel := commandContext()
	defer cancel()
	e, err := openEnv(ctx, stderr)
	if err != nil {
		return fail(stderr, "%v", err)
	}
	defer e.close()

	admins := usecase.NewAdminService(e.store, e.gate, nil)
	admins.Logger = e.logger
	user, created, err := admins.BootstrapSuperAdmin(ctx, *email, *password)
	if err != nil {
		return fail(stderr, "bootstrap: %v", err)
	}
	fmt.Fprintf(stdout, "user_id=%s email=%s created=%t\n", user.ID, user.Email, created)
	return 0
}

func runLicenseCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("license create", stderr)
	issuer := fs.String("issuer-email", "", "email of the issuing admin; defaults to the first super admin")
	expiresIn := fs.Duration("expires-in", 0, "license lifetime, e.g. 8760h; zero never expires")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *expiresIn < 0 {
		return fail(stderr, "--expires-in must not be negative")
	}
	ctx, cancel := commandContext()
	defer cancel()
	e, err := openEnv(ctx, stderr)
	if err != nil {
		return fail(stderr, "%v", err)
	}
	defer e.close()

	var actor domain.Actor
	if *issuer == "" {
		root, err := e.store.Users().FirstByRole(ctx, domain.RoleSuperAdmin)
		if err != nil {
			return fail(stderr, "no super admin found, run bootstrap first: %v", err)
		}
		actor = root.Actor()
	} else if actor, err = e.actorByEmail(ctx, *issuer); err != nil {
		return fail(stderr, "resolve issuer: %v", err)
	}
	var expiresAt *time.Time
	if *expiresIn > 0 {
		at := time.Now().UTC().Add(*expiresIn)
		expiresAt = &at
	}
	licenses := usecase.NewLicenseService(e.store, e.gate, nil)
	license, err := licenses.CreateLicense(ctx, actor, expiresAt)
	if err != nil {
		return fail(stderr, "create license: %v", err)
	}
	fmt.Fprintf(stdout, "license_id=%s key=%s expires_at=%s\n", license.ID, license.Key, formatTime(license.ExpiresAt))
	return 0
}

func runLicenseList(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("license list", stderr)
	issuer := fs.String("issuer-email", "", "email of the admin whose view to list")
	asJSON := fs.Bool("json", false, "output as JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *issuer == "" {
		return fail(stderr, "license list requires --issuer-email")
	}
	ctx, cancel := commandContext()
	defer cancel()
	e, err := openEnv(ctx, stderr)
	if err != nil {
		return fail(stderr, "%v", err)
	}
	defer e.close()

	actor, err := e.actorByEmail(ctx, *issuer)
	if err != nil {
		return fail(stderr, "resolve issuer: %v", err)
	}
	views, err := usecase.NewLicenseService(e.store, e.gate, nil).FindAll(ctx, actor)
	if err != nil {
		return fail(stderr, "list licenses: %v", err)
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(views); err != nil {
			return fail(stderr, "encode: %v", err)
		}
		return 0
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKEY\tSTATUS\tDEVICE\tEXPIRES")
	for _, v := range views {
		device := "-"
		if v.Device != nil {
			device = v.Device.Fingerprint
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.License.ID, v.License.Key, v.License.Status, device, formatTime(v.License.ExpiresAt))
	}
	_ = tw.Flush()
	return 0
}

func runLicenseValidate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("license validate", stderr)
	key := fs.String("key", "", "license key")
	fingerprint := fs.String("fingerprint", "", "device fingerprint")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*key) == "" || strings.TrimSpace(*fingerprint) == "" {
		return fail(stderr, "license validate requires --key and --fingerprint")
	}
	ctx, cancel := commandContext()
	defer cancel()
	e, err := openEnv(ctx, stderr)
	if err != nil {
		return fail(stderr, "%v", err)
	}
	defer e.close()

	engine := usecase.NewValidationEngine(e.store, nil)
	engine.GraceDays = e.cfg.GraceDays
	engine.MaxAttempts = e.cfg.TxMaxAttempts
	engine.Logger = e.logger
	result, err := engine.Validate(ctx, *key, *fingerprint)
	if err != nil {
		var mismatch *domain.MismatchError
		if errors.As(err, &mismatch) {
			fmt.Fprintf(stdout, "valid=false license_id=%s grace_day=%d\n", mismatch.LicenseID, mismatch.GraceDay)
			return 1
		}
		return fail(stderr, "validate: %v", err)
	}
	fmt.Fprintf(stdout, "valid=%t license_id=%s bound=%t", result.Valid, result.LicenseID, result.Bound)
	if result.Warning != "" {
		fmt.Fprintf(stdout, " warning=%q grace_day=%d", result.Warning, result.GraceDay)
	}
	fmt.Fprintln(stdout)
	return 0
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
