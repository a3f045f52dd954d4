package db

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"kioskguard/internal/config"
	"kioskguard/internal/logging"
	"kioskguard/internal/usecase"
)

var _ usecase.Store = (*Store)(nil)

type Store struct {
	DB *gorm.DB
}

// NewStore opens the postgres pool. An empty DSN yields a Store with a nil DB;
// callers fall back to the in-memory store.
func NewStore(cfg config.Config, logger *slog.Logger) (*Store, error) {
	if cfg.PostgresDSN == "" {
		logger.Warn("POSTGRES_DSN not set; starting in no-db mode with in-memory state")
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: logging.NewGormLogger(logger, cfg.DBSlowQueryThreshold()),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	if cfg.DBConnMaxLifetimeSeconds > 0 {
		sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime())
	}
	return &Store{DB: gdb}, nil
}

func NewStoreFromDB(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) Enabled() bool {
	return s != nil && s.DB != nil
}

func (s *Store) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in one database transaction. Lost races reported by postgres,
// including those raised at commit, come back as domain.ErrConflict.
func (s *Store) WithTx(ctx context.Context, fn func(repos usecase.Repositories) error) error {
	if !s.Enabled() {
		return errDBUnavailable
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repos{db: tx})
	})
	return classify("transaction", err)
}

func (s *Store) Licenses() usecase.LicenseRepository { return NewLicenseRepository(s.DB) }
func (s *Store) Devices() usecase.DeviceRepository   { return NewDeviceRepository(s.DB) }
func (s *Store) Audit() usecase.AuditRepository      { return NewAuditLogRepository(s.DB) }
func (s *Store) Users() usecase.UserRepository       { return NewUserRepository(s.DB) }

type repos struct {
	db *gorm.DB
}

func (r repos) Licenses() usecase.LicenseRepository { return NewLicenseRepository(r.db) }
func (r repos) Devices() usecase.DeviceRepository   { return NewDeviceRepository(r.db) }
func (r repos) Audit() usecase.AuditRepository      { return NewAuditLogRepository(r.db) }
func (r repos) Users() usecase.UserRepository       { return NewUserRepository(r.db) }
