package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
	AuthModeNone   = "none"
)

type Config struct {
	HTTPAddr               string `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeoutSeconds int    `envconfig:"SHUTDOWN_TIMEOUT_SECONDS" default:"15"`
	PostgresDSN            string `envconfig:"POSTGRES_DSN"`
	AutoMigrate            bool   `envconfig:"AUTO_MIGRATE" default:"true"`
	LogLevel               string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat              string `envconfig:"LOG_FORMAT" default:"json"`

	AuthMode            string `envconfig:"AUTH_MODE" default:"jwt"`
	JWTSecret           string `envconfig:"JWT_SECRET"`
	JWTIssuer           string `envconfig:"JWT_ISSUER"`
	JWTClockSkewSeconds int    `envconfig:"JWT_CLOCK_SKEW_SECONDS" default:"60"`
	JWTTTLSeconds       int    `envconfig:"JWT_TTL_SECONDS" default:"28800"`

	PolicyDir     string `envconfig:"POLICY_DIR"`
	GraceDays     int    `envconfig:"GRACE_DAYS" default:"7"`
	TxMaxAttempts int    `envconfig:"TX_MAX_ATTEMPTS" default:"3"`

	RateLimitRequests      int  `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindowSeconds int  `envconfig:"RATE_LIMIT_WINDOW_SECONDS" default:"60"`
	RateLimitFailClosed    bool `envconfig:"RATE_LIMIT_FAIL_CLOSED" default:"false"`
	RateLimitMaxKeys       int  `envconfig:"RATE_LIMIT_MAX_KEYS" default:"10000"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	SuperAdminEmail    string `envconfig:"SUPER_ADMIN_EMAIL"`
	SuperAdminPassword string `envconfig:"SUPER_ADMIN_PASSWORD"`

	DBMaxOpenConns           int `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	DBMaxIdleConns           int `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetimeSeconds int `envconfig:"DB_CONN_MAX_LIFETIME_SECONDS" default:"300"`
	DBSlowQueryMilliseconds  int `envconfig:"DB_SLOW_QUERY_MS" default:"200"`
}

func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config from env: %w", err)
	}
	cfg.AuthMode = strings.ToLower(strings.TrimSpace(cfg.AuthMode))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.AuthMode {
	case AuthModeJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=%s", AuthModeJWT)
		}
	case AuthModeHeader, AuthModeNone:
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	if c.GraceDays <= 0 {
		return fmt.Errorf("GRACE_DAYS must be positive, got %d", c.GraceDays)
	}
	if c.TxMaxAttempts <= 0 {
		return fmt.Errorf("TX_MAX_ATTEMPTS must be positive, got %d", c.TxMaxAttempts)
	}
	if (c.SuperAdminEmail == "") != (c.SuperAdminPassword == "") {
		return fmt.Errorf("SUPER_ADMIN_EMAIL and SUPER_ADMIN_PASSWORD must be set together")
	}
	return nil
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c Config) JWTClockSkew() time.Duration {
	return time.Duration(c.JWTClockSkewSeconds) * time.Second
}

func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLSeconds) * time.Second
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

func (c Config) DBConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeSeconds) * time.Second
}

func (c Config) DBSlowQueryThreshold() time.Duration {
	return time.Duration(c.DBSlowQueryMilliseconds) * time.Millisecond
}
