package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kioskguard/internal/config"
	"kioskguard/internal/domain"
	"kioskguard/internal/infra/auth/header"
	"kioskguard/internal/infra/auth/jwtauth"
	"kioskguard/internal/infra/auth/rbac"
	"kioskguard/internal/infra/ratelimit"
	"kioskguard/internal/metrics"
	"kioskguard/internal/usecase"
)

// RequestAuthenticator extracts the caller identity from a request.
type RequestAuthenticator interface {
	Authenticate(c *gin.Context) (domain.Principal, error)
}

// TokenIssuer mints bearer tokens at login.
type TokenIssuer interface {
	Issue(user domain.AdminUser) (string, time.Time, error)
}

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger *slog.Logger

	engine   *usecase.ValidationEngine
	licenses *usecase.LicenseService
	admins   *usecase.AdminService
	audit    *usecase.AuditTrail

	authenticator RequestAuthenticator
	authorizer    domain.Authorizer
	issuer        TokenIssuer
	authInitErr   error

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool

	metrics *metrics.Metrics
	health  func(ctx context.Context) error
	mode    string
}

type ServerDeps struct {
	Engine   *usecase.ValidationEngine
	Licenses *usecase.LicenseService
	Admins   *usecase.AdminService
	Audit    *usecase.AuditTrail

	Authenticator RequestAuthenticator
	Authorizer    domain.Authorizer
	Issuer        TokenIssuer
	RateLimiter   domain.RateLimiter
	Metrics       *metrics.Metrics
	Logger        *slog.Logger

	// Health reports storage reachability for /healthz. Mode labels the backend.
	Health func(ctx context.Context) error
	Mode   string
}

// NewServer wires the use cases over store and picks auth and rate limiting
// from cfg.
func NewServer(cfg config.Config, store usecase.Store, policy usecase.PolicyEvaluator, deps ServerDeps) *Server {
	gate := usecase.NewPermissionGate(policy)

	engine := usecase.NewValidationEngine(store, time.Now)
	engine.GraceDays = cfg.GraceDays
	engine.MaxAttempts = cfg.TxMaxAttempts
	engine.Logger = deps.Logger

	licenses := usecase.NewLicenseService(store, gate, time.Now)
	licenses.MaxAttempts = cfg.TxMaxAttempts

	admins := usecase.NewAdminService(store, gate, time.Now)
	admins.MaxAttempts = cfg.TxMaxAttempts
	admins.Logger = deps.Logger

	if deps.Metrics != nil {
		engine.Observer = deps.Metrics
		licenses.Observer = deps.Metrics
		admins.Observer = deps.Metrics
	}

	deps.Engine = engine
	deps.Licenses = licenses
	deps.Admins = admins
	deps.Audit = usecase.NewAuditTrail(store, gate)
	return NewServerWithDeps(cfg, deps)
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:           cfg,
		r:             r,
		logger:        deps.Logger,
		engine:        deps.Engine,
		licenses:      deps.Licenses,
		admins:        deps.Admins,
		audit:         deps.Audit,
		authenticator: deps.Authenticator,
		authorizer:    deps.Authorizer,
		issuer:        deps.Issuer,
		metrics:       deps.Metrics,
		health:        deps.Health,
		mode:          deps.Mode,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.mode == "" {
		s.mode = "memory"
	}
	s.initRateLimit(deps.RateLimiter)
	s.initAuth()
	s.r.Use(requestContext(s.logger))
	if s.metrics != nil {
		s.r.Use(s.metrics.Middleware())
	}
	registerValidators()
	s.routes()
	return s
}

func (s *Server) initAuth() {
	if s.authorizer == nil {
		s.authorizer = rbac.NewAuthorizer()
	}
	if s.authenticator != nil {
		return
	}
	switch s.cfg.AuthMode {
	case config.AuthModeJWT:
		authenticator, err := jwtauth.New(jwtauth.Config{
			Secret:    s.cfg.JWTSecret,
			Issuer:    s.cfg.JWTIssuer,
			ClockSkew: s.cfg.JWTClockSkew(),
			TTL:       s.cfg.JWTTTL(),
		})
		if err != nil {
			s.authInitErr = err
			return
		}
		s.authenticator = bearerAuthenticator{inner: authenticator}
		if s.issuer == nil {
			s.issuer = authenticator
		}
	case config.AuthModeHeader:
		s.authenticator = header.NewAuthenticator()
	case config.AuthModeNone, "":
		// Admin routes answer 401; only kiosk validation is served.
	default:
		s.authInitErr = errors.New("unsupported auth mode")
	}
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	s.rateLimiter = override
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			limiter, err := ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
				Addr:     s.cfg.RedisAddr,
				Password: s.cfg.RedisPassword,
				DB:       s.cfg.RedisDB,
			})
			if err == nil {
				s.rateLimiter = limiter
			} else {
				s.logger.Warn("redis rate limiter unavailable, using memory", "error", err)
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{MaxKeys: s.cfg.RateLimitMaxKeys})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	if s.rateLimitWindow <= 0 {
		s.rateLimitWindow = time.Minute
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.r.Group("/v1")
	{
		v1.POST("/licenses/validate", s.rateLimited("validate"), s.handleValidate)
		v1.POST("/auth/login", s.rateLimited("login"), s.handleLogin)

		admin := v1.Group("", s.requireAdmin())
		admin.POST("/licenses", s.handleCreateLicense)
		admin.GET("/licenses", s.handleListLicenses)
		admin.GET("/licenses/:id", s.handleGetLicense)
		admin.POST("/licenses/:id/assign", s.handleAssignLicense)
		admin.PATCH("/licenses/:id/revoke", s.handleRevokeLicense)
		admin.POST("/licenses/:id/rebind", s.handleRebindDevice)

		admin.GET("/audit-logs", s.handleListAuditLogs)

		admin.POST("/admins", s.handleCreateAdmin)
		admin.GET("/admins", s.handleListAdmins)
		admin.PATCH("/admins/:id/permissions", s.handleUpdatePermissions)
		admin.PATCH("/admins/:id/status", s.handleUpdateStatus)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "mode": s.mode})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": s.mode})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	addr := s.cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	timeout := s.cfg.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
