package app

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/session"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/users"
	"github.com/odyssey-erp/backoffice/jobs"
)

// APIDeps are the long-lived resources owned by main and shared with the API.
type APIDeps struct {
	Config  *Config
	Logger  *slog.Logger
	Store   users.Store
	Audit   shared.AuditRecorder
	Metrics *observability.Metrics
	// Redis backs the failed-login limiter. Nil disables it.
	Redis *redis.Client
	// Inspector feeds /jobs/health. Nil reports an empty queue.
	Inspector jobs.QueueInspector
	// Hasher overrides the argon2 parameters from Config.
	Hasher *auth.Hasher
}

// API is the assembled HTTP surface.
type API struct {
	Handler  http.Handler
	Sessions *session.Manager
	Guard    *session.Guard
	Users    *users.Service
}

// NewAPI wires sessions, the guard, services and handlers into a router.
func NewAPI(deps APIDeps) (*API, error) {
	if deps.Config == nil || deps.Store == nil {
		return nil, errors.New("app: config and store are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	secure, err := cfg.CookieSecureEnabled()
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewManager(session.Options{
		Secret:      []byte(cfg.SessionSecret),
		IdleTimeout: cfg.SessionIdleTimeout,
		Secure:      secure,
	})
	if err != nil {
		return nil, err
	}

	var observer session.OutcomeObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
	}
	guard := session.NewGuard(sessions, deps.Store, logger, observer)

	hasher := deps.Hasher
	if hasher == nil {
		hasher = auth.NewHasher(auth.HasherParams{
			Time:      cfg.Argon2Time,
			MemoryKiB: cfg.Argon2MemoryKB,
			Threads:   cfg.Argon2Threads,
		})
	}

	var limiter auth.Limiter = auth.NoopLimiter{}
	if deps.Redis != nil {
		limiter = auth.NewRedisLimiter(deps.Redis, cfg.LoginMaxFailures, cfg.LoginFailureWindow)
	}
	audit := deps.Audit
	if audit == nil {
		audit = shared.DiscardAudit{}
	}

	authService, err := auth.NewService(deps.Store, hasher, auth.ServiceOptions{
		Limiter: limiter,
		Audit:   audit,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	userService := users.NewService(deps.Store, hasher, audit, logger)

	router := NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		Guard:              guard,
		AuthHandler:        auth.NewHandler(logger, authService, sessions, guard, cfg.LoginRatePerMinute),
		UsersHandler:       users.NewHandler(logger, userService, guard),
		PermissionsHandler: rbac.NewPermissionsHandler(guard.Require),
		JobHandler:         jobs.NewHandler(deps.Inspector, logger),
		Metrics:            deps.Metrics,
		RequestLogging:     !InTestMode(),
	})

	return &API{Handler: router, Sessions: sessions, Guard: guard, Users: userService}, nil
}
