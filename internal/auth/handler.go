package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/session"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	sessions  *session.Manager
	guard     *session.Guard
	validator *validator.Validate
	loginRate int
}

// NewHandler constructs a Handler instance. loginRatePerMinute bounds login
// attempts per client IP; zero disables the limit.
func NewHandler(logger *slog.Logger, service *Service, sessions *session.Manager, guard *session.Guard, loginRatePerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		sessions:  sessions,
		guard:     guard,
		validator: validator.New(),
		loginRate: loginRatePerMinute,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	login := r.With()
	if h.loginRate > 0 {
		login = r.With(httprate.Limit(h.loginRate, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				httpx.Error(w, http.StatusTooManyRequests, httpx.MsgRateLimited)
			}),
		))
	}
	login.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(h.guard.Require(rbac.None)).Get("/status", h.handleStatus)
}

type loginRequest struct {
	Username  string `json:"username" validate:"required,max=256"`
	Password  string `json:"password" validate:"required,max=1024"`
	ExpiresIn *int64 `json:"expires_in,omitempty" validate:"omitempty,gt=0,lte=31536000"`
}

type principalResponse struct {
	Username    string        `json:"username"`
	Permissions rbac.NameList `json:"permissions"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.MsgInvalidRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.MsgInvalidRequest)
		return
	}

	identity, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) && !errors.Is(err, shared.ErrTooManyAttempts) {
			h.logger.Error("login", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	var expiresIn time.Duration
	if req.ExpiresIn != nil {
		expiresIn = time.Duration(*req.ExpiresIn) * time.Second
	}
	tok := h.sessions.Issue(identity.Username, identity.Permissions, expiresIn)
	if err := h.sessions.Write(w, tok); err != nil {
		h.logger.Error("login write session", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, httpx.MsgInternal)
		return
	}
	httpx.JSON(w, http.StatusOK, principalResponse{
		Username:    identity.Username,
		Permissions: identity.Permissions.Names(),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok, err := h.sessions.Read(r)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			h.sessions.Clear(w)
		}
		httpx.Error(w, http.StatusUnauthorized, httpx.MsgUnauthorized)
		return
	}
	h.sessions.Clear(w)
	h.service.Logout(r.Context(), tok.Username, tok.ID)
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := session.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, httpx.MsgUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, principalResponse{
		Username:    principal.Username,
		Permissions: principal.Permissions.Names(),
	})
}
