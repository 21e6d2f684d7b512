package users

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/session"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     *session.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard *session.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers user routes. Listing needs USER_READ; every mutation
// needs ADMIN so no lesser principal can grant itself more.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(rbac.UserRead)).Get("/", h.listUsers)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(rbac.Admin))
		r.Post("/", h.createUser)
		r.Put("/{username}/permissions", h.updatePermissions)
		r.Delete("/{username}", h.deleteUser)
	})
}

const msgUnknownPermission = "unknown permission"

type userResponse struct {
	Username    string        `json:"username"`
	Permissions rbac.NameList `json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func toResponse(u User) userResponse {
	return userResponse{
		Username:    u.Username,
		Permissions: u.Permissions.Names(),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type createUserRequest struct {
	Username    string   `json:"username" validate:"required,max=256"`
	Password    string   `json:"password" validate:"required,min=8,max=1024"`
	Permissions []string `json:"permissions" validate:"max=64"`
}

type updatePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,max=64"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, u := range list {
		out = append(out, toResponse(u))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.MsgInvalidRequest)
		return
	}
	perms, err := rbac.FromNames(req.Permissions)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, msgUnknownPermission)
		return
	}
	user, err := h.service.Create(r.Context(), actor(r), CreateInput{
		Username:    req.Username,
		Password:    req.Password,
		Permissions: perms,
	})
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(user))
}

func (h *Handler) updatePermissions(w http.ResponseWriter, r *http.Request) {
	var req updatePermissionsRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, httpx.MsgInvalidRequest)
		return
	}
	perms, err := rbac.FromNames(req.Permissions)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, msgUnknownPermission)
		return
	}
	user, err := h.service.UpdatePermissions(r.Context(), actor(r), chi.URLParam(r, "username"), perms)
	if err != nil {
		h.fail(w, "update permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(user))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), actor(r), chi.URLParam(r, "username")); err != nil {
		h.fail(w, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) error {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		return err
	}
	return h.validator.Struct(target)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actor(r *http.Request) string {
	if p, ok := session.PrincipalFromContext(r.Context()); ok {
		return p.Username
	}
	return ""
}
