package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

// PermissionsHandler lists the canonical permission table.
type PermissionsHandler struct {
	guard func(Permission) func(http.Handler) http.Handler
}

// NewPermissionsHandler builds a PermissionsHandler. guard binds the required
// permission for the route.
func NewPermissionsHandler(guard func(Permission) func(http.Handler) http.Handler) *PermissionsHandler {
	return &PermissionsHandler{guard: guard}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard(Admin))
		r.Get("/permissions", h.listPermissions)
	})
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, Canonical())
}
