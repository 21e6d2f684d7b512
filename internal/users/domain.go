package users

import (
	"context"
	"time"

	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/session"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// User represents a principal as exposed to management endpoints.
type User struct {
	Username    string
	Permissions rbac.Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewUser carries the already-hashed credentials of a principal to create.
type NewUser struct {
	Username     string
	PasswordHash string
	Salt         string
	Permissions  rbac.Permission
}

// Store is the credential store. Delete and UpdatePermissions reject changes
// that would leave no ADMIN principal with shared.ErrLastAdmin.
type Store interface {
	session.PrincipalStore
	auth.CredentialStore
	Create(ctx context.Context, user NewUser) (User, error)
	List(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, username string) error
	UpdatePermissions(ctx context.Context, username string, perms rbac.Permission) (User, error)
	CountAdmins(ctx context.Context) (int, error)
}

// permissions are persisted as a non-negative BIGINT so ADMIN stays 4294967295.
func toColumn(p rbac.Permission) int64 { return int64(p) }

func fromColumn(v int64) rbac.Permission { return rbac.Permission(uint32(v)) }

// checkAdminRemoval rejects moving current to next when that strips ADMIN
// from the only holder.
func checkAdminRemoval(current, next rbac.Permission, admins int) error {
	if current == rbac.Admin && next != rbac.Admin && admins <= 1 {
		return shared.ErrLastAdmin
	}
	return nil
}
