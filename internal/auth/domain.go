package auth

import (
	"context"
	"fmt"

	"golang.org/x/text/secure/precis"

	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Credentials is the stored secret material of a principal. It never leaves
// the auth and store layers.
type Credentials struct {
	Username     string
	PasswordHash string
	Salt         string
	Permissions  rbac.Permission
}

// Identity is what a successful login yields.
type Identity struct {
	Username    string
	Permissions rbac.Permission
}

// CredentialStore loads credentials by exact username. A miss is reported as
// shared.ErrNotFound.
type CredentialStore interface {
	FindCredentials(ctx context.Context, username string) (Credentials, error)
}

// NormalizeUsername applies the PRECIS UsernameCasePreserved profile so that
// visually identical names map to one stored key.
func NormalizeUsername(username string) (string, error) {
	out, err := precis.UsernameCasePreserved.String(username)
	if err != nil {
		return "", fmt.Errorf("%w: username: %v", shared.ErrValidation, err)
	}
	return out, nil
}
