// Package session carries the authenticated session between requests: the
// token stored in the auth cookie, the encrypted cookie jar that protects it,
// and the guard that re-validates it against the credential store on every
// request.
package session

import (
	"time"

	"github.com/odyssey-erp/backoffice/internal/rbac"
)

// Token is the payload of the auth cookie. Permissions is a snapshot taken at
// the last refresh and is never used for authorization decisions.
type Token struct {
	ID          string          `json:"sid"`
	Username    string          `json:"username"`
	ExpiresAt   *int64          `json:"expiry_time"`
	Permissions rbac.Permission `json:"permissions"`
}

// Expiry returns the absolute expiry, if the token has one.
func (t Token) Expiry() (time.Time, bool) {
	if t.ExpiresAt == nil {
		return time.Time{}, false
	}
	return time.Unix(*t.ExpiresAt, 0).UTC(), true
}

// Expired reports whether an absolute expiry exists and has passed.
func (t Token) Expired(now time.Time) bool {
	exp, ok := t.Expiry()
	return ok && !now.Before(exp)
}

// Refreshed returns a copy of t carrying a new permission snapshot. Identity,
// session id and the original absolute expiry are preserved.
func (t Token) Refreshed(perms rbac.Permission) Token {
	out := t
	out.Permissions = perms
	if t.ExpiresAt != nil {
		exp := *t.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}
