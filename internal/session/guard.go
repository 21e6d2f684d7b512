package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// PrincipalStore looks up the current identity and permissions of a principal.
// A missing principal is reported as shared.ErrNotFound.
type PrincipalStore interface {
	FindPrincipal(ctx context.Context, username string) (Principal, error)
}

// Outcome labels the result of a guard evaluation.
type Outcome string

const (
	OutcomeGranted        Outcome = "granted"
	OutcomeForbidden      Outcome = "forbidden"
	OutcomeNoSession      Outcome = "no_session"
	OutcomeInvalidSession Outcome = "invalid_session"
	OutcomeStaleSession   Outcome = "stale_session"
	OutcomeStoreError     Outcome = "store_error"
)

// OutcomeObserver receives one call per guard evaluation.
type OutcomeObserver interface {
	ObserveAuthOutcome(outcome string)
}

// Guard authenticates requests from the auth cookie, re-fetches the
// principal's permissions, refreshes the cookie and enforces the permission
// bound to the route.
type Guard struct {
	sessions *Manager
	store    PrincipalStore
	logger   *slog.Logger
	observer OutcomeObserver
}

// NewGuard constructs a Guard. observer may be nil.
func NewGuard(sessions *Manager, store PrincipalStore, logger *slog.Logger, observer OutcomeObserver) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{sessions: sessions, store: store, logger: logger, observer: observer}
}

// Require returns middleware admitting principals whose stored permissions
// contain required. Use rbac.None for "any authenticated principal".
func (g *Guard) Require(required rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, outcome := g.Authenticate(w, r, required)
			switch outcome {
			case OutcomeGranted:
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
			case OutcomeForbidden:
				httpx.Error(w, http.StatusForbidden, httpx.MsgForbidden)
			case OutcomeStoreError:
				httpx.Error(w, http.StatusInternalServerError, httpx.MsgInternal)
			default:
				httpx.Error(w, http.StatusUnauthorized, httpx.MsgUnauthorized)
			}
		})
	}
}

// Authenticate runs the guard state machine. Cookie headers are written to w;
// the status response is left to the caller.
func (g *Guard) Authenticate(w http.ResponseWriter, r *http.Request, required rbac.Permission) (Principal, Outcome) {
	outcome := OutcomeGranted
	defer func() { g.observe(outcome) }()

	tok, err := g.sessions.Read(r)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			outcome = OutcomeNoSession
			return Principal{}, outcome
		}
		g.logger.Info("rejecting session cookie", slog.Any("error", err))
		g.sessions.Clear(w)
		outcome = OutcomeInvalidSession
		return Principal{}, outcome
	}

	current, err := g.store.FindPrincipal(r.Context(), tok.Username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			g.logger.Info("principal no longer exists, clearing session", slog.String("username", tok.Username))
			g.sessions.Clear(w)
			outcome = OutcomeStaleSession
			return Principal{}, outcome
		}
		g.logger.Error("guard principal lookup", slog.String("username", tok.Username), slog.Any("error", err))
		outcome = OutcomeStoreError
		return Principal{}, outcome
	}

	if err := g.sessions.Write(w, tok.Refreshed(current.Permissions)); err != nil {
		g.logger.Error("guard refresh session", slog.Any("error", err))
		outcome = OutcomeStoreError
		return Principal{}, outcome
	}

	principal := Principal{
		Username:    tok.Username,
		Permissions: current.Permissions,
		SessionID:   tok.ID,
	}
	if exp, ok := tok.Expiry(); ok {
		principal.ExpiresAt = &exp
	}

	if !current.Permissions.Contains(required) {
		g.logger.Debug("insufficient permissions",
			slog.String("username", tok.Username),
			slog.String("required", required.String()))
		outcome = OutcomeForbidden
		return principal, outcome
	}
	return principal, outcome
}

func (g *Guard) observe(outcome Outcome) {
	if g.observer != nil {
		g.observer.ObserveAuthOutcome(string(outcome))
	}
}
