package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	store   CredentialStore
	hasher  *Hasher
	limiter Limiter
	audit   shared.AuditRecorder
	logger  *slog.Logger
	now     func() time.Time

	// Burned on unknown usernames so both failure paths cost one hash.
	dummySalt string
	dummyHash string
}

// ServiceOptions collects optional collaborators of the Service.
type ServiceOptions struct {
	Limiter Limiter
	Audit   shared.AuditRecorder
	Logger  *slog.Logger
}

// NewService constructs a new Service.
func NewService(store CredentialStore, hasher *Hasher, opts ServiceOptions) (*Service, error) {
	if opts.Limiter == nil {
		opts.Limiter = NoopLimiter{}
	}
	if opts.Audit == nil {
		opts.Audit = shared.DiscardAudit{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	salt, err := hasher.GenerateSalt()
	if err != nil {
		return nil, err
	}
	return &Service{
		store:     store,
		hasher:    hasher,
		limiter:   opts.Limiter,
		audit:     opts.Audit,
		logger:    opts.Logger,
		now:       time.Now,
		dummySalt: salt,
		dummyHash: hasher.Hash(salt, salt),
	}, nil
}

// Authenticate validates username/password credentials. Unknown usernames
// and wrong passwords both yield shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Identity, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		s.hasher.Verify(password, s.dummySalt, s.dummyHash)
		return Identity{}, shared.ErrInvalidCredentials
	}

	// Claimed before any lookup or hash.
	allowed, err := s.limiter.Attempt(ctx, name)
	if err != nil {
		s.logger.Warn("login limiter unavailable", slog.Any("error", err))
		allowed = true
	}
	if !allowed {
		s.record(ctx, shared.AuditLog{Actor: name, Action: shared.AuditLoginThrottled, Subject: name})
		return Identity{}, shared.ErrTooManyAttempts
	}

	creds, err := s.store.FindCredentials(ctx, name)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		s.hasher.Verify(password, s.dummySalt, s.dummyHash)
		return Identity{}, s.fail(ctx, name)
	case err != nil:
		return Identity{}, fmt.Errorf("auth: find credentials: %w", err)
	}

	if !s.hasher.Verify(password, creds.Salt, creds.PasswordHash) {
		return Identity{}, s.fail(ctx, name)
	}

	if err := s.limiter.Reset(ctx, name); err != nil {
		s.logger.Warn("login limiter reset", slog.Any("error", err))
	}
	s.record(ctx, shared.AuditLog{Actor: creds.Username, Action: shared.AuditLoginSucceeded, Subject: creds.Username})
	return Identity{Username: creds.Username, Permissions: creds.Permissions}, nil
}

// Logout records the end of a session. There is no server-side state to drop.
func (s *Service) Logout(ctx context.Context, username, sessionID string) {
	s.record(ctx, shared.AuditLog{
		Actor:   username,
		Action:  shared.AuditLogout,
		Subject: username,
		Meta:    map[string]any{"sid": sessionID},
	})
}

func (s *Service) fail(ctx context.Context, name string) error {
	s.record(ctx, shared.AuditLog{Actor: name, Action: shared.AuditLoginFailed, Subject: name})
	return shared.ErrInvalidCredentials
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if log.At.IsZero() {
		log.At = s.now().UTC()
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record", slog.String("action", log.Action), slog.Any("error", err))
	}
}
