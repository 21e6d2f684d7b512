package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// MinPasswordLength is enforced on every password set through the Service.
const MinPasswordLength = 8

// CreateInput describes a principal to register.
type CreateInput struct {
	Username    string
	Password    string
	Permissions rbac.Permission
}

// Service handles principal management.
type Service struct {
	store  Store
	hasher *auth.Hasher
	audit  shared.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance. audit and logger may be nil.
func NewService(store Store, hasher *auth.Hasher, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.DiscardAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, hasher: hasher, audit: audit, logger: logger, now: time.Now}
}

// Create registers a principal with a fresh salt.
func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (User, error) {
	name, err := auth.NormalizeUsername(in.Username)
	if err != nil {
		return User{}, err
	}
	if len(in.Password) < MinPasswordLength {
		return User{}, fmt.Errorf("%w: password shorter than %d", shared.ErrValidation, MinPasswordLength)
	}
	salt, err := s.hasher.GenerateSalt()
	if err != nil {
		return User{}, err
	}
	user, err := s.store.Create(ctx, NewUser{
		Username:     name,
		PasswordHash: s.hasher.Hash(in.Password, salt),
		Salt:         salt,
		Permissions:  in.Permissions,
	})
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, shared.AuditUserCreated, name, map[string]any{"permissions": in.Permissions.Names()})
	return user, nil
}

// List returns all principals.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}

// Delete removes a principal. Removing the last ADMIN is rejected.
func (s *Service) Delete(ctx context.Context, actor, username string) error {
	name, err := auth.NormalizeUsername(username)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	s.record(ctx, actor, shared.AuditUserDeleted, name, nil)
	return nil
}

// UpdatePermissions replaces a principal's permission set. Sessions pick the
// change up on their next request.
func (s *Service) UpdatePermissions(ctx context.Context, actor, username string, perms rbac.Permission) (User, error) {
	name, err := auth.NormalizeUsername(username)
	if err != nil {
		return User{}, err
	}
	user, err := s.store.UpdatePermissions(ctx, name, perms)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, shared.AuditPermissionsChanged, name, map[string]any{"permissions": perms.Names()})
	return user, nil
}

// EnsureAdmin makes sure at least one ADMIN principal exists. When none does,
// username is created with password, or promoted if it already exists.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	admins, err := s.store.CountAdmins(ctx)
	if err != nil {
		return false, err
	}
	if admins > 0 {
		return false, nil
	}
	if password == "" {
		return false, fmt.Errorf("%w: no admin principal exists and no bootstrap password is configured", shared.ErrValidation)
	}
	_, err = s.Create(ctx, "system", CreateInput{Username: username, Password: password, Permissions: rbac.Admin})
	if errors.Is(err, shared.ErrDuplicate) {
		_, err = s.UpdatePermissions(ctx, "system", username, rbac.Admin)
	}
	if err != nil {
		return false, err
	}
	s.logger.Info("bootstrap admin ensured", slog.String("username", username))
	return true, nil
}

func (s *Service) record(ctx context.Context, actor, action, subject string, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:   actor,
		Action:  action,
		Subject: subject,
		Meta:    meta,
		At:      s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
