package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/session"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const pgUniqueViolation = "23505"

// PGStore provides PostgreSQL backed persistence.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a store on an existing pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// FindPrincipal returns the current permissions of username.
func (s *PGStore) FindPrincipal(ctx context.Context, username string) (session.Principal, error) {
	var perms int64
	err := s.pool.QueryRow(ctx, `SELECT permissions FROM users WHERE username = $1`, username).Scan(&perms)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Principal{}, shared.ErrNotFound
		}
		return session.Principal{}, fmt.Errorf("users: find principal: %w", err)
	}
	return session.Principal{Username: username, Permissions: fromColumn(perms)}, nil
}

// FindCredentials returns hash, salt and permissions for username.
func (s *PGStore) FindCredentials(ctx context.Context, username string) (auth.Credentials, error) {
	var (
		creds auth.Credentials
		perms int64
	)
	err := s.pool.QueryRow(ctx, `SELECT username, password_hash, salt, permissions FROM users WHERE username = $1`, username).
		Scan(&creds.Username, &creds.PasswordHash, &creds.Salt, &perms)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Credentials{}, shared.ErrNotFound
		}
		return auth.Credentials{}, fmt.Errorf("users: find credentials: %w", err)
	}
	creds.Permissions = fromColumn(perms)
	return creds, nil
}

// Create inserts a principal.
func (s *PGStore) Create(ctx context.Context, user NewUser) (User, error) {
	out := User{Username: user.Username, Permissions: user.Permissions}
	err := s.pool.QueryRow(ctx, `INSERT INTO users (username, password_hash, salt, permissions) VALUES ($1, $2, $3, $4) RETURNING created_at, updated_at`,
		user.Username, user.PasswordHash, user.Salt, toColumn(user.Permissions)).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, fmt.Errorf("%w: %s", shared.ErrDuplicate, user.Username)
		}
		return User{}, fmt.Errorf("users: create: %w", err)
	}
	return out, nil
}

// List returns all principals ordered by username.
func (s *PGStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, `SELECT username, permissions, created_at, updated_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	users := make([]User, 0)
	for rows.Next() {
		var (
			user  User
			perms int64
		)
		if err := rows.Scan(&user.Username, &perms, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("users: list scan: %w", err)
		}
		user.Permissions = fromColumn(perms)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list rows: %w", err)
	}
	return users, nil
}

// Delete removes username unless it is the last ADMIN.
func (s *PGStore) Delete(ctx context.Context, username string) error {
	return s.withAdminLock(ctx, username, func(tx pgx.Tx, current rbac.Permission, admins int) error {
		if err := checkAdminRemoval(current, rbac.None, admins); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE username = $1`, username); err != nil {
			return fmt.Errorf("users: delete: %w", err)
		}
		return nil
	})
}

// UpdatePermissions replaces the permission set of username unless that
// demotes the last ADMIN.
func (s *PGStore) UpdatePermissions(ctx context.Context, username string, perms rbac.Permission) (User, error) {
	var out User
	err := s.withAdminLock(ctx, username, func(tx pgx.Tx, current rbac.Permission, admins int) error {
		if err := checkAdminRemoval(current, perms, admins); err != nil {
			return err
		}
		var stored int64
		err := tx.QueryRow(ctx, `UPDATE users SET permissions = $2, updated_at = NOW() WHERE username = $1 RETURNING username, permissions, created_at, updated_at`,
			username, toColumn(perms)).Scan(&out.Username, &stored, &out.CreatedAt, &out.UpdatedAt)
		if err != nil {
			return fmt.Errorf("users: update permissions: %w", err)
		}
		out.Permissions = fromColumn(stored)
		return nil
	})
	return out, err
}

// CountAdmins returns how many principals hold ADMIN.
func (s *PGStore) CountAdmins(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE permissions = $1`, toColumn(rbac.Admin)).Scan(&n); err != nil {
		return 0, fmt.Errorf("users: count admins: %w", err)
	}
	return n, nil
}

// withAdminLock row-locks every ADMIN and then the target row, in that order,
// before calling fn. Read committed lets a blocked transaction observe the
// rows committed by the one it waited on.
func (s *PGStore) withAdminLock(ctx context.Context, username string, fn func(tx pgx.Tx, current rbac.Permission, admins int) error) error {
	return db.WithTxOptions(ctx, s.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT username FROM users WHERE permissions = $1 ORDER BY username FOR UPDATE`, toColumn(rbac.Admin))
		if err != nil {
			return fmt.Errorf("users: lock admins: %w", err)
		}
		admins := 0
		for rows.Next() {
			admins++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("users: lock admins: %w", err)
		}

		var current int64
		err = tx.QueryRow(ctx, `SELECT permissions FROM users WHERE username = $1 FOR UPDATE`, username).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("users: lock user: %w", err)
		}
		return fn(tx, fromColumn(current), admins)
	})
}

var _ Store = (*PGStore)(nil)
