package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/session"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	salt          TEXT NOT NULL,
	permissions   INTEGER NOT NULL DEFAULT 0 CHECK (permissions BETWEEN 0 AND 4294967295),
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
)`

// SQLiteStore keeps principals in SQLite. It is meant for development and
// tests; a single connection serializes all writers.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("users: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{`PRAGMA busy_timeout = 5000`, `PRAGMA journal_mode = WAL`, sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("users: init sqlite: %w", err)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindPrincipal returns the current permissions of username.
func (s *SQLiteStore) FindPrincipal(ctx context.Context, username string) (session.Principal, error) {
	var perms int64
	err := s.db.QueryRowContext(ctx, `SELECT permissions FROM users WHERE username = ?`, username).Scan(&perms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Principal{}, shared.ErrNotFound
		}
		return session.Principal{}, fmt.Errorf("users: find principal: %w", err)
	}
	return session.Principal{Username: username, Permissions: fromColumn(perms)}, nil
}

// FindCredentials returns hash, salt and permissions for username.
func (s *SQLiteStore) FindCredentials(ctx context.Context, username string) (auth.Credentials, error) {
	var (
		creds auth.Credentials
		perms int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT username, password_hash, salt, permissions FROM users WHERE username = ?`, username).
		Scan(&creds.Username, &creds.PasswordHash, &creds.Salt, &perms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Credentials{}, shared.ErrNotFound
		}
		return auth.Credentials{}, fmt.Errorf("users: find credentials: %w", err)
	}
	creds.Permissions = fromColumn(perms)
	return creds, nil
}

// Create inserts a principal.
func (s *SQLiteStore) Create(ctx context.Context, user NewUser) (User, error) {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (username, password_hash, salt, permissions, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.Username, user.PasswordHash, user.Salt, toColumn(user.Permissions), formatTime(now), formatTime(now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return User{}, fmt.Errorf("%w: %s", shared.ErrDuplicate, user.Username)
		}
		return User{}, fmt.Errorf("users: create: %w", err)
	}
	return User{Username: user.Username, Permissions: user.Permissions, CreatedAt: now, UpdatedAt: now}, nil
}

// List returns all principals ordered by username.
func (s *SQLiteStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, permissions, created_at, updated_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	users := make([]User, 0)
	for rows.Next() {
		user, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list rows: %w", err)
	}
	return users, nil
}

// Delete removes username unless it is the last ADMIN.
func (s *SQLiteStore) Delete(ctx context.Context, username string) error {
	return s.withAdminCheck(ctx, username, func(tx *sql.Tx, current rbac.Permission, admins int) error {
		if err := checkAdminRemoval(current, rbac.None, admins); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username); err != nil {
			return fmt.Errorf("users: delete: %w", err)
		}
		return nil
	})
}

// UpdatePermissions replaces the permission set of username unless that
// demotes the last ADMIN.
func (s *SQLiteStore) UpdatePermissions(ctx context.Context, username string, perms rbac.Permission) (User, error) {
	var out User
	err := s.withAdminCheck(ctx, username, func(tx *sql.Tx, current rbac.Permission, admins int) error {
		if err := checkAdminRemoval(current, perms, admins); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET permissions = ?, updated_at = ? WHERE username = ?`,
			toColumn(perms), formatTime(s.now().UTC()), username); err != nil {
			return fmt.Errorf("users: update permissions: %w", err)
		}
		user, err := scanSQLiteUser(tx.QueryRowContext(ctx, `SELECT username, permissions, created_at, updated_at FROM users WHERE username = ?`, username))
		if err != nil {
			return err
		}
		out = user
		return nil
	})
	return out, err
}

// CountAdmins returns how many principals hold ADMIN.
func (s *SQLiteStore) CountAdmins(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE permissions = ?`, toColumn(rbac.Admin)).Scan(&n); err != nil {
		return 0, fmt.Errorf("users: count admins: %w", err)
	}
	return n, nil
}

// withAdminCheck runs fn in a transaction that has read the admin count and
// the target row. The single pooled connection keeps it exclusive.
func (s *SQLiteStore) withAdminCheck(ctx context.Context, username string, fn func(tx *sql.Tx, current rbac.Permission, admins int) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("users: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var admins int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE permissions = ?`, toColumn(rbac.Admin)).Scan(&admins); err != nil {
		return fmt.Errorf("users: count admins: %w", err)
	}
	var current int64
	if err := tx.QueryRowContext(ctx, `SELECT permissions FROM users WHERE username = ?`, username).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("users: load user: %w", err)
	}
	if err := fn(tx, fromColumn(current), admins); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("users: commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row rowScanner) (User, error) {
	var user User
	var perms int64
	var created, updated string
	if err := row.Scan(&user.Username, &perms, &created, &updated); err != nil {
		return User{}, fmt.Errorf("users: scan: %w", err)
	}
	user.Permissions = fromColumn(perms)
	user.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	user.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return user, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

var _ Store = (*SQLiteStore)(nil)
