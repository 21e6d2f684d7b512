package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Audit actions recorded for authentication and principal management.
const (
	AuditLoginSucceeded     = "auth.login_succeeded"
	AuditLoginFailed        = "auth.login_failed"
	AuditLoginThrottled     = "auth.login_throttled"
	AuditLogout             = "auth.logout"
	AuditUserCreated        = "users.created"
	AuditUserDeleted        = "users.deleted"
	AuditPermissionsChanged = "users.permissions_changed"
)

// AuditLog represents a record stored in auth_audit_logs.
type AuditLog struct {
	Actor   string         `json:"actor"`
	Action  string         `json:"action"`
	Subject string         `json:"subject"`
	Meta    map[string]any `json:"meta,omitempty"`
	At      time.Time      `json:"at"`
}

// AuditRecorder accepts audit records. Implementations may persist
// synchronously or hand the record to a queue.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}

// DiscardAudit drops every record.
type DiscardAudit struct{}

// Record implements AuditRecorder.
func (DiscardAudit) Record(context.Context, AuditLog) error { return nil }

// Execer is the subset of pgx pool/tx used to write audit rows.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger writes records into auth_audit_logs.
type AuditLogger struct {
	db Execer
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Subject == "" {
		return errors.New("audit log requires action/subject")
	}
	if log.Meta == nil {
		log.Meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		utc := log.At.UTC()
		at = &utc
	}
	_, err = l.db.Exec(ctx, `INSERT INTO auth_audit_logs (actor, action, subject, meta, occurred_at) VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		log.Actor, log.Action, log.Subject, metaJSON, at)
	return err
}

var (
	_ AuditRecorder = (*AuditLogger)(nil)
	_ AuditRecorder = DiscardAudit{}
)
