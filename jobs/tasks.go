package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRecord persists one auth audit record.
	TaskAuditRecord = "auth:audit_record"
	// TaskAdminCheck verifies that an ADMIN principal still exists.
	TaskAdminCheck = "auth:admin_check"
)

// NewAuditRecordTask constructs an Asynq task carrying the audit record.
func NewAuditRecordTask(log shared.AuditLog) (*asynq.Task, error) {
	data, err := json.Marshal(log)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data, asynq.MaxRetry(5)), nil
}

// NewAdminCheckTask constructs the periodic admin invariant check.
func NewAdminCheckTask() *asynq.Task {
	return asynq.NewTask(TaskAdminCheck, nil, asynq.MaxRetry(3))
}
