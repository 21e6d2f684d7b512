package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// AuditRecordJob writes queued audit records through a synchronous recorder.
type AuditRecordJob struct {
	Recorder shared.AuditRecorder
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewAuditRecordJob initialises the audit persistence handler.
func NewAuditRecordJob(recorder shared.AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRecordJob {
	return &AuditRecordJob{Recorder: recorder, Logger: logger, Metrics: metrics}
}

// Handle decodes and persists one record. Undecodable payloads are dropped.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Recorder == nil {
		return errors.New("audit record: handler not configured")
	}
	tracker := j.Metrics.Track(TaskAuditRecord)
	defer func() {
		err = tracker.End(err)
	}()

	var log shared.AuditLog
	if err := json.Unmarshal(t.Payload(), &log); err != nil {
		j.logger().Warn("dropping undecodable audit record", slog.Any("error", err))
		return fmt.Errorf("audit record: decode: %v: %w", err, asynq.SkipRetry)
	}
	if err := j.Recorder.Record(ctx, log); err != nil {
		j.logger().Error("persist audit record", slog.String("action", log.Action), slog.Any("error", err))
		return fmt.Errorf("audit record: %w", err)
	}
	return nil
}

func (j *AuditRecordJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
