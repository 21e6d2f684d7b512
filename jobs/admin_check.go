package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
)

// AdminCounter reports how many principals hold ADMIN.
type AdminCounter interface {
	CountAdmins(ctx context.Context) (int, error)
}

// AdminCheckJob verifies that at least one ADMIN principal exists.
type AdminCheckJob struct {
	Store   AdminCounter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAdminCheckJob initialises the admin invariant handler.
func NewAdminCheckJob(store AdminCounter, logger *slog.Logger, metrics *jobmetrics.Metrics) *AdminCheckJob {
	return &AdminCheckJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle counts ADMIN principals and logs an error when there are none.
// Store failures are returned so the task is retried.
func (j *AdminCheckJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("admin check: handler not configured")
	}
	tracker := j.Metrics.Track(TaskAdminCheck)
	defer func() {
		err = tracker.End(err)
	}()

	n, err := j.Store.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("admin check: %w", err)
	}
	j.Metrics.SetAdminCount(n)

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if n == 0 {
		logger.Error("no principal holds ADMIN", slog.String("job", TaskAdminCheck))
		return nil
	}
	logger.Info("admin check passed", slog.Int("admins", n))
	return nil
}
