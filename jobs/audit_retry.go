package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/batisseur/intranet/internal/audit"
	jobmetrics "github.com/batisseur/intranet/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AuditRetryJob persists audit entries whose inline write failed.
type AuditRetryJob struct {
	Writer  audit.Writer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditRetryJob initialises the audit retry handler.
func NewAuditRetryJob(writer audit.Writer, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRetryJob {
	return &AuditRetryJob{Writer: writer, Logger: logger, Metrics: metrics}
}

// Handle executes one replay. Malformed payloads are dropped without retry.
func (j *AuditRetryJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Writer == nil {
		return errors.New("audit retry: handler not configured")
	}
	var payload AuditRetryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger().Error("discarding malformed audit retry", slog.Any("error", err))
		return fmt.Errorf("audit retry: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	entry := payload.Entry
	if entry.EventID == uuid.Nil || entry.Action == "" || entry.ResourceType == "" {
		j.logger().Error("discarding incomplete audit retry", slog.String("action", entry.Action))
		return fmt.Errorf("audit retry: incomplete entry: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskAuditRetry)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("event_id", entry.EventID.String()),
		slog.String("action", entry.Action),
	)
	rec, err := j.Writer.Insert(ctx, entry)
	if err != nil {
		logger.Warn("audit replay failed", slog.Any("error", err))
		return fmt.Errorf("audit retry: insert: %w", err)
	}
	j.metrics().AuditReplayed(entry.Action)
	logger.Info("audit entry replayed", slog.Int64("audit_id", rec.ID))
	return nil
}

func (j *AuditRetryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditRetry))
	}
	return slog.Default().With(slog.String("job", TaskAuditRetry))
}

func (j *AuditRetryJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
