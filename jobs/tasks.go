package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/batisseur/intranet/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit writes that failed inline.
	QueueAudit = "audit"
	// TaskAuditRetry replays a failed audit write.
	TaskAuditRetry = "audit:retry"
)

// AuditRetryPayload is the entry to persist. Its EventID keeps the replay idempotent.
type AuditRetryPayload struct {
	Entry audit.Entry `json:"entry"`
}

// NewAuditRetryTask constructs an Asynq task for entry. The task id is derived
// from the event id so the same failure is never queued twice.
func NewAuditRetryTask(entry audit.Entry, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(AuditRetryPayload{Entry: entry})
	if err != nil {
		return nil, fmt.Errorf("jobs: encode audit retry: %w", err)
	}
	opts = append([]asynq.Option{
		asynq.Queue(QueueAudit),
		asynq.TaskID(TaskAuditRetry + ":" + entry.EventID.String()),
	}, opts...)
	return asynq.NewTask(TaskAuditRetry, data, opts...), nil
}
