package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/batisseur/intranet/internal/audit"
	jobmetrics "github.com/batisseur/intranet/internal/jobs"
)

type recordingWriter struct {
	err     error
	entries []audit.Entry
}

func (w *recordingWriter) Insert(_ context.Context, entry audit.Entry) (audit.Record, error) {
	if w.err != nil {
		return audit.Record{}, w.err
	}
	w.entries = append(w.entries, entry)
	return audit.Record{ID: int64(len(w.entries)), Action: entry.Action}, nil
}

func sampleEntry() audit.Entry {
	return audit.Entry{
		EventID:      uuid.MustParse("0f8a4e6c-1f0b-4a51-9a3e-6b7c2d9e1a44"),
		ActorID:      audit.Ref(4),
		Action:       audit.ActionUpdateChantier,
		ResourceType: "chantier",
		ResourceID:   audit.Ref(31),
		IPAddress:    "203.0.113.5",
		UserAgent:    "unknown",
		Details:      map[string]any{"field": "status"},
		OccurredAt:   time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC),
	}
}

func TestNewAuditRetryTask(t *testing.T) {
	entry := sampleEntry()
	task, err := NewAuditRetryTask(entry)
	require.NoError(t, err)
	require.Equal(t, TaskAuditRetry, task.Type())

	var payload AuditRetryPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, entry.EventID, payload.Entry.EventID)
	require.True(t, entry.OccurredAt.Equal(payload.Entry.OccurredAt))
	require.Equal(t, int64(31), *payload.Entry.ResourceID)
}

func TestAuditRetryJobReplaysEntry(t *testing.T) {
	writer := &recordingWriter{}
	job := NewAuditRetryJob(writer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewAuditRetryTask(sampleEntry())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, writer.entries, 1)
	require.Equal(t, sampleEntry().EventID, writer.entries[0].EventID)
	require.Equal(t, "203.0.113.5", writer.entries[0].IPAddress)
}

func TestAuditRetryJobReturnsErrorForRetry(t *testing.T) {
	writer := &recordingWriter{err: errors.New("db still down")}
	job := NewAuditRetryJob(writer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewAuditRetryTask(sampleEntry())
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditRetryJobSkipsBadPayloads(t *testing.T) {
	job := NewAuditRetryJob(&recordingWriter{}, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditRetry, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	incomplete := sampleEntry()
	incomplete.EventID = uuid.Nil
	task, err := NewAuditRetryTask(incomplete)
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{"no inspector", nil, http.StatusOK, 0},
		{"queue info", stubInspector{info: &asynq.QueueInfo{Queue: QueueAudit, Pending: 3}}, http.StatusOK, 3},
		{"queue not created yet", stubInspector{err: asynq.ErrQueueNotFound}, http.StatusOK, 0},
		{"redis down", stubInspector{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(tc.inspector, nil)
			rr := httptest.NewRecorder()
			h.health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			require.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			require.Equal(t, QueueAudit, body.Queue)
			require.Equal(t, tc.pending, body.Pending)
		})
	}
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{})
	require.Error(t, err)
}
