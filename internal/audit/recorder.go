package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/batisseur/intranet/internal/shared"
)

var (
	// ErrInvalidEntry indicates an entry without action or resource type.
	ErrInvalidEntry = fmt.Errorf("audit: action and resource type required: %w", shared.ErrValidation)
	// ErrNotBootstrapAction rejects unauthenticated writes outside the whitelist.
	ErrNotBootstrapAction = errors.New("audit: action not allowed without actor")
)

const defaultWriteTimeout = 5 * time.Second

// Writer appends entries to the trail.
type Writer interface {
	Insert(ctx context.Context, entry Entry) (Record, error)
}

// RetryQueue hands failed entries to a background worker.
type RetryQueue interface {
	EnqueueAuditRetry(ctx context.Context, entry Entry) error
}

// FailureCounter observes audit write failures.
type FailureCounter interface {
	AuditWriteFailed(action string)
}

// Recorder appends audit records. It exposes no update or delete.
type Recorder struct {
	writer   Writer
	logger   *slog.Logger
	retry    RetryQueue
	failures FailureCounter
	timeout  time.Duration
	now      func() time.Time
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithRetryQueue enables background retries of failed writes.
func WithRetryQueue(q RetryQueue) RecorderOption {
	return func(r *Recorder) { r.retry = q }
}

// WithFailureCounter reports failed writes to metrics.
func WithFailureCounter(c FailureCounter) RecorderOption {
	return func(r *Recorder) { r.failures = c }
}

// WithWriteTimeout bounds detached writes made by Track.
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRecorder constructs a Recorder.
func NewRecorder(writer Writer, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{writer: writer, logger: logger, timeout: defaultWriteTimeout, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Prepare validates and normalises an entry, assigning its event id and timestamp.
func (r *Recorder) Prepare(entry Entry) (Entry, error) {
	entry.Action = normalizeAction(entry.Action)
	entry.ResourceType = strings.TrimSpace(strings.ToLower(entry.ResourceType))
	if entry.Action == "" || entry.ResourceType == "" {
		return Entry{}, ErrInvalidEntry
	}
	if entry.IPAddress == "" {
		entry.IPAddress = "unknown"
	}
	if entry.UserAgent == "" {
		entry.UserAgent = "unknown"
	}
	if entry.EventID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return Entry{}, fmt.Errorf("audit: event id: %w", err)
		}
		entry.EventID = id
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	return entry, nil
}

// Record appends entry and returns the stored record.
func (r *Recorder) Record(ctx context.Context, entry Entry) (Record, error) {
	if r == nil || r.writer == nil {
		return Record{}, errors.New("audit: recorder not configured")
	}
	prepared, err := r.Prepare(entry)
	if err != nil {
		return Record{}, err
	}
	rec, err := r.writer.Insert(ctx, prepared)
	if err != nil {
		return Record{}, shared.Persistence("audit: insert", err)
	}
	return rec, nil
}

// RecordBootstrap records a pre-authentication event. Only whitelisted actions pass.
func (r *Recorder) RecordBootstrap(ctx context.Context, entry Entry) (Record, error) {
	if entry.ActorID != nil || !IsBootstrapAction(entry.Action) {
		return Record{}, ErrNotBootstrapAction
	}
	return r.Record(ctx, entry)
}

// Track records entry without surfacing failures to the caller. Failures are
// logged, counted and queued for retry.
func (r *Recorder) Track(ctx context.Context, entry Entry) {
	if r == nil {
		return
	}
	prepared, err := r.Prepare(entry)
	if err != nil {
		r.logger.Error("audit entry rejected", slog.String("action", entry.Action), slog.Any("error", err))
		r.countFailure(entry.Action)
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if _, err := r.Record(writeCtx, prepared); err != nil {
		r.logger.Error("audit write failed",
			slog.String("action", prepared.Action),
			slog.String("resource_type", prepared.ResourceType),
			slog.String("event_id", prepared.EventID.String()),
			slog.Any("error", err),
		)
		r.countFailure(prepared.Action)
		r.enqueueRetry(ctx, prepared)
	}
}

func (r *Recorder) countFailure(action string) {
	if r.failures != nil {
		r.failures.AuditWriteFailed(normalizeAction(action))
	}
}

// enqueueRetry gets its own deadline, separate from the failed write's.
func (r *Recorder) enqueueRetry(ctx context.Context, entry Entry) {
	if r.retry == nil {
		return
	}
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.retry.EnqueueAuditRetry(enqueueCtx, entry); err != nil {
		r.logger.Error("audit retry enqueue failed",
			slog.String("event_id", entry.EventID.String()),
			slog.Any("error", err),
		)
	}
}

func normalizeAction(action string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(action))
}
