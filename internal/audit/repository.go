package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batisseur/intranet/internal/shared"
)

const recordColumns = `id, actor_id, action, resource_type, resource_id, ip_address, user_agent, details, created_at`

// PGRepository persists audit records in PostgreSQL. It has no update or delete.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed audit repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Insert appends entry. A repeated event id returns the existing record.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) (Record, error) {
	return insert(ctx, r.pool, entry)
}

// InsertTx appends entry inside an existing transaction.
func (r *PGRepository) InsertTx(ctx context.Context, tx pgx.Tx, entry Entry) (Record, error) {
	return insert(ctx, tx, entry)
}

func insert(ctx context.Context, q queryer, entry Entry) (Record, error) {
	details, err := marshalDetails(entry.Details)
	if err != nil {
		return Record{}, err
	}
	row := q.QueryRow(ctx, `INSERT INTO audit_logs (event_id, actor_id, action, resource_type, resource_id, ip_address, user_agent, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))
ON CONFLICT (event_id) DO NOTHING
RETURNING `+recordColumns,
		entry.EventID, entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.IPAddress, entry.UserAgent, details, nullTime(entry))
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scanRecord(q.QueryRow(ctx, `SELECT `+recordColumns+` FROM audit_logs WHERE event_id = $1`, entry.EventID))
	}
	return rec, err
}

// Get fetches a single record by id.
func (r *PGRepository) Get(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM audit_logs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, shared.ErrNotFound
		}
		return Record{}, shared.Persistence("audit: get", err)
	}
	return rec, nil
}

// List returns matching records newest first.
func (r *PGRepository) List(ctx context.Context, filter Filter, limit, offset int) ([]Record, error) {
	where, args := buildWhere(filter)
	args = append(args, limit, offset)
	sql := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		recordColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, shared.Persistence("audit: list", err)
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, shared.Persistence("audit: scan", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("audit: list", err)
	}
	return records, nil
}

// Count returns the number of records matching filter.
func (r *PGRepository) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := buildWhere(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return 0, shared.Persistence("audit: count", err)
	}
	return total, nil
}

func buildWhere(filter Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.ID > 0 {
		add("id = $%d", filter.ID)
	}
	if filter.ActorID != nil {
		add("actor_id = $%d", *filter.ActorID)
	}
	if action := normalizeAction(filter.Action); action != "" {
		add("action = $%d", action)
	}
	if rt := strings.TrimSpace(strings.ToLower(filter.ResourceType)); rt != "" {
		add("resource_type = $%d", rt)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec     Record
		details []byte
	)
	if err := row.Scan(&rec.ID, &rec.ActorID, &rec.Action, &rec.ResourceType, &rec.ResourceID,
		&rec.IPAddress, &rec.UserAgent, &details, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return Record{}, fmt.Errorf("audit: decode details: %w", err)
		}
	}
	return rec, nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if len(details) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("audit: encode details: %w", err)
	}
	return data, nil
}

func nullTime(entry Entry) any {
	if entry.OccurredAt.IsZero() {
		return nil
	}
	return entry.OccurredAt
}

var (
	_ Writer = (*PGRepository)(nil)
	_ Reader = (*PGRepository)(nil)
)
