package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TimelineQuery filters the audit read side.
type TimelineQuery struct {
	From       time.Time
	To         time.Time
	ActorID    int64
	EntityType string
	Kind       string
	Offset     int
	Limit      int
}

// Repository is the PostgreSQL persistence for audit events. Events are
// append-only: there is no update or delete path.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one event.
func (r *Repository) Insert(ctx context.Context, ev Event) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_events
		(batch_id, actor_id, kind, entity_type, target_id, original, changes, company_id, ip_address, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))`,
		ev.BatchID, ev.ActorID, ev.Kind, ev.EntityType, ev.TargetID,
		ev.Original, ev.Changes, ev.CompanyID, ev.IP, ev.UserAgent, nullableTime(ev.At))
	return err
}

const eventColumns = `id, batch_id, actor_id, kind, entity_type, target_id, original, changes, company_id, ip_address, user_agent, occurred_at`

const timelineFilter = ` FROM audit_events
	WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
	  AND ($2::timestamptz IS NULL OR occurred_at <= $2)
	  AND ($3::bigint = 0 OR actor_id = $3)
	  AND ($4::text = '' OR entity_type = $4)
	  AND ($5::text = '' OR kind = $5)`

// TimelineWindow returns a page of events, newest first.
func (r *Repository) TimelineWindow(ctx context.Context, q TimelineQuery) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+timelineFilter+`
		ORDER BY occurred_at DESC OFFSET $6 LIMIT $7`,
		nullableTime(q.From), nullableTime(q.To), q.ActorID, q.EntityType, q.Kind, q.Offset, q.Limit)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// TimelineAll returns every matching event, newest first, for exports.
func (r *Repository) TimelineAll(ctx context.Context, q TimelineQuery) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+timelineFilter+`
		ORDER BY occurred_at DESC`,
		nullableTime(q.From), nullableTime(q.To), q.ActorID, q.EntityType, q.Kind)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// KindCountsSince returns per-kind event counts for the pipeline scan job.
func (r *Repository) KindCountsSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT kind, COUNT(*) FROM audit_events
		WHERE occurred_at >= $1 GROUP BY kind`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

func collectEvents(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.BatchID, &ev.ActorID, &ev.Kind, &ev.EntityType, &ev.TargetID,
			&ev.Original, &ev.Changes, &ev.CompanyID, &ev.IP, &ev.UserAgent, &ev.At); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
