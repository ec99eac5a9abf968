package membership

import (
	"context"

	"github.com/uptrace/bun"
)

// AuditEvents is the append only store behind the audit pipeline.
type AuditEvents interface {
	InsertTx(ctx context.Context, tx bun.IDB, event *AuditEvent) error
	QueryTx(ctx context.Context, tx bun.IDB, filters AuditFilters, skip, limit int) ([]*AuditEvent, int, error)
	EachBatchTx(ctx context.Context, tx bun.IDB, filters AuditFilters, batchSize int, fn func([]*AuditEvent) error) error
	StatsTx(ctx context.Context, tx bun.IDB) (*AuditStats, error)
}

type auditEvents struct {
	db *bun.DB
}

var _ AuditEvents = (*auditEvents)(nil)

func NewAuditEventsRepository(db *bun.DB) AuditEvents {
	return &auditEvents{db: db}
}

func (r *auditEvents) InsertTx(ctx context.Context, tx bun.IDB, event *AuditEvent) error {
	_, err := tx.NewInsert().Model(event).Returning("id").Exec(ctx)
	return err
}

func (r *auditEvents) QueryTx(ctx context.Context, tx bun.IDB, filters AuditFilters, skip, limit int) ([]*AuditEvent, int, error) {
	total, err := tx.NewSelect().
		Model((*AuditEvent)(nil)).
		Apply(filters.apply).
		Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	events := make([]*AuditEvent, 0)
	if skip >= total {
		return events, total, nil
	}

	err = tx.NewSelect().
		Model(&events).
		Apply(filters.apply).
		Apply(newestFirst).
		Offset(skip).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// EachBatchTx walks every matching event in query order, batchSize rows at
// a time, so exports never hold the full result set. Batches are keyed on
// the last (created_at, id) seen, so rows committed while walking never
// shift later batches.
func (r *auditEvents) EachBatchTx(ctx context.Context, tx bun.IDB, filters AuditFilters, batchSize int, fn func([]*AuditEvent) error) error {
	if batchSize <= 0 {
		batchSize = DefaultAuditBatchSize
	}

	var last *AuditEvent
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := make([]*AuditEvent, 0, batchSize)
		q := tx.NewSelect().
			Model(&batch).
			Apply(filters.apply).
			Apply(newestFirst).
			Limit(batchSize)
		if last != nil {
			q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("?TableAlias.created_at < ?", last.CreatedAt).
					WhereOr("?TableAlias.created_at = ? AND ?TableAlias.id < ?", last.CreatedAt, last.ID)
			})
		}
		if err := q.Scan(ctx); err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		last = batch[len(batch)-1]
	}
}

func (r *auditEvents) StatsTx(ctx context.Context, tx bun.IDB) (*AuditStats, error) {
	var rows []struct {
		Action string `bun:"action"`
		Count  int    `bun:"count"`
	}
	err := tx.NewSelect().
		Model((*AuditEvent)(nil)).
		Column("action").
		ColumnExpr("COUNT(*) AS count").
		Group("action").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	stats := &AuditStats{Actions: make(map[string]int, len(rows))}
	for _, row := range rows {
		stats.Actions[row.Action] = row.Count
		stats.Total += row.Count
	}
	return stats, nil
}

func newestFirst(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("?TableAlias.created_at DESC").OrderExpr("?TableAlias.id DESC")
}
