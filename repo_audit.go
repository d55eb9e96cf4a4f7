package lifecycle

import (
	"context"

	"github.com/uptrace/bun"
)

// AuditEvents is the append-only change log behind the projector. Events
// are written in the same transaction as the CAS that produced them and
// are never updated or independently deleted.
type AuditEvents interface {
	Append(ctx context.Context, event *AuditEvent) error
	AppendTx(ctx context.Context, tx bun.IDB, event *AuditEvent) error
	Query(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error)
}

// AuditFilter narrows the unified feed. Zero values mean "no filter".
type AuditFilter struct {
	EntityType EntityType
	Status     string
	Limit      int
}

const defaultAuditLimit = 100

type auditEvents struct {
	db *bun.DB
}

var _ AuditEvents = (*auditEvents)(nil)

// NewAuditEventsRepository builds the audit log repository.
func NewAuditEventsRepository(db *bun.DB) AuditEvents {
	return &auditEvents{db: db}
}

func (r *auditEvents) Append(ctx context.Context, event *AuditEvent) error {
	return r.AppendTx(ctx, r.db, event)
}

func (r *auditEvents) AppendTx(ctx context.Context, tx bun.IDB, event *AuditEvent) error {
	_, err := tx.NewInsert().
		Model(event).
		Exec(ctx)
	return err
}

// Query returns events ordered newest first; ties on occurred_at fall
// back to insertion order.
func (r *auditEvents) Query(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	var events []*AuditEvent
	q := r.db.NewSelect().
		Model(&events).
		Order("occurred_at DESC").
		Order("seq DESC").
		Limit(limit)

	if filter.EntityType != "" {
		q = q.Where("?TableAlias.entity_type = ?", filter.EntityType)
	}
	if filter.Status != "" {
		q = q.Where("?TableAlias.to_status = ?", filter.Status)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return events, nil
}
