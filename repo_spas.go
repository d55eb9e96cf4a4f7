package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Spas persists spa records. All status mutations go through
// UpdateStatusTx, a compare-and-swap keyed on the status the caller read
// before deciding; unconditional status overwrites are not exposed.
type Spas interface {
	repository.Repository[*Spa]

	Register(ctx context.Context, spa *Spa) (*Spa, error)
	RegisterTx(ctx context.Context, tx bun.IDB, spa *Spa) (*Spa, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Spa, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Spa, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next SpaStatus, opts ...SpaStatusUpdateOption) (*Spa, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expected, next SpaStatus, opts ...SpaStatusUpdateOption) (*Spa, error)
	UpdatePaymentStateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, state PaymentState) error
	CountByStatus(ctx context.Context) (map[SpaStatus]int, error)
}

type spas struct {
	repository.Repository[*Spa]
	db *bun.DB
}

var (
	_ Spas                        = (*spas)(nil)
	_ repository.Repository[*Spa] = (*spas)(nil)
)

// NewSpasRepository builds the spa repository on the shared generic base.
func NewSpasRepository(db *bun.DB) Spas {
	repo := repository.NewRepository[*Spa](db, repository.ModelHandlers[*Spa]{
		NewRecord: func() *Spa { return &Spa{} },
		GetID: func(s *Spa) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Spa, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
	})

	return &spas{
		Repository: repo,
		db:         db,
	}
}

func (r *spas) Register(ctx context.Context, spa *Spa) (*Spa, error) {
	return r.RegisterTx(ctx, r.db, spa)
}

func (r *spas) RegisterTx(ctx context.Context, tx bun.IDB, spa *Spa) (*Spa, error) {
	prepareSpaDefaults(spa)
	return r.Repository.CreateTx(ctx, tx, spa)
}

func (r *spas) FindByID(ctx context.Context, id uuid.UUID) (*Spa, error) {
	return r.FindByIDTx(ctx, r.db, id)
}

func (r *spas) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Spa, error) {
	record := &Spa{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrRecordNotFound.WithMetadata(map[string]any{
				"id": id.String(),
			})
		}
		return nil, err
	}

	record.EnsureStatus()
	return record, nil
}

// SpaStatusUpdateOption mutates the columns written alongside a status CAS.
type SpaStatusUpdateOption func(*spaStatusUpdate)

type spaStatusUpdate struct {
	record  *Spa
	columns []string
}

// WithSpaPaymentState persists the payment fact with the status change.
func WithSpaPaymentState(state PaymentState) SpaStatusUpdateOption {
	return func(u *spaStatusUpdate) {
		u.record.PaymentState = state
		u.columns = append(u.columns, "payment_state")
	}
}

// WithSpaRejectionReason records (or clears) the rejection reason.
func WithSpaRejectionReason(reason string) SpaStatusUpdateOption {
	return func(u *spaStatusUpdate) {
		u.record.RejectionReason = strings.TrimSpace(reason)
		u.columns = append(u.columns, "rejection_reason")
	}
}

// WithSpaBlacklistReason records (or clears) the blacklist reason.
func WithSpaBlacklistReason(reason string) SpaStatusUpdateOption {
	return func(u *spaStatusUpdate) {
		u.record.BlacklistReason = strings.TrimSpace(reason)
		u.columns = append(u.columns, "blacklist_reason")
	}
}

// WithSpaStatusChangedAt overrides the transition timestamp.
func WithSpaStatusChangedAt(at time.Time) SpaStatusUpdateOption {
	return func(u *spaStatusUpdate) {
		u.record.StatusChangedAt = &at
	}
}

func (r *spas) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next SpaStatus, opts ...SpaStatusUpdateOption) (*Spa, error) {
	return r.UpdateStatusTx(ctx, r.db, id, expected, next, opts...)
}

// UpdateStatusTx applies the status change only when the stored status
// still matches expected. Zero affected rows means another operator won
// the race and the caller must re-read before retrying.
func (r *spas) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expected, next SpaStatus, opts ...SpaStatusUpdateOption) (*Spa, error) {
	update := &spaStatusUpdate{
		record:  &Spa{ID: id, Status: next},
		columns: []string{"status", "status_changed_at", "updated_at"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(update)
		}
	}

	if update.record.StatusChangedAt == nil {
		now := time.Now()
		update.record.StatusChangedAt = &now
	}
	update.record.UpdatedAt = update.record.StatusChangedAt

	res, err := tx.NewUpdate().
		Model(update.record).
		Column(update.columns...).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.status = ?", expected).
		Where("?TableAlias.deleted_at IS NULL").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrConflict.WithMetadata(map[string]any{
			"id":       id.String(),
			"expected": expected,
			"next":     next,
		})
	}

	return update.record, nil
}

// UpdatePaymentStateTx records a payment fact that does not move the
// status (e.g. a pending spa paying early). No audit row is produced.
func (r *spas) UpdatePaymentStateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, state PaymentState) error {
	_, err := tx.NewRaw(`
		UPDATE "spas" AS "spa"
		SET
			"payment_state" = ?,
			"updated_at" = ?
		WHERE
			("spa".id = ?)
			AND "spa"."deleted_at" IS NULL;
	`, state, time.Now(), id).Exec(ctx)

	return err
}

// CountByStatus recomputes the per-status summary at query time.
func (r *spas) CountByStatus(ctx context.Context) (map[SpaStatus]int, error) {
	var rows []struct {
		Status SpaStatus `bun:"status"`
		Count  int       `bun:"count"`
	}

	err := r.db.NewSelect().
		Model((*Spa)(nil)).
		ColumnExpr("status, count(*) AS count").
		Where("deleted_at IS NULL").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	counts := make(map[SpaStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func prepareSpaDefaults(record *Spa) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
