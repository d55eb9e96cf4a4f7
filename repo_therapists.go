package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Therapists persists therapist records with the same compare-and-swap
// discipline as Spas.
type Therapists interface {
	repository.Repository[*Therapist]

	Register(ctx context.Context, therapist *Therapist) (*Therapist, error)
	RegisterTx(ctx context.Context, tx bun.IDB, therapist *Therapist) (*Therapist, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Therapist, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Therapist, error)
	ListBySpa(ctx context.Context, spaID uuid.UUID) ([]*Therapist, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next TherapistStatus, opts ...TherapistStatusUpdateOption) (*Therapist, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expected, next TherapistStatus, opts ...TherapistStatusUpdateOption) (*Therapist, error)
	CountByStatus(ctx context.Context) (map[TherapistStatus]int, error)
}

type therapists struct {
	repository.Repository[*Therapist]
	db *bun.DB
}

var (
	_ Therapists                        = (*therapists)(nil)
	_ repository.Repository[*Therapist] = (*therapists)(nil)
)

// NewTherapistsRepository builds the therapist repository.
func NewTherapistsRepository(db *bun.DB) Therapists {
	repo := repository.NewRepository[*Therapist](db, repository.ModelHandlers[*Therapist]{
		NewRecord: func() *Therapist { return &Therapist{} },
		GetID: func(t *Therapist) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *Therapist, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &therapists{
		Repository: repo,
		db:         db,
	}
}

func (r *therapists) Register(ctx context.Context, therapist *Therapist) (*Therapist, error) {
	return r.RegisterTx(ctx, r.db, therapist)
}

func (r *therapists) RegisterTx(ctx context.Context, tx bun.IDB, therapist *Therapist) (*Therapist, error) {
	prepareTherapistDefaults(therapist)
	return r.Repository.CreateTx(ctx, tx, therapist)
}

func (r *therapists) FindByID(ctx context.Context, id uuid.UUID) (*Therapist, error) {
	return r.FindByIDTx(ctx, r.db, id)
}

func (r *therapists) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Therapist, error) {
	record := &Therapist{}
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

// ListBySpa resolves the weak spa reference; it never joins or locks the
// spa row.
func (r *therapists) ListBySpa(ctx context.Context, spaID uuid.UUID) ([]*Therapist, error) {
	var records []*Therapist
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.spa_id = ?", spaID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// TherapistStatusUpdateOption mutates the columns written alongside a
// status CAS.
type TherapistStatusUpdateOption func(*therapistStatusUpdate)

type therapistStatusUpdate struct {
	record  *Therapist
	columns []string
}

// WithTherapistRejectionReason records (or clears) the rejection reason.
func WithTherapistRejectionReason(reason string) TherapistStatusUpdateOption {
	return func(u *therapistStatusUpdate) {
		u.record.RejectionReason = strings.TrimSpace(reason)
		u.columns = append(u.columns, "rejection_reason")
	}
}

// WithTherapistTerminationReason records (or clears) the termination reason.
func WithTherapistTerminationReason(reason string) TherapistStatusUpdateOption {
	return func(u *therapistStatusUpdate) {
		u.record.TerminationReason = strings.TrimSpace(reason)
		u.columns = append(u.columns, "termination_reason")
	}
}

// WithTherapistStatusChangedAt overrides the transition timestamp.
func WithTherapistStatusChangedAt(at time.Time) TherapistStatusUpdateOption {
	return func(u *therapistStatusUpdate) {
		u.record.StatusChangedAt = &at
	}
}

func (r *therapists) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next TherapistStatus, opts ...TherapistStatusUpdateOption) (*Therapist, error) {
	return r.UpdateStatusTx(ctx, r.db, id, expected, next, opts...)
}

// UpdateStatusTx applies the status change only when the stored status
// still matches expected; zero affected rows surfaces ErrConflict.
func (r *therapists) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expected, next TherapistStatus, opts ...TherapistStatusUpdateOption) (*Therapist, error) {
	update := &therapistStatusUpdate{
		record:  &Therapist{ID: id, Status: next},
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

// CountByStatus recomputes the per-status summary at query time.
func (r *therapists) CountByStatus(ctx context.Context) (map[TherapistStatus]int, error) {
	var rows []struct {
		Status TherapistStatus `bun:"status"`
		Count  int             `bun:"count"`
	}

	err := r.db.NewSelect().
		Model((*Therapist)(nil)).
		ColumnExpr("status, count(*) AS count").
		Where("deleted_at IS NULL").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	counts := make(map[TherapistStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func prepareTherapistDefaults(record *Therapist) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
