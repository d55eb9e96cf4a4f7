package lifecycle

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sessions persists administrative sessions. Expiry is claimed through a
// conditional update so the logout side effect fires exactly once even
// when the sweep and a lazy check race.
type Sessions interface {
	Start(ctx context.Context, session *AdminSession) (*AdminSession, error)
	FindByPrincipal(ctx context.Context, principalID string) (*AdminSession, error)
	Touch(ctx context.Context, principalID string, at time.Time) error
	// ClaimExpiry marks the session expired and returns the claimed row,
	// or nil when another path already claimed it.
	ClaimExpiry(ctx context.Context, principalID string, at time.Time) (*AdminSession, error)
	// StaleBefore lists unexpired sessions whose last activity predates
	// the cutoff; the sweep expires them one by one via ClaimExpiry.
	StaleBefore(ctx context.Context, cutoff time.Time) ([]*AdminSession, error)
	DeleteByPrincipal(ctx context.Context, principalID string) error
}

type sessions struct {
	db *bun.DB
}

var _ Sessions = (*sessions)(nil)

// NewSessionsRepository builds the admin session repository.
func NewSessionsRepository(db *bun.DB) Sessions {
	return &sessions{db: db}
}

// Start upserts the principal's session row; a fresh login replaces any
// previous (possibly expired) session outright.
func (r *sessions) Start(ctx context.Context, session *AdminSession) (*AdminSession, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	_, err := r.db.NewInsert().
		Model(session).
		On("CONFLICT (principal_id) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("login_at = EXCLUDED.login_at").
		Set("last_activity_at = EXCLUDED.last_activity_at").
		Set("expired_at = NULL").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return session, nil
}

func (r *sessions) FindByPrincipal(ctx context.Context, principalID string) (*AdminSession, error) {
	record := &AdminSession{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.principal_id = ?", principalID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrRecordNotFound.WithMetadata(map[string]any{
				"principal_id": principalID,
			})
		}
		return nil, err
	}
	return record, nil
}

// Touch unconditionally refreshes last_activity_at for a live session.
// Expired sessions are never resurrected by interaction events.
func (r *sessions) Touch(ctx context.Context, principalID string, at time.Time) error {
	_, err := r.db.NewRaw(`
		UPDATE "admin_sessions" AS "ses"
		SET
			"last_activity_at" = ?
		WHERE
			("ses".principal_id = ?)
			AND "ses"."expired_at" IS NULL;
	`, at, principalID).Exec(ctx)

	return err
}

func (r *sessions) ClaimExpiry(ctx context.Context, principalID string, at time.Time) (*AdminSession, error) {
	record := &AdminSession{}
	res, err := r.db.NewUpdate().
		Model(record).
		Set("expired_at = ?", at).
		Where("principal_id = ?", principalID).
		Where("expired_at IS NULL").
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
		return nil, nil
	}
	return record, nil
}

func (r *sessions) StaleBefore(ctx context.Context, cutoff time.Time) ([]*AdminSession, error) {
	var records []*AdminSession
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.expired_at IS NULL").
		Where("?TableAlias.last_activity_at <= ?", cutoff).
		Order("last_activity_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *sessions) DeleteByPrincipal(ctx context.Context, principalID string) error {
	_, err := r.db.NewDelete().
		Model((*AdminSession)(nil)).
		Where("principal_id = ?", principalID).
		Exec(ctx)
	return err
}
