package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Credentials persists third-party credentials. Expiry is always derived
// from expires_at; no writer flips an "expired" column.
type Credentials interface {
	repository.Repository[*ThirdPartyCredential]

	// CreateCredential inserts only while no unexpired credential holds
	// the username; a lost claim returns ErrDuplicateUsername. The
	// condition lives in the insert statement itself, so concurrent
	// issuers cannot both land.
	CreateCredential(ctx context.Context, cred *ThirdPartyCredential) (*ThirdPartyCredential, error)
	CreateCredentialTx(ctx context.Context, tx bun.IDB, cred *ThirdPartyCredential) (*ThirdPartyCredential, error)
	FindByID(ctx context.Context, id uuid.UUID) (*ThirdPartyCredential, error)
	// NewestByUsername returns the most recently issued credential for a
	// username so reissued accounts shadow their expired predecessors.
	NewestByUsername(ctx context.Context, username string) (*ThirdPartyCredential, error)
	// ActiveByUsername returns the credential holding the username at the
	// given instant, or a not-found error when every holder has expired.
	ActiveByUsername(ctx context.Context, username string, now time.Time) (*ThirdPartyCredential, error)
	TrackLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	// ClaimExpiryNotice flips expiry_notified for expired, unnotified
	// credentials and returns the claimed rows. The sweep emits exactly
	// one audit event per credential through this claim.
	ClaimExpiryNotice(ctx context.Context, now time.Time) ([]*ThirdPartyCredential, error)
	HardDelete(ctx context.Context, id uuid.UUID) error
}

type credentials struct {
	repository.Repository[*ThirdPartyCredential]
	db *bun.DB
}

var (
	_ Credentials                                 = (*credentials)(nil)
	_ repository.Repository[*ThirdPartyCredential] = (*credentials)(nil)
)

// NewCredentialsRepository builds the credential repository.
func NewCredentialsRepository(db *bun.DB) Credentials {
	repo := repository.NewRepository[*ThirdPartyCredential](db, repository.ModelHandlers[*ThirdPartyCredential]{
		NewRecord: func() *ThirdPartyCredential { return &ThirdPartyCredential{} },
		GetID: func(c *ThirdPartyCredential) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *ThirdPartyCredential, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &credentials{
		Repository: repo,
		db:         db,
	}
}

func (r *credentials) CreateCredential(ctx context.Context, cred *ThirdPartyCredential) (*ThirdPartyCredential, error) {
	return r.CreateCredentialTx(ctx, r.db, cred)
}

func (r *credentials) CreateCredentialTx(ctx context.Context, tx bun.IDB, cred *ThirdPartyCredential) (*ThirdPartyCredential, error) {
	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	cred.Username = strings.TrimSpace(cred.Username)

	record := &ThirdPartyCredential{}
	err := tx.NewRaw(`
		INSERT INTO "third_party_credentials"
			("id", "username", "password_hash", "issued_at", "expires_at", "expiry_notified")
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM "third_party_credentials"
			WHERE "username" = ? AND "expires_at" > ?
		)
		RETURNING *;
	`,
		cred.ID, cred.Username, cred.PasswordHash, cred.IssuedAt, cred.ExpiresAt, false,
		cred.Username, cred.IssuedAt,
	).Scan(ctx, record)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrDuplicateUsername.WithMetadata(map[string]any{
				"username": cred.Username,
			})
		}
		return nil, err
	}
	return record, nil
}

func (r *credentials) FindByID(ctx context.Context, id uuid.UUID) (*ThirdPartyCredential, error) {
	record := &ThirdPartyCredential{}
	err := r.db.NewSelect().
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
	return record, nil
}

func (r *credentials) NewestByUsername(ctx context.Context, username string) (*ThirdPartyCredential, error) {
	record := &ThirdPartyCredential{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.username = ?", strings.TrimSpace(username)).
		Order("issued_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrRecordNotFound.WithMetadata(map[string]any{
				"username": username,
			})
		}
		return nil, err
	}
	return record, nil
}

func (r *credentials) ActiveByUsername(ctx context.Context, username string, now time.Time) (*ThirdPartyCredential, error) {
	record := &ThirdPartyCredential{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.username = ?", strings.TrimSpace(username)).
		Where("?TableAlias.expires_at > ?", now).
		Order("issued_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrRecordNotFound.WithMetadata(map[string]any{
				"username": username,
			})
		}
		return nil, err
	}
	return record, nil
}

// TrackLogin updates last_login_at only; expires_at never moves (no
// sliding expiry).
func (r *credentials) TrackLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.NewRaw(`
		UPDATE "third_party_credentials" AS "tpc"
		SET
			"last_login_at" = ?
		WHERE
			("tpc".id = ?);
	`, at, id).Exec(ctx)

	return err
}

func (r *credentials) ClaimExpiryNotice(ctx context.Context, now time.Time) ([]*ThirdPartyCredential, error) {
	var claimed []*ThirdPartyCredential
	err := r.db.NewUpdate().
		Model((*ThirdPartyCredential)(nil)).
		Set("expiry_notified = ?", true).
		Where("expires_at <= ?", now).
		Where("expiry_notified = ?", false).
		Returning("*").
		Scan(ctx, &claimed)
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// HardDelete removes the credential row. This is the only physical
// deletion path; expiry never deletes.
func (r *credentials) HardDelete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*ThirdPartyCredential)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRecordNotFound.WithMetadata(map[string]any{
			"id": id.String(),
		})
	}
	return nil
}
