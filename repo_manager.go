package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories plus the transaction scope
// that keeps status writes and audit appends atomic.
type RepositoryManager interface {
	repository.Validator
	Spas() Spas
	Therapists() Therapists
	Credentials() Credentials
	Sessions() Sessions
	AuditEvents() AuditEvents
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

type mngr struct {
	db          *bun.DB
	spas        Spas
	therapists  Therapists
	credentials Credentials
	sessions    Sessions
	auditEvents AuditEvents
}

// NewRepositoryManager wires every repository over one bun.DB handle.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:          db,
		spas:        NewSpasRepository(db),
		therapists:  NewTherapistsRepository(db),
		credentials: NewCredentialsRepository(db),
		sessions:    NewSessionsRepository(db),
		auditEvents: NewAuditEventsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.spas == nil {
		return errors.New("repository spas should be initialized")
	}

	if m.therapists == nil {
		return errors.New("repository therapists should be initialized")
	}

	if m.credentials == nil {
		return errors.New("repository credentials should be initialized")
	}

	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}

	if m.auditEvents == nil {
		return errors.New("repository auditEvents should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Spas() Spas {
	return m.spas
}

func (m mngr) Therapists() Therapists {
	return m.therapists
}

func (m mngr) Credentials() Credentials {
	return m.credentials
}

func (m mngr) Sessions() Sessions {
	return m.sessions
}

func (m mngr) AuditEvents() AuditEvents {
	return m.auditEvents
}
