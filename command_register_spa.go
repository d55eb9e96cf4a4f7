package lifecycle

import (
	"context"
	"net/mail"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

type RegisterSpaMessage struct {
	Name         string `json:"name"`
	OwnerContact string `json:"owner_contact"`
	UseHashid    bool
	OnResponse   func(spa *Spa)
}

func (e RegisterSpaMessage) Type() string { return "spa.register" }

type RegisterSpaHandler struct {
	repo RepositoryManager
}

// NewRegisterSpaHandler wires a registration handler to the repository
// manager.
func NewRegisterSpaHandler(repo RepositoryManager) *RegisterSpaHandler {
	return &RegisterSpaHandler{repo: repo}
}

func (h *RegisterSpaHandler) Execute(ctx context.Context, event RegisterSpaMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during spa registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterSpaHandler) execute(ctx context.Context, event RegisterSpaMessage) error {
	spa := &Spa{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if strings.TrimSpace(event.Name) == "" {
			return goerrors.New("spa name must not be empty", goerrors.CategoryValidation)
		}

		contact, err := normalizeOwnerContact(event.OwnerContact)
		if err != nil {
			return err
		}

		spa.Name = strings.TrimSpace(event.Name)
		spa.OwnerContact = contact
		if event.UseHashid {
			if id, err := hashid.NewUUID(contact + ":" + spa.Name); err == nil {
				spa.ID = id
			}
		}

		if spa, err = h.repo.Spas().RegisterTx(ctx, tx, spa); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not register spa")
		}

		// Registration seeds the audit trail so the projection can show
		// the full history from day one.
		return h.repo.AuditEvents().AppendTx(ctx, tx, &AuditEvent{
			EntityType: EntityTypeSpa,
			EntityID:   spa.ID,
			EventType:  AuditEventSpaStatusChanged,
			ToStatus:   string(SpaStatusPending),
			ActorID:    contact,
			ActorType:  "applicant",
			OccurredAt: time.Now(),
		})
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "spa registration transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(spa)
	}

	return nil
}

// normalizeOwnerContact accepts either an email address or an
// international phone number and returns the canonical form.
func normalizeOwnerContact(contact string) (string, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return "", goerrors.New("owner contact must not be empty", goerrors.CategoryValidation)
	}

	if strings.Contains(contact, "@") {
		addr, err := mail.ParseAddress(contact)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid owner contact email")
		}
		return addr.Address, nil
	}

	num, err := phonenumbers.Parse(contact, "")
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid owner contact phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("owner contact phone number is not valid", goerrors.CategoryValidation)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
