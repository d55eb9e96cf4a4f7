package lifecycle

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// PaymentStateChangedMessage is the signal delivered by the payments
// system when a spa's fee obligation changes.
type PaymentStateChangedMessage struct {
	SpaID uuid.UUID    `json:"spa_id"`
	State PaymentState `json:"state"`
}

func (e PaymentStateChangedMessage) Type() string { return "spa.payment_state_changed" }

type PaymentStateChangedHandler struct {
	repo    RepositoryManager
	machine SpaStateMachine
}

// NewPaymentStateChangedHandler wires the payment signal to the spa
// state machine.
func NewPaymentStateChangedHandler(repo RepositoryManager, machine SpaStateMachine) *PaymentStateChangedHandler {
	return &PaymentStateChangedHandler{repo: repo, machine: machine}
}

func (h *PaymentStateChangedHandler) Execute(ctx context.Context, event PaymentStateChangedMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during payment state change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PaymentStateChangedHandler) execute(ctx context.Context, event PaymentStateChangedMessage) error {
	if !event.State.IsValid() {
		return goerrors.New("unknown payment state", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"payment_state": event.State})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	spa, err := h.repo.Spas().FindByID(ctx, event.SpaID)
	if err != nil {
		return err
	}

	if _, err := h.machine.ApplyPaymentState(ctx, spa, event.State); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply payment state")
	}

	return nil
}
