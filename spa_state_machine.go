package lifecycle

import (
	"context"
	"database/sql"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// SpaStateMachine defines lifecycle operations for spas. Operator actions
// go through Apply; payment facts go through ApplyPaymentState and are
// never triggered by operators directly.
type SpaStateMachine interface {
	Apply(ctx context.Context, actor ActorRef, spa *Spa, action Action, opts ...TransitionOption) (*Spa, error)
	ApplyPaymentState(ctx context.Context, spa *Spa, state PaymentState, opts ...TransitionOption) (*Spa, error)
	CurrentStatus(spa *Spa) SpaStatus
}

// NewSpaStateMachine returns the default implementation backed by the
// provided repository manager.
func NewSpaStateMachine(repo RepositoryManager, opts ...StateMachineOption) SpaStateMachine {
	return &spaStateMachine{
		machineCore: newMachineCore(opts...),
		repo:        repo,
	}
}

type spaStateMachine struct {
	machineCore
	repo RepositoryManager
}

// spaTransitions is the fixed operator-action table. Payment-driven moves
// live in paymentTarget, not here.
var spaTransitions = map[Action]map[SpaStatus]SpaStatus{
	ActionApprove: {
		SpaStatusPending: SpaStatusApproved,
	},
	ActionReject: {
		SpaStatusPending: SpaStatusRejected,
	},
	ActionBlacklist: {
		SpaStatusApproved:   SpaStatusBlacklisted,
		SpaStatusVerified:   SpaStatusBlacklisted,
		SpaStatusUnverified: SpaStatusBlacklisted,
	},
	ActionUnblacklist: {
		SpaStatusBlacklisted: SpaStatusApproved,
	},
}

// decideSpa is the pure decision step: no reads, no writes, no clock.
func decideSpa(from SpaStatus, action Action, reason string) (SpaStatus, error) {
	if action == ActionVerifyByPayment {
		return "", ErrInvalidTransition.WithMetadata(map[string]any{
			"from":   from,
			"action": action,
			"reason": "payment transitions are driven by payment facts, not operators",
		})
	}

	targets, ok := spaTransitions[action]
	if !ok {
		return "", ErrInvalidTransition.WithMetadata(map[string]any{
			"from":   from,
			"action": action,
		})
	}

	if from.IsTerminal() && !(from == SpaStatusBlacklisted && action == ActionUnblacklist) {
		return "", ErrTerminalStatus.WithMetadata(map[string]any{
			"from":   from,
			"action": action,
		})
	}

	target, ok := targets[from]
	if !ok {
		return "", ErrInvalidTransition.WithMetadata(map[string]any{
			"from":   from,
			"action": action,
		})
	}

	if action.RequiresReason() && blankReason(reason) {
		return "", ErrMissingReason.WithMetadata(map[string]any{
			"action": action,
		})
	}

	return target, nil
}

func (sm *spaStateMachine) Apply(ctx context.Context, actor ActorRef, spa *Spa, action Action, opts ...TransitionOption) (*Spa, error) {
	if spa == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"action": action,
			"reason": "spa is nil",
		})
	}

	spa.EnsureStatus()
	from := spa.Status
	options := buildTransitionOptions(opts...)

	target, err := decideSpa(from, action, options.metadata.Reason)
	if err != nil {
		return nil, err
	}

	ctxData := TransitionContext{
		Actor:      actor,
		EntityType: EntityTypeSpa,
		EntityID:   spa.ID.String(),
		From:       string(from),
		To:         string(target),
		Action:     action,
		Meta:       options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, ctxData, HookPhaseBefore); err != nil {
		return nil, err
	}

	statusOpts := sm.buildStatusOptions(action, options)
	event := sm.buildEvent(actor, spa, from, target, options.metadata.Reason)

	updated, err := sm.commit(ctx, spa, from, target, statusOpts, event)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(spa, updated, target)

	if err := sm.runHooks(ctx, options.afterHooks, ctxData, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.notify(ctx, *event)

	return spa, nil
}

// ApplyPaymentState reacts to a payment-state-changed signal. Applying the
// same fact twice yields the same status and no second audit event; the
// dedupe compares the derived target against the current status before
// writing anything.
func (sm *spaStateMachine) ApplyPaymentState(ctx context.Context, spa *Spa, state PaymentState, opts ...TransitionOption) (*Spa, error) {
	if spa == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "spa is nil",
		})
	}
	if !state.IsValid() {
		return nil, goerrors.New("unknown payment state", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"payment_state": state})
	}

	spa.EnsureStatus()
	from := spa.Status
	target := paymentTarget(from, state)

	if target == from {
		if spa.PaymentState == state {
			return spa, nil
		}
		err := sm.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return sm.repo.Spas().UpdatePaymentStateTx(ctx, tx, spa.ID, state)
		})
		if err != nil {
			return nil, err
		}
		spa.PaymentState = state
		return spa, nil
	}

	options := buildTransitionOptions(opts...)
	actor := ActorRef{Type: "system", ID: "payments"}

	ctxData := TransitionContext{
		Actor:      actor,
		EntityType: EntityTypeSpa,
		EntityID:   spa.ID.String(),
		From:       string(from),
		To:         string(target),
		Action:     ActionVerifyByPayment,
		Meta:       options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, ctxData, HookPhaseBefore); err != nil {
		return nil, err
	}

	statusOpts := []SpaStatusUpdateOption{WithSpaPaymentState(state)}
	event := sm.buildEvent(actor, spa, from, target, "payment state changed to "+string(state))

	updated, err := sm.commit(ctx, spa, from, target, statusOpts, event)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(spa, updated, target)
	spa.PaymentState = state

	if err := sm.runHooks(ctx, options.afterHooks, ctxData, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.notify(ctx, *event)

	return spa, nil
}

func (sm *spaStateMachine) CurrentStatus(spa *Spa) SpaStatus {
	if spa == nil {
		return ""
	}
	spa.EnsureStatus()
	return spa.Status
}

// paymentTarget derives the payment-driven status. Outside the approved
// family payment facts are recorded but never move the status, so a
// blacklisted spa ignores a late payment.
func paymentTarget(from SpaStatus, state PaymentState) SpaStatus {
	if !from.IsApprovedFamily() {
		return from
	}
	if state == PaymentStatePaid {
		return SpaStatusVerified
	}
	return SpaStatusUnverified
}

func (sm *spaStateMachine) buildStatusOptions(action Action, options *transitionOptions) []SpaStatusUpdateOption {
	switch action {
	case ActionReject:
		return []SpaStatusUpdateOption{WithSpaRejectionReason(options.metadata.Reason)}
	case ActionBlacklist:
		return []SpaStatusUpdateOption{WithSpaBlacklistReason(options.metadata.Reason)}
	case ActionUnblacklist:
		return []SpaStatusUpdateOption{WithSpaBlacklistReason("")}
	default:
		return nil
	}
}

func (sm *spaStateMachine) buildEvent(actor ActorRef, spa *Spa, from, target SpaStatus, reason string) *AuditEvent {
	if actor == (ActorRef{}) {
		actor = ActorRef{Type: "system"}
	}

	return &AuditEvent{
		EntityType: EntityTypeSpa,
		EntityID:   spa.ID,
		EventType:  AuditEventSpaStatusChanged,
		FromStatus: string(from),
		ToStatus:   string(target),
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		Reason:     reason,
		OccurredAt: sm.now(),
	}
}

// commit performs the CAS write and the audit append as one transaction;
// a partially applied transition is never observable.
func (sm *spaStateMachine) commit(ctx context.Context, spa *Spa, from, target SpaStatus, statusOpts []SpaStatusUpdateOption, event *AuditEvent) (*Spa, error) {
	var updated *Spa

	statusOpts = append(statusOpts, WithSpaStatusChangedAt(event.OccurredAt))

	err := sm.repo.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		updated, err = sm.repo.Spas().UpdateStatusTx(ctx, tx, spa.ID, from, target, statusOpts...)
		if err != nil {
			return err
		}
		return sm.repo.AuditEvents().AppendTx(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (sm *spaStateMachine) applyUpdates(spa, updated *Spa, target SpaStatus) {
	if updated == nil {
		spa.Status = target
		return
	}

	if updated.Status != "" {
		spa.Status = updated.Status
	} else {
		spa.Status = target
	}
	spa.RejectionReason = updated.RejectionReason
	spa.BlacklistReason = updated.BlacklistReason
	spa.StatusChangedAt = updated.StatusChangedAt
	spa.UpdatedAt = updated.UpdatedAt
}
