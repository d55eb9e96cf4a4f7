package lifecycle

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// TherapistStateMachine defines lifecycle operations for therapists.
type TherapistStateMachine interface {
	Apply(ctx context.Context, actor ActorRef, therapist *Therapist, action Action, opts ...TransitionOption) (*Therapist, error)
	CurrentStatus(therapist *Therapist) TherapistStatus
}

// NewTherapistStateMachine returns the default implementation backed by
// the provided repository manager.
func NewTherapistStateMachine(repo RepositoryManager, opts ...StateMachineOption) TherapistStateMachine {
	return &therapistStateMachine{
		machineCore: newMachineCore(opts...),
		repo:        repo,
	}
}

type therapistStateMachine struct {
	machineCore
	repo RepositoryManager
}

var therapistTransitions = map[Action]map[TherapistStatus]TherapistStatus{
	ActionApprove: {
		TherapistStatusPending: TherapistStatusApproved,
	},
	ActionReject: {
		TherapistStatusPending: TherapistStatusRejected,
	},
	ActionTerminate: {
		TherapistStatusApproved: TherapistStatusTerminated,
	},
	ActionResign: {
		TherapistStatusApproved: TherapistStatusResigned,
	},
	// The only legal reversal out of a terminal status: administrative
	// correction of a termination recorded in error.
	ActionRemoveTermination: {
		TherapistStatusTerminated: TherapistStatusResigned,
	},
}

// decideTherapist is the pure decision step.
func decideTherapist(from TherapistStatus, action Action, reason string) (TherapistStatus, error) {
	targets, ok := therapistTransitions[action]
	if !ok {
		return "", ErrInvalidTransition.WithMetadata(map[string]any{
			"from":   from,
			"action": action,
		})
	}

	if from.IsTerminal() && !(from == TherapistStatusTerminated && action == ActionRemoveTermination) {
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

func (sm *therapistStateMachine) Apply(ctx context.Context, actor ActorRef, therapist *Therapist, action Action, opts ...TransitionOption) (*Therapist, error) {
	if therapist == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"action": action,
			"reason": "therapist is nil",
		})
	}

	therapist.EnsureStatus()
	from := therapist.Status
	options := buildTransitionOptions(opts...)

	target, err := decideTherapist(from, action, options.metadata.Reason)
	if err != nil {
		return nil, err
	}

	ctxData := TransitionContext{
		Actor:      actor,
		EntityType: EntityTypeTherapist,
		EntityID:   therapist.ID.String(),
		From:       string(from),
		To:         string(target),
		Action:     action,
		Meta:       options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, ctxData, HookPhaseBefore); err != nil {
		return nil, err
	}

	statusOpts := sm.buildStatusOptions(action, options)
	event := sm.buildEvent(actor, therapist, from, target, options.metadata.Reason)

	updated, err := sm.commit(ctx, therapist, from, target, statusOpts, event)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(therapist, updated, target)

	if err := sm.runHooks(ctx, options.afterHooks, ctxData, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.notify(ctx, *event)

	return therapist, nil
}

func (sm *therapistStateMachine) CurrentStatus(therapist *Therapist) TherapistStatus {
	if therapist == nil {
		return ""
	}
	therapist.EnsureStatus()
	return therapist.Status
}

func (sm *therapistStateMachine) buildStatusOptions(action Action, options *transitionOptions) []TherapistStatusUpdateOption {
	switch action {
	case ActionReject:
		return []TherapistStatusUpdateOption{WithTherapistRejectionReason(options.metadata.Reason)}
	case ActionTerminate:
		return []TherapistStatusUpdateOption{WithTherapistTerminationReason(options.metadata.Reason)}
	case ActionRemoveTermination:
		// The correction clears the recorded termination reason.
		return []TherapistStatusUpdateOption{WithTherapistTerminationReason("")}
	default:
		return nil
	}
}

func (sm *therapistStateMachine) buildEvent(actor ActorRef, therapist *Therapist, from, target TherapistStatus, reason string) *AuditEvent {
	if actor == (ActorRef{}) {
		actor = ActorRef{Type: "system"}
	}

	return &AuditEvent{
		EntityType: EntityTypeTherapist,
		EntityID:   therapist.ID,
		EventType:  AuditEventTherapistStatusChanged,
		FromStatus: string(from),
		ToStatus:   string(target),
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		Reason:     reason,
		OccurredAt: sm.now(),
	}
}

func (sm *therapistStateMachine) commit(ctx context.Context, therapist *Therapist, from, target TherapistStatus, statusOpts []TherapistStatusUpdateOption, event *AuditEvent) (*Therapist, error) {
	var updated *Therapist

	statusOpts = append(statusOpts, WithTherapistStatusChangedAt(event.OccurredAt))

	err := sm.repo.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		updated, err = sm.repo.Therapists().UpdateStatusTx(ctx, tx, therapist.ID, from, target, statusOpts...)
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

func (sm *therapistStateMachine) applyUpdates(therapist, updated *Therapist, target TherapistStatus) {
	if updated == nil {
		therapist.Status = target
		return
	}

	if updated.Status != "" {
		therapist.Status = updated.Status
	} else {
		therapist.Status = target
	}
	therapist.RejectionReason = updated.RejectionReason
	therapist.TerminationReason = updated.TerminationReason
	therapist.StatusChangedAt = updated.StatusChangedAt
	therapist.UpdatedAt = updated.UpdatedAt
}
