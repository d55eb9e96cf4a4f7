package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// Action is an operator- or system-requested lifecycle transition.
type Action string

const (
	ActionApprove           Action = "approve"
	ActionReject            Action = "reject"
	ActionVerifyByPayment   Action = "verify-by-payment"
	ActionBlacklist         Action = "blacklist"
	ActionUnblacklist       Action = "unblacklist"
	ActionTerminate         Action = "terminate"
	ActionResign            Action = "resign"
	ActionRemoveTermination Action = "remove-termination"
)

// ParseAction validates an action string coming from the HTTP surface.
func ParseAction(raw string) (Action, bool) {
	switch Action(raw) {
	case ActionApprove, ActionReject, ActionVerifyByPayment, ActionBlacklist,
		ActionUnblacklist, ActionTerminate, ActionResign, ActionRemoveTermination:
		return Action(raw), true
	default:
		return "", false
	}
}

// RequiresReason reports whether the action records an operator-supplied
// reason. Blank reasons fail with ErrMissingReason.
func (a Action) RequiresReason() bool {
	switch a {
	case ActionReject, ActionBlacklist, ActionTerminate:
		return true
	default:
		return false
	}
}

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor      ActorRef
	EntityType EntityType
	EntityID   string
	From       string
	To         string
	Action     Action
	Meta       TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

// StateMachineOption customizes state machine construction. Both entity
// machines share the same option set.
type StateMachineOption func(*machineCore)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock Clock) StateMachineOption {
	return func(m *machineCore) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithStateMachineNotifier sets the AuditNotifier that receives best-effort
// copies of appended audit events.
func WithStateMachineNotifier(notifier AuditNotifier) StateMachineOption {
	return func(m *machineCore) {
		m.notifier = normalizeAuditNotifier(notifier)
	}
}

// WithStateMachineLogger overrides the logger used for notifier failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(m *machineCore) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are
// propagated. The default handler panics with guidance for developers.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(m *machineCore) {
		if handler != nil {
			m.hookErrorHandler = handler
		}
	}
}

// machineCore holds the collaborators shared by both entity machines.
type machineCore struct {
	clock            Clock
	notifier         AuditNotifier
	logger           Logger
	hookErrorHandler HookErrorHandler
}

func newMachineCore(opts ...StateMachineOption) machineCore {
	core := machineCore{
		clock:            SystemClock(),
		notifier:         noopAuditNotifier{},
		logger:           defLogger{},
		hookErrorHandler: defaultHookErrorHandler,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&core)
		}
	}

	return core
}

func (m *machineCore) now() time.Time {
	return m.clock.Now()
}

func (m *machineCore) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if m.hookErrorHandler == nil {
				return err
			}
			return m.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (m *machineCore) notify(ctx context.Context, event AuditEvent) {
	if err := m.notifier.Notify(ctx, event); err != nil {
		m.logger.Error("state machine audit notifier error: %v", err)
	}
}

func defaultHookErrorHandler(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
	panic(fmt.Sprintf(
		"go-lifecycle: %s transition hook failed: %v\n%s %s from=%s to=%s reason=%s\nProvide lifecycle.WithStateMachineHookErrorHandler to customize error handling in production.",
		phase,
		err,
		tc.EntityType,
		tc.EntityID,
		tc.From,
		tc.To,
		tc.Meta.Reason,
	))
}
