package lifecycle

import (
	"context"
	"time"
)

// LogoutHandler runs exactly once when a session expires, whichever path
// (sweep or lazy check) discovers it first.
type LogoutHandler func(ctx context.Context, principalID string)

// SessionGuard enforces the per-principal inactivity timeout. Both the
// periodic sweep and the lazy IsValid path evaluate the same predicate,
// so they can never disagree about whether a session is alive.
type SessionGuard interface {
	StartSession(ctx context.Context, principalID, token string) (*AdminSession, error)
	// Touch refreshes last activity for every recognized interaction
	// event. Expired sessions are not resurrected.
	Touch(ctx context.Context, principalID string) error
	// IsValid reconciles the persisted last activity against the clock;
	// a session that timed out while the client was closed reports
	// invalid on return.
	IsValid(ctx context.Context, principalID string) (bool, error)
	// Expire forces the session out, firing the logout side effect at
	// most once.
	Expire(ctx context.Context, principalID string) error
	Sweep(ctx context.Context) error
	StartSweep(scheduler Scheduler, interval time.Duration) (stop func())
}

// SessionGuardOption customizes guard construction.
type SessionGuardOption func(*sessionGuard)

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock Clock) SessionGuardOption {
	return func(g *sessionGuard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithSessionTimeout overrides the default 10 minute inactivity window.
func WithSessionTimeout(timeout time.Duration) SessionGuardOption {
	return func(g *sessionGuard) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// WithSessionLogger overrides the default logger.
func WithSessionLogger(logger Logger) SessionGuardOption {
	return func(g *sessionGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithSessionLogoutHandler registers the logout side effect.
func WithSessionLogoutHandler(handler LogoutHandler) SessionGuardOption {
	return func(g *sessionGuard) {
		if handler != nil {
			g.onLogout = handler
		}
	}
}

// WithSessionNotifier receives best-effort copies of session audit events.
func WithSessionNotifier(notifier AuditNotifier) SessionGuardOption {
	return func(g *sessionGuard) {
		g.notifier = normalizeAuditNotifier(notifier)
	}
}

// NewSessionGuard returns the default implementation backed by the
// provided repository manager.
func NewSessionGuard(repo RepositoryManager, opts ...SessionGuardOption) SessionGuard {
	g := &sessionGuard{
		repo:     repo,
		clock:    SystemClock(),
		timeout:  DefaultSessionTimeout,
		logger:   defLogger{},
		notifier: noopAuditNotifier{},
		onLogout: func(context.Context, string) {},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

type sessionGuard struct {
	repo     RepositoryManager
	clock    Clock
	timeout  time.Duration
	logger   Logger
	notifier AuditNotifier
	onLogout LogoutHandler
}

func (g *sessionGuard) StartSession(ctx context.Context, principalID, token string) (*AdminSession, error) {
	now := g.clock.Now()
	session := &AdminSession{
		PrincipalID:    principalID,
		Token:          token,
		LoginAt:        now,
		LastActivityAt: now,
	}
	return g.repo.Sessions().Start(ctx, session)
}

func (g *sessionGuard) Touch(ctx context.Context, principalID string) error {
	return g.repo.Sessions().Touch(ctx, principalID, g.clock.Now())
}

// expired is the single expiry predicate shared by IsValid and Sweep.
func (g *sessionGuard) expired(session *AdminSession, now time.Time) bool {
	return now.Sub(session.LastActivityAt) >= g.timeout
}

func (g *sessionGuard) IsValid(ctx context.Context, principalID string) (bool, error) {
	session, err := g.repo.Sessions().FindByPrincipal(ctx, principalID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}

	if session.ExpiredAt != nil {
		return false, nil
	}

	now := g.clock.Now()
	if g.expired(session, now) {
		// Lazy discovery: claim the expiry so the logout effect still
		// fires exactly once even without the sweep.
		if err := g.Expire(ctx, principalID); err != nil {
			g.logger.Error("session guard lazy expire: %v", err)
		}
		return false, nil
	}

	return true, nil
}

func (g *sessionGuard) Expire(ctx context.Context, principalID string) error {
	now := g.clock.Now()
	claimed, err := g.repo.Sessions().ClaimExpiry(ctx, principalID, now)
	if err != nil {
		return err
	}
	if claimed == nil {
		// Already expired; re-checking is a no-op, not a second logout.
		return nil
	}

	event := &AuditEvent{
		EntityType: EntityTypeSession,
		EntityID:   claimed.ID,
		EventType:  AuditEventSessionExpired,
		ActorID:    principalID,
		ActorType:  "system",
		OccurredAt: now,
	}
	if err := g.repo.AuditEvents().Append(ctx, event); err != nil {
		g.logger.Error("session guard audit append: %v", err)
	}
	if err := g.notifier.Notify(ctx, *event); err != nil {
		g.logger.Error("session guard audit notifier: %v", err)
	}

	g.onLogout(ctx, principalID)

	return nil
}

// Sweep expires every session idle past the timeout.
func (g *sessionGuard) Sweep(ctx context.Context) error {
	now := g.clock.Now()
	stale, err := g.repo.Sessions().StaleBefore(ctx, now.Add(-g.timeout))
	if err != nil {
		return err
	}

	for _, session := range stale {
		if err := g.Expire(ctx, session.PrincipalID); err != nil {
			g.logger.Error("session guard sweep expire %s: %v", session.PrincipalID, err)
		}
	}

	return nil
}

func (g *sessionGuard) StartSweep(scheduler Scheduler, interval time.Duration) func() {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return scheduler.Every(interval, func() {
		if err := g.Sweep(context.Background()); err != nil {
			g.logger.Error("session sweep: %v", err)
		}
	})
}
