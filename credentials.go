package lifecycle

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// CredentialManager issues, validates, and revokes short-lived
// third-party accounts. Expiry is checked on every validation call, not
// only at issuance; revoke is the only deletion path.
type CredentialManager interface {
	Issue(ctx context.Context, username, password string, durationHours int) (*ThirdPartyCredential, error)
	Validate(ctx context.Context, username, password string) (*AuthenticatedPrincipal, error)
	Revoke(ctx context.Context, id uuid.UUID, actor ActorRef) error
	// Sweep emits one credential.expired audit event per newly expired
	// credential. It never mutates expiry itself, which stays derived.
	Sweep(ctx context.Context) error
	// StartSweep schedules Sweep on the given interval.
	StartSweep(scheduler Scheduler, interval time.Duration) (stop func())
}

// CredentialManagerOption customizes manager construction.
type CredentialManagerOption func(*credentialManager)

// WithCredentialClock injects a custom clock (useful for tests).
func WithCredentialClock(clock Clock) CredentialManagerOption {
	return func(m *credentialManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithCredentialLogger overrides the default logger.
func WithCredentialLogger(logger Logger) CredentialManagerOption {
	return func(m *credentialManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithCredentialNotifier receives best-effort copies of credential audit
// events.
func WithCredentialNotifier(notifier AuditNotifier) CredentialManagerOption {
	return func(m *credentialManager) {
		m.notifier = normalizeAuditNotifier(notifier)
	}
}

// WithCredentialDuration overrides the default credential lifetime used
// when the caller does not pass one.
func WithCredentialDuration(d time.Duration) CredentialManagerOption {
	return func(m *credentialManager) {
		if d > 0 {
			m.defaultDuration = d
		}
	}
}

// WithCredentialHashCost overrides the bcrypt cost used when hashing
// issued passwords. Hosts with Config wiring pass GetPasswordHashCost.
func WithCredentialHashCost(cost int) CredentialManagerOption {
	return func(m *credentialManager) {
		if cost > 0 {
			m.hashCost = cost
		}
	}
}

// WithDeterministicCredentialIDs derives credential ids from username and
// issue time instead of random UUIDs.
func WithDeterministicCredentialIDs() CredentialManagerOption {
	return func(m *credentialManager) {
		m.useHashid = true
	}
}

// NewCredentialManager returns the default implementation backed by the
// provided repository manager.
func NewCredentialManager(repo RepositoryManager, opts ...CredentialManagerOption) CredentialManager {
	m := &credentialManager{
		repo:            repo,
		clock:           SystemClock(),
		logger:          defLogger{},
		notifier:        noopAuditNotifier{},
		defaultDuration: DefaultCredentialDuration,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

type credentialManager struct {
	repo            RepositoryManager
	clock           Clock
	logger          Logger
	notifier        AuditNotifier
	defaultDuration time.Duration
	hashCost        int
	useHashid       bool
}

// Issue creates a credential whose expiry is issuedAt plus the fixed
// duration. An active credential holding the username blocks issuance;
// expired usernames may be reissued.
func (m *credentialManager) Issue(ctx context.Context, username, password string, durationHours int) (*ThirdPartyCredential, error) {
	if blankReason(username) {
		return nil, goerrors.New("username must not be empty", goerrors.CategoryValidation)
	}

	now := m.clock.Now()

	if _, err := m.repo.Credentials().ActiveByUsername(ctx, username, now); err == nil {
		return nil, ErrDuplicateUsername.WithMetadata(map[string]any{
			"username": username,
		})
	} else if !isNotFound(err) {
		return nil, err
	}

	hash, err := HashPasswordWithCost(password, m.hashCost)
	if err != nil {
		return nil, err
	}

	duration := m.defaultDuration
	if durationHours > 0 {
		duration = time.Duration(durationHours) * time.Hour
	}

	cred := &ThirdPartyCredential{
		Username:     username,
		PasswordHash: hash,
		IssuedAt:     now,
		ExpiresAt:    now.Add(duration),
	}

	if m.useHashid {
		if id, err := hashid.NewUUID(fmt.Sprintf("%s:%d", username, now.UnixNano())); err == nil {
			cred.ID = id
		}
	}

	created, err := m.repo.Credentials().CreateCredential(ctx, cred)
	if err != nil {
		// The insert itself refuses when another issuer claimed the
		// username between the check above and the write.
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeDuplicateUsername {
			return nil, err
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create credential")
	}

	m.record(ctx, &AuditEvent{
		EntityType: EntityTypeCredential,
		EntityID:   created.ID,
		EventType:  AuditEventCredentialIssued,
		ToStatus:   string(CredentialStatusActive),
		ActorType:  "admin",
		OccurredAt: now,
	})

	return created, nil
}

// Validate resolves a username/password pair to a read-only principal.
// The expiry predicate runs on every call: a credential that was valid at
// issuance but is presented after expiresAt fails even though its
// cryptographic material is unchanged.
func (m *credentialManager) Validate(ctx context.Context, username, password string) (*AuthenticatedPrincipal, error) {
	cred, err := m.repo.Credentials().NewestByUsername(ctx, username)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := m.clock.Now()
	if cred.StatusAt(now) == CredentialStatusExpired {
		return nil, ErrCredentialExpired.WithMetadata(map[string]any{
			"username":   username,
			"expires_at": cred.ExpiresAt,
		})
	}

	if err := ComparePasswordAndHash(password, cred.PasswordHash); err != nil {
		return nil, err
	}

	// Successful validation records the login without extending expiry.
	if err := m.repo.Credentials().TrackLogin(ctx, cred.ID, now); err != nil {
		m.logger.Error("credential manager track login: %v", err)
	}

	m.record(ctx, &AuditEvent{
		EntityType: EntityTypeCredential,
		EntityID:   cred.ID,
		EventType:  AuditEventCredentialLogin,
		ToStatus:   string(CredentialStatusActive),
		ActorID:    username,
		ActorType:  "third-party",
		OccurredAt: now,
	})

	return &AuthenticatedPrincipal{
		CredentialID: cred.ID.String(),
		Username:     cred.Username,
		Scope:        ScopeThirdPartyReadOnly,
		ExpiresAt:    cred.ExpiresAt,
	}, nil
}

// Revoke physically deletes the credential. Never called automatically.
func (m *credentialManager) Revoke(ctx context.Context, id uuid.UUID, actor ActorRef) error {
	if err := m.repo.Credentials().HardDelete(ctx, id); err != nil {
		return err
	}

	m.record(ctx, &AuditEvent{
		EntityType: EntityTypeCredential,
		EntityID:   id,
		EventType:  AuditEventCredentialRevoked,
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		OccurredAt: m.clock.Now(),
	})

	return nil
}

// Sweep claims newly expired credentials and emits their expiry events.
// The claim flips a flag, so re-running the sweep is a no-op for
// credentials already announced.
func (m *credentialManager) Sweep(ctx context.Context) error {
	claimed, err := m.repo.Credentials().ClaimExpiryNotice(ctx, m.clock.Now())
	if err != nil {
		return err
	}

	for _, cred := range claimed {
		m.record(ctx, &AuditEvent{
			EntityType: EntityTypeCredential,
			EntityID:   cred.ID,
			EventType:  AuditEventCredentialExpired,
			FromStatus: string(CredentialStatusActive),
			ToStatus:   string(CredentialStatusExpired),
			ActorType:  "system",
			OccurredAt: cred.ExpiresAt,
		})
	}

	return nil
}

func (m *credentialManager) StartSweep(scheduler Scheduler, interval time.Duration) func() {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return scheduler.Every(interval, func() {
		if err := m.Sweep(context.Background()); err != nil {
			m.logger.Error("credential sweep: %v", err)
		}
	})
}

func (m *credentialManager) record(ctx context.Context, event *AuditEvent) {
	if err := m.repo.AuditEvents().Append(ctx, event); err != nil {
		m.logger.Error("credential manager audit append: %v", err)
	}
	if err := m.notifier.Notify(ctx, *event); err != nil {
		m.logger.Error("credential manager audit notifier: %v", err)
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == TextCodeRecordNotFound || richErr.Category == goerrors.CategoryNotFound
	}
	return false
}
