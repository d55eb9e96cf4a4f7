package lifecycle

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EntityType discriminates the two lifecycle-managed entities in the
// unified audit feed.
type EntityType string

const (
	EntityTypeSpa        EntityType = "spa"
	EntityTypeTherapist  EntityType = "therapist"
	EntityTypeCredential EntityType = "credential"
	EntityTypeSession    EntityType = "session"
)

// IsValid checks if the entity type is one of the known kinds.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeSpa, EntityTypeTherapist, EntityTypeCredential, EntityTypeSession:
		return true
	default:
		return false
	}
}

// HasLifecycle reports whether the entity type accepts operator
// transitions through the transition endpoint.
func (t EntityType) HasLifecycle() bool {
	return t == EntityTypeSpa || t == EntityTypeTherapist
}

// SpaStatus is the spa's lifecycle status.
type SpaStatus string

const (
	SpaStatusPending     SpaStatus = "pending"
	SpaStatusApproved    SpaStatus = "approved"
	SpaStatusVerified    SpaStatus = "verified"
	SpaStatusUnverified  SpaStatus = "unverified"
	SpaStatusRejected    SpaStatus = "rejected"
	SpaStatusBlacklisted SpaStatus = "blacklisted"
)

// IsValid checks if the status is one of the predefined spa statuses.
func (s SpaStatus) IsValid() bool {
	switch s {
	case SpaStatusPending, SpaStatusApproved, SpaStatusVerified,
		SpaStatusUnverified, SpaStatusRejected, SpaStatusBlacklisted:
		return true
	default:
		return false
	}
}

// IsApprovedFamily reports whether the spa cleared administrative review.
// Payment-driven transitions only apply within this family.
func (s SpaStatus) IsApprovedFamily() bool {
	switch s {
	case SpaStatusApproved, SpaStatusVerified, SpaStatusUnverified:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no operator action may leave the status.
// Blacklisted is terminal except for the explicit admin reversal, which
// the spa state machine models as its own action.
func (s SpaStatus) IsTerminal() bool {
	return s == SpaStatusRejected || s == SpaStatusBlacklisted
}

// PaymentState tracks the spa's recurring annual-fee obligation.
type PaymentState string

const (
	PaymentStateUnpaid  PaymentState = "unpaid"
	PaymentStatePending PaymentState = "pending"
	PaymentStatePaid    PaymentState = "paid"
	PaymentStateOverdue PaymentState = "overdue"
)

// IsValid checks if the payment state is a known value.
func (p PaymentState) IsValid() bool {
	switch p {
	case PaymentStateUnpaid, PaymentStatePending, PaymentStatePaid, PaymentStateOverdue:
		return true
	default:
		return false
	}
}

// Spa is a registered business entity whose trust status gates its
// visibility and fee obligations.
type Spa struct {
	bun.BaseModel   `bun:"table:spas,alias:spa"`
	ID              uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name            string       `bun:"name,notnull" json:"name,omitempty"`
	OwnerContact    string       `bun:"owner_contact,notnull" json:"owner_contact,omitempty"`
	Status          SpaStatus    `bun:"status,notnull" json:"status,omitempty"`
	PaymentState    PaymentState `bun:"payment_state,notnull" json:"payment_state,omitempty"`
	RejectionReason string       `bun:"rejection_reason" json:"rejection_reason,omitempty"`
	BlacklistReason string       `bun:"blacklist_reason" json:"blacklist_reason,omitempty"`
	StatusChangedAt *time.Time   `bun:"status_changed_at,nullzero" json:"status_changed_at,omitempty"`
	CreatedAt       *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt       *time.Time   `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills zero values so records loaded from older rows
// behave like freshly registered ones.
func (s *Spa) EnsureStatus() {
	if s.Status == "" {
		s.Status = SpaStatusPending
	}
	if s.PaymentState == "" {
		s.PaymentState = PaymentStateUnpaid
	}
}

// IsVerified reports whether the spa is approved and currently paid.
func (s *Spa) IsVerified() bool {
	return s.Status == SpaStatusVerified
}

// IsBlacklisted reports whether the spa was blacklisted.
func (s *Spa) IsBlacklisted() bool {
	return s.Status == SpaStatusBlacklisted
}

// TherapistStatus is the therapist's lifecycle status.
type TherapistStatus string

const (
	TherapistStatusPending    TherapistStatus = "pending"
	TherapistStatusApproved   TherapistStatus = "approved"
	TherapistStatusRejected   TherapistStatus = "rejected"
	TherapistStatusResigned   TherapistStatus = "resigned"
	TherapistStatusTerminated TherapistStatus = "terminated"
)

// IsValid checks if the status is one of the predefined therapist statuses.
func (s TherapistStatus) IsValid() bool {
	switch s {
	case TherapistStatusPending, TherapistStatusApproved, TherapistStatusRejected,
		TherapistStatusResigned, TherapistStatusTerminated:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends the therapist lifecycle.
// Terminated still admits the remove-termination correction.
func (s TherapistStatus) IsTerminal() bool {
	switch s {
	case TherapistStatusRejected, TherapistStatusResigned, TherapistStatusTerminated:
		return true
	default:
		return false
	}
}

// Therapist is a worker entity dependent on a spa, independently vetted.
// SpaID is a weak reference used for lookups only.
type Therapist struct {
	bun.BaseModel     `bun:"table:therapists,alias:thp"`
	ID                uuid.UUID       `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	SpaID             uuid.UUID       `bun:"spa_id,nullzero,type:uuid" json:"spa_id,omitempty"`
	FirstName         string          `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName          string          `bun:"last_name,notnull" json:"last_name,omitempty"`
	Status            TherapistStatus `bun:"status,notnull" json:"status,omitempty"`
	RejectionReason   string          `bun:"rejection_reason" json:"rejection_reason,omitempty"`
	TerminationReason string          `bun:"termination_reason" json:"termination_reason,omitempty"`
	StatusChangedAt   *time.Time      `bun:"status_changed_at,nullzero" json:"status_changed_at,omitempty"`
	CreatedAt         *time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt         *time.Time      `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills a zero status to pending.
func (t *Therapist) EnsureStatus() {
	if t.Status == "" {
		t.Status = TherapistStatusPending
	}
}

// CredentialStatus is derived from the expiry timestamp, never stored.
type CredentialStatus string

const (
	CredentialStatusActive  CredentialStatus = "active"
	CredentialStatusExpired CredentialStatus = "expired"
)

// ThirdPartyCredential is a short-lived, narrowly-scoped account issued
// to an external (government) reviewer. Rows are never deleted on
// expiry; deletion happens only through an explicit revoke.
type ThirdPartyCredential struct {
	bun.BaseModel  `bun:"table:third_party_credentials,alias:tpc"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string     `bun:"username,notnull" json:"username,omitempty"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"-"`
	IssuedAt       time.Time  `bun:"issued_at,notnull" json:"issued_at,omitempty"`
	ExpiresAt      time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	LastLoginAt    *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	ExpiryNotified bool       `bun:"expiry_notified" json:"-"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// StatusAt derives the credential status at the given instant. Every
// validation path and the periodic sweep share this predicate.
func (c *ThirdPartyCredential) StatusAt(now time.Time) CredentialStatus {
	if now.Before(c.ExpiresAt) {
		return CredentialStatusActive
	}
	return CredentialStatusExpired
}

// AdminSession tracks inactivity for one authenticated administrative
// principal. Validity depends on LastActivityAt, never on the token's
// cryptographic state.
type AdminSession struct {
	bun.BaseModel  `bun:"table:admin_sessions,alias:ses"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	PrincipalID    string     `bun:"principal_id,notnull,unique" json:"principal_id,omitempty"`
	Token          string     `bun:"token,notnull" json:"-"`
	LoginAt        time.Time  `bun:"login_at,notnull" json:"login_at,omitempty"`
	LastActivityAt time.Time  `bun:"last_activity_at,notnull" json:"last_activity_at,omitempty"`
	ExpiredAt      *time.Time `bun:"expired_at,nullzero" json:"expired_at,omitempty"`
}

// AuditEvent is one accepted transition, appended exactly once and
// immutable thereafter. Seq breaks ordering ties between events that
// share an occurred_at timestamp.
type AuditEvent struct {
	bun.BaseModel `bun:"table:audit_events,alias:aev"`
	Seq           int64      `bun:"seq,pk,autoincrement" json:"seq,omitempty"`
	EntityType    EntityType `bun:"entity_type,notnull" json:"entity_type,omitempty"`
	EntityID      uuid.UUID  `bun:"entity_id,notnull,type:uuid" json:"entity_id,omitempty"`
	EventType     string     `bun:"event_type,notnull" json:"event_type,omitempty"`
	FromStatus    string     `bun:"from_status" json:"from_status,omitempty"`
	ToStatus      string     `bun:"to_status" json:"to_status,omitempty"`
	ActorID       string     `bun:"actor_id" json:"actor_id,omitempty"`
	ActorType     string     `bun:"actor_type" json:"actor_type,omitempty"`
	Reason        string     `bun:"reason" json:"reason,omitempty"`
	OccurredAt    time.Time  `bun:"occurred_at,notnull" json:"occurred_at,omitempty"`
}

func blankReason(reason string) bool {
	return strings.TrimSpace(reason) == ""
}
