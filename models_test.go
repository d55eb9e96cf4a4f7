package lifecycle_test

import (
	"testing"
	"time"

	lifecycle "github.com/spaportal/go-lifecycle"
	"github.com/stretchr/testify/assert"
)

func TestSpaStatusPredicates(t *testing.T) {
	assert.True(t, lifecycle.SpaStatusApproved.IsApprovedFamily())
	assert.True(t, lifecycle.SpaStatusVerified.IsApprovedFamily())
	assert.True(t, lifecycle.SpaStatusUnverified.IsApprovedFamily())
	assert.False(t, lifecycle.SpaStatusPending.IsApprovedFamily())
	assert.False(t, lifecycle.SpaStatusRejected.IsApprovedFamily())
	assert.False(t, lifecycle.SpaStatusBlacklisted.IsApprovedFamily())

	assert.True(t, lifecycle.SpaStatusRejected.IsTerminal())
	assert.True(t, lifecycle.SpaStatusBlacklisted.IsTerminal())
	assert.False(t, lifecycle.SpaStatusVerified.IsTerminal())

	assert.True(t, lifecycle.SpaStatusPending.IsValid())
	assert.False(t, lifecycle.SpaStatus("archived").IsValid())
}

func TestTherapistStatusPredicates(t *testing.T) {
	assert.True(t, lifecycle.TherapistStatusRejected.IsTerminal())
	assert.True(t, lifecycle.TherapistStatusResigned.IsTerminal())
	assert.True(t, lifecycle.TherapistStatusTerminated.IsTerminal())
	assert.False(t, lifecycle.TherapistStatusPending.IsTerminal())
	assert.False(t, lifecycle.TherapistStatusApproved.IsTerminal())

	assert.False(t, lifecycle.TherapistStatus("on-leave").IsValid())
}

func TestPaymentStateIsValid(t *testing.T) {
	for _, state := range []lifecycle.PaymentState{
		lifecycle.PaymentStateUnpaid,
		lifecycle.PaymentStatePending,
		lifecycle.PaymentStatePaid,
		lifecycle.PaymentStateOverdue,
	} {
		assert.True(t, state.IsValid(), "state %s", state)
	}
	assert.False(t, lifecycle.PaymentState("waived").IsValid())
}

func TestEntityTypePredicates(t *testing.T) {
	assert.True(t, lifecycle.EntityTypeSpa.HasLifecycle())
	assert.True(t, lifecycle.EntityTypeTherapist.HasLifecycle())
	assert.False(t, lifecycle.EntityTypeCredential.HasLifecycle())
	assert.False(t, lifecycle.EntityTypeSession.HasLifecycle())

	assert.True(t, lifecycle.EntityTypeCredential.IsValid())
	assert.False(t, lifecycle.EntityType("invoice").IsValid())
}

func TestSpaEnsureStatus(t *testing.T) {
	spa := &lifecycle.Spa{}
	spa.EnsureStatus()
	assert.Equal(t, lifecycle.SpaStatusPending, spa.Status)
	assert.Equal(t, lifecycle.PaymentStateUnpaid, spa.PaymentState)

	spa = &lifecycle.Spa{Status: lifecycle.SpaStatusVerified, PaymentState: lifecycle.PaymentStatePaid}
	spa.EnsureStatus()
	assert.Equal(t, lifecycle.SpaStatusVerified, spa.Status)
	assert.Equal(t, lifecycle.PaymentStatePaid, spa.PaymentState)
}

func TestTherapistEnsureStatus(t *testing.T) {
	therapist := &lifecycle.Therapist{}
	therapist.EnsureStatus()
	assert.Equal(t, lifecycle.TherapistStatusPending, therapist.Status)
}

func TestCredentialStatusAt(t *testing.T) {
	expires := time.Date(2026, 5, 11, 18, 0, 0, 0, time.UTC)
	cred := &lifecycle.ThirdPartyCredential{ExpiresAt: expires}

	assert.Equal(t, lifecycle.CredentialStatusActive, cred.StatusAt(expires.Add(-time.Second)))
	// The expiry instant itself is already expired.
	assert.Equal(t, lifecycle.CredentialStatusExpired, cred.StatusAt(expires))
	assert.Equal(t, lifecycle.CredentialStatusExpired, cred.StatusAt(expires.Add(time.Second)))
}

func TestParseAction(t *testing.T) {
	for _, raw := range []string{
		"approve", "reject", "verify-by-payment", "blacklist",
		"unblacklist", "terminate", "resign", "remove-termination",
	} {
		action, ok := lifecycle.ParseAction(raw)
		assert.True(t, ok, "action %s", raw)
		assert.Equal(t, lifecycle.Action(raw), action)
	}

	_, ok := lifecycle.ParseAction("promote")
	assert.False(t, ok)
}

func TestActionRequiresReason(t *testing.T) {
	assert.True(t, lifecycle.ActionReject.RequiresReason())
	assert.True(t, lifecycle.ActionBlacklist.RequiresReason())
	assert.True(t, lifecycle.ActionTerminate.RequiresReason())

	assert.False(t, lifecycle.ActionApprove.RequiresReason())
	assert.False(t, lifecycle.ActionUnblacklist.RequiresReason())
	assert.False(t, lifecycle.ActionResign.RequiresReason())
	assert.False(t, lifecycle.ActionRemoveTermination.RequiresReason())
}
