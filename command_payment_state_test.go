package lifecycle_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	lifecycle "github.com/spaportal/go-lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPaymentStateChangedHandlerVerifiesApprovedSpa(t *testing.T) {
	repo := newStubRepoManager()
	spa := &lifecycle.Spa{
		ID:           uuid.New(),
		Status:       lifecycle.SpaStatusApproved,
		PaymentState: lifecycle.PaymentStateUnpaid,
	}

	repo.spas.On("FindByID", mock.Anything, spa.ID).Return(spa, nil).Once()
	repo.spas.On("UpdateStatusTx", mock.Anything, mock.Anything, spa.ID, lifecycle.SpaStatusApproved, lifecycle.SpaStatusVerified, mock.Anything).
		Return(&lifecycle.Spa{ID: spa.ID, Status: lifecycle.SpaStatusVerified}, nil).Once()
	repo.audit.On("AppendTx", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	handler := lifecycle.NewPaymentStateChangedHandler(repo, lifecycle.NewSpaStateMachine(repo))

	err := handler.Execute(context.Background(), lifecycle.PaymentStateChangedMessage{
		SpaID: spa.ID,
		State: lifecycle.PaymentStatePaid,
	})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.SpaStatusVerified, spa.Status)
	repo.spas.AssertExpectations(t)
}

func TestPaymentStateChangedHandlerRecordsFactOnPendingSpa(t *testing.T) {
	repo := newStubRepoManager()
	spa := &lifecycle.Spa{
		ID:           uuid.New(),
		Status:       lifecycle.SpaStatusPending,
		PaymentState: lifecycle.PaymentStateUnpaid,
	}

	repo.spas.On("FindByID", mock.Anything, spa.ID).Return(spa, nil).Once()
	repo.spas.On("UpdatePaymentStateTx", mock.Anything, mock.Anything, spa.ID, lifecycle.PaymentStatePaid).Return(nil).Once()

	handler := lifecycle.NewPaymentStateChangedHandler(repo, lifecycle.NewSpaStateMachine(repo))

	err := handler.Execute(context.Background(), lifecycle.PaymentStateChangedMessage{
		SpaID: spa.ID,
		State: lifecycle.PaymentStatePaid,
	})
	require.NoError(t, err)
	// The fact is recorded but a pending spa never becomes verified.
	assert.Equal(t, lifecycle.SpaStatusPending, spa.Status)
	repo.audit.AssertNotCalled(t, "AppendTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentStateChangedHandlerRejectsUnknownState(t *testing.T) {
	repo := newStubRepoManager()
	handler := lifecycle.NewPaymentStateChangedHandler(repo, lifecycle.NewSpaStateMachine(repo))

	err := handler.Execute(context.Background(), lifecycle.PaymentStateChangedMessage{
		SpaID: uuid.New(),
		State: "comped",
	})
	require.Error(t, err)
	repo.spas.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestPaymentStateChangedHandlerUnknownSpa(t *testing.T) {
	repo := newStubRepoManager()
	id := uuid.New()

	repo.spas.On("FindByID", mock.Anything, id).Return(nil, lifecycle.ErrRecordNotFound).Once()

	handler := lifecycle.NewPaymentStateChangedHandler(repo, lifecycle.NewSpaStateMachine(repo))

	err := handler.Execute(context.Background(), lifecycle.PaymentStateChangedMessage{
		SpaID: id,
		State: lifecycle.PaymentStatePaid,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycle.ErrRecordNotFound)
}

func TestIssueCredentialHandlerRespondsWithCredential(t *testing.T) {
	repo := newStubRepoManager()

	repo.credentials.On("ActiveByUsername", mock.Anything, "gov-auditor", mock.Anything).
		Return(nil, lifecycle.ErrRecordNotFound).Once()
	repo.credentials.On("CreateCredential", mock.Anything, mock.Anything).
		Return(&lifecycle.ThirdPartyCredential{ID: uuid.New(), Username: "gov-auditor"}, nil).Once()
	repo.audit.On("Append", mock.Anything, mock.Anything).Return(nil).Once()

	handler := lifecycle.NewIssueCredentialHandler(lifecycle.NewCredentialManager(repo))

	var responded *lifecycle.ThirdPartyCredential
	err := handler.Execute(context.Background(), lifecycle.IssueCredentialMessage{
		Username: "gov-auditor",
		Password: testCredentialPassword,
		OnResponse: func(cred *lifecycle.ThirdPartyCredential) {
			responded = cred
		},
	})
	require.NoError(t, err)
	require.NotNil(t, responded)
	assert.Equal(t, "gov-auditor", responded.Username)
}

func TestIssueCredentialHandlerSurfacesDuplicate(t *testing.T) {
	repo := newStubRepoManager()

	repo.credentials.On("ActiveByUsername", mock.Anything, "gov-auditor", mock.Anything).
		Return(&lifecycle.ThirdPartyCredential{ID: uuid.New()}, nil).Once()

	handler := lifecycle.NewIssueCredentialHandler(lifecycle.NewCredentialManager(repo))

	err := handler.Execute(context.Background(), lifecycle.IssueCredentialMessage{
		Username: "gov-auditor",
		Password: testCredentialPassword,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycle.ErrDuplicateUsername)
}
