package lifecycle

import (
	"context"
)

// Audit event types recorded on the append-only log.
const (
	AuditEventSpaStatusChanged       = "spa.status.changed"
	AuditEventTherapistStatusChanged = "therapist.status.changed"
	AuditEventCredentialIssued       = "credential.issued"
	AuditEventCredentialLogin        = "credential.login"
	AuditEventCredentialExpired      = "credential.expired"
	AuditEventCredentialRevoked      = "credential.revoked"
	AuditEventSessionExpired         = "session.expired"
)

// AuditNotifier receives best-effort copies of audit events after they are
// durably appended. Notifiers run outside the transaction; failures are
// logged and never roll back the transition.
type AuditNotifier interface {
	Notify(ctx context.Context, event AuditEvent) error
}

// AuditNotifierFunc adapts a function to the AuditNotifier interface.
type AuditNotifierFunc func(ctx context.Context, event AuditEvent) error

// Notify implements AuditNotifier.
func (f AuditNotifierFunc) Notify(ctx context.Context, event AuditEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopAuditNotifier struct{}

func (noopAuditNotifier) Notify(context.Context, AuditEvent) error {
	return nil
}

func normalizeAuditNotifier(n AuditNotifier) AuditNotifier {
	if n == nil {
		return noopAuditNotifier{}
	}
	return n
}
