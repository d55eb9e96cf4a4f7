// Package lifecycle implements entity verification and access lifecycles for
// a spa industry association portal: spa and therapist approval workflows,
// payment-driven verification, short-lived third-party credentials, and
// inactivity-bounded administrative sessions.
//
// Entity lifecycles:
//   - Spas and therapists carry typed status fields persisted via Bun. Spa
//     statuses cover pending, approved, verified, unverified, rejected, and
//     blacklisted; therapist statuses cover pending, approved, rejected,
//     resigned, and terminated.
//   - SpaStateMachine and TherapistStateMachine centralize the transition
//     tables, reason requirements, hooks, and persistence. Every accepted
//     transition commits the status compare-and-swap and its audit event in a
//     single transaction, so a partially applied change is never observable.
//   - Payment facts flow through ApplyPaymentState and move approved spas
//     between verified and unverified. Operators cannot trigger these moves
//     directly, and replaying the same payment fact is a no-op.
//
// Time-bound access:
//   - CredentialManager issues short-lived third-party accounts whose expiry
//     is derived from expires_at on every validation call. Nothing is deleted
//     on expiry; revocation is the only deletion path.
//   - SessionGuard enforces the administrative inactivity timeout. The sweep
//     and the lazy validity check share one predicate and claim expiry
//     through a conditional update, so the logout side effect fires exactly
//     once per session.
//
// Audit projection:
//   - Every accepted transition appends an immutable AuditEvent. Projector
//     serves the unified feed newest first and recomputes status summaries
//     from the stores at query time.
package lifecycle
